package themes

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/tweet-listener/api"
	"github.com/brettboylen/tweet-listener/models"
)

const (
	DefaultSampleLimit    = 500
	DefaultGlobalCount    = 5
	DefaultSentimentCount = 3

	themeTemperature = 0.4

	nothingToAnalyze   = "There are no posts to analyze for this group."
	emptyResponse      = "The model returned no themes for this group."
	unavailableMessage = "Themes could not be generated for this group"
)

// Item is one post as seen by the extractor
type Item struct {
	Text   string
	Author string
}

// Extractor asks a Generator for the main themes of a group of posts
type Extractor struct {
	backend        api.Generator
	sampleLimit    int
	globalCount    int
	sentimentCount int
	log            *logrus.Logger
}

// NewExtractor creates an extractor. Non-positive values fall back to the defaults.
func NewExtractor(backend api.Generator, sampleLimit, globalCount, sentimentCount int, log *logrus.Logger) *Extractor {
	if sampleLimit <= 0 {
		sampleLimit = DefaultSampleLimit
	}
	if globalCount <= 0 {
		globalCount = DefaultGlobalCount
	}
	if sentimentCount <= 0 {
		sentimentCount = DefaultSentimentCount
	}

	return &Extractor{
		backend:        backend,
		sampleLimit:    sampleLimit,
		globalCount:    globalCount,
		sentimentCount: sentimentCount,
		log:            log,
	}
}

// Extract returns up to n themes for the items of one scope; a non-positive n
// uses the scope default. Only the first sampleLimit non-blank items are sent. It never returns an error: callers
// switch on the ThemeSet status.
func (e *Extractor) Extract(ctx context.Context, items []Item, scope, hint string, n int) models.ThemeSet {
	set := models.ThemeSet{Scope: scope, PostCount: len(items)}

	if n <= 0 {
		n = e.sentimentCount
		if scope == models.ScopeAll {
			n = e.globalCount
		}
	}

	sample := make([]Item, 0, min(len(items), e.sampleLimit))
	for _, item := range items {
		if len(sample) == e.sampleLimit {
			break
		}
		if strings.TrimSpace(item.Text) != "" {
			sample = append(sample, item)
		}
	}

	if len(sample) == 0 {
		set.Status = models.ThemesEmpty
		set.Raw = nothingToAnalyze
		return set
	}

	logger := e.log.WithFields(logrus.Fields{
		"scope":  scope,
		"posts":  len(items),
		"sample": len(sample),
		"themes": n,
	})

	started := time.Now()
	response, err := e.backend.Generate(ctx, buildPrompt(sample, scope, hint, n), themeTemperature)
	if err != nil {
		logger.WithError(err).Warn("Theme extraction failed")
		set.Status = models.ThemesFailed
		set.Error = err.Error()
		set.Raw = fmt.Sprintf("%s: %v", unavailableMessage, err)
		return set
	}

	themes := parseThemes(response)
	if len(themes) == 0 {
		logger.Warn("Theme response did not match the expected layout, keeping raw text")
		set.Status = models.ThemesFallback
		set.Raw = strings.TrimSpace(response)
		if set.Raw == "" {
			set.Raw = emptyResponse
		}
		return set
	}

	if len(themes) > n {
		themes = themes[:n]
	}
	set.Status = models.ThemesStructured
	set.Themes = themes

	logger.WithFields(logrus.Fields{
		"parsed":   len(themes),
		"duration": time.Since(started).String(),
	}).Info("Themes extracted")

	return set
}

// ExtractAll runs the global scope and one scope per sentiment label.
// Scopes are independent: one failing never affects the others.
func (e *Extractor) ExtractAll(ctx context.Context, posts []models.Post, hint string) (models.ThemeSet, []models.ThemeSet) {
	all := make([]Item, 0, len(posts))
	buckets := make(map[models.SentimentLabel][]Item, len(models.SentimentLabels))
	for _, post := range posts {
		item := Item{Text: post.Text, Author: post.AuthorHandle}
		all = append(all, item)
		buckets[post.Sentiment] = append(buckets[post.Sentiment], item)
	}

	global := e.Extract(ctx, all, models.ScopeAll, hint, e.globalCount)

	perSentiment := make([]models.ThemeSet, 0, len(models.SentimentLabels))
	for _, label := range models.SentimentLabels {
		perSentiment = append(perSentiment, e.Extract(ctx, buckets[label], string(label), hint, e.sentimentCount))
	}

	return global, perSentiment
}

func buildPrompt(sample []Item, scope, hint string, n int) string {
	var sb strings.Builder

	if hint = strings.TrimSpace(hint); hint != "" {
		fmt.Fprintf(&sb, "CONTEXT: %s\n\n", hint)
	}

	if scope == models.ScopeAll {
		fmt.Fprintf(&sb, "Identify the %d main themes discussed in the following posts.\n", n)
	} else {
		fmt.Fprintf(&sb, "Identify the %d main themes in the following posts, all classified as %s.\n", n, scope)
	}
	sb.WriteString("For each theme give a short name, a one-sentence explanation and one representative post quoted with its author.\n")
	sb.WriteString("Use exactly this layout and nothing else:\n\n")
	sb.WriteString("1. Theme: <name>\nExplanation: <explanation>\nExample: \"<quoted post>\" - @<author>\n\n")
	sb.WriteString("Posts:\n")

	for _, item := range sample {
		author := item.Author
		if author == "" {
			author = "unknown"
		}
		fmt.Fprintf(&sb, "@%s: %s\n", author, strings.Join(strings.Fields(item.Text), " "))
	}

	return sb.String()
}

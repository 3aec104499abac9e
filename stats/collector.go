package stats

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/brettboylen/tweet-listener/api"
	"github.com/brettboylen/tweet-listener/models"
	"github.com/brettboylen/tweet-listener/sentiment"
)

var (
	// ErrNoResults ends a run when the source fails or returns nothing
	ErrNoResults = errors.New("no results")
	// ErrInvalidQuery is returned before any fetch when the query is unusable
	ErrInvalidQuery = errors.New("invalid query")
)

// Classifier labels post texts
type Classifier interface {
	Classify(ctx context.Context, texts []string, hint string) sentiment.Result
}

// ThemeExtractor produces the global and per-sentiment theme sets
type ThemeExtractor interface {
	ExtractAll(ctx context.Context, posts []models.Post, hint string) (models.ThemeSet, []models.ThemeSet)
}

// RunStore persists finished runs
type RunStore interface {
	SaveRun(run *models.RunResult) error
}

// Collector runs the fetch, classify, extract and aggregate pipeline
type Collector struct {
	source     api.PostSource
	classifier Classifier
	extractor  ThemeExtractor
	store      RunStore
	maxItems   int
	log        *logrus.Logger

	mutex  sync.RWMutex
	latest *models.RunResult
}

// NewCollector creates a new collector. store may be nil.
func NewCollector(
	source api.PostSource,
	classifier Classifier,
	extractor ThemeExtractor,
	store RunStore,
	maxItems int,
	log *logrus.Logger,
) *Collector {
	return &Collector{
		source:     source,
		classifier: classifier,
		extractor:  extractor,
		store:      store,
		maxItems:   maxItems,
		log:        log,
	}
}

// ValidateQuery checks a query before anything is fetched
func ValidateQuery(query models.Query) error {
	if len(query.SearchTerms) == 0 {
		return fmt.Errorf("%w: at least one search term is required", ErrInvalidQuery)
	}
	if !query.Start.IsZero() && !query.End.IsZero() && query.End.Before(query.Start) {
		return fmt.Errorf("%w: end date is before start date", ErrInvalidQuery)
	}
	switch query.Sort {
	case "", models.SortTop, models.SortLatest, models.SortBoth:
	default:
		return fmt.Errorf("%w: unknown sort mode %q", ErrInvalidQuery, query.Sort)
	}
	return nil
}

// Run executes one pipeline run. Only an invalid query, a failed or empty
// fetch, or cancellation end it early; classification and theme failures
// degrade their own slice of the output.
func (c *Collector) Run(ctx context.Context, query models.Query) (*models.RunResult, error) {
	if err := ValidateQuery(query); err != nil {
		return nil, err
	}
	if query.Sort == "" {
		query.Sort = models.SortTop
	}
	if query.MaxItems <= 0 {
		query.MaxItems = c.maxItems
	}

	runID := uuid.NewString()
	logger := c.log.WithFields(logrus.Fields{
		"run_id":       runID,
		"search_terms": query.SearchTerms,
		"sort":         query.Sort,
	})
	started := time.Now()

	records, err := c.source.FetchPosts(ctx, query)
	if err != nil {
		logger.WithError(err).Error("Failed to fetch posts")
		return nil, fmt.Errorf("%w: %v", ErrNoResults, err)
	}

	posts := api.NormalizePosts(records)
	logger.WithFields(logrus.Fields{
		"records": len(records),
		"posts":   len(posts),
	}).Info("Normalized posts")

	if len(posts) == 0 {
		return nil, fmt.Errorf("%w: the search returned no posts", ErrNoResults)
	}

	summary := c.classify(ctx, posts, query.Context)

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	global, perSentiment := c.extractor.ExtractAll(ctx, posts, query.Context)

	run := &models.RunResult{
		ID:              runID,
		CreatedAt:       time.Now().UTC(),
		Query:           query,
		Posts:           posts,
		GlobalThemes:    global,
		SentimentThemes: perSentiment,
		Statistics:      BuildReport(posts),
		Classification:  summary,
	}

	if c.store != nil {
		if err := c.store.SaveRun(run); err != nil {
			logger.WithError(err).Error("Failed to save run")
		}
	}

	c.mutex.Lock()
	c.latest = run
	c.mutex.Unlock()

	c.logStatistics(logger, run, time.Since(started))
	return run, nil
}

// classify labels every post in place. Posts with blank text skip the
// backend and stay NEUTRAL.
func (c *Collector) classify(ctx context.Context, posts []models.Post, hint string) models.ClassificationSummary {
	texts := make([]string, 0, len(posts))
	positions := make([]int, 0, len(posts))

	for i := range posts {
		posts[i].Sentiment = models.Neutral
		if strings.TrimSpace(posts[i].Text) == "" {
			continue
		}
		texts = append(texts, posts[i].Text)
		positions = append(positions, i)
	}

	result := c.classifier.Classify(ctx, texts, hint)
	for j, i := range positions {
		if j < len(result.Labels) {
			posts[i].Sentiment = result.Labels[j]
		}
	}

	return result.Summary
}

// logStatistics logs the outcome of a run
func (c *Collector) logStatistics(logger *logrus.Entry, run *models.RunResult, elapsed time.Duration) {
	fields := logrus.Fields{
		"total_posts":      run.Statistics.TotalPosts,
		"batches":          run.Classification.Batches,
		"degraded_batches": run.Classification.DegradedBatches,
		"failed_batches":   run.Classification.FailedBatches,
		"granularity":      run.Statistics.Timeline.Granularity,
		"duration":         elapsed.String(),
	}
	for _, share := range run.Statistics.Sentiment {
		fields[strings.ToLower(string(share.Label))] = share.Count
	}
	logger.WithFields(fields).Info("Run finished")
}

// GetLatest returns the most recent run of this process, or nil
func (c *Collector) GetLatest() *models.RunResult {
	c.mutex.RLock()
	defer c.mutex.RUnlock()

	return c.latest
}

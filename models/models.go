package models

import (
	"strings"
	"time"
)

// SentimentLabel is the sentiment assigned to a single post
type SentimentLabel string

const (
	Positive SentimentLabel = "POSITIVE"
	Negative SentimentLabel = "NEGATIVE"
	Neutral  SentimentLabel = "NEUTRAL"
)

// SentimentLabels lists every label in report order
var SentimentLabels = []SentimentLabel{Positive, Negative, Neutral}

// ParseSentimentLabel maps a label token (English or Spanish, any case) to a SentimentLabel
func ParseSentimentLabel(s string) (SentimentLabel, bool) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "POSITIVE", "POSITIVO", "POSITIVA":
		return Positive, true
	case "NEGATIVE", "NEGATIVO", "NEGATIVA":
		return Negative, true
	case "NEUTRAL", "NEUTRO", "NEUTRA":
		return Neutral, true
	}
	return "", false
}

// RawRecord is one untyped item as returned by the scraping provider
type RawRecord map[string]any

// SortMode selects how the provider orders results
type SortMode string

const (
	SortTop    SortMode = "Top"
	SortLatest SortMode = "Latest"
	SortBoth   SortMode = "Both"
)

// Query describes one scraping request
type Query struct {
	SearchTerms []string  `json:"search_terms"`
	Start       time.Time `json:"start"`
	End         time.Time `json:"end"`
	Sort        SortMode  `json:"sort"`
	MaxItems    int       `json:"max_items"`
	Context     string    `json:"context"`
}

// Post represents a normalized tweet
type Post struct {
	URL             string         `json:"url"`
	Text            string         `json:"text"`
	CreatedAt       *time.Time     `json:"created_at,omitempty"`
	AuthorHandle    string         `json:"author_handle"`
	AuthorFollowers int64          `json:"author_followers"`
	AuthorAvatar    string         `json:"author_avatar"`
	LikeCount       int64          `json:"like_count"`
	ReplyCount      int64          `json:"reply_count"`
	RepostCount     int64          `json:"repost_count"`
	QuoteCount      int64          `json:"quote_count"`
	BookmarkCount   int64          `json:"bookmark_count"`
	ViewCount       int64          `json:"view_count"`
	Source          string         `json:"source"`
	Sentiment       SentimentLabel `json:"sentiment"`
}

// Theme is one topic extracted from a group of posts
type Theme struct {
	Name          string `json:"name"`
	Explanation   string `json:"explanation"`
	ExampleQuote  string `json:"example_quote"`
	ExampleAuthor string `json:"example_author"`
}

// ThemeStatus tells consumers which branch of a ThemeSet is populated
type ThemeStatus string

const (
	ThemesStructured ThemeStatus = "structured"
	ThemesFallback   ThemeStatus = "fallback"
	ThemesEmpty      ThemeStatus = "empty"
	ThemesFailed     ThemeStatus = "failed"
)

// ScopeAll is the theme scope covering every post
const ScopeAll = "all"

// ThemeSet holds the themes extracted for one scope. When Status is
// ThemesStructured, Themes is populated; otherwise Raw carries the text to show.
type ThemeSet struct {
	Scope     string      `json:"scope"`
	PostCount int         `json:"post_count"`
	Status    ThemeStatus `json:"status"`
	Themes    []Theme     `json:"themes,omitempty"`
	Raw       string      `json:"raw,omitempty"`
	Error     string      `json:"error,omitempty"`
}

// SentimentShare is the count and percentage of one label
type SentimentShare struct {
	Label      SentimentLabel `json:"label"`
	Count      int            `json:"count"`
	Percentage float64        `json:"percentage"`
}

// AuthorStat is one entry of the top authors ranking
type AuthorStat struct {
	Handle    string `json:"handle"`
	Followers int64  `json:"followers"`
	Avatar    string `json:"avatar"`
}

// Engagement holds summed interaction counters
type Engagement struct {
	Likes     int64 `json:"likes"`
	Replies   int64 `json:"replies"`
	Reposts   int64 `json:"reposts"`
	Quotes    int64 `json:"quotes"`
	Bookmarks int64 `json:"bookmarks"`
	Views     int64 `json:"views"`
}

// Granularity is the size of a timeline bucket
type Granularity string

const (
	ByHour  Granularity = "hour"
	ByDay   Granularity = "day"
	ByMonth Granularity = "month"
)

// TimeBucket is one point of the timeline
type TimeBucket struct {
	Key   string `json:"key"`
	Count int    `json:"count"`
}

// Timeline is the time-bucketed post count series
type Timeline struct {
	Granularity Granularity  `json:"granularity"`
	Buckets     []TimeBucket `json:"buckets"`
}

// Statistics holds everything derived from a classified post set
type Statistics struct {
	TotalPosts            int              `json:"total_posts"`
	Sentiment             []SentimentShare `json:"sentiment"`
	Engagement            Engagement       `json:"engagement"`
	TopPostsByViews       []Post           `json:"top_posts_by_views"`
	TopAuthorsByFollowers []AuthorStat     `json:"top_authors_by_followers"`
	Timeline              Timeline         `json:"timeline"`
}

// ClassificationSummary reports how the classifier batches went
type ClassificationSummary struct {
	Batches         int `json:"batches"`
	DegradedBatches int `json:"degraded_batches"`
	FailedBatches   int `json:"failed_batches"`
}

// RunResult is the output bundle of one pipeline run
type RunResult struct {
	ID              string                `json:"id"`
	CreatedAt       time.Time             `json:"created_at"`
	Query           Query                 `json:"query"`
	Posts           []Post                `json:"posts"`
	GlobalThemes    ThemeSet              `json:"global_themes"`
	SentimentThemes []ThemeSet            `json:"sentiment_themes"`
	Statistics      Statistics            `json:"statistics"`
	Classification  ClassificationSummary `json:"classification"`
}

// RunSummary is a short listing entry for a stored run
type RunSummary struct {
	ID          string    `json:"id"`
	CreatedAt   time.Time `json:"created_at"`
	SearchTerms []string  `json:"search_terms"`
	TotalPosts  int       `json:"total_posts"`
}

package api

import (
	"encoding/json"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brettboylen/tweet-listener/models"
)

func TestNormalizePostsFlattensAuthor(t *testing.T) {
	records := []models.RawRecord{
		{
			"url":       "https://x.com/ana/status/1",
			"text":      "hola mundo",
			"createdAt": "Tue Mar 04 18:22:10 +0000 2025",
			"viewCount": float64(1500),
			"likeCount": float64(12),
			"source":    "Twitter for iPhone",
			"author": map[string]any{
				"userName":       "ana",
				"followers":      float64(320),
				"profilePicture": "https://pbs.twimg.com/ana.jpg",
			},
		},
	}

	posts := NormalizePosts(records)
	require.Len(t, posts, 1)

	post := posts[0]
	assert.Equal(t, "ana", post.AuthorHandle)
	assert.Equal(t, int64(320), post.AuthorFollowers)
	assert.Equal(t, "https://pbs.twimg.com/ana.jpg", post.AuthorAvatar)
	assert.Equal(t, int64(1500), post.ViewCount)
	assert.Equal(t, int64(12), post.LikeCount)
	assert.Equal(t, "Twitter for iPhone", post.Source)
	require.NotNil(t, post.CreatedAt)
	assert.Equal(t, time.Date(2025, 3, 4, 18, 22, 10, 0, time.UTC), *post.CreatedAt)
}

func TestNormalizePostsMissingAuthor(t *testing.T) {
	records := []models.RawRecord{
		{"url": "u1", "text": "no author"},
		{"url": "u2", "text": "author is a string", "author": "bob"},
	}

	posts := NormalizePosts(records)
	require.Len(t, posts, 2)
	for _, post := range posts {
		assert.Empty(t, post.AuthorHandle)
		assert.Zero(t, post.AuthorFollowers)
		assert.Empty(t, post.AuthorAvatar)
	}
}

func TestNormalizePostsDeduplicatesByURL(t *testing.T) {
	records := []models.RawRecord{
		{"url": "a", "text": "first"},
		{"url": "b", "text": "other"},
		{"url": "a", "text": "second"},
		{"text": "no url 1"},
		{"text": "no url 2"},
	}

	posts := NormalizePosts(records)
	require.Len(t, posts, 4)
	assert.Equal(t, "first", posts[0].Text)
	assert.Equal(t, "other", posts[1].Text)

	seen := map[string]bool{}
	for _, post := range posts {
		if post.URL == "" {
			continue
		}
		assert.False(t, seen[post.URL], "duplicate url %s", post.URL)
		seen[post.URL] = true
	}
}

func TestAsCount(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected int64
	}{
		{"float", float64(42), 42},
		{"int", 7, 7},
		{"json number", json.Number("99"), 99},
		{"numeric string", "1234", 1234},
		{"thousands separator", "12,345", 12345},
		{"abbreviated thousands", "1.5K", 1500},
		{"abbreviated millions", "2M", 2000000},
		{"garbage string", "n/a", 0},
		{"negative", float64(-3), 0},
		{"nil", nil, 0},
		{"bool", true, 0},
		{"map", map[string]any{"a": 1}, 0},
		{"max int64 string", "9223372036854775807", math.MaxInt64},
		{"max int64 float", float64(math.MaxInt64), math.MaxInt64},
		{"beyond int64", "1e30", math.MaxInt64},
		{"abbreviated beyond int64", "99999999999B", math.MaxInt64},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, asCount(tc.input))
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	tests := []struct {
		name     string
		input    any
		expected *time.Time
	}{
		{"twitter layout", "Wed Jan 01 10:00:00 +0000 2025", ptrTime(time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC))},
		{"rfc3339", "2025-01-01T10:00:00Z", ptrTime(time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC))},
		{"rfc3339 with offset", "2025-01-01T07:00:00-03:00", ptrTime(time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC))},
		{"date only", "2025-01-01", ptrTime(time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC))},
		{"garbage", "yesterday", nil},
		{"empty", "", nil},
		{"number", float64(1), nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, parseTimestamp(tc.input))
		})
	}
}

func ptrTime(t time.Time) *time.Time {
	return &t
}

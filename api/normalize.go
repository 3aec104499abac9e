package api

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/brettboylen/tweet-listener/models"
)

// layouts accepted for createdAt, tried in order
var timestampLayouts = []string{
	time.RubyDate, // Twitter: "Mon Jan 02 15:04:05 -0700 2006"
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05.000Z",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// NormalizePosts converts raw provider records into posts, deduplicated by url.
// Malformed fields degrade to defaults; nothing here fails.
func NormalizePosts(records []models.RawRecord) []models.Post {
	posts := make([]models.Post, 0, len(records))
	seen := make(map[string]struct{}, len(records))

	for _, record := range records {
		post := normalizeRecord(record)
		if post.URL != "" {
			if _, dup := seen[post.URL]; dup {
				continue
			}
			seen[post.URL] = struct{}{}
		}
		posts = append(posts, post)
	}

	return posts
}

func normalizeRecord(record models.RawRecord) models.Post {
	post := models.Post{
		URL:           asString(record["url"]),
		Text:          asString(record["text"]),
		CreatedAt:     parseTimestamp(record["createdAt"]),
		LikeCount:     asCount(record["likeCount"]),
		ReplyCount:    asCount(record["replyCount"]),
		RepostCount:   asCount(record["retweetCount"]),
		QuoteCount:    asCount(record["quoteCount"]),
		BookmarkCount: asCount(record["bookmarkCount"]),
		ViewCount:     asCount(record["viewCount"]),
		Source:        asString(record["source"]),
	}

	if author, ok := record["author"].(map[string]any); ok {
		post.AuthorHandle = asString(author["userName"])
		post.AuthorFollowers = asCount(author["followers"])
		post.AuthorAvatar = asString(author["profilePicture"])
	}

	// already-flat records, as found in exported datasets
	if post.AuthorHandle == "" {
		post.AuthorHandle = asString(record["author/userName"])
	}
	if post.AuthorFollowers == 0 {
		post.AuthorFollowers = asCount(record["author/followers"])
	}
	if post.AuthorAvatar == "" {
		post.AuthorAvatar = asString(record["author/profilePicture"])
	}

	return post
}

func asString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case float64:
		return strconv.FormatFloat(val, 'f', -1, 64)
	}
	return ""
}

// asCount coerces a loosely typed counter to a non-negative integer, 0 on failure
func asCount(v any) int64 {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int64:
		f = float64(val)
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case string:
		f = parseCountString(val)
	default:
		return 0
	}

	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 {
		return 0
	}
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold
	if f >= math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(f)
}

// parseCountString handles "1234", "1,234" and abbreviated forms like "1.2K"
func parseCountString(s string) float64 {
	s = strings.TrimSpace(strings.ReplaceAll(s, ",", ""))
	if s == "" {
		return 0
	}

	multiplier := 1.0
	switch strings.ToUpper(s[len(s)-1:]) {
	case "K":
		multiplier = 1e3
	case "M":
		multiplier = 1e6
	case "B":
		multiplier = 1e9
	}
	if multiplier != 1 {
		s = s[:len(s)-1]
	}

	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return f * multiplier
}

func parseTimestamp(v any) *time.Time {
	s := asString(v)
	if s == "" {
		return nil
	}

	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			utc := t.UTC()
			return &utc
		}
	}
	return nil
}

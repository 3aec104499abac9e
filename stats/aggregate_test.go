package stats

import (
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brettboylen/tweet-listener/models"
)

func at(s string) *time.Time {
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		panic(err)
	}
	return &t
}

func TestSentimentDistribution(t *testing.T) {
	tests := []struct {
		name   string
		labels []models.SentimentLabel
		counts [3]int
	}{
		{"thirds", []models.SentimentLabel{models.Positive, models.Negative, models.Neutral}, [3]int{1, 1, 1}},
		{"all positive", []models.SentimentLabel{models.Positive, models.Positive}, [3]int{2, 0, 0}},
		{"sevenths", []models.SentimentLabel{
			models.Positive, models.Positive, models.Positive,
			models.Negative, models.Negative, models.Neutral, models.Neutral,
		}, [3]int{3, 2, 2}},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			posts := make([]models.Post, len(tc.labels))
			for i, label := range tc.labels {
				posts[i].Sentiment = label
			}

			shares := SentimentDistribution(posts)
			require.Len(t, shares, 3)

			sum := 0.0
			for i, share := range shares {
				assert.Equal(t, models.SentimentLabels[i], share.Label)
				assert.Equal(t, tc.counts[i], share.Count)
				sum += share.Percentage
			}
			assert.InDelta(t, 100.0, sum, 0.01)
		})
	}
}

func TestSentimentDistributionEmpty(t *testing.T) {
	shares := SentimentDistribution(nil)
	require.Len(t, shares, 3)
	for _, share := range shares {
		assert.Zero(t, share.Count)
		assert.Zero(t, share.Percentage)
	}
}

func TestTopPostsByViews(t *testing.T) {
	posts := make([]models.Post, 15)
	for i := range posts {
		posts[i] = models.Post{URL: fmt.Sprintf("u%d", i), ViewCount: int64(i % 5)}
	}
	original := append([]models.Post(nil), posts...)

	top := TopPostsByViews(posts, 10)
	require.Len(t, top, 10)

	// views 4 at u4, u9, u14 keep input order
	assert.Equal(t, "u4", top[0].URL)
	assert.Equal(t, "u9", top[1].URL)
	assert.Equal(t, "u14", top[2].URL)
	for i := 1; i < len(top); i++ {
		assert.GreaterOrEqual(t, top[i-1].ViewCount, top[i].ViewCount)
	}
	assert.Equal(t, original, posts)

	assert.Len(t, TopPostsByViews(posts[:3], 10), 3)
}

func TestTopAuthorsByFollowers(t *testing.T) {
	posts := []models.Post{
		{AuthorHandle: "ana", AuthorFollowers: 10, AuthorAvatar: "ana-1.jpg"},
		{AuthorHandle: "bob", AuthorFollowers: 500},
		{AuthorHandle: "ana", AuthorFollowers: 900, AuthorAvatar: "ana-2.jpg"},
		{AuthorHandle: "", AuthorFollowers: 99999},
		{AuthorHandle: "bob", AuthorFollowers: 20, AuthorAvatar: "bob.jpg"},
		{AuthorHandle: "carla", AuthorFollowers: 500},
	}

	authors := TopAuthorsByFollowers(posts, 10)
	assert.Equal(t, []models.AuthorStat{
		{Handle: "ana", Followers: 900, Avatar: "ana-1.jpg"},
		{Handle: "bob", Followers: 500, Avatar: "bob.jpg"},
		{Handle: "carla", Followers: 500},
	}, authors)

	assert.Len(t, TopAuthorsByFollowers(posts, 2), 2)
}

func TestTopAuthorsLimit(t *testing.T) {
	posts := make([]models.Post, 25)
	for i := range posts {
		posts[i] = models.Post{AuthorHandle: fmt.Sprintf("user%d", i), AuthorFollowers: int64(i)}
	}

	authors := TopAuthorsByFollowers(posts, 10)
	require.Len(t, authors, 10)
	assert.Equal(t, "user24", authors[0].Handle)
	assert.Equal(t, "user15", authors[9].Handle)
}

func TestChooseGranularity(t *testing.T) {
	base := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name     string
		span     time.Duration
		expected models.Granularity
	}{
		{"same instant", 0, models.ByHour},
		{"exactly 3 days", 3 * 24 * time.Hour, models.ByHour},
		{"4 days", 4 * 24 * time.Hour, models.ByDay},
		{"exactly 150 days", 150 * 24 * time.Hour, models.ByDay},
		{"151 days", 151 * 24 * time.Hour, models.ByMonth},
		{"two years", 730 * 24 * time.Hour, models.ByMonth},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, ChooseGranularity(base, base.Add(tc.span)))
		})
	}
}

func TestChooseGranularityUsesCalendarDays(t *testing.T) {
	// 2 days and 2 hours apart, but 3 calendar days
	from := time.Date(2025, 1, 1, 23, 0, 0, 0, time.UTC)
	assert.Equal(t, models.ByHour, ChooseGranularity(from, time.Date(2025, 1, 4, 1, 0, 0, 0, time.UTC)))
	assert.Equal(t, models.ByDay, ChooseGranularity(from, time.Date(2025, 1, 5, 0, 30, 0, 0, time.UTC)))
}

func TestBuildTimeline(t *testing.T) {
	tests := []struct {
		name        string
		posts       []models.Post
		granularity models.Granularity
		buckets     []models.TimeBucket
	}{
		{
			name: "hourly",
			posts: []models.Post{
				{CreatedAt: at("2025-03-01T10:15:00Z")},
				{CreatedAt: at("2025-03-01T10:45:00Z")},
				{CreatedAt: nil},
				{CreatedAt: at("2025-03-02T08:00:00Z")},
			},
			granularity: models.ByHour,
			buckets: []models.TimeBucket{
				{Key: "2025-03-01 10:00", Count: 2},
				{Key: "2025-03-02 08:00", Count: 1},
			},
		},
		{
			name: "daily",
			posts: []models.Post{
				{CreatedAt: at("2025-03-20T10:00:00Z")},
				{CreatedAt: at("2025-03-01T10:00:00Z")},
				{CreatedAt: at("2025-03-01T23:00:00Z")},
			},
			granularity: models.ByDay,
			buckets: []models.TimeBucket{
				{Key: "2025-03-01", Count: 2},
				{Key: "2025-03-20", Count: 1},
			},
		},
		{
			name: "monthly",
			posts: []models.Post{
				{CreatedAt: at("2024-01-15T10:00:00Z")},
				{CreatedAt: at("2024-12-01T10:00:00Z")},
				{CreatedAt: at("2024-12-31T10:00:00Z")},
			},
			granularity: models.ByMonth,
			buckets: []models.TimeBucket{
				{Key: "2024-01", Count: 1},
				{Key: "2024-12", Count: 2},
			},
		},
		{
			name:        "no timestamps",
			posts:       []models.Post{{}, {}},
			granularity: models.ByDay,
			buckets:     []models.TimeBucket{},
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			timeline := BuildTimeline(tc.posts)
			assert.Equal(t, tc.granularity, timeline.Granularity)
			assert.Equal(t, tc.buckets, timeline.Buckets)
		})
	}
}

func TestBuildReport(t *testing.T) {
	posts := []models.Post{
		{URL: "a", AuthorHandle: "ana", ViewCount: 10, LikeCount: 1, Sentiment: models.Positive, CreatedAt: at("2025-01-01T00:00:00Z")},
		{URL: "b", AuthorHandle: "bob", ViewCount: 30, LikeCount: 2, ReplyCount: 4, Sentiment: models.Negative},
	}

	report := BuildReport(posts)
	assert.Equal(t, 2, report.TotalPosts)
	assert.Equal(t, "b", report.TopPostsByViews[0].URL)
	assert.Equal(t, int64(3), report.Engagement.Likes)
	assert.Equal(t, int64(4), report.Engagement.Replies)
	assert.Equal(t, int64(40), report.Engagement.Views)
	assert.Len(t, report.TopAuthorsByFollowers, 2)
	assert.Len(t, report.Timeline.Buckets, 1)
	assert.False(t, math.IsNaN(report.Sentiment[0].Percentage))
}

package stats

import (
	"sort"
	"time"

	"github.com/brettboylen/tweet-listener/models"
)

const (
	defaultTopPostsLimit   = 10
	defaultTopAuthorsLimit = 10

	hourlyMaxDays = 3
	dailyMaxDays  = 150
)

var bucketLayouts = map[models.Granularity]string{
	models.ByHour:  "2006-01-02 15:00",
	models.ByDay:   "2006-01-02",
	models.ByMonth: "2006-01",
}

// BuildReport derives every statistic from a classified post set. Posts are not modified.
func BuildReport(posts []models.Post) models.Statistics {
	return models.Statistics{
		TotalPosts:            len(posts),
		Sentiment:             SentimentDistribution(posts),
		Engagement:            EngagementTotals(posts),
		TopPostsByViews:       TopPostsByViews(posts, defaultTopPostsLimit),
		TopAuthorsByFollowers: TopAuthorsByFollowers(posts, defaultTopAuthorsLimit),
		Timeline:              BuildTimeline(posts),
	}
}

// SentimentDistribution counts posts per label, always reporting all three labels
func SentimentDistribution(posts []models.Post) []models.SentimentShare {
	counts := make(map[models.SentimentLabel]int, len(models.SentimentLabels))
	for _, post := range posts {
		counts[post.Sentiment]++
	}

	shares := make([]models.SentimentShare, 0, len(models.SentimentLabels))
	for _, label := range models.SentimentLabels {
		share := models.SentimentShare{Label: label, Count: counts[label]}
		if len(posts) > 0 {
			share.Percentage = float64(share.Count) * 100 / float64(len(posts))
		}
		shares = append(shares, share)
	}
	return shares
}

// EngagementTotals sums the interaction counters
func EngagementTotals(posts []models.Post) models.Engagement {
	var e models.Engagement
	for _, post := range posts {
		e.Likes += post.LikeCount
		e.Replies += post.ReplyCount
		e.Reposts += post.RepostCount
		e.Quotes += post.QuoteCount
		e.Bookmarks += post.BookmarkCount
		e.Views += post.ViewCount
	}
	return e
}

// TopPostsByViews returns up to limit posts by descending view count, ties in input order
func TopPostsByViews(posts []models.Post, limit int) []models.Post {
	ranked := make([]models.Post, len(posts))
	copy(ranked, posts)

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].ViewCount > ranked[j].ViewCount
	})

	if len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}

// TopAuthorsByFollowers groups posts by handle, keeping the highest follower
// count and the first avatar seen, and returns up to limit authors
func TopAuthorsByFollowers(posts []models.Post, limit int) []models.AuthorStat {
	index := make(map[string]int)
	authors := make([]models.AuthorStat, 0)

	for _, post := range posts {
		if post.AuthorHandle == "" {
			continue
		}
		i, ok := index[post.AuthorHandle]
		if !ok {
			index[post.AuthorHandle] = len(authors)
			authors = append(authors, models.AuthorStat{
				Handle:    post.AuthorHandle,
				Followers: post.AuthorFollowers,
				Avatar:    post.AuthorAvatar,
			})
			continue
		}
		if post.AuthorFollowers > authors[i].Followers {
			authors[i].Followers = post.AuthorFollowers
		}
		if authors[i].Avatar == "" {
			authors[i].Avatar = post.AuthorAvatar
		}
	}

	sort.SliceStable(authors, func(i, j int) bool {
		return authors[i].Followers > authors[j].Followers
	})

	if len(authors) > limit {
		authors = authors[:limit]
	}
	return authors
}

// ChooseGranularity picks the bucket size from the calendar-day span between min and max
func ChooseGranularity(min, max time.Time) models.Granularity {
	days := calendarDays(min, max)
	switch {
	case days <= hourlyMaxDays:
		return models.ByHour
	case days <= dailyMaxDays:
		return models.ByDay
	default:
		return models.ByMonth
	}
}

func calendarDays(from, to time.Time) int {
	from, to = from.UTC(), to.UTC()
	start := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(end.Sub(start).Hours() / 24)
}

// BuildTimeline counts posts per time bucket in ascending order. Posts
// without a timestamp are left out.
func BuildTimeline(posts []models.Post) models.Timeline {
	var minT, maxT time.Time
	dated := 0
	for _, post := range posts {
		if post.CreatedAt == nil {
			continue
		}
		t := post.CreatedAt.UTC()
		if dated == 0 || t.Before(minT) {
			minT = t
		}
		if dated == 0 || t.After(maxT) {
			maxT = t
		}
		dated++
	}

	if dated == 0 {
		return models.Timeline{Granularity: models.ByDay, Buckets: []models.TimeBucket{}}
	}

	granularity := ChooseGranularity(minT, maxT)
	layout := bucketLayouts[granularity]

	counts := make(map[string]int)
	for _, post := range posts {
		if post.CreatedAt == nil {
			continue
		}
		counts[post.CreatedAt.UTC().Format(layout)]++
	}

	buckets := make([]models.TimeBucket, 0, len(counts))
	for key, count := range counts {
		buckets = append(buckets, models.TimeBucket{Key: key, Count: count})
	}
	// layouts are zero-padded, so lexical order is chronological
	sort.Slice(buckets, func(i, j int) bool {
		return buckets[i].Key < buckets[j].Key
	})

	return models.Timeline{Granularity: granularity, Buckets: buckets}
}

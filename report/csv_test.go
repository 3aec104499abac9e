package report

import (
	"bytes"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brettboylen/tweet-listener/models"
)

func TestWriteCSV(t *testing.T) {
	posted := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	posts := []models.Post{
		{
			URL: "u1", Text: "multi\nline, \"quoted\"", CreatedAt: &posted,
			AuthorHandle: "ana", AuthorFollowers: 120, AuthorAvatar: "a.jpg",
			LikeCount: 1, ReplyCount: 2, RepostCount: 3, QuoteCount: 4, BookmarkCount: 5, ViewCount: 600,
			Source: "web", Sentiment: models.Positive,
		},
		{URL: "u2", Text: "no date", Sentiment: models.Neutral},
	}

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, posts))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, CSVHeader, rows[0])
	assert.Equal(t, []string{
		"u1", "multi\nline, \"quoted\"", "2025-03-01T12:00:00Z", "ana", "120", "a.jpg",
		"1", "2", "3", "4", "5", "600", "web", "POSITIVE",
	}, rows[1])
	assert.Equal(t, "", rows[2][2])
	assert.Equal(t, "NEUTRAL", rows[2][13])
}

func TestWriteCSVEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))

	rows, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 1)
}

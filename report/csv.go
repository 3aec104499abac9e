package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/brettboylen/tweet-listener/models"
)

// CSVHeader is the flat column layout of the post export
var CSVHeader = []string{
	"url",
	"text",
	"createdAt",
	"author/userName",
	"author/followers",
	"author/profilePicture",
	"likeCount",
	"replyCount",
	"retweetCount",
	"quoteCount",
	"bookmarkCount",
	"viewCount",
	"source",
	"sentiment",
}

// WriteCSV writes one row per post
func WriteCSV(w io.Writer, posts []models.Post) error {
	writer := csv.NewWriter(w)

	if err := writer.Write(CSVHeader); err != nil {
		return fmt.Errorf("failed to write csv header: %w", err)
	}

	for i, post := range posts {
		createdAt := ""
		if post.CreatedAt != nil {
			createdAt = post.CreatedAt.UTC().Format(time.RFC3339)
		}

		row := []string{
			post.URL,
			post.Text,
			createdAt,
			post.AuthorHandle,
			strconv.FormatInt(post.AuthorFollowers, 10),
			post.AuthorAvatar,
			strconv.FormatInt(post.LikeCount, 10),
			strconv.FormatInt(post.ReplyCount, 10),
			strconv.FormatInt(post.RepostCount, 10),
			strconv.FormatInt(post.QuoteCount, 10),
			strconv.FormatInt(post.BookmarkCount, 10),
			strconv.FormatInt(post.ViewCount, 10),
			post.Source,
			string(post.Sentiment),
		}
		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write csv row %d: %w", i, err)
		}
	}

	writer.Flush()
	return writer.Error()
}

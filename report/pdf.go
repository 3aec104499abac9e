package report

import (
	"context"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/sirupsen/logrus"

	"github.com/brettboylen/tweet-listener/models"
)

const (
	maxAvatarBytes  = 2 << 20
	maxExcerptRunes = 320
	avatarSize      = 8.0
	rowHeight       = 6.0
)

var imageTypes = map[string]string{
	"jpeg": "JPG",
	"png":  "PNG",
	"gif":  "GIF",
}

// PDFRenderer lays out a run as a paginated document
type PDFRenderer struct {
	httpClient *http.Client
	tempRoot   string
	log        *logrus.Logger
}

// NewPDFRenderer creates a renderer; avatars are downloaded with httpClient
func NewPDFRenderer(httpClient *http.Client, log *logrus.Logger) *PDFRenderer {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &PDFRenderer{httpClient: httpClient, log: log}
}

// avatar is a downloaded image ready for registration
type avatar struct {
	path      string
	imageType string
}

// Render writes the report for run to w. Avatar files live in a temporary
// directory that is removed when Render returns, panics included.
func (r *PDFRenderer) Render(ctx context.Context, w io.Writer, run *models.RunResult) error {
	dir, err := os.MkdirTemp(r.tempRoot, "avatars-")
	if err != nil {
		return fmt.Errorf("failed to create avatar directory: %w", err)
	}
	defer os.RemoveAll(dir)

	avatars := r.fetchAvatars(ctx, dir, run.Statistics.TopAuthorsByFollowers)

	pdf := fpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetTitle("Social listening report", true)
	pdf.SetCreationDate(run.CreatedAt)
	pdf.AliasNbPages("")
	pdf.SetAutoPageBreak(true, 15)
	pdf.SetFooterFunc(func() {
		pdf.SetY(-12)
		pdf.SetFont("Helvetica", "I", 8)
		pdf.CellFormat(0, 8, fmt.Sprintf("Page %d/{nb}", pdf.PageNo()), "", 0, "C", false, 0, "")
	})

	pdf.AddPage()
	writeHeader(pdf, tr, run)
	writeSentiment(pdf, run.Statistics)
	writeEngagement(pdf, run.Statistics.Engagement)
	writeTopPosts(pdf, tr, run.Statistics.TopPostsByViews)
	writeTopAuthors(pdf, tr, run.Statistics.TopAuthorsByFollowers, avatars)

	writeThemeSet(pdf, tr, "Main themes", run.GlobalThemes)
	for _, set := range run.SentimentThemes {
		writeThemeSet(pdf, tr, fmt.Sprintf("Themes in %s posts", strings.ToLower(set.Scope)), set)
	}
	writeTimeline(pdf, run.Statistics.Timeline)

	if err := pdf.Output(w); err != nil {
		return fmt.Errorf("failed to render pdf: %w", err)
	}
	return nil
}

func (r *PDFRenderer) fetchAvatars(ctx context.Context, dir string, authors []models.AuthorStat) map[string]avatar {
	avatars := make(map[string]avatar)
	for i, author := range authors {
		if author.Avatar == "" {
			continue
		}
		path := filepath.Join(dir, fmt.Sprintf("avatar-%02d", i))
		imageType, err := r.download(ctx, author.Avatar, path)
		if err != nil {
			r.log.WithError(err).WithField("handle", author.Handle).Debug("Skipping avatar")
			continue
		}
		avatars[author.Handle] = avatar{path: path, imageType: imageType}
	}
	return avatars
}

// download stores the image at url in path and returns its fpdf image type
func (r *PDFRenderer) download(ctx context.Context, url, path string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("avatar request failed with status %d", resp.StatusCode)
	}

	file, err := os.Create(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	if _, err := io.Copy(file, io.LimitReader(resp.Body, maxAvatarBytes)); err != nil {
		return "", err
	}
	if _, err := file.Seek(0, io.SeekStart); err != nil {
		return "", err
	}

	_, format, err := image.DecodeConfig(file)
	if err != nil {
		return "", fmt.Errorf("unreadable avatar: %w", err)
	}
	imageType, ok := imageTypes[format]
	if !ok {
		return "", fmt.Errorf("unsupported avatar format %q", format)
	}
	return imageType, nil
}

func sectionTitle(pdf *fpdf.Fpdf, title string) {
	pdf.Ln(4)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.CellFormat(0, 8, title, "B", 1, "L", false, 0, "")
	pdf.Ln(2)
	pdf.SetFont("Helvetica", "", 10)
}

func writeHeader(pdf *fpdf.Fpdf, tr func(string) string, run *models.RunResult) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.CellFormat(0, 10, "Social listening report", "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	lines := []string{
		"Search terms: " + strings.Join(run.Query.SearchTerms, ", "),
		"Period: " + formatPeriod(run.Query),
		"Sort: " + string(run.Query.Sort),
		fmt.Sprintf("Posts analyzed: %d", run.Statistics.TotalPosts),
		"Generated: " + run.CreatedAt.UTC().Format("2006-01-02 15:04 MST"),
	}
	if run.Query.Context != "" {
		lines = append(lines, "Context: "+run.Query.Context)
	}
	if c := run.Classification; c.DegradedBatches+c.FailedBatches > 0 {
		lines = append(lines, fmt.Sprintf("Classification: %d of %d batches reconciled, %d failed (defaulted to NEUTRAL)",
			c.DegradedBatches, c.Batches, c.FailedBatches))
	}
	for _, line := range lines {
		pdf.MultiCell(0, 5, tr(line), "", "L", false)
	}
}

func formatPeriod(q models.Query) string {
	if q.Start.IsZero() && q.End.IsZero() {
		return "any"
	}
	return q.Start.Format("2006-01-02") + " to " + q.End.Format("2006-01-02")
}

func writeSentiment(pdf *fpdf.Fpdf, stats models.Statistics) {
	sectionTitle(pdf, "Sentiment distribution")

	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(50, rowHeight, "Sentiment", "1", 0, "L", false, 0, "")
	pdf.CellFormat(30, rowHeight, "Posts", "1", 0, "R", false, 0, "")
	pdf.CellFormat(30, rowHeight, "Share", "1", 1, "R", false, 0, "")

	pdf.SetFont("Helvetica", "", 10)
	for _, share := range stats.Sentiment {
		pdf.CellFormat(50, rowHeight, string(share.Label), "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, rowHeight, fmt.Sprintf("%d", share.Count), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, rowHeight, fmt.Sprintf("%.1f%%", share.Percentage), "1", 1, "R", false, 0, "")
	}
}

func writeEngagement(pdf *fpdf.Fpdf, e models.Engagement) {
	sectionTitle(pdf, "Engagement")

	rows := [][2]string{
		{"Views", fmt.Sprintf("%d", e.Views)},
		{"Likes", fmt.Sprintf("%d", e.Likes)},
		{"Replies", fmt.Sprintf("%d", e.Replies)},
		{"Reposts", fmt.Sprintf("%d", e.Reposts)},
		{"Quotes", fmt.Sprintf("%d", e.Quotes)},
		{"Bookmarks", fmt.Sprintf("%d", e.Bookmarks)},
	}
	for _, row := range rows {
		pdf.CellFormat(50, rowHeight, row[0], "1", 0, "L", false, 0, "")
		pdf.CellFormat(40, rowHeight, row[1], "1", 1, "R", false, 0, "")
	}
}

func writeTopPosts(pdf *fpdf.Fpdf, tr func(string) string, posts []models.Post) {
	sectionTitle(pdf, "Top posts by views")

	for i, post := range posts {
		pdf.SetFont("Helvetica", "B", 10)
		header := fmt.Sprintf("%d. @%s  |  %d views  |  %s", i+1, post.AuthorHandle, post.ViewCount, post.Sentiment)
		pdf.CellFormat(0, rowHeight, tr(header), "", 1, "L", false, 0, "")

		pdf.SetFont("Helvetica", "", 9)
		pdf.MultiCell(0, 4.5, tr(excerpt(post.Text)), "", "L", false)
		if post.URL != "" {
			pdf.SetTextColor(40, 80, 200)
			pdf.CellFormat(0, 4.5, tr(post.URL), "", 1, "L", false, 0, post.URL)
			pdf.SetTextColor(0, 0, 0)
		}
		pdf.Ln(1.5)
	}
}

// excerpt flattens text and cuts it to a few lines worth of characters
func excerpt(text string) string {
	runes := []rune(strings.Join(strings.Fields(text), " "))
	if len(runes) > maxExcerptRunes {
		return string(runes[:maxExcerptRunes]) + "..."
	}
	return string(runes)
}

func writeTopAuthors(pdf *fpdf.Fpdf, tr func(string) string, authors []models.AuthorStat, avatars map[string]avatar) {
	sectionTitle(pdf, "Top authors by followers")

	for i, author := range authors {
		x, y := pdf.GetX(), pdf.GetY()
		if img, ok := avatars[author.Handle]; ok {
			pdf.ImageOptions(img.path, x, y, avatarSize, avatarSize, false,
				fpdf.ImageOptions{ImageType: img.imageType}, 0, "")
			if pdf.Err() {
				// a broken image must not sink the report
				pdf.ClearError()
			}
		}
		pdf.SetX(x + avatarSize + 2)
		line := fmt.Sprintf("%d. @%s  (%d followers)", i+1, author.Handle, author.Followers)
		pdf.CellFormat(0, avatarSize, tr(line), "", 1, "L", false, 0, "")
		pdf.Ln(1)
	}
}

func writeThemeSet(pdf *fpdf.Fpdf, tr func(string) string, title string, set models.ThemeSet) {
	sectionTitle(pdf, title)

	if set.Status != models.ThemesStructured {
		pdf.MultiCell(0, 5, tr(set.Raw), "", "L", false)
		return
	}

	for i, theme := range set.Themes {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.MultiCell(0, 5, tr(fmt.Sprintf("%d. %s", i+1, theme.Name)), "", "L", false)
		pdf.SetFont("Helvetica", "", 10)
		if theme.Explanation != "" {
			pdf.MultiCell(0, 5, tr(theme.Explanation), "", "L", false)
		}
		if theme.ExampleQuote != "" {
			example := fmt.Sprintf("\"%s\"", theme.ExampleQuote)
			if theme.ExampleAuthor != "" {
				example += " - @" + theme.ExampleAuthor
			}
			pdf.SetFont("Helvetica", "I", 9)
			pdf.MultiCell(0, 5, tr(example), "", "L", false)
		}
		pdf.Ln(2)
	}
}

func writeTimeline(pdf *fpdf.Fpdf, timeline models.Timeline) {
	sectionTitle(pdf, fmt.Sprintf("Posts per %s", timeline.Granularity))

	if len(timeline.Buckets) == 0 {
		pdf.MultiCell(0, 5, "No dated posts.", "", "L", false)
		return
	}

	pdf.SetFont("Helvetica", "B", 10)
	pdf.CellFormat(50, rowHeight, "Period", "1", 0, "L", false, 0, "")
	pdf.CellFormat(30, rowHeight, "Posts", "1", 1, "R", false, 0, "")
	pdf.SetFont("Helvetica", "", 10)
	for _, bucket := range timeline.Buckets {
		pdf.CellFormat(50, rowHeight, bucket.Key, "1", 0, "L", false, 0, "")
		pdf.CellFormat(30, rowHeight, fmt.Sprintf("%d", bucket.Count), "1", 1, "R", false, 0, "")
	}
}

package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/tweet-listener/models"
)

const (
	apifyBaseURL    = "https://api.apify.com/v2"
	defaultMaxItems = 10000
	apifyDateLayout = "2006-01-02"
)

// PostSource fetches raw post records for a query
type PostSource interface {
	FetchPosts(ctx context.Context, query models.Query) ([]models.RawRecord, error)
}

// ApifyClient runs a tweet scraper actor synchronously and returns its dataset
type ApifyClient struct {
	baseURL    string
	token      string
	actor      string
	maxItems   int
	httpClient *http.Client
	log        *logrus.Logger
}

// apifyInput is the actor input document
type apifyInput struct {
	SearchTerms []string `json:"searchTerms"`
	Start       string   `json:"start,omitempty"`
	End         string   `json:"end,omitempty"`
	Sort        string   `json:"sort"`
	MaxItems    int      `json:"maxItems"`
}

// NewApifyClient creates a new Apify client
func NewApifyClient(token, actor string, maxItems int, timeout time.Duration, log *logrus.Logger) *ApifyClient {
	if maxItems <= 0 {
		maxItems = defaultMaxItems
	}
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}

	return &ApifyClient{
		baseURL:    apifyBaseURL,
		token:      token,
		actor:      actor,
		maxItems:   maxItems,
		httpClient: &http.Client{Timeout: timeout},
		log:        log,
	}
}

// WithBaseURL points the client at a different API root
func (a *ApifyClient) WithBaseURL(baseURL string) *ApifyClient {
	a.baseURL = baseURL
	return a
}

// FetchPosts runs the actor for the query. SortBoth issues one run per sort mode
// and concatenates the results; duplicates are removed later by the normalizer.
func (a *ApifyClient) FetchPosts(ctx context.Context, query models.Query) ([]models.RawRecord, error) {
	if query.Sort != models.SortBoth {
		return a.runActor(ctx, query)
	}

	var records []models.RawRecord
	for _, mode := range []models.SortMode{models.SortTop, models.SortLatest} {
		q := query
		q.Sort = mode
		batch, err := a.runActor(ctx, q)
		if err != nil {
			return nil, err
		}
		records = append(records, batch...)
	}
	return records, nil
}

func (a *ApifyClient) runActor(ctx context.Context, query models.Query) ([]models.RawRecord, error) {
	maxItems := query.MaxItems
	if maxItems <= 0 {
		maxItems = a.maxItems
	}
	sort := query.Sort
	if sort == "" {
		sort = models.SortTop
	}

	input := apifyInput{
		SearchTerms: query.SearchTerms,
		Sort:        string(sort),
		MaxItems:    maxItems,
	}
	if !query.Start.IsZero() {
		input.Start = query.Start.Format(apifyDateLayout)
	}
	if !query.End.IsZero() {
		input.End = query.End.Format(apifyDateLayout)
	}

	body, err := json.Marshal(input)
	if err != nil {
		return nil, fmt.Errorf("failed to encode actor input: %w", err)
	}

	endpoint := fmt.Sprintf("%s/acts/%s/run-sync-get-dataset-items?token=%s",
		a.baseURL, url.PathEscape(a.actor), url.QueryEscape(a.token))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	a.log.WithFields(logrus.Fields{
		"actor":        a.actor,
		"search_terms": query.SearchTerms,
		"sort":         sort,
		"max_items":    maxItems,
	}).Info("Running scraper actor")

	started := time.Now()
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		a.log.WithFields(logrus.Fields{
			"status_code":   resp.StatusCode,
			"response_body": string(body),
		}).Error("Apify API error response")
		return nil, fmt.Errorf("actor run failed with status %d: %s", resp.StatusCode, string(body))
	}

	decoder := json.NewDecoder(resp.Body)
	decoder.UseNumber()

	var records []models.RawRecord
	if err := decoder.Decode(&records); err != nil {
		return nil, fmt.Errorf("failed to decode dataset items: %w", err)
	}

	a.log.WithFields(logrus.Fields{
		"count":    len(records),
		"sort":     sort,
		"duration": time.Since(started).String(),
	}).Info("Fetched dataset items")

	return records, nil
}

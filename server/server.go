package server

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/brettboylen/tweet-listener/db"
	"github.com/brettboylen/tweet-listener/models"
	"github.com/brettboylen/tweet-listener/report"
	"github.com/brettboylen/tweet-listener/stats"
	"github.com/brettboylen/tweet-listener/utils"
)

const (
	dateLayout       = "2006-01-02"
	defaultListLimit = 20
	defaultTopLimit  = 10
	maxListLimit     = 200
)

// Runner executes pipeline runs
type Runner interface {
	Run(ctx context.Context, query models.Query) (*models.RunResult, error)
	GetLatest() *models.RunResult
}

// RunReader loads stored runs
type RunReader interface {
	GetRun(id string) (*models.RunResult, error)
	ListRuns(limit int) ([]models.RunSummary, error)
	GetTopPostsByViews(runID string, limit int) ([]models.Post, error)
}

// ReportRenderer writes a run as a document
type ReportRenderer interface {
	Render(ctx context.Context, w io.Writer, run *models.RunResult) error
}

// Server exposes the pipeline over HTTP
type Server struct {
	echo     *echo.Echo
	runner   Runner
	runs     RunReader
	renderer ReportRenderer
	log      *logrus.Logger
}

// runRequest is the body of POST /api/runs. Terms may come as a list or as
// one comma/newline separated string.
type runRequest struct {
	SearchTerms []string `json:"search_terms"`
	Terms       string   `json:"terms"`
	Start       string   `json:"start"`
	End         string   `json:"end"`
	Sort        string   `json:"sort"`
	MaxItems    int      `json:"max_items"`
	Context     string   `json:"context"`
}

// New builds the echo instance with middleware and routes
func New(runner Runner, runs RunReader, renderer ReportRenderer, maxRequestsPerMinute int, log *logrus.Logger) *Server {
	e := echo.New()
	e.HideBanner = true

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	if maxRequestsPerMinute > 0 {
		requestsPerSecond := float64(maxRequestsPerMinute) / 60.0

		rateLimiterConfig := middleware.RateLimiterConfig{
			Skipper: func(c echo.Context) bool {
				return c.Path() == "/healthz"
			},
			Store: middleware.NewRateLimiterMemoryStoreWithConfig(
				middleware.RateLimiterMemoryStoreConfig{
					Rate:      rate.Limit(requestsPerSecond),
					Burst:     maxRequestsPerMinute,
					ExpiresIn: 3 * time.Minute,
				},
			),
			IdentifierExtractor: func(ctx echo.Context) (string, error) {
				return ctx.RealIP(), nil
			},
			ErrorHandler: func(ctx echo.Context, err error) error {
				return ctx.JSON(http.StatusForbidden, errorBody("Unable to identify client"))
			},
			DenyHandler: func(ctx echo.Context, identifier string, err error) error {
				return ctx.JSON(http.StatusTooManyRequests, errorBody("Rate limit exceeded, please try again later"))
			},
		}
		e.Use(middleware.RateLimiterWithConfig(rateLimiterConfig))
	}

	s := &Server{
		echo:     e,
		runner:   runner,
		runs:     runs,
		renderer: renderer,
		log:      log,
	}

	e.POST("/api/runs", s.createRun)
	e.GET("/api/runs", s.listRuns)
	e.GET("/api/runs/:id", s.getRun)
	e.GET("/api/runs/:id/top-posts", s.topPosts)
	e.GET("/api/runs/:id/posts.csv", s.exportCSV)
	e.GET("/api/runs/:id/report.pdf", s.exportPDF)
	e.GET("/api/stats", s.latestStatistics)

	e.GET("/healthz", func(c echo.Context) error {
		return c.String(http.StatusOK, "OK")
	})

	return s
}

// Handler returns the underlying http handler
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves on port until ctx is cancelled, then shuts down gracefully
func (s *Server) Start(ctx context.Context, port int) error {
	errCh := make(chan error, 1)
	go func() {
		serverAddr := fmt.Sprintf(":%d", port)
		s.log.WithField("port", port).Info("Starting API server")
		if err := s.echo.Start(serverAddr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("API server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.log.Info("Shutting down API server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return s.echo.Shutdown(shutdownCtx)
}

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// ParseQuery turns request fields into a pipeline query
func ParseQuery(terms []string, rawTerms, start, end, sort string, maxItems int, hint string) (models.Query, error) {
	query := models.Query{
		SearchTerms: terms,
		Sort:        models.SortMode(sort),
		MaxItems:    maxItems,
		Context:     hint,
	}
	if len(query.SearchTerms) == 0 {
		query.SearchTerms = utils.ParseSearchTerms(rawTerms)
	}

	var err error
	if start != "" {
		if query.Start, err = time.Parse(dateLayout, start); err != nil {
			return query, fmt.Errorf("%w: start must be YYYY-MM-DD", stats.ErrInvalidQuery)
		}
	}
	if end != "" {
		if query.End, err = time.Parse(dateLayout, end); err != nil {
			return query, fmt.Errorf("%w: end must be YYYY-MM-DD", stats.ErrInvalidQuery)
		}
	}

	return query, stats.ValidateQuery(query)
}

func (s *Server) createRun(c echo.Context) error {
	var req runRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, errorBody("Invalid request body"))
	}

	query, err := ParseQuery(req.SearchTerms, req.Terms, req.Start, req.End, req.Sort, req.MaxItems, req.Context)
	if err != nil {
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	}

	run, err := s.runner.Run(c.Request().Context(), query)
	switch {
	case err == nil:
		return c.JSON(http.StatusCreated, run)
	case errors.Is(err, stats.ErrInvalidQuery):
		return c.JSON(http.StatusBadRequest, errorBody(err.Error()))
	case errors.Is(err, stats.ErrNoResults):
		return c.JSON(http.StatusUnprocessableEntity, errorBody(err.Error()))
	default:
		s.log.WithError(err).Error("Run failed")
		return c.JSON(http.StatusInternalServerError, errorBody("Run failed"))
	}
}

// limitParam reads the optional limit query parameter
func limitParam(c echo.Context, fallback int) (int, bool) {
	raw := c.QueryParam("limit")
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, false
	}
	return min(n, maxListLimit), true
}

func (s *Server) listRuns(c echo.Context) error {
	limit, ok := limitParam(c, defaultListLimit)
	if !ok {
		return c.JSON(http.StatusBadRequest, errorBody("limit must be a positive integer"))
	}

	runs, err := s.runs.ListRuns(limit)
	if err != nil {
		s.log.WithError(err).Error("Failed to list runs")
		return c.JSON(http.StatusInternalServerError, errorBody("Failed to list runs"))
	}
	return c.JSON(http.StatusOK, runs)
}

// loadRun resolves a run by id, writing the error response itself when it fails
func (s *Server) loadRun(c echo.Context) (*models.RunResult, error) {
	id := c.Param("id")

	run, err := s.runs.GetRun(id)
	if errors.Is(err, db.ErrRunNotFound) {
		return nil, c.JSON(http.StatusNotFound, errorBody(fmt.Sprintf("No run with id %s", id)))
	}
	if err != nil {
		s.log.WithError(err).WithField("run_id", id).Error("Failed to load run")
		return nil, c.JSON(http.StatusInternalServerError, errorBody("Failed to load run"))
	}
	return run, nil
}

func (s *Server) getRun(c echo.Context) error {
	run, err := s.loadRun(c)
	if run == nil {
		return err
	}
	return c.JSON(http.StatusOK, run)
}

// topPosts reads the most viewed posts of a stored run straight from the posts table
func (s *Server) topPosts(c echo.Context) error {
	limit, ok := limitParam(c, defaultTopLimit)
	if !ok {
		return c.JSON(http.StatusBadRequest, errorBody("limit must be a positive integer"))
	}

	posts, err := s.runs.GetTopPostsByViews(c.Param("id"), limit)
	if err != nil {
		s.log.WithError(err).WithField("run_id", c.Param("id")).Error("Failed to load top posts")
		return c.JSON(http.StatusInternalServerError, errorBody("Failed to load top posts"))
	}
	if posts == nil {
		posts = []models.Post{}
	}
	return c.JSON(http.StatusOK, posts)
}

func (s *Server) exportCSV(c echo.Context) error {
	run, err := s.loadRun(c)
	if run == nil {
		return err
	}

	res := c.Response()
	res.Header().Set(echo.HeaderContentType, "text/csv; charset=utf-8")
	res.Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="posts-%s.csv"`, run.ID))
	res.WriteHeader(http.StatusOK)

	return report.WriteCSV(res, run.Posts)
}

func (s *Server) exportPDF(c echo.Context) error {
	run, err := s.loadRun(c)
	if run == nil {
		return err
	}

	// buffered so a failed render can still answer with a JSON error
	var buf bytes.Buffer
	if err := s.renderer.Render(c.Request().Context(), &buf, run); err != nil {
		s.log.WithError(err).WithField("run_id", run.ID).Error("Failed to render report")
		return c.JSON(http.StatusInternalServerError, errorBody("Failed to render report"))
	}

	c.Response().Header().Set(echo.HeaderContentDisposition, fmt.Sprintf(`attachment; filename="report-%s.pdf"`, run.ID))
	return c.Blob(http.StatusOK, "application/pdf", buf.Bytes())
}

func (s *Server) latestStatistics(c echo.Context) error {
	run := s.runner.GetLatest()
	if run == nil {
		return c.JSON(http.StatusNotFound, errorBody("No run has completed yet"))
	}
	return c.JSON(http.StatusOK, run.Statistics)
}

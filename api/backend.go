package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

// Generator is a text-in/text-out language model backend
type Generator interface {
	Generate(ctx context.Context, prompt string, temperature float32) (string, error)
}

// BackendOptions configures NewGenerator
type BackendOptions struct {
	Provider             string
	APIKey               string
	Model                string
	MaxRequestsPerMinute int
	Timeout              time.Duration
	MaxRetries           int
}

// ErrEmptyCompletion is returned when the backend answers with no text
var ErrEmptyCompletion = errors.New("backend returned an empty completion")

// StatusError is a backend failure that carries the HTTP status of the call
type StatusError struct {
	StatusCode int
	Err        error
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("status %d: %v", e.StatusCode, e.Err)
}

func (e *StatusError) Unwrap() error {
	return e.Err
}

// isPermanent reports whether retrying err cannot help: client errors other
// than timeouts and rate limiting
func isPermanent(err error) bool {
	var statusErr *StatusError
	if !errors.As(err, &statusErr) {
		return false
	}
	code := statusErr.StatusCode
	return code >= 400 && code < 500 &&
		code != http.StatusRequestTimeout && code != http.StatusTooManyRequests
}

// NewGenerator builds the provider client and wraps it with rate limiting,
// per-call timeouts and retries. The returned close func releases the client.
func NewGenerator(ctx context.Context, opts BackendOptions, log *logrus.Logger) (Generator, func() error, error) {
	var (
		base    Generator
		closeFn = func() error { return nil }
	)

	switch opts.Provider {
	case "gemini", "":
		gemini, err := NewGeminiGenerator(ctx, opts.APIKey, opts.Model)
		if err != nil {
			return nil, nil, err
		}
		base, closeFn = gemini, gemini.Close
	case "claude":
		base = NewClaudeGenerator(opts.APIKey, opts.Model)
	default:
		return nil, nil, fmt.Errorf("unknown backend provider %q", opts.Provider)
	}

	log.WithFields(logrus.Fields{
		"provider":        opts.Provider,
		"model":           opts.Model,
		"requests_minute": opts.MaxRequestsPerMinute,
		"max_retries":     opts.MaxRetries,
	}).Info("Text generation backend configured")

	return NewResilientGenerator(base, opts.MaxRequestsPerMinute, opts.Timeout, opts.MaxRetries, log), closeFn, nil
}

// ResilientGenerator decorates a Generator with a shared rate limiter, a
// per-attempt timeout and exponential backoff retries. Client errors reported
// as a StatusError are not retried. Safe for concurrent use.
type ResilientGenerator struct {
	next       Generator
	limiter    *rate.Limiter
	timeout    time.Duration
	maxRetries int
	log        *logrus.Logger

	// newBackOff is swapped in tests to avoid real sleeps
	newBackOff func() backoff.BackOff
}

// NewResilientGenerator wraps next. requestsPerMinute <= 0 disables rate limiting.
func NewResilientGenerator(next Generator, requestsPerMinute int, timeout time.Duration, maxRetries int, log *logrus.Logger) *ResilientGenerator {
	limit := rate.Inf
	if requestsPerMinute > 0 {
		limit = rate.Limit(float64(requestsPerMinute) / 60.0)
	}
	if maxRetries < 0 {
		maxRetries = 0
	}

	return &ResilientGenerator{
		next:       next,
		limiter:    rate.NewLimiter(limit, 1),
		timeout:    timeout,
		maxRetries: maxRetries,
		log:        log,
		newBackOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 2 * time.Second
			b.MaxInterval = 30 * time.Second
			return b
		},
	}
}

// Generate waits for a rate limiter slot and calls the backend, retrying failures
func (g *ResilientGenerator) Generate(ctx context.Context, prompt string, temperature float32) (string, error) {
	var completion string
	attempt := 0

	operation := func() error {
		attempt++
		if err := g.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(fmt.Errorf("rate limiter: %w", err))
		}

		callCtx := ctx
		if g.timeout > 0 {
			var cancel context.CancelFunc
			callCtx, cancel = context.WithTimeout(ctx, g.timeout)
			defer cancel()
		}

		text, err := g.next.Generate(callCtx, prompt, temperature)
		if err != nil {
			if ctx.Err() != nil || isPermanent(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		completion = text
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(g.newBackOff(), uint64(g.maxRetries)), ctx)
	notify := func(err error, wait time.Duration) {
		g.log.WithError(err).WithFields(logrus.Fields{
			"attempt": attempt,
			"wait":    wait.String(),
		}).Warn("Backend call failed, retrying")
	}

	if err := backoff.RetryNotify(operation, policy, notify); err != nil {
		return "", err
	}
	return completion, nil
}

package sentiment

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/brettboylen/tweet-listener/api"
	"github.com/brettboylen/tweet-listener/models"
)

const (
	DefaultBatchSize = 50
	DefaultWorkers   = 5

	classifyTemperature = 0.2
)

// Result is the output of one classification pass
type Result struct {
	// Labels has one entry per input text, in input order
	Labels  []models.SentimentLabel
	Summary models.ClassificationSummary
}

// ProgressFunc is called after each batch completes
type ProgressFunc func(done, total int)

// Classifier assigns a sentiment label to every text using a Generator
type Classifier struct {
	backend   api.Generator
	batchSize int
	workers   int
	log       *logrus.Logger
	progress  ProgressFunc
}

// NewClassifier creates a classifier. Non-positive sizes fall back to the defaults.
func NewClassifier(backend api.Generator, batchSize, workers int, log *logrus.Logger) *Classifier {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if workers <= 0 {
		workers = DefaultWorkers
	}

	return &Classifier{
		backend:   backend,
		batchSize: batchSize,
		workers:   workers,
		log:       log,
	}
}

// OnProgress registers a progress callback
func (c *Classifier) OnProgress(fn ProgressFunc) {
	c.progress = fn
}

// batch is a contiguous [start, end) window over the input
type batch struct {
	index int
	start int
	end   int
}

// Classify labels every text. It never fails: a batch whose backend call errors
// or whose response cannot be fully parsed degrades to NEUTRAL for the missing
// labels, and the returned slice always has len(texts) entries.
func (c *Classifier) Classify(ctx context.Context, texts []string, hint string) Result {
	labels := make([]models.SentimentLabel, len(texts))
	batches := c.partition(len(texts))
	result := Result{Labels: labels, Summary: models.ClassificationSummary{Batches: len(batches)}}

	if len(batches) == 0 {
		return result
	}

	c.log.WithFields(logrus.Fields{
		"posts":      len(texts),
		"batches":    len(batches),
		"batch_size": c.batchSize,
		"workers":    c.workers,
	}).Info("Classifying posts")

	var (
		mu       sync.Mutex
		done     int
		degraded int
		failed   int
	)

	// batches write disjoint windows of labels, so only the counters need the lock
	g := new(errgroup.Group)
	g.SetLimit(c.workers)

	started := time.Now()
	for _, b := range batches {
		b := b
		g.Go(func() error {
			ok, clean := c.classifyBatch(ctx, b, texts[b.start:b.end], hint, labels[b.start:b.end])

			mu.Lock()
			done++
			if !ok {
				failed++
			} else if !clean {
				degraded++
			}
			current := done
			mu.Unlock()

			if c.progress != nil {
				c.progress(current, len(batches))
			}
			return nil
		})
	}
	_ = g.Wait()

	result.Summary.DegradedBatches = degraded
	result.Summary.FailedBatches = failed

	c.log.WithFields(logrus.Fields{
		"batches":          len(batches),
		"degraded_batches": degraded,
		"failed_batches":   failed,
		"duration":         time.Since(started).String(),
	}).Info("Classification finished")

	return result
}

func (c *Classifier) partition(n int) []batch {
	batches := make([]batch, 0, (n+c.batchSize-1)/c.batchSize)
	for start := 0; start < n; start += c.batchSize {
		end := min(start+c.batchSize, n)
		batches = append(batches, batch{index: len(batches), start: start, end: end})
	}
	return batches
}

// classifyBatch fills out with exactly len(texts) labels. ok is false when the
// backend call failed; clean is false when the response needed reconciliation.
func (c *Classifier) classifyBatch(ctx context.Context, b batch, texts []string, hint string, out []models.SentimentLabel) (ok, clean bool) {
	logger := c.log.WithFields(logrus.Fields{
		"batch": b.index,
		"start": b.start,
		"size":  len(texts),
	})

	response, err := c.backend.Generate(ctx, buildPrompt(texts, hint), classifyTemperature)
	if err != nil {
		logger.WithError(err).Warn("Classification batch failed, defaulting to NEUTRAL")
		for i := range out {
			out[i] = models.Neutral
		}
		return false, false
	}

	labels, recovered, mode := parseLabels(response, len(texts))
	copy(out, labels)

	clean = recovered == len(texts)
	if mode == parseSequential && countLabels(response) > len(texts) {
		clean = false
	}

	if !clean {
		logger.WithFields(logrus.Fields{
			"recovered": recovered,
			"mode":      mode,
		}).Warn("Classification response did not match batch size, reconciled")
	} else {
		logger.Debug("Classification batch complete")
	}

	return true, clean
}

// buildPrompt numbers each text from 1 and asks for one label per line
func buildPrompt(texts []string, hint string) string {
	var sb strings.Builder

	if hint = strings.TrimSpace(hint); hint != "" {
		fmt.Fprintf(&sb, "CONTEXT: %s\n\n", hint)
	}

	fmt.Fprintf(&sb, "Classify the sentiment of each of the following %d posts as POSITIVE, NEGATIVE or NEUTRAL.\n", len(texts))
	sb.WriteString("Answer with exactly one line per post, in the form `<number>: <LABEL>`, using only those three labels and nothing else.\n\n")

	for i, text := range texts {
		fmt.Fprintf(&sb, "%d. %s\n", i+1, flatten(text))
	}

	return sb.String()
}

// flatten collapses whitespace so each post stays on its numbered line
func flatten(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

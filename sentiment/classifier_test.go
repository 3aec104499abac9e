package sentiment

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brettboylen/tweet-listener/models"
)

func quietLogger() *logrus.Logger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return log
}

var numberedLineRe = regexp.MustCompile(`(?m)^(\d+)\. (.*)$`)

// keywordBackend answers every numbered post with a label derived from its text
type keywordBackend struct {
	calls   atomic.Int32
	respond func(prompt string, lines [][]string) (string, error)
	delay   func(prompt string) time.Duration
}

func (k *keywordBackend) Generate(ctx context.Context, prompt string, temperature float32) (string, error) {
	k.calls.Add(1)
	if k.delay != nil {
		time.Sleep(k.delay(prompt))
	}
	lines := numberedLineRe.FindAllStringSubmatch(prompt, -1)
	if k.respond != nil {
		return k.respond(prompt, lines)
	}
	return answerByKeyword(lines), nil
}

func answerByKeyword(lines [][]string) string {
	var sb strings.Builder
	for _, line := range lines {
		fmt.Fprintf(&sb, "%s: %s\n", line[1], expectedLabel(line[2]))
	}
	return sb.String()
}

func expectedLabel(text string) models.SentimentLabel {
	switch {
	case strings.Contains(text, "love"):
		return models.Positive
	case strings.Contains(text, "hate"):
		return models.Negative
	}
	return models.Neutral
}

func makeTexts(n int) []string {
	words := []string{"love", "hate", "meh"}
	texts := make([]string, n)
	for i := range texts {
		texts[i] = fmt.Sprintf("post %d i %s it", i, words[i%3])
	}
	return texts
}

func TestClassifyEmpty(t *testing.T) {
	backend := &keywordBackend{}
	c := NewClassifier(backend, 50, 5, quietLogger())

	result := c.Classify(context.Background(), nil, "")
	assert.Empty(t, result.Labels)
	assert.Zero(t, result.Summary.Batches)
	assert.Zero(t, backend.calls.Load())
}

func TestClassifyBatching(t *testing.T) {
	tests := []struct {
		name        string
		n           int
		batchSize   int
		wantBatches int
	}{
		{"single partial batch", 7, 50, 1},
		{"exact multiple", 100, 50, 2},
		{"remainder batch", 120, 50, 3},
		{"batch of one", 3, 1, 3},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			backend := &keywordBackend{}
			c := NewClassifier(backend, tc.batchSize, 5, quietLogger())
			texts := makeTexts(tc.n)

			result := c.Classify(context.Background(), texts, "brand monitoring")
			require.Len(t, result.Labels, tc.n)
			assert.Equal(t, tc.wantBatches, result.Summary.Batches)
			assert.Equal(t, int32(tc.wantBatches), backend.calls.Load())
			assert.Zero(t, result.Summary.DegradedBatches)
			assert.Zero(t, result.Summary.FailedBatches)
			for i, text := range texts {
				assert.Equal(t, expectedLabel(text), result.Labels[i], "post %d", i)
			}
		})
	}
}

func TestClassifyLengthInvariant(t *testing.T) {
	responders := map[string]func(string, [][]string) (string, error){
		"error": func(string, [][]string) (string, error) {
			return "", errors.New("quota exceeded")
		},
		"truncated": func(_ string, lines [][]string) (string, error) {
			return answerByKeyword(lines[:len(lines)/2]), nil
		},
		"over long": func(_ string, lines [][]string) (string, error) {
			return strings.Repeat("POSITIVE\n", len(lines)+10), nil
		},
		"garbage": func(string, [][]string) (string, error) {
			return "¯\\_(ツ)_/¯", nil
		},
	}

	for name, respond := range responders {
		t.Run(name, func(t *testing.T) {
			for _, n := range []int{1, 49, 50, 51, 137} {
				c := NewClassifier(&keywordBackend{respond: respond}, 50, 5, quietLogger())
				result := c.Classify(context.Background(), makeTexts(n), "")
				require.Len(t, result.Labels, n)
				for _, label := range result.Labels {
					assert.Contains(t, models.SentimentLabels, label)
				}
			}
		})
	}
}

func TestClassifyBackendErrorDefaultsBatchToNeutral(t *testing.T) {
	backend := &keywordBackend{
		respond: func(prompt string, lines [][]string) (string, error) {
			if strings.Contains(prompt, "post 0 ") {
				return "", errors.New("connection reset")
			}
			return answerByKeyword(lines), nil
		},
	}
	c := NewClassifier(backend, 10, 2, quietLogger())
	texts := makeTexts(25)

	result := c.Classify(context.Background(), texts, "")
	require.Len(t, result.Labels, 25)
	assert.Equal(t, 1, result.Summary.FailedBatches)
	assert.Zero(t, result.Summary.DegradedBatches)

	for i := 0; i < 10; i++ {
		assert.Equal(t, models.Neutral, result.Labels[i])
	}
	for i := 10; i < 25; i++ {
		assert.Equal(t, expectedLabel(texts[i]), result.Labels[i])
	}
}

func TestClassifyTruncatedResponsePadsTail(t *testing.T) {
	backend := &keywordBackend{
		respond: func(_ string, lines [][]string) (string, error) {
			return answerByKeyword(lines[:3]), nil
		},
	}
	c := NewClassifier(backend, 5, 1, quietLogger())
	texts := makeTexts(5)

	result := c.Classify(context.Background(), texts, "")
	assert.Equal(t, 1, result.Summary.DegradedBatches)
	assert.Equal(t, []models.SentimentLabel{P, N, U, U, U}, result.Labels)
}

func TestClassifyPreservesOrderUnderReorderedCompletion(t *testing.T) {
	// later batches finish first
	backend := &keywordBackend{
		delay: func(prompt string) time.Duration {
			first := numberedLineRe.FindStringSubmatch(prompt)
			var idx int
			fmt.Sscanf(first[2], "post %d", &idx)
			return time.Duration(100-idx) * time.Millisecond
		},
	}
	c := NewClassifier(backend, 10, 5, quietLogger())
	texts := makeTexts(100)

	var mu sync.Mutex
	var progress []int
	c.OnProgress(func(done, total int) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 10, total)
		progress = append(progress, done)
	})

	result := c.Classify(context.Background(), texts, "")
	require.Len(t, result.Labels, 100)
	for i, text := range texts {
		assert.Equal(t, expectedLabel(text), result.Labels[i], "post %d", i)
	}
	assert.Len(t, progress, 10)
}

func TestClassifyIdempotent(t *testing.T) {
	backend := &keywordBackend{
		respond: func(_ string, lines [][]string) (string, error) {
			return answerByKeyword(lines[:len(lines)-1]), nil
		},
	}
	c := NewClassifier(backend, 7, 3, quietLogger())
	texts := makeTexts(40)

	first := c.Classify(context.Background(), texts, "ctx")
	second := c.Classify(context.Background(), texts, "ctx")
	assert.Equal(t, first.Labels, second.Labels)
	assert.Equal(t, first.Summary, second.Summary)
}

func TestClassifyMalformedBatchScenario(t *testing.T) {
	// 120 posts in 3 batches; the middle batch gets a malformed answer
	backend := &keywordBackend{
		respond: func(prompt string, lines [][]string) (string, error) {
			if strings.Contains(prompt, "post 50 ") {
				return "{\"error\": \"unexpected token\"", nil
			}
			var sb strings.Builder
			sb.WriteString("```json\n{")
			for i, line := range lines {
				if i > 0 {
					sb.WriteString(", ")
				}
				fmt.Fprintf(&sb, "%q: %q", line[1], expectedLabel(line[2]))
			}
			sb.WriteString("}\n```")
			return sb.String(), nil
		},
	}
	c := NewClassifier(backend, 50, 5, quietLogger())
	texts := makeTexts(120)

	result := c.Classify(context.Background(), texts, "elections")
	require.Len(t, result.Labels, 120)
	assert.Equal(t, 3, result.Summary.Batches)
	assert.Equal(t, 1, result.Summary.DegradedBatches)
	assert.Zero(t, result.Summary.FailedBatches)

	for i, text := range texts {
		if i >= 50 && i < 100 {
			assert.Equal(t, models.Neutral, result.Labels[i], "post %d", i)
			continue
		}
		assert.Equal(t, expectedLabel(text), result.Labels[i], "post %d", i)
	}
}

func TestBuildPrompt(t *testing.T) {
	prompt := buildPrompt([]string{"first\npost", "  second   post "}, "bank launch")

	assert.Contains(t, prompt, "CONTEXT: bank launch")
	assert.Contains(t, prompt, "1. first post\n")
	assert.Contains(t, prompt, "2. second post\n")
	assert.Contains(t, prompt, "POSITIVE, NEGATIVE or NEUTRAL")

	assert.NotContains(t, buildPrompt([]string{"x"}, "  "), "CONTEXT")
}

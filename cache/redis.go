package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"

	"github.com/brettboylen/tweet-listener/api"
	"github.com/brettboylen/tweet-listener/models"
)

const (
	keyPrefix  = "tweet-listener:posts:"
	DefaultTTL = time.Hour
)

// CachedSource serves repeated queries from Redis instead of re-running the scraper.
// Cache errors never fail a fetch; they only cost a cache miss.
type CachedSource struct {
	next   api.PostSource
	client *redis.Client
	ttl    time.Duration
	log    *logrus.Logger
}

// NewCachedSource wraps next with a Redis-backed cache
func NewCachedSource(next api.PostSource, client *redis.Client, ttl time.Duration, log *logrus.Logger) *CachedSource {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &CachedSource{next: next, client: client, ttl: ttl, log: log}
}

// NewClient connects to Redis and checks the connection
func NewClient(ctx context.Context, addr, password string, db int) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to redis at %s: %w", addr, err)
	}
	return client, nil
}

// FetchPosts returns cached records for the query or fetches and stores them.
// Empty results are not cached.
func (c *CachedSource) FetchPosts(ctx context.Context, query models.Query) ([]models.RawRecord, error) {
	key := Key(query)
	logger := c.log.WithField("cache_key", key)

	data, err := c.client.Get(ctx, key).Bytes()
	switch {
	case err == nil:
		records, decodeErr := decodeRecords(data)
		if decodeErr == nil {
			logger.WithField("count", len(records)).Info("Serving posts from cache")
			return records, nil
		}
		logger.WithError(decodeErr).Warn("Discarding unreadable cache entry")
	case errors.Is(err, redis.Nil):
		logger.Debug("Cache miss")
	default:
		logger.WithError(err).Warn("Cache lookup failed")
	}

	records, err := c.next.FetchPosts(ctx, query)
	if err != nil || len(records) == 0 {
		return records, err
	}

	encoded, err := json.Marshal(records)
	if err != nil {
		logger.WithError(err).Warn("Failed to encode posts for cache")
		return records, nil
	}
	if err := c.client.Set(ctx, key, encoded, c.ttl).Err(); err != nil {
		logger.WithError(err).Warn("Failed to store posts in cache")
	}

	return records, nil
}

// Key derives a stable cache key from the fields that affect the scraper output
func Key(query models.Query) string {
	var sb strings.Builder
	sb.WriteString(strings.Join(query.SearchTerms, "\x1f"))
	fmt.Fprintf(&sb, "|%s|%s|%s|%d",
		query.Start.Format("2006-01-02"),
		query.End.Format("2006-01-02"),
		query.Sort,
		query.MaxItems,
	)

	sum := sha256.Sum256([]byte(sb.String()))
	return keyPrefix + hex.EncodeToString(sum[:16])
}

func decodeRecords(data []byte) ([]models.RawRecord, error) {
	decoder := json.NewDecoder(strings.NewReader(string(data)))
	decoder.UseNumber()

	var records []models.RawRecord
	if err := decoder.Decode(&records); err != nil {
		return nil, err
	}
	return records, nil
}

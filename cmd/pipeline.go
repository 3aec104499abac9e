package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/brettboylen/tweet-listener/api"
	"github.com/brettboylen/tweet-listener/cache"
	"github.com/brettboylen/tweet-listener/db"
	"github.com/brettboylen/tweet-listener/sentiment"
	"github.com/brettboylen/tweet-listener/stats"
	"github.com/brettboylen/tweet-listener/themes"
	"github.com/brettboylen/tweet-listener/utils"
)

// pipeline holds the wired components shared by serve and run
type pipeline struct {
	config    *utils.Config
	database  *db.Database
	collector *stats.Collector
	closers   []func() error
}

// buildPipeline loads configuration and wires source, backend, classifier,
// extractor and store into a collector
func buildPipeline(ctx context.Context, log *logrus.Logger) (*pipeline, error) {
	config, err := utils.LoadConfig(flagEnv, log)
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := utils.ValidateCredentials(config); err != nil {
		return nil, err
	}

	p := &pipeline{config: config}

	database, err := db.NewDatabase(config.Database.Path, log)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	p.database = database
	p.closers = append(p.closers, database.Close)

	var source api.PostSource = api.NewApifyClient(
		config.Apify.Token,
		config.Apify.Actor,
		config.Apify.MaxItems,
		config.Apify.Timeout,
		log,
	)

	if config.Redis.Addr != "" {
		client, err := cache.NewClient(ctx, config.Redis.Addr, config.Redis.Password, config.Redis.DB)
		if err != nil {
			log.WithError(err).Warn("Redis unavailable, scraping without cache")
		} else {
			source = cache.NewCachedSource(source, client, config.Redis.TTL, log)
			p.closers = append(p.closers, client.Close)
		}
	}

	backend, closeBackend, err := api.NewGenerator(ctx, api.BackendOptions{
		Provider:             config.Backend.Provider,
		APIKey:               config.BackendAPIKey(),
		Model:                config.Backend.Model,
		MaxRequestsPerMinute: config.Backend.MaxRequestsPerMinute,
		Timeout:              config.Backend.Timeout,
		MaxRetries:           config.Backend.MaxRetries,
	}, log)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("failed to configure backend: %w", err)
	}
	p.closers = append(p.closers, closeBackend)

	classifier := sentiment.NewClassifier(backend, config.Classifier.BatchSize, config.Classifier.Workers, log)
	classifier.OnProgress(func(done, total int) {
		log.WithFields(logrus.Fields{
			"done":  done,
			"total": total,
		}).Info("Classified batch")
	})

	extractor := themes.NewExtractor(
		backend,
		config.Themes.SampleLimit,
		config.Themes.GlobalCount,
		config.Themes.SentimentCount,
		log,
	)

	p.collector = stats.NewCollector(source, classifier, extractor, database, config.Apify.MaxItems, log)
	return p, nil
}

// Close releases everything in reverse order of acquisition
func (p *pipeline) Close() error {
	var errs []error
	for i := len(p.closers) - 1; i >= 0; i-- {
		if err := p.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/brettboylen/tweet-listener/report"
	"github.com/brettboylen/tweet-listener/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		log := setupLogger(flagLogLevel)
		log.Info("Starting Tweet Listener")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		p, err := buildPipeline(ctx, log)
		if err != nil {
			return err
		}
		defer p.Close()

		log.WithFields(logrus.Fields{
			"app":         p.config.App.Name,
			"version":     version,
			"provider":    p.config.Backend.Provider,
			"batch_size":  p.config.Classifier.BatchSize,
			"workers":     p.config.Classifier.Workers,
			"server_port": p.config.Server.Port,
			"cache":       p.config.Redis.Addr != "",
		}).Info("Configuration loaded")

		srv := server.New(
			p.collector,
			p.database,
			report.NewPDFRenderer(nil, log),
			p.config.Server.MaxRequestsPerMinute,
			log,
		)

		go waitForShutdown(cancel, log)

		return srv.Start(ctx, p.config.Server.Port)
	},
}

// waitForShutdown cancels the root context on SIGINT or SIGTERM
func waitForShutdown(cancel context.CancelFunc, log *logrus.Logger) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigCh
	log.WithField("signal", sig.String()).Info("Received shutdown signal")

	cancel()
}

package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/brettboylen/tweet-listener/models"
	"github.com/brettboylen/tweet-listener/report"
	"github.com/brettboylen/tweet-listener/server"
)

var (
	flagTerms    string
	flagStart    string
	flagEnd      string
	flagSort     string
	flagContext  string
	flagMaxItems int
	flagCSV      string
	flagPDF      string
	flagJSON     string
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run one analysis from the command line",
	Long: `Scrape, classify and summarize posts for the given search terms.

Terms are separated by commas or newlines. Dates use YYYY-MM-DD.`,
	Example: `  tweet-listener run --terms "banco, tarjeta" --start 2025-02-01 --end 2025-03-01 --pdf report.pdf`,
	RunE: func(cmd *cobra.Command, args []string) error {
		log := setupLogger(flagLogLevel)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p, err := buildPipeline(ctx, log)
		if err != nil {
			return err
		}
		defer p.Close()

		hint := flagContext
		if hint == "" {
			hint = p.config.App.DefaultContext
		}

		query, err := server.ParseQuery(nil, flagTerms, flagStart, flagEnd, flagSort, flagMaxItems, hint)
		if err != nil {
			return err
		}

		run, err := p.collector.Run(ctx, query)
		if err != nil {
			return err
		}

		if err := writeOutputs(ctx, run, report.NewPDFRenderer(nil, log), log); err != nil {
			return err
		}

		printSummary(cmd.OutOrStdout(), run)
		return nil
	},
}

func init() {
	runCmd.Flags().StringVar(&flagTerms, "terms", "", "search terms separated by commas or newlines (required)")
	runCmd.Flags().StringVar(&flagStart, "start", "", "start date (YYYY-MM-DD)")
	runCmd.Flags().StringVar(&flagEnd, "end", "", "end date (YYYY-MM-DD)")
	runCmd.Flags().StringVar(&flagSort, "sort", string(models.SortTop), "sort mode (Top, Latest, Both)")
	runCmd.Flags().StringVar(&flagContext, "context", "", "optional context passed to the language model")
	runCmd.Flags().IntVar(&flagMaxItems, "max-items", 0, "maximum posts to scrape (default from APIFY_MAX_ITEMS)")
	runCmd.Flags().StringVar(&flagCSV, "csv", "", "write classified posts to this CSV file")
	runCmd.Flags().StringVar(&flagPDF, "pdf", "", "write the PDF report to this file")
	runCmd.Flags().StringVar(&flagJSON, "json", "", "write the full run as JSON to this file")
	runCmd.MarkFlagRequired("terms")
}

// writeOutputs writes each requested export file
func writeOutputs(ctx context.Context, run *models.RunResult, renderer *report.PDFRenderer, log *logrus.Logger) error {
	outputs := []struct {
		path  string
		write func(io.Writer) error
	}{
		{flagCSV, func(w io.Writer) error { return report.WriteCSV(w, run.Posts) }},
		{flagPDF, func(w io.Writer) error { return renderer.Render(ctx, w, run) }},
		{flagJSON, func(w io.Writer) error {
			enc := json.NewEncoder(w)
			enc.SetIndent("", "  ")
			return enc.Encode(run)
		}},
	}

	for _, out := range outputs {
		if out.path == "" {
			continue
		}
		if err := writeFile(out.path, out.write); err != nil {
			return err
		}
		log.WithField("file", out.path).Info("Wrote output")
	}
	return nil
}

func writeFile(path string, write func(io.Writer) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}

	if err := write(f); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return f.Close()
}

// printSummary prints the headline numbers of a run
func printSummary(w io.Writer, run *models.RunResult) {
	s := run.Statistics

	fmt.Fprintf(w, "Run %s: %d posts\n", run.ID, s.TotalPosts)
	for _, share := range s.Sentiment {
		fmt.Fprintf(w, "  %-8s %6d  %6.2f%%\n", share.Label, share.Count, share.Percentage)
	}
	if c := run.Classification; c.DegradedBatches > 0 || c.FailedBatches > 0 {
		fmt.Fprintf(w, "  %d of %d batches degraded, %d failed\n", c.DegradedBatches, c.Batches, c.FailedBatches)
	}

	fmt.Fprintf(w, "Themes (%s):\n", run.GlobalThemes.Status)
	for i, theme := range run.GlobalThemes.Themes {
		fmt.Fprintf(w, "  %d. %s\n", i+1, theme.Name)
	}
	if len(run.GlobalThemes.Themes) == 0 && run.GlobalThemes.Raw != "" {
		fmt.Fprintf(w, "  %s\n", run.GlobalThemes.Raw)
	}

	fmt.Fprintf(w, "Timeline: %d buckets by %s\n", len(s.Timeline.Buckets), s.Timeline.Granularity)
}

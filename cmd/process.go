package cmd

import (
	"fmt"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/user/curator/internal/config"
	"github.com/user/curator/internal/pipeline"
)

var (
	processLimit     int
	processDryRun    bool
	processReprocess bool
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Score the pending post queue",
	Long:  "Run one curation pass: normalize, triage, enrich high-signal posts, and update account weights.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		log := newLogger(cfg)

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		p, err := newPipeline(cfg, store, log)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		summary, err := p.Run(ctx, pipeline.Options{Limit: processLimit, DryRun: processDryRun, Reprocess: processReprocess})
		if err != nil {
			return fmt.Errorf("curation run failed: %w", err)
		}

		fmt.Printf("Run %s: %d processed, %d failed, %d invalid, %d skipped (%s)\n",
			summary.RunID, summary.Processed, summary.Failed, summary.Invalid, summary.Skipped,
			summary.Duration.Round(time.Millisecond))
		for _, a := range summary.Alerts {
			fmt.Printf("ALERT %.1f @%s %s: %s\n", a.Score, a.Handle, a.PostID, a.Summary)
		}
		if len(summary.Promotions) > 0 {
			fmt.Printf("Auto-promoted: @%s\n", strings.Join(summary.Promotions, ", @"))
		}
		return nil
	},
}

func init() {
	processCmd.Flags().IntVar(&processLimit, "limit", 0, "Max posts to process this run (default from config)")
	processCmd.Flags().BoolVar(&processDryRun, "dry-run", false, "Score without writing results or updating accounts")
	processCmd.Flags().BoolVar(&processReprocess, "reprocess", false, "Rescore the most recently processed posts as well")
	rootCmd.AddCommand(processCmd)
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/curator/internal/config"
)

var reprocessCmd = &cobra.Command{
	Use:   "reprocess <post-id> [post-id...]",
	Short: "Queue posts for rescoring",
	Long:  "Clear the curation state of the given posts so the next process run scores them from scratch.",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		store, err := openStore(cfg)
		if err != nil {
			return err
		}
		defer store.Close()

		for _, id := range args {
			if _, err := store.GetPost(id); err != nil {
				return fmt.Errorf("unknown post %s", id)
			}
		}
		if err := store.MarkForReprocess(args); err != nil {
			return fmt.Errorf("reprocess failed: %w", err)
		}

		fmt.Printf("Queued %d post(s) for rescoring. Run 'curator process' to score them.\n", len(args))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(reprocessCmd)
}

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/user/curator/internal/config"
	"github.com/user/curator/internal/db"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show queue and tier counts",
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

		byStatus, err := store.CountByStatus()
		if err != nil {
			return err
		}
		byTier, err := store.CountByTier()
		if err != nil {
			return err
		}

		fmt.Println("Posts by status:")
		for _, s := range []string{db.StatusPending, db.StatusProcessed, db.StatusProcessingFailed, db.StatusInvalid, db.StatusSkipped} {
			if byStatus[s] > 0 {
				fmt.Printf("  %-18s %d\n", s, byStatus[s])
			}
		}
		if len(byTier) > 0 {
			fmt.Println("Processed by tier:")
			for _, tier := range []string{"high_signal", "market_relevant", "news", "noise"} {
				if byTier[tier] > 0 {
					fmt.Printf("  %-18s %d\n", tier, byTier[tier])
				}
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

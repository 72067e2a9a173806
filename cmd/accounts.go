package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/user/curator/internal/config"
	"github.com/user/curator/internal/db"
	"github.com/user/curator/internal/ledger"
)

var accountsCmd = &cobra.Command{
	Use:   "accounts",
	Short: "Manage tracked accounts",
}

var (
	accountsListAll bool
	accountAddName  string
	accountAddTier  int
	accountAddCat   string
	accountBoostAmt float64
)

func withLedger(fn func(l *ledger.Ledger, store *db.Store) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer store.Close()
	return fn(newLedger(cfg, store, newLogger(cfg)), store)
}

func printAccount(a *db.Account) {
	muted := ""
	if a.Muted {
		muted = " [muted]"
	}
	promoted := ""
	if a.AutoPromoted {
		promoted = " [auto]"
	}
	fmt.Printf("T%d %5.1f @%-20s seen=%d kept=%d avg=%.1f%s%s\n",
		a.Tier, a.Weight, a.Handle, a.PostsSeen, a.PostsKept, a.AvgScore, muted, promoted)
}

var accountsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List accounts by tier and weight",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(l *ledger.Ledger, store *db.Store) error {
			var (
				accounts []*db.Account
				err      error
			)
			if accountsListAll {
				accounts, err = store.ListAccounts(true)
			} else {
				accounts, err = l.Prioritized()
			}
			if err != nil {
				return err
			}
			for _, a := range accounts {
				printAccount(a)
			}
			return nil
		})
	},
}

var accountsAddCmd = &cobra.Command{
	Use:   "add <handle>",
	Short: "Track a new account",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(l *ledger.Ledger, store *db.Store) error {
			a, err := l.Ensure(args[0], accountAddName)
			if err != nil {
				return err
			}
			if accountAddTier != 0 && accountAddTier != a.Tier {
				if a, err = l.Promote(a.Handle, accountAddTier); err != nil {
					return err
				}
			}
			if accountAddCat != "" {
				a.Category = accountAddCat
				if err := store.UpsertAccount(a); err != nil {
					return err
				}
			}
			printAccount(a)
			return nil
		})
	},
}

var accountsBoostCmd = &cobra.Command{
	Use:   "boost <handle>",
	Short: "Manually boost an account's weight",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(l *ledger.Ledger, store *db.Store) error {
			a, err := l.Boost(args[0], accountBoostAmt)
			if err != nil {
				return err
			}
			printAccount(a)
			return nil
		})
	},
}

func tierArgCmd(use, short string, fn func(l *ledger.Ledger, handle string, tier int) (*db.Account, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			tier, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid tier %q", args[1])
			}
			return withLedger(func(l *ledger.Ledger, store *db.Store) error {
				a, err := fn(l, args[0], tier)
				if err != nil {
					return err
				}
				printAccount(a)
				return nil
			})
		},
	}
}

func handleArgCmd(use, short string, fn func(l *ledger.Ledger, handle string) (*db.Account, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withLedger(func(l *ledger.Ledger, store *db.Store) error {
				a, err := fn(l, args[0])
				if err != nil {
					return err
				}
				printAccount(a)
				return nil
			})
		},
	}
}

var accountsDecayCmd = &cobra.Command{
	Use:   "decay",
	Short: "Apply one decay period to all accounts",
	Long:  "Decay every account's weight by the configured rate. Accounts with a high-signal post in the last week are exempt.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withLedger(func(l *ledger.Ledger, store *db.Store) error {
			n, err := l.DecayAll()
			if err != nil {
				return err
			}
			fmt.Printf("Decayed %d account(s)\n", n)
			return nil
		})
	},
}

func init() {
	accountsListCmd.Flags().BoolVar(&accountsListAll, "all", false, "Include muted accounts")
	accountsAddCmd.Flags().StringVar(&accountAddName, "name", "", "Display name")
	accountsAddCmd.Flags().IntVar(&accountAddTier, "tier", 0, "Initial tier (1=core, 2=followed, 3=discovered)")
	accountsAddCmd.Flags().StringVar(&accountAddCat, "category", "", "Account category, e.g. macro, equities")
	accountsBoostCmd.Flags().Float64Var(&accountBoostAmt, "amount", 0, "Boost amount (default from config)")

	accountsCmd.AddCommand(accountsListCmd)
	accountsCmd.AddCommand(accountsAddCmd)
	accountsCmd.AddCommand(accountsBoostCmd)
	accountsCmd.AddCommand(tierArgCmd("promote <handle> <tier>", "Move an account to a better tier", func(l *ledger.Ledger, handle string, tier int) (*db.Account, error) {
		return l.Promote(handle, tier)
	}))
	accountsCmd.AddCommand(tierArgCmd("demote <handle> <tier>", "Move an account to a worse tier", func(l *ledger.Ledger, handle string, tier int) (*db.Account, error) {
		return l.Demote(handle, tier)
	}))
	accountsCmd.AddCommand(handleArgCmd("mute <handle>", "Stop scoring an account's posts", func(l *ledger.Ledger, handle string) (*db.Account, error) {
		return l.Mute(handle)
	}))
	accountsCmd.AddCommand(handleArgCmd("unmute <handle>", "Resume scoring an account's posts", func(l *ledger.Ledger, handle string) (*db.Account, error) {
		return l.Unmute(handle)
	}))
	accountsCmd.AddCommand(accountsDecayCmd)
	rootCmd.AddCommand(accountsCmd)
}

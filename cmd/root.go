package cmd

import (
	"fmt"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/user/curator/internal/config"
	"github.com/user/curator/internal/db"
	"github.com/user/curator/internal/ledger"
	"github.com/user/curator/internal/pipeline"
	"github.com/user/curator/internal/scorer"
	"github.com/user/curator/internal/visuals"
)

var rootCmd = &cobra.Command{
	Use:   "curator",
	Short: "Score and curate a financial post feed",
	Long:  "Curator triages fetched social posts with an LLM, maintains per-account signal weights, and stores the curated records for downstream digests.",
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg *config.Config) *logrus.Logger {
	log := logrus.New()
	log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}
	return log
}

func openStore(cfg *config.Config) (*db.Store, error) {
	store, err := db.NewStore(cfg.DataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to open store: %w", err)
	}
	return store, nil
}

func newLedger(cfg *config.Config, store *db.Store, log *logrus.Logger) *ledger.Ledger {
	return ledger.New(store, ledger.Config{
		DecayRate:            cfg.Accounts.DecayRate,
		BoostIncrement:       cfg.Accounts.BoostIncrement,
		AutoPromoteThreshold: cfg.Accounts.AutoPromoteThreshold,
		HighSignalThreshold:  cfg.Scoring.HighSignalThreshold,
	}, log)
}

func newPipeline(cfg *config.Config, store *db.Store, log *logrus.Logger) (*pipeline.Pipeline, error) {
	llm, err := scorer.New(cfg)
	if err != nil {
		return nil, err
	}
	adapter := scorer.NewAdapter(llm, scorer.AdapterConfig{
		BatchSize:           cfg.Scoring.BatchSize,
		Concurrency:         cfg.LLM.Concurrency,
		HighSignalThreshold: cfg.Scoring.HighSignalThreshold,
	}, log)

	vocab := visuals.DefaultVocabulary()
	if len(cfg.Visuals.DataTerms) > 0 {
		vocab.DataTerms = cfg.Visuals.DataTerms
	}
	if len(cfg.Visuals.NoiseTerms) > 0 {
		vocab.NoiseTerms = cfg.Visuals.NoiseTerms
	}

	return pipeline.New(store, adapter, newLedger(cfg, store, log), visuals.NewSelector(vocab), cfg, log), nil
}

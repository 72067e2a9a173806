package config

import (
	"os"
	"path/filepath"

	"github.com/adrg/xdg"
	"github.com/spf13/viper"
)

type Config struct {
	DataDir  string         `mapstructure:"data_dir"`
	LogLevel string         `mapstructure:"log_level"`
	LLM      LLMConfig      `mapstructure:"llm"`
	Scoring  ScoringConfig  `mapstructure:"scoring"`
	Accounts AccountsConfig `mapstructure:"accounts"`
	Visuals  VisualsConfig  `mapstructure:"visuals"`
	Process  ProcessConfig  `mapstructure:"process"`
}

type LLMConfig struct {
	Provider        string `mapstructure:"provider"`
	TriageModel     string `mapstructure:"triage_model"`
	EnrichmentModel string `mapstructure:"enrichment_model"`
	BaseURL         string `mapstructure:"base_url"`
	Concurrency     int    `mapstructure:"concurrency"`
}

type ScoringConfig struct {
	BatchSize           int     `mapstructure:"batch_size"`
	HighSignalThreshold float64 `mapstructure:"high_signal_threshold"`
	AlertThreshold      float64 `mapstructure:"alert_threshold"`
	ArticleMinScore     float64 `mapstructure:"article_min_score"`
}

type AccountsConfig struct {
	DecayRate            float64 `mapstructure:"decay_rate"`
	BoostIncrement       float64 `mapstructure:"boost_increment"`
	AutoPromoteThreshold float64 `mapstructure:"auto_promote_threshold"`
}

type VisualsConfig struct {
	MaxPerPost int      `mapstructure:"max_per_post"`
	DataTerms  []string `mapstructure:"data_terms"`
	NoiseTerms []string `mapstructure:"noise_terms"`
}

type ProcessConfig struct {
	Limit      int `mapstructure:"limit"`
	QuoteDepth int `mapstructure:"quote_depth"`
}

func Load() (*Config, error) {
	defaultDataDir := filepath.Join(xdg.DataHome, "curator")

	viper.SetDefault("data_dir", defaultDataDir)
	viper.SetDefault("log_level", "info")
	viper.SetDefault("llm.provider", "anthropic")
	viper.SetDefault("llm.triage_model", "claude-haiku-4-5-20251001")
	viper.SetDefault("llm.enrichment_model", "claude-sonnet-4-5-20250929")
	viper.SetDefault("llm.concurrency", 3)
	viper.SetDefault("scoring.batch_size", 15)
	viper.SetDefault("scoring.high_signal_threshold", 7.0)
	viper.SetDefault("scoring.alert_threshold", 8.0)
	viper.SetDefault("scoring.article_min_score", 5.0)
	viper.SetDefault("accounts.decay_rate", 0.05)
	viper.SetDefault("accounts.boost_increment", 5.0)
	viper.SetDefault("accounts.auto_promote_threshold", 75.0)
	viper.SetDefault("visuals.max_per_post", 4)
	viper.SetDefault("process.limit", 50)
	viper.SetDefault("process.quote_depth", 2)

	// Environment variable overrides
	viper.SetEnvPrefix("CURATOR")
	viper.AutomaticEnv()
	viper.BindEnv("data_dir", "CURATOR_DATA_DIR")
	viper.BindEnv("llm.provider", "CURATOR_LLM_PROVIDER")
	viper.BindEnv("llm.triage_model", "CURATOR_LLM_TRIAGE_MODEL")
	viper.BindEnv("llm.enrichment_model", "CURATOR_LLM_ENRICHMENT_MODEL")
	viper.BindEnv("llm.base_url", "CURATOR_LLM_BASE_URL")

	// Config file
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(defaultDataDir)
	viper.AddConfigPath(filepath.Join(xdg.ConfigHome, "curator"))

	// Read config file if exists (ignore error if not found)
	_ = viper.ReadInConfig()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Ensure data directory exists
	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "curator.db")
}

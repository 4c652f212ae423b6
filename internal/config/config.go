package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Config holds all configuration settings.
type Config struct {
	GitHub   GitHubConfig   `yaml:"github"`
	AI       AIConfig       `yaml:"ai"`
	Analysis AnalysisConfig `yaml:"analysis"`
	Server   ServerConfig   `yaml:"server"`
	Cache    CacheConfig    `yaml:"cache"`
}

type GitHubConfig struct {
	Token     string `yaml:"token"`
	RateLimit int    `yaml:"rate_limit"` // Requests per second
	PageCap   int    `yaml:"page_cap"`   // Hard cap on PR pages fetched
}

type AIConfig struct {
	OpenAIKey     string        `yaml:"openai_key"`
	Model         string        `yaml:"model"`
	MaxConcurrent int           `yaml:"max_concurrent"`
	CallTimeout   time.Duration `yaml:"call_timeout"`
}

type AnalysisConfig struct {
	DefaultMonths     int    `yaml:"default_months"`
	MaxRepoSizeMB     int    `yaml:"max_repo_size_mb"`
	MaxBlameFiles     int    `yaml:"max_blame_files"`
	MaxPRsCode        int    `yaml:"max_prs_code"`
	MaxPRsReview      int    `yaml:"max_prs_review"`
	DiffTruncateChars int    `yaml:"diff_truncate_chars"`
	CloneBaseDir      string `yaml:"clone_base_dir"`
}

type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	MaxConcurrent   int           `yaml:"max_concurrent"` // Concurrent pipeline runs
	RateLimitMax    int           `yaml:"rate_limit_max"`
	RateLimitWindow time.Duration `yaml:"rate_limit_window"`
}

type CacheConfig struct {
	Directory string `yaml:"directory"`
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		GitHub: GitHubConfig{
			RateLimit: 10,
			PageCap:   10,
		},
		AI: AIConfig{
			Model:         "gpt-4o",
			MaxConcurrent: 5,
			CallTimeout:   60 * time.Second,
		},
		Analysis: AnalysisConfig{
			DefaultMonths:     6,
			MaxRepoSizeMB:     500,
			MaxBlameFiles:     30,
			MaxPRsCode:        30,
			MaxPRsReview:      20,
			DiffTruncateChars: 8000,
			CloneBaseDir:      filepath.Join(os.TempDir(), "xray-repos"),
		},
		Server: ServerConfig{
			Addr:            ":8080",
			MaxConcurrent:   2,
			RateLimitMax:    5,
			RateLimitWindow: 10 * time.Minute,
		},
		Cache: CacheConfig{
			Directory: "cached_results",
		},
	}
}

// Load loads configuration from file, environment and defaults.
func Load(path string) (*Config, error) {
	loadEnvFiles()

	v := viper.New()
	v.SetConfigType("yaml")

	// Unmarshal merges file values over the defaults already in cfg;
	// sections absent from the file keep their defaults.
	cfg := Default()

	v.SetEnvPrefix("XRAY")
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".xray")
		v.AddConfigPath(".")
		homeDir, _ := os.UserHomeDir()
		v.AddConfigPath(filepath.Join(homeDir, ".xray"))
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Config file not found is OK, use defaults
	}

	if err := v.Unmarshal(cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(cfg)

	return cfg, nil
}

// loadEnvFiles loads .env files in order of precedence.
func loadEnvFiles() {
	envFiles := []string{
		".env.local",
		".env",
	}

	for _, file := range envFiles {
		if _, err := os.Stat(file); err == nil {
			godotenv.Load(file)
		}
	}

	homeDir, _ := os.UserHomeDir()
	homeEnvFile := filepath.Join(homeDir, ".xray", ".env")
	if _, err := os.Stat(homeEnvFile); err == nil {
		godotenv.Load(homeEnvFile)
	}
}

// applyEnvOverrides applies environment variable overrides to config.
func applyEnvOverrides(cfg *Config) {
	if token := os.Getenv("GITHUB_TOKEN"); token != "" {
		cfg.GitHub.Token = token
	}
	if key := os.Getenv("OPENAI_API_KEY"); key != "" {
		cfg.AI.OpenAIKey = key
	}
	if model := os.Getenv("OPENAI_MODEL"); model != "" {
		cfg.AI.Model = model
	}
	if dir := os.Getenv("CLONE_BASE_DIR"); dir != "" {
		cfg.Analysis.CloneBaseDir = dir
	}
	if months := os.Getenv("DEFAULT_MONTHS"); months != "" {
		if n, err := strconv.Atoi(months); err == nil {
			cfg.Analysis.DefaultMonths = n
		}
	}
	if maxAI := os.Getenv("MAX_CONCURRENT_AI"); maxAI != "" {
		if n, err := strconv.Atoi(maxAI); err == nil {
			cfg.AI.MaxConcurrent = n
		}
	}
	if maxRuns := os.Getenv("MAX_CONCURRENT_ANALYSES"); maxRuns != "" {
		if n, err := strconv.Atoi(maxRuns); err == nil {
			cfg.Server.MaxConcurrent = n
		}
	}
}

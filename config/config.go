package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Server      ServerConfig
	LLM         LLMConfig
	Research    ResearchConfig
	Fetch       FetchConfig
	Store       StoreConfig
	Discovery   DiscoveryConfig
	Preferences PreferencesConfig
}

// ServerConfig holds server-related configuration
type ServerConfig struct {
	Port           string   `mapstructure:"port"`
	Environment    string   `mapstructure:"environment"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// LLMConfig holds generative-text provider configuration
type LLMConfig struct {
	APIKey      string  `mapstructure:"api_key"`
	Model       string  `mapstructure:"model"`
	MaxTokens   int     `mapstructure:"max_tokens"`
	Temperature float64 `mapstructure:"temperature"`
}

// ResearchConfig holds research provider configuration
type ResearchConfig struct {
	APIKey            string        `mapstructure:"api_key"`
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
}

// FetchConfig holds page-fetcher configuration
type FetchConfig struct {
	Timeout      time.Duration `mapstructure:"timeout"`
	MaxBodyBytes int64         `mapstructure:"max_body_bytes"`
}

// StoreConfig holds persistent store configuration
type StoreConfig struct {
	Type string `mapstructure:"type"` // "memory" or "sqlite"
	Path string `mapstructure:"path"`
}

// DiscoveryConfig holds discovery pipeline tuning
type DiscoveryConfig struct {
	ConfidenceFloor        float64 `mapstructure:"confidence_floor"`
	CacheFallbackFloor     float64 `mapstructure:"cache_fallback_floor"`
	MaxResults             int     `mapstructure:"max_results"`
	CacheSearchLimit       int     `mapstructure:"cache_search_limit"`
	MaxParallelResolutions int     `mapstructure:"max_parallel_resolutions"`
}

// PreferencesConfig holds preference learner tuning
type PreferencesConfig struct {
	DecayFactor       float64 `mapstructure:"decay_factor"`
	WeightFloor       float64 `mapstructure:"weight_floor"`
	MaxCategories     int     `mapstructure:"max_categories"`
	MaxBrands         int     `mapstructure:"max_brands"`
	MaxRecentSearches int     `mapstructure:"max_recent_searches"`
}

// Load loads configuration from environment variables and config files
func Load() (*Config, error) {
	v := viper.New()

	// Set config name and paths
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("/etc/shoplens/")

	// Environment variable settings
	v.SetEnvPrefix("SHOPLENS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Set default values
	setDefaults(v)

	// Read config file (optional - will use env vars if file doesn't exist)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// Config file not found; using environment variables and defaults
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config: %w", err)
	}

	// Validate configuration
	if err := validate(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.environment", "development")
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	// LLM defaults
	v.SetDefault("llm.model", "gemini-2.0-flash")
	v.SetDefault("llm.max_tokens", 4096)
	v.SetDefault("llm.temperature", 0.3)

	// Research defaults
	v.SetDefault("research.base_url", "https://api.research.shoplens.dev")
	v.SetDefault("research.timeout", "45s")
	v.SetDefault("research.requests_per_second", 2.0)

	// Fetch defaults
	v.SetDefault("fetch.timeout", "20s")
	v.SetDefault("fetch.max_body_bytes", 524288) // 512 KiB

	// Store defaults
	v.SetDefault("store.type", "memory")
	v.SetDefault("store.path", "shoplens.db")

	// Discovery defaults
	v.SetDefault("discovery.confidence_floor", 60.0)
	v.SetDefault("discovery.cache_fallback_floor", 70.0)
	v.SetDefault("discovery.max_results", 5)
	v.SetDefault("discovery.cache_search_limit", 8)
	v.SetDefault("discovery.max_parallel_resolutions", 4)

	// Preference learner defaults
	v.SetDefault("preferences.decay_factor", 0.95)
	v.SetDefault("preferences.weight_floor", 5.0)
	v.SetDefault("preferences.max_categories", 15)
	v.SetDefault("preferences.max_brands", 20)
	v.SetDefault("preferences.max_recent_searches", 20)
}

// validate validates the configuration
func validate(config *Config) error {
	if config.LLM.APIKey == "" {
		return fmt.Errorf("LLM API key is required (set SHOPLENS_LLM_API_KEY)")
	}

	if config.Store.Type != "memory" && config.Store.Type != "sqlite" {
		return fmt.Errorf("store type must be 'memory' or 'sqlite', got: %s", config.Store.Type)
	}

	if config.Store.Type == "sqlite" && config.Store.Path == "" {
		return fmt.Errorf("store path is required when store type is 'sqlite'")
	}

	if config.Preferences.DecayFactor <= 0 || config.Preferences.DecayFactor >= 1 {
		return fmt.Errorf("preferences decay factor must be in (0, 1), got: %v", config.Preferences.DecayFactor)
	}

	if config.Discovery.ConfidenceFloor < 0 || config.Discovery.ConfidenceFloor > 100 {
		return fmt.Errorf("discovery confidence floor must be in [0, 100], got: %v", config.Discovery.ConfidenceFloor)
	}

	return nil
}

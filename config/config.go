package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Levelflow LevelflowConfig `yaml:"levelflow"`
	DataLake  DataLakeConfig  `yaml:"data_lake"`
	Levels    LevelsConfig    `yaml:"levels"`
	Basis     BasisConfig     `yaml:"basis"`
	Providers ProvidersConfig `yaml:"providers"`
	Artifacts ArtifactsConfig `yaml:"artifacts"`
	Storage   StorageConfig   `yaml:"storage"`
	Logging   LoggingConfig   `yaml:"logging"`
}

type LevelflowConfig struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`
}

type DataLakeConfig struct {
	Dir string `yaml:"dir"`
}

type LevelsConfig struct {
	MinVolume           int64   `yaml:"min_volume"`
	MinOpenInterest     int64   `yaml:"min_open_interest"`
	MaxLevelsPerSide    int     `yaml:"max_levels_per_side"`
	ValueAreaPercentage float64 `yaml:"value_area_percentage"`
	ConfluenceTolerance float64 `yaml:"confluence_tolerance"`
	MaxConfluenceZones  int     `yaml:"max_confluence_zones"`
}

type BasisConfig struct {
	CacheTTL time.Duration `yaml:"cache_ttl"`
}

type ProvidersConfig struct {
	Futures FuturesProviderConfig `yaml:"futures"`
	CFD     CFDProviderConfig     `yaml:"cfd"`
}

// FuturesProviderConfig drives the REST quote provider used for futures
// prices. MinCallInterval is the enforced delay between successive requests
// regardless of target symbol.
type FuturesProviderConfig struct {
	BaseURL         string        `yaml:"base_url"`
	APIKey          string        `yaml:"api_key"`
	Timeout         time.Duration `yaml:"timeout"`
	MinCallInterval time.Duration `yaml:"min_call_interval"`
}

// CFDProviderConfig drives the websocket terminal-bridge provider used for
// CFD prices.
type CFDProviderConfig struct {
	URL             string        `yaml:"url"`
	Timeout         time.Duration `yaml:"timeout"`
	MinCallInterval time.Duration `yaml:"min_call_interval"`
}

type ArtifactsConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Dir         string `yaml:"dir"`
	Compression string `yaml:"compression"`
}

type StorageConfig struct {
	S3 S3Config `yaml:"s3"`
}

type S3Config struct {
	Enabled         bool   `yaml:"enabled"`
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	PathStyle       bool   `yaml:"path_style"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type LoggingConfig struct {
	Level         string `yaml:"level"`
	Format        string `yaml:"format"`
	Output        string `yaml:"output"`
	MaxAge        int    `yaml:"max_age"`
	DashboardName string `yaml:"dashboard_name"`
}

func LoadConfig(path string) (*Config, error) {
	// Read configuration file
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := defaultConfig()
	if err := yaml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Override secrets from environment variables if available
	if v := os.Getenv("FINNHUB_API_KEY"); v != "" {
		config.Providers.Futures.APIKey = strings.TrimSpace(v)
	}
	if config.Storage.S3.Enabled {
		if v := os.Getenv("AWS_ACCESS_KEY_ID"); v != "" {
			config.Storage.S3.AccessKeyID = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_SECRET_ACCESS_KEY"); v != "" {
			config.Storage.S3.SecretAccessKey = strings.TrimSpace(v)
		}
		if v := os.Getenv("AWS_REGION"); v != "" {
			config.Storage.S3.Region = strings.TrimSpace(v)
		}
		if v := os.Getenv("S3_BUCKET"); v != "" {
			config.Storage.S3.Bucket = strings.TrimSpace(v)
		}
	}

	config.Storage.S3.Bucket = strings.TrimSpace(config.Storage.S3.Bucket)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

func defaultConfig() *Config {
	return &Config{
		Levels: LevelsConfig{
			MinVolume:           100,
			MinOpenInterest:     500,
			MaxLevelsPerSide:    5,
			ValueAreaPercentage: 0.70,
			ConfluenceTolerance: 2.0,
			MaxConfluenceZones:  10,
		},
		Basis: BasisConfig{
			CacheTTL: 30 * time.Second,
		},
		Providers: ProvidersConfig{
			Futures: FuturesProviderConfig{
				BaseURL:         "https://finnhub.io/api/v1",
				Timeout:         10 * time.Second,
				MinCallInterval: 1500 * time.Millisecond,
			},
			CFD: CFDProviderConfig{
				Timeout:         10 * time.Second,
				MinCallInterval: 1500 * time.Millisecond,
			},
		},
		Artifacts: ArtifactsConfig{
			Dir:         "artifacts",
			Compression: "snappy",
		},
	}
}

func validateConfig(cfg *Config) error {
	if cfg.Levelflow.Name == "" {
		return fmt.Errorf("levelflow.name is required")
	}

	if cfg.Levelflow.Version == "" {
		return fmt.Errorf("levelflow.version is required")
	}

	if cfg.Levels.MaxLevelsPerSide <= 0 {
		return fmt.Errorf("levels.max_levels_per_side must be greater than 0")
	}
	if cfg.Levels.ValueAreaPercentage <= 0 || cfg.Levels.ValueAreaPercentage > 1 {
		return fmt.Errorf("levels.value_area_percentage must be in (0, 1]")
	}
	if cfg.Levels.ConfluenceTolerance <= 0 {
		return fmt.Errorf("levels.confluence_tolerance must be greater than 0")
	}

	if cfg.Basis.CacheTTL <= 0 {
		return fmt.Errorf("basis.cache_ttl must be greater than 0")
	}
	if cfg.Providers.Futures.MinCallInterval <= 0 {
		return fmt.Errorf("providers.futures.min_call_interval must be greater than 0")
	}
	if cfg.Providers.CFD.MinCallInterval <= 0 {
		return fmt.Errorf("providers.cfd.min_call_interval must be greater than 0")
	}

	if cfg.Storage.S3.Enabled {
		if cfg.Storage.S3.Bucket == "" {
			return fmt.Errorf("storage.s3.bucket is required when S3 is enabled")
		}
		if cfg.Storage.S3.Region == "" {
			return fmt.Errorf("storage.s3.region is required when S3 is enabled")
		}
		if !isValidS3Bucket(cfg.Storage.S3.Bucket) {
			return fmt.Errorf("storage.s3.bucket '%s' is invalid", cfg.Storage.S3.Bucket)
		}
	}

	return nil
}

var s3BucketRegexp = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)

func isValidS3Bucket(name string) bool {
	if len(name) < 3 || len(name) > 63 {
		return false
	}
	if strings.Contains(name, "..") || strings.HasPrefix(name, ".") || strings.HasSuffix(name, ".") {
		return false
	}
	return s3BucketRegexp.MatchString(name)
}

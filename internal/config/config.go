// Package config loads and validates scraper configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config captures all service configuration knobs loaded via Viper.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	DB        DBConfig        `mapstructure:"db"`
	GitHub    GitHubConfig    `mapstructure:"github"`
	Discovery DiscoveryConfig `mapstructure:"discovery"`
	Fetch     FetchConfig     `mapstructure:"fetch"`
	Enhance   EnhanceConfig   `mapstructure:"enhance"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Archive   ArchiveConfig   `mapstructure:"archive"`
	Publish   PublishConfig   `mapstructure:"publish"`
	Schedule  ScheduleConfig  `mapstructure:"schedule"`
	Logging   LoggingConfig   `mapstructure:"logging"`
}

// ServerConfig controls the HTTP observability surface.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// DBConfig controls access to the relational database.
type DBConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	ConnectRetries  int           `mapstructure:"connect_retries"`
	ConnectBackoff  time.Duration `mapstructure:"connect_backoff"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// GitHubConfig configures the GitHub API client and its credential pool.
type GitHubConfig struct {
	Tokens            []string      `mapstructure:"tokens"`
	BaseURL           string        `mapstructure:"base_url"`
	Timeout           time.Duration `mapstructure:"timeout"`
	RequestsPerSecond float64       `mapstructure:"requests_per_second"`
	Cooldown          time.Duration `mapstructure:"cooldown"`
	QuotaResetMargin  time.Duration `mapstructure:"quota_reset_margin"`
}

// DiscoveryConfig governs the username discovery stage.
type DiscoveryConfig struct {
	Target           int      `mapstructure:"target"`
	BatchSize        int      `mapstructure:"batch_size"`
	Locations        []string `mapstructure:"locations"`
	YearsStart       int      `mapstructure:"years_start"`
	YearsEnd         int      `mapstructure:"years_end"`
	MaxSearchResults int      `mapstructure:"max_search_results"`
}

// FetchConfig governs the profile fetch stage.
type FetchConfig struct {
	Target    int `mapstructure:"target"`
	BatchSize int `mapstructure:"batch_size"`
	TopRepos  int `mapstructure:"top_repos"`
}

// EnhanceConfig governs the social enhancement stage.
type EnhanceConfig struct {
	Target    int           `mapstructure:"target"`
	BatchSize int           `mapstructure:"batch_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
	UserAgent string        `mapstructure:"user_agent"`
}

// WorkerConfig controls the claim-and-process loop shared by all stages.
type WorkerConfig struct {
	MaxRetries         int           `mapstructure:"max_retries"`
	RetryDelay         time.Duration `mapstructure:"retry_delay"`
	ExponentialBackoff bool          `mapstructure:"exponential_backoff"`
	ItemDelay          time.Duration `mapstructure:"item_delay"`
	StaleTimeout       time.Duration `mapstructure:"stale_timeout"`
}

// ArchiveConfig selects where raw profile snapshots are written.
// Provider is one of "none", "memory", "local", "gcs".
type ArchiveConfig struct {
	Provider string `mapstructure:"provider"`
	Bucket   string `mapstructure:"bucket"`
	BaseDir  string `mapstructure:"base_dir"`
	Prefix   string `mapstructure:"prefix"`
}

// PublishConfig selects where profile-committed events are published.
// Provider is one of "none", "memory", "pubsub".
type PublishConfig struct {
	Provider  string `mapstructure:"provider"`
	ProjectID string `mapstructure:"project_id"`
	Topic     string `mapstructure:"topic"`
}

// ScheduleConfig controls the schedule command. Mode is "interval" or
// "daily"; At is a HH:MM clock time used in daily mode.
type ScheduleConfig struct {
	Mode     string        `mapstructure:"mode"`
	Interval time.Duration `mapstructure:"interval"`
	At       string        `mapstructure:"at"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool   `mapstructure:"development"`
	Level       string `mapstructure:"level"`
}

// Load builds a Config from disk and environment. An empty path skips the
// config file and relies on defaults plus SCRAPER_* environment variables.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("SCRAPER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)

	v.SetDefault("db.max_conns", 10)
	v.SetDefault("db.min_conns", 1)
	v.SetDefault("db.connect_retries", 3)
	v.SetDefault("db.connect_backoff", "5s")
	v.SetDefault("db.max_conn_lifetime", "30m")

	v.SetDefault("github.base_url", "https://api.github.com")
	v.SetDefault("github.timeout", "30s")
	v.SetDefault("github.requests_per_second", 0.5)
	v.SetDefault("github.cooldown", "60s")
	v.SetDefault("github.quota_reset_margin", "5s")

	v.SetDefault("discovery.target", 12000)
	v.SetDefault("discovery.batch_size", 100)
	v.SetDefault("discovery.locations", []string{
		"Kyiv", "Kiev", "Kharkiv", "Kharkov", "Odesa", "Odessa",
		"Dnipro", "Dnipropetrovsk", "Lviv", "Lvov", "Zaporizhzhia",
		"Kryvyi Rih", "Mykolaiv", "Mariupol", "Vinnytsia", "Kherson",
		"Poltava", "Ukraine",
	})
	v.SetDefault("discovery.years_start", 2015)
	v.SetDefault("discovery.years_end", 2025)
	v.SetDefault("discovery.max_search_results", 1000)

	v.SetDefault("fetch.target", 10000)
	v.SetDefault("fetch.batch_size", 50)
	v.SetDefault("fetch.top_repos", 5)

	v.SetDefault("enhance.target", 0)
	v.SetDefault("enhance.batch_size", 50)
	v.SetDefault("enhance.timeout", "15s")
	v.SetDefault("enhance.user_agent", "devharvest/1.0 (+https://github.com/JakeFAU/devharvest)")

	v.SetDefault("worker.max_retries", 3)
	v.SetDefault("worker.retry_delay", "5s")
	v.SetDefault("worker.exponential_backoff", true)
	v.SetDefault("worker.item_delay", "2s")
	v.SetDefault("worker.stale_timeout", "30m")

	v.SetDefault("archive.provider", "none")
	v.SetDefault("archive.prefix", "profiles")

	v.SetDefault("publish.provider", "none")
	v.SetDefault("publish.topic", "profile-events")

	v.SetDefault("schedule.mode", "interval")
	v.SetDefault("schedule.interval", "24h")
	v.SetDefault("schedule.at", "02:00")

	v.SetDefault("logging.development", true)
	v.SetDefault("logging.level", "info")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Worker.MaxRetries <= 0 {
		return fmt.Errorf("worker.max_retries must be > 0")
	}
	if c.Worker.StaleTimeout <= 0 {
		return fmt.Errorf("worker.stale_timeout must be > 0")
	}
	if c.Fetch.BatchSize <= 0 || c.Enhance.BatchSize <= 0 {
		return fmt.Errorf("stage batch sizes must be > 0")
	}
	if c.Discovery.YearsEnd <= c.Discovery.YearsStart {
		return fmt.Errorf("discovery.years_end must be after discovery.years_start")
	}
	if c.Discovery.MaxSearchResults <= 0 {
		return fmt.Errorf("discovery.max_search_results must be > 0")
	}
	switch c.Archive.Provider {
	case "", "none", "memory", "local", "gcs":
	default:
		return fmt.Errorf("unknown archive.provider %q", c.Archive.Provider)
	}
	switch c.Publish.Provider {
	case "", "none", "memory", "pubsub":
	default:
		return fmt.Errorf("unknown publish.provider %q", c.Publish.Provider)
	}
	switch c.Schedule.Mode {
	case "interval", "daily":
	default:
		return fmt.Errorf("schedule.mode must be \"interval\" or \"daily\"")
	}
	return nil
}

// Years expands the discovery year range into the individual years queried.
func (c DiscoveryConfig) Years() []int {
	years := make([]int, 0, c.YearsEnd-c.YearsStart)
	for y := c.YearsStart; y < c.YearsEnd; y++ {
		years = append(years, y)
	}
	return years
}

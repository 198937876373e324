package config

import (
	"fmt"
	"time"
)

// Config represents the complete application configuration
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Analytics AnalyticsConfig `mapstructure:"analytics"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Source    SourceConfig    `mapstructure:"source"`
	Queue     QueueConfig     `mapstructure:"queue"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// ServerConfig represents HTTP server configuration
type ServerConfig struct {
	Host     string `mapstructure:"host"`
	HTTPPort int    `mapstructure:"http_port"`
}

// LoggingConfig represents logging configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, file path
	TimeFormat string `mapstructure:"time_format"` // RFC3339, Unix, Kitchen
}

// AnalyticsConfig holds every statistical threshold used by the engines.
// Values here are the single source of truth; engines receive them at construction.
type AnalyticsConfig struct {
	Timezone          string `mapstructure:"timezone"` // used for "date" grouping, e.g. "Asia/Tokyo", "+09:00"
	Anonymize         bool   `mapstructure:"anonymize"` // pseudonymize player ids in record listings
	AnonymizationSalt string `mapstructure:"anonymization_salt"`
	MaxQueryLimit     int    `mapstructure:"max_query_limit"`

	// Comparison
	StabilityThreshold float64 `mapstructure:"stability_threshold"` // percent change treated as stable

	// Trend
	TrendNoiseThreshold float64       `mapstructure:"trend_noise_threshold"` // slope relative to mean
	OutlierZThreshold   float64       `mapstructure:"outlier_z_threshold"`
	SeasonalPeriod      int           `mapstructure:"seasonal_period"`
	WeeklyMinPoints     int           `mapstructure:"weekly_min_points"`
	MonthlyMinPoints    int           `mapstructure:"monthly_min_points"`
	OutlierMinPoints    int           `mapstructure:"outlier_min_points"`
	TrendCacheTTL       time.Duration `mapstructure:"trend_cache_ttl"`

	Anomaly AnomalyConfig `mapstructure:"anomaly"`
}

// AnomalyConfig holds anomaly rule thresholds and severity bands
type AnomalyConfig struct {
	Statistical         float64        `mapstructure:"statistical"`           // z-score for score outliers
	AccuracyDrop        float64        `mapstructure:"accuracy_drop"`         // relative drop vs trailing average
	PlaytimeZ           float64        `mapstructure:"playtime_z"`            // z-score for session duration
	ComboConsistency    float64        `mapstructure:"combo_consistency"`     // minimum 1 - stddev/mean
	ReactionZ           float64        `mapstructure:"reaction_z"`            // z-score for slow reactions
	SlowReactionRatio   float64        `mapstructure:"slow_reaction_ratio"`   // share of slow reactions per session
	FPSFloor            float64        `mapstructure:"fps_floor"`             // samples below are low performance
	LowPerformanceRatio float64        `mapstructure:"low_performance_ratio"` // share of low samples
	QuitRatio           float64        `mapstructure:"quit_ratio"`            // share of quits among recent sessions
	RecentSessions      int            `mapstructure:"recent_sessions"`
	MaxAlertHistory     int            `mapstructure:"max_alert_history"`
	Severity            SeverityConfig `mapstructure:"severity"`
}

// SeverityConfig maps "observed / threshold" ratios to severity levels
type SeverityConfig struct {
	Medium   float64 `mapstructure:"medium"`
	High     float64 `mapstructure:"high"`
	Critical float64 `mapstructure:"critical"`
}

// CacheConfig represents result cache configuration
type CacheConfig struct {
	Backend   string        `mapstructure:"backend"` // memory (default), redis
	TTL       time.Duration `mapstructure:"ttl"`
	RedisURL  string        `mapstructure:"redis_url"`
	KeyPrefix string        `mapstructure:"key_prefix"`
}

// SourceConfig selects the RecordSource implementation
type SourceConfig struct {
	Type        string `mapstructure:"type"`         // memory (default), postgres
	DSN         string `mapstructure:"dsn"`          // postgres connection string
	FixturePath string `mapstructure:"fixture_path"` // JSON file loaded into the memory source
	Migrate     bool   `mapstructure:"migrate"`      // create the postgres table on startup
}

// QueueConfig represents the alert transport configuration
type QueueConfig struct {
	Type     string `mapstructure:"type"` // none (default), memory, nats, redis, kafka
	URL      string `mapstructure:"url"`
	Password string `mapstructure:"password"`
	Subject  string `mapstructure:"subject"` // subject/stream/topic alerts are published to

	RedisDB      int      `mapstructure:"redis_db"`
	RedisMaxLen  int64    `mapstructure:"redis_max_len"`
	KafkaBrokers []string `mapstructure:"kafka_brokers"`
}

// AuthConfig represents authentication configuration
type AuthConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	APIKeys []string `mapstructure:"api_keys"`
}

// MetricsConfig controls the Prometheus endpoint
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if err := c.Server.Validate(); err != nil {
		return fmt.Errorf("server config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	if err := c.Analytics.Validate(); err != nil {
		return fmt.Errorf("analytics config: %w", err)
	}

	if err := c.Cache.Validate(); err != nil {
		return fmt.Errorf("cache config: %w", err)
	}

	if err := c.Source.Validate(); err != nil {
		return fmt.Errorf("source config: %w", err)
	}

	if err := c.Queue.Validate(); err != nil {
		return fmt.Errorf("queue config: %w", err)
	}

	return nil
}

// Validate validates server configuration
func (c *ServerConfig) Validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid http_port: %d", c.HTTPPort)
	}
	return nil
}

// Validate validates logging configuration
func (c *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}

	if !validLevels[c.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}

	if c.Format != "json" && c.Format != "console" {
		return fmt.Errorf("logging.format must be 'json' or 'console'")
	}

	return nil
}

// Validate validates analytics thresholds
func (c *AnalyticsConfig) Validate() error {
	if c.MaxQueryLimit <= 0 {
		return fmt.Errorf("analytics.max_query_limit must be positive")
	}

	if c.StabilityThreshold < 0 {
		return fmt.Errorf("analytics.stability_threshold cannot be negative")
	}

	if c.SeasonalPeriod < 2 {
		return fmt.Errorf("analytics.seasonal_period must be at least 2")
	}

	if c.WeeklyMinPoints < 2 || c.MonthlyMinPoints < 2 {
		return fmt.Errorf("analytics trend minimum points must be at least 2")
	}

	if c.OutlierMinPoints < 2 {
		return fmt.Errorf("analytics.outlier_min_points must be at least 2")
	}

	if c.OutlierZThreshold <= 0 {
		return fmt.Errorf("analytics.outlier_z_threshold must be positive")
	}

	return c.Anomaly.Validate()
}

// Validate validates anomaly thresholds
func (c *AnomalyConfig) Validate() error {
	if c.Statistical <= 0 || c.PlaytimeZ <= 0 || c.ReactionZ <= 0 {
		return fmt.Errorf("anomaly z-score thresholds must be positive")
	}

	for name, ratio := range map[string]float64{
		"accuracy_drop":         c.AccuracyDrop,
		"combo_consistency":     c.ComboConsistency,
		"slow_reaction_ratio":   c.SlowReactionRatio,
		"low_performance_ratio": c.LowPerformanceRatio,
		"quit_ratio":            c.QuitRatio,
	} {
		if ratio <= 0 || ratio >= 1 {
			return fmt.Errorf("anomaly.%s must be between 0 and 1", name)
		}
	}

	if c.FPSFloor <= 0 {
		return fmt.Errorf("anomaly.fps_floor must be positive")
	}

	if c.MaxAlertHistory < 1 {
		return fmt.Errorf("anomaly.max_alert_history must be at least 1")
	}

	if c.RecentSessions < 1 {
		return fmt.Errorf("anomaly.recent_sessions must be at least 1")
	}

	s := c.Severity
	if !(1 <= s.Medium && s.Medium < s.High && s.High < s.Critical) {
		return fmt.Errorf("anomaly.severity bands must satisfy 1 <= medium < high < critical")
	}

	return nil
}

// Validate validates cache configuration
func (c *CacheConfig) Validate() error {
	switch c.Backend {
	case "", "memory":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("cache.redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("cache.backend must be 'memory' or 'redis'")
	}

	if c.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive")
	}

	return nil
}

// Validate validates source configuration
func (c *SourceConfig) Validate() error {
	switch c.Type {
	case "", "memory":
		return nil
	case "postgres":
		if c.DSN == "" {
			return fmt.Errorf("source.dsn is required for the postgres source")
		}
		return nil
	default:
		return fmt.Errorf("source.type must be 'memory' or 'postgres'")
	}
}

// Validate validates queue configuration
func (c *QueueConfig) Validate() error {
	switch c.Type {
	case "", "none", "memory":
		return nil
	case "nats", "redis":
		if c.URL == "" {
			return fmt.Errorf("queue.url is required for %s", c.Type)
		}
		return nil
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			return fmt.Errorf("queue.kafka_brokers is required for kafka")
		}
		return nil
	default:
		return fmt.Errorf("unsupported queue type: %s", c.Type)
	}
}

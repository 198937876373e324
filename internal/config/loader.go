package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Load loads configuration from file, environment (INSIGHT_*) and defaults
func Load(configPath string) (*Config, error) {
	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/insight")
	}

	setDefaults(v)

	// INSIGHT_ANALYTICS_ANOMALY_STATISTICAL overrides analytics.anomaly.statistical
	v.SetEnvPrefix("INSIGHT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return parseConfig(v)
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	return parseConfig(v)
}

// setDefaults mirrors DefaultConfig so a missing file still yields a valid config
func setDefaults(v *viper.Viper) {
	d := DefaultConfig()

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.http_port", d.Server.HTTPPort)

	v.SetDefault("logging.level", d.Logging.Level)
	v.SetDefault("logging.format", d.Logging.Format)
	v.SetDefault("logging.output_path", d.Logging.OutputPath)
	v.SetDefault("logging.time_format", d.Logging.TimeFormat)

	a := d.Analytics
	v.SetDefault("analytics.timezone", a.Timezone)
	v.SetDefault("analytics.anonymize", a.Anonymize)
	v.SetDefault("analytics.anonymization_salt", a.AnonymizationSalt)
	v.SetDefault("analytics.max_query_limit", a.MaxQueryLimit)
	v.SetDefault("analytics.stability_threshold", a.StabilityThreshold)
	v.SetDefault("analytics.trend_noise_threshold", a.TrendNoiseThreshold)
	v.SetDefault("analytics.outlier_z_threshold", a.OutlierZThreshold)
	v.SetDefault("analytics.seasonal_period", a.SeasonalPeriod)
	v.SetDefault("analytics.weekly_min_points", a.WeeklyMinPoints)
	v.SetDefault("analytics.monthly_min_points", a.MonthlyMinPoints)
	v.SetDefault("analytics.outlier_min_points", a.OutlierMinPoints)
	v.SetDefault("analytics.trend_cache_ttl", a.TrendCacheTTL.String())

	an := a.Anomaly
	v.SetDefault("analytics.anomaly.statistical", an.Statistical)
	v.SetDefault("analytics.anomaly.accuracy_drop", an.AccuracyDrop)
	v.SetDefault("analytics.anomaly.playtime_z", an.PlaytimeZ)
	v.SetDefault("analytics.anomaly.combo_consistency", an.ComboConsistency)
	v.SetDefault("analytics.anomaly.reaction_z", an.ReactionZ)
	v.SetDefault("analytics.anomaly.slow_reaction_ratio", an.SlowReactionRatio)
	v.SetDefault("analytics.anomaly.fps_floor", an.FPSFloor)
	v.SetDefault("analytics.anomaly.low_performance_ratio", an.LowPerformanceRatio)
	v.SetDefault("analytics.anomaly.quit_ratio", an.QuitRatio)
	v.SetDefault("analytics.anomaly.recent_sessions", an.RecentSessions)
	v.SetDefault("analytics.anomaly.max_alert_history", an.MaxAlertHistory)
	v.SetDefault("analytics.anomaly.severity.medium", an.Severity.Medium)
	v.SetDefault("analytics.anomaly.severity.high", an.Severity.High)
	v.SetDefault("analytics.anomaly.severity.critical", an.Severity.Critical)

	v.SetDefault("cache.backend", d.Cache.Backend)
	v.SetDefault("cache.ttl", d.Cache.TTL.String())
	v.SetDefault("cache.key_prefix", d.Cache.KeyPrefix)

	v.SetDefault("source.type", d.Source.Type)

	v.SetDefault("queue.type", d.Queue.Type)
	v.SetDefault("queue.subject", d.Queue.Subject)
	v.SetDefault("queue.redis_max_len", d.Queue.RedisMaxLen)

	v.SetDefault("metrics.enabled", d.Metrics.Enabled)
	v.SetDefault("metrics.path", d.Metrics.Path)
}

// parseConfig parses viper config into Config struct
func parseConfig(v *viper.Viper) (*Config, error) {
	var cfg Config

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// LoadOrDefault loads configuration from file or returns default config
func LoadOrDefault(configPath string) *Config {
	cfg, err := Load(configPath)
	if err != nil {
		return DefaultConfig()
	}
	return cfg
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "0.0.0.0",
			HTTPPort: 5570,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "json",
			OutputPath: "stdout",
			TimeFormat: "RFC3339",
		},
		Analytics: AnalyticsConfig{
			Timezone:            "UTC",
			Anonymize:           true,
			AnonymizationSalt:   "insight",
			MaxQueryLimit:       10000,
			StabilityThreshold:  5.0,
			TrendNoiseThreshold: 0.01,
			OutlierZThreshold:   2.0,
			SeasonalPeriod:      7,
			WeeklyMinPoints:     7,
			MonthlyMinPoints:    30,
			OutlierMinPoints:    5,
			TrendCacheTTL:       5 * time.Minute,
			Anomaly: AnomalyConfig{
				Statistical:         2.5,
				AccuracyDrop:        0.3,
				PlaytimeZ:           2.0,
				ComboConsistency:    0.5,
				ReactionZ:           1.5,
				SlowReactionRatio:   0.2,
				FPSFloor:            30,
				LowPerformanceRatio: 0.3,
				QuitRatio:           0.4,
				RecentSessions:      10,
				MaxAlertHistory:     100,
				Severity: SeverityConfig{
					Medium:   1.25,
					High:     1.5,
					Critical: 2.0,
				},
			},
		},
		Cache: CacheConfig{
			Backend:   "memory",
			TTL:       5 * time.Minute,
			KeyPrefix: "insight:",
		},
		Source: SourceConfig{
			Type: "memory",
		},
		Queue: QueueConfig{
			Type:        "none",
			Subject:     "insight.alerts",
			RedisMaxLen: 10000,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Path:    "/metrics",
		},
	}
}

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfigValidation(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr bool
	}{
		{
			name:    "default config should be valid",
			mutate:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "invalid http port",
			mutate:  func(c *Config) { c.Server.HTTPPort = 0 },
			wantErr: true,
		},
		{
			name:    "invalid logging level",
			mutate:  func(c *Config) { c.Logging.Level = "trace" },
			wantErr: true,
		},
		{
			name:    "invalid logging format",
			mutate:  func(c *Config) { c.Logging.Format = "xml" },
			wantErr: true,
		},
		{
			name:    "negative stability threshold",
			mutate:  func(c *Config) { c.Analytics.StabilityThreshold = -1 },
			wantErr: true,
		},
		{
			name:    "seasonal period too small",
			mutate:  func(c *Config) { c.Analytics.SeasonalPeriod = 1 },
			wantErr: true,
		},
		{
			name:    "quit ratio out of range",
			mutate:  func(c *Config) { c.Analytics.Anomaly.QuitRatio = 1.5 },
			wantErr: true,
		},
		{
			name:    "severity bands out of order",
			mutate:  func(c *Config) { c.Analytics.Anomaly.Severity.High = 3 },
			wantErr: true,
		},
		{
			name:    "equal severity bands",
			mutate:  func(c *Config) { c.Analytics.Anomaly.Severity.High = c.Analytics.Anomaly.Severity.Critical },
			wantErr: true,
		},
		{
			name:    "zero alert history",
			mutate:  func(c *Config) { c.Analytics.Anomaly.MaxAlertHistory = 0 },
			wantErr: true,
		},
		{
			name:    "redis cache without url",
			mutate:  func(c *Config) { c.Cache.Backend = "redis" },
			wantErr: true,
		},
		{
			name:    "postgres source without dsn",
			mutate:  func(c *Config) { c.Source.Type = "postgres" },
			wantErr: true,
		},
		{
			name:    "kafka without brokers",
			mutate:  func(c *Config) { c.Queue.Type = "kafka" },
			wantErr: true,
		},
		{
			name:    "unknown queue type",
			mutate:  func(c *Config) { c.Queue.Type = "carrier-pigeon" },
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	defer func() { _ = os.Chdir(wd) }()

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, 5570, cfg.Server.HTTPPort)
	assert.Equal(t, 2.5, cfg.Analytics.Anomaly.Statistical)
	assert.Equal(t, 100, cfg.Analytics.Anomaly.MaxAlertHistory)
	assert.Equal(t, 5*time.Minute, cfg.Analytics.TrendCacheTTL)
	assert.Equal(t, "insight.alerts", cfg.Queue.Subject)
}

func TestLoad_FromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "insight.yaml")
	content := `
server:
  http_port: 8088
logging:
  level: debug
  format: console
analytics:
  stability_threshold: 10
  trend_cache_ttl: 1m
  anomaly:
    statistical: 3
    max_alert_history: 3
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8088, cfg.Server.HTTPPort)
	assert.True(t, cfg.IsDevelopment())
	assert.Equal(t, 10.0, cfg.Analytics.StabilityThreshold)
	assert.Equal(t, time.Minute, cfg.Analytics.TrendCacheTTL)
	assert.Equal(t, 3.0, cfg.Analytics.Anomaly.Statistical)
	assert.Equal(t, 3, cfg.Analytics.Anomaly.MaxAlertHistory)
	// untouched keys keep their defaults
	assert.Equal(t, 0.4, cfg.Analytics.Anomaly.QuitRatio)
}

func TestLoad_InvalidFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  http_port: 0\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)

	cfg := LoadOrDefault(path)
	assert.Equal(t, DefaultConfig().Server.HTTPPort, cfg.Server.HTTPPort)
}

func TestAnalyticsLocation(t *testing.T) {
	tests := []struct {
		tz         string
		wantOffset int
	}{
		{"", 0},
		{"UTC", 0},
		{"+09:00", 9 * 3600},
		{"-05:30", -(5*3600 + 30*60)},
		{"not/a-zone", 0},
	}

	ref := time.Date(2024, 1, 15, 12, 0, 0, 0, time.UTC)
	for _, tt := range tests {
		t.Run(tt.tz, func(t *testing.T) {
			cfg := AnalyticsConfig{Timezone: tt.tz}
			_, offset := ref.In(cfg.Location()).Zone()
			assert.Equal(t, tt.wantOffset, offset)
		})
	}
}

func TestGetServerAddress(t *testing.T) {
	cfg := DefaultConfig()
	assert.Equal(t, "0.0.0.0:5570", cfg.GetServerAddress())
}

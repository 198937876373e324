package config

import (
	"fmt"
	"regexp"
	"strconv"
	"time"
)

var offsetPattern = regexp.MustCompile(`^([+-])(\d{2}):(\d{2})$`)

// GetServerAddress returns the HTTP listen address
func (c *Config) GetServerAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.HTTPPort)
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Logging.Level == "debug" && c.Logging.Format == "console"
}

// Location returns the configured analytics timezone.
// Supports IANA names ("Asia/Tokyo") and fixed offsets ("+09:00"); falls back to UTC.
func (c *AnalyticsConfig) Location() *time.Location {
	if c.Timezone == "" {
		return time.UTC
	}

	if loc, err := time.LoadLocation(c.Timezone); err == nil {
		return loc
	}

	if loc, err := parseOffsetTimezone(c.Timezone); err == nil {
		return loc
	}

	return time.UTC
}

// parseOffsetTimezone parses timezone offset format like "+09:00", "-05:00"
func parseOffsetTimezone(offset string) (*time.Location, error) {
	matches := offsetPattern.FindStringSubmatch(offset)
	if len(matches) != 4 {
		return nil, fmt.Errorf("invalid offset format: %s", offset)
	}

	sign := 1
	if matches[1] == "-" {
		sign = -1
	}

	hours, err := strconv.Atoi(matches[2])
	if err != nil {
		return nil, fmt.Errorf("invalid hours: %s", matches[2])
	}

	minutes, err := strconv.Atoi(matches[3])
	if err != nil {
		return nil, fmt.Errorf("invalid minutes: %s", matches[3])
	}

	return time.FixedZone(offset, sign*(hours*3600+minutes*60)), nil
}

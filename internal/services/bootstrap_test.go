package services

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/soltixdb/insight/internal/config"
	"github.com/soltixdb/insight/internal/logging"
	"github.com/soltixdb/insight/internal/models"
	"github.com/soltixdb/insight/internal/utils"
)

func TestBootstrap_MemoryFixture(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.json")
	fixture := `{"sessionData":[{"sessionId":"s1","playerId":"p1","timestamp":"2024-03-07T10:00:00Z","finalScore":100}]}`
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o600))

	cfg := config.DefaultConfig()
	cfg.Source.FixturePath = path
	cfg.Queue.Type = "memory"

	rt, err := Bootstrap(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	defer func() { assert.NoError(t, rt.Close()) }()

	env := rt.Service.GetRecords(context.Background(), utils.DataTypeSessions, models.Filter{})
	require.True(t, env.Success)
	assert.Equal(t, 1, env.Metadata.DataPoints)
	assert.True(t, env.Metadata.Anonymized)
}

func TestBootstrap_AnonymizationDisabled(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixture.json")
	fixture := `{"sessionData":[{"sessionId":"s1","playerId":"p1","timestamp":"2024-03-07T10:00:00Z","finalScore":100}]}`
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o600))

	cfg := config.DefaultConfig()
	cfg.Source.FixturePath = path
	cfg.Analytics.Anonymize = false

	rt, err := Bootstrap(context.Background(), cfg, logging.NewNop())
	require.NoError(t, err)
	defer func() { assert.NoError(t, rt.Close()) }()

	env := rt.Service.GetRecords(context.Background(), utils.DataTypeSessions, models.Filter{})
	require.True(t, env.Success)
	assert.False(t, env.Metadata.Anonymized)
	records, ok := env.Data.([]models.Record)
	require.True(t, ok)
	require.Len(t, records, 1)
	assert.Equal(t, "p1", records[0].String(models.FieldPlayerID))
}

func TestBootstrap_Errors(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Source.FixturePath = filepath.Join(t.TempDir(), "missing.json")
	_, err := Bootstrap(context.Background(), cfg, logging.NewNop())
	assert.Error(t, err)

	cfg = config.DefaultConfig()
	cfg.Queue.Type = "carrier-pigeon"
	_, err = Bootstrap(context.Background(), cfg, logging.NewNop())
	assert.Error(t, err)

	cfg = config.DefaultConfig()
	cfg.Cache.Backend = "memcached"
	_, err = Bootstrap(context.Background(), cfg, logging.NewNop())
	assert.Error(t, err)
}

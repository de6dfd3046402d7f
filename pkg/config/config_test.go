package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.True(t, cfg.Cascade.ProfileOnAccountDelete)
	assert.False(t, cfg.Cascade.AccountOnProfileDelete)
	assert.Equal(t, int64(5*1024*1024), cfg.Storage.MaxFileSizeBytes)
	assert.Equal(t, []string{"image/jpeg", "image/png", "image/webp"}, cfg.Storage.AllowedMIMEs)
	assert.Equal(t, 5*time.Minute, cfg.Cache.StatsTTL)
	assert.Zero(t, cfg.Cache.WarmWorkers)
}

func TestLoadCascadeOverrides(t *testing.T) {
	t.Setenv("CASCADE_PROFILE_ON_ACCOUNT_DELETE", "false")
	t.Setenv("CASCADE_ACCOUNT_ON_PROFILE_DELETE", "true")
	t.Setenv("STATS_CACHE_TTL", "not-a-duration")
	t.Setenv("STATS_CACHE_WARM_WORKERS", "2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.False(t, cfg.Cascade.ProfileOnAccountDelete)
	assert.True(t, cfg.Cascade.AccountOnProfileDelete)
	assert.Equal(t, 5*time.Minute, cfg.Cache.StatsTTL)
	assert.Equal(t, 2, cfg.Cache.WarmWorkers)
}

func TestDatabaseConnectionStrings(t *testing.T) {
	db := DatabaseConfig{Host: "db", Port: 5432, User: "u", Password: "p", Name: "notas", SSLMode: "disable"}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=notas sslmode=disable", db.DSN())
	assert.Equal(t, "postgres://u:p@db:5432/notas?sslmode=disable", db.URL())
}

func TestSplitAndTrim(t *testing.T) {
	assert.Nil(t, splitAndTrim(""))
	assert.Equal(t, []string{"a", "b"}, splitAndTrim(" a, ,b "))
}

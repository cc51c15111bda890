package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadFromEnv_Defaults(t *testing.T) {
	for _, k := range []string{"PORT", "GEO_STATIC_DIR", "GEO_CACHE_MAX_ENTRIES", "GEO_REFINE_LOWEST",
		"RESOLVE_CACHE_TTL", "REDIS_ADDR", "CORS_ALLOWED_ORIGINS", "RECONCILE_CHUNK_SIZE"} {
		t.Setenv(k, "")
	}
	t.Setenv("DATABASE_URL", "postgres://localhost/ev")

	c := LoadFromEnv()
	assert.Equal(t, "5050", c.Port)
	assert.Equal(t, "static", c.StaticDir)
	assert.Equal(t, "maps/countries-110m-iso.json", c.WorldFile)
	assert.Equal(t, 256, c.CacheMaxEntries)
	assert.True(t, c.RefineToLowest)
	assert.Equal(t, 10*time.Minute, c.ResolveCacheTTL)
	assert.Equal(t, 500, c.ReconcileChunkSize)
	assert.Equal(t, DefaultAllowedOrigins, c.AllowedOrigins)
	require.NoError(t, c.Validate())
}

func TestLoadFromEnv_Overrides(t *testing.T) {
	t.Setenv("GEO_REFINE_LOWEST", "false")
	t.Setenv("RESOLVE_CACHE_TTL", "0")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("GEOCODE_RATE_LIMIT_RPS", "2.5")
	t.Setenv("CORS_ALLOWED_ORIGINS", " https://a.example , ,https://b.example")
	t.Setenv("GEO_CACHE_MAX_ENTRIES", "not-a-number")

	c := LoadFromEnv()
	assert.False(t, c.RefineToLowest)
	assert.Zero(t, c.ResolveCacheTTL)
	assert.Equal(t, 3, c.RedisDB)
	assert.Equal(t, 2.5, c.RateLimitRPS)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, c.AllowedOrigins)
	assert.Equal(t, 256, c.CacheMaxEntries)
}

func TestValidate(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	c := LoadFromEnv()
	assert.ErrorIs(t, c.Validate(), ErrMissingDatabaseURL)
	assert.NoError(t, c.ValidateGeometry())

	c.DatabaseURL = "postgres://x"
	c.CacheMaxEntries = -1
	assert.Error(t, c.Validate())

	c.CacheMaxEntries = 0
	c.ReconcileChunkSize = 0
	assert.Error(t, c.Validate())
}

package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

var (
	ErrMissingDatabaseURL = errors.New("DATABASE_URL is required")
	ErrMissingStaticDir   = errors.New("GEO_STATIC_DIR is required")
)

// Config holds the settings shared by the server and the CLI tools.
type Config struct {
	DatabaseURL string
	Port        string

	// Boundary files
	StaticDir       string
	WorldFile       string
	CountryDir      string
	FieldsFile      string
	CacheMaxEntries int
	RefineToLowest  bool

	// Result cache
	ResolveCacheTTL time.Duration
	RedisAddr       string
	RedisPassword   string
	RedisDB         int

	GeoIPPath  string
	AdminToken string

	RateLimitRPS   float64
	RateLimitBurst int

	ReconcileChunkSize int
	ReconcileWorkers   int

	AllowedOrigins []string
}

// DefaultAllowedOrigins is used when CORS_ALLOWED_ORIGINS is unset.
var DefaultAllowedOrigins = []string{
	"http://localhost:5173",
	"http://localhost:5174",
	"https://empoweredvote.github.io",
	"https://compass.empowered.vote",
	"https://essentials.empowered.vote",
}

// LoadFromEnv reads configuration from environment variables.
//
// Environment variables:
//   - DATABASE_URL: Postgres DSN
//   - PORT: HTTP port (default: 5050)
//   - GEO_STATIC_DIR: root of the boundary bundle (default: static)
//   - GEO_WORLD_FILE: world outlines, relative to GEO_STATIC_DIR (default: maps/countries-110m-iso.json)
//   - GEO_COUNTRY_DIR: per-country files, relative to GEO_STATIC_DIR (default: geojson)
//   - GEO_FIELDS_FILE: optional YAML overriding property field precedence
//   - GEO_CACHE_MAX_ENTRIES: boundary files kept in memory, 0 = unbounded (default: 256)
//   - GEO_REFINE_LOWEST: move matches down to lowest-level rows (default: true)
//   - RESOLVE_CACHE_TTL: result cache TTL, 0 disables (default: 10m)
//   - REDIS_ADDR, REDIS_PASSWORD, REDIS_DB: shared result cache, off when REDIS_ADDR is empty
//   - GEOIP_DB_PATH: MaxMind City database for /geo/geocode/ip
//   - ADMIN_TOKEN: required by /geo/admin routes; empty disables them
//   - GEOCODE_RATE_LIMIT_RPS, GEOCODE_RATE_LIMIT_BURST: per-IP limits (default: 10, 20)
//   - RECONCILE_CHUNK_SIZE, RECONCILE_WORKERS: batch settings (default: 500, 0 = NumCPU)
//   - CORS_ALLOWED_ORIGINS: comma-separated origin allow-list
func LoadFromEnv() Config {
	return Config{
		DatabaseURL: strings.TrimSpace(os.Getenv("DATABASE_URL")),
		Port:        str("PORT", "5050"),

		StaticDir:       str("GEO_STATIC_DIR", "static"),
		WorldFile:       str("GEO_WORLD_FILE", "maps/countries-110m-iso.json"),
		CountryDir:      str("GEO_COUNTRY_DIR", "geojson"),
		FieldsFile:      str("GEO_FIELDS_FILE", ""),
		CacheMaxEntries: integer("GEO_CACHE_MAX_ENTRIES", 256),
		RefineToLowest:  boolean("GEO_REFINE_LOWEST", true),

		ResolveCacheTTL: duration("RESOLVE_CACHE_TTL", 10*time.Minute),
		RedisAddr:       str("REDIS_ADDR", ""),
		RedisPassword:   os.Getenv("REDIS_PASSWORD"),
		RedisDB:         integer("REDIS_DB", 0),

		GeoIPPath:  str("GEOIP_DB_PATH", ""),
		AdminToken: strings.TrimSpace(os.Getenv("ADMIN_TOKEN")),

		RateLimitRPS:   float("GEOCODE_RATE_LIMIT_RPS", 10),
		RateLimitBurst: integer("GEOCODE_RATE_LIMIT_BURST", 20),

		ReconcileChunkSize: integer("RECONCILE_CHUNK_SIZE", 500),
		ReconcileWorkers:   integer("RECONCILE_WORKERS", 0),

		AllowedOrigins: list("CORS_ALLOWED_ORIGINS", DefaultAllowedOrigins),
	}
}

// Validate checks settings the server cannot start without.
func (c Config) Validate() error {
	if c.DatabaseURL == "" {
		return ErrMissingDatabaseURL
	}
	return c.ValidateGeometry()
}

// ValidateGeometry checks only the boundary settings, for offline tools.
func (c Config) ValidateGeometry() error {
	if c.StaticDir == "" {
		return ErrMissingStaticDir
	}
	if c.CacheMaxEntries < 0 {
		return fmt.Errorf("GEO_CACHE_MAX_ENTRIES must be >= 0, got %d", c.CacheMaxEntries)
	}
	if c.ReconcileChunkSize <= 0 {
		return fmt.Errorf("RECONCILE_CHUNK_SIZE must be > 0, got %d", c.ReconcileChunkSize)
	}
	if c.RateLimitRPS < 0 || c.RateLimitBurst < 0 {
		return errors.New("geocode rate limits must be >= 0")
	}
	return nil
}

func str(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func integer(key string, def int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return v
}

func float(key string, def float64) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(os.Getenv(key)), 64)
	if err != nil {
		return def
	}
	return v
}

func boolean(key string, def bool) bool {
	v, err := strconv.ParseBool(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return v
}

func duration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return def
	}
	return v
}

func list(key string, def []string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(raw, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

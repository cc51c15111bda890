package geo

import (
	"fmt"
	"log"
	"time"

	"github.com/EmpoweredVote/EV-Globe/internal/config"
	"github.com/EmpoweredVote/EV-Globe/internal/db"
	"github.com/EmpoweredVote/EV-Globe/internal/geo/geometry"
	"github.com/EmpoweredVote/EV-Globe/internal/geo/hierarchy"
	"github.com/EmpoweredVote/EV-Globe/internal/geo/locate"
	"github.com/EmpoweredVote/EV-Globe/internal/geo/reconcile"
	"github.com/EmpoweredVote/EV-Globe/internal/geo/resolver"
	"github.com/EmpoweredVote/EV-Globe/internal/iplocate"
	"github.com/EmpoweredVote/EV-Globe/internal/middleware"
	"gorm.io/gorm"
)

// Svc is the live service, set by Init.
var Svc *Service

func Init(cfg config.Config) {
	if err := db.Migrate(db.DB, "geo", &hierarchy.Subdivision{}); err != nil {
		log.Fatal("Failed to migrate geo tables: ", err)
	}

	svc, err := NewService(cfg, db.DB)
	if err != nil {
		log.Fatal("Failed to start geo service: ", err)
	}
	Svc = svc
}

// BuildResolver wires boundary files, field precedence and result caches
// around a hierarchy store.
func BuildResolver(cfg config.Config, store hierarchy.Store) (*resolver.Resolver, *geometry.Store, error) {
	fields, err := locate.LoadFieldsFile(cfg.FieldsFile)
	if err != nil {
		return nil, nil, err
	}

	src := geometry.NewDirSource(cfg.StaticDir, cfg.WorldFile, cfg.CountryDir)
	geo := geometry.NewStore(src, geometry.WithMaxEntries(cfg.CacheMaxEntries))

	opts := resolver.DefaultOptions()
	opts.Fields = fields
	opts.RefineToLowest = cfg.RefineToLowest
	opts.Cache = resultCache(cfg)

	return resolver.New(geo, hierarchy.NewRepository(store), opts), geo, nil
}

func resultCache(cfg config.Config) resolver.ResultCache {
	if cfg.ResolveCacheTTL <= 0 {
		return nil
	}
	tiers := resolver.Tiered{resolver.NewLocalCache(cfg.ResolveCacheTTL)}
	if rdb := resolver.OpenRedis(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB); rdb != nil {
		tiers = append(tiers, resolver.NewRedisCache(rdb, cfg.ResolveCacheTTL))
		log.Printf("[geo] Sharing resolve cache through redis at %s", cfg.RedisAddr)
	}
	return tiers
}

// NewService builds the HTTP-facing service on top of Postgres.
func NewService(cfg config.Config, gdb *gorm.DB) (*Service, error) {
	res, _, err := BuildResolver(cfg, hierarchy.NewGormStore(gdb))
	if err != nil {
		return nil, err
	}

	ip, err := iplocate.Open(cfg.GeoIPPath)
	if err != nil {
		log.Printf("[geo] WARNING: %v; /geo/geocode/ip is disabled", err)
		ip = nil
	}

	svc := &Service{
		Resolver:   res,
		IP:         ip,
		Votes:      reconcile.NewGormVoteStore(gdb),
		AdminToken: cfg.AdminToken,
		Limiter:    middleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst),
		ChunkSize:  cfg.ReconcileChunkSize,
		Workers:    cfg.ReconcileWorkers,
	}
	svc.Jobs = NewJobManager(svc.newReconciler)

	if cfg.AdminToken == "" {
		log.Printf("[geo] ADMIN_TOKEN is empty; admin routes are disabled")
	}
	log.Printf("[geo] Serving boundaries from %s (refine_lowest=%v cache_ttl=%s)",
		cfg.StaticDir, cfg.RefineToLowest, fmtTTL(cfg.ResolveCacheTTL))
	return svc, nil
}

func fmtTTL(d time.Duration) string {
	if d <= 0 {
		return "off"
	}
	return fmt.Sprint(d)
}

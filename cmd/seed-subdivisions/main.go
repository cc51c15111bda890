package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"github.com/EmpoweredVote/EV-Globe/internal/config"
	"github.com/EmpoweredVote/EV-Globe/internal/db"
	"github.com/EmpoweredVote/EV-Globe/internal/geo/geometry"
	"github.com/EmpoweredVote/EV-Globe/internal/geo/hierarchy"
	"github.com/EmpoweredVote/EV-Globe/internal/geo/locate"
	"github.com/EmpoweredVote/EV-Globe/internal/geo/seed"
	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
	"gorm.io/gorm/logger"
)

var (
	staticDir = flag.String("static", "", "boundary bundle directory (default: env GEO_STATIC_DIR)")
	countries = flag.String("country", "", "comma-separated ISO3 codes to seed (default: all)")
	dryRun    = flag.Bool("dry-run", false, "Build rows and print a summary; no DB writes")
)

var stageColumns = []string{
	"hierarchical_id", "country_code", "level", "parent_hierarchical_id",
	"name", "name_local", "name_variants", "search_key",
	"centroid_lat", "centroid_lon", "is_lowest_level",
}

func main() {
	_ = godotenv.Load(".env.local")
	flag.Parse()

	cfg := config.LoadFromEnv()
	if *staticDir != "" {
		cfg.StaticDir = *staticDir
	}
	if err := cfg.ValidateGeometry(); err != nil {
		log.Fatal(err)
	}
	fields, err := locate.LoadFieldsFile(cfg.FieldsFile)
	if err != nil {
		log.Fatal(err)
	}

	src := geometry.NewDirSource(cfg.StaticDir, cfg.WorldFile, cfg.CountryDir)
	rows, problems, err := seed.NewBuilder(src, fields).Build(splitCodes(*countries))
	if err != nil {
		log.Fatal(err)
	}
	seed.MarkLowest(rows)
	printSummary(rows, problems)

	if *dryRun {
		fmt.Println("Dry run complete. No changes made.")
		return
	}
	if cfg.DatabaseURL == "" {
		log.Fatal(config.ErrMissingDatabaseURL)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	if err := migrate(cfg.DatabaseURL); err != nil {
		log.Fatalf("migrate: %v", err)
	}
	n, err := upsert(ctx, cfg.DatabaseURL, rows)
	if err != nil {
		log.Fatalf("upsert: %v", err)
	}
	fmt.Printf("Upserted %d subdivisions ✅\n", n)
}

func splitCodes(s string) []string {
	var out []string
	for _, c := range strings.Split(s, ",") {
		if c = strings.TrimSpace(c); c != "" {
			out = append(out, strings.ToUpper(c))
		}
	}
	return out
}

func printSummary(rows []hierarchy.Subdivision, problems []seed.Problem) {
	byLevel := map[int]int{}
	lowest := 0
	for _, r := range rows {
		byLevel[r.Level]++
		if r.IsLowestLevel {
			lowest++
		}
	}
	fmt.Printf("Built %d subdivisions (%d lowest-level)\n", len(rows), lowest)
	for lvl := 1; lvl <= 3; lvl++ {
		fmt.Printf("  level %d: %d\n", lvl, byLevel[lvl])
	}
	if len(problems) > 0 {
		fmt.Printf("%d problems:\n", len(problems))
		for _, p := range problems {
			fmt.Printf("  %s\n", p)
		}
	}
}

// migrate creates geo.subdivisions the same way the server does.
func migrate(dsn string) error {
	d, err := db.Open(dsn, logger.Warn)
	if err != nil {
		return err
	}
	return db.Migrate(d, "geo", &hierarchy.Subdivision{})
}

// upsert streams rows into a temp table with COPY and merges them into
// geo.subdivisions in one transaction. Existing ids are kept so votes stay
// linked; rows missing from the bundle are left alone.
func upsert(ctx context.Context, dsn string, rows []hierarchy.Subdivision) (int64, error) {
	conn, err := pgx.Connect(ctx, dsn)
	if err != nil {
		return 0, fmt.Errorf("connect: %w", err)
	}
	defer conn.Close(ctx)

	tx, err := conn.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx) // no-op if already committed
	}()

	if _, err := tx.Exec(ctx, `
		CREATE TEMP TABLE subdivisions_stage (
			hierarchical_id        text PRIMARY KEY,
			country_code           text NOT NULL,
			level                  bigint NOT NULL,
			parent_hierarchical_id text,
			name                   text NOT NULL,
			name_local             text,
			name_variants          text[],
			search_key             text,
			centroid_lat           double precision,
			centroid_lon           double precision,
			is_lowest_level        boolean NOT NULL
		) ON COMMIT DROP`); err != nil {
		return 0, fmt.Errorf("create stage: %w", err)
	}

	copied, err := tx.CopyFrom(ctx, pgx.Identifier{"subdivisions_stage"}, stageColumns,
		pgx.CopyFromSlice(len(rows), func(i int) ([]any, error) {
			r := rows[i]
			return []any{
				r.HierarchicalID, r.CountryCode, int64(r.Level), r.ParentHierarchicalID,
				r.Name, r.NameLocal, []string(r.NameVariants), r.SearchKey,
				r.CentroidLat, r.CentroidLon, r.IsLowestLevel,
			}, nil
		}))
	if err != nil {
		return 0, fmt.Errorf("copy: %w", err)
	}
	log.Printf("[seed] Copied %d rows into stage", copied)

	tag, err := tx.Exec(ctx, `
		INSERT INTO geo.subdivisions (`+strings.Join(stageColumns, ", ")+`, created_at, updated_at)
		SELECT `+strings.Join(stageColumns, ", ")+`, now(), now()
		FROM subdivisions_stage
		ON CONFLICT (hierarchical_id) DO UPDATE SET
			country_code           = EXCLUDED.country_code,
			level                  = EXCLUDED.level,
			parent_hierarchical_id = EXCLUDED.parent_hierarchical_id,
			name                   = EXCLUDED.name,
			name_local             = COALESCE(NULLIF(EXCLUDED.name_local, ''), geo.subdivisions.name_local),
			search_key             = EXCLUDED.search_key,
			centroid_lat           = EXCLUDED.centroid_lat,
			centroid_lon           = EXCLUDED.centroid_lon,
			updated_at             = now()`)
	if err != nil {
		return 0, fmt.Errorf("merge: %w", err)
	}

	// lowest-level flags follow the whole table, not just this bundle
	if _, err := tx.Exec(ctx, `
		UPDATE geo.subdivisions AS s
		SET is_lowest_level = NOT EXISTS (
			SELECT 1 FROM geo.subdivisions c WHERE c.parent_hierarchical_id = s.hierarchical_id
		)`); err != nil {
		return 0, fmt.Errorf("mark lowest: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return tag.RowsAffected(), nil
}

func init() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: seed-subdivisions [--static DIR] [--country ESP,FRA] [--dry-run]\n")
		flag.PrintDefaults()
	}
}

package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/EmpoweredVote/EV-Globe/internal/config"
	"github.com/EmpoweredVote/EV-Globe/internal/db"
	"github.com/EmpoweredVote/EV-Globe/internal/geo/hierarchy"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	cfg           config.Config
	staticDir     string
	hierarchyPath string
	verbose       bool
)

var rootCmd = &cobra.Command{
	Use:   "geoctl",
	Short: "Subdivision resolver tools",
	Long: `geoctl resolves coordinates offline, reconciles stored votes against the
subdivision hierarchy and checks boundary files.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		_ = godotenv.Load(".env.local")
		cfg = config.LoadFromEnv()
		if staticDir != "" {
			cfg.StaticDir = staticDir
		}
		return cfg.ValidateGeometry()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&staticDir, "static", "", "boundary bundle directory (overrides GEO_STATIC_DIR)")
	rootCmd.PersistentFlags().StringVar(&hierarchyPath, "hierarchy", "", "JSON snapshot of geo.subdivisions to use instead of the database")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log SQL statements")
}

// Execute runs the root command
func Execute() error {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return err
	}
	return nil
}

func openDB() (*gorm.DB, error) {
	if cfg.DatabaseURL == "" {
		return nil, config.ErrMissingDatabaseURL
	}
	level := logger.Warn
	if verbose {
		level = logger.Info
	}
	return db.Open(cfg.DatabaseURL, level)
}

// openHierarchy prefers the --hierarchy snapshot and falls back to Postgres.
func openHierarchy() (hierarchy.Store, error) {
	if hierarchyPath == "" {
		d, err := openDB()
		if err != nil {
			return nil, err
		}
		return hierarchy.NewGormStore(d), nil
	}

	f, err := os.Open(hierarchyPath)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return hierarchy.LoadSnapshot(f)
}

var errFailedChecks = errors.New("checks failed")

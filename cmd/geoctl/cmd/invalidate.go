package cmd

import (
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/EmpoweredVote/EV-Globe/internal/geo/geometry"
	"github.com/spf13/cobra"
)

var invalidateServer string

var invalidateCmd = &cobra.Command{
	Use:   "invalidate KEY",
	Short: "Check that a boundary file loads, then drop it from a running server's cache",
	Long: `KEY is @world, an ISO3 country code or a region id such as ESP.1. The file is
loaded locally first so a broken replacement is caught before the server
is told to reload it.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		key := strings.TrimSpace(args[0])
		if !geometry.ValidKey(key) {
			return fmt.Errorf("%w: %q", geometry.ErrInvalidKey, key)
		}

		store := geometry.NewStore(geometry.NewDirSource(cfg.StaticDir, cfg.WorldFile, cfg.CountryDir))
		coll, err := loadKey(store, key)
		if err != nil {
			return err
		}
		b := coll.Bound
		fmt.Printf("%s: %d features, bounds [%.4f %.4f, %.4f %.4f]\n",
			key, coll.Len(), b.Min.Lon(), b.Min.Lat(), b.Max.Lon(), b.Max.Lat())

		if invalidateServer == "" {
			return nil
		}
		return remoteInvalidate(invalidateServer, key)
	},
}

func init() {
	invalidateCmd.Flags().StringVar(&invalidateServer, "server", "", "base URL of a running server, e.g. http://localhost:5050")
	rootCmd.AddCommand(invalidateCmd)
}

func loadKey(store *geometry.Store, key string) (*geometry.Collection, error) {
	switch {
	case key == geometry.WorldKey:
		return store.LoadWorld()
	case len(key) == 3:
		return store.LoadCountry(key)
	}
	return store.LoadRegion(key)
}

func remoteInvalidate(server, key string) error {
	target := strings.TrimRight(server, "/") + "/geo/admin/geometry/invalidate?key=" + url.QueryEscape(key)
	req, err := http.NewRequest(http.MethodPost, target, nil)
	if err != nil {
		return err
	}
	req.Header.Set("X-Admin-Token", cfg.AdminToken)

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("invalidate %s: %w", key, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("invalidate %s: %s: %s", key, resp.Status, strings.TrimSpace(string(body)))
	}
	fmt.Printf("Server dropped %s\n", key)
	return nil
}

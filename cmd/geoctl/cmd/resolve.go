package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"github.com/EmpoweredVote/EV-Globe/internal/geo"
	"github.com/spf13/cobra"
)

var resolveCmd = &cobra.Command{
	Use:   "resolve LAT LON",
	Short: "Resolve one coordinate and print the result as JSON",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		lat, err := strconv.ParseFloat(args[0], 64)
		if err != nil {
			return fmt.Errorf("latitude: %w", err)
		}
		lon, err := strconv.ParseFloat(args[1], 64)
		if err != nil {
			return fmt.Errorf("longitude: %w", err)
		}

		store, err := openHierarchy()
		if err != nil {
			return err
		}
		cfg.ResolveCacheTTL = 0
		res, _, err := geo.BuildResolver(cfg, store)
		if err != nil {
			return err
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Resolve(cmd.Context(), lat, lon))
	},
}

func init() {
	rootCmd.AddCommand(resolveCmd)
}

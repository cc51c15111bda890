package cmd

import (
	"fmt"

	"github.com/EmpoweredVote/EV-Globe/internal/geo/hierarchy"
	"github.com/spf13/cobra"
)

var markLowestCmd = &cobra.Command{
	Use:   "mark-lowest",
	Short: "Recompute is_lowest_level for every subdivision",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDB()
		if err != nil {
			return err
		}
		repo := hierarchy.NewRepository(hierarchy.NewGormStore(d))

		n, err := repo.MarkLowestLevels(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Updated %d rows\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(markLowestCmd)
}

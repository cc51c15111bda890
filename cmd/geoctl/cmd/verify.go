package cmd

import (
	"fmt"

	"github.com/EmpoweredVote/EV-Globe/internal/geo/hierarchy"
	"github.com/EmpoweredVote/EV-Globe/internal/geo/reconcile"
	"github.com/spf13/cobra"
)

var (
	verifyTop    int
	verifyStrict bool
)

var verifyCmd = &cobra.Command{
	Use:   "verify",
	Short: "Report how many votes are unresolved or linked above the lowest level",
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := openDB()
		if err != nil {
			return err
		}
		ctx := cmd.Context()

		rep, err := reconcile.NewGormVoteStore(d).Integrity(ctx, verifyTop)
		if err != nil {
			return err
		}
		levels, err := hierarchy.NewRepository(hierarchy.NewGormStore(d)).Stats(ctx)
		if err != nil {
			return err
		}

		fmt.Println("=== Subdivisions ===")
		for _, l := range levels {
			fmt.Printf("Level %d: %d rows, %d lowest\n", l.Level, l.Total, l.Lowest)
		}
		fmt.Println()
		fmt.Println("=== Votes ===")
		fmt.Printf("Total:                 %d\n", rep.TotalVotes)
		fmt.Printf("Unresolved:            %d\n", rep.UnresolvedVotes)
		fmt.Printf("Wrong level:           %d\n", rep.WrongLevelVotes)
		fmt.Printf("Dangling links:        %d\n", rep.DanglingVotes)
		fmt.Printf("Lowest without votes:  %d\n", rep.LowestWithoutVotes)
		for _, l := range rep.VotesByLevel {
			fmt.Printf("  level %d: %d votes\n", l.Level, l.Votes)
		}
		if len(rep.TopWrongLevel) > 0 {
			fmt.Println()
			fmt.Println("Top wrong-level subdivisions:")
			for _, s := range rep.TopWrongLevel {
				fmt.Printf("  %-20s %-30s level %d  %d votes\n", s.HierarchicalID, s.Name, s.Level, s.Votes)
			}
		}

		if verifyStrict && (rep.WrongLevelVotes > 0 || rep.DanglingVotes > 0) {
			return fmt.Errorf("%w: %d wrong-level and %d dangling votes", errFailedChecks, rep.WrongLevelVotes, rep.DanglingVotes)
		}
		return nil
	},
}

func init() {
	verifyCmd.Flags().IntVar(&verifyTop, "top", 20, "how many wrong-level subdivisions to list")
	verifyCmd.Flags().BoolVar(&verifyStrict, "strict", false, "exit non-zero when wrong-level or dangling votes exist")
	rootCmd.AddCommand(verifyCmd)
}

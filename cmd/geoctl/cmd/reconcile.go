package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/EmpoweredVote/EV-Globe/internal/geo"
	"github.com/EmpoweredVote/EV-Globe/internal/geo/hierarchy"
	"github.com/EmpoweredVote/EV-Globe/internal/geo/reconcile"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
)

var reconcileFlags struct {
	mode        string
	country     string
	poll        uint
	chunk       int
	workers     int
	resumeAfter uint
	limit       int
	skipZero    bool
	dryRun      bool
}

var reconcileCmd = &cobra.Command{
	Use:   "reconcile",
	Short: "Re-resolve stored votes and link them to lowest-level subdivisions",
	Long: `reconcile walks polls.votes in id order, chunk by chunk. Ctrl-C stops after
the chunk in flight; the printed checkpoint can be passed to --resume-after.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		f := reconcileFlags
		mode, err := reconcile.ParseMode(f.mode)
		if err != nil {
			return err
		}
		filter := reconcile.Filter{
			Mode:                mode,
			Country:             f.country,
			PollID:              f.poll,
			SkipZeroCoordinates: f.skipZero,
			MaxRecords:          f.limit,
		}

		d, err := openDB()
		if err != nil {
			return err
		}
		cfg.ResolveCacheTTL = 0
		res, _, err := geo.BuildResolver(cfg, hierarchy.NewGormStore(d))
		if err != nil {
			return err
		}
		store := reconcile.NewGormVoteStore(d)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		bar := progressBar(ctx, store, filter)
		scanned := 0

		rec := reconcile.New(res, store)
		rec.ChunkSize = firstPositive(f.chunk, cfg.ReconcileChunkSize)
		rec.Workers = firstPositive(f.workers, cfg.ReconcileWorkers)
		rec.DryRun = f.dryRun
		rec.OnChunk = func(rep reconcile.Report) {
			_ = bar.Add(rep.Scanned - scanned)
			scanned = rep.Scanned
		}

		rep, err := rec.Run(ctx, filter, f.resumeAfter)
		_ = bar.Finish()
		printReport(rep)
		if err != nil {
			return err
		}
		if rep.Cancelled {
			fmt.Printf("\nInterrupted. Resume with --resume-after %d\n", rep.LastID)
		}
		return nil
	},
}

func init() {
	fl := reconcileCmd.Flags()
	fl.StringVar(&reconcileFlags.mode, "mode", "unresolved", "unresolved, wrong-level or all")
	fl.StringVar(&reconcileFlags.country, "country", "", "only votes already linked inside this ISO3 country")
	fl.UintVar(&reconcileFlags.poll, "poll", 0, "only votes of this poll")
	fl.IntVar(&reconcileFlags.chunk, "chunk", 0, "votes per chunk (default RECONCILE_CHUNK_SIZE)")
	fl.IntVar(&reconcileFlags.workers, "workers", 0, "concurrent resolutions per chunk (default RECONCILE_WORKERS or NumCPU)")
	fl.UintVar(&reconcileFlags.resumeAfter, "resume-after", 0, "skip votes with id <= this checkpoint")
	fl.IntVar(&reconcileFlags.limit, "limit", 0, "stop after this many votes (0 = all)")
	fl.BoolVar(&reconcileFlags.skipZero, "skip-zero", false, "ignore votes stored at (0, 0)")
	fl.BoolVar(&reconcileFlags.dryRun, "dry-run", false, "resolve and report without writing")
	rootCmd.AddCommand(reconcileCmd)
}

// progressBar knows its total only for wrong-level runs; other modes spin.
func progressBar(ctx context.Context, store reconcile.VoteStore, f reconcile.Filter) *progressbar.ProgressBar {
	total := int64(-1)
	if f.Mode == reconcile.ModeWrongLevel {
		if n, err := store.WrongLevelCount(ctx, f); err == nil {
			total = n
			if f.MaxRecords > 0 && int64(f.MaxRecords) < n {
				total = int64(f.MaxRecords)
			}
		}
	}
	return progressbar.NewOptions64(
		total,
		progressbar.OptionSetDescription("reconciling "+string(f.Mode)),
		progressbar.OptionSetWidth(40),
		progressbar.OptionThrottle(100*time.Millisecond),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetWriter(os.Stderr),
		progressbar.OptionOnCompletion(func() {
			fmt.Fprintln(os.Stderr)
		}),
		progressbar.OptionSpinnerType(14),
	)
}

func printReport(rep reconcile.Report) {
	fmt.Println()
	fmt.Println("=== Reconcile Summary ===")
	if rep.DryRun {
		fmt.Println("Mode:                  DRY RUN (no writes)")
	}
	fmt.Printf("Selection:             %s\n", rep.Mode)
	fmt.Printf("Scanned:               %d\n", rep.Scanned)
	fmt.Printf("Resolved:              %d\n", rep.Resolved)
	fmt.Printf("Still unresolved:      %d\n", rep.StillUnresolved)
	fmt.Printf("Corrected wrong level: %d\n", rep.CorrectedWrongLevel)
	fmt.Printf("Still wrong level:     %d\n", rep.StillWrongLevel)
	fmt.Printf("Reassigned:            %d\n", rep.Reassigned)
	fmt.Printf("Unchanged:             %d\n", rep.Unchanged)
	fmt.Printf("Rows written:          %d\n", rep.Written)
	fmt.Printf("Chunks:                %d\n", rep.Chunks)
	fmt.Printf("Last id:               %d\n", rep.LastID)
	printCounts("By method", rep.ByMethod)
	printCounts("By failure", rep.ByFailure)
}

func printCounts(title string, m map[string]int) {
	if len(m) == 0 {
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	fmt.Printf("%s:\n", title)
	for _, k := range keys {
		fmt.Printf("  %-22s %d\n", k, m[k])
	}
}

func firstPositive(vals ...int) int {
	for _, v := range vals {
		if v > 0 {
			return v
		}
	}
	return 0
}

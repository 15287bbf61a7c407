package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/qmlcore/runtime/engine"
	"github.com/qmlcore/runtime/internal/heap"
	"github.com/qmlcore/runtime/internal/objtree"
)

// newGCStatsCommand builds the "gcstats" subcommand: it drives the
// managed heap through a small allocate/collect cycle and prints the
// resulting heap.Stats, exercising the QMLCORE_GC_FORCE and
// QMLCORE_GC_STATS environment hooks spec.md §6 names (wired via
// heap.CollectorCore.PolicyFromEnv). Grounded on cmd/viewcore/main.go's
// "overview" command, which prints a few overall heap statistics via
// text/tabwriter.
func newGCStatsCommand() *cobra.Command {
	var count, size int
	var full bool

	cmd := &cobra.Command{
		Use:   "gcstats",
		Short: "allocate a sample workload and report GC statistics",
		Run: func(cmd *cobra.Command, args []string) {
			e, err := engine.New(engine.Config{Types: objtree.NewStaticTypeTable()})
			if err != nil {
				exitf("qmlc: %v\n", err)
			}

			slotSize := size - size%heap.SlotSize
			if slotSize <= 0 {
				slotSize = heap.SlotSize
			}
			for i := 0; i < count; i++ {
				if _, err := e.Block.Allocate(slotSize, true); err != nil {
					exitf("qmlc: allocate: %v\n", err)
				}
			}

			fullPtr := &full
			if err := e.GC.RunGC(fullPtr); err != nil {
				exitf("qmlc: RunGC: %v\n", err)
			}

			if !e.GC.DumpStats() {
				exitf("qmlc: gcstats requires QMLCORE_GC_STATS=1 to be set\n")
			}

			stats := e.Stats()
			w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "full cycles:\t%d\n", stats.FullCycles)
			fmt.Fprintf(w, "incremental cycles:\t%d\n", stats.IncrementalCycles)
			fmt.Fprintf(w, "used slots:\t%d\n", stats.LastUsedSlots)
			fmt.Fprintf(w, "total slots:\t%d\n", stats.LastTotalSlots)
			fmt.Fprintf(w, "used bytes:\t%d\n", e.Block.UsedMem())
			fmt.Fprintf(w, "allocated bytes:\t%d\n", e.Block.AllocatedMem())
			w.Flush()
		},
	}

	cmd.Flags().IntVar(&count, "count", 64, "number of sample objects to allocate")
	cmd.Flags().IntVar(&size, "size", 64, "size in bytes of each sample object")
	cmd.Flags().BoolVar(&full, "full", true, "run a full collection cycle instead of an incremental one")
	return cmd
}

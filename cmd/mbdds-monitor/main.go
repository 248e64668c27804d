// Command mbdds-monitor attaches a segment read-only and prints a snapshot
// of every registered topic: its ring state, publisher, and subscribers.
//
// Grounded on controlplane/cmd/yncp-director/main.go's cobra skeleton, cut
// down to a single-shot printer rather than a long-running director — the
// full TUI the original project pairs with its accessor is out of scope
// (spec.md §1).
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mbdds/mbdds/monitor"
)

var segmentName string

var rootCmd = &cobra.Command{
	Use:   "mbdds-monitor",
	Short: "Print a read-only snapshot of an mbdds shared-memory segment",
	RunE: func(_ *cobra.Command, _ []string) error {
		return run(segmentName)
	},
}

func init() {
	rootCmd.Flags().StringVarP(&segmentName, "segment", "s", "/mbdds_shm", "Shared-memory segment name")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(segmentName string) error {
	m, err := monitor.Open(segmentName)
	if err != nil {
		return fmt.Errorf("failed to open segment: %w", err)
	}
	defer m.Close()

	topics := m.Snapshot()
	if len(topics) == 0 {
		fmt.Println("no topics registered")
		return nil
	}

	for _, t := range topics {
		fmt.Printf("topic %q (id=%d, ring=%d bytes)\n", t.Name, t.ID, t.RingSize)
		fmt.Printf("  sequence=%d free_bytes=%d\n", t.CurrentSequence, t.FreeBytes)
		if t.Publisher.Valid {
			fmt.Printf("  publisher: id=%d name=%q\n", t.Publisher.ID, t.Publisher.Name)
		} else {
			fmt.Printf("  publisher: none\n")
		}
		fmt.Printf("  subscribers: %d\n", t.ActiveSubscribers)
		for _, s := range t.Subscribers {
			fmt.Printf("    - id=%d name=%q read_pos=%d last_seq=%d\n", s.ID, s.Name, s.ReadPos, s.LastReadSequence)
		}
	}

	return nil
}

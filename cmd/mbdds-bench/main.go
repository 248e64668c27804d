// Command mbdds-bench runs a publisher or subscriber loop against a real
// segment for manual interactive testing. It is intentionally tiny: the
// spec has no performance non-functional requirements to benchmark against,
// so this is a hand-runnable harness, not a formal benchmark suite —
// grounded on the teacher's modules/balancer/bench/go convention of a
// small standalone traffic-generator binary per subsystem, and on
// controlplane/cmd/yncp-director/main.go for signal handling.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/mbdds/mbdds/dds"
)

var (
	segmentName string
	topicName   string
	interval    time.Duration
)

var rootCmd = &cobra.Command{Use: "mbdds-bench"}

var pubCmd = &cobra.Command{
	Use:   "pub",
	Short: "Publish an incrementing counter message to a topic on a fixed interval",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runPub(cmd.Context())
	},
}

var subCmd = &cobra.Command{
	Use:   "sub",
	Short: "Print every message received on a topic",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runSub(cmd.Context())
	},
}

func init() {
	for _, c := range []*cobra.Command{pubCmd, subCmd} {
		c.Flags().StringVarP(&segmentName, "segment", "s", "/mbdds_shm", "Shared-memory segment name")
		c.Flags().StringVarP(&topicName, "topic", "t", "bench://counter", "Topic name")
	}
	pubCmd.Flags().DurationVarP(&interval, "interval", "i", time.Second, "Publish interval")
	rootCmd.AddCommand(pubCmd, subCmd)
}

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd.SetContext(ctx)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "ERROR: %v\n", err)
		os.Exit(1)
	}
}

func runPub(ctx context.Context) error {
	cfg := dds.DefaultConfig()
	cfg.SegmentName = segmentName
	core, err := dds.Open(cfg, nil)
	if err != nil {
		return fmt.Errorf("failed to open core: %w", err)
	}
	defer core.Close()

	pub, err := core.Publisher(topicName, "mbdds-bench")
	if err != nil {
		return fmt.Errorf("failed to create publisher: %w", err)
	}
	defer pub.Close()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var n uint64
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			n++
			msg := fmt.Sprintf("tick %d", n)
			if err := pub.Publish([]byte(msg)); err != nil {
				return fmt.Errorf("publish failed: %w", err)
			}
			fmt.Printf("published: %s\n", msg)
		}
	}
}

func runSub(ctx context.Context) error {
	cfg := dds.DefaultConfig()
	cfg.SegmentName = segmentName
	core, err := dds.Open(cfg, nil)
	if err != nil {
		return fmt.Errorf("failed to open core: %w", err)
	}
	defer core.Close()

	sub, err := core.Subscriber(topicName, "mbdds-bench")
	if err != nil {
		return fmt.Errorf("failed to create subscriber: %w", err)
	}
	defer sub.Close()

	wg, ctx := errgroup.WithContext(ctx)
	wg.Go(func() error {
		return sub.Subscribe(func(data []byte, ts uint64) {
			fmt.Printf("received (ts=%d): %s\n", ts, string(data))
		})
	})
	wg.Go(func() error {
		<-ctx.Done()
		sub.Unsubscribe()
		return nil
	})

	return wg.Wait()
}

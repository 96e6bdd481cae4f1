package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/stavrosangelis/clericus-neo4j-sub002/pkg/configuration"
	"github.com/stavrosangelis/clericus-neo4j-sub002/pkg/metrics"
)

func newWatchdogCmd() *cobra.Command {
	var once bool

	cmd := &cobra.Command{
		Use:   "watchdog",
		Short: "Fail ingestions left ongoing past the stale timeout",
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := newWatchdog()
			if err != nil {
				return err
			}
			return withDB(cmd.Context(), func(ctx context.Context) error {
				if once {
					n, err := w.ReapOnce(ctx)
					if err != nil {
						return withCode(exitDB, fmt.Errorf("watchdog: %w", err))
					}
					return writeJSONLine(cmd.OutOrStdout(), map[string]any{"failed": n})
				}

				conf := configuration.Use()
				g, ctx := errgroup.WithContext(ctx)
				g.Go(func() error {
					return metrics.Serve(ctx, conf.Prometheus.Addr, conf.Prometheus.Path, logger())
				})
				g.Go(func() error {
					return w.Run(ctx)
				})
				err := g.Wait()
				if err != nil && !errors.Is(err, context.Canceled) {
					return withCode(exitDB, fmt.Errorf("watchdog: %w", err))
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Sweep once and exit")
	return cmd
}

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/stavrosangelis/clericus-neo4j-sub002/pkg/configuration"
	"github.com/stavrosangelis/clericus-neo4j-sub002/pkg/logging"
)

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "ingest",
		Short:         "Import plan ingestion tool",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newPlanCmd())
	cmd.AddCommand(newRunCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newWatchdogCmd())
	return cmd
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	conf := configuration.Use()
	shutdown := func() {}
	if conf.OpenTelemetry.Enabled {
		shutdown = logging.SetupTracing(ctx, conf.OpenTelemetry.ServiceName, conf.OpenTelemetry.TempoURL, conf.Logger())
	}

	err := newRootCmd().ExecuteContext(ctx)
	shutdown()
	stop()
	conf.Unload()
	if err != nil {
		code := exitCode(err)
		fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(code)
	}
}

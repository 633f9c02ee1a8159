// Package serve implements the long-running service command: datastore,
// assimilation engine, scheduler workers, and the admin HTTP API.
package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/aquatrack/internal/assimilation"
	"github.com/tphakala/aquatrack/internal/conf"
	"github.com/tphakala/aquatrack/internal/datastore"
	"github.com/tphakala/aquatrack/internal/httpcontroller"
	"github.com/tphakala/aquatrack/internal/logging"
	"github.com/tphakala/aquatrack/internal/observability"
	"github.com/tphakala/aquatrack/internal/scheduler"
)

const shutdownTimeout = 15 * time.Second

// Command creates the serve command.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the assimilation service",
		Long:  "Start the scheduler workers and the admin HTTP API, recomputing daily states as events arrive.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(settings)
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.WebServer.Port, "port", viper.GetString("webserver.port"), "Port for the admin HTTP API")
	cmd.Flags().IntVar(&settings.Scheduler.Workers, "workers", viper.GetInt("scheduler.workers"), "Number of recompute workers")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %v", err)
	}
	return nil
}

func runServe(settings *conf.Settings) error {
	if settings.Main.Log.Enabled {
		closeLog, err := logging.InitFileLogging(settings.Main.Log)
		if err != nil {
			logging.Warn("main log file unavailable, logging to stdout",
				"path", settings.Main.Log.Path, "error", err)
		} else {
			defer func() { _ = closeLog() }()
		}
	}
	log := logging.ForService("serve")

	store := datastore.New(settings)
	if store == nil {
		return fmt.Errorf("no database backend enabled, set output.sqlite or output.mysql")
	}
	if err := store.Open(); err != nil {
		return fmt.Errorf("opening datastore: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			log.Error("closing datastore", "error", err)
		}
	}()

	registry := prometheus.NewRegistry()
	metrics, err := observability.NewMetrics(registry)
	if err != nil {
		return fmt.Errorf("registering metrics: %w", err)
	}

	engine := assimilation.New(store, settings, metrics)
	sched := scheduler.New(engine, store, settings, metrics)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sched.Start(ctx)
	defer sched.Stop()

	server := httpcontroller.New(settings, store, engine, sched, registry)

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.Start()
	}()

	select {
	case err := <-serverErr:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown", "error", err)
	}
	return nil
}

// Command tfw-logshipper drains Tempesta FW's per-CPU shared-memory
// access-log ring and ships decoded rows to an analytics database.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tempesta-tech/tfw-logshipper/common/go/logging"
	"github.com/tempesta-tech/tfw-logshipper/common/go/xcmd"
	"github.com/tempesta-tech/tfw-logshipper/internal/config"
	"github.com/tempesta-tech/tfw-logshipper/internal/shipper"
)

var cmd Cmd

// Cmd is the command line arguments.
type Cmd struct {
	// ConfigPath is the path to an optional YAML configuration file.
	ConfigPath string
	// DBHost is the analytics database host to ship rows to.
	DBHost string
}

var rootCmd = &cobra.Command{
	Use:   "tfw-logshipper <db-host>",
	Short: "Ship Tempesta FW's access log to an analytics database",
	Args:  cobra.ExactArgs(1),
	RunE: func(rawCmd *cobra.Command, args []string) error {
		cmd.DBHost = args[0]

		if err := run(cmd); err != nil {
			if errors.Is(err, xcmd.Interrupted{}) {
				return nil
			}
			return err
		}
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVarP(&cmd.ConfigPath, "config", "c", "", "Path to a YAML configuration file")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Printf("ERROR: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd Cmd) error {
	cfg, err := config.Load(cmd.ConfigPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	sugar, _, err := logging.Init(&cfg.Logging)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %w", err)
	}
	defer sugar.Sync()
	logger := sugar.Desugar()

	registry := prometheus.NewRegistry()
	metrics := shipper.NewMetrics(registry)

	ctx := context.Background()
	wg, ctx := errgroup.WithContext(ctx)

	supervisor := shipper.NewSupervisor(cfg, cmd.DBHost, metrics, logger)
	wg.Go(func() error {
		return supervisor.Run(ctx)
	})

	server := &http.Server{
		Addr:    cfg.Metrics.Endpoint,
		Handler: promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
	}
	wg.Go(func() error {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("metrics server: %w", err)
		}
		return nil
	})
	wg.Go(func() error {
		<-ctx.Done()
		return server.Close()
	})

	wg.Go(func() error {
		err := xcmd.WaitInterrupted(ctx)
		logger.Info("caught signal", zap.Error(err))
		return err
	})

	return wg.Wait()
}

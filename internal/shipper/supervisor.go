package shipper

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/tempesta-tech/tfw-logshipper/common/go/cpuset"
	"github.com/tempesta-tech/tfw-logshipper/internal/config"
	"github.com/tempesta-tech/tfw-logshipper/internal/device"
)

// Supervisor owns the device lifecycle and the pool of per-CPU workers.
// Run never returns until ctx is canceled: any fatal worker error tears
// down the whole pool and restarts it from a fresh device open, mirroring
// modules/pdump/controlplane/service.go's run-until-cancel + teardown loop.
type Supervisor struct {
	cfg     *config.Config
	dbHost  string
	metrics *Metrics
	logger  *zap.Logger
}

// NewSupervisor constructs a Supervisor from cfg. dbHost overrides
// cfg.DBHost when non-empty (the CLI's positional argument always wins).
func NewSupervisor(cfg *config.Config, dbHost string, metrics *Metrics, logger *zap.Logger) *Supervisor {
	if dbHost == "" {
		dbHost = cfg.DBHost
	}

	return &Supervisor{
		cfg:     cfg,
		dbHost:  dbHost,
		metrics: metrics,
		logger:  logger,
	}
}

// Run opens the device, spawns one worker per online CPU, and blocks until
// ctx is canceled. If the device is absent it polls at
// cfg.Device.RetryInterval. If any worker returns a fatal error, every
// sibling worker is torn down and the whole pool is restarted once the
// device can be reopened.
func (s *Supervisor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		err := s.runOnce(ctx)
		if err == nil {
			return nil
		}
		if errors.Is(err, context.Canceled) {
			return nil
		}

		s.logger.Error("worker pool exited, restarting", zap.Error(err))
		s.metrics.WorkerRestarts.Inc()

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(s.cfg.Device.RetryInterval):
		}
	}
}

// runOnce opens the device, runs one generation of the worker pool to
// completion (or to the first fatal error), and tears it down.
func (s *Supervisor) runOnce(ctx context.Context) error {
	dev, err := s.openDevice(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			s.logger.Warn("failed to close device", zap.Error(err))
		}
	}()

	cpus := cpuset.WithTrailing(runtime.NumCPU())
	if cpus.IsEmpty() {
		return fmt.Errorf("shipper: no cpus to assign workers to")
	}

	group, groupCtx := errgroup.WithContext(ctx)

	var workers []*Worker
	for cpu := range cpus.Iter() {
		conn, err := OpenSink(s.dbHost)
		if err != nil {
			for _, w := range workers {
				_ = w.Close()
			}
			return fmt.Errorf("shipper: cpu %d: %w", cpu, err)
		}

		worker, err := NewWorker(dev, int(cpu), int(s.cfg.Device.RegionSize.Bytes()), conn, CommitPolicy{
			MaxAttempts: s.cfg.Commit.MaxAttempts,
			InitialWait: s.cfg.Commit.InitialWait,
			MaxWait:     s.cfg.Commit.MaxWait,
		}, s.metrics, s.logger)
		if err != nil {
			_ = conn.Close()
			for _, w := range workers {
				_ = w.Close()
			}
			return err
		}

		workers = append(workers, worker)
	}

	s.metrics.ActiveWorkers.Set(float64(len(workers)))
	defer s.metrics.ActiveWorkers.Set(0)

	for _, worker := range workers {
		group.Go(func() error {
			return worker.Run(groupCtx)
		})
	}

	err = group.Wait()

	for _, worker := range workers {
		if closeErr := worker.Close(); closeErr != nil {
			s.logger.Warn("failed to close worker", zap.Int("cpu", worker.cpu), zap.Error(closeErr))
		}
	}

	return err
}

// openDevice opens the producer device, polling at RetryInterval while it
// is absent (spec §7 "Device-Absent").
func (s *Supervisor) openDevice(ctx context.Context) (*device.Device, error) {
	for {
		dev, err := device.Open(s.cfg.Device.Path)
		if err == nil {
			return dev, nil
		}
		if !errors.Is(err, device.ErrAbsent) {
			return nil, err
		}
		err = fmt.Errorf("%w: %w", ErrDeviceAbsent, err)

		s.logger.Info("device not present, waiting", zap.String("path", s.cfg.Device.Path), zap.Error(err))

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(s.cfg.Device.RetryInterval):
		}
	}
}

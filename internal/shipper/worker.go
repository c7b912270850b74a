package shipper

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strconv"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/cenkalti/backoff/v5"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/tempesta-tech/tfw-logshipper/internal/accesslog"
	"github.com/tempesta-tech/tfw-logshipper/internal/device"
	"github.com/tempesta-tech/tfw-logshipper/internal/ring"
)

// Worker owns one per-CPU ring region and drives the decode-commit loop for
// it (spec §4.D "run_worker" contract). A Worker never outlives a single
// run of Supervisor.Run: on any fatal error it returns and the supervisor
// decides whether to tear down its siblings and retry.
//
// Grounded on modules/balancer/bench/go/bench.go's workerRoutine: same
// LockOSThread-then-SchedSetaffinity pinning discipline, same "pin once at
// the top, run forever" shape.
type Worker struct {
	cpu    int
	region []byte
	reader *ring.Reader
	conn   driver.Conn
	commit CommitPolicy
	logger *zap.Logger
	metrics *Metrics
}

// CommitPolicy bounds how many times a block commit is retried against the
// database before the block is dropped (spec §7 "Transient-IO").
type CommitPolicy struct {
	MaxAttempts int
	InitialWait time.Duration
	MaxWait     time.Duration
}

// NewWorker constructs a Worker for the given cpu, mapping its region from
// dev. conn is an already-open database connection that the Worker takes
// ownership of and closes in Close.
func NewWorker(dev *device.Device, cpu int, regionSize int, conn driver.Conn, commit CommitPolicy, metrics *Metrics, logger *zap.Logger) (*Worker, error) {
	region, err := dev.MapRegion(cpu, regionSize)
	if err != nil {
		return nil, fmt.Errorf("shipper: worker %d: %w", cpu, err)
	}

	reader, err := ring.NewReader(region)
	if err != nil {
		_ = device.UnmapRegion(region)
		return nil, fmt.Errorf("shipper: worker %d: %w", cpu, err)
	}

	return &Worker{
		cpu:     cpu,
		region:  region,
		reader:  reader,
		conn:    conn,
		commit:  commit,
		logger:  logger.With(zap.Int("cpu", cpu)),
		metrics: metrics,
	}, nil
}

// Close unmaps the worker's region and closes its database connection. The
// supervisor calls this only after Run has returned.
func (w *Worker) Close() error {
	_ = w.reader.Close()

	var errs []error
	if err := device.UnmapRegion(w.region); err != nil {
		errs = append(errs, err)
	}
	if err := w.conn.Close(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}

// Run pins this goroutine's OS thread to the worker's CPU, then loops
// reading spans, decoding them into blocks, and committing full or
// truncation-terminated blocks to the database, until ctx is canceled or a
// fatal decode/ring error occurs.
//
// Implements spec §4.D's run_worker contract: Unknown and RingCorrupt
// statuses are fatal and returned to the caller (the supervisor); Ok and
// Truncated both trigger a commit-and-roll-forward, since a truncated span
// still carries zero or more whole, already-decoded frames worth
// committing; Closed drains the final partial block and returns cleanly.
func (w *Worker) Run(ctx context.Context) error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if err := pinToCPU(w.cpu); err != nil {
		return fmt.Errorf("%w: cpu %d: %v", ErrAffinityFailed, w.cpu, err)
	}

	assigned := w.reader.CPUID()
	if int(assigned) != w.cpu {
		w.logger.Warn("producer-assigned cpu id differs from mapping index",
			zap.Uint32("assigned", assigned), zap.Int("mapped", w.cpu))
	}

	block := accesslog.NewBlock()
	cpuLabel := strconv.Itoa(w.cpu)

	for {
		if err := ctx.Err(); err != nil {
			return w.commitRemainder(block, cpuLabel)
		}

		span, err := w.reader.NextSpan(ctx)
		if err != nil {
			if errors.Is(err, ring.ErrClosed) {
				return w.commitRemainder(block, cpuLabel)
			}
			if errors.Is(err, ring.ErrCorrupt) {
				return fmt.Errorf("%w: cpu %d", ErrRingCorrupt, w.cpu)
			}
			return fmt.Errorf("shipper: worker %d: %w", w.cpu, err)
		}

		n, status := accesslog.DecodeSpan(span, block, func(count uint64) {
			w.metrics.EventsDropped.WithLabelValues(cpuLabel).Add(float64(count))
		})
		w.reader.Advance(n)

		switch status {
		case accesslog.StatusOK, accesslog.StatusTruncated, accesslog.StatusDropped:
			if err := w.commitBlock(ctx, block, cpuLabel); err != nil {
				w.logger.Error("dropping block after exhausting commit retries", zap.Error(err))
			}
			block = accesslog.NewBlock()

		case accesslog.StatusUnknown:
			return fmt.Errorf("%w: cpu %d", ErrUnknownFrame, w.cpu)
		}
	}
}

// commitRemainder flushes whatever rows block holds before a clean worker
// exit (ring closed, or context canceled). It deliberately does not reuse
// Run's ctx: by the time this is called, ctx may already be canceled (the
// whole reason Run is returning), and a canceled context would fail the
// commit immediately, turning the promised "commit remainder and exit
// cleanly" (spec §4.D/§5) into a silent drop. The flush gets its own
// bounded-lifetime context instead.
func (w *Worker) commitRemainder(block *accesslog.Block, cpuLabel string) error {
	if block.Len() == 0 {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), w.commit.MaxWait)
	defer cancel()

	return w.commitBlock(ctx, block, cpuLabel)
}

// commitBlock commits block to the database, retrying transient failures
// with bounded exponential backoff (spec §7 "Transient-IO"). Once
// MaxAttempts is exhausted the block is dropped and the error returned to
// the caller purely for logging; dropping is not itself a fatal condition.
func (w *Worker) commitBlock(ctx context.Context, block *accesslog.Block, cpuLabel string) error {
	if block.Len() == 0 {
		return nil
	}

	rows := block.Len()

	operation := func() (struct{}, error) {
		err := block.Commit(ctx, w.conn)
		if err != nil {
			w.metrics.CommitRetries.WithLabelValues(cpuLabel).Inc()
		}
		return struct{}{}, err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = w.commit.InitialWait
	bo.MaxInterval = w.commit.MaxWait

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(w.commit.MaxAttempts)),
	)
	if err != nil {
		w.metrics.CommitFailures.WithLabelValues(cpuLabel).Inc()
		return err
	}

	w.metrics.RowsCommitted.WithLabelValues(cpuLabel).Add(float64(rows))
	return nil
}

// pinToCPU hard-pins the calling OS thread to cpu. Grounded on
// modules/balancer/bench/go/bench.go's use of unix.SchedSetaffinity with a
// single-bit CPU set.
func pinToCPU(cpu int) error {
	var set unix.CPUSet
	set.Zero()
	set.Set(cpu)

	return unix.SchedSetaffinity(0, &set)
}

// Package shipper ties together device access, ring reading, decoding and
// database commits into the per-CPU worker and process supervisor that run
// the access-log pipeline end to end.
package shipper

import "errors"

// Sentinel errors classifying worker failure, per the error taxonomy:
// some are recoverable at the supervisor level (teardown and retry), some
// are fatal to a single worker only, and transient commit failures are
// retried in place by the worker itself before being counted as dropped.
var (
	// ErrDeviceAbsent means the producer device file does not exist. The
	// supervisor treats this as recoverable and polls until it appears.
	ErrDeviceAbsent = errors.New("shipper: device absent")

	// ErrAffinityFailed means a worker could not pin its thread to its
	// assigned CPU. Fatal at worker start; the supervisor tears down
	// every worker and retries from scratch.
	ErrAffinityFailed = errors.New("shipper: cpu affinity pin failed")

	// ErrRingCorrupt means a worker's ring reader observed head-tail
	// exceeding the ring size, i.e. the producer overran this consumer.
	// Fatal to the worker; the supervisor tears down and retries.
	ErrRingCorrupt = errors.New("shipper: ring corrupt")

	// ErrUnknownFrame means a worker's decoder saw a frame type byte it
	// does not recognize. Fatal to the worker; the supervisor tears down
	// and retries, since resynchronizing on the kernel's wire stream
	// safely is not possible.
	ErrUnknownFrame = errors.New("shipper: unknown frame type")
)

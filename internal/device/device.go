// Package device opens and maps the Tempesta FW mmap-log character device,
// the kernel/user boundary described in spec §6 ("External Interfaces").
package device

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// ErrAbsent is returned by Open when the device file does not exist yet.
// The supervisor treats this as recoverable and retries.
var ErrAbsent = errors.New("device: producer device not present")

// Device is an open handle to the producer's character device, shared
// read-only across all per-CPU workers (each worker mmaps its own disjoint
// region, indexed by CPU).
type Device struct {
	path string
	file *os.File
}

// Open opens the character device at path.
//
// If the device does not exist, ErrAbsent is returned so the caller can
// poll for it; any other error is fatal.
func Open(path string) (*Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrAbsent
		}
		return nil, fmt.Errorf("device: failed to open %q: %w", path, err)
	}

	return &Device{path: path, file: f}, nil
}

// Close closes the underlying device handle. The supervisor calls this
// only after every worker has unmapped its region and joined.
func (d *Device) Close() error {
	return d.file.Close()
}

// Fd returns the raw file descriptor backing this device.
func (d *Device) Fd() int {
	return int(d.file.Fd())
}

// MapRegion maps the per-CPU region for the given CPU index.
//
// The mapping convention is one page-aligned region per CPU, selected by
// mmap offset: region cpu*regionSize..+regionSize. regionSize is supplied
// by the caller (from configuration) since it is not self-describing on
// the device.
func (d *Device) MapRegion(cpu int, regionSize int) ([]byte, error) {
	offset := int64(cpu) * int64(regionSize)

	data, err := unix.Mmap(d.Fd(), offset, regionSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("device: failed to map region for cpu %d: %w", cpu, err)
	}

	return data, nil
}

// UnmapRegion releases a region obtained from MapRegion.
func UnmapRegion(data []byte) error {
	return unix.Munmap(data)
}

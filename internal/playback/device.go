package playback

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"

	"storysage/internal/errs"
)

// Device is the audio output. Only one session may hold it at a time.
type Device interface {
	Activate() error
	Deactivate() error
}

// LockedDevice claims the output through an exclusive lock file so that
// concurrent players on the same host cannot both hold it.
type LockedDevice struct {
	lock *flock.Flock
}

// NewLockedDevice creates a device guarded by the lock file at path.
func NewLockedDevice(path string) *LockedDevice {
	return &LockedDevice{lock: flock.New(path)}
}

// Activate acquires the output. It fails when another holder has it.
func (d *LockedDevice) Activate() error {
	if d.lock.Locked() {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(d.lock.Path()), 0o755); err != nil {
		return errs.Playback("device.activate", err)
	}
	locked, err := d.lock.TryLock()
	if err != nil {
		return errs.Playback("device.activate", err)
	}
	if !locked {
		return errs.Playback("device.activate", fmt.Errorf("output device in use (lock %s)", d.lock.Path()))
	}
	return nil
}

// Deactivate releases the output.
func (d *LockedDevice) Deactivate() error {
	if !d.lock.Locked() {
		return nil
	}
	if err := d.lock.Unlock(); err != nil {
		return errs.Playback("device.deactivate", err)
	}
	return nil
}

// NopDevice always activates.
type NopDevice struct{}

func (NopDevice) Activate() error   { return nil }
func (NopDevice) Deactivate() error { return nil }

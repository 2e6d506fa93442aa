package playback

import (
	"context"
	"os"
	"sync"
	"time"

	"storysage/internal/audio"
	"storysage/internal/errs"
)

// Engine renders audio for one loaded item. Positions are in seconds.
type Engine interface {
	Open(ctx context.Context, h audio.Handle, duration float64) error
	Play(rate float64) error
	Pause()
	Seek(position float64)
	SetRate(rate float64)
	Position() float64
	Duration() float64
	Close()
}

// Clock supplies the current time to engines.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// ManualClock is a Clock advanced explicitly, for tests and simulations.
type ManualClock struct {
	mu  sync.Mutex
	now time.Time
}

// NewManualClock creates a clock starting at t.
func NewManualClock(t time.Time) *ManualClock {
	return &ManualClock{now: t}
}

// Now returns the current manual time.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// VirtualEngine is a headless engine whose position is derived from a clock
// and the playback rate. Local handles must point at an existing file.
type VirtualEngine struct {
	clock Clock

	mu        sync.Mutex
	duration  float64
	base      float64
	startedAt time.Time
	rate      float64
	playing   bool
}

// NewVirtualEngine creates an engine driven by clock.
func NewVirtualEngine(clock Clock) *VirtualEngine {
	if clock == nil {
		clock = SystemClock
	}
	return &VirtualEngine{clock: clock, rate: 1}
}

func (e *VirtualEngine) Open(ctx context.Context, h audio.Handle, duration float64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if h.IsLocal() {
		if _, err := os.Stat(h.Location); err != nil {
			return errs.Playback("engine.open", err)
		}
	}
	if duration <= 0 {
		return errs.Invalid("engine.open", "duration must be positive")
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.duration = duration
	e.base = 0
	e.playing = false
	return nil
}

func (e *VirtualEngine) Play(rate float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.playing {
		e.base = e.positionLocked()
	}
	e.rate = rate
	e.startedAt = e.clock.Now()
	e.playing = true
	return nil
}

func (e *VirtualEngine) Pause() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.base = e.positionLocked()
	e.playing = false
}

func (e *VirtualEngine) Seek(position float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.base = clamp(position, 0, e.duration)
	e.startedAt = e.clock.Now()
}

func (e *VirtualEngine) SetRate(rate float64) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.playing {
		e.base = e.positionLocked()
		e.startedAt = e.clock.Now()
	}
	e.rate = rate
}

func (e *VirtualEngine) Position() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.positionLocked()
}

func (e *VirtualEngine) Duration() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.duration
}

func (e *VirtualEngine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.playing = false
	e.base = 0
}

func (e *VirtualEngine) positionLocked() float64 {
	if !e.playing {
		return e.base
	}
	elapsed := e.clock.Now().Sub(e.startedAt).Seconds() * e.rate
	return clamp(e.base+elapsed, 0, e.duration)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

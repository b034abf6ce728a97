package frame

import (
	"sync"
	"time"
)

// Source supplies wall-clock instants. logging.Clock satisfies it.
type Source interface {
	Now() time.Time
}

type systemSource struct{}

func (systemSource) Now() time.Time { return time.Now() }

// SystemSource reads the wall clock.
func SystemSource() Source { return systemSource{} }

// Clock maps wall-clock samples onto the simulation timeline. It remembers
// the last confirmed frame and the instant it was confirmed at; Now()
// extrapolates from that anchor by at most one frame.
type Clock struct {
	mu       sync.Mutex
	timebase Timebase
	source   Source
	frame    uint64
	instant  time.Time
}

// NewClock anchors a clock at frame zero using the provided source.
func NewClock(tb Timebase, source Source) *Clock {
	if source == nil {
		source = systemSource{}
	}
	return &Clock{
		timebase: tb,
		source:   source,
		instant:  source.Now(),
	}
}

// Timebase returns the conversion rules the clock uses.
func (c *Clock) Timebase() Timebase {
	return c.timebase
}

// Reanchor records frame as confirmed at the current wall-clock instant.
func (c *Clock) Reanchor(frame uint64) {
	now := c.source.Now()
	c.mu.Lock()
	c.frame = frame
	c.instant = now
	c.mu.Unlock()
}

// Frame returns the anchor frame.
func (c *Clock) Frame() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.frame
}

// Now estimates the current simulation time. The estimate never runs more
// than one frame past the anchor.
func (c *Clock) Now() FrameOffset {
	now := c.source.Now()
	c.mu.Lock()
	frame, instant := c.frame, c.instant
	c.mu.Unlock()

	elapsed := Seconds(now.Sub(instant).Seconds())
	if elapsed < 0 {
		elapsed = 0
	}
	if limit := c.timebase.frameDuration(); elapsed > limit {
		elapsed = limit
	}
	return c.timebase.Add(At(frame), elapsed)
}

// Stall reports how far wall-clock time has run past the one-frame window
// that Now() is clamped to. Zero means the tick pump is keeping up.
func (c *Clock) Stall() time.Duration {
	now := c.source.Now()
	c.mu.Lock()
	instant := c.instant
	c.mu.Unlock()

	over := now.Sub(instant) - c.timebase.Duration()
	if over < 0 {
		return 0
	}
	return over
}

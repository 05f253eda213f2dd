package chain

import (
	"context"
	"sync/atomic"
	"time"
)

// HeightSource supplies the current ledger height. Heights never decrease.
type HeightSource interface {
	CurrentHeight(ctx context.Context) (uint64, error)
}

// ManualHeight is a height source advanced explicitly, used by tests and
// simulations.
type ManualHeight struct {
	h atomic.Uint64
}

// NewManualHeight starts at height start.
func NewManualHeight(start uint64) *ManualHeight {
	m := &ManualHeight{}
	m.h.Store(start)
	return m
}

// CurrentHeight implements HeightSource.
func (m *ManualHeight) CurrentHeight(context.Context) (uint64, error) {
	return m.h.Load(), nil
}

// Advance moves the height forward by n and returns the new height.
func (m *ManualHeight) Advance(n uint64) uint64 {
	return m.h.Add(n)
}

// Set moves the height to h. Lower values are ignored.
func (m *ManualHeight) Set(h uint64) {
	for {
		cur := m.h.Load()
		if h <= cur || m.h.CompareAndSwap(cur, h) {
			return
		}
	}
}

// ClockHeight derives the height from wall-clock time: one height per
// interval since genesis, offset by start.
type ClockHeight struct {
	genesis  time.Time
	interval time.Duration
	start    uint64
	now      func() time.Time
}

// NewClockHeight creates a clock-driven height source.
func NewClockHeight(genesis time.Time, interval time.Duration, start uint64) *ClockHeight {
	if interval <= 0 {
		interval = time.Second
	}
	return &ClockHeight{genesis: genesis, interval: interval, start: start, now: time.Now}
}

// CurrentHeight implements HeightSource.
func (c *ClockHeight) CurrentHeight(context.Context) (uint64, error) {
	elapsed := c.now().Sub(c.genesis)
	if elapsed < 0 {
		return c.start, nil
	}
	return c.start + uint64(elapsed/c.interval), nil
}

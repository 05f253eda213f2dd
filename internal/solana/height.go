package solana

import (
	"context"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"

	"time-ledger/internal/chain"
)

// SlotHeight reads the ledger height from a cluster's slot over JSON-RPC.
// The returned height never decreases even when a lagging node answers.
type SlotHeight struct {
	client     RPCClient
	commitment Commitment
	last       atomic.Uint64
}

// NewSlotHeight creates a height source polling client at commitment.
func NewSlotHeight(client RPCClient, commitment Commitment) *SlotHeight {
	if commitment == "" {
		commitment = CommitmentConfirmed
	}
	return &SlotHeight{client: client, commitment: commitment}
}

// CurrentHeight implements chain.HeightSource.
func (s *SlotHeight) CurrentHeight(ctx context.Context) (uint64, error) {
	slot, err := s.client.GetSlot(ctx, s.commitment)
	if err != nil {
		return 0, fmt.Errorf("get slot: %w", err)
	}
	return raise(&s.last, slot), nil
}

// DefaultIdleTimeout is how long a slot stream may stay silent before the
// watcher consults its fallback source.
const DefaultIdleTimeout = 30 * time.Second

// SlotWatcher follows slotSubscribe notifications and serves the latest slot
// as the ledger height. Until the first notification arrives, and once no
// notification has arrived for the idle timeout, heights come from the
// fallback source. Heights never decrease.
type SlotWatcher struct {
	ws       WSClient
	fallback chain.HeightSource
	log      *logrus.Entry
	idle     time.Duration
	now      func() time.Time

	latest   atomic.Uint64
	lastSeen atomic.Int64 // unix nanos of the last notification
}

// WatcherOption configures a SlotWatcher.
type WatcherOption func(*SlotWatcher)

// WithIdleTimeout sets how long the stream may be silent before the fallback
// is used. Zero or negative keeps DefaultIdleTimeout.
func WithIdleTimeout(d time.Duration) WatcherOption {
	return func(w *SlotWatcher) {
		if d > 0 {
			w.idle = d
		}
	}
}

// WithWatcherClock overrides the clock used for idle detection.
func WithWatcherClock(now func() time.Time) WatcherOption {
	return func(w *SlotWatcher) { w.now = now }
}

// NewSlotWatcher creates a watcher. fallback may be nil.
func NewSlotWatcher(ws WSClient, fallback chain.HeightSource, log *logrus.Entry, opts ...WatcherOption) *SlotWatcher {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	w := &SlotWatcher{
		ws:       ws,
		fallback: fallback,
		log:      log.WithField("component", "slot_watcher"),
		idle:     DefaultIdleTimeout,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Run consumes slot notifications until ctx is done or the stream closes.
func (w *SlotWatcher) Run(ctx context.Context) error {
	slots, err := w.ws.SubscribeSlots(ctx)
	if err != nil {
		return fmt.Errorf("subscribe slots: %w", err)
	}
	w.log.Info("following cluster slots")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case n, ok := <-slots:
			if !ok {
				return nil
			}
			raise(&w.latest, n.Slot)
			w.lastSeen.Store(w.now().UnixNano())
		}
	}
}

// CurrentHeight implements chain.HeightSource.
func (w *SlotWatcher) CurrentHeight(ctx context.Context) (uint64, error) {
	h := w.latest.Load()
	if w.fallback == nil || (h > 0 && !w.stale()) {
		return h, nil
	}
	fh, err := w.fallback.CurrentHeight(ctx)
	if err != nil {
		if h > 0 {
			w.log.WithError(err).Warn("slot stream idle and fallback failed, serving last slot")
			return h, nil
		}
		return 0, err
	}
	return raise(&w.latest, fh), nil
}

// stale reports whether no notification arrived within the idle timeout.
func (w *SlotWatcher) stale() bool {
	last := w.lastSeen.Load()
	if last == 0 {
		return true
	}
	return w.now().Sub(time.Unix(0, last)) > w.idle
}

// raise stores v in cell when it is higher and returns the resulting value.
func raise(cell *atomic.Uint64, v uint64) uint64 {
	for {
		cur := cell.Load()
		if v <= cur {
			return cur
		}
		if cell.CompareAndSwap(cur, v) {
			return v
		}
	}
}

var (
	_ chain.HeightSource = (*SlotHeight)(nil)
	_ chain.HeightSource = (*SlotWatcher)(nil)
)

package solana

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"time-ledger/internal/chain"
)

type fakeRPC struct {
	slots []uint64
	err   error
}

func (f *fakeRPC) GetSlot(context.Context, Commitment) (uint64, error) {
	if f.err != nil {
		return 0, f.err
	}
	s := f.slots[0]
	if len(f.slots) > 1 {
		f.slots = f.slots[1:]
	}
	return s, nil
}

func (f *fakeRPC) GetBlockHeight(ctx context.Context, c Commitment) (uint64, error) {
	return f.GetSlot(ctx, c)
}

type fakeWS struct {
	ch  chan SlotNotification
	err error
}

func (f *fakeWS) SubscribeSlots(context.Context) (<-chan SlotNotification, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.ch, nil
}

func (f *fakeWS) Close() error { return nil }

func TestSlotHeight_NeverDecreases(t *testing.T) {
	src := NewSlotHeight(&fakeRPC{slots: []uint64{100, 120, 110, 130}}, "")
	ctx := context.Background()

	var got []uint64
	for i := 0; i < 4; i++ {
		h, err := src.CurrentHeight(ctx)
		require.NoError(t, err)
		got = append(got, h)
	}
	assert.Equal(t, []uint64{100, 120, 120, 130}, got)
	assert.Equal(t, CommitmentConfirmed, src.commitment)
}

func TestSlotHeight_Error(t *testing.T) {
	boom := errors.New("boom")
	_, err := NewSlotHeight(&fakeRPC{err: boom}, CommitmentFinalized).CurrentHeight(context.Background())
	assert.ErrorIs(t, err, boom)
}

func TestSlotWatcher_FollowsNotifications(t *testing.T) {
	ws := &fakeWS{ch: make(chan SlotNotification, 4)}
	w := NewSlotWatcher(ws, chain.NewManualHeight(50), nil)
	ctx := context.Background()

	h, err := w.CurrentHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(50), h, "fallback before the first notification")

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	ws.ch <- SlotNotification{Slot: 200}
	ws.ch <- SlotNotification{Slot: 190}
	ws.ch <- SlotNotification{Slot: 210}
	close(ws.ch)

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}

	h, err = w.CurrentHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(210), h)
}

// stubHeight reports whatever height it is set to, including lower ones.
type stubHeight struct{ h uint64 }

func (s *stubHeight) CurrentHeight(context.Context) (uint64, error) { return s.h, nil }

func TestSlotWatcher_FallsBackWhenIdle(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	fallback := &stubHeight{h: 50}
	ws := &fakeWS{ch: make(chan SlotNotification, 1)}
	w := NewSlotWatcher(ws, fallback, nil,
		WithIdleTimeout(10*time.Second),
		WithWatcherClock(func() time.Time { return now }),
	)
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	ws.ch <- SlotNotification{Slot: 200}
	close(ws.ch)
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("watcher did not stop")
	}

	fallback.h = 300
	now = now.Add(5 * time.Second)
	h, err := w.CurrentHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(200), h, "stream still fresh")

	now = now.Add(6 * time.Second)
	h, err = w.CurrentHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), h, "idle stream reads the fallback")

	fallback.h = 120
	h, err = w.CurrentHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(300), h, "a lagging fallback never lowers the height")
}

func TestSlotWatcher_IdleFallbackErrorKeepsLastSlot(t *testing.T) {
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	ws := &fakeWS{ch: make(chan SlotNotification, 1)}
	w := NewSlotWatcher(ws, NewSlotHeight(&fakeRPC{err: errors.New("rpc down")}, CommitmentConfirmed), nil,
		WithWatcherClock(func() time.Time { return now }),
	)

	ws.ch <- SlotNotification{Slot: 70}
	close(ws.ch)
	require.NoError(t, w.Run(context.Background()))

	now = now.Add(DefaultIdleTimeout + time.Second)
	h, err := w.CurrentHeight(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(70), h)
}

func TestSlotWatcher_SubscribeError(t *testing.T) {
	w := NewSlotWatcher(&fakeWS{err: errors.New("refused")}, nil, nil)
	assert.Error(t, w.Run(context.Background()))

	h, err := w.CurrentHeight(context.Background())
	require.NoError(t, err)
	assert.Zero(t, h)
}

func TestSlotWatcher_StopsOnCancel(t *testing.T) {
	w := NewSlotWatcher(&fakeWS{ch: make(chan SlotNotification)}, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, w.Run(ctx), context.Canceled)
}

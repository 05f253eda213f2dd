// Package chain executes ledger operations one at a time. Each operation runs
// in a Tx: effects are journaled, reverted on failure, and persisted on
// success, so callers never observe partial state.
package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"time-ledger/internal/domain"
	"time-ledger/internal/fixedpoint"
	"time-ledger/internal/observability"
	"time-ledger/internal/state"
	"time-ledger/internal/storage"
)

// Native state namespaces.
const (
	NamespaceNativeBalances = "native.balances"
	NamespaceHeight         = "chain.height"
)

// Contract name used for native value operations in metrics and events.
const ContractNative = "native"

// Receiver handles native value sent to a contract address by SendNative.
type Receiver func(tx *Tx, from domain.Address, value *big.Int) error

// Msg describes one call: who calls what, and the native value attached.
type Msg struct {
	Contract string
	Method   string
	From     domain.Address
	To       domain.Address
	Value    *big.Int
}

// Chain serializes every operation on the ledger behind a single lock.
type Chain struct {
	mu         sync.Mutex
	heights    HeightSource
	lastHeight uint64

	bank     *state.Map[domain.Address, *big.Int]
	height   *state.Cell[uint64]
	registry *state.Registry

	receivers map[domain.Address]Receiver
	rejecting map[domain.Address]bool

	states  storage.StateStore
	events  storage.EventStore
	metrics *observability.Metrics
	log     *logrus.Entry
	now     func() time.Time
}

// Option configures a Chain.
type Option func(*Chain)

// WithStateStore persists committed state changes.
func WithStateStore(s storage.StateStore) Option {
	return func(c *Chain) { c.states = s }
}

// WithEventStore appends committed events to the journal.
func WithEventStore(s storage.EventStore) Option {
	return func(c *Chain) { c.events = s }
}

// WithMetrics overrides the default metrics instance.
func WithMetrics(m *observability.Metrics) Option {
	return func(c *Chain) { c.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(log *logrus.Entry) Option {
	return func(c *Chain) { c.log = log }
}

// WithClock overrides the event timestamp source.
func WithClock(now func() time.Time) Option {
	return func(c *Chain) { c.now = now }
}

// New creates a chain reading heights from heights.
func New(heights HeightSource, opts ...Option) *Chain {
	c := &Chain{
		heights:   heights,
		bank:      state.NewMap[domain.Address, *big.Int](NamespaceNativeBalances, state.AddressCodec{}, state.AmountCodec{}),
		height:    state.NewCell[uint64](NamespaceHeight, state.HeightCodec{}),
		registry:  state.NewRegistry(),
		receivers: make(map[domain.Address]Receiver),
		rejecting: make(map[domain.Address]bool),
		metrics:   observability.DefaultMetrics,
		log:       logrus.NewEntry(logrus.StandardLogger()),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.log = c.log.WithField("component", "chain")

	// Fixed namespaces, cannot collide on a fresh registry.
	_ = c.registry.Register(c.bank, c.height)
	return c
}

// Register adds contract state slots so they can be restored from storage.
func (c *Chain) Register(slots ...state.Slot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.registry.Register(slots...)
}

// SetReceiver installs the native receive hook of a contract address.
func (c *Chain) SetReceiver(addr domain.Address, r Receiver) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.receivers[addr] = r
}

// SetRejecting marks an address as refusing native value.
func (c *Chain) SetRejecting(addr domain.Address, reject bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if reject {
		c.rejecting[addr] = true
	} else {
		delete(c.rejecting, addr)
	}
}

// Restore loads persisted state into every registered slot.
func (c *Chain) Restore(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.states == nil {
		return nil
	}
	changes, err := c.states.LoadAll(ctx)
	if err != nil {
		return fmt.Errorf("load state: %w", err)
	}
	if err := c.registry.Restore(changes); err != nil {
		return err
	}
	c.lastHeight = c.height.Get()
	c.log.WithFields(logrus.Fields{
		"slots":  len(changes),
		"height": c.lastHeight,
	}).Info("state restored")
	return nil
}

// NativeBalance returns the native balance of addr.
func (c *Chain) NativeBalance(addr domain.Address) *big.Int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bank.Get(addr)
}

// LastHeight returns the height of the latest committed operation.
func (c *Chain) LastHeight() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastHeight
}

// Execute runs fn as one atomic operation. Msg.Value moves from Msg.From to
// Msg.To before fn runs. Any error reverts every effect.
func (c *Chain) Execute(ctx context.Context, msg Msg, fn func(tx *Tx) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	start := time.Now()
	err := c.execute(ctx, msg, fn)
	c.metrics.RecordOperation(msg.Contract, msg.Method, time.Since(start).Seconds(), err)
	return err
}

// Call runs fn like Execute but always reverts. Used for reads and quotes.
func (c *Chain) Call(ctx context.Context, msg Msg, fn func(tx *Tx) error) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	tx, err := c.begin(ctx, msg)
	if err != nil {
		return err
	}
	defer tx.j.Revert()
	return tx.run(fn)
}

// View evaluates fn in a reverted call and returns its result.
func View[T any](ctx context.Context, c *Chain, from domain.Address, fn func(tx *Tx) (T, error)) (T, error) {
	var out T
	err := c.Call(ctx, Msg{Method: "view", From: from}, func(tx *Tx) error {
		v, err := fn(tx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	return out, err
}

// SendNative moves native value between accounts. A receiver installed on
// the destination runs inside the same operation.
func (c *Chain) SendNative(ctx context.Context, from, to domain.Address, amount *big.Int) error {
	msg := Msg{Contract: ContractNative, Method: "SendNative", From: from, To: to, Value: amount}
	return c.Execute(ctx, msg, func(tx *Tx) error {
		if r, ok := c.receivers[to]; ok {
			return r(tx, from, fixedpoint.Clone(amount))
		}
		return nil
	})
}

// Fund credits native value out of thin air. Simulations and tests only.
func (c *Chain) Fund(ctx context.Context, to domain.Address, amount *big.Int) error {
	msg := Msg{Contract: ContractNative, Method: "Fund", To: to}
	return c.Execute(ctx, msg, func(tx *Tx) error {
		if amount == nil || amount.Sign() < 0 {
			return ErrInvalidAmount
		}
		c.bank.Set(tx.j, to, fixedpoint.Add(c.bank.Get(to), amount))
		tx.Emit(domain.Event{
			Contract: ContractNative,
			Kind:     domain.EventNativeFunded,
			Actor:    to,
			Amount:   amount,
		})
		return nil
	})
}

func (c *Chain) execute(ctx context.Context, msg Msg, fn func(tx *Tx) error) error {
	tx, err := c.begin(ctx, msg)
	if err != nil {
		return err
	}

	fields := logrus.Fields{
		"contract": msg.Contract,
		"method":   msg.Method,
		"caller":   msg.From.Short(),
		"height":   tx.Height,
	}

	if err := tx.run(fn); err != nil {
		tx.j.Revert()
		c.log.WithFields(fields).WithError(err).Warn("operation reverted")
		return err
	}

	if c.states != nil {
		if err := c.states.Apply(ctx, tx.Height, tx.j.Changes()); err != nil {
			tx.j.Revert()
			c.log.WithFields(fields).WithError(err).Error("persist state failed, operation reverted")
			return fmt.Errorf("persist state: %w", err)
		}
	}
	c.lastHeight = tx.Height

	if c.events != nil && len(tx.events) > 0 {
		if err := c.events.Append(ctx, tx.events); err != nil {
			c.log.WithFields(fields).WithError(err).Warn("append events failed")
		}
	}
	for _, e := range tx.events {
		c.metrics.RecordEvent(e.Kind.String())
	}
	c.metrics.UpdateHeight(tx.Height)

	for _, f := range tx.onCommit {
		f()
	}

	c.log.WithFields(fields).WithField("events", len(tx.events)).Debug("operation committed")
	return nil
}

func (c *Chain) begin(ctx context.Context, msg Msg) (*Tx, error) {
	if msg.Value != nil && msg.Value.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative value", ErrInvalidAmount)
	}

	h, err := c.heights.CurrentHeight(ctx)
	if err != nil {
		return nil, fmt.Errorf("read height: %w", err)
	}
	if h < c.lastHeight {
		h = c.lastHeight
	}

	return &Tx{
		ctx:    ctx,
		chain:  c,
		Msg:    msg,
		Height: h,
		j:      state.NewJournal(),
	}, nil
}

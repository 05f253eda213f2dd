// Package staking implements the deposit ledger built on the exchange token:
// native deposits locked against tokens earn a share of the available pool
// over a one year horizon, with an optional discounted early path.
package staking

import (
	"context"
	"fmt"
	"math/big"

	"github.com/sirupsen/logrus"

	"time-ledger/internal/chain"
	"time-ledger/internal/domain"
	"time-ledger/internal/fixedpoint"
	"time-ledger/internal/observability"
	"time-ledger/internal/state"
)

// ContractName labels staking operations in events and metrics.
const ContractName = "staking"

// TokenExchange is the part of the exchange engine the ledger calls into.
// All Tx methods run inside the ledger's own operation.
type TokenExchange interface {
	Address() domain.Address
	FeeAt(tx *chain.Tx) *big.Int
	BalanceAt(tx *chain.Tx, a domain.Address) *big.Int
	TransferFromTx(tx *chain.Tx, spender, owner, to domain.Address, amount *big.Int) error
	BurnTx(tx *chain.Tx, from domain.Address, amount *big.Int) error
	BuyTx(tx *chain.Tx, buyer domain.Address, payment *big.Int) (*big.Int, error)
	WithdrawShareTx(tx *chain.Tx, holder domain.Address) (*big.Int, error)
}

// Ledger is the staking contract.
type Ledger struct {
	chain    *chain.Chain
	exchange TokenExchange
	params   Params
	log      *logrus.Entry
	metrics  *observability.Metrics

	initialized  *state.Cell[bool]
	firstHeight  *state.Cell[uint64]
	principal    *state.Map[domain.Address, *big.Int]
	locked       *state.Map[domain.Address, *big.Int]
	lastHeight   *state.Map[domain.Address, uint64]
	anticipation *state.Map[domain.Address, bool]

	currentDeposited *state.Cell[*big.Int]
	totalDeposited   *state.Cell[*big.Int]
	totalBurned      *state.Cell[*big.Int]
	available        *state.Cell[*big.Int]
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger.
func WithLogger(log *logrus.Entry) Option {
	return func(l *Ledger) { l.log = log }
}

// WithMetrics overrides the default metrics instance.
func WithMetrics(m *observability.Metrics) Option {
	return func(l *Ledger) { l.metrics = m }
}

// New creates the ledger, registers its state on c and installs the native
// receive hook on the ledger address. Call Genesis before use.
func New(c *chain.Chain, ex TokenExchange, params Params, opts ...Option) (*Ledger, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("staking params: %w", err)
	}
	if params.Address == ex.Address() {
		return nil, fmt.Errorf("staking params: address collides with the exchange")
	}

	amount := state.AmountCodec{}
	addr := state.AddressCodec{}
	ns := func(name string) string { return ContractName + "." + name }

	l := &Ledger{
		chain:    c,
		exchange: ex,
		params:   params,
		log:      logrus.NewEntry(logrus.StandardLogger()),
		metrics:  observability.DefaultMetrics,

		initialized:  state.NewCell[bool](ns("initialized"), state.BoolCodec{}),
		firstHeight:  state.NewCell[uint64](ns("firstHeight"), state.HeightCodec{}),
		principal:    state.NewMap[domain.Address, *big.Int](ns("principal"), addr, amount),
		locked:       state.NewMap[domain.Address, *big.Int](ns("lockedToken"), addr, amount),
		lastHeight:   state.NewMap[domain.Address, uint64](ns("lastHeight"), addr, state.HeightCodec{}),
		anticipation: state.NewMap[domain.Address, bool](ns("anticipationEnabled"), addr, state.BoolCodec{}),

		currentDeposited: state.NewCell[*big.Int](ns("currentDepositedNative"), amount),
		totalDeposited:   state.NewCell[*big.Int](ns("totalDepositedNative"), amount),
		totalBurned:      state.NewCell[*big.Int](ns("totalBurnedToken"), amount),
		available:        state.NewCell[*big.Int](ns("availableNative"), amount),
	}
	for _, opt := range opts {
		opt(l)
	}
	l.log = l.log.WithField("component", ContractName)

	err := c.Register(
		l.initialized, l.firstHeight, l.principal, l.locked, l.lastHeight, l.anticipation,
		l.currentDeposited, l.totalDeposited, l.totalBurned, l.available,
	)
	if err != nil {
		return nil, fmt.Errorf("register staking state: %w", err)
	}

	c.SetReceiver(params.Address, l.receiveNative)
	return l, nil
}

// Genesis records the first height. It is a no-op on a restored ledger.
func (l *Ledger) Genesis(ctx context.Context) error {
	msg := chain.Msg{Contract: ContractName, Method: "Genesis", To: l.params.Address}
	return l.chain.Execute(ctx, msg, func(tx *chain.Tx) error {
		if l.initialized.Get() {
			return nil
		}
		l.initialized.Set(tx.Journal(), true)
		l.firstHeight.Set(tx.Journal(), tx.Height)
		l.log.WithFields(logrus.Fields{
			"height":  tx.Height,
			"address": l.params.Address.String(),
		}).Info("staking genesis")
		return nil
	})
}

// Address returns the ledger address.
func (l *Ledger) Address() domain.Address {
	return l.params.Address
}

// Params returns the ledger constants.
func (l *Ledger) Params() Params {
	return l.params
}

// OneYear returns the earning horizon in height units.
func (l *Ledger) OneYear() uint64 {
	return l.params.OneYear
}

// FirstHeight returns the height the ledger was created at.
func (l *Ledger) FirstHeight(ctx context.Context) (uint64, error) {
	return view(ctx, l, func(*chain.Tx) (uint64, error) {
		return l.firstHeight.Get(), nil
	})
}

// AvailableNative returns the pool earnings are paid from.
func (l *Ledger) AvailableNative(ctx context.Context) (*big.Int, error) {
	return view(ctx, l, func(*chain.Tx) (*big.Int, error) {
		return l.available.Get(), nil
	})
}

// CurrentDepositedNative returns the principal currently held.
func (l *Ledger) CurrentDepositedNative(ctx context.Context) (*big.Int, error) {
	return view(ctx, l, func(*chain.Tx) (*big.Int, error) {
		return l.currentDeposited.Get(), nil
	})
}

// TotalDepositedNative returns all principal ever credited.
func (l *Ledger) TotalDepositedNative(ctx context.Context) (*big.Int, error) {
	return view(ctx, l, func(*chain.Tx) (*big.Int, error) {
		return l.totalDeposited.Get(), nil
	})
}

// TotalBurnedToken returns the tokens burned by deposits and anticipations.
func (l *Ledger) TotalBurnedToken(ctx context.Context) (*big.Int, error) {
	return view(ctx, l, func(*chain.Tx) (*big.Int, error) {
		return l.totalBurned.Get(), nil
	})
}

// exec runs fn as one staking operation and checks the solvency invariant
// before it commits.
func (l *Ledger) exec(ctx context.Context, method string, caller domain.Address, value *big.Int, fn func(tx *chain.Tx) error) error {
	msg := chain.Msg{
		Contract: ContractName,
		Method:   method,
		From:     caller,
		To:       l.params.Address,
		Value:    value,
	}
	return l.chain.Execute(ctx, msg, func(tx *chain.Tx) error {
		if !l.initialized.Get() {
			return ErrNotInitialized
		}
		if err := fn(tx); err != nil {
			return err
		}
		if err := l.checkSolvency(tx); err != nil {
			return err
		}
		tx.OnCommit(l.publishGauges)
		return nil
	})
}

func view[T any](ctx context.Context, l *Ledger, fn func(tx *chain.Tx) (T, error)) (T, error) {
	return chain.View(ctx, l.chain, domain.ZeroAddress, func(tx *chain.Tx) (T, error) {
		if !l.initialized.Get() {
			var zero T
			return zero, ErrNotInitialized
		}
		return fn(tx)
	})
}

// checkSolvency enforces native balance >= availableNative + currentDepositedNative.
func (l *Ledger) checkSolvency(tx *chain.Tx) error {
	owed := fixedpoint.Add(l.available.Get(), l.currentDeposited.Get())
	balance := tx.Balance(l.params.Address)
	if owed.Cmp(balance) > 0 {
		return fmt.Errorf("%w: available+deposited %s exceeds balance %s", ErrInvariantViolation, owed, balance)
	}
	return nil
}

func (l *Ledger) publishGauges() {
	l.metrics.UpdateReserve(ContractName, "available", l.available.Get())
	l.metrics.UpdateReserve(ContractName, "deposited", l.currentDeposited.Get())
}

// receiveNative credits plain native sent to the ledger to the available pool.
func (l *Ledger) receiveNative(tx *chain.Tx, from domain.Address, value *big.Int) error {
	if !l.initialized.Get() {
		return ErrNotInitialized
	}
	l.credit(tx, value)
	l.emit(tx, domain.EventAvailableCredited, from, value, nil)
	tx.OnCommit(l.publishGauges)
	return l.checkSolvency(tx)
}

func (l *Ledger) credit(tx *chain.Tx, amount *big.Int) {
	l.available.Set(tx.Journal(), fixedpoint.Add(l.available.Get(), amount))
}

func (l *Ledger) debit(tx *chain.Tx, amount *big.Int) error {
	available := l.available.Get()
	if available.Cmp(amount) < 0 {
		return fmt.Errorf("%w: debit %s exceeds available %s", ErrInvariantViolation, amount, available)
	}
	l.available.Set(tx.Journal(), available.Sub(available, amount))
	return nil
}

func (l *Ledger) emit(tx *chain.Tx, kind domain.EventKind, actor domain.Address, amount, value *big.Int) {
	tx.Emit(domain.Event{
		Contract:     ContractName,
		Kind:         kind,
		Actor:        actor,
		Counterparty: l.params.Address,
		Amount:       amount,
		Value:        value,
	})
}

func requirePositive(amount *big.Int) error {
	if !fixedpoint.IsPositive(amount) {
		return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
	}
	return nil
}

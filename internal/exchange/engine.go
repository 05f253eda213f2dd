// Package exchange implements the mining-gated token and its bonding-curve
// exchange against the native asset, including the holder dividend pool.
package exchange

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

// ContractName labels exchange operations in events and metrics.
const ContractName = "exchange"

// Engine is the exchange contract. All methods are safe for concurrent use;
// the chain serializes them.
type Engine struct {
	chain   *chain.Chain
	params  Params
	log     *logrus.Entry
	metrics *observability.Metrics

	initialized   *state.Cell[bool]
	firstHeight   *state.Cell[uint64]
	totalSupply   *state.Cell[*big.Int]
	balances      *state.Map[domain.Address, *big.Int]
	allowances    *state.Map[state.PairKey, *big.Int]
	miningEnabled *state.Map[domain.Address, bool]
	lastMined     *state.Map[domain.Address, uint64]
	totalMined    *state.Cell[*big.Int]
	averageRate   *state.Cell[*big.Int]

	poolBalance   *state.Cell[*big.Int]
	sharedBalance *state.Cell[*big.Int]
	perShare      *state.Cell[*big.Int]
	corrections   *state.Map[domain.Address, *big.Int]
	withdrawn     *state.Map[domain.Address, *big.Int]
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(log *logrus.Entry) Option {
	return func(e *Engine) { e.log = log }
}

// WithMetrics overrides the default metrics instance.
func WithMetrics(m *observability.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// New creates the engine, registers its state on c and installs the native
// receive hook on the engine address. Call Genesis before use.
func New(c *chain.Chain, params Params, opts ...Option) (*Engine, error) {
	if err := params.Validate(); err != nil {
		return nil, fmt.Errorf("exchange params: %w", err)
	}

	amount := state.AmountCodec{}
	addr := state.AddressCodec{}
	ns := func(name string) string { return ContractName + "." + name }

	e := &Engine{
		chain:   c,
		params:  params,
		log:     logrus.NewEntry(logrus.StandardLogger()),
		metrics: observability.DefaultMetrics,

		initialized:   state.NewCell[bool](ns("initialized"), state.BoolCodec{}),
		firstHeight:   state.NewCell[uint64](ns("firstHeight"), state.HeightCodec{}),
		totalSupply:   state.NewCell[*big.Int](ns("totalSupply"), amount),
		balances:      state.NewMap[domain.Address, *big.Int](ns("balances"), addr, amount),
		allowances:    state.NewMap[state.PairKey, *big.Int](ns("allowances"), state.PairCodec{}, amount),
		miningEnabled: state.NewMap[domain.Address, bool](ns("miningEnabled"), addr, state.BoolCodec{}),
		lastMined:     state.NewMap[domain.Address, uint64](ns("lastMinedHeight"), addr, state.HeightCodec{}),
		totalMined:    state.NewCell[*big.Int](ns("totalMined"), amount),
		averageRate:   state.NewCell[*big.Int](ns("averageMiningRate"), amount),

		poolBalance:   state.NewCell[*big.Int](ns("poolBalance"), amount),
		sharedBalance: state.NewCell[*big.Int](ns("sharedBalance"), amount),
		perShare:      state.NewCell[*big.Int](ns("magnifiedSharePerToken"), amount),
		corrections:   state.NewMap[domain.Address, *big.Int](ns("shareCorrection"), addr, amount),
		withdrawn:     state.NewMap[domain.Address, *big.Int](ns("shareCheckpoint"), addr, amount),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.log = e.log.WithField("component", ContractName)

	err := c.Register(
		e.initialized, e.firstHeight, e.totalSupply, e.balances, e.allowances,
		e.miningEnabled, e.lastMined, e.totalMined, e.averageRate,
		e.poolBalance, e.sharedBalance, e.perShare, e.corrections, e.withdrawn,
	)
	if err != nil {
		return nil, fmt.Errorf("register exchange state: %w", err)
	}

	c.SetReceiver(params.Address, e.receiveNative)
	return e, nil
}

// Genesis records the first height and mints the base liquidity to the
// engine. It is a no-op on an engine restored from storage.
func (e *Engine) Genesis(ctx context.Context) error {
	msg := chain.Msg{Contract: ContractName, Method: "Genesis", To: e.params.Address}
	return e.chain.Execute(ctx, msg, func(tx *chain.Tx) error {
		if e.initialized.Get() {
			return nil
		}
		j := tx.Journal()
		e.initialized.Set(j, true)
		e.firstHeight.Set(j, tx.Height)
		e.mint(tx, e.params.Address, e.params.BaseLiquidity)

		e.log.WithFields(logrus.Fields{
			"height":    tx.Height,
			"liquidity": fixedpoint.Format(e.params.BaseLiquidity),
			"address":   e.params.Address.String(),
		}).Info("exchange genesis")
		tx.OnCommit(e.publishGauges)
		return nil
	})
}

// Address returns the engine address.
func (e *Engine) Address() domain.Address {
	return e.params.Address
}

// Params returns the engine constants.
func (e *Engine) Params() Params {
	return e.params
}

// FeeRecipient returns the developer fee recipient.
func (e *Engine) FeeRecipient() domain.Address {
	return e.params.FeeRecipient
}

// BaseFee returns the native enrollment fee at a zero mining rate.
func (e *Engine) BaseFee() *big.Int {
	return fixedpoint.Clone(e.params.BaseFee)
}

// TokenBaseFee returns the token enrollment fee at a zero mining rate.
func (e *Engine) TokenBaseFee() *big.Int {
	return fixedpoint.Clone(e.params.TokenBaseFee)
}

// exec runs fn as one exchange operation and checks the reserve invariant
// before it commits.
func (e *Engine) exec(ctx context.Context, method string, caller domain.Address, value *big.Int, fn func(tx *chain.Tx) error) error {
	msg := chain.Msg{
		Contract: ContractName,
		Method:   method,
		From:     caller,
		To:       e.params.Address,
		Value:    value,
	}
	return e.chain.Execute(ctx, msg, func(tx *chain.Tx) error {
		if !e.initialized.Get() {
			return ErrNotInitialized
		}
		if err := fn(tx); err != nil {
			return err
		}
		if err := e.checkReserves(tx); err != nil {
			return err
		}
		tx.OnCommit(e.publishGauges)
		return nil
	})
}

// view evaluates fn against current state.
func view[T any](ctx context.Context, e *Engine, fn func(tx *chain.Tx) (T, error)) (T, error) {
	return chain.View(ctx, e.chain, domain.ZeroAddress, func(tx *chain.Tx) (T, error) {
		if !e.initialized.Get() {
			var zero T
			return zero, ErrNotInitialized
		}
		return fn(tx)
	})
}

// checkReserves enforces poolBalance + sharedBalance <= native balance.
func (e *Engine) checkReserves(tx *chain.Tx) error {
	reserved := fixedpoint.Add(e.poolBalance.Get(), e.sharedBalance.Get())
	balance := tx.Balance(e.params.Address)
	if reserved.Cmp(balance) > 0 {
		return fmt.Errorf("%w: pool+shared %s exceeds balance %s", ErrInvariantViolation, reserved, balance)
	}
	return nil
}

func (e *Engine) publishGauges() {
	e.metrics.UpdateReserve(ContractName, "pool", e.poolBalance.Get())
	e.metrics.UpdateReserve(ContractName, "shared", e.sharedBalance.Get())
	e.metrics.UpdateReserve(ContractName, "token_reserve", e.balances.Get(e.params.Address))
	e.metrics.UpdateTotalSupply(e.totalSupply.Get())
}

func (e *Engine) emit(tx *chain.Tx, kind domain.EventKind, actor, counterparty domain.Address, amount, value *big.Int) {
	tx.Emit(domain.Event{
		Contract:     ContractName,
		Kind:         kind,
		Actor:        actor,
		Counterparty: counterparty,
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

package chain

import (
	"context"
	"fmt"
	"math/big"

	"github.com/google/uuid"

	"time-ledger/internal/domain"
	"time-ledger/internal/fixedpoint"
	"time-ledger/internal/state"
)

// Tx is the context of one operation.
type Tx struct {
	ctx    context.Context
	chain  *Chain
	Msg    Msg
	Height uint64

	j        *state.Journal
	events   []domain.Event
	onCommit []func()
}

// Context returns the context of the operation.
func (tx *Tx) Context() context.Context {
	return tx.ctx
}

// Journal returns the journal recording the operation's effects.
func (tx *Tx) Journal() *state.Journal {
	return tx.j
}

// Caller returns the address the operation is attributed to.
func (tx *Tx) Caller() domain.Address {
	return tx.Msg.From
}

// Value returns the native value attached to the call.
func (tx *Tx) Value() *big.Int {
	return fixedpoint.Clone(tx.Msg.Value)
}

// Balance returns the native balance of addr as seen inside the operation.
func (tx *Tx) Balance(addr domain.Address) *big.Int {
	return tx.chain.bank.Get(addr)
}

// Pay moves native value from one account to another. Receive hooks do not
// run; contracts account for value they pay each other explicitly.
func (tx *Tx) Pay(from, to domain.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() == 0 {
		return nil
	}
	if amount.Sign() < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidAmount, amount)
	}
	if tx.chain.rejecting[to] {
		return fmt.Errorf("%w: %s", ErrTransferRejected, to)
	}

	balance := tx.chain.bank.Get(from)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientFunds, from.Short(), balance, amount)
	}
	if from == to {
		return nil
	}

	tx.chain.bank.Set(tx.j, from, balance.Sub(balance, amount))
	tx.chain.bank.Set(tx.j, to, fixedpoint.Add(tx.chain.bank.Get(to), amount))

	tx.Emit(domain.Event{
		Contract:     ContractNative,
		Kind:         domain.EventNativeTransfer,
		Actor:        from,
		Counterparty: to,
		Amount:       amount,
	})
	return nil
}

// Emit records an event, published only if the operation commits.
func (tx *Tx) Emit(e domain.Event) {
	e.ID = uuid.New()
	e.Height = tx.Height
	e.Sequence = len(tx.events)
	e.Timestamp = tx.chain.now().UTC()
	e.Amount = fixedpoint.Clone(e.Amount)
	if e.Value != nil {
		e.Value = fixedpoint.Clone(e.Value)
	}
	tx.events = append(tx.events, e)
}

// Events returns the events emitted so far.
func (tx *Tx) Events() []domain.Event {
	out := make([]domain.Event, len(tx.events))
	copy(out, tx.events)
	return out
}

// OnCommit registers f to run after the operation commits.
func (tx *Tx) OnCommit(f func()) {
	tx.onCommit = append(tx.onCommit, f)
}

func (tx *Tx) run(fn func(tx *Tx) error) error {
	tx.chain.height.Set(tx.j, tx.Height)

	if fixedpoint.IsPositive(tx.Msg.Value) {
		if err := tx.Pay(tx.Msg.From, tx.Msg.To, tx.Msg.Value); err != nil {
			return err
		}
	}
	return fn(tx)
}

package exchange

import (
	"context"
	"fmt"
	"math/big"

	"time-ledger/internal/chain"
	"time-ledger/internal/domain"
	"time-ledger/internal/fixedpoint"
)

// magnitude scales the per-token dividend accumulator so that small
// allocations over a large supply keep their precision.
var magnitude = new(big.Int).Lsh(big.NewInt(1), 128)

// PoolBalance returns the native reserve backing the curve.
func (e *Engine) PoolBalance(ctx context.Context) (*big.Int, error) {
	return view(ctx, e, func(*chain.Tx) (*big.Int, error) {
		return e.poolBalance.Get(), nil
	})
}

// SharedBalance returns the native reserve earmarked for dividends.
func (e *Engine) SharedBalance(ctx context.Context) (*big.Int, error) {
	return view(ctx, e, func(*chain.Tx) (*big.Int, error) {
		return e.sharedBalance.Get(), nil
	})
}

// WithdrawableShareBalance returns the unclaimed dividends of a.
func (e *Engine) WithdrawableShareBalance(ctx context.Context, a domain.Address) (*big.Int, error) {
	return view(ctx, e, func(*chain.Tx) (*big.Int, error) {
		return e.withdrawable(a)
	})
}

// WithdrawShare pays caller's unclaimed dividends and returns the amount.
// Nothing to claim pays zero without error.
func (e *Engine) WithdrawShare(ctx context.Context, caller domain.Address) (*big.Int, error) {
	var paid *big.Int
	err := e.exec(ctx, "WithdrawShare", caller, nil, func(tx *chain.Tx) error {
		var err error
		paid, err = e.WithdrawShareTx(tx, caller)
		return err
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// WithdrawShareTx is WithdrawShare inside an operation already in progress.
func (e *Engine) WithdrawShareTx(tx *chain.Tx, holder domain.Address) (*big.Int, error) {
	amount, err := e.withdrawable(holder)
	if err != nil {
		return nil, err
	}
	if amount.Sign() == 0 {
		return amount, nil
	}

	shared := e.sharedBalance.Get()
	if amount.Cmp(shared) > 0 {
		return nil, fmt.Errorf("%w: claim %s exceeds shared balance %s", ErrInvariantViolation, amount, shared)
	}

	j := tx.Journal()
	e.sharedBalance.Set(j, shared.Sub(shared, amount))
	e.withdrawn.Set(j, holder, fixedpoint.Add(e.withdrawn.Get(holder), amount))
	if err := tx.Pay(e.params.Address, holder, amount); err != nil {
		return nil, err
	}

	e.emit(tx, domain.EventShareWithdrawn, holder, e.params.Address, amount, nil)
	return amount, e.checkReserves(tx)
}

// allocate distributes amount pro rata to holders of circulating supply.
// With nothing in circulation the amount deepens the pool instead.
func (e *Engine) allocate(tx *chain.Tx, amount *big.Int) {
	if amount.Sign() == 0 {
		return
	}
	j := tx.Journal()

	circulating := e.circulating()
	if circulating.Sign() <= 0 {
		e.poolBalance.Set(j, fixedpoint.Add(e.poolBalance.Get(), amount))
		return
	}

	increment := fixedpoint.MulDiv(amount, magnitude, circulating)
	e.perShare.Set(j, fixedpoint.Add(e.perShare.Get(), increment))
	e.sharedBalance.Set(j, fixedpoint.Add(e.sharedBalance.Get(), amount))
	e.emit(tx, domain.EventShareAllocated, e.params.Address, domain.ZeroAddress, amount, circulating)
}

// circulating is the supply entitled to dividends: everything outside the
// engine's own reserve.
func (e *Engine) circulating() *big.Int {
	return fixedpoint.Sub(e.totalSupply.Get(), e.balances.Get(e.params.Address))
}

// adjustShares keeps a holder's accumulated dividends unchanged when its
// balance changes by delta, so tokens received later do not earn past
// allocations and tokens sent away keep theirs.
func (e *Engine) adjustShares(tx *chain.Tx, holder domain.Address, delta *big.Int) {
	if holder == e.params.Address || holder.IsZero() {
		return
	}
	shift := new(big.Int).Mul(e.perShare.Get(), delta)
	e.corrections.Set(tx.Journal(), holder, fixedpoint.Sub(e.corrections.Get(holder), shift))
}

func (e *Engine) withdrawable(holder domain.Address) (*big.Int, error) {
	if holder == e.params.Address {
		return new(big.Int), nil
	}

	magnified := new(big.Int).Mul(e.perShare.Get(), e.balances.Get(holder))
	magnified.Add(magnified, e.corrections.Get(holder))
	if magnified.Sign() < 0 {
		return nil, fmt.Errorf("%w: negative accumulated share for %s", ErrInvariantViolation, holder.Short())
	}
	accumulated := magnified.Quo(magnified, magnitude)

	claimed := e.withdrawn.Get(holder)
	if accumulated.Cmp(claimed) < 0 {
		return nil, fmt.Errorf("%w: checkpoint %s above accumulated %s for %s", ErrInvariantViolation, claimed, accumulated, holder.Short())
	}
	return accumulated.Sub(accumulated, claimed), nil
}

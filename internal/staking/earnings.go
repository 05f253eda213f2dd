package staking

import (
	"context"
	"math/big"

	"time-ledger/internal/chain"
	"time-ledger/internal/domain"
	"time-ledger/internal/fixedpoint"
)

// CurrentROI returns availableNative per deposited native unit, scaled by 1e18.
func (l *Ledger) CurrentROI(ctx context.Context) (*big.Int, error) {
	return view(ctx, l, func(*chain.Tx) (*big.Int, error) {
		return l.roi(), nil
	})
}

// QueryEarnings returns what a could withdraw now.
func (l *Ledger) QueryEarnings(ctx context.Context, a domain.Address) (*big.Int, error) {
	return view(ctx, l, func(tx *chain.Tx) (*big.Int, error) {
		earned, _ := l.earningsAt(tx, a)
		return earned, nil
	})
}

// WithdrawEarnings pays caller's earnings and consumes the locked tokens
// that backed them.
func (l *Ledger) WithdrawEarnings(ctx context.Context, caller domain.Address) (*big.Int, error) {
	var paid *big.Int
	err := l.exec(ctx, "WithdrawEarnings", caller, nil, func(tx *chain.Tx) error {
		if l.principal.Get(caller).Sign() == 0 {
			return ErrNoDeposit
		}
		earned, err := l.realize(tx, caller)
		if err != nil {
			return err
		}
		if earned.Sign() == 0 {
			return ErrNoEarnings
		}
		if err := tx.Pay(l.params.Address, caller, earned); err != nil {
			return err
		}
		l.emit(tx, domain.EventEarningsWithdrawn, caller, earned, nil)
		paid = earned
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// Compound adds caller's earnings to principal instead of paying them. With
// anticipate set, tokenAmount more tokens are pulled and their discounted
// earnings are compounded too.
func (l *Ledger) Compound(ctx context.Context, caller domain.Address, tokenAmount *big.Int, anticipate bool) (*big.Int, error) {
	var total *big.Int
	err := l.exec(ctx, "Compound", caller, nil, func(tx *chain.Tx) error {
		if l.principal.Get(caller).Sign() == 0 {
			return ErrNoDeposit
		}
		if anticipate && !l.anticipation.Get(caller) {
			return ErrNotEligible
		}
		if tokenAmount != nil && tokenAmount.Sign() < 0 {
			return requirePositive(tokenAmount)
		}

		ordinary, err := l.realize(tx, caller)
		if err != nil {
			return err
		}
		anticipated := fixedpoint.Zero()
		if anticipate && fixedpoint.IsPositive(tokenAmount) {
			anticipated, err = l.anticipateTx(tx, caller, tokenAmount, true)
			if err != nil {
				return err
			}
		}

		total = fixedpoint.Add(ordinary, anticipated)
		if total.Sign() == 0 {
			return ErrNoEarnings
		}
		l.addPrincipal(tx, caller, total)
		l.emit(tx, domain.EventCompounded, caller, total, anticipated)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return total, nil
}

// Earn collects the ledger's token dividends from the exchange into the
// available pool. Anyone may call it.
func (l *Ledger) Earn(ctx context.Context, caller domain.Address) (*big.Int, error) {
	var earned *big.Int
	err := l.exec(ctx, "Earn", caller, nil, func(tx *chain.Tx) error {
		amount, err := l.exchange.WithdrawShareTx(tx, l.params.Address)
		if err != nil {
			return err
		}
		earned = amount
		if amount.Sign() == 0 {
			return nil
		}
		l.credit(tx, amount)
		l.emit(tx, domain.EventEarned, caller, amount, nil)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return earned, nil
}

func (l *Ledger) roi() *big.Int {
	return fixedpoint.MulDiv(l.available.Get(), fixedpoint.Unit, l.currentDeposited.Get())
}

// earningsAt returns a's earnings and the height units backing them. Each
// whole locked token backs one height unit; the result is capped by the
// available pool.
func (l *Ledger) earningsAt(tx *chain.Tx, a domain.Address) (*big.Int, uint64) {
	principal := l.principal.Get(a)
	if principal.Sign() == 0 {
		return fixedpoint.Zero(), 0
	}

	var elapsed uint64
	if last := l.lastHeight.Get(a); tx.Height > last {
		elapsed = tx.Height - last
	}
	backed := new(big.Int).Quo(l.locked.Get(a), fixedpoint.Unit)
	h := new(big.Int).SetUint64(elapsed)
	if backed.Cmp(h) < 0 {
		h = backed
	}

	year := new(big.Int).Mul(new(big.Int).SetUint64(l.params.OneYear), fixedpoint.Unit)
	earned := fixedpoint.MulDiv(new(big.Int).Mul(principal, l.roi()), h, year)
	return fixedpoint.Min(earned, l.available.Get()), h.Uint64()
}

// realize moves a's earnings out of the available pool, consumes the locked
// tokens backing them and restarts accrual. The caller decides where the
// earnings go.
func (l *Ledger) realize(tx *chain.Tx, a domain.Address) (*big.Int, error) {
	earned, h := l.earningsAt(tx, a)
	if earned.Sign() == 0 {
		return earned, nil
	}
	if err := l.debit(tx, earned); err != nil {
		return nil, err
	}

	consumed := new(big.Int).Mul(new(big.Int).SetUint64(h), fixedpoint.Unit)
	l.releaseLocked(tx, a, consumed)
	l.lastHeight.Set(tx.Journal(), a, tx.Height)
	return earned, nil
}

func (l *Ledger) releaseLocked(tx *chain.Tx, a domain.Address, amount *big.Int) {
	locked := l.locked.Get(a)
	l.locked.Set(tx.Journal(), a, fixedpoint.Sub(locked, fixedpoint.Min(locked, amount)))
}

func (l *Ledger) addPrincipal(tx *chain.Tx, a domain.Address, amount *big.Int) {
	j := tx.Journal()
	l.principal.Set(j, a, fixedpoint.Add(l.principal.Get(a), amount))
	l.currentDeposited.Set(j, fixedpoint.Add(l.currentDeposited.Get(), amount))
	l.totalDeposited.Set(j, fixedpoint.Add(l.totalDeposited.Get(), amount))
}

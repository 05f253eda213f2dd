package staking

import (
	"context"
	"fmt"
	"math/big"

	"time-ledger/internal/chain"
	"time-ledger/internal/domain"
	"time-ledger/internal/fixedpoint"
)

// AnticipationQuote values forfeiting locked tokens now.
type AnticipationQuote struct {
	TokenAmount *big.Int
	// Undiscounted is what the tokens would earn over the horizon.
	Undiscounted *big.Int
	// Discounted is what Anticipate pays, capped by the available pool.
	Discounted *big.Int
}

// AnticipationFee returns the one-time fee for EnableAnticipation.
func (l *Ledger) AnticipationFee(ctx context.Context) (*big.Int, error) {
	return view(ctx, l, func(tx *chain.Tx) (*big.Int, error) {
		return l.anticipationFee(tx), nil
	})
}

// IsAnticipationEnabled reports whether a may anticipate.
func (l *Ledger) IsAnticipationEnabled(ctx context.Context, a domain.Address) (bool, error) {
	return view(ctx, l, func(*chain.Tx) (bool, error) {
		return l.anticipation.Get(a), nil
	})
}

// QueryAnticipatedEarnings returns what Anticipate would pay a for tokenAmount.
func (l *Ledger) QueryAnticipatedEarnings(ctx context.Context, a domain.Address, tokenAmount *big.Int) (*big.Int, error) {
	q, err := l.QuoteAnticipation(ctx, a, tokenAmount)
	if err != nil {
		return nil, err
	}
	return q.Discounted, nil
}

// QuoteAnticipation returns both the discounted and undiscounted value of
// tokenAmount for a.
func (l *Ledger) QuoteAnticipation(ctx context.Context, a domain.Address, tokenAmount *big.Int) (AnticipationQuote, error) {
	return view(ctx, l, func(*chain.Tx) (AnticipationQuote, error) {
		if tokenAmount == nil || tokenAmount.Sign() < 0 {
			return AnticipationQuote{}, fmt.Errorf("%w: %v", ErrInvalidAmount, tokenAmount)
		}
		return l.quoteAnticipation(a, tokenAmount), nil
	})
}

// EnableAnticipation unlocks the anticipation path for caller. Part of the
// payment buys tokens for the ledger, the rest joins the available pool.
func (l *Ledger) EnableAnticipation(ctx context.Context, caller domain.Address, payment *big.Int) error {
	return l.exec(ctx, "EnableAnticipation", caller, payment, func(tx *chain.Tx) error {
		if l.anticipation.Get(caller) {
			return ErrAlreadyEnabled
		}
		fee := l.anticipationFee(tx)
		paid := tx.Value()
		if paid.Cmp(fee) < 0 {
			return fmt.Errorf("%w: paid %s, fee %s", ErrUnderpayment, paid, fee)
		}

		tokenPart := l.params.AnticipationTokenShare.Of(paid)
		bought := fixedpoint.Zero()
		if tokenPart.Sign() > 0 {
			var err error
			bought, err = l.exchange.BuyTx(tx, l.params.Address, tokenPart)
			if err != nil {
				return fmt.Errorf("buy ledger tokens: %w", err)
			}
		}
		l.credit(tx, fixedpoint.Sub(paid, tokenPart))
		l.anticipation.Set(tx.Journal(), caller, true)

		l.emit(tx, domain.EventAnticipationEnabled, caller, paid, bought)
		return nil
	})
}

// Anticipate pulls tokenAmount tokens from caller, releases as much of the
// locked position and pays the discounted earnings now.
func (l *Ledger) Anticipate(ctx context.Context, caller domain.Address, tokenAmount *big.Int) (*big.Int, error) {
	var paid *big.Int
	err := l.exec(ctx, "Anticipate", caller, nil, func(tx *chain.Tx) error {
		if !l.anticipation.Get(caller) {
			return ErrNotEligible
		}
		if err := requirePositive(tokenAmount); err != nil {
			return err
		}
		if l.principal.Get(caller).Sign() == 0 {
			return ErrNoDeposit
		}

		amount, err := l.anticipateTx(tx, caller, tokenAmount, true)
		if err != nil {
			return err
		}
		if amount.Sign() == 0 {
			return ErrNoEarnings
		}
		if err := tx.Pay(l.params.Address, caller, amount); err != nil {
			return err
		}
		l.emit(tx, domain.EventAnticipated, caller, amount, tokenAmount)
		paid = amount
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

func (l *Ledger) anticipationFee(tx *chain.Tx) *big.Int {
	fee := l.exchange.FeeAt(tx)
	return fee.Mul(fee, new(big.Int).SetUint64(l.params.AnticipationFeeMultiplier))
}

// anticipateTx realizes the discounted earnings of tokenAmount out of the
// available pool. With pull set the tokens are taken from a first; a zero
// value leaves everything untouched.
func (l *Ledger) anticipateTx(tx *chain.Tx, a domain.Address, tokenAmount *big.Int, pull bool) (*big.Int, error) {
	q := l.quoteAnticipation(a, tokenAmount)
	if q.Discounted.Sign() == 0 {
		return q.Discounted, nil
	}
	if pull {
		if err := l.pullTokens(tx, a, tokenAmount); err != nil {
			return nil, err
		}
	}
	if err := l.debit(tx, q.Discounted); err != nil {
		return nil, err
	}
	l.releaseLocked(tx, a, tokenAmount)
	return q.Discounted, nil
}

// quoteAnticipation values t base units of token as t/1e18 height units of
// earnings, discounted by Y/(Y + t/1e18) for a horizon of Y heights. The
// discounted value is strictly below the undiscounted one whenever the latter
// is positive, and never decreases as t grows.
func (l *Ledger) quoteAnticipation(a domain.Address, t *big.Int) AnticipationQuote {
	q := AnticipationQuote{
		TokenAmount:  fixedpoint.Clone(t),
		Undiscounted: fixedpoint.Zero(),
		Discounted:   fixedpoint.Zero(),
	}
	if t.Sign() == 0 {
		return q
	}

	// principal·roi·t carries three 1e18 scales; the result carries one.
	num := new(big.Int).Mul(l.principal.Get(a), l.roi())
	num.Mul(num, t)
	year := new(big.Int).Mul(new(big.Int).SetUint64(l.params.OneYear), fixedpoint.Unit)

	q.Undiscounted = fixedpoint.MulDiv(num, big.NewInt(1), new(big.Int).Mul(year, fixedpoint.Unit))
	discounted := fixedpoint.MulDiv(num, big.NewInt(1), new(big.Int).Mul(fixedpoint.Unit, fixedpoint.Add(year, t)))
	if q.Undiscounted.Sign() > 0 && discounted.Cmp(q.Undiscounted) >= 0 {
		discounted = fixedpoint.Sub(q.Undiscounted, big.NewInt(1))
	}
	q.Discounted = fixedpoint.Min(discounted, l.available.Get())
	return q
}

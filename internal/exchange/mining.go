package exchange

import (
	"context"
	"fmt"
	"math/big"

	"time-ledger/internal/chain"
	"time-ledger/internal/domain"
	"time-ledger/internal/fixedpoint"
)

// Fee returns the native enrollment fee: baseFee scaled by (1 + averageMiningRate).
func (e *Engine) Fee(ctx context.Context) (*big.Int, error) {
	return view(ctx, e, func(*chain.Tx) (*big.Int, error) {
		return e.fee(), nil
	})
}

// FeeInToken returns the token enrollment fee: tokenBaseFee scaled the same way.
func (e *Engine) FeeInToken(ctx context.Context) (*big.Int, error) {
	return view(ctx, e, func(*chain.Tx) (*big.Int, error) {
		return e.feeInToken(), nil
	})
}

// FeeAt returns the native enrollment fee inside an operation.
func (e *Engine) FeeAt(*chain.Tx) *big.Int {
	return e.fee()
}

// AverageMiningRate returns minted base units per height since genesis.
func (e *Engine) AverageMiningRate(ctx context.Context) (*big.Int, error) {
	return view(ctx, e, func(*chain.Tx) (*big.Int, error) {
		return e.averageRate.Get(), nil
	})
}

// TotalMined returns the tokens minted by mining since genesis.
func (e *Engine) TotalMined(ctx context.Context) (*big.Int, error) {
	return view(ctx, e, func(*chain.Tx) (*big.Int, error) {
		return e.totalMined.Get(), nil
	})
}

// FirstHeight returns the genesis height.
func (e *Engine) FirstHeight(ctx context.Context) (uint64, error) {
	return view(ctx, e, func(*chain.Tx) (uint64, error) {
		return e.firstHeight.Get(), nil
	})
}

// IsMiningAllowed reports whether a is enrolled.
func (e *Engine) IsMiningAllowed(ctx context.Context, a domain.Address) (bool, error) {
	return view(ctx, e, func(*chain.Tx) (bool, error) {
		return e.miningEnabled.Get(a), nil
	})
}

// LastMinedHeight returns the height a last mined or enrolled at.
func (e *Engine) LastMinedHeight(ctx context.Context, a domain.Address) (uint64, error) {
	return view(ctx, e, func(*chain.Tx) (uint64, error) {
		return e.lastMined.Get(a), nil
	})
}

// EnableMining enrolls caller for a native payment of at least Fee.
// The developer fee goes to the fee recipient, the enrollment share to
// holders and the rest to the pool.
func (e *Engine) EnableMining(ctx context.Context, caller domain.Address, payment *big.Int) error {
	return e.exec(ctx, "EnableMining", caller, payment, func(tx *chain.Tx) error {
		if e.miningEnabled.Get(caller) {
			return ErrAlreadyEnabled
		}
		fee := e.fee()
		paid := tx.Value()
		if paid.Cmp(fee) < 0 {
			return fmt.Errorf("%w: paid %s, fee %s", ErrUnderpayment, paid, fee)
		}

		developer := e.params.DeveloperFee.Of(paid)
		if err := tx.Pay(e.params.Address, e.params.FeeRecipient, developer); err != nil {
			return err
		}
		shared := e.params.EnrollmentShare.Of(paid)
		pool := fixedpoint.Sub(fixedpoint.Sub(paid, developer), shared)
		e.poolBalance.Set(tx.Journal(), fixedpoint.Add(e.poolBalance.Get(), pool))
		e.allocate(tx, shared)

		e.enroll(tx, caller)
		e.emit(tx, domain.EventMiningEnabled, caller, e.params.Address, paid, nil)
		return nil
	})
}

// EnableMiningWithToken enrolls caller by burning FeeInToken tokens.
func (e *Engine) EnableMiningWithToken(ctx context.Context, caller domain.Address) error {
	return e.exec(ctx, "EnableMiningWithToken", caller, nil, func(tx *chain.Tx) error {
		if e.miningEnabled.Get(caller) {
			return ErrAlreadyEnabled
		}
		fee := e.feeInToken()
		if err := e.burn(tx, caller, fee); err != nil {
			return err
		}
		e.enroll(tx, caller)
		e.emit(tx, domain.EventMiningEnabled, caller, e.params.Address, nil, fee)
		return nil
	})
}

// Mine mints one token per height elapsed since caller last mined and
// returns the minted amount.
func (e *Engine) Mine(ctx context.Context, caller domain.Address) (*big.Int, error) {
	var minted *big.Int
	err := e.exec(ctx, "Mine", caller, nil, func(tx *chain.Tx) error {
		if !e.miningEnabled.Get(caller) {
			return ErrNotEligible
		}
		j := tx.Journal()

		elapsed := tx.Height - e.lastMined.Get(caller)
		minted = new(big.Int).Mul(new(big.Int).SetUint64(elapsed), fixedpoint.Unit)
		e.lastMined.Set(j, caller, tx.Height)

		e.mint(tx, caller, minted)
		total := fixedpoint.Add(e.totalMined.Get(), minted)
		e.totalMined.Set(j, total)

		span := new(big.Int).SetUint64(tx.Height - e.firstHeight.Get() + 1)
		e.averageRate.Set(j, new(big.Int).Quo(total, span))

		e.emit(tx, domain.EventMined, caller, domain.ZeroAddress, minted, new(big.Int).SetUint64(elapsed))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return minted, nil
}

func (e *Engine) enroll(tx *chain.Tx, a domain.Address) {
	e.miningEnabled.Set(tx.Journal(), a, true)
	e.lastMined.Set(tx.Journal(), a, tx.Height)
}

func (e *Engine) fee() *big.Int {
	return e.scaleByRate(e.params.BaseFee)
}

func (e *Engine) feeInToken() *big.Int {
	return e.scaleByRate(e.params.TokenBaseFee)
}

func (e *Engine) scaleByRate(base *big.Int) *big.Int {
	factor := fixedpoint.Add(fixedpoint.Unit, e.averageRate.Get())
	return fixedpoint.MulDiv(base, factor, fixedpoint.Unit)
}

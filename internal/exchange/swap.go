package exchange

import (
	"context"
	"math/big"

	"time-ledger/internal/chain"
	"time-ledger/internal/domain"
	"time-ledger/internal/fixedpoint"
)

// SpendQuote breaks down a token-to-native swap.
type SpendQuote struct {
	TokenIn      *big.Int
	DeveloperFee *big.Int // in token
	TokenNet     *big.Int
	NativeOut    *big.Int // taken from the pool
	DividendFee  *big.Int // in native, shared among holders
	UserOut      *big.Int // native paid to the seller
}

// SaveQuote breaks down a native-to-token swap.
type SaveQuote struct {
	NativeIn     *big.Int
	DeveloperFee *big.Int // in native
	DividendFee  *big.Int // in native, shared among holders
	NativeNet    *big.Int // added to the pool
	TokenOut     *big.Int // paid from the engine's token reserve
}

// SwapPriceTokenInverse returns native received per token, scaled by 1e18,
// for selling amount tokens now.
func (e *Engine) SwapPriceTokenInverse(ctx context.Context, amount *big.Int) (*big.Int, error) {
	q, err := e.QuoteSpendToken(ctx, amount)
	if err != nil {
		return nil, err
	}
	return fixedpoint.MulDiv(q.UserOut, fixedpoint.Unit, amount), nil
}

// SwapPriceNative returns tokens received per native unit, scaled by 1e18,
// for paying amount native now.
func (e *Engine) SwapPriceNative(ctx context.Context, amount *big.Int) (*big.Int, error) {
	q, err := e.QuoteSaveToken(ctx, amount)
	if err != nil {
		return nil, err
	}
	return fixedpoint.MulDiv(q.TokenOut, fixedpoint.Unit, amount), nil
}

// QuoteSpendToken returns the exact breakdown SpendToken would realize.
func (e *Engine) QuoteSpendToken(ctx context.Context, amount *big.Int) (SpendQuote, error) {
	return view(ctx, e, func(*chain.Tx) (SpendQuote, error) {
		return e.quoteSpend(amount)
	})
}

// QuoteSaveToken returns the exact breakdown SaveToken would realize.
func (e *Engine) QuoteSaveToken(ctx context.Context, amount *big.Int) (SaveQuote, error) {
	return view(ctx, e, func(*chain.Tx) (SaveQuote, error) {
		return e.quoteSave(amount)
	})
}

// SpendToken sells amount tokens for native and returns the native paid.
func (e *Engine) SpendToken(ctx context.Context, caller domain.Address, amount *big.Int) (*big.Int, error) {
	var out *big.Int
	err := e.exec(ctx, "SpendToken", caller, nil, func(tx *chain.Tx) error {
		var err error
		out, err = e.spend(tx, caller, amount)
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// SaveToken buys tokens with payment and returns the tokens received.
func (e *Engine) SaveToken(ctx context.Context, caller domain.Address, payment *big.Int) (*big.Int, error) {
	var out *big.Int
	err := e.exec(ctx, "SaveToken", caller, payment, func(tx *chain.Tx) error {
		var err error
		out, err = e.save(tx, caller, tx.Value())
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// BuyTx buys tokens for buyer inside an operation already in progress.
// The payment moves from buyer to the engine first.
func (e *Engine) BuyTx(tx *chain.Tx, buyer domain.Address, payment *big.Int) (*big.Int, error) {
	if err := requirePositive(payment); err != nil {
		return nil, err
	}
	if err := tx.Pay(buyer, e.params.Address, payment); err != nil {
		return nil, err
	}
	out, err := e.save(tx, buyer, payment)
	if err != nil {
		return nil, err
	}
	return out, e.checkReserves(tx)
}

// Donate deepens the pool and rewards holders without minting tokens.
func (e *Engine) Donate(ctx context.Context, caller domain.Address, payment *big.Int) error {
	return e.exec(ctx, "Donate", caller, payment, func(tx *chain.Tx) error {
		paid := tx.Value()
		if err := requirePositive(paid); err != nil {
			return err
		}
		shared := e.params.DonationShare.Of(paid)
		e.poolBalance.Set(tx.Journal(), fixedpoint.Add(e.poolBalance.Get(), fixedpoint.Sub(paid, shared)))
		e.allocate(tx, shared)
		e.emit(tx, domain.EventDonation, caller, e.params.Address, paid, shared)
		return nil
	})
}

// receiveNative turns plain native sent to the engine into a token purchase.
func (e *Engine) receiveNative(tx *chain.Tx, from domain.Address, value *big.Int) error {
	if !e.initialized.Get() {
		return ErrNotInitialized
	}
	if _, err := e.save(tx, from, value); err != nil {
		return err
	}
	if err := e.checkReserves(tx); err != nil {
		return err
	}
	tx.OnCommit(e.publishGauges)
	return nil
}

// spend is the single token-to-native path, shared by SpendToken and by
// token transfers to the engine address.
func (e *Engine) spend(tx *chain.Tx, seller domain.Address, amount *big.Int) (*big.Int, error) {
	q, err := e.quoteSpend(amount)
	if err != nil {
		return nil, err
	}
	if err := e.move(tx, seller, e.params.FeeRecipient, q.DeveloperFee); err != nil {
		return nil, err
	}
	if err := e.move(tx, seller, e.params.Address, q.TokenNet); err != nil {
		return nil, err
	}

	e.poolBalance.Set(tx.Journal(), fixedpoint.Sub(e.poolBalance.Get(), q.NativeOut))
	e.allocate(tx, q.DividendFee)
	if err := tx.Pay(e.params.Address, seller, q.UserOut); err != nil {
		return nil, err
	}

	e.emit(tx, domain.EventTokenSpent, seller, e.params.Address, amount, q.UserOut)
	return q.UserOut, nil
}

// save is the single native-to-token path, shared by SaveToken, BuyTx and
// native sent to the engine address. The payment is already in the engine.
func (e *Engine) save(tx *chain.Tx, buyer domain.Address, payment *big.Int) (*big.Int, error) {
	q, err := e.quoteSave(payment)
	if err != nil {
		return nil, err
	}
	if err := tx.Pay(e.params.Address, e.params.FeeRecipient, q.DeveloperFee); err != nil {
		return nil, err
	}

	// Holders are credited before the buyer receives tokens, so the buyer
	// does not share in its own fee.
	e.allocate(tx, q.DividendFee)
	e.poolBalance.Set(tx.Journal(), fixedpoint.Add(e.poolBalance.Get(), q.NativeNet))
	if err := e.move(tx, e.params.Address, buyer, q.TokenOut); err != nil {
		return nil, err
	}

	e.emit(tx, domain.EventTokenSaved, buyer, e.params.Address, payment, q.TokenOut)
	return q.TokenOut, nil
}

// quoteSpend prices a sale on the constant-product curve between the pool
// and the engine's token reserve.
func (e *Engine) quoteSpend(amount *big.Int) (SpendQuote, error) {
	if err := requirePositive(amount); err != nil {
		return SpendQuote{}, err
	}
	pool := e.poolBalance.Get()
	if pool.Sign() == 0 {
		return SpendQuote{}, ErrInsufficientLiquidity
	}
	reserve := e.balances.Get(e.params.Address)

	q := SpendQuote{TokenIn: fixedpoint.Clone(amount)}
	q.DeveloperFee = e.params.DeveloperFee.Of(amount)
	q.TokenNet = fixedpoint.Sub(amount, q.DeveloperFee)
	q.NativeOut = fixedpoint.MulDiv(pool, q.TokenNet, fixedpoint.Add(reserve, q.TokenNet))
	q.DividendFee = e.params.DividendFee.Of(q.NativeOut)
	q.UserOut = fixedpoint.Sub(q.NativeOut, q.DividendFee)
	if q.UserOut.Sign() == 0 {
		return SpendQuote{}, ErrAmountTooSmall
	}
	return q, nil
}

// quoteSave prices a purchase. The output is always strictly below the
// token reserve, so the curve never runs dry.
func (e *Engine) quoteSave(payment *big.Int) (SaveQuote, error) {
	if err := requirePositive(payment); err != nil {
		return SaveQuote{}, err
	}
	pool := e.poolBalance.Get()
	if pool.Sign() == 0 {
		return SaveQuote{}, ErrInsufficientLiquidity
	}
	reserve := e.balances.Get(e.params.Address)

	q := SaveQuote{NativeIn: fixedpoint.Clone(payment)}
	q.DeveloperFee = e.params.DeveloperFee.Of(payment)
	q.DividendFee = e.params.DividendFee.Of(payment)
	q.NativeNet = fixedpoint.Sub(fixedpoint.Sub(payment, q.DeveloperFee), q.DividendFee)
	q.TokenOut = fixedpoint.MulDiv(reserve, q.NativeNet, fixedpoint.Add(pool, q.NativeNet))
	if q.TokenOut.Sign() == 0 {
		return SaveQuote{}, ErrAmountTooSmall
	}
	return q, nil
}

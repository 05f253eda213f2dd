package exchange

import (
	"context"
	"fmt"
	"math/big"

	"time-ledger/internal/chain"
	"time-ledger/internal/domain"
	"time-ledger/internal/fixedpoint"
	"time-ledger/internal/state"
)

// Transfer moves tokens from caller to to. Tokens sent to the engine address
// are swapped for native exactly as SpendToken would.
func (e *Engine) Transfer(ctx context.Context, caller, to domain.Address, amount *big.Int) error {
	return e.exec(ctx, "Transfer", caller, nil, func(tx *chain.Tx) error {
		return e.transfer(tx, caller, to, amount)
	})
}

// Approve sets the amount spender may move on behalf of caller.
func (e *Engine) Approve(ctx context.Context, caller, spender domain.Address, amount *big.Int) error {
	return e.exec(ctx, "Approve", caller, nil, func(tx *chain.Tx) error {
		if amount == nil || amount.Sign() < 0 {
			return fmt.Errorf("%w: %v", ErrInvalidAmount, amount)
		}
		e.allowances.Set(tx.Journal(), state.PairKey{First: caller, Second: spender}, amount)
		e.emit(tx, domain.EventApproval, caller, spender, amount, nil)
		return nil
	})
}

// TransferFrom moves tokens from owner to to using caller's allowance.
func (e *Engine) TransferFrom(ctx context.Context, caller, owner, to domain.Address, amount *big.Int) error {
	return e.exec(ctx, "TransferFrom", caller, nil, func(tx *chain.Tx) error {
		return e.TransferFromTx(tx, caller, owner, to, amount)
	})
}

// TransferFromTx is TransferFrom inside an operation already in progress.
func (e *Engine) TransferFromTx(tx *chain.Tx, spender, owner, to domain.Address, amount *big.Int) error {
	if err := e.spendAllowance(tx, owner, spender, amount); err != nil {
		return err
	}
	return e.transfer(tx, owner, to, amount)
}

// Burn destroys amount of caller's tokens.
func (e *Engine) Burn(ctx context.Context, caller domain.Address, amount *big.Int) error {
	return e.exec(ctx, "Burn", caller, nil, func(tx *chain.Tx) error {
		return e.BurnTx(tx, caller, amount)
	})
}

// BurnTx is Burn inside an operation already in progress.
func (e *Engine) BurnTx(tx *chain.Tx, from domain.Address, amount *big.Int) error {
	if err := requirePositive(amount); err != nil {
		return err
	}
	return e.burn(tx, from, amount)
}

// BalanceOf returns the token balance of a.
func (e *Engine) BalanceOf(ctx context.Context, a domain.Address) (*big.Int, error) {
	return view(ctx, e, func(*chain.Tx) (*big.Int, error) {
		return e.balances.Get(a), nil
	})
}

// BalanceAt returns the token balance of a inside an operation.
func (e *Engine) BalanceAt(_ *chain.Tx, a domain.Address) *big.Int {
	return e.balances.Get(a)
}

// Allowance returns how much spender may still move for owner.
func (e *Engine) Allowance(ctx context.Context, owner, spender domain.Address) (*big.Int, error) {
	return view(ctx, e, func(*chain.Tx) (*big.Int, error) {
		return e.allowances.Get(state.PairKey{First: owner, Second: spender}), nil
	})
}

// TotalSupply returns the token supply.
func (e *Engine) TotalSupply(ctx context.Context) (*big.Int, error) {
	return view(ctx, e, func(*chain.Tx) (*big.Int, error) {
		return e.totalSupply.Get(), nil
	})
}

// SumBalances adds every balance. Used to audit totalSupply.
func (e *Engine) SumBalances(ctx context.Context) (*big.Int, error) {
	return view(ctx, e, func(*chain.Tx) (*big.Int, error) {
		sum := new(big.Int)
		e.balances.Range(func(_ domain.Address, v *big.Int) bool {
			sum.Add(sum, v)
			return true
		})
		return sum, nil
	})
}

func (e *Engine) transfer(tx *chain.Tx, from, to domain.Address, amount *big.Int) error {
	if err := requirePositive(amount); err != nil {
		return err
	}
	if to == e.params.Address {
		_, err := e.spend(tx, from, amount)
		return err
	}
	if to.IsZero() {
		return fmt.Errorf("%w: transfer to the zero address", ErrInvalidAmount)
	}
	return e.move(tx, from, to, amount)
}

func (e *Engine) spendAllowance(tx *chain.Tx, owner, spender domain.Address, amount *big.Int) error {
	key := state.PairKey{First: owner, Second: spender}
	allowed := e.allowances.Get(key)
	if allowed.Cmp(fixedpoint.Clone(amount)) < 0 {
		return fmt.Errorf("%w: %s allowed %s, needs %s", ErrInsufficientAllowance, spender.Short(), allowed, amount)
	}
	e.allowances.Set(tx.Journal(), key, allowed.Sub(allowed, amount))
	return nil
}

// move transfers tokens without the swap dispatch.
func (e *Engine) move(tx *chain.Tx, from, to domain.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	j := tx.Journal()
	balance := e.balances.Get(from)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Short(), balance, amount)
	}
	if from != to {
		e.balances.Set(j, from, balance.Sub(balance, amount))
		e.balances.Set(j, to, fixedpoint.Add(e.balances.Get(to), amount))
		e.adjustShares(tx, from, new(big.Int).Neg(amount))
		e.adjustShares(tx, to, amount)
	}
	e.emit(tx, domain.EventTransfer, from, to, amount, nil)
	return nil
}

func (e *Engine) mint(tx *chain.Tx, to domain.Address, amount *big.Int) {
	if amount.Sign() == 0 {
		return
	}
	j := tx.Journal()
	e.totalSupply.Set(j, fixedpoint.Add(e.totalSupply.Get(), amount))
	e.balances.Set(j, to, fixedpoint.Add(e.balances.Get(to), amount))
	e.adjustShares(tx, to, amount)
	e.emit(tx, domain.EventTransfer, domain.ZeroAddress, to, amount, nil)
}

func (e *Engine) burn(tx *chain.Tx, from domain.Address, amount *big.Int) error {
	j := tx.Journal()
	balance := e.balances.Get(from)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s has %s, needs %s", ErrInsufficientBalance, from.Short(), balance, amount)
	}
	e.balances.Set(j, from, balance.Sub(balance, amount))
	e.totalSupply.Set(j, fixedpoint.Sub(e.totalSupply.Get(), amount))
	e.adjustShares(tx, from, new(big.Int).Neg(amount))
	e.emit(tx, domain.EventBurn, from, domain.ZeroAddress, amount, nil)
	return nil
}

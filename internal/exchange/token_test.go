package exchange

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"time-ledger/internal/domain"
	"time-ledger/internal/fixedpoint"
)

func TestTransfer(t *testing.T) {
	f := newFixture(t)
	alice := f.miner(t, 10)
	bob := newUser(t)

	require.NoError(t, f.engine.Transfer(f.ctx, alice, bob, fixedpoint.Tokens(4)))
	assert.Equal(t, fixedpoint.Tokens(6), f.tokens(t, alice))
	assert.Equal(t, fixedpoint.Tokens(4), f.tokens(t, bob))

	err := f.engine.Transfer(f.ctx, bob, alice, fixedpoint.Tokens(5))
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	err = f.engine.Transfer(f.ctx, alice, domain.ZeroAddress, fixedpoint.Tokens(1))
	assert.ErrorIs(t, err, ErrInvalidAmount)
	f.requireInvariants(t)
}

func TestApproveAndTransferFrom(t *testing.T) {
	f := newFixture(t)
	alice := f.miner(t, 10)
	spender := newUser(t)
	bob := newUser(t)

	err := f.engine.TransferFrom(f.ctx, spender, alice, bob, fixedpoint.Tokens(1))
	assert.ErrorIs(t, err, ErrInsufficientAllowance)

	require.NoError(t, f.engine.Approve(f.ctx, alice, spender, fixedpoint.Tokens(3)))
	allowance, err := f.engine.Allowance(f.ctx, alice, spender)
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.Tokens(3), allowance)

	require.NoError(t, f.engine.TransferFrom(f.ctx, spender, alice, bob, fixedpoint.Tokens(2)))
	assert.Equal(t, fixedpoint.Tokens(2), f.tokens(t, bob))

	allowance, err = f.engine.Allowance(f.ctx, alice, spender)
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.Tokens(1), allowance)

	err = f.engine.TransferFrom(f.ctx, spender, alice, bob, fixedpoint.Tokens(2))
	assert.ErrorIs(t, err, ErrInsufficientAllowance)

	// A failing transfer must not consume allowance.
	require.NoError(t, f.engine.Approve(f.ctx, alice, spender, fixedpoint.Tokens(100)))
	err = f.engine.TransferFrom(f.ctx, spender, alice, bob, fixedpoint.Tokens(50))
	assert.ErrorIs(t, err, ErrInsufficientBalance)
	allowance, err = f.engine.Allowance(f.ctx, alice, spender)
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.Tokens(100), allowance)
	f.requireInvariants(t)
}

func TestBurn(t *testing.T) {
	f := newFixture(t)
	alice := f.miner(t, 8)

	supplyBefore, err := f.engine.TotalSupply(f.ctx)
	require.NoError(t, err)
	require.NoError(t, f.engine.Burn(f.ctx, alice, fixedpoint.Tokens(8)))
	assert.Equal(t, int64(0), f.tokens(t, alice).Int64())

	supplyAfter, err := f.engine.TotalSupply(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.Sub(supplyBefore, fixedpoint.Tokens(8)), supplyAfter)

	assert.ErrorIs(t, f.engine.Burn(f.ctx, alice, fixedpoint.Tokens(1)), ErrInsufficientBalance)
	f.requireInvariants(t)
}

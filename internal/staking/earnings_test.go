package staking

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"time-ledger/internal/fixedpoint"
)

// expectedEarnings mirrors the accrual formula for h height units.
func expectedEarnings(f *fixture, t *testing.T, principal *big.Int, h int64) *big.Int {
	t.Helper()
	roi, err := f.ledger.CurrentROI(f.ctx)
	require.NoError(t, err)
	year := new(big.Int).Mul(new(big.Int).SetUint64(f.ledger.OneYear()), fixedpoint.Unit)
	earned := fixedpoint.MulDiv(new(big.Int).Mul(principal, roi), big.NewInt(h), year)
	return fixedpoint.Min(earned, f.available(t))
}

func TestCurrentROI(t *testing.T) {
	f := newFixture(t)

	roi, err := f.ledger.CurrentROI(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, roi.Sign(), "no deposits means no return")

	f.depositor(t, 10, 10)
	roi, err = f.ledger.CurrentROI(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.MulDiv(f.available(t), fixedpoint.Unit, f.deposited(t)), roi)
}

func TestQueryEarnings(t *testing.T) {
	f := newFixture(t)
	a := f.depositor(t, 100, 10)

	earnings, err := f.ledger.QueryEarnings(f.ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 0, earnings.Sign(), "nothing accrues at the deposit height")

	f.heights.Advance(30)
	earnings, err = f.ledger.QueryEarnings(f.ctx, a)
	require.NoError(t, err)
	assert.True(t, earnings.Sign() > 0)
	assert.Equal(t, expectedEarnings(f, t, f.position(t, a).Principal, 30), earnings)

	stranger, err := f.ledger.QueryEarnings(f.ctx, newUser(t))
	require.NoError(t, err)
	assert.Equal(t, 0, stranger.Sign())
}

func TestQueryEarnings_CappedByLockedToken(t *testing.T) {
	f := newFixture(t)
	a := f.depositor(t, 10, 10)

	f.heights.Advance(10)
	atTen, err := f.ledger.QueryEarnings(f.ctx, a)
	require.NoError(t, err)

	f.heights.Advance(90)
	atHundred, err := f.ledger.QueryEarnings(f.ctx, a)
	require.NoError(t, err)

	assert.Equal(t, atTen, atHundred, "ten locked tokens back ten heights of earnings")
	assert.Equal(t, expectedEarnings(f, t, f.position(t, a).Principal, 10), atHundred)
}

func TestWithdrawEarnings(t *testing.T) {
	f := newFixture(t)
	a := f.depositor(t, 100, 10)

	f.heights.Advance(30)
	earnings, err := f.ledger.QueryEarnings(f.ctx, a)
	require.NoError(t, err)

	nativeBefore := f.native(a)
	availableBefore := f.available(t)
	depositedBefore := f.deposited(t)

	paid, err := f.ledger.WithdrawEarnings(f.ctx, a)
	require.NoError(t, err)
	assert.Equal(t, earnings, paid)
	assert.Equal(t, fixedpoint.Add(nativeBefore, paid), f.native(a))
	assert.Equal(t, fixedpoint.Sub(availableBefore, paid), f.available(t))
	assert.Equal(t, depositedBefore, f.deposited(t))
	assert.Equal(t, fixedpoint.Tokens(70), f.position(t, a).LockedToken)

	_, err = f.ledger.WithdrawEarnings(f.ctx, a)
	assert.ErrorIs(t, err, ErrNoEarnings)

	_, err = f.ledger.WithdrawEarnings(f.ctx, newUser(t))
	assert.ErrorIs(t, err, ErrNoDeposit)
	f.requireSolvent(t)
}

func TestWithdrawEarnings_ExhaustsLockedToken(t *testing.T) {
	f := newFixture(t)
	a := f.depositor(t, 5, 10)

	f.heights.Advance(50)
	_, err := f.ledger.WithdrawEarnings(f.ctx, a)
	require.NoError(t, err)
	assert.Equal(t, 0, f.position(t, a).LockedToken.Sign())

	f.heights.Advance(50)
	_, err = f.ledger.WithdrawEarnings(f.ctx, a)
	assert.ErrorIs(t, err, ErrNoEarnings, "no locked tokens left to back earnings")
}

func TestCompound_WithoutAnticipation(t *testing.T) {
	f := newFixture(t)
	a := f.depositor(t, 100, 10)

	f.heights.Advance(30)
	earnings, err := f.ledger.QueryEarnings(f.ctx, a)
	require.NoError(t, err)

	principalBefore := f.position(t, a).Principal
	depositedBefore := f.deposited(t)
	availableBefore := f.available(t)
	nativeBefore := f.native(a)

	total, err := f.ledger.Compound(f.ctx, a, nil, false)
	require.NoError(t, err)
	assert.Equal(t, earnings, total)

	assert.Equal(t, fixedpoint.Add(principalBefore, total), f.position(t, a).Principal)
	assert.Equal(t, fixedpoint.Add(depositedBefore, total), f.deposited(t))
	assert.Equal(t, fixedpoint.Sub(availableBefore, total), f.available(t))
	assert.Equal(t, nativeBefore, f.native(a), "compounding pays nothing out")

	after, err := f.ledger.QueryEarnings(f.ctx, a)
	require.NoError(t, err)
	assert.Equal(t, -1, after.Cmp(earnings))
	f.requireSolvent(t)
}

func TestCompound_WithAnticipation(t *testing.T) {
	f := newFixture(t)
	a := f.depositor(t, 100, 10)

	_, err := f.ledger.Compound(f.ctx, a, fixedpoint.Tokens(1), true)
	require.ErrorIs(t, err, ErrNotEligible)

	f.enableAnticipation(t, a)
	f.heights.Advance(20)
	_, err = f.exchange.Mine(f.ctx, a)
	require.NoError(t, err)
	f.approveAll(t, a)
	fresh := f.tokens(t, a)
	require.True(t, fresh.Sign() > 0)

	ordinary, err := f.ledger.QueryEarnings(f.ctx, a)
	require.NoError(t, err)
	principalBefore := f.position(t, a).Principal

	total, err := f.ledger.Compound(f.ctx, a, fresh, true)
	require.NoError(t, err)
	assert.Equal(t, 1, total.Cmp(ordinary), "anticipated earnings add to the ordinary ones")
	assert.Equal(t, fixedpoint.Add(principalBefore, total), f.position(t, a).Principal)
	assert.Equal(t, 0, f.tokens(t, a).Sign())

	// 20 locked tokens backed the ordinary earnings, the rest were anticipated.
	want := fixedpoint.Sub(fixedpoint.Tokens(80), fixedpoint.Min(fresh, fixedpoint.Tokens(80)))
	assert.Equal(t, want, f.position(t, a).LockedToken)
	f.requireSolvent(t)
}

func TestCompound_NothingToCompound(t *testing.T) {
	f := newFixture(t)
	a := f.depositor(t, 10, 10)

	_, err := f.ledger.Compound(f.ctx, a, nil, false)
	assert.ErrorIs(t, err, ErrNoEarnings)

	_, err = f.ledger.Compound(f.ctx, newUser(t), nil, false)
	assert.ErrorIs(t, err, ErrNoDeposit)
}

func TestEarn(t *testing.T) {
	f := newFixture(t)
	f.depositor(t, 100, 10)
	require.True(t, f.tokens(t, f.ledger.Address()).Sign() > 0)

	buyer := f.funded(t, 50)
	_, err := f.exchange.SaveToken(f.ctx, buyer, fixedpoint.Tokens(5))
	require.NoError(t, err)

	share, err := f.exchange.WithdrawableShareBalance(f.ctx, f.ledger.Address())
	require.NoError(t, err)
	require.True(t, share.Sign() > 0)

	before := f.available(t)
	earned, err := f.ledger.Earn(f.ctx, newUser(t))
	require.NoError(t, err)
	assert.Equal(t, share, earned)
	assert.Equal(t, fixedpoint.Add(before, share), f.available(t))
	f.requireSolvent(t)

	again, err := f.ledger.Earn(f.ctx, newUser(t))
	require.NoError(t, err)
	assert.Equal(t, 0, again.Sign())
}

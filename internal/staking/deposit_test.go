package staking

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"time-ledger/internal/exchange"
	"time-ledger/internal/fixedpoint"
)

func TestDeposit_PrincipalAndLockedToken(t *testing.T) {
	f := newFixture(t)
	x := f.miner(t, 50)
	require.Equal(t, fixedpoint.Tokens(50), f.tokens(t, x), "mining must mint exactly one token per height")

	payment := fixedpoint.Tokens(10)
	developerBefore := f.native(f.developer)
	require.NoError(t, f.ledger.Deposit(f.ctx, x, fixedpoint.Tokens(50), false, payment))

	p := f.position(t, x)
	want := fixedpoint.Sub(payment, new(big.Int).Quo(payment, big.NewInt(50)))
	diff := new(big.Int).Abs(fixedpoint.Sub(p.Principal, want))
	assert.LessOrEqual(t, diff.Cmp(big.NewInt(1)), 0, "principal %s, want %s", p.Principal, want)
	assert.Equal(t, fixedpoint.Tokens(50), p.LockedToken)
	assert.Equal(t, f.chain.LastHeight(), p.LastHeight)

	burned, err := f.ledger.TotalBurnedToken(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.Tokens(25), burned)
	assert.Equal(t, fixedpoint.Tokens(25), f.tokens(t, f.ledger.Address()))
	assert.Equal(t, 0, f.tokens(t, x).Sign())

	params := f.ledger.Params()
	commission := params.Commission.Of(payment)
	assert.Equal(t, fixedpoint.Add(developerBefore, commission), f.native(f.developer))
	assert.Equal(t, fixedpoint.Sub(params.DepositFee.Of(payment), commission), f.available(t))

	total, err := f.ledger.TotalDepositedNative(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, p.Principal, total)
	assert.Equal(t, p.Principal, f.deposited(t))
	f.requireSolvent(t)
}

func TestDeposit_AnticipateNowRequiresEnablement(t *testing.T) {
	f := newFixture(t)
	m := f.miner(t, 50)

	// y holds tokens without ever enrolling for mining or anticipation.
	y := f.funded(t, 20)
	require.NoError(t, f.exchange.Transfer(f.ctx, m, y, fixedpoint.Tokens(20)))
	f.approveAll(t, y)

	nativeBefore := f.native(y)
	tokensBefore := f.tokens(t, y)
	ledgerNative := f.native(f.ledger.Address())
	ledgerTokens := f.tokens(t, f.ledger.Address())
	availableBefore := f.available(t)

	err := f.ledger.Deposit(f.ctx, y, fixedpoint.Tokens(20), true, fixedpoint.Tokens(5))
	require.ErrorIs(t, err, ErrNotEligible)

	assert.Equal(t, nativeBefore, f.native(y))
	assert.Equal(t, tokensBefore, f.tokens(t, y))
	assert.Equal(t, ledgerNative, f.native(f.ledger.Address()))
	assert.Equal(t, ledgerTokens, f.tokens(t, f.ledger.Address()))
	assert.Equal(t, availableBefore, f.available(t))
	assert.Equal(t, 0, f.position(t, y).Principal.Sign())
	assert.Equal(t, 0, f.deposited(t).Sign())
}

func TestDeposit_WithoutAllowanceReverts(t *testing.T) {
	f := newFixture(t)
	a := f.miner(t, 30)
	require.NoError(t, f.exchange.Approve(f.ctx, a, f.ledger.Address(), new(big.Int)))

	before := f.native(a)
	err := f.ledger.Deposit(f.ctx, a, fixedpoint.Tokens(30), false, fixedpoint.Tokens(5))
	require.ErrorIs(t, err, exchange.ErrInsufficientAllowance)

	assert.Equal(t, before, f.native(a))
	assert.Equal(t, fixedpoint.Tokens(30), f.tokens(t, a))
	assert.Equal(t, 0, f.position(t, a).Principal.Sign())
}

func TestDeposit_InvalidPayment(t *testing.T) {
	f := newFixture(t)
	a := f.miner(t, 10)

	err := f.ledger.Deposit(f.ctx, a, fixedpoint.Tokens(10), false, nil)
	assert.ErrorIs(t, err, ErrInvalidAmount)
	err = f.ledger.Deposit(f.ctx, a, big.NewInt(-1), false, fixedpoint.Tokens(1))
	assert.ErrorIs(t, err, ErrInvalidAmount)
}

func TestDeposit_AnticipateNow(t *testing.T) {
	f := newFixture(t)
	f.depositor(t, 40, 20)

	a := f.miner(t, 30)
	f.enableAnticipation(t, a)

	nativeBefore := f.native(a)
	payment := fixedpoint.Tokens(10)
	require.NoError(t, f.ledger.Deposit(f.ctx, a, fixedpoint.Tokens(30), true, payment))

	p := f.position(t, a)
	assert.True(t, p.Principal.Sign() > 0)
	assert.Equal(t, 0, p.LockedToken.Sign(), "anticipated tokens must leave the locked position")

	// a paid the deposit but got the anticipated earnings back at once.
	spent := fixedpoint.Sub(nativeBefore, f.native(a))
	assert.Equal(t, -1, spent.Cmp(payment))
	f.requireSolvent(t)
}

func TestDeposit_SettlesPendingEarnings(t *testing.T) {
	f := newFixture(t)
	a := f.depositor(t, 100, 10)

	f.heights.Advance(20)
	pending, err := f.ledger.QueryEarnings(f.ctx, a)
	require.NoError(t, err)
	require.True(t, pending.Sign() > 0)

	before := f.native(a)
	require.NoError(t, f.ledger.Deposit(f.ctx, a, new(big.Int), false, fixedpoint.Tokens(1)))

	want := fixedpoint.Add(fixedpoint.Sub(before, fixedpoint.Tokens(1)), pending)
	assert.Equal(t, want, f.native(a))

	p := f.position(t, a)
	assert.Equal(t, fixedpoint.Tokens(80), p.LockedToken)
	assert.Equal(t, f.chain.LastHeight(), p.LastHeight)
	f.requireSolvent(t)
}

func TestWithdrawDeposit(t *testing.T) {
	f := newFixture(t)
	a := f.depositor(t, 100, 10)
	f.depositor(t, 50, 10)

	f.heights.Advance(10)
	earnings, err := f.ledger.QueryEarnings(f.ctx, a)
	require.NoError(t, err)
	require.True(t, earnings.Sign() > 0)

	principal := f.position(t, a).Principal
	depositedBefore := f.deposited(t)
	availableBefore := f.available(t)
	nativeBefore := f.native(a)

	paid, err := f.ledger.WithdrawDeposit(f.ctx, a)
	require.NoError(t, err)
	assert.Equal(t, fixedpoint.Add(principal, earnings), paid)
	assert.Equal(t, fixedpoint.Add(nativeBefore, paid), f.native(a))
	assert.Equal(t, fixedpoint.Sub(depositedBefore, principal), f.deposited(t))
	assert.Equal(t, fixedpoint.Sub(availableBefore, earnings), f.available(t))

	p := f.position(t, a)
	assert.Equal(t, 0, p.Principal.Sign())
	assert.Equal(t, 0, p.LockedToken.Sign())

	_, err = f.ledger.WithdrawDeposit(f.ctx, a)
	assert.ErrorIs(t, err, ErrNoDeposit)
	f.requireSolvent(t)
}

func TestWithdrawDepositEmergency(t *testing.T) {
	f := newFixture(t)
	a := f.depositor(t, 100, 10)

	f.heights.Advance(10)
	principal := f.position(t, a).Principal
	availableBefore := f.available(t)
	nativeBefore := f.native(a)

	paid, err := f.ledger.WithdrawDepositEmergency(f.ctx, a)
	require.NoError(t, err)
	assert.Equal(t, principal, paid)
	assert.Equal(t, fixedpoint.Add(nativeBefore, principal), f.native(a))
	assert.Equal(t, availableBefore, f.available(t), "forfeited earnings stay available")
	assert.Equal(t, 0, f.deposited(t).Sign())

	_, err = f.ledger.WithdrawDepositEmergency(f.ctx, a)
	assert.ErrorIs(t, err, ErrNoDeposit)
	f.requireSolvent(t)
}

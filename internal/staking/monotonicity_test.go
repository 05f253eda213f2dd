package staking

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"time-ledger/internal/domain"
	"time-ledger/internal/fixedpoint"
)

// totals are the ledger-wide counters the monotonicity checks follow.
type totals struct {
	deposited *big.Int // totalDepositedNative
	burned    *big.Int // totalBurnedToken
	current   *big.Int // currentDepositedNative
}

func (f *fixture) totals(t *testing.T) totals {
	t.Helper()
	deposited, err := f.ledger.TotalDepositedNative(f.ctx)
	require.NoError(t, err)
	burned, err := f.ledger.TotalBurnedToken(f.ctx)
	require.NoError(t, err)
	return totals{deposited: deposited, burned: burned, current: f.deposited(t)}
}

// remine mines a's pending heights and approves the ledger for everything a holds.
func (f *fixture) remine(t *testing.T, a domain.Address) {
	t.Helper()
	_, err := f.exchange.Mine(f.ctx, a)
	require.NoError(t, err)
	f.approveAll(t, a)
}

func TestTotals_MonotonicAcrossOperations(t *testing.T) {
	f := newFixture(t)
	a := f.depositor(t, 100, 10)
	b := f.depositor(t, 50, 20)

	steps := []struct {
		name string
		run  func(t *testing.T)
		// withdrawal marks the only steps allowed to lower currentDepositedNative.
		withdrawal bool
	}{
		{name: "withdraw earnings", run: func(t *testing.T) {
			f.heights.Advance(20)
			_, err := f.ledger.WithdrawEarnings(f.ctx, a)
			require.NoError(t, err)
		}},
		{name: "earn", run: func(t *testing.T) {
			_, err := f.ledger.Earn(f.ctx, a)
			require.NoError(t, err)
		}},
		{name: "enable anticipation", run: func(t *testing.T) {
			f.enableAnticipation(t, b)
		}},
		{name: "anticipate", run: func(t *testing.T) {
			f.heights.Advance(10)
			f.remine(t, b)
			_, err := f.ledger.Anticipate(f.ctx, b, fixedpoint.Tokens(5))
			require.NoError(t, err)
		}},
		{name: "compound", run: func(t *testing.T) {
			f.heights.Advance(10)
			_, err := f.ledger.Compound(f.ctx, a, nil, false)
			require.NoError(t, err)
		}},
		{name: "compound with anticipation", run: func(t *testing.T) {
			f.heights.Advance(5)
			f.remine(t, b)
			_, err := f.ledger.Compound(f.ctx, b, fixedpoint.Tokens(3), true)
			require.NoError(t, err)
		}},
		{name: "top-up deposit", run: func(t *testing.T) {
			f.remine(t, a)
			require.NoError(t, f.ledger.Deposit(f.ctx, a, f.tokens(t, a), false, fixedpoint.Tokens(5)))
		}},
		{name: "native receive", run: func(t *testing.T) {
			require.NoError(t, f.chain.Fund(f.ctx, f.developer, fixedpoint.Tokens(1)))
			require.NoError(t, f.chain.SendNative(f.ctx, f.developer, f.ledger.Address(), fixedpoint.Tokens(1)))
		}},
		{name: "withdraw deposit", withdrawal: true, run: func(t *testing.T) {
			f.heights.Advance(10)
			_, err := f.ledger.WithdrawDeposit(f.ctx, a)
			require.NoError(t, err)
		}},
		{name: "withdraw emergency", withdrawal: true, run: func(t *testing.T) {
			_, err := f.ledger.WithdrawDepositEmergency(f.ctx, b)
			require.NoError(t, err)
		}},
	}

	prev := f.totals(t)
	for _, step := range steps {
		step.run(t)
		cur := f.totals(t)

		assert.GreaterOrEqual(t, cur.deposited.Cmp(prev.deposited), 0, "%s: totalDepositedNative decreased", step.name)
		assert.GreaterOrEqual(t, cur.burned.Cmp(prev.burned), 0, "%s: totalBurnedToken decreased", step.name)
		if !step.withdrawal {
			assert.GreaterOrEqual(t, cur.current.Cmp(prev.current), 0, "%s: currentDepositedNative decreased", step.name)
		}
		f.requireSolvent(t)
		prev = cur
	}
	assert.Equal(t, 0, prev.current.Sign(), "every position closed")
}

func TestWithdrawals_KeepLifetimeTotals(t *testing.T) {
	f := newFixture(t)
	a := f.depositor(t, 100, 10)
	b := f.depositor(t, 50, 10)
	f.heights.Advance(10)

	before := f.totals(t)
	_, err := f.ledger.WithdrawEarnings(f.ctx, a)
	require.NoError(t, err)
	after := f.totals(t)
	assert.Equal(t, before.deposited, after.deposited)
	assert.Equal(t, before.burned, after.burned)
	assert.Equal(t, before.current, after.current, "withdrawing earnings moves no principal")

	principal := f.position(t, a).Principal
	_, err = f.ledger.WithdrawDeposit(f.ctx, a)
	require.NoError(t, err)
	cur := f.totals(t)
	assert.Equal(t, after.deposited, cur.deposited)
	assert.Equal(t, after.burned, cur.burned)
	assert.Equal(t, fixedpoint.Sub(after.current, principal), cur.current)

	principal = f.position(t, b).Principal
	_, err = f.ledger.WithdrawDepositEmergency(f.ctx, b)
	require.NoError(t, err)
	last := f.totals(t)
	assert.Equal(t, cur.deposited, last.deposited)
	assert.Equal(t, cur.burned, last.burned)
	assert.Equal(t, fixedpoint.Sub(cur.current, principal).String(), last.current.String())
}

func TestCompound_RaisesTotalDeposited(t *testing.T) {
	f := newFixture(t)
	a := f.depositor(t, 100, 10)
	f.heights.Advance(30)

	before := f.totals(t)
	compounded, err := f.ledger.Compound(f.ctx, a, nil, false)
	require.NoError(t, err)
	require.True(t, compounded.Sign() > 0)

	after := f.totals(t)
	assert.Equal(t, fixedpoint.Add(before.deposited, compounded), after.deposited)
	assert.Equal(t, fixedpoint.Add(before.current, compounded), after.current)
	assert.Equal(t, before.burned, after.burned)
}

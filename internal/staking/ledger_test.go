package staking

import (
	"context"
	"math/big"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"time-ledger/internal/chain"
	"time-ledger/internal/domain"
	"time-ledger/internal/exchange"
	"time-ledger/internal/fixedpoint"
	"time-ledger/internal/observability"
	"time-ledger/internal/storage/memory"
)

func TestGenesis(t *testing.T) {
	f := newFixture(t)

	first, err := f.ledger.FirstHeight(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(genesisHeight), first)
	assert.Equal(t, DefaultOneYear, f.ledger.OneYear())

	f.heights.Advance(10)
	require.NoError(t, f.ledger.Genesis(f.ctx))
	first, err = f.ledger.FirstHeight(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(genesisHeight), first)
}

func TestNotInitialized(t *testing.T) {
	c := chain.New(chain.NewManualHeight(1), chain.WithMetrics(observability.NewMetricsWith(prometheus.NewRegistry(), "test")))
	exAddr, err := domain.DeriveContractAddress("exchange")
	require.NoError(t, err)
	ex, err := exchange.New(c, exchange.DefaultParams(exAddr, newUser(t)))
	require.NoError(t, err)
	ledgerAddr, err := domain.DeriveContractAddress("staking")
	require.NoError(t, err)
	l, err := New(c, ex, DefaultParams(ledgerAddr, newUser(t)))
	require.NoError(t, err)

	_, err = l.AvailableNative(context.Background())
	assert.ErrorIs(t, err, ErrNotInitialized)
	_, err = l.WithdrawEarnings(context.Background(), newUser(t))
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestNew_AddressCollision(t *testing.T) {
	c := chain.New(chain.NewManualHeight(1), chain.WithMetrics(observability.NewMetricsWith(prometheus.NewRegistry(), "test")))
	exAddr, err := domain.DeriveContractAddress("exchange")
	require.NoError(t, err)
	ex, err := exchange.New(c, exchange.DefaultParams(exAddr, newUser(t)))
	require.NoError(t, err)

	_, err = New(c, ex, DefaultParams(exAddr, newUser(t)))
	assert.Error(t, err)
}

func TestParams_Validate(t *testing.T) {
	address, err := domain.DeriveContractAddress("staking")
	require.NoError(t, err)
	developer := newUser(t)

	tests := []struct {
		name   string
		mutate func(p *Params)
	}{
		{"missing address", func(p *Params) { p.Address = domain.ZeroAddress }},
		{"missing recipient", func(p *Params) { p.FeeRecipient = domain.ZeroAddress }},
		{"recipient is ledger", func(p *Params) { p.FeeRecipient = p.Address }},
		{"zero year", func(p *Params) { p.OneYear = 0 }},
		{"zero multiplier", func(p *Params) { p.AnticipationFeeMultiplier = 0 }},
		{"commission above deposit fee", func(p *Params) { p.Commission = fixedpoint.NewFraction(1, 10) }},
		{"deposit fee of one", func(p *Params) {
			p.DepositFee = fixedpoint.NewFraction(1, 1)
		}},
		{"burn share above one", func(p *Params) { p.DepositBurnShare = fixedpoint.NewFraction(3, 2) }},
		{"unset token share", func(p *Params) { p.AnticipationTokenShare = fixedpoint.Fraction{} }},
	}

	require.NoError(t, DefaultParams(address, developer).Validate())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := DefaultParams(address, developer)
			tt.mutate(&p)
			assert.Error(t, p.Validate())
		})
	}
}

func TestReceiveNative_CreditsAvailable(t *testing.T) {
	f := newFixture(t)
	sender := f.funded(t, 10)

	before := f.available(t)
	require.NoError(t, f.chain.SendNative(f.ctx, sender, f.ledger.Address(), fixedpoint.Tokens(3)))

	assert.Equal(t, fixedpoint.Add(before, fixedpoint.Tokens(3)), f.available(t))
	f.requireSolvent(t)
}

func TestRestoreFromStateStore(t *testing.T) {
	states := memory.NewStateStore()
	f := newFixture(t, chain.WithStateStore(states))
	a := f.depositor(t, 40, 10)
	want := f.position(t, a)

	// A fresh process over the same store sees the same ledger.
	metrics := observability.NewMetricsWith(prometheus.NewRegistry(), "test")
	c := chain.New(f.heights, chain.WithStateStore(states), chain.WithMetrics(metrics))
	ex, err := exchange.New(c, f.exchange.Params(), exchange.WithMetrics(metrics))
	require.NoError(t, err)
	l, err := New(c, ex, f.ledger.Params(), WithMetrics(metrics))
	require.NoError(t, err)
	require.NoError(t, c.Restore(f.ctx))

	got, err := l.Position(f.ctx, a)
	require.NoError(t, err)
	assert.Equal(t, want.Principal, got.Principal)
	assert.Equal(t, want.LockedToken, got.LockedToken)
	assert.Equal(t, want.LastHeight, got.LastHeight)

	available, err := l.AvailableNative(f.ctx)
	require.NoError(t, err)
	assert.Equal(t, f.available(t), available)
}

func TestPositions(t *testing.T) {
	f := newFixture(t)
	a := f.depositor(t, 10, 5)
	b := f.depositor(t, 20, 5)

	positions, err := f.ledger.Positions(f.ctx)
	require.NoError(t, err)
	require.Len(t, positions, 2)

	seen := map[domain.Address]*big.Int{}
	for _, p := range positions {
		seen[p.Address] = p.LockedToken
	}
	assert.Equal(t, fixedpoint.Tokens(10), seen[a])
	assert.Equal(t, fixedpoint.Tokens(20), seen[b])
}

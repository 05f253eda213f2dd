package staking

import (
	"context"
	"crypto/ed25519"
	"math/big"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"time-ledger/internal/chain"
	"time-ledger/internal/domain"
	"time-ledger/internal/exchange"
	"time-ledger/internal/fixedpoint"
	"time-ledger/internal/observability"
)

const genesisHeight = 5000

type fixture struct {
	ctx       context.Context
	chain     *chain.Chain
	heights   *chain.ManualHeight
	exchange  *exchange.Engine
	ledger    *Ledger
	developer domain.Address
}

func newUser(t *testing.T) domain.Address {
	t.Helper()
	pub, _, err := ed25519.GenerateKey(nil)
	require.NoError(t, err)
	a, err := domain.AddressFromPublicKey(pub)
	require.NoError(t, err)
	return a
}

func newFixture(t *testing.T, opts ...chain.Option) *fixture {
	t.Helper()

	metrics := observability.NewMetricsWith(prometheus.NewRegistry(), "test")
	heights := chain.NewManualHeight(genesisHeight)
	c := chain.New(heights, append([]chain.Option{chain.WithMetrics(metrics)}, opts...)...)
	developer := newUser(t)

	exAddr, err := domain.DeriveContractAddress("exchange")
	require.NoError(t, err)
	ex, err := exchange.New(c, exchange.DefaultParams(exAddr, developer), exchange.WithMetrics(metrics))
	require.NoError(t, err)

	ledgerAddr, err := domain.DeriveContractAddress("staking")
	require.NoError(t, err)
	ledger, err := New(c, ex, DefaultParams(ledgerAddr, developer), WithMetrics(metrics))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, ex.Genesis(ctx))
	require.NoError(t, ledger.Genesis(ctx))

	return &fixture{ctx: ctx, chain: c, heights: heights, exchange: ex, ledger: ledger, developer: developer}
}

// funded returns a new user holding native whole units.
func (f *fixture) funded(t *testing.T, native int64) domain.Address {
	t.Helper()
	a := newUser(t)
	require.NoError(t, f.chain.Fund(f.ctx, a, fixedpoint.Tokens(native)))
	return a
}

// miner enrolls a funded user, mines blocks tokens and approves the ledger
// for all of them.
func (f *fixture) miner(t *testing.T, blocks uint64) domain.Address {
	t.Helper()
	a := f.funded(t, 1000)
	fee, err := f.exchange.Fee(f.ctx)
	require.NoError(t, err)
	require.NoError(t, f.exchange.EnableMining(f.ctx, a, fee))
	f.heights.Advance(blocks)
	_, err = f.exchange.Mine(f.ctx, a)
	require.NoError(t, err)
	f.approveAll(t, a)
	return a
}

func (f *fixture) approveAll(t *testing.T, a domain.Address) {
	t.Helper()
	require.NoError(t, f.exchange.Approve(f.ctx, a, f.ledger.Address(), f.tokens(t, a)))
}

func (f *fixture) tokens(t *testing.T, a domain.Address) *big.Int {
	t.Helper()
	b, err := f.exchange.BalanceOf(f.ctx, a)
	require.NoError(t, err)
	return b
}

func (f *fixture) native(a domain.Address) *big.Int {
	return f.chain.NativeBalance(a)
}

func (f *fixture) available(t *testing.T) *big.Int {
	t.Helper()
	v, err := f.ledger.AvailableNative(f.ctx)
	require.NoError(t, err)
	return v
}

func (f *fixture) deposited(t *testing.T) *big.Int {
	t.Helper()
	v, err := f.ledger.CurrentDepositedNative(f.ctx)
	require.NoError(t, err)
	return v
}

func (f *fixture) position(t *testing.T, a domain.Address) Position {
	t.Helper()
	p, err := f.ledger.Position(f.ctx, a)
	require.NoError(t, err)
	return p
}

func (f *fixture) enableAnticipation(t *testing.T, a domain.Address) {
	t.Helper()
	fee, err := f.ledger.AnticipationFee(f.ctx)
	require.NoError(t, err)
	require.NoError(t, f.ledger.EnableAnticipation(f.ctx, a, fee))
}

// depositor mines tokens and deposits all of them with native whole units.
func (f *fixture) depositor(t *testing.T, blocks uint64, native int64) domain.Address {
	t.Helper()
	a := f.miner(t, blocks)
	require.NoError(t, f.ledger.Deposit(f.ctx, a, f.tokens(t, a), false, fixedpoint.Tokens(native)))
	return a
}

// requireSolvent checks the ledger can cover principal and the available pool.
func (f *fixture) requireSolvent(t *testing.T) {
	t.Helper()
	owed := fixedpoint.Add(f.available(t), f.deposited(t))
	balance := f.native(f.ledger.Address())
	require.LessOrEqual(t, owed.Cmp(balance), 0, "available+deposited %s > balance %s", owed, balance)
}

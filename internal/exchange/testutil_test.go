package exchange

import (
	"context"
	"crypto/ed25519"
	"math/big"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"time-ledger/internal/chain"
	"time-ledger/internal/domain"
	"time-ledger/internal/fixedpoint"
	"time-ledger/internal/observability"
)

const genesisHeight = 1000

type fixture struct {
	ctx       context.Context
	chain     *chain.Chain
	heights   *chain.ManualHeight
	engine    *Engine
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

	address, err := domain.DeriveContractAddress("exchange")
	require.NoError(t, err)
	developer := newUser(t)

	engine, err := New(c, DefaultParams(address, developer), WithMetrics(metrics))
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, engine.Genesis(ctx))

	return &fixture{ctx: ctx, chain: c, heights: heights, engine: engine, developer: developer}
}

// funded returns a new user holding native whole units.
func (f *fixture) funded(t *testing.T, native int64) domain.Address {
	t.Helper()
	a := newUser(t)
	require.NoError(t, f.chain.Fund(f.ctx, a, fixedpoint.Tokens(native)))
	return a
}

// miner enrolls a funded user and mines after blocks heights.
func (f *fixture) miner(t *testing.T, blocks uint64) domain.Address {
	t.Helper()
	a := f.funded(t, 100)
	f.enroll(t, a)
	f.heights.Advance(blocks)
	_, err := f.engine.Mine(f.ctx, a)
	require.NoError(t, err)
	return a
}

func (f *fixture) enroll(t *testing.T, a domain.Address) {
	t.Helper()
	fee, err := f.engine.Fee(f.ctx)
	require.NoError(t, err)
	require.NoError(t, f.engine.EnableMining(f.ctx, a, fee))
}

func (f *fixture) tokens(t *testing.T, a domain.Address) *big.Int {
	t.Helper()
	b, err := f.engine.BalanceOf(f.ctx, a)
	require.NoError(t, err)
	return b
}

func (f *fixture) share(t *testing.T, a domain.Address) *big.Int {
	t.Helper()
	s, err := f.engine.WithdrawableShareBalance(f.ctx, a)
	require.NoError(t, err)
	return s
}

// requireInvariants checks supply conservation and the reserve bound.
func (f *fixture) requireInvariants(t *testing.T) {
	t.Helper()

	supply, err := f.engine.TotalSupply(f.ctx)
	require.NoError(t, err)
	sum, err := f.engine.SumBalances(f.ctx)
	require.NoError(t, err)
	require.Equal(t, 0, supply.Cmp(sum), "totalSupply %s != sum(balances) %s", supply, sum)

	pool, err := f.engine.PoolBalance(f.ctx)
	require.NoError(t, err)
	shared, err := f.engine.SharedBalance(f.ctx)
	require.NoError(t, err)
	native := f.chain.NativeBalance(f.engine.Address())
	require.LessOrEqual(t, fixedpoint.Add(pool, shared).Cmp(native), 0, "pool %s + shared %s > balance %s", pool, shared, native)
}

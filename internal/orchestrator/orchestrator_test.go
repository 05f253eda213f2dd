package orchestrator

import (
	"context"
	"encoding/json"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"time-ledger/internal/chain"
	"time-ledger/internal/config"
	"time-ledger/internal/domain"
	"time-ledger/internal/fixedpoint"
	"time-ledger/internal/storage/memory"
)

func manualConfig() config.Config {
	cfg := config.Default()
	cfg.Height.Source = config.HeightManual
	cfg.Height.Start = 100
	return cfg
}

func TestBuild_MemoryLedger(t *testing.T) {
	ctx := context.Background()

	node, err := Build(ctx, Options{Config: manualConfig()})
	require.NoError(t, err)
	defer node.Close()

	first, err := node.Exchange.FirstHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), first)
	stFirst, err := node.Staking.FirstHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), stFirst)

	supply, err := node.Exchange.TotalSupply(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, supply.Cmp(fixedpoint.Tokens(900_000)))

	want, err := domain.DeriveContractAddress(FeeRecipientSeed)
	require.NoError(t, err)
	assert.Equal(t, want, node.Exchange.FeeRecipient())
	assert.Equal(t, want, node.Staking.Params().FeeRecipient)
}

func TestBuild_RestoresFromStores(t *testing.T) {
	ctx := context.Background()
	states := memory.NewStateStore()
	events := memory.NewEventStore()
	heights := chain.NewManualHeight(100)

	opts := Options{Config: manualConfig(), StateStore: states, EventStore: events, Heights: heights}
	node, err := Build(ctx, opts)
	require.NoError(t, err)

	user, err := domain.DeriveContractAddress("restored-user")
	require.NoError(t, err)
	require.NoError(t, node.Chain.Fund(ctx, user, fixedpoint.Tokens(5)))
	fee, err := node.Exchange.Fee(ctx)
	require.NoError(t, err)
	require.NoError(t, node.Exchange.EnableMining(ctx, user, fee))
	heights.Advance(10)
	mined, err := node.Exchange.Mine(ctx, user)
	require.NoError(t, err)
	require.NoError(t, node.Close())

	heights.Advance(5)
	again, err := Build(ctx, opts)
	require.NoError(t, err)
	defer again.Close()

	bal, err := again.Exchange.BalanceOf(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 0, mined.Cmp(bal))

	allowed, err := again.Exchange.IsMiningAllowed(ctx, user)
	require.NoError(t, err)
	assert.True(t, allowed)

	first, err := again.Exchange.FirstHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), first, "genesis must not run twice")
}

func TestContractParams(t *testing.T) {
	cfg := config.Default()
	cfg.Staking.AnticipationFeeMultiplier = 3

	ex, st, err := ContractParams(cfg)
	require.NoError(t, err)
	require.NoError(t, ex.Validate())
	require.NoError(t, st.Validate())

	assert.NotEqual(t, ex.Address, st.Address)
	assert.Equal(t, 0, ex.BaseFee.Cmp(new(big.Int).Div(fixedpoint.Unit, big.NewInt(100))))
	assert.Equal(t, uint64(3), st.AnticipationFeeMultiplier)

	recipient, err := domain.DeriveContractAddress("someone")
	require.NoError(t, err)
	cfg.Exchange.FeeRecipient = recipient.String()
	ex, _, err = ContractParams(cfg)
	require.NoError(t, err)
	assert.Equal(t, recipient, ex.FeeRecipient)

	cfg.Exchange.FeeRecipient = "not-base58-0OIl"
	_, _, err = ContractParams(cfg)
	assert.Error(t, err)
}

func TestBuild_SolanaHeights(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID uint64 `json:"id"`
		}
		json.NewDecoder(r.Body).Decode(&req)
		json.NewEncoder(w).Encode(map[string]interface{}{"jsonrpc": "2.0", "id": req.ID, "result": 777})
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Height.Source = config.HeightSolana
	cfg.Height.RPCEndpoint = server.URL

	ctx := context.Background()
	node, err := Build(ctx, Options{Config: cfg})
	require.NoError(t, err)
	defer node.Close()

	first, err := node.Staking.FirstHeight(ctx)
	require.NoError(t, err)
	assert.Equal(t, uint64(777), first)
}

func TestNode_RunWithoutBackgroundWork(t *testing.T) {
	node, err := Build(context.Background(), Options{Config: manualConfig()})
	require.NoError(t, err)
	defer node.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.NoError(t, node.Run(ctx))
}

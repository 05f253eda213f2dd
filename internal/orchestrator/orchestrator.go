// Package orchestrator assembles a running ledger from configuration.
// It coordinates: storage → height source → chain → exchange → staking
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"time-ledger/internal/chain"
	"time-ledger/internal/config"
	"time-ledger/internal/domain"
	"time-ledger/internal/exchange"
	"time-ledger/internal/fixedpoint"
	"time-ledger/internal/observability"
	"time-ledger/internal/solana"
	"time-ledger/internal/staking"
	"time-ledger/internal/storage"
	chstore "time-ledger/internal/storage/clickhouse"
	"time-ledger/internal/storage/memory"
	"time-ledger/internal/storage/migrations"
	"time-ledger/internal/storage/postgres"
)

// Contract address seeds. Addresses are derived off-curve from these.
const (
	ExchangeSeed     = "exchange"
	StakingSeed      = "staking"
	FeeRecipientSeed = "developer"
)

// Options for building a Node. Stores and heights set here take precedence
// over the backends named in Config.
type Options struct {
	Config config.Config

	StateStore storage.StateStore
	EventStore storage.EventStore
	Heights    chain.HeightSource

	Logger  *logrus.Entry
	Metrics *observability.Metrics
	Clock   func() time.Time
}

// Node is an assembled ledger: the chain plus both contracts.
type Node struct {
	Chain    *chain.Chain
	Exchange *exchange.Engine
	Staking  *staking.Ledger

	Heights chain.HeightSource
	States  storage.StateStore
	Events  storage.EventStore

	log        *logrus.Entry
	background []func(ctx context.Context) error
	closers    []func() error
}

// Build creates the stores, the height source and both contracts, restores
// persisted state and runs genesis on a fresh ledger.
func Build(ctx context.Context, opts Options) (n *Node, err error) {
	cfg := opts.Config
	log := opts.Logger
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	metrics := opts.Metrics
	if metrics == nil {
		metrics = observability.DefaultMetrics
	}
	now := opts.Clock
	if now == nil {
		now = time.Now
	}

	n = &Node{log: log.WithField("component", "orchestrator")}
	defer func() {
		if err != nil {
			n.Close()
			n = nil
		}
	}()

	// Phase 1: storage
	if err := n.openStores(ctx, cfg.Storage, opts); err != nil {
		return nil, fmt.Errorf("phase 1 (storage) failed: %w", err)
	}

	// Phase 2: heights
	if err := n.openHeights(ctx, cfg.Height, opts.Heights, now, log); err != nil {
		return nil, fmt.Errorf("phase 2 (height source) failed: %w", err)
	}

	// Phase 3: contracts
	n.Chain = chain.New(n.Heights,
		chain.WithStateStore(n.States),
		chain.WithEventStore(n.Events),
		chain.WithMetrics(metrics),
		chain.WithLogger(log),
		chain.WithClock(now),
	)

	exParams, stParams, err := ContractParams(cfg)
	if err != nil {
		return nil, fmt.Errorf("phase 3 (params) failed: %w", err)
	}
	n.Exchange, err = exchange.New(n.Chain, exParams, exchange.WithLogger(log), exchange.WithMetrics(metrics))
	if err != nil {
		return nil, fmt.Errorf("phase 3 (exchange) failed: %w", err)
	}
	n.Staking, err = staking.New(n.Chain, n.Exchange, stParams, staking.WithLogger(log), staking.WithMetrics(metrics))
	if err != nil {
		return nil, fmt.Errorf("phase 3 (staking) failed: %w", err)
	}

	// Phase 4: restore and genesis
	if err := n.Chain.Restore(ctx); err != nil {
		return nil, fmt.Errorf("phase 4 (restore) failed: %w", err)
	}
	if err := n.Exchange.Genesis(ctx); err != nil {
		return nil, fmt.Errorf("phase 4 (exchange genesis) failed: %w", err)
	}
	if err := n.Staking.Genesis(ctx); err != nil {
		return nil, fmt.Errorf("phase 4 (staking genesis) failed: %w", err)
	}

	n.log.WithFields(logrus.Fields{
		"exchange": exParams.Address.String(),
		"staking":  stParams.Address.String(),
		"height":   n.Chain.LastHeight(),
	}).Info("ledger ready")
	return n, nil
}

// ContractParams converts the configured constants into contract parameters.
func ContractParams(cfg config.Config) (exchange.Params, staking.Params, error) {
	exAddr, err := domain.DeriveContractAddress(ExchangeSeed)
	if err != nil {
		return exchange.Params{}, staking.Params{}, err
	}
	stAddr, err := domain.DeriveContractAddress(StakingSeed)
	if err != nil {
		return exchange.Params{}, staking.Params{}, err
	}

	recipient, err := feeRecipient(cfg.Exchange.FeeRecipient)
	if err != nil {
		return exchange.Params{}, staking.Params{}, err
	}

	ex := exchange.Params{
		Address:         exAddr,
		FeeRecipient:    recipient,
		BaseFee:         fixedpoint.FromDecimal(cfg.Exchange.BaseFee),
		TokenBaseFee:    fixedpoint.FromDecimal(cfg.Exchange.TokenBaseFee),
		BaseLiquidity:   fixedpoint.FromDecimal(cfg.Exchange.BaseLiquidity),
		DeveloperFee:    cfg.Exchange.DeveloperFee,
		DividendFee:     cfg.Exchange.DividendFee,
		EnrollmentShare: cfg.Exchange.EnrollmentShare,
		DonationShare:   cfg.Exchange.DonationShare,
	}
	st := staking.Params{
		Address:                   stAddr,
		FeeRecipient:              recipient,
		OneYear:                   cfg.Staking.OneYear,
		DepositFee:                cfg.Staking.DepositFee,
		Commission:                cfg.Staking.Commission,
		DepositBurnShare:          cfg.Staking.DepositBurnShare,
		AnticipationTokenShare:    cfg.Staking.AnticipationTokenShare,
		AnticipationFeeMultiplier: cfg.Staking.AnticipationFeeMultiplier,
	}
	return ex, st, nil
}

func feeRecipient(configured string) (domain.Address, error) {
	if configured == "" {
		return domain.DeriveContractAddress(FeeRecipientSeed)
	}
	a, err := domain.ParseAddress(configured)
	if err != nil {
		return domain.ZeroAddress, fmt.Errorf("fee recipient: %w", err)
	}
	return a, nil
}

func (n *Node) openStores(ctx context.Context, cfg config.StorageConfig, opts Options) error {
	n.States, n.Events = opts.StateStore, opts.EventStore

	switch cfg.Backend {
	case config.BackendPostgres:
		if n.States != nil && n.Events != nil {
			break
		}
		pool, err := postgres.NewPool(ctx, cfg.PostgresDSN)
		if err != nil {
			return err
		}
		n.closers = append(n.closers, func() error { pool.Close(); return nil })

		applied, err := migrations.RunPostgresMigrations(ctx, pool)
		if err != nil {
			return err
		}
		n.log.WithField("files", applied).Info("postgres migrations applied")

		if n.States == nil {
			n.States = postgres.NewStateStore(pool)
		}
		if n.Events == nil {
			n.Events = postgres.NewEventStore(pool)
		}
	default:
		if n.States == nil {
			n.States = memory.NewStateStore()
		}
		if n.Events == nil {
			n.Events = memory.NewEventStore()
		}
	}

	if cfg.ClickhouseDSN != "" {
		conn, err := migrations.RunClickhouseMigrations(ctx, cfg.ClickhouseDSN)
		if err != nil {
			return err
		}
		n.closers = append(n.closers, conn.Close)
		n.Events = storage.NewMirroredEventStore(n.Events, chstore.NewEventStore(conn))
		n.log.Info("mirroring events to clickhouse")
	}
	return nil
}

func (n *Node) openHeights(ctx context.Context, cfg config.HeightConfig, given chain.HeightSource, now func() time.Time, log *logrus.Entry) error {
	if given != nil {
		n.Heights = given
		return nil
	}

	switch cfg.Source {
	case config.HeightManual:
		n.Heights = chain.NewManualHeight(cfg.Start)
	case config.HeightSolana:
		slots := solana.NewSlotHeight(solana.NewHTTPClient(cfg.RPCEndpoint), solana.CommitmentConfirmed)
		if cfg.WSEndpoint == "" {
			n.Heights = slots
			break
		}
		wsCfg := solana.DefaultWSConfig()
		wsCfg.Logger = log
		ws, err := solana.NewWSClient(ctx, cfg.WSEndpoint, &wsCfg)
		if err != nil {
			return err
		}
		n.closers = append(n.closers, ws.Close)
		watcher := solana.NewSlotWatcher(ws, slots, log, solana.WithIdleTimeout(cfg.IdleTimeout.Duration))
		n.Heights = watcher
		n.background = append(n.background, watcher.Run)
	default:
		n.Heights = chain.NewClockHeight(now(), cfg.Interval.Duration, cfg.Start)
	}
	return nil
}

// Run executes background work (the slot watcher) until ctx is done.
func (n *Node) Run(ctx context.Context) error {
	if len(n.background) == 0 {
		<-ctx.Done()
		return nil
	}

	errs := make(chan error, len(n.background))
	for _, fn := range n.background {
		go func(fn func(context.Context) error) { errs <- fn(ctx) }(fn)
	}

	var result []error
	for range n.background {
		if err := <-errs; err != nil && !errors.Is(err, context.Canceled) {
			result = append(result, err)
		}
	}
	return errors.Join(result...)
}

// Close releases connections in reverse order of opening.
func (n *Node) Close() error {
	var errs []error
	for i := len(n.closers) - 1; i >= 0; i-- {
		if err := n.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	n.closers = nil
	return errors.Join(errs...)
}

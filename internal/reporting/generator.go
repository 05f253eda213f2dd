package reporting

import (
	"context"
	"math/big"
	"sort"
	"time"

	"github.com/samber/lo"

	"time-ledger/internal/domain"
	"time-ledger/internal/fixedpoint"
	"time-ledger/internal/staking"
	"time-ledger/internal/storage"
)

// ExchangeReader is the read side of the exchange used by reports.
type ExchangeReader interface {
	TotalSupply(ctx context.Context) (*big.Int, error)
	TotalMined(ctx context.Context) (*big.Int, error)
	AverageMiningRate(ctx context.Context) (*big.Int, error)
	PoolBalance(ctx context.Context) (*big.Int, error)
	SharedBalance(ctx context.Context) (*big.Int, error)
	Fee(ctx context.Context) (*big.Int, error)
	FeeInToken(ctx context.Context) (*big.Int, error)
}

// StakingReader is the read side of the staking ledger used by reports.
type StakingReader interface {
	AvailableNative(ctx context.Context) (*big.Int, error)
	CurrentDepositedNative(ctx context.Context) (*big.Int, error)
	TotalDepositedNative(ctx context.Context) (*big.Int, error)
	TotalBurnedToken(ctx context.Context) (*big.Int, error)
	CurrentROI(ctx context.Context) (*big.Int, error)
	Positions(ctx context.Context) ([]staking.Position, error)
}

// HeightReader reports the height of the latest committed operation.
type HeightReader interface {
	LastHeight() uint64
}

// Generator produces reports from the live contracts and the event journal.
type Generator struct {
	exchange ExchangeReader
	staking  StakingReader
	heights  HeightReader
	events   storage.EventStore
	now      func() time.Time // Injectable clock for deterministic output
}

// NewGenerator creates a new report generator.
func NewGenerator(ex ExchangeReader, st StakingReader, heights HeightReader, events storage.EventStore) *Generator {
	return &Generator{
		exchange: ex,
		staking:  st,
		heights:  heights,
		events:   events,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// WithClock sets a custom clock function for deterministic output.
func (g *Generator) WithClock(now func() time.Time) *Generator {
	g.now = now
	return g
}

// Generate produces a complete report.
func (g *Generator) Generate(ctx context.Context) (*Report, error) {
	supply, err := g.generateSupply(ctx)
	if err != nil {
		return nil, err
	}

	summary, positions, err := g.generateStaking(ctx)
	if err != nil {
		return nil, err
	}

	counts, err := g.generateEventCounts(ctx)
	if err != nil {
		return nil, err
	}

	return &Report{
		GeneratedAt: g.now(),
		Height:      g.heights.LastHeight(),
		Supply:      *supply,
		Staking:     *summary,
		Positions:   positions,
		EventCounts: counts,
	}, nil
}

// generateSupply reads the exchange totals.
func (g *Generator) generateSupply(ctx context.Context) (*SupplySummary, error) {
	var s SupplySummary
	reads := []struct {
		dst  **big.Int
		read func(context.Context) (*big.Int, error)
	}{
		{&s.TotalSupply, g.exchange.TotalSupply},
		{&s.TotalMined, g.exchange.TotalMined},
		{&s.AverageMiningRate, g.exchange.AverageMiningRate},
		{&s.PoolBalance, g.exchange.PoolBalance},
		{&s.SharedBalance, g.exchange.SharedBalance},
		{&s.EnrollmentFee, g.exchange.Fee},
		{&s.TokenFee, g.exchange.FeeInToken},
	}
	for _, r := range reads {
		v, err := r.read(ctx)
		if err != nil {
			return nil, err
		}
		*r.dst = v
	}
	return &s, nil
}

// generateStaking reads the staking totals and open positions.
func (g *Generator) generateStaking(ctx context.Context) (*StakingSummary, []PositionRow, error) {
	var s StakingSummary
	reads := []struct {
		dst  **big.Int
		read func(context.Context) (*big.Int, error)
	}{
		{&s.AvailableNative, g.staking.AvailableNative},
		{&s.CurrentDepositedNative, g.staking.CurrentDepositedNative},
		{&s.TotalDepositedNative, g.staking.TotalDepositedNative},
		{&s.TotalBurnedToken, g.staking.TotalBurnedToken},
		{&s.CurrentROI, g.staking.CurrentROI},
	}
	for _, r := range reads {
		v, err := r.read(ctx)
		if err != nil {
			return nil, nil, err
		}
		*r.dst = v
	}

	positions, err := g.staking.Positions(ctx)
	if err != nil {
		return nil, nil, err
	}
	open := lo.Filter(positions, func(p staking.Position, _ int) bool {
		return fixedpoint.IsPositive(p.Principal)
	})
	s.Depositors = len(open)
	s.AnticipationEnabled = lo.CountBy(open, func(p staking.Position) bool {
		return p.AnticipationEnabled
	})

	sort.SliceStable(open, func(i, j int) bool {
		if c := open[i].Principal.Cmp(open[j].Principal); c != 0 {
			return c > 0
		}
		return open[i].Address.String() < open[j].Address.String()
	})
	return &s, lo.Map(open, toPositionRow), nil
}

// generateEventCounts counts journal events by contract and kind.
func (g *Generator) generateEventCounts(ctx context.Context) ([]EventCountRow, error) {
	if g.events == nil {
		return nil, nil
	}
	events, err := g.events.List(ctx, storage.EventFilter{})
	if err != nil {
		return nil, err
	}

	type key struct {
		contract string
		kind     domain.EventKind
	}
	counts := lo.CountValuesBy(events, func(e domain.Event) key {
		return key{e.Contract, e.Kind}
	})

	rows := lo.MapToSlice(counts, func(k key, n int) EventCountRow {
		return EventCountRow{Contract: k.contract, Kind: k.kind, Count: n}
	})
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Contract != rows[j].Contract {
			return rows[i].Contract < rows[j].Contract
		}
		return rows[i].Kind < rows[j].Kind
	})
	return rows, nil
}

func toPositionRow(p staking.Position, _ int) PositionRow {
	return PositionRow{
		Address:      p.Address,
		Principal:    fixedpoint.Format(p.Principal),
		LockedToken:  fixedpoint.Format(p.LockedToken),
		LastHeight:   p.LastHeight,
		Anticipation: p.AnticipationEnabled,
		Earnings:     fixedpoint.Format(p.Earnings),
	}
}

package reporting

import (
	"math/big"
	"time"

	"time-ledger/internal/domain"
)

// Report is a snapshot of the ledger.
type Report struct {
	// Metadata
	GeneratedAt time.Time
	Height      uint64

	Supply  SupplySummary
	Staking StakingSummary

	// Positions sorted by principal, largest first
	Positions []PositionRow

	// Event counts sorted by contract then kind
	EventCounts []EventCountRow
}

// SupplySummary describes the token and its exchange reserves.
type SupplySummary struct {
	TotalSupply       *big.Int
	TotalMined        *big.Int
	AverageMiningRate *big.Int
	PoolBalance       *big.Int
	SharedBalance     *big.Int
	EnrollmentFee     *big.Int // native
	TokenFee          *big.Int // token
}

// StakingSummary describes the staking ledger totals.
type StakingSummary struct {
	AvailableNative        *big.Int
	CurrentDepositedNative *big.Int
	TotalDepositedNative   *big.Int
	TotalBurnedToken       *big.Int
	CurrentROI             *big.Int // 1e18 = 100%
	Depositors             int
	AnticipationEnabled    int
}

// PositionRow is one depositor in the report.
type PositionRow struct {
	Address      domain.Address `csv:"address"`
	Principal    string         `csv:"principal"`
	LockedToken  string         `csv:"locked_token"`
	LastHeight   uint64         `csv:"last_height"`
	Anticipation bool           `csv:"anticipation"`
	Earnings     string         `csv:"earnings"`
}

// EventCountRow counts events of one kind.
type EventCountRow struct {
	Contract string
	Kind     domain.EventKind
	Count    int
}

package reporting

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"time-ledger/internal/fixedpoint"
)

// RenderMarkdown renders report as Markdown string.
func RenderMarkdown(r *Report) string {
	var sb strings.Builder

	// Header
	sb.WriteString("# Ledger Report\n\n")
	sb.WriteString(fmt.Sprintf("Generated: %s\n\n", r.GeneratedAt.Format(time.RFC3339)))
	sb.WriteString(fmt.Sprintf("Height: %d\n\n", r.Height))

	// Token supply
	sb.WriteString("## Token Supply\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Total Supply | %s |\n", units(r.Supply.TotalSupply)))
	sb.WriteString(fmt.Sprintf("| Total Mined | %s |\n", units(r.Supply.TotalMined)))
	sb.WriteString(fmt.Sprintf("| Average Mining Rate | %s |\n", units(r.Supply.AverageMiningRate)))
	sb.WriteString(fmt.Sprintf("| Pool Balance (native) | %s |\n", units(r.Supply.PoolBalance)))
	sb.WriteString(fmt.Sprintf("| Shared Balance (native) | %s |\n", units(r.Supply.SharedBalance)))
	sb.WriteString(fmt.Sprintf("| Enrollment Fee (native) | %s |\n", units(r.Supply.EnrollmentFee)))
	sb.WriteString(fmt.Sprintf("| Enrollment Fee (token) | %s |\n", units(r.Supply.TokenFee)))
	sb.WriteString("\n")

	// Staking
	sb.WriteString("## Staking\n\n")
	sb.WriteString("| Metric | Value |\n")
	sb.WriteString("|--------|-------|\n")
	sb.WriteString(fmt.Sprintf("| Available (native) | %s |\n", units(r.Staking.AvailableNative)))
	sb.WriteString(fmt.Sprintf("| Currently Deposited (native) | %s |\n", units(r.Staking.CurrentDepositedNative)))
	sb.WriteString(fmt.Sprintf("| Total Deposited (native) | %s |\n", units(r.Staking.TotalDepositedNative)))
	sb.WriteString(fmt.Sprintf("| Total Burned (token) | %s |\n", units(r.Staking.TotalBurnedToken)))
	sb.WriteString(fmt.Sprintf("| Current ROI | %s%% |\n", percent(r.Staking.CurrentROI)))
	sb.WriteString(fmt.Sprintf("| Depositors | %d |\n", r.Staking.Depositors))
	sb.WriteString(fmt.Sprintf("| Anticipation Enabled | %d |\n", r.Staking.AnticipationEnabled))
	sb.WriteString("\n")

	// Positions
	sb.WriteString("## Positions\n\n")
	if len(r.Positions) > 0 {
		sb.WriteString("| Address | Principal | Locked Token | Last Height | Anticipation | Earnings |\n")
		sb.WriteString("|---------|-----------|--------------|-------------|--------------|----------|\n")
		for _, p := range r.Positions {
			sb.WriteString(fmt.Sprintf("| %s | %s | %s | %d | %t | %s |\n",
				p.Address.Short(), p.Principal, p.LockedToken, p.LastHeight, p.Anticipation, p.Earnings))
		}
	} else {
		sb.WriteString("No open positions.\n")
	}
	sb.WriteString("\n")

	// Events
	sb.WriteString("## Events\n\n")
	if len(r.EventCounts) > 0 {
		sb.WriteString("| Contract | Kind | Count |\n")
		sb.WriteString("|----------|------|-------|\n")
		for _, c := range r.EventCounts {
			sb.WriteString(fmt.Sprintf("| %s | %s | %d |\n", c.Contract, c.Kind, c.Count))
		}
	} else {
		sb.WriteString("No events recorded.\n")
	}
	sb.WriteString("\n")

	return sb.String()
}

func units(v *big.Int) string {
	if v == nil {
		return "0"
	}
	return fixedpoint.FormatFixed(v, 6)
}

// percent renders a 1e18-scaled ratio as a percentage.
func percent(ratio *big.Int) string {
	if ratio == nil {
		return "0.00"
	}
	return fixedpoint.FormatFixed(new(big.Int).Mul(ratio, big.NewInt(100)), 2)
}

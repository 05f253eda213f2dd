package staking

import (
	"context"
	"fmt"
	"math/big"

	"github.com/sirupsen/logrus"

	"time-ledger/internal/chain"
	"time-ledger/internal/domain"
	"time-ledger/internal/fixedpoint"
)

// Deposit locks tokenAmount of caller's approved tokens and payment native
// into caller's position. Pending earnings are paid out first. With
// anticipateNow the locked tokens are anticipated at once, which requires
// EnableAnticipation.
func (l *Ledger) Deposit(ctx context.Context, caller domain.Address, tokenAmount *big.Int, anticipateNow bool, payment *big.Int) error {
	return l.exec(ctx, "Deposit", caller, payment, func(tx *chain.Tx) error {
		if anticipateNow && !l.anticipation.Get(caller) {
			return ErrNotEligible
		}
		paid := tx.Value()
		if err := requirePositive(paid); err != nil {
			return err
		}
		tokens := fixedpoint.Clone(tokenAmount)
		if tokens.Sign() < 0 {
			return fmt.Errorf("%w: %s", ErrInvalidAmount, tokens)
		}

		if err := l.settle(tx, caller); err != nil {
			return err
		}
		if tokens.Sign() > 0 {
			if err := l.pullTokens(tx, caller, tokens); err != nil {
				return err
			}
		}

		withheld := l.params.DepositFee.Of(paid)
		commission := l.params.Commission.Of(paid)
		if err := tx.Pay(l.params.Address, l.params.FeeRecipient, commission); err != nil {
			return err
		}
		l.credit(tx, fixedpoint.Sub(withheld, commission))

		net := fixedpoint.Sub(paid, withheld)
		l.addPrincipal(tx, caller, net)
		l.locked.Set(tx.Journal(), caller, fixedpoint.Add(l.locked.Get(caller), tokens))
		l.lastHeight.Set(tx.Journal(), caller, tx.Height)
		l.emit(tx, domain.EventDeposit, caller, net, tokens)

		l.log.WithFields(logrus.Fields{
			"caller":    caller.Short(),
			"principal": fixedpoint.Format(net),
			"tokens":    fixedpoint.Format(tokens),
			"height":    tx.Height,
		}).Debug("deposit accepted")

		if !anticipateNow || tokens.Sign() == 0 {
			return nil
		}
		anticipated, err := l.anticipateTx(tx, caller, tokens, false)
		if err != nil {
			return err
		}
		if anticipated.Sign() == 0 {
			return nil
		}
		if err := tx.Pay(l.params.Address, caller, anticipated); err != nil {
			return err
		}
		l.emit(tx, domain.EventAnticipated, caller, anticipated, tokens)
		return nil
	})
}

// WithdrawDeposit closes caller's position, paying principal and earnings.
func (l *Ledger) WithdrawDeposit(ctx context.Context, caller domain.Address) (*big.Int, error) {
	return l.closePosition(ctx, "WithdrawDeposit", caller, true)
}

// WithdrawDepositEmergency closes caller's position, paying principal only.
// Forfeited earnings stay in the available pool.
func (l *Ledger) WithdrawDepositEmergency(ctx context.Context, caller domain.Address) (*big.Int, error) {
	return l.closePosition(ctx, "WithdrawDepositEmergency", caller, false)
}

func (l *Ledger) closePosition(ctx context.Context, method string, caller domain.Address, withEarnings bool) (*big.Int, error) {
	var paid *big.Int
	err := l.exec(ctx, method, caller, nil, func(tx *chain.Tx) error {
		principal := l.principal.Get(caller)
		if principal.Sign() == 0 {
			return ErrNoDeposit
		}

		earned := fixedpoint.Zero()
		kind := domain.EventEmergencyWithdrawn
		if withEarnings {
			var err error
			if earned, err = l.realize(tx, caller); err != nil {
				return err
			}
			kind = domain.EventDepositWithdrawn
		}

		j := tx.Journal()
		l.principal.Set(j, caller, fixedpoint.Zero())
		l.locked.Set(j, caller, fixedpoint.Zero())
		l.lastHeight.Set(j, caller, 0)
		l.currentDeposited.Set(j, fixedpoint.Sub(l.currentDeposited.Get(), principal))

		paid = fixedpoint.Add(principal, earned)
		if err := tx.Pay(l.params.Address, caller, paid); err != nil {
			return err
		}
		l.emit(tx, kind, caller, principal, earned)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return paid, nil
}

// settle pays out a's pending earnings, if any.
func (l *Ledger) settle(tx *chain.Tx, a domain.Address) error {
	earned, err := l.realize(tx, a)
	if err != nil || earned.Sign() == 0 {
		return err
	}
	if err := tx.Pay(l.params.Address, a, earned); err != nil {
		return err
	}
	l.emit(tx, domain.EventEarningsWithdrawn, a, earned, nil)
	return nil
}

// pullTokens moves amount of a's approved tokens into the ledger and burns
// the configured share of them.
func (l *Ledger) pullTokens(tx *chain.Tx, a domain.Address, amount *big.Int) error {
	if err := l.exchange.TransferFromTx(tx, l.params.Address, a, l.params.Address, amount); err != nil {
		return fmt.Errorf("pull tokens: %w", err)
	}
	burn := l.params.DepositBurnShare.Of(amount)
	if burn.Sign() == 0 {
		return nil
	}
	if err := l.exchange.BurnTx(tx, l.params.Address, burn); err != nil {
		return fmt.Errorf("burn tokens: %w", err)
	}
	l.totalBurned.Set(tx.Journal(), fixedpoint.Add(l.totalBurned.Get(), burn))
	return nil
}

package staking

import (
	"context"
	"math/big"

	"time-ledger/internal/chain"
	"time-ledger/internal/domain"
)

// Position is a snapshot of one depositor.
type Position struct {
	Address             domain.Address
	Principal           *big.Int
	LockedToken         *big.Int
	LastHeight          uint64
	AnticipationEnabled bool
	Earnings            *big.Int
}

// Position returns a's position. An address that never deposited gets a
// zero position.
func (l *Ledger) Position(ctx context.Context, a domain.Address) (Position, error) {
	return view(ctx, l, func(tx *chain.Tx) (Position, error) {
		return l.position(tx, a), nil
	})
}

// Positions returns every open position ordered by address.
func (l *Ledger) Positions(ctx context.Context) ([]Position, error) {
	return view(ctx, l, func(tx *chain.Tx) ([]Position, error) {
		var out []Position
		l.principal.Range(func(a domain.Address, _ *big.Int) bool {
			out = append(out, l.position(tx, a))
			return true
		})
		return out, nil
	})
}

func (l *Ledger) position(tx *chain.Tx, a domain.Address) Position {
	earned, _ := l.earningsAt(tx, a)
	return Position{
		Address:             a,
		Principal:           l.principal.Get(a),
		LockedToken:         l.locked.Get(a),
		LastHeight:          l.lastHeight.Get(a),
		AnticipationEnabled: l.anticipation.Get(a),
		Earnings:            earned,
	}
}

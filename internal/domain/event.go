package domain

import (
	"math/big"
	"time"

	"github.com/google/uuid"
)

// EventKind names a committed ledger effect.
type EventKind string

const (
	EventNativeTransfer EventKind = "NATIVE_TRANSFER"
	EventNativeFunded   EventKind = "NATIVE_FUNDED"

	EventTransfer            EventKind = "TRANSFER"
	EventApproval            EventKind = "APPROVAL"
	EventMiningEnabled       EventKind = "MINING_ENABLED"
	EventMined               EventKind = "MINED"
	EventTokenSpent          EventKind = "TOKEN_SPENT"
	EventTokenSaved          EventKind = "TOKEN_SAVED"
	EventDonation            EventKind = "DONATION"
	EventShareAllocated      EventKind = "SHARE_ALLOCATED"
	EventShareWithdrawn      EventKind = "SHARE_WITHDRAWN"
	EventBurn                EventKind = "BURN"
	EventDeposit             EventKind = "DEPOSIT"
	EventEarningsWithdrawn   EventKind = "EARNINGS_WITHDRAWN"
	EventAnticipationEnabled EventKind = "ANTICIPATION_ENABLED"
	EventAnticipated         EventKind = "ANTICIPATED"
	EventCompounded          EventKind = "COMPOUNDED"
	EventDepositWithdrawn    EventKind = "DEPOSIT_WITHDRAWN"
	EventEmergencyWithdrawn  EventKind = "EMERGENCY_WITHDRAWN"
	EventEarned              EventKind = "EARNED"
	EventAvailableCredited   EventKind = "AVAILABLE_CREDITED"
)

// String returns the string representation of EventKind.
func (k EventKind) String() string {
	return string(k)
}

// Event is one effect emitted by a committed operation.
// Amount is the primary quantity of the event (token or native depending on
// Kind); Value carries a secondary quantity such as the counter-asset of a swap.
type Event struct {
	ID           uuid.UUID
	Height       uint64
	Sequence     int // position within the emitting operation
	Contract     string
	Kind         EventKind
	Actor        Address
	Counterparty Address
	Amount       *big.Int
	Value        *big.Int
	Timestamp    time.Time
}

// StateChange is the committed value of one storage slot.
// Values are canonical text produced by the state codecs.
type StateChange struct {
	Namespace string
	Key       string
	Value     string
}

// SlotID returns namespace/key.
func (c StateChange) SlotID() string {
	return c.Namespace + "/" + c.Key
}

package solana

import "context"

// Commitment is the confirmation level a query is evaluated at.
type Commitment string

// Commitment levels accepted by the cluster.
const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// RPCClient defines the Solana RPC calls the ledger needs to follow a cluster.
type RPCClient interface {
	// GetSlot returns the slot reached at the given commitment.
	GetSlot(ctx context.Context, commitment Commitment) (uint64, error)

	// GetBlockHeight returns the block height reached at the given commitment.
	GetBlockHeight(ctx context.Context, commitment Commitment) (uint64, error)
}

// WSClient defines the Solana WebSocket subscription interface.
type WSClient interface {
	// SubscribeSlots streams a notification for every slot the node processes.
	SubscribeSlots(ctx context.Context) (<-chan SlotNotification, error)

	// Close closes the WebSocket connection.
	Close() error
}

// SlotNotification is one slotSubscribe message.
type SlotNotification struct {
	Slot   uint64
	Parent uint64
	Root   uint64
}

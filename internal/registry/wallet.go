package registry

import (
	"context"

	"github.com/sentinelfi/pioneerwatch/internal/models"
)

// WalletRegistry is the read-only wallet lookup backed by persistent storage.
// Lookup returns a NotFound-classed error for wallets unknown to the
// registry; the metrics aggregator refuses to write anything for those.
type WalletRegistry interface {
	Lookup(ctx context.Context, address string) (*models.WalletRecord, error)
}

// ProtocolSightings answers whether a protocol address has been seen before
// by any tracked wallet. Backed by the shared-protocol store; the single-
// transaction pioneer check uses it to detect early protocol interactions.
type ProtocolSightings interface {
	Seen(ctx context.Context, protocolAddress string) (bool, error)
}

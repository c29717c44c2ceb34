package database

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/sentinelfi/pioneerwatch/internal/models"
	"github.com/sentinelfi/pioneerwatch/internal/utils"
)

// WalletRepository is the persistent wallet registry. Wallets are registered
// externally; the pipeline only reads them.
type WalletRepository struct {
	pool DatabasePool
}

// NewWalletRepository creates a wallet repository over the given pool.
func NewWalletRepository(pool DatabasePool) *WalletRepository {
	return &WalletRepository{pool: pool}
}

// Lookup loads a monitored wallet. Unknown wallets yield a NotFound-classed
// error; the aggregators refuse to write anything for those.
func (r *WalletRepository) Lookup(ctx context.Context, address string) (*models.WalletRecord, error) {
	query := `
		SELECT address, label, first_seen, last_active, success_rate, total_transactions
		FROM wallets
		WHERE address = $1
	`

	var record models.WalletRecord
	err := r.pool.QueryRow(ctx, query, models.NormalizeAddress(address)).Scan(
		&record.Address, &record.Label, &record.FirstSeen, &record.LastActive,
		&record.SuccessRate, &record.TotalTransactions,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, utils.NewNotFoundError("wallet", address)
	}
	if err != nil {
		return nil, utils.NewTransientError("lookup wallet", err)
	}
	return &record, nil
}

// ListMonitored returns the addresses of all wallets the watcher should track.
func (r *WalletRepository) ListMonitored(ctx context.Context) ([]string, error) {
	query := `SELECT address FROM wallets ORDER BY first_seen`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, utils.NewTransientError("list monitored wallets", err)
	}
	defer rows.Close()

	var addresses []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, err
		}
		addresses = append(addresses, addr)
	}
	return addresses, rows.Err()
}

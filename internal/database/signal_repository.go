package database

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sentinelfi/pioneerwatch/internal/models"
	"github.com/sentinelfi/pioneerwatch/internal/utils"
)

// SignalRepository persists emitted signals. Signals are append-only from the
// pipeline's side; status transitions happen through external verification.
type SignalRepository struct {
	pool DatabasePool
}

// NewSignalRepository creates a signal repository over the given pool.
func NewSignalRepository(pool DatabasePool) *SignalRepository {
	return &SignalRepository{pool: pool}
}

// Save inserts a new signal. The id is caller-assigned; inserting the same id
// twice is a conflict, never a silent overwrite.
func (r *SignalRepository) Save(ctx context.Context, signal *models.Signal) error {
	txRef, err := json.Marshal(signal.Transaction)
	if err != nil {
		return fmt.Errorf("failed to encode signal transaction ref: %w", err)
	}
	pattern, err := json.Marshal(signal.Pattern)
	if err != nil {
		return fmt.Errorf("failed to encode signal pattern: %w", err)
	}
	analysis, err := json.Marshal(signal.Analysis)
	if err != nil {
		return fmt.Errorf("failed to encode signal analysis: %w", err)
	}
	var metrics []byte
	if signal.Metrics != nil {
		if metrics, err = json.Marshal(signal.Metrics); err != nil {
			return fmt.Errorf("failed to encode signal metrics: %w", err)
		}
	}

	var category *string
	if signal.Category != nil {
		c := string(*signal.Category)
		category = &c
	}

	query := `
		INSERT INTO signals (
			id, wallet_address, type, category, priority, timestamp,
			protocol, chain, transaction_ref, pattern, analysis, metrics, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`

	_, err = r.pool.Exec(ctx, query,
		signal.ID, signal.WalletAddress, signal.Type, category, signal.Priority,
		signal.Timestamp, signal.Protocol, signal.Chain, txRef, pattern,
		analysis, metrics, string(signal.Status),
	)
	if err != nil {
		return utils.NewTransientError("save signal", err)
	}
	return nil
}

// UpdateStatus moves a signal through its verification lifecycle.
func (r *SignalRepository) UpdateStatus(ctx context.Context, id string, status models.SignalStatus) error {
	query := `UPDATE signals SET status = $2 WHERE id = $1`

	result, err := r.pool.Exec(ctx, query, id, string(status))
	if err != nil {
		return utils.NewTransientError("update signal status", err)
	}
	if result.RowsAffected() == 0 {
		return utils.NewNotFoundError("signal", id)
	}
	return nil
}

// CountRecentByWallet returns how many signals a wallet produced in the
// trailing interval; the emitter uses it for rate awareness in priorities.
func (r *SignalRepository) CountRecentByWallet(ctx context.Context, walletAddress string, intervalHours int) (int64, error) {
	query := `
		SELECT COUNT(*)
		FROM signals
		WHERE wallet_address = $1
		AND timestamp > NOW() - ($2 * INTERVAL '1 hour')
	`

	var count int64
	err := r.pool.QueryRow(ctx, query, models.NormalizeAddress(walletAddress), intervalHours).Scan(&count)
	if err != nil {
		return 0, utils.NewTransientError("count recent signals", err)
	}
	return count, nil
}

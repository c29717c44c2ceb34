package database

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/sentinelfi/pioneerwatch/internal/models"
	"github.com/sentinelfi/pioneerwatch/internal/utils"
)

// PioneerRepository persists per-wallet pioneer records. The table enforces
// uniqueness on wallet_address; Save is an upsert of the full record, matching
// the aggregator's replace-on-recompute model.
type PioneerRepository struct {
	pool DatabasePool
}

// NewPioneerRepository creates a pioneer repository over the given pool.
func NewPioneerRepository(pool DatabasePool) *PioneerRepository {
	return &PioneerRepository{pool: pool}
}

// Save upserts the complete record. History arrays and metrics are stored as
// JSONB; categories as a text array.
func (r *PioneerRepository) Save(ctx context.Context, record *models.PioneerRecord) error {
	metrics, err := json.Marshal(record.Metrics)
	if err != nil {
		return fmt.Errorf("failed to encode pioneer metrics: %w", err)
	}
	discoveries, err := json.Marshal(record.DiscoveredProtocols)
	if err != nil {
		return fmt.Errorf("failed to encode protocol discoveries: %w", err)
	}
	deployments, err := json.Marshal(record.StrategyDeployments)
	if err != nil {
		return fmt.Errorf("failed to encode strategy deployments: %w", err)
	}
	chains, err := json.Marshal(record.ChainActivity)
	if err != nil {
		return fmt.Errorf("failed to encode chain activity: %w", err)
	}

	categories := make([]string, len(record.Categories))
	for i, c := range record.Categories {
		categories[i] = string(c)
	}

	query := `
		INSERT INTO pioneer_records (
			wallet_address, categories, metrics,
			discovered_protocols, strategy_deployments, chain_activity, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (wallet_address)
		DO UPDATE SET
			categories = EXCLUDED.categories,
			metrics = EXCLUDED.metrics,
			discovered_protocols = EXCLUDED.discovered_protocols,
			strategy_deployments = EXCLUDED.strategy_deployments,
			chain_activity = EXCLUDED.chain_activity,
			updated_at = EXCLUDED.updated_at
	`

	_, err = r.pool.Exec(ctx, query,
		record.WalletAddress, categories, metrics,
		discoveries, deployments, chains, record.UpdatedAt,
	)
	if err != nil {
		return utils.NewTransientError("save pioneer record", err)
	}
	return nil
}

// Get loads the record for a wallet. A missing record yields a NotFound-classed
// error so callers can create the record lazily.
func (r *PioneerRepository) Get(ctx context.Context, walletAddress string) (*models.PioneerRecord, error) {
	query := `
		SELECT wallet_address, categories, metrics,
		       discovered_protocols, strategy_deployments, chain_activity, updated_at
		FROM pioneer_records
		WHERE wallet_address = $1
	`

	var (
		record      models.PioneerRecord
		categories  []string
		metrics     []byte
		discoveries []byte
		deployments []byte
		chains      []byte
	)
	err := r.pool.QueryRow(ctx, query, models.NormalizeAddress(walletAddress)).Scan(
		&record.WalletAddress, &categories, &metrics,
		&discoveries, &deployments, &chains, &record.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, utils.NewNotFoundError("pioneer record", walletAddress)
	}
	if err != nil {
		return nil, utils.NewTransientError("load pioneer record", err)
	}

	record.Categories = make([]models.PioneerCategory, len(categories))
	for i, c := range categories {
		record.Categories[i] = models.PioneerCategory(c)
	}
	if err := json.Unmarshal(metrics, &record.Metrics); err != nil {
		return nil, fmt.Errorf("failed to decode pioneer metrics: %w", err)
	}
	if err := json.Unmarshal(discoveries, &record.DiscoveredProtocols); err != nil {
		return nil, fmt.Errorf("failed to decode protocol discoveries: %w", err)
	}
	if err := json.Unmarshal(deployments, &record.StrategyDeployments); err != nil {
		return nil, fmt.Errorf("failed to decode strategy deployments: %w", err)
	}
	if err := json.Unmarshal(chains, &record.ChainActivity); err != nil {
		return nil, fmt.Errorf("failed to decode chain activity: %w", err)
	}

	return &record, nil
}

// ListByCategory returns wallet addresses currently carrying a category.
func (r *PioneerRepository) ListByCategory(ctx context.Context, category models.PioneerCategory) ([]string, error) {
	query := `
		SELECT wallet_address
		FROM pioneer_records
		WHERE $1 = ANY(categories)
		ORDER BY updated_at DESC
	`

	rows, err := r.pool.Query(ctx, query, string(category))
	if err != nil {
		return nil, utils.NewTransientError("list pioneers by category", err)
	}
	defer rows.Close()

	var wallets []string
	for rows.Next() {
		var addr string
		if err := rows.Scan(&addr); err != nil {
			return nil, fmt.Errorf("failed to scan pioneer wallet: %w", err)
		}
		wallets = append(wallets, addr)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating pioneer wallets: %w", err)
	}
	return wallets, nil
}

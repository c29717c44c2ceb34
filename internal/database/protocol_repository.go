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

// ProtocolRepository persists shared-protocol records, one per protocol
// address. It also answers the protocol-sightings lookup the pioneer check
// uses to recognize first-ever interactions.
type ProtocolRepository struct {
	pool DatabasePool
}

// NewProtocolRepository creates a protocol repository over the given pool.
func NewProtocolRepository(pool DatabasePool) *ProtocolRepository {
	return &ProtocolRepository{pool: pool}
}

// Save upserts the complete record keyed by protocol address.
func (r *ProtocolRepository) Save(ctx context.Context, record *models.SharedProtocolRecord) error {
	pioneers, err := json.Marshal(record.Pioneers)
	if err != nil {
		return fmt.Errorf("failed to encode pioneer interactions: %w", err)
	}
	tvl, err := json.Marshal(record.TVLTrend)
	if err != nil {
		return fmt.Errorf("failed to encode tvl trend: %w", err)
	}

	query := `
		INSERT INTO shared_protocols (
			protocol_address, protocol_name, pioneers, total_pioneers,
			avg_success_rate, risk_score, discovery_timestamp, last_activity,
			tvl_trend, related_tokens
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (protocol_address)
		DO UPDATE SET
			protocol_name = EXCLUDED.protocol_name,
			pioneers = EXCLUDED.pioneers,
			total_pioneers = EXCLUDED.total_pioneers,
			avg_success_rate = EXCLUDED.avg_success_rate,
			risk_score = EXCLUDED.risk_score,
			last_activity = EXCLUDED.last_activity,
			tvl_trend = EXCLUDED.tvl_trend,
			related_tokens = EXCLUDED.related_tokens
	`

	_, err = r.pool.Exec(ctx, query,
		record.ProtocolAddress, record.ProtocolName, pioneers, record.TotalPioneers,
		record.AvgSuccessRate, record.RiskScore, record.DiscoveryTimestamp,
		record.LastActivity, tvl, record.RelatedTokens,
	)
	if err != nil {
		return utils.NewTransientError("save shared protocol record", err)
	}
	return nil
}

// Get loads the record for a protocol address; missing records yield a
// NotFound-classed error.
func (r *ProtocolRepository) Get(ctx context.Context, protocolAddress string) (*models.SharedProtocolRecord, error) {
	query := `
		SELECT protocol_address, protocol_name, pioneers, total_pioneers,
		       avg_success_rate, risk_score, discovery_timestamp, last_activity,
		       tvl_trend, related_tokens
		FROM shared_protocols
		WHERE protocol_address = $1
	`

	var (
		record   models.SharedProtocolRecord
		pioneers []byte
		tvl      []byte
	)
	err := r.pool.QueryRow(ctx, query, models.NormalizeAddress(protocolAddress)).Scan(
		&record.ProtocolAddress, &record.ProtocolName, &pioneers, &record.TotalPioneers,
		&record.AvgSuccessRate, &record.RiskScore, &record.DiscoveryTimestamp,
		&record.LastActivity, &tvl, &record.RelatedTokens,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, utils.NewNotFoundError("shared protocol record", protocolAddress)
	}
	if err != nil {
		return nil, utils.NewTransientError("load shared protocol record", err)
	}

	if err := json.Unmarshal(pioneers, &record.Pioneers); err != nil {
		return nil, fmt.Errorf("failed to decode pioneer interactions: %w", err)
	}
	if err := json.Unmarshal(tvl, &record.TVLTrend); err != nil {
		return nil, fmt.Errorf("failed to decode tvl trend: %w", err)
	}
	return &record, nil
}

// Seen reports whether any tracked wallet has interacted with the protocol
// address before.
func (r *ProtocolRepository) Seen(ctx context.Context, protocolAddress string) (bool, error) {
	query := `SELECT EXISTS(SELECT 1 FROM shared_protocols WHERE protocol_address = $1)`

	var exists bool
	err := r.pool.QueryRow(ctx, query, models.NormalizeAddress(protocolAddress)).Scan(&exists)
	if err != nil {
		return false, utils.NewTransientError("check protocol sighting", err)
	}
	return exists, nil
}

// ListRecent returns records ordered by most recent activity.
func (r *ProtocolRepository) ListRecent(ctx context.Context, limit int) ([]models.SharedProtocolRecord, error) {
	query := `
		SELECT protocol_address, protocol_name, pioneers, total_pioneers,
		       avg_success_rate, risk_score, discovery_timestamp, last_activity,
		       tvl_trend, related_tokens
		FROM shared_protocols
		ORDER BY last_activity DESC
		LIMIT $1
	`

	rows, err := r.pool.Query(ctx, query, limit)
	if err != nil {
		return nil, utils.NewTransientError("list shared protocol records", err)
	}
	defer rows.Close()

	var records []models.SharedProtocolRecord
	for rows.Next() {
		var (
			record   models.SharedProtocolRecord
			pioneers []byte
			tvl      []byte
		)
		err := rows.Scan(
			&record.ProtocolAddress, &record.ProtocolName, &pioneers, &record.TotalPioneers,
			&record.AvgSuccessRate, &record.RiskScore, &record.DiscoveryTimestamp,
			&record.LastActivity, &tvl, &record.RelatedTokens,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan shared protocol record: %w", err)
		}
		if err := json.Unmarshal(pioneers, &record.Pioneers); err != nil {
			return nil, fmt.Errorf("failed to decode pioneer interactions: %w", err)
		}
		if err := json.Unmarshal(tvl, &record.TVLTrend); err != nil {
			return nil, fmt.Errorf("failed to decode tvl trend: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating shared protocol records: %w", err)
	}
	return records, nil
}

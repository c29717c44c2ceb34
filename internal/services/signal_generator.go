package services

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/sentinelfi/pioneerwatch/internal/models"
	"github.com/sentinelfi/pioneerwatch/internal/utils"
)

const defaultNotifyFloor = 0.8

// SignalStore persists emitted signals.
type SignalStore interface {
	Save(ctx context.Context, signal *models.Signal) error
}

// MetricsProvider re-derives a wallet's pioneer metrics on demand.
type MetricsProvider interface {
	Recompute(ctx context.Context, walletAddress string) (*models.PioneerRecord, error)
}

// SignalInput is everything the emitter needs to build one signal.
type SignalInput struct {
	Type          string
	Category      *models.PioneerCategory
	WalletAddress string
	Protocol      string
	ChainID       int64
	Timestamp     time.Time
	Transaction   models.SignalTransaction
	Pattern       models.SignalPattern
}

// SignalGenerator combines classification, match, and metrics data into
// prioritized signals. Every signal is persisted; only high-confidence
// pioneer signals additionally produce a dispatch event.
type SignalGenerator struct {
	store       SignalStore
	metrics     MetricsProvider
	retry       RetryPolicy
	logger      *logrus.Logger
	writeTime   time.Duration
	notifyFloor float64
	newID       func() string
}

// NewSignalGenerator creates the emitter over a signal store and the pioneer
// metrics provider.
func NewSignalGenerator(store SignalStore, metrics MetricsProvider, logger *logrus.Logger, writeTimeout time.Duration, retry RetryPolicy) *SignalGenerator {
	if writeTimeout <= 0 {
		writeTimeout = defaultWriteTimeout
	}
	return &SignalGenerator{
		store:       store,
		metrics:     metrics,
		retry:       retry,
		logger:      logger,
		writeTime:   writeTimeout,
		notifyFloor: defaultNotifyFloor,
		newID:       uuid.NewString,
	}
}

// SetNotifyFloor overrides the minimum pattern confidence a pioneer signal
// needs before it produces a dispatch event.
func (g *SignalGenerator) SetNotifyFloor(floor float64) {
	if floor > 0 && floor <= 1 {
		g.notifyFloor = floor
	}
}

// Generate builds, persists, and returns the signal for one detection, plus
// the dispatch events the caller should forward to the notifier.
func (g *SignalGenerator) Generate(ctx context.Context, input SignalInput) (*models.Signal, []models.DomainEvent, error) {
	if input.WalletAddress == "" {
		return nil, nil, utils.NewValidationError("wallet address must not be empty")
	}
	if input.Type == "" {
		return nil, nil, utils.NewValidationError("signal type must not be empty")
	}

	isPioneer := input.Category != nil && input.Category.Valid()

	var record *models.PioneerRecord
	if input.Category != nil {
		var err error
		record, err = g.metrics.Recompute(ctx, input.WalletAddress)
		if err != nil {
			return nil, nil, err
		}
	}

	signal := &models.Signal{
		ID:            g.newID(),
		WalletAddress: models.NormalizeAddress(input.WalletAddress),
		Type:          input.Type,
		Priority:      priority(input, isPioneer, record),
		Timestamp:     input.Timestamp,
		Protocol:      input.Protocol,
		Chain:         fmt.Sprintf("%d", input.ChainID),
		Transaction:   input.Transaction,
		Pattern:       input.Pattern,
		Analysis:      analysis(input, isPioneer, record),
		Status:        models.StatusNew,
	}
	if isPioneer {
		signal.Category = input.Category
		metrics := record.Metrics
		signal.Metrics = &metrics
	}

	saveCtx, cancel := context.WithTimeout(ctx, g.writeTime)
	defer cancel()
	if err := g.retry.run(saveCtx, func(ctx context.Context) error {
		return g.store.Save(ctx, signal)
	}); err != nil {
		return nil, nil, err
	}

	if g.logger != nil {
		g.logger.WithFields(logrus.Fields{
			"signal_id": signal.ID,
			"wallet":    signal.WalletAddress,
			"priority":  signal.Priority,
		}).Info("Signal generated")
	}

	var events []models.DomainEvent
	if isPioneer && input.Pattern.Confidence >= g.notifyFloor {
		events = append(events, models.DomainEvent{
			Kind:           models.EventPioneerSignal,
			Category:       input.Category,
			Title:          fmt.Sprintf("Pioneer Signal: %s", input.Pattern.Name),
			Message:        signal.Analysis.Summary,
			Severity:       models.SeverityHigh,
			Timestamp:      input.Timestamp,
			TransactionRef: input.Transaction.Hash,
			Pattern: &models.PioneerPattern{
				Type:       input.Type,
				Name:       input.Pattern.Name,
				Confidence: input.Pattern.Confidence,
				Category:   *input.Category,
			},
		})
	}
	return signal, events, nil
}

// priority scores 1-5 additively from confidence, pioneer status, and the
// wallet's historical success rate.
func priority(input SignalInput, isPioneer bool, record *models.PioneerRecord) int {
	p := 1
	if input.Pattern.Confidence >= 0.9 {
		p += 2
	} else if input.Pattern.Confidence >= 0.7 {
		p++
	}
	if isPioneer {
		p++
	}
	if record != nil && record.Metrics.SuccessRate >= 0.8 {
		p++
	}
	if p > 5 {
		return 5
	}
	return p
}

// analysis renders the human-readable context. Category-specific impact and
// strategic text is attached only for pioneer signals.
func analysis(input SignalInput, isPioneer bool, record *models.PioneerRecord) models.SignalAnalysis {
	out := models.SignalAnalysis{
		Summary: fmt.Sprintf("Detected %s pattern with %.1f%% confidence",
			input.Pattern.Name, input.Pattern.Confidence*100),
	}
	if !isPioneer || record == nil {
		return out
	}

	m := record.Metrics
	switch *input.Category {
	case models.CategoryProtocolScout:
		out.PotentialImpact = "Potential early protocol adoption signal"
		out.StrategicContext = fmt.Sprintf("Pioneer has %.1f%% success rate in early protocol adoption",
			m.EarlyAdoptionSuccess*100)
	case models.CategoryYieldOpportunist:
		out.PotentialImpact = "Complex yield strategy deployment detected"
		out.StrategicContext = fmt.Sprintf("Pioneer averages %.1f%% ROI on yield strategies",
			m.YieldOptimizationROI*100)
	case models.CategoryCrossChainArb:
		out.PotentialImpact = "Cross-chain arbitrage opportunity identified"
		out.StrategicContext = fmt.Sprintf("Pioneer has %.1f%% success rate in cross-chain operations",
			m.CrossChainEfficiency*100)
	case models.CategoryRWAInnovation:
		out.PotentialImpact = "New real-world asset strategy detected"
		out.StrategicContext = fmt.Sprintf("Pioneer has pioneered %d successful RWA strategies",
			m.TotalTransactions)
	case models.CategoryTreasuryManagement:
		out.PotentialImpact = "Significant treasury management activity"
		out.StrategicContext = fmt.Sprintf("Pioneer manages treasury with %.1f%% efficiency rating",
			m.TreasuryManagementScore*100)
	}
	return out
}

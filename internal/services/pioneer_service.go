package services

import (
	"context"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sentinelfi/pioneerwatch/internal/models"
	"github.com/sentinelfi/pioneerwatch/internal/registry"
	"github.com/sentinelfi/pioneerwatch/internal/utils"
)

const (
	categoryThreshold   = 0.65
	yieldROIThreshold   = 0.15
	earlyAdoptionWindow = 7 * 24 * time.Hour
	defaultHistoryCap   = 500
	defaultLockTimeout  = 5 * time.Second
	defaultWriteTimeout = 5 * time.Second
)

// PioneerStore persists per-wallet pioneer records.
type PioneerStore interface {
	Get(ctx context.Context, walletAddress string) (*models.PioneerRecord, error)
	Save(ctx context.Context, record *models.PioneerRecord) error
}

// PioneerService accumulates per-wallet discovery, strategy, and chain
// activity history and re-derives category membership after every event.
// Updates for the same wallet serialize on a per-wallet lock; the staged
// record replaces the stored one wholesale, so a failed recompute leaves the
// previous state untouched.
type PioneerService struct {
	store      PioneerStore
	wallets    registry.WalletRegistry
	locks      *keyedLock
	retry      RetryPolicy
	logger     *logrus.Logger
	historyCap int
	writeTime  time.Duration
	now        func() time.Time
}

// PioneerServiceOptions tunes timeouts and history bounds.
type PioneerServiceOptions struct {
	LockTimeout  time.Duration
	WriteTimeout time.Duration
	HistoryCap   int
	Retry        RetryPolicy
}

// NewPioneerService creates the aggregator over a record store and the
// external wallet registry.
func NewPioneerService(store PioneerStore, wallets registry.WalletRegistry, logger *logrus.Logger, opts PioneerServiceOptions) *PioneerService {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = defaultLockTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	if opts.HistoryCap <= 0 {
		opts.HistoryCap = defaultHistoryCap
	}
	return &PioneerService{
		store:      store,
		wallets:    wallets,
		locks:      newKeyedLock(opts.LockTimeout),
		retry:      opts.Retry,
		logger:     logger,
		historyCap: opts.HistoryCap,
		writeTime:  opts.WriteTimeout,
		now:        time.Now,
	}
}

// RecordProtocolDiscovery appends a protocol first-touch to the wallet's
// history and recomputes its metrics and categories.
func (s *PioneerService) RecordProtocolDiscovery(ctx context.Context, walletAddress, protocol string, success bool) (*models.PioneerRecord, error) {
	if protocol == "" {
		return nil, utils.NewValidationError("protocol name must not be empty")
	}
	return s.mutate(ctx, walletAddress, func(record *models.PioneerRecord) {
		record.DiscoveredProtocols = append(record.DiscoveredProtocols, models.ProtocolDiscovery{
			Protocol:  protocol,
			Timestamp: s.now(),
			Success:   success,
		})
		if len(record.DiscoveredProtocols) > s.historyCap {
			record.DiscoveredProtocols = record.DiscoveredProtocols[len(record.DiscoveredProtocols)-s.historyCap:]
		}
	})
}

// RecordStrategyDeployment appends a detected strategy execution. roi may be
// nil when unknown.
func (s *PioneerService) RecordStrategyDeployment(ctx context.Context, walletAddress, strategyType string, success bool, roi *float64) (*models.PioneerRecord, error) {
	if strategyType == "" {
		return nil, utils.NewValidationError("strategy type must not be empty")
	}
	return s.mutate(ctx, walletAddress, func(record *models.PioneerRecord) {
		record.StrategyDeployments = append(record.StrategyDeployments, models.StrategyDeployment{
			Type:      strategyType,
			Timestamp: s.now(),
			Success:   success,
			ROI:       roi,
		})
		if len(record.StrategyDeployments) > s.historyCap {
			record.StrategyDeployments = record.StrategyDeployments[len(record.StrategyDeployments)-s.historyCap:]
		}
	})
}

// UpdateChainActivity folds one transaction outcome into the wallet's
// per-chain aggregate, creating the chain entry on first sight.
func (s *PioneerService) UpdateChainActivity(ctx context.Context, walletAddress, chain string, success bool) (*models.PioneerRecord, error) {
	if chain == "" {
		return nil, utils.NewValidationError("chain must not be empty")
	}
	return s.mutate(ctx, walletAddress, func(record *models.PioneerRecord) {
		now := s.now()
		for i := range record.ChainActivity {
			if record.ChainActivity[i].Chain != chain {
				continue
			}
			activity := &record.ChainActivity[i]
			activity.TransactionCount++
			n := float64(activity.TransactionCount)
			activity.SuccessRate = (activity.SuccessRate*(n-1) + boolToFloat(success)) / n
			activity.LastActive = now
			return
		}
		record.ChainActivity = append(record.ChainActivity, models.ChainActivity{
			Chain:            chain,
			TransactionCount: 1,
			SuccessRate:      boolToFloat(success),
			LastActive:       now,
		})
	})
}

// Recompute re-derives metrics and categories from the current history
// without adding any event, and persists the result.
func (s *PioneerService) Recompute(ctx context.Context, walletAddress string) (*models.PioneerRecord, error) {
	return s.mutate(ctx, walletAddress, func(*models.PioneerRecord) {})
}

// mutate runs the staged-clone update cycle: lock the wallet, verify it in
// the registry, apply the change to a clone, re-derive, persist, swap.
func (s *PioneerService) mutate(ctx context.Context, walletAddress string, apply func(*models.PioneerRecord)) (*models.PioneerRecord, error) {
	addr := models.NormalizeAddress(walletAddress)
	if addr == "" {
		return nil, utils.NewValidationError("wallet address must not be empty")
	}

	release, err := s.locks.acquire(ctx, addr)
	if err != nil {
		return nil, err
	}
	defer release()

	wallet, err := s.wallets.Lookup(ctx, addr)
	if err != nil {
		return nil, err
	}

	record, err := s.store.Get(ctx, addr)
	switch {
	case utils.IsNotFound(err):
		record = &models.PioneerRecord{WalletAddress: addr}
	case err != nil:
		return nil, err
	default:
		record = record.Clone()
	}

	apply(record)
	s.derive(record, wallet)
	record.UpdatedAt = s.now()

	saveCtx, cancel := context.WithTimeout(ctx, s.writeTime)
	defer cancel()
	if err := s.retry.run(saveCtx, func(ctx context.Context) error {
		return s.store.Save(ctx, record)
	}); err != nil {
		return nil, err
	}

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{
			"wallet":     addr,
			"categories": record.Categories,
		}).Debug("Pioneer record updated")
	}
	return record, nil
}

// derive recomputes every metric from the full history and replaces the
// category list wholesale. A wallet loses a category the moment its score
// drops below threshold.
func (s *PioneerService) derive(record *models.PioneerRecord, wallet *models.WalletRecord) {
	now := s.now()

	earlyCutoff := now.Add(-earlyAdoptionWindow)
	earlyTotal, earlySuccess := 0, 0
	for _, d := range record.DiscoveredProtocols {
		if d.Timestamp.After(earlyCutoff) {
			continue
		}
		earlyTotal++
		if d.Success {
			earlySuccess++
		}
	}

	metrics := models.PioneerMetrics{
		EarlyAdoptionSuccess:    ratio(earlySuccess, earlyTotal),
		YieldOptimizationROI:    meanROI(record.StrategyDeployments, "yield", "farming"),
		RWAInnovationScore:      successRatio(record.StrategyDeployments, "rwa", "real_world"),
		TreasuryManagementScore: successRatio(record.StrategyDeployments, "treasury", "governance"),
		SuccessRate:             wallet.SuccessRate,
		TotalTransactions:       wallet.TotalTransactions,
	}

	var chainTxns int64
	var chainSuccess float64
	for _, a := range record.ChainActivity {
		chainTxns += a.TransactionCount
		chainSuccess += a.SuccessRate * float64(a.TransactionCount)
	}
	if chainTxns > 0 {
		metrics.CrossChainEfficiency = chainSuccess / float64(chainTxns)
	}

	record.Metrics = metrics

	categories := record.Categories[:0]
	if metrics.EarlyAdoptionSuccess >= categoryThreshold {
		categories = append(categories, models.CategoryProtocolScout)
	}
	if metrics.YieldOptimizationROI >= yieldROIThreshold {
		categories = append(categories, models.CategoryYieldOpportunist)
	}
	if metrics.CrossChainEfficiency >= categoryThreshold {
		categories = append(categories, models.CategoryCrossChainArb)
	}
	if metrics.RWAInnovationScore >= categoryThreshold {
		categories = append(categories, models.CategoryRWAInnovation)
	}
	if metrics.TreasuryManagementScore >= categoryThreshold {
		categories = append(categories, models.CategoryTreasuryManagement)
	}
	record.Categories = categories
}

// successRatio computes the success fraction of deployments whose type
// contains any of the given fragments (case-insensitive).
func successRatio(deployments []models.StrategyDeployment, fragments ...string) float64 {
	total, succeeded := 0, 0
	for _, d := range deployments {
		if !typeContainsAny(d.Type, fragments) {
			continue
		}
		total++
		if d.Success {
			succeeded++
		}
	}
	return ratio(succeeded, total)
}

// meanROI averages roi over matching deployments, treating a missing roi as 0.
func meanROI(deployments []models.StrategyDeployment, fragments ...string) float64 {
	total := 0
	var sum float64
	for _, d := range deployments {
		if !typeContainsAny(d.Type, fragments) {
			continue
		}
		total++
		if d.ROI != nil {
			sum += *d.ROI
		}
	}
	if total == 0 {
		return 0
	}
	return sum / float64(total)
}

func typeContainsAny(t string, fragments []string) bool {
	lower := strings.ToLower(t)
	for _, f := range fragments {
		if strings.Contains(lower, f) {
			return true
		}
	}
	return false
}

func ratio(num, den int) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

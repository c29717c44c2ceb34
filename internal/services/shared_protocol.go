package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/cinar/indicator/v2/helper"
	"github.com/cinar/indicator/v2/trend"
	"github.com/sirupsen/logrus"

	"github.com/sentinelfi/pioneerwatch/internal/models"
	"github.com/sentinelfi/pioneerwatch/internal/utils"
)

// Risk score blend weights over per-pioneer normalized sub-scores.
const (
	riskWeightInteractions = 0.3
	riskWeightSuccess      = 0.4
	riskWeightTimeSpan     = 0.3

	interactionNormalization  = 100
	timeSpanNormalizationDays = 30

	rapidAdoptionWindow = 24 * time.Hour

	tvlTrendCap  = 500
	tvlSMAPeriod = 5
)

// ProtocolStore persists shared-protocol records.
type ProtocolStore interface {
	Get(ctx context.Context, protocolAddress string) (*models.SharedProtocolRecord, error)
	Save(ctx context.Context, record *models.SharedProtocolRecord) error
	ListRecent(ctx context.Context, limit int) ([]models.SharedProtocolRecord, error)
}

// ProtocolInsight is one trending-protocol summary.
type ProtocolInsight struct {
	ProtocolAddress string
	ProtocolName    string
	TotalPioneers   int64
	AvgSuccessRate  float64
	RiskScore       float64
	LastActivity    time.Time
	TVLDirection    string
}

// SharedProtocolService maintains the per-protocol pioneer aggregate and its
// risk score. Mutations for the same protocol serialize on a per-protocol
// lock; domain events for discoveries and pattern changes are returned to the
// caller for dispatch, never sent from here.
type SharedProtocolService struct {
	store     ProtocolStore
	locks     *keyedLock
	retry     RetryPolicy
	logger    *logrus.Logger
	writeTime time.Duration
	now       func() time.Time
}

// SharedProtocolOptions tunes timeouts.
type SharedProtocolOptions struct {
	LockTimeout  time.Duration
	WriteTimeout time.Duration
	Retry        RetryPolicy
}

// NewSharedProtocolService creates the risk engine over a record store.
func NewSharedProtocolService(store ProtocolStore, logger *logrus.Logger, opts SharedProtocolOptions) *SharedProtocolService {
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = defaultLockTimeout
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = defaultWriteTimeout
	}
	return &SharedProtocolService{
		store:     store,
		locks:     newKeyedLock(opts.LockTimeout),
		retry:     opts.Retry,
		logger:    logger,
		writeTime: opts.WriteTimeout,
		now:       time.Now,
	}
}

// RecordInteraction folds one pioneer interaction into the protocol record,
// creating the record on first sight. The returned events cover the discovery
// (if new) plus any alert conditions the updated record satisfies.
func (s *SharedProtocolService) RecordInteraction(ctx context.Context, protocolAddress, protocolName, pioneerAddress string, success bool, relatedTokens []string) (*models.SharedProtocolRecord, []models.DomainEvent, error) {
	addr := models.NormalizeAddress(protocolAddress)
	pioneer := models.NormalizeAddress(pioneerAddress)
	if addr == "" {
		return nil, nil, utils.NewValidationError("protocol address must not be empty")
	}
	if pioneer == "" {
		return nil, nil, utils.NewValidationError("pioneer address must not be empty")
	}

	release, err := s.locks.acquire(ctx, addr)
	if err != nil {
		return nil, nil, err
	}
	defer release()

	now := s.now()
	var events []models.DomainEvent

	record, err := s.store.Get(ctx, addr)
	switch {
	case utils.IsNotFound(err):
		record = &models.SharedProtocolRecord{
			ProtocolAddress:    addr,
			ProtocolName:       protocolName,
			DiscoveryTimestamp: now,
			LastActivity:       now,
		}
		events = append(events, models.DomainEvent{
			Kind:            models.EventProtocolDiscovered,
			Title:           "New Protocol Discovered",
			Message:         fmt.Sprintf("Pioneer %s is the first tracked wallet to interact with %s", pioneer, protocolName),
			Severity:        models.SeverityInfo,
			Timestamp:       now,
			ProtocolAddress: addr,
			ProtocolName:    protocolName,
		})
	case err != nil:
		return nil, nil, err
	default:
		record = record.Clone()
	}

	s.applyInteraction(record, pioneer, success, now)
	record.RelatedTokens = mergeTokens(record.RelatedTokens, relatedTokens)
	record.RiskScore = riskScore(record.Pioneers, now)
	events = append(events, s.alertEvents(record, now)...)

	saveCtx, cancel := context.WithTimeout(ctx, s.writeTime)
	defer cancel()
	if err := s.retry.run(saveCtx, func(ctx context.Context) error {
		return s.store.Save(ctx, record)
	}); err != nil {
		return nil, nil, err
	}

	if s.logger != nil {
		s.logger.WithFields(logrus.Fields{
			"protocol":       record.ProtocolName,
			"total_pioneers": record.TotalPioneers,
			"risk_score":     record.RiskScore,
		}).Debug("Protocol interaction recorded")
	}
	return record, events, nil
}

// Seen reports whether any tracked pioneer has interacted with the protocol
// address before. Satisfies the sightings lookup the pioneer check needs.
func (s *SharedProtocolService) Seen(ctx context.Context, protocolAddress string) (bool, error) {
	_, err := s.store.Get(ctx, models.NormalizeAddress(protocolAddress))
	if utils.IsNotFound(err) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// RecordTVLPoint appends one TVL sample to the protocol's trend series.
func (s *SharedProtocolService) RecordTVLPoint(ctx context.Context, protocolAddress string, value float64) error {
	addr := models.NormalizeAddress(protocolAddress)
	if addr == "" {
		return utils.NewValidationError("protocol address must not be empty")
	}

	release, err := s.locks.acquire(ctx, addr)
	if err != nil {
		return err
	}
	defer release()

	record, err := s.store.Get(ctx, addr)
	if err != nil {
		return err
	}
	record = record.Clone()

	record.TVLTrend = append(record.TVLTrend, models.TVLPoint{Timestamp: s.now(), Value: value})
	if len(record.TVLTrend) > tvlTrendCap {
		record.TVLTrend = record.TVLTrend[len(record.TVLTrend)-tvlTrendCap:]
	}

	saveCtx, cancel := context.WithTimeout(ctx, s.writeTime)
	defer cancel()
	return s.retry.run(saveCtx, func(ctx context.Context) error {
		return s.store.Save(ctx, record)
	})
}

// TopProtocols returns the protocols active within the timeframe, most
// pioneers first, each with its smoothed TVL direction.
func (s *SharedProtocolService) TopProtocols(ctx context.Context, timeframe time.Duration, limit int) ([]ProtocolInsight, error) {
	if limit <= 0 {
		limit = 10
	}

	records, err := s.store.ListRecent(ctx, tvlTrendCap)
	if err != nil {
		return nil, err
	}

	cutoff := s.now().Add(-timeframe)
	var insights []ProtocolInsight
	for _, record := range records {
		if record.LastActivity.Before(cutoff) {
			continue
		}
		insights = append(insights, ProtocolInsight{
			ProtocolAddress: record.ProtocolAddress,
			ProtocolName:    record.ProtocolName,
			TotalPioneers:   record.TotalPioneers,
			AvgSuccessRate:  record.AvgSuccessRate,
			RiskScore:       record.RiskScore,
			LastActivity:    record.LastActivity,
			TVLDirection:    TVLDirection(record.TVLTrend),
		})
	}

	sort.SliceStable(insights, func(i, j int) bool {
		return insights[i].TotalPioneers > insights[j].TotalPioneers
	})
	if len(insights) > limit {
		insights = insights[:limit]
	}
	return insights, nil
}

// TVLDirection smooths the trend series with a moving average and reports
// whether the protocol's TVL is rising, falling, or flat. Series shorter than
// the smoothing period report flat.
func TVLDirection(points []models.TVLPoint) string {
	if len(points) < tvlSMAPeriod+1 {
		return "flat"
	}

	values := make([]float64, len(points))
	for i, p := range points {
		values[i] = p.Value
	}

	sma := trend.NewSmaWithPeriod[float64](tvlSMAPeriod)
	smoothed := helper.ChanToSlice(sma.Compute(helper.SliceToChan(values)))
	if len(smoothed) < 2 {
		return "flat"
	}

	last := smoothed[len(smoothed)-1]
	prev := smoothed[len(smoothed)-2]
	switch {
	case last > prev:
		return "rising"
	case last < prev:
		return "falling"
	default:
		return "flat"
	}
}

// applyInteraction updates the pioneer sub-entry in place. The success rate
// is a running mean over the pioneer's interaction count.
func (s *SharedProtocolService) applyInteraction(record *models.SharedProtocolRecord, pioneer string, success bool, now time.Time) {
	entry := record.FindPioneer(pioneer)
	if entry != nil {
		entry.InteractionCount++
		n := float64(entry.InteractionCount)
		entry.SuccessRate = (entry.SuccessRate*(n-1) + boolToFloat(success)) / n
		entry.LastInteraction = now
	} else {
		record.Pioneers = append(record.Pioneers, models.PioneerInteraction{
			Address:          pioneer,
			FirstInteraction: now,
			LastInteraction:  now,
			InteractionCount: 1,
			SuccessRate:      boolToFloat(success),
		})
		record.TotalPioneers++
	}

	var sum float64
	for _, p := range record.Pioneers {
		sum += p.SuccessRate
	}
	record.AvgSuccessRate = sum / float64(record.TotalPioneers)
	record.LastActivity = now
}

// riskScore blends normalized per-pioneer sub-scores with fixed weights.
// Always in [0, 1].
func riskScore(pioneers []models.PioneerInteraction, now time.Time) float64 {
	if len(pioneers) == 0 {
		return 0
	}

	var interactions, successes, spans float64
	for _, p := range pioneers {
		interactions += min1(float64(p.InteractionCount) / interactionNormalization)
		successes += p.SuccessRate
		days := p.LastInteraction.Sub(p.FirstInteraction).Hours() / 24
		spans += min1(days / timeSpanNormalizationDays)
	}

	n := float64(len(pioneers))
	return riskWeightInteractions*(interactions/n) +
		riskWeightSuccess*(successes/n) +
		riskWeightTimeSpan*(spans/n)
}

// alertEvents evaluates the pattern-change conditions independently; several
// can fire on the same update.
func (s *SharedProtocolService) alertEvents(record *models.SharedProtocolRecord, now time.Time) []models.DomainEvent {
	var events []models.DomainEvent

	recent := 0
	cutoff := now.Add(-rapidAdoptionWindow)
	for _, p := range record.Pioneers {
		if p.LastInteraction.After(cutoff) {
			recent++
		}
	}
	if recent >= 3 && float64(recent)/float64(record.TotalPioneers) >= 0.5 {
		events = append(events, models.DomainEvent{
			Kind:            models.EventRapidAdoption,
			Title:           "Protocol Pattern Detected",
			Message:         fmt.Sprintf("Rapid adoption detected for %s", record.ProtocolName),
			Severity:        models.SeverityHigh,
			Timestamp:       now,
			ProtocolAddress: record.ProtocolAddress,
			ProtocolName:    record.ProtocolName,
		})
	}

	if record.AvgSuccessRate >= 0.8 && record.TotalPioneers >= 5 {
		events = append(events, models.DomainEvent{
			Kind:            models.EventHighSuccess,
			Title:           "Protocol Pattern Detected",
			Message:         fmt.Sprintf("High success rate maintained for %s", record.ProtocolName),
			Severity:        models.SeverityMedium,
			Timestamp:       now,
			ProtocolAddress: record.ProtocolAddress,
			ProtocolName:    record.ProtocolName,
		})
	}

	if record.RiskScore <= 0.3 && record.TotalPioneers >= 3 {
		events = append(events, models.DomainEvent{
			Kind:            models.EventLowRisk,
			Title:           "Protocol Pattern Detected",
			Message:         fmt.Sprintf("%s showing stable, low-risk metrics", record.ProtocolName),
			Severity:        models.SeverityInfo,
			Timestamp:       now,
			ProtocolAddress: record.ProtocolAddress,
			ProtocolName:    record.ProtocolName,
		})
	}

	return events
}

func mergeTokens(existing, incoming []string) []string {
	seen := make(map[string]bool, len(existing))
	out := existing
	for _, t := range existing {
		seen[t] = true
	}
	for _, t := range incoming {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func min1(v float64) float64 {
	if v > 1 {
		return 1
	}
	return v
}

package services

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/sentinelfi/pioneerwatch/internal/analyzer"
	"github.com/sentinelfi/pioneerwatch/internal/cache"
	"github.com/sentinelfi/pioneerwatch/internal/models"
	"github.com/sentinelfi/pioneerwatch/internal/patterns"
	"github.com/sentinelfi/pioneerwatch/internal/telemetry"
	"github.com/sentinelfi/pioneerwatch/internal/utils"
)

// Observation is one feed delivery: a transaction sent by a monitored wallet,
// with its receipt when available.
type Observation struct {
	WalletAddress string
	Transaction   *models.RawTransaction
	Receipt       *models.Receipt
}

// Watcher drives the detection pipeline. Each tracked wallet gets its own
// worker goroutine fed by an ordered channel, so events for one wallet never
// interleave while distinct wallets proceed in parallel. Per-event failures
// are logged and dropped; the feed is never blocked by a single bad event.
type Watcher struct {
	classifier *analyzer.Classifier
	detector   *analyzer.PioneerDetector
	matcher    *patterns.Matcher
	pioneers   *PioneerService
	protocols  *SharedProtocolService
	signals    *SignalGenerator
	notifier   *NotificationService
	dedup      *cache.TransactionDedup
	logger     *logrus.Logger
	metrics    *telemetry.PipelineMetrics

	chainID    int64
	bufferSize int

	mu      sync.RWMutex
	workers map[string]*walletWorker
	group   *errgroup.Group
	ctx     context.Context
	cancel  context.CancelFunc
}

// walletWorker is one wallet's delivery channel plus its stop signal. The
// channel is never closed; Untrack closes done instead, so queued deliveries
// are abandoned rather than drained.
type walletWorker struct {
	ch   chan Observation
	done chan struct{}
}

// NewWatcher wires the pipeline stages together.
func NewWatcher(
	classifier *analyzer.Classifier,
	detector *analyzer.PioneerDetector,
	matcher *patterns.Matcher,
	pioneers *PioneerService,
	protocols *SharedProtocolService,
	signals *SignalGenerator,
	notifier *NotificationService,
	dedup *cache.TransactionDedup,
	logger *logrus.Logger,
	chainID int64,
	bufferSize int,
) *Watcher {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	return &Watcher{
		classifier: classifier,
		detector:   detector,
		matcher:    matcher,
		pioneers:   pioneers,
		protocols:  protocols,
		signals:    signals,
		notifier:   notifier,
		dedup:      dedup,
		logger:     logger,
		chainID:    chainID,
		bufferSize: bufferSize,
		workers:    make(map[string]*walletWorker),
	}
}

// SetMetrics attaches pipeline instrumentation. Nil metrics record nothing.
func (w *Watcher) SetMetrics(metrics *telemetry.PipelineMetrics) {
	w.metrics = metrics
}

// Start prepares the watcher for tracking. Must be called before Track.
func (w *Watcher) Start(ctx context.Context) {
	w.ctx, w.cancel = context.WithCancel(ctx)
	w.group, w.ctx = errgroup.WithContext(w.ctx)
}

// Track begins monitoring a wallet, spawning its worker on first call.
func (w *Watcher) Track(address string) {
	addr := models.NormalizeAddress(address)
	if addr == "" {
		return
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	if _, exists := w.workers[addr]; exists {
		return
	}

	wk := &walletWorker{
		ch:   make(chan Observation, w.bufferSize),
		done: make(chan struct{}),
	}
	w.workers[addr] = wk
	w.group.Go(func() error {
		w.runWorker(addr, wk)
		return nil
	})

	w.logger.WithField("wallet", addr).Info("Tracking wallet")
}

// Untrack stops monitoring a wallet and discards its matcher state. Queued
// observations for the wallet are dropped; an observation already mid-pipeline
// finishes, everything behind it does not.
func (w *Watcher) Untrack(address string) {
	addr := models.NormalizeAddress(address)

	w.mu.Lock()
	wk, exists := w.workers[addr]
	if exists {
		delete(w.workers, addr)
		close(wk.done)
	}
	w.mu.Unlock()

	if exists {
		w.matcher.Untrack(addr)
		w.logger.WithField("wallet", addr).Info("Stopped tracking wallet")
	}
}

// Observe routes one feed delivery to its wallet worker. Deliveries for
// untracked wallets are dropped silently; a full worker buffer drops the
// observation with a warning rather than blocking the feed.
func (w *Watcher) Observe(obs Observation) {
	addr := models.NormalizeAddress(obs.WalletAddress)

	w.mu.RLock()
	wk, tracked := w.workers[addr]
	w.mu.RUnlock()
	if !tracked {
		return
	}

	select {
	case wk.ch <- obs:
	default:
		w.logger.WithField("wallet", addr).Warn("Worker buffer full, dropping observation")
	}
}

// Tracking reports whether the wallet currently has a worker. The feed uses
// this to skip receipt fetches for transactions nobody is watching.
func (w *Watcher) Tracking(address string) bool {
	addr := models.NormalizeAddress(address)
	w.mu.RLock()
	defer w.mu.RUnlock()
	_, tracked := w.workers[addr]
	return tracked
}

// Stop cancels all workers and waits for them to exit. Queued observations
// are discarded.
func (w *Watcher) Stop() {
	w.mu.Lock()
	for addr, wk := range w.workers {
		delete(w.workers, addr)
		close(wk.done)
	}
	w.mu.Unlock()

	if w.cancel != nil {
		w.cancel()
	}
	if w.group != nil {
		_ = w.group.Wait()
	}
}

func (w *Watcher) runWorker(addr string, wk *walletWorker) {
	for {
		select {
		case <-wk.done:
			return
		case <-w.ctx.Done():
			return
		case obs := <-wk.ch:
			// Untrack may land while this observation sits in the buffer; a
			// removed wallet must not produce signals from its backlog.
			select {
			case <-wk.done:
				return
			default:
			}
			if err := w.process(w.ctx, addr, obs); err != nil {
				w.logger.WithError(err).WithFields(logrus.Fields{
					"wallet": addr,
					"hash":   obs.Transaction.Hash,
				}).Error("Failed to process observation")
			}
		}
	}
}

// process runs one observation through the full pipeline.
func (w *Watcher) process(ctx context.Context, addr string, obs Observation) error {
	tx := obs.Transaction
	if tx == nil || tx.Hash == "" {
		return utils.NewValidationError("observation carries no transaction")
	}

	started := time.Now()
	defer func() { w.metrics.ObservationProcessed(ctx, time.Since(started)) }()

	// Re-orgs and reconnects replay recent blocks; the first observation wins.
	if w.dedup != nil {
		first, err := w.dedup.MarkSeen(ctx, tx.Hash)
		if err != nil {
			w.logger.WithError(err).Warn("Dedup check failed, treating transaction as unseen")
		} else if !first {
			w.metrics.DuplicateDropped(ctx)
			return nil
		}
	}

	classified := w.classifier.Classify(tx, obs.Receipt)
	matches := w.matcher.Observe(addr, &classified)

	pioneerPattern, err := w.detector.Detect(ctx, tx, obs.Receipt)
	if err != nil {
		w.logger.WithError(err).WithField("hash", tx.Hash).Warn("Pioneer detection failed")
		pioneerPattern = nil
	}

	success := obs.Receipt.Succeeded()

	if pioneerPattern != nil {
		if err := w.recordPioneerActivity(ctx, addr, &classified, pioneerPattern, success); err != nil {
			return err
		}
		if err := w.emitSignal(ctx, addr, &classified, pioneerPattern.Type, pioneerPattern.Name, pioneerPattern.Confidence, pioneerPattern.Category); err != nil {
			return err
		}
	}

	for _, match := range matches {
		def := match.Definition
		if err := w.emitSignal(ctx, addr, &classified, def.Type, def.Name, match.Confidence, def.Category); err != nil {
			return err
		}
	}

	// Known protocols always update their shared record; unknown contracts do
	// so only once a pioneer pattern vouches for them, so random contract
	// calls don't mint protocol records.
	if classified.Protocol != nil || (pioneerPattern != nil && classified.To != "") {
		protocolAddr := classified.To
		protocolName := classified.To
		if classified.Protocol != nil {
			protocolAddr = classified.Protocol.Address
			protocolName = classified.Protocol.Name
		}
		_, events, err := w.protocols.RecordInteraction(ctx, protocolAddr, protocolName, addr, success, nil)
		if err != nil {
			return err
		}
		w.notifier.DispatchAll(ctx, events)
	}

	return nil
}

// recordPioneerActivity routes the detected pattern to the matching pioneer
// history stream.
func (w *Watcher) recordPioneerActivity(ctx context.Context, addr string, classified *models.ClassifiedTransaction, pattern *models.PioneerPattern, success bool) error {
	switch pattern.Category {
	case models.CategoryProtocolScout:
		protocol := classified.To
		if classified.Protocol != nil {
			protocol = classified.Protocol.Name
		}
		_, err := w.pioneers.RecordProtocolDiscovery(ctx, addr, protocol, success)
		return err
	case models.CategoryYieldOpportunist, models.CategoryRWAInnovation, models.CategoryTreasuryManagement:
		_, err := w.pioneers.RecordStrategyDeployment(ctx, addr, pattern.Type, success, nil)
		return err
	case models.CategoryCrossChainArb:
		_, err := w.pioneers.UpdateChainActivity(ctx, addr, strconv.FormatInt(w.chainID, 10), success)
		return err
	}
	return nil
}

func (w *Watcher) emitSignal(ctx context.Context, addr string, classified *models.ClassifiedTransaction, signalType, patternName string, confidence float64, category models.PioneerCategory) error {
	protocol := "unknown"
	if classified.Protocol != nil {
		protocol = classified.Protocol.Name
	}

	cat := category
	input := SignalInput{
		Type:          signalType,
		Category:      &cat,
		WalletAddress: addr,
		Protocol:      protocol,
		ChainID:       w.chainID,
		Timestamp:     classified.Timestamp,
		Transaction: models.SignalTransaction{
			Hash:   classified.Hash,
			Value:  classified.Value.String(),
			Method: classified.MethodSignature,
		},
		Pattern: models.SignalPattern{
			Name:       patternName,
			Confidence: confidence,
		},
	}

	signal, events, err := w.signals.Generate(ctx, input)
	if err != nil {
		return fmt.Errorf("generating signal for %s: %w", classified.Hash, err)
	}

	for i := range events {
		events[i].Message = fmt.Sprintf("Pioneer %s detected performing %s",
			shortAddress(addr), patternName)
	}
	w.notifier.DispatchAll(ctx, events)
	w.metrics.SignalEmitted(ctx, signal.Type, signal.Priority)

	w.logger.WithFields(logrus.Fields{
		"signal_id": signal.ID,
		"type":      signal.Type,
		"priority":  signal.Priority,
	}).Debug("Signal emitted")
	return nil
}

func shortAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

package patterns

import (
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/sentinelfi/pioneerwatch/internal/models"
)

// Match is one qualifying pattern detection. Ephemeral: matches are only
// persisted through the signals they generate.
type Match struct {
	Definition  Definition
	Confidence  float64
	MatchedTxns []string
}

// historyEntry is the per-transaction slice of state the matcher retains.
type historyEntry struct {
	hash      string
	timestamp time.Time
	txType    string
}

// walletHistory is the rolling window for one tracked wallet. Each wallet has
// its own lock, so observations for different wallets never contend.
type walletHistory struct {
	mu      sync.Mutex
	entries []historyEntry
	seen    map[string]bool
}

// Matcher evaluates the pattern catalog against per-wallet rolling histories.
// Histories are created on first observation, pruned on every write, and
// destroyed on Untrack.
type Matcher struct {
	mu      sync.RWMutex
	wallets map[string]*walletHistory

	catalog []Definition
	window  time.Duration
	logger  *logrus.Logger
	now     func() time.Time
}

// NewMatcher creates a matcher over the standard catalog. The window bounds
// how long any transaction stays in a wallet's history; individual patterns
// apply their own shorter sub-windows on top.
func NewMatcher(window time.Duration, logger *logrus.Logger) *Matcher {
	return &Matcher{
		wallets: make(map[string]*walletHistory),
		catalog: Catalog,
		window:  window,
		logger:  logger,
		now:     time.Now,
	}
}

// Observe records one classified transaction for a wallet and returns every
// pattern that now qualifies. Re-observing an already-seen transaction hash
// is a no-op for the history; the catalog is still evaluated, so duplicate
// delivery never double-counts an entry.
func (m *Matcher) Observe(address string, tx *models.ClassifiedTransaction) []Match {
	addr := models.NormalizeAddress(address)
	if addr == "" || tx == nil {
		return nil
	}

	h := m.historyFor(addr)
	now := m.now()

	h.mu.Lock()
	if !h.seen[tx.Hash] {
		h.seen[tx.Hash] = true
		h.entries = append(h.entries, historyEntry{
			hash:      tx.Hash,
			timestamp: now,
			txType:    tx.Type,
		})
	}
	m.prune(h, now)
	matches := m.evaluate(h.entries, now)
	h.mu.Unlock()

	if len(matches) > 0 && m.logger != nil {
		m.logger.WithFields(logrus.Fields{
			"wallet":  addr,
			"matches": len(matches),
		}).Debug("Pattern matches detected")
	}
	return matches
}

// Untrack discards all matcher state for a wallet.
func (m *Matcher) Untrack(address string) {
	addr := models.NormalizeAddress(address)
	m.mu.Lock()
	delete(m.wallets, addr)
	m.mu.Unlock()
}

// Tracked reports whether the matcher currently holds history for a wallet.
func (m *Matcher) Tracked(address string) bool {
	m.mu.RLock()
	_, ok := m.wallets[models.NormalizeAddress(address)]
	m.mu.RUnlock()
	return ok
}

// History returns the transaction hashes currently retained for a wallet, in
// observation order.
func (m *Matcher) History(address string) []string {
	m.mu.RLock()
	h, ok := m.wallets[models.NormalizeAddress(address)]
	m.mu.RUnlock()
	if !ok {
		return nil
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	hashes := make([]string, len(h.entries))
	for i, e := range h.entries {
		hashes[i] = e.hash
	}
	return hashes
}

func (m *Matcher) historyFor(addr string) *walletHistory {
	m.mu.RLock()
	h, ok := m.wallets[addr]
	m.mu.RUnlock()
	if ok {
		return h
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if h, ok = m.wallets[addr]; ok {
		return h
	}
	h = &walletHistory{seen: make(map[string]bool)}
	m.wallets[addr] = h
	return h
}

// prune drops entries older than the matcher window. Entries are appended in
// observation order, so a single scan for the first survivor suffices.
func (m *Matcher) prune(h *walletHistory, now time.Time) {
	cutoff := now.Add(-m.window)
	idx := sort.Search(len(h.entries), func(i int) bool {
		return h.entries[i].timestamp.After(cutoff)
	})
	if idx == 0 {
		return
	}
	for _, e := range h.entries[:idx] {
		delete(h.seen, e.hash)
	}
	h.entries = append(h.entries[:0], h.entries[idx:]...)
}

// evaluate runs every catalog definition against the history. All qualifying
// matches are returned, not just the strongest one.
func (m *Matcher) evaluate(entries []historyEntry, now time.Time) []Match {
	var matches []Match
	for _, def := range m.catalog {
		cutoff := now.Add(-def.Window)

		relevant := 0
		var matched []string
		for _, e := range entries {
			if e.timestamp.Before(cutoff) {
				continue
			}
			relevant++
			if typeMatchesAny(e.txType, def.RequiredTypes) {
				matched = append(matched, e.hash)
			}
		}

		if len(matched) < len(def.RequiredTypes) {
			continue
		}

		confidence := patternConfidence(def, len(matched), relevant)
		if confidence < def.MinConfidence {
			continue
		}

		matches = append(matches, Match{
			Definition:  def,
			Confidence:  confidence,
			MatchedTxns: matched,
		})
	}
	return matches
}

// typeMatchesAny is a case-insensitive substring match: required type "stake"
// matches classified type "liquidity_stake".
func typeMatchesAny(txType string, required []string) bool {
	lower := strings.ToLower(txType)
	for _, want := range required {
		if strings.Contains(lower, strings.ToLower(want)) {
			return true
		}
	}
	return false
}

// patternConfidence scores a match from the ratio of matched to required
// transactions, diluted when the window holds mostly unrelated activity and
// discounted when only a single transaction matched.
func patternConfidence(def Definition, matchedCount, relevantCount int) float64 {
	confidence := float64(matchedCount) / float64(len(def.RequiredTypes))
	if relevantCount > len(def.RequiredTypes)*2 {
		confidence *= 0.9
	}
	if matchedCount <= 1 {
		confidence *= 0.8
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

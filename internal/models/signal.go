package models

import "time"

// SignalStatus tracks a signal's verification lifecycle. The pipeline only
// ever creates signals in StatusNew; later transitions are externally driven.
type SignalStatus string

const (
	StatusNew        SignalStatus = "New"
	StatusProcessing SignalStatus = "Processing"
	StatusVerified   SignalStatus = "Verified"
	StatusInvalid    SignalStatus = "Invalid"
)

// PioneerPattern is the result of the single-transaction pioneer check:
// an immediately categorizable behavior with a fixed base confidence.
type PioneerPattern struct {
	Type       string          `json:"type"`
	Name       string          `json:"name"`
	Confidence float64         `json:"confidence"`
	Category   PioneerCategory `json:"category"`
}

// SignalPattern names the pattern a signal was generated from.
type SignalPattern struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
}

// SignalTransaction references the transaction that triggered a signal.
type SignalTransaction struct {
	Hash   string `json:"hash"`
	Value  string `json:"value"`
	Method string `json:"method"`
}

// SignalAnalysis carries the human-readable context attached to a signal.
// PotentialImpact and StrategicContext are populated only for pioneer-category
// signals.
type SignalAnalysis struct {
	Summary          string   `json:"summary"`
	PotentialImpact  string   `json:"potential_impact,omitempty"`
	StrategicContext string   `json:"strategic_context,omitempty"`
	RelatedTokens    []string `json:"related_tokens,omitempty"`
}

// Signal is a prioritized, persistable detection event.
type Signal struct {
	ID            string            `json:"id" db:"id"`
	WalletAddress string            `json:"wallet_address" db:"wallet_address"`
	Type          string            `json:"type" db:"type"`
	Category      *PioneerCategory  `json:"category,omitempty" db:"category"`
	Priority      int               `json:"priority" db:"priority"` // 1-5
	Timestamp     time.Time         `json:"timestamp" db:"timestamp"`
	Protocol      string            `json:"protocol" db:"protocol"`
	Chain         string            `json:"chain" db:"chain"`
	Transaction   SignalTransaction `json:"transaction"`
	Pattern       SignalPattern     `json:"pattern"`
	Analysis      SignalAnalysis    `json:"analysis"`
	Metrics       *PioneerMetrics   `json:"metrics,omitempty"`
	Status        SignalStatus      `json:"status" db:"status"`
}

// IsPioneerSignal reports whether the signal belongs to a pioneer category.
func (s *Signal) IsPioneerSignal() bool {
	return s.Category != nil && s.Category.Valid()
}

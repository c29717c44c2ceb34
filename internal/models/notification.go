package models

import "time"

// Severity grades a notification event.
type Severity string

const (
	SeverityInfo   Severity = "info"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Domain event kinds emitted by the aggregators. The aggregation code returns
// these for the caller to dispatch; it never talks to a notifier directly.
const (
	EventProtocolDiscovered = "protocol_discovered"
	EventRapidAdoption      = "rapid_adoption"
	EventHighSuccess        = "high_success"
	EventLowRisk            = "low_risk"
	EventPioneerSignal      = "pioneer_signal"
)

// DomainEvent is a notification-worthy fact produced by the pipeline.
// Dispatch is fire-and-forget: failures are logged by the dispatcher and
// never block pipeline progress.
type DomainEvent struct {
	Kind            string           `json:"kind"`
	Category        *PioneerCategory `json:"category,omitempty"`
	Title           string           `json:"title"`
	Message         string           `json:"message"`
	Severity        Severity         `json:"severity"`
	Timestamp       time.Time        `json:"timestamp"`
	TransactionRef  string           `json:"transaction_ref,omitempty"`
	ProtocolAddress string           `json:"protocol_address,omitempty"`
	ProtocolName    string           `json:"protocol_name,omitempty"`
	Pattern         *PioneerPattern  `json:"pattern,omitempty"`
}

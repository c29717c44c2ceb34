package models

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction type labels produced by the classifier. Pattern-signature hits
// produce more specific labels (deposit, stake, bridge, ...).
const (
	TxTypeTransfer            = "transfer"
	TxTypeContractInteraction = "contract_interaction"
)

// NormalizeAddress lowers an address into its canonical form. All wallet and
// protocol identities are keyed by this form; addresses must never be stored
// or compared in mixed case.
func NormalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// RawTransaction is an on-chain transaction as delivered by the feed, before
// classification.
type RawTransaction struct {
	Hash      string          `json:"hash"`
	From      string          `json:"from"`
	To        string          `json:"to"` // empty for contract creation
	Input     string          `json:"input"`
	Value     decimal.Decimal `json:"value"` // wei
	Timestamp time.Time       `json:"timestamp"`
	ChainID   int64           `json:"chain_id"`
}

// ReceiptLog is a single log entry from a transaction receipt.
type ReceiptLog struct {
	Address string   `json:"address"`
	Topics  []string `json:"topics"`
	Data    string   `json:"data"`
}

// Receipt carries the optional execution result for a transaction. Absence of
// a receipt degrades classification, it never fails it.
type Receipt struct {
	Status  int          `json:"status"` // 1 success, 0 reverted
	GasUsed uint64       `json:"gas_used"`
	Logs    []ReceiptLog `json:"logs"`
}

// Succeeded reports whether the receipt indicates successful execution.
func (r *Receipt) Succeeded() bool {
	return r != nil && r.Status == 1
}

// ClassifiedTransaction is the classifier's normalized view of one observed
// transaction. Immutable after creation.
type ClassifiedTransaction struct {
	Hash            string              `json:"hash" db:"hash"`
	Timestamp       time.Time           `json:"timestamp" db:"timestamp"`
	From            string              `json:"from_address" db:"from_address"`
	To              string              `json:"to_address" db:"to_address"`
	MethodSignature string              `json:"method_signature" db:"method_signature"`
	Value           decimal.Decimal     `json:"value_wei" db:"value_wei"`
	Type            string              `json:"type" db:"type"`
	Protocol        *ProtocolDescriptor `json:"protocol,omitempty"`
	// Protocols touched through internal calls, resolved from receipt logs.
	TouchedProtocols []ProtocolDescriptor `json:"touched_protocols,omitempty"`
	Significance     int                  `json:"significance" db:"significance"` // 0-5
	BaseConfidence   float64              `json:"base_confidence" db:"base_confidence"`
}

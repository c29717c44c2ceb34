package analyzer

import (
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"github.com/sentinelfi/pioneerwatch/internal/models"
	"github.com/sentinelfi/pioneerwatch/internal/registry"
)

const maxSignificance = 5

var (
	oneEther = decimal.New(1, 18)
	tenEther = decimal.New(1, 19)
)

// Classifier turns raw transactions into normalized ClassifiedTransactions.
// Classification is pure and local: missing receipts or unknown protocols
// degrade the result, they never produce an error.
type Classifier struct {
	protocols *registry.ProtocolRegistry
	logger    *logrus.Logger
}

// NewClassifier creates a classifier backed by the given protocol registry.
func NewClassifier(protocols *registry.ProtocolRegistry, logger *logrus.Logger) *Classifier {
	return &Classifier{protocols: protocols, logger: logger}
}

// Classify inspects one transaction plus its optional receipt and produces
// the normalized classification used by the rest of the pipeline.
func (c *Classifier) Classify(tx *models.RawTransaction, receipt *models.Receipt) models.ClassifiedTransaction {
	payload := stripHexPrefix(tx.Input)

	classified := models.ClassifiedTransaction{
		Hash:            tx.Hash,
		Timestamp:       tx.Timestamp,
		From:            models.NormalizeAddress(tx.From),
		To:              models.NormalizeAddress(tx.To),
		MethodSignature: methodSignature(tx.Input),
		Value:           tx.Value,
	}

	var protocol *models.ProtocolDescriptor
	if classified.To != "" {
		if desc, ok := c.protocols.Resolve(classified.To); ok {
			protocol = &desc
		}
	}
	classified.Protocol = protocol
	classified.TouchedProtocols = c.touchedProtocols(receipt)

	patternType := detectPatternType(tx.Input)
	classified.Type = determineType(payload, patternType, classified.To)
	classified.Significance = significance(tx, receipt, payload)
	classified.BaseConfidence = baseConfidence(payload, patternType, protocol)

	if c.logger != nil {
		c.logger.WithFields(logrus.Fields{
			"hash":         tx.Hash,
			"type":         classified.Type,
			"significance": classified.Significance,
			"confidence":   classified.BaseConfidence,
		}).Debug("Classified transaction")
	}
	return classified
}

// touchedProtocols resolves every distinct log emitter against the registry.
// A transaction can touch several protocols through internal calls.
func (c *Classifier) touchedProtocols(receipt *models.Receipt) []models.ProtocolDescriptor {
	if receipt == nil {
		return nil
	}
	seen := make(map[string]bool)
	var touched []models.ProtocolDescriptor
	for _, lg := range receipt.Logs {
		addr := models.NormalizeAddress(lg.Address)
		if seen[addr] {
			continue
		}
		seen[addr] = true
		if desc, ok := c.protocols.Resolve(addr); ok {
			touched = append(touched, desc)
		}
	}
	return touched
}

// significance scores 0-5 additively from value, receipt complexity, input
// size, and gas usage.
func significance(tx *models.RawTransaction, receipt *models.Receipt, payload string) int {
	score := 0

	if tx.Value.GreaterThan(tenEther) {
		score += 2
	} else if tx.Value.GreaterThan(oneEther) {
		score++
	}

	if receipt != nil && len(receipt.Logs) > 5 {
		score++
	}
	if payloadBytes(payload) > 1000 {
		score++
	}
	if receipt != nil && receipt.GasUsed > 500_000 {
		score++
	}

	if score > maxSignificance {
		return maxSignificance
	}
	return score
}

// baseConfidence starts at 0.5 and adds bonuses for a resolved protocol, a
// known pattern signature, and substantial input data. Capped at 1.
func baseConfidence(payload, patternType string, protocol *models.ProtocolDescriptor) float64 {
	confidence := 0.5
	if protocol != nil {
		confidence += 0.2
	}
	if patternType != "" {
		confidence += 0.2
	}
	if payloadBytes(payload) > 100 {
		confidence += 0.1
	}
	if confidence > 1 {
		return 1
	}
	return confidence
}

// detectPatternType returns the first transaction type whose known selector
// appears anywhere in the input data, or "".
func detectPatternType(input string) string {
	data := strings.ToLower(input)
	for _, typ := range patternSignatureOrder {
		for _, sig := range patternSignatures[typ] {
			if strings.Contains(data, strings.TrimPrefix(sig, "0x")) {
				return typ
			}
		}
	}
	return ""
}

// determineType labels the transaction: pattern type when a selector matched,
// transfer for empty or near-empty payloads, contract_interaction otherwise
// (including contract creation, where to is absent).
func determineType(payload, patternType, to string) string {
	if patternType != "" {
		return patternType
	}
	if to != "" && payloadBytes(payload) <= 1 {
		return models.TxTypeTransfer
	}
	return models.TxTypeContractInteraction
}

func methodSignature(input string) string {
	payload := stripHexPrefix(input)
	if len(payload) < 8 {
		return ""
	}
	return "0x" + strings.ToLower(payload[:8])
}

func stripHexPrefix(s string) string {
	if strings.HasPrefix(s, "0x") || strings.HasPrefix(s, "0X") {
		return s[2:]
	}
	return s
}

func payloadBytes(payload string) int {
	return len(payload) / 2
}

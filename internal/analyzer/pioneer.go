package analyzer

import (
	"context"
	"fmt"
	"strings"

	"github.com/sentinelfi/pioneerwatch/internal/models"
	"github.com/sentinelfi/pioneerwatch/internal/registry"
)

// pioneerPatterns is the fixed table of single-transaction pioneer behaviors
// and their base confidences.
var pioneerPatterns = map[string]models.PioneerPattern{
	"early_protocol_interaction": {
		Type:       "early_protocol_interaction",
		Name:       "Early Protocol Interaction",
		Confidence: 0.8,
		Category:   models.CategoryProtocolScout,
	},
	"first_liquidity_provision": {
		Type:       "first_liquidity_provision",
		Name:       "First Liquidity Provision",
		Confidence: 0.85,
		Category:   models.CategoryProtocolScout,
	},
	"complex_yield_strategy": {
		Type:       "complex_yield_strategy",
		Name:       "Complex Yield Strategy",
		Confidence: 0.75,
		Category:   models.CategoryYieldOpportunist,
	},
	"recursive_lending": {
		Type:       "recursive_lending",
		Name:       "Recursive Lending Strategy",
		Confidence: 0.8,
		Category:   models.CategoryYieldOpportunist,
	},
	"cross_chain_arb": {
		Type:       "cross_chain_arb",
		Name:       "Cross-Chain Arbitrage",
		Confidence: 0.9,
		Category:   models.CategoryCrossChainArb,
	},
	"bridge_exploitation": {
		Type:       "bridge_exploitation",
		Name:       "Bridge Opportunity Exploitation",
		Confidence: 0.85,
		Category:   models.CategoryCrossChainArb,
	},
	"rwa_integration": {
		Type:       "rwa_integration",
		Name:       "RWA Integration",
		Confidence: 0.7,
		Category:   models.CategoryRWAInnovation,
	},
	"rwa_yield_strategy": {
		Type:       "rwa_yield_strategy",
		Name:       "RWA Yield Strategy",
		Confidence: 0.75,
		Category:   models.CategoryRWAInnovation,
	},
	"treasury_rebalancing": {
		Type:       "treasury_rebalancing",
		Name:       "Treasury Rebalancing",
		Confidence: 0.9,
		Category:   models.CategoryTreasuryManagement,
	},
	"revenue_distribution": {
		Type:       "revenue_distribution",
		Name:       "Revenue Distribution",
		Confidence: 0.95,
		Category:   models.CategoryTreasuryManagement,
	},
}

// PioneerDetector runs the coarse single-transaction pioneer check used for
// immediate categorization, independent of the sliding-window matcher.
type PioneerDetector struct {
	protocols *registry.ProtocolRegistry
	sightings registry.ProtocolSightings
}

// NewPioneerDetector creates a detector over the given registry and
// protocol-sightings source.
func NewPioneerDetector(protocols *registry.ProtocolRegistry, sightings registry.ProtocolSightings) *PioneerDetector {
	return &PioneerDetector{protocols: protocols, sightings: sightings}
}

// Detect evaluates the pioneer checks in fixed priority order; the first
// match wins and later checks are not evaluated. A nil result is the common,
// expected outcome, not an error. Without a receipt no check can run.
func (d *PioneerDetector) Detect(ctx context.Context, tx *models.RawTransaction, receipt *models.Receipt) (*models.PioneerPattern, error) {
	if tx == nil || receipt == nil {
		return nil, nil
	}

	to := models.NormalizeAddress(tx.To)
	data := strings.ToLower(tx.Input)

	// 1. New protocol interaction. Plain value transfers are excluded: a
	// never-seen EOA is not a protocol.
	if to != "" && payloadBytes(stripHexPrefix(tx.Input)) > 1 {
		seen, err := d.sightings.Seen(ctx, to)
		if err != nil {
			return nil, fmt.Errorf("protocol sightings lookup: %w", err)
		}
		if !seen {
			p := pioneerPatterns["early_protocol_interaction"]
			return &p, nil
		}
	}

	// 2. Complex yield strategy: several contracts touched plus yield intent.
	if distinctLogEmitters(receipt) >= 3 && containsSelectorFrom(data, yieldIntentTypes) {
		p := pioneerPatterns["complex_yield_strategy"]
		return &p, nil
	}

	// 3. Bridge hop followed by a swap at a different address.
	if d.protocols.IsBridge(to) && hasForeignSwapLog(receipt, to) {
		p := pioneerPatterns["cross_chain_arb"]
		return &p, nil
	}

	// 4. RWA protocol interaction.
	if d.protocols.IsRWA(to) {
		key := "rwa_integration"
		if containsSelectorFrom(data, rwaYieldIntentTypes) {
			key = "rwa_yield_strategy"
		}
		p := pioneerPatterns[key]
		return &p, nil
	}

	// 5. Treasury operation selector.
	if treasuryOperationSigs[methodSignature(tx.Input)] {
		key := "treasury_rebalancing"
		if methodSignature(tx.Input) == allocateSelector {
			key = "revenue_distribution"
		}
		p := pioneerPatterns[key]
		return &p, nil
	}

	return nil, nil
}

func distinctLogEmitters(receipt *models.Receipt) int {
	seen := make(map[string]bool)
	for _, lg := range receipt.Logs {
		seen[models.NormalizeAddress(lg.Address)] = true
	}
	return len(seen)
}

// hasForeignSwapLog reports whether any swap event was emitted by an address
// other than the bridge itself.
func hasForeignSwapLog(receipt *models.Receipt, bridge string) bool {
	for _, lg := range receipt.Logs {
		if len(lg.Topics) == 0 {
			continue
		}
		if swapEventTopics[strings.ToLower(lg.Topics[0])] && models.NormalizeAddress(lg.Address) != bridge {
			return true
		}
	}
	return false
}

// Calldata is hex, so intent refinements match on the 4-byte selector groups
// from signatures.go rather than on ASCII keywords.
var (
	yieldIntentTypes    = []string{"harvest", "stake"}
	rwaYieldIntentTypes = []string{"borrow", "harvest"}
)

func containsSelectorFrom(data string, types []string) bool {
	for _, typ := range types {
		for _, sig := range patternSignatures[typ] {
			if strings.Contains(data, strings.TrimPrefix(sig, "0x")) {
				return true
			}
		}
	}
	return false
}

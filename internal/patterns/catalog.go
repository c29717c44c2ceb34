package patterns

import (
	"time"

	"github.com/sentinelfi/pioneerwatch/internal/models"
)

// Definition describes one multi-transaction behavioral pattern: the
// transaction types that must all appear inside the time window, and the
// minimum confidence a match must reach to be reported.
type Definition struct {
	Type          string
	Name          string
	Category      models.PioneerCategory
	RequiredTypes []string
	Window        time.Duration
	MinConfidence float64
}

// Catalog is the fixed pattern table, evaluated in order on every new
// transaction.
var Catalog = []Definition{
	{
		Type:          "early_protocol_adoption",
		Name:          "Early Protocol Adoption",
		Category:      models.CategoryProtocolScout,
		RequiredTypes: []string{"deposit", "stake", "approve"},
		Window:        7 * 24 * time.Hour,
		MinConfidence: 0.65,
	},
	{
		Type:          "protocol_tvl_growth",
		Name:          "Protocol TVL Growth Participation",
		Category:      models.CategoryProtocolScout,
		RequiredTypes: []string{"deposit", "provide_liquidity"},
		Window:        24 * time.Hour,
		MinConfidence: 0.70,
	},
	{
		Type:          "complex_yield_strategy",
		Name:          "Complex Yield Strategy",
		Category:      models.CategoryYieldOpportunist,
		RequiredTypes: []string{"borrow", "deposit", "stake", "leverage"},
		Window:        30 * time.Minute,
		MinConfidence: 0.80,
	},
	{
		Type:          "recursive_lending",
		Name:          "Recursive Lending",
		Category:      models.CategoryYieldOpportunist,
		RequiredTypes: []string{"borrow", "deposit", "leverage"},
		Window:        time.Hour,
		MinConfidence: 0.75,
	},
	{
		Type:          "cross_chain_arb",
		Name:          "Cross-Chain Arbitrage",
		Category:      models.CategoryCrossChainArb,
		RequiredTypes: []string{"bridge", "swap", "transfer"},
		Window:        15 * time.Minute,
		MinConfidence: 0.85,
	},
	{
		Type:          "bridge_exploitation",
		Name:          "Bridge Opportunity Exploitation",
		Category:      models.CategoryCrossChainArb,
		RequiredTypes: []string{"bridge", "swap"},
		Window:        30 * time.Minute,
		MinConfidence: 0.80,
	},
	{
		Type:          "rwa_integration",
		Name:          "RWA Integration",
		Category:      models.CategoryRWAInnovation,
		RequiredTypes: []string{"mint", "deposit", "collateralize"},
		Window:        24 * time.Hour,
		MinConfidence: 0.75,
	},
	{
		Type:          "rwa_yield_strategy",
		Name:          "RWA Yield Strategy",
		Category:      models.CategoryRWAInnovation,
		RequiredTypes: []string{"deposit", "borrow", "stake"},
		Window:        2 * time.Hour,
		MinConfidence: 0.70,
	},
	{
		Type:          "treasury_management",
		Name:          "Treasury Management",
		Category:      models.CategoryTreasuryManagement,
		RequiredTypes: []string{"transfer", "swap", "stake"},
		Window:        24 * time.Hour,
		MinConfidence: 0.90,
	},
	{
		Type:          "protocol_owned_liquidity",
		Name:          "Protocol-Owned Liquidity Management",
		Category:      models.CategoryTreasuryManagement,
		RequiredTypes: []string{"provide_liquidity", "remove_liquidity", "stake"},
		Window:        12 * time.Hour,
		MinConfidence: 0.85,
	},
}

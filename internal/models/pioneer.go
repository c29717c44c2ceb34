package models

import "time"

// PioneerCategory is the closed set of behavioral archetypes a wallet can be
// tagged with.
type PioneerCategory string

const (
	CategoryProtocolScout      PioneerCategory = "Protocol_Scout"
	CategoryYieldOpportunist   PioneerCategory = "Yield_Opportunist"
	CategoryCrossChainArb      PioneerCategory = "Cross_Chain_Arbitrage"
	CategoryRWAInnovation      PioneerCategory = "RWA_Innovation"
	CategoryTreasuryManagement PioneerCategory = "Treasury_Management"
)

// AllCategories lists every pioneer category in threshold-evaluation order.
var AllCategories = []PioneerCategory{
	CategoryProtocolScout,
	CategoryYieldOpportunist,
	CategoryCrossChainArb,
	CategoryRWAInnovation,
	CategoryTreasuryManagement,
}

// Valid reports whether c is one of the five known categories.
func (c PioneerCategory) Valid() bool {
	switch c {
	case CategoryProtocolScout, CategoryYieldOpportunist, CategoryCrossChainArb,
		CategoryRWAInnovation, CategoryTreasuryManagement:
		return true
	}
	return false
}

// PioneerMetrics holds the derived per-wallet category scores. All rates are
// in [0, 1]; YieldOptimizationROI is a plain ratio (0.15 == 15%).
type PioneerMetrics struct {
	EarlyAdoptionSuccess    float64 `json:"early_adoption_success" db:"early_adoption_success"`
	YieldOptimizationROI    float64 `json:"yield_optimization_roi" db:"yield_optimization_roi"`
	CrossChainEfficiency    float64 `json:"cross_chain_efficiency" db:"cross_chain_efficiency"`
	RWAInnovationScore      float64 `json:"rwa_innovation_score" db:"rwa_innovation_score"`
	TreasuryManagementScore float64 `json:"treasury_management_score" db:"treasury_management_score"`
	SuccessRate             float64 `json:"success_rate" db:"success_rate"`
	TotalTransactions       int64   `json:"total_transactions" db:"total_transactions"`
}

// ProtocolDiscovery records a wallet's first touch of a protocol.
type ProtocolDiscovery struct {
	Protocol  string    `json:"protocol"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
}

// StrategyDeployment records one detected strategy execution.
type StrategyDeployment struct {
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Success   bool      `json:"success"`
	ROI       *float64  `json:"roi,omitempty"`
}

// ChainActivity aggregates a wallet's activity on one chain.
type ChainActivity struct {
	Chain            string    `json:"chain"`
	TransactionCount int64     `json:"transaction_count"`
	SuccessRate      float64   `json:"success_rate"`
	LastActive       time.Time `json:"last_active"`
}

// PioneerRecord is the accumulated history and derived metrics for one wallet.
// Created lazily on the first event for a wallet; metrics and categories are
// fully recomputed from the history on every mutating event.
type PioneerRecord struct {
	WalletAddress       string               `json:"wallet_address" db:"wallet_address"`
	Categories          []PioneerCategory    `json:"categories" db:"categories"`
	Metrics             PioneerMetrics       `json:"metrics"`
	DiscoveredProtocols []ProtocolDiscovery  `json:"discovered_protocols"`
	StrategyDeployments []StrategyDeployment `json:"strategy_deployments"`
	ChainActivity       []ChainActivity      `json:"chain_activity"`
	UpdatedAt           time.Time            `json:"updated_at" db:"updated_at"`
}

// HasCategory reports whether the record currently carries category c.
func (p *PioneerRecord) HasCategory(c PioneerCategory) bool {
	for _, have := range p.Categories {
		if have == c {
			return true
		}
	}
	return false
}

// Clone returns a deep copy so recomputation can stage a full replacement
// record and swap it in atomically.
func (p *PioneerRecord) Clone() *PioneerRecord {
	out := *p
	out.Categories = append([]PioneerCategory(nil), p.Categories...)
	out.DiscoveredProtocols = append([]ProtocolDiscovery(nil), p.DiscoveredProtocols...)
	out.StrategyDeployments = append([]StrategyDeployment(nil), p.StrategyDeployments...)
	out.ChainActivity = append([]ChainActivity(nil), p.ChainActivity...)
	return &out
}

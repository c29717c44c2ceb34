package models

import "time"

// ProtocolCategory classifies a registered protocol.
type ProtocolCategory string

const (
	ProtocolCategoryDEX     ProtocolCategory = "dex"
	ProtocolCategoryLending ProtocolCategory = "lending"
	ProtocolCategoryRWA     ProtocolCategory = "rwa"
	ProtocolCategoryBridge  ProtocolCategory = "bridge"
)

// ProtocolDescriptor maps one on-chain address to a named protocol. Immutable
// once registered; several addresses (router versions, pools) may share a
// protocol name.
type ProtocolDescriptor struct {
	Address  string           `json:"address" db:"address"`
	Name     string           `json:"name" db:"name"`
	Category ProtocolCategory `json:"category" db:"category"`
}

// PioneerInteraction is the running per-pioneer record inside a
// SharedProtocolRecord.
type PioneerInteraction struct {
	Address          string    `json:"address"`
	FirstInteraction time.Time `json:"first_interaction"`
	LastInteraction  time.Time `json:"last_interaction"`
	InteractionCount int64     `json:"interaction_count"`
	SuccessRate      float64   `json:"success_rate"`
}

// TVLPoint is one sample of a protocol's total value locked.
type TVLPoint struct {
	Timestamp time.Time `json:"timestamp"`
	Value     float64   `json:"value"`
}

// SharedProtocolRecord aggregates all tracked pioneer activity against one
// protocol address. Created on first interaction with a never-before-seen
// address.
type SharedProtocolRecord struct {
	ProtocolAddress    string               `json:"protocol_address" db:"protocol_address"`
	ProtocolName       string               `json:"protocol_name" db:"protocol_name"`
	Pioneers           []PioneerInteraction `json:"pioneers"`
	TotalPioneers      int64                `json:"total_pioneers" db:"total_pioneers"`
	AvgSuccessRate     float64              `json:"avg_success_rate" db:"avg_success_rate"`
	RiskScore          float64              `json:"risk_score" db:"risk_score"`
	DiscoveryTimestamp time.Time            `json:"discovery_timestamp" db:"discovery_timestamp"`
	LastActivity       time.Time            `json:"last_activity" db:"last_activity"`
	TVLTrend           []TVLPoint           `json:"tvl_trend"`
	RelatedTokens      []string             `json:"related_tokens"`
}

// FindPioneer returns the interaction sub-entry for addr, or nil.
func (s *SharedProtocolRecord) FindPioneer(addr string) *PioneerInteraction {
	for i := range s.Pioneers {
		if s.Pioneers[i].Address == addr {
			return &s.Pioneers[i]
		}
	}
	return nil
}

// Clone returns a deep copy of the record.
func (s *SharedProtocolRecord) Clone() *SharedProtocolRecord {
	out := *s
	out.Pioneers = append([]PioneerInteraction(nil), s.Pioneers...)
	out.TVLTrend = append([]TVLPoint(nil), s.TVLTrend...)
	out.RelatedTokens = append([]string(nil), s.RelatedTokens...)
	return &out
}

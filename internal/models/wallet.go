package models

import "time"

// WalletRecord is the wallet registry's view of a monitored wallet. The
// registry is an external collaborator; the pipeline only reads the overall
// success aggregates from it.
type WalletRecord struct {
	Address           string    `json:"address" db:"address"`
	Label             string    `json:"label,omitempty" db:"label"`
	FirstSeen         time.Time `json:"first_seen" db:"first_seen"`
	LastActive        time.Time `json:"last_active" db:"last_active"`
	SuccessRate       float64   `json:"success_rate" db:"success_rate"`
	TotalTransactions int64     `json:"total_transactions" db:"total_transactions"`
	Tags              []string  `json:"tags,omitempty"`
}

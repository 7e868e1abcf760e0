package domain

import (
	"time"
)

// EligibilityRecord represents one voter's standing in one election. Exactly
// one record exists per (voter, election) pair; has_voted transitions
// false to true at most once.
type EligibilityRecord struct {
	VoterID    string     `json:"voter_id"`
	ElectionID string     `json:"election_id"`
	HasVoted   bool       `json:"has_voted"`
	VotedAt    *time.Time `json:"voted_at,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
}

// EligibilityStatus represents the answer to an eligibility check
type EligibilityStatus struct {
	Eligible bool `json:"eligible"`
	HasVoted bool `json:"has_voted"`
}

package domain

import (
	"time"
)

// ElectionStatus represents the lifecycle state of an election
type ElectionStatus string

const (
	ElectionStatusDraft  ElectionStatus = "draft"
	ElectionStatusActive ElectionStatus = "active"
	ElectionStatusClosed ElectionStatus = "closed"
)

// Election represents a single election voters cast ballots in
type Election struct {
	ID          string         `json:"id"`
	Title       string         `json:"title"`
	Description string         `json:"description,omitempty"`
	Status      ElectionStatus `json:"status"`
	StartsAt    *time.Time     `json:"starts_at,omitempty"`
	EndsAt      *time.Time     `json:"ends_at,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
	UpdatedAt   time.Time      `json:"updated_at"`
}

// IsActive reports whether the election accepts ballots at the given time
func (e *Election) IsActive(now time.Time) bool {
	if e.Status != ElectionStatusActive {
		return false
	}
	if e.StartsAt != nil && now.Before(*e.StartsAt) {
		return false
	}
	if e.EndsAt != nil && now.After(*e.EndsAt) {
		return false
	}
	return true
}

// Candidate represents one choice on an election's ballot
type Candidate struct {
	ID         string    `json:"id"`
	ElectionID string    `json:"election_id"`
	Name       string    `json:"name"`
	Position   int       `json:"position"`
	CreatedAt  time.Time `json:"created_at"`
}

package domain

import (
	"bytes"
	"encoding/json"
	"time"
)

// CandidateResult is one row of a tallied election. The camelCase keys match
// the persisted results format consumed by existing clients.
type CandidateResult struct {
	CandidateID   string  `json:"candidateId"`
	CandidateName string  `json:"candidateName"`
	Votes         int     `json:"votes"`
	Percentage    float64 `json:"percentage"`
}

// ResultsPayload is the persisted results column. Two shapes exist on disk:
// a legacy flat list of candidate rows, and the current object carrying the
// list plus tie metadata. UnmarshalJSON accepts both; marshaling always
// writes the current shape.
type ResultsPayload struct {
	List           []CandidateResult `json:"list"`
	Tie            bool              `json:"tie"`
	TiedCandidates []string          `json:"tiedCandidates,omitempty"`
}

// UnmarshalJSON accepts both the legacy flat-list shape and the current
// object shape
func (p *ResultsPayload) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimLeft(data, " \t\r\n")
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []CandidateResult
		if err := json.Unmarshal(data, &list); err != nil {
			return err
		}
		p.List = list
		p.Tie = false
		p.TiedCandidates = nil
		return nil
	}
	type payloadAlias ResultsPayload
	var a payloadAlias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*p = ResultsPayload(a)
	return nil
}

// ResultSnapshot represents the persisted outcome of a tally run for one
// election. Re-running the tally overwrites it until proclamation; the
// proclamation flag is the only field a proclaim touches.
type ResultSnapshot struct {
	ElectionID        string         `json:"election_id"`
	TotalVotes        int            `json:"total_votes"`
	FailedDecryptions int            `json:"failed_decryptions"`
	Results           ResultsPayload `json:"results"`
	WinnerID          *string        `json:"winner_id,omitempty"`
	WinnerName        *string        `json:"winner_name,omitempty"`
	Proclaimed        bool           `json:"proclaimed"`
	ProclaimedAt      *time.Time     `json:"proclaimed_at,omitempty"`
	TalliedAt         time.Time      `json:"tallied_at"`
}

// DecisionType represents the kind of tie-break action taken
type DecisionType string

const (
	DecisionSecondRound        DecisionType = "second_round"
	DecisionRandomDraw         DecisionType = "random_draw"
	DecisionRegulatoryDecision DecisionType = "regulatory_decision"
)

// Decision is one entry of the append-only tie-break audit log
type Decision struct {
	ID           string          `json:"id"`
	ElectionID   string          `json:"election_id"`
	DecisionType DecisionType    `json:"decision_type"`
	Payload      json.RawMessage `json:"payload"`
	DecidedBy    string          `json:"decided_by"`
	DecidedAt    time.Time       `json:"decided_at"`
}

// TieBreakRequest represents a tie-resolution request
type TieBreakRequest struct {
	Action            DecisionType `json:"action"`
	CandidateIDs      []string     `json:"candidate_ids,omitempty"`
	ChosenCandidateID string       `json:"chosen_candidate_id,omitempty"`
	Justification     string       `json:"justification,omitempty"`
}

// TieBreakResult represents the outcome of a tie-resolution action
type TieBreakResult struct {
	Action        DecisionType `json:"action"`
	WinnerID      *string      `json:"winner_id,omitempty"`
	WinnerName    *string      `json:"winner_name,omitempty"`
	NewElectionID string       `json:"new_election_id,omitempty"`
	DecisionID    string       `json:"decision_id"`
}

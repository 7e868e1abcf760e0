package repository

import (
	"context"

	"github.com/stone-hackingod/backend-votux/internal/domain"
)

// EligibilityLedger is the structured side of the dual-store separation: it
// records who may vote in which election and whether they already have. It
// never sees ballot content.
type EligibilityLedger interface {
	// Check reports eligibility and voted status for one (voter, election)
	// pair. A missing record yields eligible=false.
	Check(ctx context.Context, voterID, electionID string) (*domain.EligibilityStatus, error)

	// MarkVoted transitions has_voted false to true in a single atomic
	// check-and-set. Returns domain.ErrAlreadyVoted if the flag was already
	// set and domain.ErrNotEligible if no record exists.
	MarkVoted(ctx context.Context, voterID, electionID string) error

	// AddEligible inserts records for the given voters, skipping pairs that
	// already exist. Returns the number of records actually created.
	AddEligible(ctx context.Context, electionID string, voterIDs []string) (int64, error)

	// RemoveEligible deletes one record. Returns domain.ErrHasVoted if the
	// voter has already voted and domain.ErrEligibilityNotFound if no
	// record exists.
	RemoveEligible(ctx context.Context, voterID, electionID string) error

	// CountVoted returns how many voters are marked as having voted
	CountVoted(ctx context.Context, electionID string) (int, error)
}

// BallotVault is the anonymous side of the dual-store separation: an
// append-only store of encrypted ballots with no voter reference and no
// join path back to the ledger.
type BallotVault interface {
	// Append stores one new ballot. Returns domain.ErrDuplicateVoteHash if
	// a ballot under the same hash already exists.
	Append(ctx context.Context, ballot *domain.Ballot) error

	// CountForElection returns the number of ballots stored for an election
	CountForElection(ctx context.Context, electionID string) (int, error)

	// AllForElection returns a lazy cursor over one election's ballots,
	// consumed once per tally pass
	AllForElection(ctx context.Context, electionID string) (BallotCursor, error)

	// FindByHash retrieves a ballot by its vote hash for receipt
	// verification. Returns (nil, nil) when no ballot matches.
	FindByHash(ctx context.Context, voteHash string) (*domain.Ballot, error)

	// DeleteAllForElection removes every ballot of an election. Only the
	// election-teardown collaborator calls this, never the voting or tally
	// paths.
	DeleteAllForElection(ctx context.Context, electionID string) (int64, error)
}

// BallotCursor walks one election's ballots lazily
type BallotCursor interface {
	// Next advances the cursor, returning false when the sequence is
	// exhausted or iteration failed
	Next() bool

	// Ballot returns the ballot at the current position
	Ballot() *domain.Ballot

	// Err returns the first error encountered while iterating
	Err() error

	// Close releases the underlying rows
	Close()
}

// ElectionStore provides the election and candidate reads the ballot
// protocol needs, plus second-round creation for tie resolution
type ElectionStore interface {
	// GetElection retrieves one election, (nil, nil) when absent
	GetElection(ctx context.Context, electionID string) (*domain.Election, error)

	// ListCandidates returns an election's candidates in ballot order
	ListCandidates(ctx context.Context, electionID string) ([]domain.Candidate, error)

	// GetCandidate retrieves one candidate scoped to an election,
	// (nil, nil) when absent
	GetCandidate(ctx context.Context, electionID, candidateID string) (*domain.Candidate, error)

	// CreateSecondRound persists a new draft election, its candidates and
	// the decision linking it to the original in one transaction, so a
	// second round cannot appear without its audit record
	CreateSecondRound(ctx context.Context, newElection *domain.Election, candidates []domain.Candidate, decision *domain.Decision) error
}

// ResultStore persists tally snapshots and the append-only decision log
type ResultStore interface {
	// UpsertSnapshot writes a snapshot keyed by election, overwriting any
	// previous run's content. Proclamation fields are left untouched.
	UpsertSnapshot(ctx context.Context, snapshot *domain.ResultSnapshot) error

	// GetSnapshot retrieves the persisted snapshot, (nil, nil) when absent
	GetSnapshot(ctx context.Context, electionID string) (*domain.ResultSnapshot, error)

	// SetWinnerWithDecision writes the winner and the decision record in
	// one transaction so neither can apply without the other
	SetWinnerWithDecision(ctx context.Context, electionID, winnerID, winnerName string, decision *domain.Decision) error

	// Proclaim flips the proclaimed flag, keeping the first proclaimed_at.
	// Returns domain.ErrSnapshotNotFound if no snapshot exists.
	Proclaim(ctx context.Context, electionID string) (*domain.ResultSnapshot, error)

	// ListDecisions returns an election's decisions oldest first
	ListDecisions(ctx context.Context, electionID string) ([]domain.Decision, error)
}

// Repositories aggregates the storage ports. Ledger-side stores share one
// pool; the vault runs on its own.
type Repositories struct {
	Eligibility EligibilityLedger
	Ballots     BallotVault
	Elections   ElectionStore
	Results     ResultStore
}

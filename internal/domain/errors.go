package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotEligible means no eligibility record exists for the voter in
	// this election
	ErrNotEligible = errors.New("voter is not eligible for this election")

	// ErrAlreadyVoted means the eligibility record is already marked voted
	ErrAlreadyVoted = errors.New("voter has already cast a ballot in this election")

	// ErrElectionNotFound means the election does not exist
	ErrElectionNotFound = errors.New("election not found")

	// ErrElectionNotActive means the election is not accepting ballots
	ErrElectionNotActive = errors.New("election is not accepting ballots")

	// ErrInvalidCandidate means the candidate does not belong to the election
	ErrInvalidCandidate = errors.New("candidate does not belong to this election")

	// ErrDuplicateVoteHash means the vault already holds a ballot under the
	// same hash; the caller may regenerate the fingerprint once
	ErrDuplicateVoteHash = errors.New("vote hash already exists")

	// ErrEligibilityNotFound means there is no record to remove
	ErrEligibilityNotFound = errors.New("eligibility record not found")

	// ErrHasVoted means eligibility cannot be removed after the vote was cast
	ErrHasVoted = errors.New("eligibility cannot be removed after the vote was cast")

	// ErrSnapshotNotFound means no tally has been persisted for the election
	ErrSnapshotNotFound = errors.New("no result snapshot for this election")

	// ErrSnapshotProclaimed means the snapshot is official and frozen
	ErrSnapshotProclaimed = errors.New("result snapshot is already proclaimed")

	// ErrNoTieToResolve means the latest snapshot is not an unresolved tie
	ErrNoTieToResolve = errors.New("latest snapshot is not an unresolved tie")

	// ErrTallyInProgress means another tally holds the per-election lock
	ErrTallyInProgress = errors.New("a tally is already running for this election")

	// ErrReceiptNotFound means no ballot matches the presented vote hash
	ErrReceiptNotFound = errors.New("no ballot matches this receipt")

	// ErrCandidateNotTied means a tie-break named a candidate outside the
	// tied set
	ErrCandidateNotTied = errors.New("candidate is not in the tied set")
)

// CryptoError represents a key-derivation or cipher failure. A failed
// decrypt means "undecryptable", never "zero votes".
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("crypto %s: %v", e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error {
	return e.Err
}

// NewCryptoError wraps err as a cipher failure in operation op
func NewCryptoError(op string, err error) *CryptoError {
	return &CryptoError{Op: op, Err: err}
}

// ConsistencyError represents a ledger/vault count mismatch. It aborts the
// tally run, exposes both counts for operator diagnosis and is never
// resolved automatically.
type ConsistencyError struct {
	ElectionID  string
	LedgerCount int
	VaultCount  int
}

func (e *ConsistencyError) Error() string {
	return fmt.Sprintf("ballot count mismatch for election %s: ledger=%d vault=%d",
		e.ElectionID, e.LedgerCount, e.VaultCount)
}

package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/stone-hackingod/backend-votux/internal/domain"
	"github.com/stone-hackingod/backend-votux/internal/repository"
)

// In-memory ports backing the service tests. Zero values behave like
// empty stores; the err fields inject failures.

type fakeLedger struct {
	mu      sync.Mutex
	records map[string]*domain.EligibilityRecord

	checkErr     error
	markVotedErr error
}

func newFakeLedger() *fakeLedger {
	return &fakeLedger{records: make(map[string]*domain.EligibilityRecord)}
}

func ledgerKey(voterID, electionID string) string {
	return voterID + "|" + electionID
}

func (f *fakeLedger) addVoter(voterID, electionID string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.records[ledgerKey(voterID, electionID)] = &domain.EligibilityRecord{
		VoterID:    voterID,
		ElectionID: electionID,
	}
}

func (f *fakeLedger) Check(ctx context.Context, voterID, electionID string) (*domain.EligibilityStatus, error) {
	if f.checkErr != nil {
		return nil, f.checkErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[ledgerKey(voterID, electionID)]
	if !ok {
		return &domain.EligibilityStatus{}, nil
	}
	return &domain.EligibilityStatus{Eligible: true, HasVoted: rec.HasVoted}, nil
}

func (f *fakeLedger) MarkVoted(ctx context.Context, voterID, electionID string) error {
	if f.markVotedErr != nil {
		return f.markVotedErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[ledgerKey(voterID, electionID)]
	if !ok {
		return domain.ErrNotEligible
	}
	if rec.HasVoted {
		return domain.ErrAlreadyVoted
	}
	now := time.Now().UTC()
	rec.HasVoted = true
	rec.VotedAt = &now
	return nil
}

func (f *fakeLedger) AddEligible(ctx context.Context, electionID string, voterIDs []string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var added int64
	for _, voterID := range voterIDs {
		key := ledgerKey(voterID, electionID)
		if _, ok := f.records[key]; ok {
			continue
		}
		f.records[key] = &domain.EligibilityRecord{VoterID: voterID, ElectionID: electionID}
		added++
	}
	return added, nil
}

func (f *fakeLedger) RemoveEligible(ctx context.Context, voterID, electionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	rec, ok := f.records[ledgerKey(voterID, electionID)]
	if !ok {
		return domain.ErrEligibilityNotFound
	}
	if rec.HasVoted {
		return domain.ErrHasVoted
	}
	delete(f.records, ledgerKey(voterID, electionID))
	return nil
}

func (f *fakeLedger) CountVoted(ctx context.Context, electionID string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, rec := range f.records {
		if rec.ElectionID == electionID && rec.HasVoted {
			count++
		}
	}
	return count, nil
}

type fakeVault struct {
	mu      sync.Mutex
	ballots []*domain.Ballot
	byHash  map[string]bool

	appendErr         error
	forceDupRemaining int
	countOverride     *int
}

func newFakeVault() *fakeVault {
	return &fakeVault{byHash: make(map[string]bool)}
}

func (f *fakeVault) Append(ctx context.Context, ballot *domain.Ballot) error {
	if f.appendErr != nil {
		return f.appendErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.forceDupRemaining > 0 {
		f.forceDupRemaining--
		return domain.ErrDuplicateVoteHash
	}
	if f.byHash[ballot.VoteHash] {
		return domain.ErrDuplicateVoteHash
	}
	stored := *ballot
	stored.CastAt = time.Now().UTC()
	ballot.CastAt = stored.CastAt
	f.byHash[stored.VoteHash] = true
	f.ballots = append(f.ballots, &stored)
	return nil
}

func (f *fakeVault) CountForElection(ctx context.Context, electionID string) (int, error) {
	if f.countOverride != nil {
		return *f.countOverride, nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	count := 0
	for _, b := range f.ballots {
		if b.ElectionID == electionID {
			count++
		}
	}
	return count, nil
}

func (f *fakeVault) AllForElection(ctx context.Context, electionID string) (repository.BallotCursor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var matched []*domain.Ballot
	for _, b := range f.ballots {
		if b.ElectionID == electionID {
			copied := *b
			matched = append(matched, &copied)
		}
	}
	return &fakeCursor{ballots: matched}, nil
}

func (f *fakeVault) FindByHash(ctx context.Context, voteHash string) (*domain.Ballot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, b := range f.ballots {
		if b.VoteHash == voteHash {
			copied := *b
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeVault) DeleteAllForElection(ctx context.Context, electionID string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var kept []*domain.Ballot
	var deleted int64
	for _, b := range f.ballots {
		if b.ElectionID == electionID {
			delete(f.byHash, b.VoteHash)
			deleted++
			continue
		}
		kept = append(kept, b)
	}
	f.ballots = kept
	return deleted, nil
}

// corruptBallot flips a byte of a stored ballot's auth tag
func (f *fakeVault) corruptBallot(index int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ballots[index].AuthTag[0] ^= 0xFF
}

type fakeCursor struct {
	ballots []*domain.Ballot
	idx     int
	err     error
}

func (c *fakeCursor) Next() bool {
	if c.err != nil || c.idx >= len(c.ballots) {
		return false
	}
	c.idx++
	return true
}

func (c *fakeCursor) Ballot() *domain.Ballot { return c.ballots[c.idx-1] }
func (c *fakeCursor) Err() error             { return c.err }
func (c *fakeCursor) Close()                 {}

type fakeElectionStore struct {
	mu         sync.Mutex
	elections  map[string]*domain.Election
	candidates map[string][]domain.Candidate

	createdElections  []*domain.Election
	createdCandidates [][]domain.Candidate
	createdDecisions  []*domain.Decision
}

func newFakeElectionStore() *fakeElectionStore {
	return &fakeElectionStore{
		elections:  make(map[string]*domain.Election),
		candidates: make(map[string][]domain.Candidate),
	}
}

func (f *fakeElectionStore) addActiveElection(electionID string, candidateIDs ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.elections[electionID] = &domain.Election{
		ID:     electionID,
		Title:  "Election " + electionID,
		Status: domain.ElectionStatusActive,
	}
	for i, id := range candidateIDs {
		f.candidates[electionID] = append(f.candidates[electionID], domain.Candidate{
			ID:         id,
			ElectionID: electionID,
			Name:       "Candidate " + id,
			Position:   i + 1,
		})
	}
}

func (f *fakeElectionStore) GetElection(ctx context.Context, electionID string) (*domain.Election, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	e, ok := f.elections[electionID]
	if !ok {
		return nil, nil
	}
	copied := *e
	return &copied, nil
}

func (f *fakeElectionStore) ListCandidates(ctx context.Context, electionID string) ([]domain.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]domain.Candidate, len(f.candidates[electionID]))
	copy(out, f.candidates[electionID])
	return out, nil
}

func (f *fakeElectionStore) GetCandidate(ctx context.Context, electionID, candidateID string) (*domain.Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.candidates[electionID] {
		if c.ID == candidateID {
			copied := c
			return &copied, nil
		}
	}
	return nil, nil
}

func (f *fakeElectionStore) CreateSecondRound(ctx context.Context, newElection *domain.Election, candidates []domain.Candidate, decision *domain.Decision) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.elections[newElection.ID]; ok {
		return fmt.Errorf("election %s already exists", newElection.ID)
	}
	now := time.Now().UTC()
	newElection.CreatedAt = now
	newElection.UpdatedAt = now
	decision.DecidedAt = now
	f.elections[newElection.ID] = newElection
	f.candidates[newElection.ID] = candidates
	f.createdElections = append(f.createdElections, newElection)
	f.createdCandidates = append(f.createdCandidates, candidates)
	f.createdDecisions = append(f.createdDecisions, decision)
	return nil
}

type fakeResultStore struct {
	mu        sync.Mutex
	snapshots map[string]*domain.ResultSnapshot
	decisions []*domain.Decision

	upsertErr error
}

func newFakeResultStore() *fakeResultStore {
	return &fakeResultStore{snapshots: make(map[string]*domain.ResultSnapshot)}
}

func (f *fakeResultStore) UpsertSnapshot(ctx context.Context, snapshot *domain.ResultSnapshot) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	stored := *snapshot
	if existing, ok := f.snapshots[snapshot.ElectionID]; ok {
		stored.Proclaimed = existing.Proclaimed
		stored.ProclaimedAt = existing.ProclaimedAt
	}
	f.snapshots[snapshot.ElectionID] = &stored
	return nil
}

func (f *fakeResultStore) GetSnapshot(ctx context.Context, electionID string) (*domain.ResultSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.snapshots[electionID]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (f *fakeResultStore) SetWinnerWithDecision(ctx context.Context, electionID, winnerID, winnerName string, decision *domain.Decision) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.snapshots[electionID]
	if !ok {
		return domain.ErrSnapshotNotFound
	}
	s.WinnerID = &winnerID
	s.WinnerName = &winnerName
	decision.DecidedAt = time.Now().UTC()
	f.decisions = append(f.decisions, decision)
	return nil
}

func (f *fakeResultStore) Proclaim(ctx context.Context, electionID string) (*domain.ResultSnapshot, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.snapshots[electionID]
	if !ok {
		return nil, domain.ErrSnapshotNotFound
	}
	if !s.Proclaimed {
		s.Proclaimed = true
		now := time.Now().UTC()
		s.ProclaimedAt = &now
	}
	copied := *s
	return &copied, nil
}

func (f *fakeResultStore) ListDecisions(ctx context.Context, electionID string) ([]domain.Decision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []domain.Decision
	for _, d := range f.decisions {
		if d.ElectionID == electionID {
			out = append(out, *d)
		}
	}
	return out, nil
}

package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/stone-hackingod/backend-votux/internal/domain"
	"github.com/stone-hackingod/backend-votux/internal/encryption"
	"github.com/stone-hackingod/backend-votux/internal/middleware"
	"github.com/stone-hackingod/backend-votux/internal/repository"
	"github.com/stone-hackingod/backend-votux/internal/service"
	"github.com/stone-hackingod/backend-votux/pkg/logger"
)

const (
	testSecret      = "0123456789abcdef0123456789abcdef"
	testAdminSecret = "admin-test-secret"
)

// memStore is a single in-memory backing store implementing all four
// repository ports, enough to drive the handlers end to end.
type memStore struct {
	mu          sync.Mutex
	eligibility map[string]*domain.EligibilityRecord
	ballots     []*domain.Ballot
	elections   map[string]*domain.Election
	candidates  map[string][]domain.Candidate
	snapshots   map[string]*domain.ResultSnapshot
	decisions   []domain.Decision
}

func newMemStore() *memStore {
	return &memStore{
		eligibility: make(map[string]*domain.EligibilityRecord),
		elections:   make(map[string]*domain.Election),
		candidates:  make(map[string][]domain.Candidate),
		snapshots:   make(map[string]*domain.ResultSnapshot),
	}
}

func (m *memStore) key(voterID, electionID string) string { return voterID + "|" + electionID }

func (m *memStore) seedActiveElection(electionID string, candidateIDs ...string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.elections[electionID] = &domain.Election{
		ID:     electionID,
		Title:  "Election " + electionID,
		Status: domain.ElectionStatusActive,
	}
	for i, id := range candidateIDs {
		m.candidates[electionID] = append(m.candidates[electionID], domain.Candidate{
			ID:         id,
			ElectionID: electionID,
			Name:       "Candidate " + id,
			Position:   i + 1,
		})
	}
}

func (m *memStore) seedVoter(voterID, electionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.eligibility[m.key(voterID, electionID)] = &domain.EligibilityRecord{
		VoterID:    voterID,
		ElectionID: electionID,
	}
}

func (m *memStore) Check(ctx context.Context, voterID, electionID string) (*domain.EligibilityStatus, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.eligibility[m.key(voterID, electionID)]
	if !ok {
		return &domain.EligibilityStatus{}, nil
	}
	return &domain.EligibilityStatus{Eligible: true, HasVoted: rec.HasVoted}, nil
}

func (m *memStore) MarkVoted(ctx context.Context, voterID, electionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.eligibility[m.key(voterID, electionID)]
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

func (m *memStore) AddEligible(ctx context.Context, electionID string, voterIDs []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var added int64
	for _, voterID := range voterIDs {
		if _, ok := m.eligibility[m.key(voterID, electionID)]; ok {
			continue
		}
		m.eligibility[m.key(voterID, electionID)] = &domain.EligibilityRecord{
			VoterID:    voterID,
			ElectionID: electionID,
		}
		added++
	}
	return added, nil
}

func (m *memStore) RemoveEligible(ctx context.Context, voterID, electionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.eligibility[m.key(voterID, electionID)]
	if !ok {
		return domain.ErrEligibilityNotFound
	}
	if rec.HasVoted {
		return domain.ErrHasVoted
	}
	delete(m.eligibility, m.key(voterID, electionID))
	return nil
}

func (m *memStore) CountVoted(ctx context.Context, electionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, rec := range m.eligibility {
		if rec.ElectionID == electionID && rec.HasVoted {
			count++
		}
	}
	return count, nil
}

func (m *memStore) Append(ctx context.Context, ballot *domain.Ballot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.ballots {
		if b.VoteHash == ballot.VoteHash {
			return domain.ErrDuplicateVoteHash
		}
	}
	stored := *ballot
	stored.CastAt = time.Now().UTC()
	ballot.CastAt = stored.CastAt
	m.ballots = append(m.ballots, &stored)
	return nil
}

func (m *memStore) CountForElection(ctx context.Context, electionID string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	count := 0
	for _, b := range m.ballots {
		if b.ElectionID == electionID {
			count++
		}
	}
	return count, nil
}

func (m *memStore) AllForElection(ctx context.Context, electionID string) (repository.BallotCursor, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var matched []*domain.Ballot
	for _, b := range m.ballots {
		if b.ElectionID == electionID {
			copied := *b
			matched = append(matched, &copied)
		}
	}
	return &memCursor{ballots: matched}, nil
}

func (m *memStore) FindByHash(ctx context.Context, voteHash string) (*domain.Ballot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, b := range m.ballots {
		if b.VoteHash == voteHash {
			copied := *b
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memStore) DeleteAllForElection(ctx context.Context, electionID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var kept []*domain.Ballot
	var deleted int64
	for _, b := range m.ballots {
		if b.ElectionID == electionID {
			deleted++
			continue
		}
		kept = append(kept, b)
	}
	m.ballots = kept
	return deleted, nil
}

type memCursor struct {
	ballots []*domain.Ballot
	idx     int
}

func (c *memCursor) Next() bool {
	if c.idx >= len(c.ballots) {
		return false
	}
	c.idx++
	return true
}

func (c *memCursor) Ballot() *domain.Ballot { return c.ballots[c.idx-1] }
func (c *memCursor) Err() error             { return nil }
func (c *memCursor) Close()                 {}

func (m *memStore) GetElection(ctx context.Context, electionID string) (*domain.Election, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.elections[electionID]
	if !ok {
		return nil, nil
	}
	copied := *e
	return &copied, nil
}

func (m *memStore) ListCandidates(ctx context.Context, electionID string) ([]domain.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]domain.Candidate, len(m.candidates[electionID]))
	copy(out, m.candidates[electionID])
	return out, nil
}

func (m *memStore) GetCandidate(ctx context.Context, electionID, candidateID string) (*domain.Candidate, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, c := range m.candidates[electionID] {
		if c.ID == candidateID {
			copied := c
			return &copied, nil
		}
	}
	return nil, nil
}

func (m *memStore) CreateSecondRound(ctx context.Context, newElection *domain.Election, candidates []domain.Candidate, decision *domain.Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now().UTC()
	newElection.CreatedAt = now
	newElection.UpdatedAt = now
	decision.DecidedAt = now
	m.elections[newElection.ID] = newElection
	m.candidates[newElection.ID] = candidates
	m.decisions = append(m.decisions, *decision)
	return nil
}

func (m *memStore) UpsertSnapshot(ctx context.Context, snapshot *domain.ResultSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored := *snapshot
	if existing, ok := m.snapshots[snapshot.ElectionID]; ok {
		stored.Proclaimed = existing.Proclaimed
		stored.ProclaimedAt = existing.ProclaimedAt
	}
	m.snapshots[snapshot.ElectionID] = &stored
	return nil
}

func (m *memStore) GetSnapshot(ctx context.Context, electionID string) (*domain.ResultSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snapshots[electionID]
	if !ok {
		return nil, nil
	}
	copied := *s
	return &copied, nil
}

func (m *memStore) SetWinnerWithDecision(ctx context.Context, electionID, winnerID, winnerName string, decision *domain.Decision) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snapshots[electionID]
	if !ok {
		return domain.ErrSnapshotNotFound
	}
	s.WinnerID = &winnerID
	s.WinnerName = &winnerName
	decision.DecidedAt = time.Now().UTC()
	m.decisions = append(m.decisions, *decision)
	return nil
}

func (m *memStore) Proclaim(ctx context.Context, electionID string) (*domain.ResultSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snapshots[electionID]
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

func (m *memStore) ListDecisions(ctx context.Context, electionID string) ([]domain.Decision, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.Decision
	for _, d := range m.decisions {
		if d.ElectionID == electionID {
			out = append(out, d)
		}
	}
	return out, nil
}

// testEnv wires the full public and admin surface over one memStore
type testEnv struct {
	store  *memStore
	router *chi.Mux
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	cipher, err := encryption.NewService(testSecret)
	require.NoError(t, err)

	store := newMemStore()
	log := logger.NewNop()

	votingService := service.NewVotingService(store, store, store, cipher, nil, log.Logger)
	tallyService := service.NewTallyService(store, store, store, store, cipher, service.NewLocalLocker(), nil, log.Logger, 2)
	tieBreakService := service.NewTieBreakService(store, store, nil, log.Logger)
	eligibilityService := service.NewEligibilityService(store, log.Logger)

	ballotHandler := NewBallotHandler(votingService, tallyService, log)
	adminHandler := NewAdminHandler(tallyService, tieBreakService, eligibilityService, log)

	r := chi.NewRouter()
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/votes", ballotHandler.SubmitVote)
		r.Get("/elections/{electionID}/results", ballotHandler.GetResults)
		r.Get("/receipts/{voteHash}", ballotHandler.VerifyReceipt)

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.RequireAdmin(testAdminSecret, log))
			r.Post("/elections/{electionID}/tally", adminHandler.RunTally)
			r.Post("/elections/{electionID}/tie-break", adminHandler.ResolveTie)
			r.Post("/elections/{electionID}/proclaim", adminHandler.Proclaim)
			r.Get("/elections/{electionID}/decisions", adminHandler.ListDecisions)
			r.Post("/elections/{electionID}/eligibility", adminHandler.AddEligibility)
			r.Delete("/elections/{electionID}/eligibility/{voterID}", adminHandler.RemoveEligibility)
			r.Get("/elections/{electionID}/eligibility/{voterID}", adminHandler.CheckEligibility)
		})
	})

	return &testEnv{store: store, router: r}
}

func (e *testEnv) do(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) doRaw(t *testing.T, method, path, rawBody, token string) *httptest.ResponseRecorder {
	t.Helper()

	req, err := http.NewRequest(method, path, strings.NewReader(rawBody))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func adminToken(t *testing.T, secret, subject, role string) string {
	t.Helper()

	claims := middleware.AdminClaims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

// errorEnvelope mirrors the wire error format for assertions
type errorEnvelope struct {
	Error struct {
		Type    string                 `json:"type"`
		Message string                 `json:"message"`
		Details map[string]interface{} `json:"details"`
	} `json:"error"`
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) errorEnvelope {
	t.Helper()

	var envelope errorEnvelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	return envelope
}

package service

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"math/rand/v2"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stone-hackingod/backend-votux/internal/domain"
	"github.com/stone-hackingod/backend-votux/internal/repository"
	"github.com/stone-hackingod/backend-votux/pkg/redis"
)

// TieBreakService resolves tied elections. Every resolution appends a
// Decision record naming who decided and how, and the snapshot winner is
// only ever set together with that record.
type TieBreakService struct {
	elections repository.ElectionStore
	results   repository.ResultStore
	redis     *redis.Client
	logger    *zap.Logger
}

// NewTieBreakService creates a new tie-break service
func NewTieBreakService(
	elections repository.ElectionStore,
	results repository.ResultStore,
	redisClient *redis.Client,
	logger *zap.Logger,
) *TieBreakService {
	return &TieBreakService{
		elections: elections,
		results:   results,
		redis:     redisClient,
		logger:    logger,
	}
}

// Resolve applies one tie-break action to the election's current snapshot.
// The snapshot must hold an unresolved tie and must not be proclaimed.
func (s *TieBreakService) Resolve(ctx context.Context, electionID string, req *domain.TieBreakRequest, decidedBy string) (*domain.TieBreakResult, error) {
	snapshot, err := s.results.GetSnapshot(ctx, electionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	if snapshot == nil {
		return nil, domain.ErrSnapshotNotFound
	}
	if snapshot.Proclaimed {
		return nil, domain.ErrSnapshotProclaimed
	}
	if !snapshot.Results.Tie || snapshot.WinnerID != nil {
		return nil, domain.ErrNoTieToResolve
	}

	switch req.Action {
	case domain.DecisionSecondRound:
		return s.secondRound(ctx, electionID, snapshot, req, decidedBy)
	case domain.DecisionRandomDraw:
		return s.randomDraw(ctx, electionID, snapshot, req, decidedBy)
	case domain.DecisionRegulatoryDecision:
		return s.regulatoryDecision(ctx, electionID, snapshot, req, decidedBy)
	default:
		return nil, fmt.Errorf("unknown tie-break action %q", req.Action)
	}
}

// secondRound clones the election with only the chosen tied candidates on
// the ballot. The original snapshot keeps its null winner; the new round
// settles it.
func (s *TieBreakService) secondRound(ctx context.Context, electionID string, snapshot *domain.ResultSnapshot, req *domain.TieBreakRequest, decidedBy string) (*domain.TieBreakResult, error) {
	chosen := dedupe(req.CandidateIDs)
	if len(chosen) < 2 {
		return nil, fmt.Errorf("second round needs at least two distinct candidates")
	}
	if err := requireTied(snapshot.Results.TiedCandidates, chosen); err != nil {
		return nil, err
	}

	original, err := s.elections.GetElection(ctx, electionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get election: %w", err)
	}
	if original == nil {
		return nil, domain.ErrElectionNotFound
	}
	originalCandidates, err := s.elections.ListCandidates(ctx, electionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}

	chosenSet := make(map[string]bool, len(chosen))
	for _, id := range chosen {
		chosenSet[id] = true
	}

	newElection := &domain.Election{
		ID:          uuid.New().String(),
		Title:       fmt.Sprintf("%s (second round)", original.Title),
		Description: original.Description,
		Status:      domain.ElectionStatusDraft,
	}

	// Ballot order carries over from the original election
	clones := make([]domain.Candidate, 0, len(chosen))
	newIDs := make([]string, 0, len(chosen))
	for _, c := range originalCandidates {
		if !chosenSet[c.ID] {
			continue
		}
		clone := domain.Candidate{
			ID:         uuid.New().String(),
			ElectionID: newElection.ID,
			Name:       c.Name,
			Position:   c.Position,
		}
		clones = append(clones, clone)
		newIDs = append(newIDs, clone.ID)
	}
	if len(clones) != len(chosen) {
		return nil, domain.ErrInvalidCandidate
	}

	payload, err := json.Marshal(map[string]any{
		"original_election_id": electionID,
		"new_election_id":      newElection.ID,
		"candidate_ids":        chosen,
		"new_candidate_ids":    newIDs,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal decision payload: %w", err)
	}
	decision := &domain.Decision{
		ID:           uuid.New().String(),
		ElectionID:   electionID,
		DecisionType: domain.DecisionSecondRound,
		Payload:      payload,
		DecidedBy:    decidedBy,
	}

	if err := s.elections.CreateSecondRound(ctx, newElection, clones, decision); err != nil {
		return nil, fmt.Errorf("failed to create second round: %w", err)
	}

	s.logger.Info("second round created",
		zap.String("election_id", electionID),
		zap.String("new_election_id", newElection.ID),
		zap.Int("candidates", len(clones)))

	return &domain.TieBreakResult{
		Action:        domain.DecisionSecondRound,
		NewElectionID: newElection.ID,
		DecisionID:    decision.ID,
	}, nil
}

// randomDraw picks a winner among the chosen tied candidates with an
// unbiased draw. The seed and the drawn index land in the Decision payload
// so the draw can be replayed by an auditor.
func (s *TieBreakService) randomDraw(ctx context.Context, electionID string, snapshot *domain.ResultSnapshot, req *domain.TieBreakRequest, decidedBy string) (*domain.TieBreakResult, error) {
	chosen := dedupe(req.CandidateIDs)
	if len(chosen) < 2 {
		return nil, fmt.Errorf("random draw needs at least two distinct candidates")
	}
	if err := requireTied(snapshot.Results.TiedCandidates, chosen); err != nil {
		return nil, err
	}

	var seed [16]byte
	if _, err := crand.Read(seed[:]); err != nil {
		return nil, domain.NewCryptoError("draw seed", err)
	}
	rng := rand.New(rand.NewPCG(
		binary.BigEndian.Uint64(seed[0:8]),
		binary.BigEndian.Uint64(seed[8:16]),
	))
	index := rng.IntN(len(chosen))
	winnerID := chosen[index]
	winnerName := s.candidateName(ctx, snapshot, electionID, winnerID)

	payload, err := json.Marshal(map[string]any{
		"method":     "pcg64",
		"seed":       hex.EncodeToString(seed[:]),
		"candidates": chosen,
		"index":      index,
		"winner_id":  winnerID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal decision payload: %w", err)
	}
	decision := &domain.Decision{
		ID:           uuid.New().String(),
		ElectionID:   electionID,
		DecisionType: domain.DecisionRandomDraw,
		Payload:      payload,
		DecidedBy:    decidedBy,
	}

	if err := s.results.SetWinnerWithDecision(ctx, electionID, winnerID, winnerName, decision); err != nil {
		return nil, fmt.Errorf("failed to record draw outcome: %w", err)
	}

	s.invalidateResultsCache(ctx, electionID)

	s.logger.Info("tie resolved by random draw",
		zap.String("election_id", electionID),
		zap.String("winner_id", winnerID),
		zap.Int("candidates", len(chosen)))

	return &domain.TieBreakResult{
		Action:     domain.DecisionRandomDraw,
		WinnerID:   &winnerID,
		WinnerName: &winnerName,
		DecisionID: decision.ID,
	}, nil
}

// regulatoryDecision records an authority's pick of a single tied
// candidate, with the justification kept in the audit payload.
func (s *TieBreakService) regulatoryDecision(ctx context.Context, electionID string, snapshot *domain.ResultSnapshot, req *domain.TieBreakRequest, decidedBy string) (*domain.TieBreakResult, error) {
	if req.ChosenCandidateID == "" {
		return nil, fmt.Errorf("regulatory decision needs exactly one chosen candidate")
	}
	if err := requireTied(snapshot.Results.TiedCandidates, []string{req.ChosenCandidateID}); err != nil {
		return nil, err
	}

	winnerID := req.ChosenCandidateID
	winnerName := s.candidateName(ctx, snapshot, electionID, winnerID)

	payload, err := json.Marshal(map[string]any{
		"chosen_candidate_id": winnerID,
		"justification":       req.Justification,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal decision payload: %w", err)
	}
	decision := &domain.Decision{
		ID:           uuid.New().String(),
		ElectionID:   electionID,
		DecisionType: domain.DecisionRegulatoryDecision,
		Payload:      payload,
		DecidedBy:    decidedBy,
	}

	if err := s.results.SetWinnerWithDecision(ctx, electionID, winnerID, winnerName, decision); err != nil {
		return nil, fmt.Errorf("failed to record regulatory outcome: %w", err)
	}

	s.invalidateResultsCache(ctx, electionID)

	s.logger.Info("tie resolved by regulatory decision",
		zap.String("election_id", electionID),
		zap.String("winner_id", winnerID))

	return &domain.TieBreakResult{
		Action:     domain.DecisionRegulatoryDecision,
		WinnerID:   &winnerID,
		WinnerName: &winnerName,
		DecisionID: decision.ID,
	}, nil
}

// ListDecisions returns the election's tie-break audit log, oldest first
func (s *TieBreakService) ListDecisions(ctx context.Context, electionID string) ([]domain.Decision, error) {
	decisions, err := s.results.ListDecisions(ctx, electionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	return decisions, nil
}

// candidateName resolves a display name from the snapshot rows first and
// falls back to the candidate store
func (s *TieBreakService) candidateName(ctx context.Context, snapshot *domain.ResultSnapshot, electionID, candidateID string) string {
	for _, entry := range snapshot.Results.List {
		if entry.CandidateID == candidateID && entry.CandidateName != "" {
			return entry.CandidateName
		}
	}
	candidate, err := s.elections.GetCandidate(ctx, electionID, candidateID)
	if err != nil || candidate == nil {
		return ""
	}
	return candidate.Name
}

func (s *TieBreakService) invalidateResultsCache(ctx context.Context, electionID string) {
	if s.redis == nil {
		return
	}
	key := s.redis.KeyBuilder.KeyResults(electionID)
	if err := s.redis.Delete(ctx, key); err != nil {
		s.logger.Warn("failed to invalidate results cache",
			zap.String("election_id", electionID),
			zap.Error(err))
	}
}

// requireTied checks every chosen candidate against the tied set
func requireTied(tied, chosen []string) error {
	set := make(map[string]bool, len(tied))
	for _, id := range tied {
		set[id] = true
	}
	for _, id := range chosen {
		if !set[id] {
			return domain.ErrCandidateNotTied
		}
	}
	return nil
}

func dedupe(ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

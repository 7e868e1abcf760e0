package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stone-hackingod/backend-votux/internal/domain"
	"github.com/stone-hackingod/backend-votux/internal/service"
	"github.com/stone-hackingod/backend-votux/pkg/errors"
	"github.com/stone-hackingod/backend-votux/pkg/logger"
)

// BallotHandler serves the public voting surface: casting ballots,
// reading results and verifying receipts.
type BallotHandler struct {
	votingService *service.VotingService
	tallyService  *service.TallyService
	logger        *logger.Logger
}

// NewBallotHandler creates a new ballot handler
func NewBallotHandler(votingService *service.VotingService, tallyService *service.TallyService, logger *logger.Logger) *BallotHandler {
	return &BallotHandler{
		votingService: votingService,
		tallyService:  tallyService,
		logger:        logger,
	}
}

// SubmitVote handles POST /api/v1/votes
func (h *BallotHandler) SubmitVote(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var req domain.VoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.NewValidationError("Invalid request body", nil))
		return
	}

	if err := validateVoteRequest(&req); err != nil {
		respondError(w, errors.NewValidationError(err.Error(), nil))
		return
	}

	receipt, err := h.votingService.SubmitVote(ctx, &req)
	if err != nil {
		h.logger.WithError(err).WithField("election_id", req.ElectionID).Warn("Vote submission rejected")
		respondError(w, toAppError(err))
		return
	}

	respondJSON(w, http.StatusCreated, receipt)
}

// GetResults handles GET /api/v1/elections/{electionID}/results
func (h *BallotHandler) GetResults(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	electionID := chi.URLParam(r, "electionID")
	if electionID == "" {
		respondError(w, errors.NewValidationError("Election ID is required", nil))
		return
	}

	snapshot, err := h.tallyService.GetResults(ctx, electionID)
	if err != nil {
		respondError(w, toAppError(err))
		return
	}

	etag := generateETag(snapshot)
	if r.Header.Get("If-None-Match") == etag {
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Cache-Control", "public, max-age=30")

	respondJSON(w, http.StatusOK, snapshot)
}

// VerifyReceipt handles GET /api/v1/receipts/{voteHash}
func (h *BallotHandler) VerifyReceipt(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	voteHash := chi.URLParam(r, "voteHash")
	if len(voteHash) != 64 {
		respondError(w, errors.NewValidationError("Vote hash must be 64 hex characters", nil))
		return
	}

	receipt, err := h.votingService.VerifyReceipt(ctx, voteHash)
	if err != nil {
		respondError(w, toAppError(err))
		return
	}

	respondJSON(w, http.StatusOK, receipt)
}

func validateVoteRequest(req *domain.VoteRequest) error {
	if req.VoterID == "" {
		return fmt.Errorf("voter_id is required")
	}
	if req.ElectionID == "" {
		return fmt.Errorf("election_id is required")
	}
	if req.CandidateID == "" {
		return fmt.Errorf("candidate_id is required")
	}
	if len(req.VoterID) > 128 || len(req.ElectionID) > 128 || len(req.CandidateID) > 128 {
		return fmt.Errorf("identifiers must be at most 128 characters")
	}
	return nil
}

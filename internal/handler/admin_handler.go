package handler

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/stone-hackingod/backend-votux/internal/domain"
	"github.com/stone-hackingod/backend-votux/internal/middleware"
	"github.com/stone-hackingod/backend-votux/internal/service"
	"github.com/stone-hackingod/backend-votux/pkg/errors"
	"github.com/stone-hackingod/backend-votux/pkg/logger"
)

// AdminHandler serves the admin surface: tally runs, tie resolution,
// proclamation, the decision log and eligibility management.
type AdminHandler struct {
	tallyService       *service.TallyService
	tieBreakService    *service.TieBreakService
	eligibilityService *service.EligibilityService
	logger             *logger.Logger
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(
	tallyService *service.TallyService,
	tieBreakService *service.TieBreakService,
	eligibilityService *service.EligibilityService,
	logger *logger.Logger,
) *AdminHandler {
	return &AdminHandler{
		tallyService:       tallyService,
		tieBreakService:    tieBreakService,
		eligibilityService: eligibilityService,
		logger:             logger,
	}
}

// RunTally handles POST /api/v1/admin/elections/{electionID}/tally
func (h *AdminHandler) RunTally(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	electionID := chi.URLParam(r, "electionID")
	if electionID == "" {
		respondError(w, errors.NewValidationError("Election ID is required", nil))
		return
	}

	snapshot, err := h.tallyService.RunTally(ctx, electionID)
	if err != nil {
		h.logger.WithError(err).WithField("election_id", electionID).Error("Tally run failed")
		respondError(w, toAppError(err))
		return
	}

	respondJSON(w, http.StatusOK, snapshot)
}

// ResolveTie handles POST /api/v1/admin/elections/{electionID}/tie-break
func (h *AdminHandler) ResolveTie(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	electionID := chi.URLParam(r, "electionID")
	if electionID == "" {
		respondError(w, errors.NewValidationError("Election ID is required", nil))
		return
	}

	var req domain.TieBreakRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.NewValidationError("Invalid request body", nil))
		return
	}
	if err := validateTieBreakRequest(&req); err != nil {
		respondError(w, errors.NewValidationError(err.Error(), nil))
		return
	}

	decidedBy := "unknown"
	if claims, ok := middleware.GetAdminClaims(ctx); ok {
		decidedBy = claims.Subject
	}

	result, err := h.tieBreakService.Resolve(ctx, electionID, &req, decidedBy)
	if err != nil {
		h.logger.WithError(err).WithField("election_id", electionID).Warn("Tie resolution rejected")
		respondError(w, toAppError(err))
		return
	}

	respondJSON(w, http.StatusOK, result)
}

// Proclaim handles POST /api/v1/admin/elections/{electionID}/proclaim
func (h *AdminHandler) Proclaim(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	electionID := chi.URLParam(r, "electionID")
	if electionID == "" {
		respondError(w, errors.NewValidationError("Election ID is required", nil))
		return
	}

	snapshot, err := h.tallyService.Proclaim(ctx, electionID)
	if err != nil {
		respondError(w, toAppError(err))
		return
	}

	respondJSON(w, http.StatusOK, snapshot)
}

// ListDecisions handles GET /api/v1/admin/elections/{electionID}/decisions
func (h *AdminHandler) ListDecisions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	electionID := chi.URLParam(r, "electionID")

	decisions, err := h.tieBreakService.ListDecisions(ctx, electionID)
	if err != nil {
		respondError(w, toAppError(err))
		return
	}
	if decisions == nil {
		decisions = []domain.Decision{}
	}

	respondJSON(w, http.StatusOK, map[string]interface{}{
		"election_id": electionID,
		"decisions":   decisions,
	})
}

// AddEligibilityRequest is the body of an eligibility assignment
type AddEligibilityRequest struct {
	VoterIDs []string `json:"voter_ids"`
}

// AddEligibility handles POST /api/v1/admin/elections/{electionID}/eligibility
func (h *AdminHandler) AddEligibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	electionID := chi.URLParam(r, "electionID")
	if electionID == "" {
		respondError(w, errors.NewValidationError("Election ID is required", nil))
		return
	}

	var req AddEligibilityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, errors.NewValidationError("Invalid request body", nil))
		return
	}
	if len(req.VoterIDs) == 0 {
		respondError(w, errors.NewValidationError("voter_ids must not be empty", nil))
		return
	}

	added, err := h.eligibilityService.AddEligible(ctx, electionID, req.VoterIDs)
	if err != nil {
		respondError(w, toAppError(err))
		return
	}

	respondJSON(w, http.StatusCreated, map[string]interface{}{
		"election_id": electionID,
		"requested":   len(req.VoterIDs),
		"added":       added,
	})
}

// RemoveEligibility handles DELETE /api/v1/admin/elections/{electionID}/eligibility/{voterID}
func (h *AdminHandler) RemoveEligibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	electionID := chi.URLParam(r, "electionID")
	voterID := chi.URLParam(r, "voterID")
	if electionID == "" || voterID == "" {
		respondError(w, errors.NewValidationError("Election ID and voter ID are required", nil))
		return
	}

	if err := h.eligibilityService.RemoveEligible(ctx, voterID, electionID); err != nil {
		respondError(w, toAppError(err))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// CheckEligibility handles GET /api/v1/admin/elections/{electionID}/eligibility/{voterID}
func (h *AdminHandler) CheckEligibility(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	electionID := chi.URLParam(r, "electionID")
	voterID := chi.URLParam(r, "voterID")
	if electionID == "" || voterID == "" {
		respondError(w, errors.NewValidationError("Election ID and voter ID are required", nil))
		return
	}

	status, err := h.eligibilityService.Check(ctx, voterID, electionID)
	if err != nil {
		respondError(w, toAppError(err))
		return
	}

	respondJSON(w, http.StatusOK, status)
}

func validateTieBreakRequest(req *domain.TieBreakRequest) error {
	switch req.Action {
	case domain.DecisionSecondRound, domain.DecisionRandomDraw:
		distinct := make(map[string]bool)
		for _, id := range req.CandidateIDs {
			if id != "" {
				distinct[id] = true
			}
		}
		if len(distinct) < 2 {
			return fmt.Errorf("%s needs at least two distinct candidate_ids", req.Action)
		}
	case domain.DecisionRegulatoryDecision:
		if req.ChosenCandidateID == "" {
			return fmt.Errorf("regulatory_decision needs chosen_candidate_id")
		}
	default:
		return fmt.Errorf("action must be second_round, random_draw or regulatory_decision")
	}
	return nil
}

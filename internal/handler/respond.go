package handler

import (
	"crypto/md5"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"net/http"
	"time"

	"github.com/stone-hackingod/backend-votux/internal/domain"
	"github.com/stone-hackingod/backend-votux/pkg/errors"
)

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, appErr *errors.AppError) {
	response := &errors.ErrorResponse{}
	response.Error.Type = appErr.Type
	response.Error.Message = appErr.Message
	response.Error.Details = appErr.Details
	response.Error.Timestamp = time.Now().UTC().Format(time.RFC3339)

	respondJSON(w, appErr.StatusCode, response)
}

// toAppError maps domain errors onto the wire error taxonomy
func toAppError(err error) *errors.AppError {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}

	var cryptoErr *domain.CryptoError
	if stderrors.As(err, &cryptoErr) {
		return errors.NewCryptoError("Cryptographic operation failed", err)
	}

	var consistencyErr *domain.ConsistencyError
	if stderrors.As(err, &consistencyErr) {
		return errors.NewConsistencyError(
			"Ledger and vault ballot counts disagree",
			map[string]interface{}{
				"election_id":  consistencyErr.ElectionID,
				"ledger_count": consistencyErr.LedgerCount,
				"vault_count":  consistencyErr.VaultCount,
			})
	}

	switch {
	case stderrors.Is(err, domain.ErrNotEligible):
		return errors.NewAuthorizationError("Voter is not eligible for this election")
	case stderrors.Is(err, domain.ErrAlreadyVoted):
		return errors.NewStateError("Voter has already cast a ballot in this election")
	case stderrors.Is(err, domain.ErrElectionNotFound):
		return errors.NewNotFoundError("Election not found")
	case stderrors.Is(err, domain.ErrElectionNotActive):
		return errors.NewStateError("Election is not accepting ballots")
	case stderrors.Is(err, domain.ErrInvalidCandidate):
		return errors.NewValidationError("Candidate does not belong to this election", nil)
	case stderrors.Is(err, domain.ErrCandidateNotTied):
		return errors.NewValidationError("Candidate is not in the tied set", nil)
	case stderrors.Is(err, domain.ErrDuplicateVoteHash):
		return errors.NewPersistenceError("Failed to store ballot", err)
	case stderrors.Is(err, domain.ErrEligibilityNotFound):
		return errors.NewNotFoundError("Eligibility record not found")
	case stderrors.Is(err, domain.ErrHasVoted):
		return errors.NewStateError("Eligibility cannot be removed after the vote was cast")
	case stderrors.Is(err, domain.ErrSnapshotNotFound):
		return errors.NewNotFoundError("No results for this election")
	case stderrors.Is(err, domain.ErrSnapshotProclaimed):
		return errors.NewStateError("Results are already proclaimed")
	case stderrors.Is(err, domain.ErrNoTieToResolve):
		return errors.NewStateError("No unresolved tie for this election")
	case stderrors.Is(err, domain.ErrTallyInProgress):
		return errors.NewStateError("A tally is already running for this election")
	case stderrors.Is(err, domain.ErrReceiptNotFound):
		return errors.NewNotFoundError("No ballot matches this receipt")
	default:
		return errors.NewInternalError("Internal server error", err)
	}
}

func generateETag(data interface{}) string {
	jsonData, _ := json.Marshal(data)
	hash := md5.Sum(jsonData)
	return fmt.Sprintf(`"%x"`, hash)
}

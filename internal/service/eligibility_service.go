package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/stone-hackingod/backend-votux/internal/domain"
	"github.com/stone-hackingod/backend-votux/internal/repository"
)

// EligibilityService covers the admin side of the ledger: assigning
// voters to elections, revoking assignments and checking status.
type EligibilityService struct {
	ledger repository.EligibilityLedger
	logger *zap.Logger
}

// NewEligibilityService creates a new eligibility service
func NewEligibilityService(ledger repository.EligibilityLedger, logger *zap.Logger) *EligibilityService {
	return &EligibilityService{
		ledger: ledger,
		logger: logger,
	}
}

// AddEligible assigns voters to an election. Existing assignments are
// left untouched; the returned count covers newly created records only.
func (s *EligibilityService) AddEligible(ctx context.Context, electionID string, voterIDs []string) (int64, error) {
	ids := dedupe(voterIDs)
	if len(ids) == 0 {
		return 0, fmt.Errorf("no voter ids supplied")
	}

	added, err := s.ledger.AddEligible(ctx, electionID, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to add eligibility records: %w", err)
	}

	s.logger.Info("eligibility records added",
		zap.String("election_id", electionID),
		zap.Int("requested", len(ids)),
		zap.Int64("added", added))
	return added, nil
}

// RemoveEligible revokes a voter's assignment. A record that already
// flipped to voted stays; revocation would orphan the ballot.
func (s *EligibilityService) RemoveEligible(ctx context.Context, voterID, electionID string) error {
	if err := s.ledger.RemoveEligible(ctx, voterID, electionID); err != nil {
		return err
	}

	s.logger.Info("eligibility record removed",
		zap.String("election_id", electionID))
	return nil
}

// Check returns the voter's eligibility status for an election
func (s *EligibilityService) Check(ctx context.Context, voterID, electionID string) (*domain.EligibilityStatus, error) {
	status, err := s.ledger.Check(ctx, voterID, electionID)
	if err != nil {
		return nil, fmt.Errorf("failed to check eligibility: %w", err)
	}
	return status, nil
}

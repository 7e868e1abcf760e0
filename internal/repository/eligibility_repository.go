package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/stone-hackingod/backend-votux/internal/domain"
	"github.com/stone-hackingod/backend-votux/pkg/database"
)

type EligibilityRepository struct {
	db *database.PostgresDB
}

func NewEligibilityRepository(db *database.PostgresDB) *EligibilityRepository {
	return &EligibilityRepository{db: db}
}

// Check reports eligibility and voted status for one (voter, election) pair
func (r *EligibilityRepository) Check(ctx context.Context, voterID, electionID string) (*domain.EligibilityStatus, error) {
	var hasVoted bool
	query := `
		SELECT has_voted
		FROM eligibility_records
		WHERE voter_id = $1 AND election_id = $2
	`

	err := r.db.Pool.QueryRow(ctx, query, voterID, electionID).Scan(&hasVoted)
	if err == pgx.ErrNoRows {
		return &domain.EligibilityStatus{Eligible: false, HasVoted: false}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to check eligibility: %w", err)
	}

	return &domain.EligibilityStatus{Eligible: true, HasVoted: hasVoted}, nil
}

// MarkVoted flips has_voted in one conditional UPDATE. The WHERE clause is
// the atomic check-and-set the one-vote invariant rests on: two concurrent
// submissions can both pass Check, but only one UPDATE matches a row with
// has_voted = FALSE.
func (r *EligibilityRepository) MarkVoted(ctx context.Context, voterID, electionID string) error {
	query := `
		UPDATE eligibility_records
		SET has_voted = TRUE, voted_at = NOW()
		WHERE voter_id = $1 AND election_id = $2 AND has_voted = FALSE
	`

	tag, err := r.db.Pool.Exec(ctx, query, voterID, electionID)
	if err != nil {
		return fmt.Errorf("failed to mark voted: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	// No row transitioned: either the voter already voted or no record exists
	status, err := r.Check(ctx, voterID, electionID)
	if err != nil {
		return err
	}
	if !status.Eligible {
		return domain.ErrNotEligible
	}
	return domain.ErrAlreadyVoted
}

// AddEligible inserts records for the given voters, skipping existing pairs
func (r *EligibilityRepository) AddEligible(ctx context.Context, electionID string, voterIDs []string) (int64, error) {
	if len(voterIDs) == 0 {
		return 0, nil
	}

	query := `
		INSERT INTO eligibility_records (voter_id, election_id)
		SELECT unnest($1::text[]), $2
		ON CONFLICT (voter_id, election_id) DO NOTHING
	`

	tag, err := r.db.Pool.Exec(ctx, query, voterIDs, electionID)
	if err != nil {
		return 0, fmt.Errorf("failed to add eligibility records: %w", err)
	}

	return tag.RowsAffected(), nil
}

// RemoveEligible deletes one record unless the voter has already voted
func (r *EligibilityRepository) RemoveEligible(ctx context.Context, voterID, electionID string) error {
	query := `
		DELETE FROM eligibility_records
		WHERE voter_id = $1 AND election_id = $2 AND has_voted = FALSE
	`

	tag, err := r.db.Pool.Exec(ctx, query, voterID, electionID)
	if err != nil {
		return fmt.Errorf("failed to remove eligibility record: %w", err)
	}
	if tag.RowsAffected() == 1 {
		return nil
	}

	status, err := r.Check(ctx, voterID, electionID)
	if err != nil {
		return err
	}
	if status.HasVoted {
		return domain.ErrHasVoted
	}
	return domain.ErrEligibilityNotFound
}

// CountVoted returns how many voters are marked as having voted
func (r *EligibilityRepository) CountVoted(ctx context.Context, electionID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM eligibility_records WHERE election_id = $1 AND has_voted = TRUE`

	err := r.db.Pool.QueryRow(ctx, query, electionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count voted records: %w", err)
	}

	return count, nil
}

package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/stone-hackingod/backend-votux/internal/domain"
	"github.com/stone-hackingod/backend-votux/pkg/database"
)

type ElectionRepository struct {
	db *database.PostgresDB
}

func NewElectionRepository(db *database.PostgresDB) *ElectionRepository {
	return &ElectionRepository{db: db}
}

// GetElection retrieves one election
func (r *ElectionRepository) GetElection(ctx context.Context, electionID string) (*domain.Election, error) {
	var election domain.Election
	query := `
		SELECT id, title, description, status, starts_at, ends_at, created_at, updated_at
		FROM elections
		WHERE id = $1
	`

	err := r.db.Pool.QueryRow(ctx, query, electionID).Scan(
		&election.ID,
		&election.Title,
		&election.Description,
		&election.Status,
		&election.StartsAt,
		&election.EndsAt,
		&election.CreatedAt,
		&election.UpdatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get election: %w", err)
	}

	return &election, nil
}

// ListCandidates returns an election's candidates in ballot order
func (r *ElectionRepository) ListCandidates(ctx context.Context, electionID string) ([]domain.Candidate, error) {
	query := `
		SELECT id, election_id, name, position, created_at
		FROM candidates
		WHERE election_id = $1
		ORDER BY position ASC, name ASC
	`

	rows, err := r.db.Pool.Query(ctx, query, electionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	defer rows.Close()

	var candidates []domain.Candidate
	for rows.Next() {
		var candidate domain.Candidate
		err := rows.Scan(
			&candidate.ID,
			&candidate.ElectionID,
			&candidate.Name,
			&candidate.Position,
			&candidate.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan candidate: %w", err)
		}
		candidates = append(candidates, candidate)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read candidates: %w", err)
	}

	return candidates, nil
}

// GetCandidate retrieves one candidate scoped to an election
func (r *ElectionRepository) GetCandidate(ctx context.Context, electionID, candidateID string) (*domain.Candidate, error) {
	var candidate domain.Candidate
	query := `
		SELECT id, election_id, name, position, created_at
		FROM candidates
		WHERE id = $1 AND election_id = $2
	`

	err := r.db.Pool.QueryRow(ctx, query, candidateID, electionID).Scan(
		&candidate.ID,
		&candidate.ElectionID,
		&candidate.Name,
		&candidate.Position,
		&candidate.CreatedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get candidate: %w", err)
	}

	return &candidate, nil
}

// CreateSecondRound persists a new draft election, its candidates and the
// linking decision in one transaction
func (r *ElectionRepository) CreateSecondRound(ctx context.Context, newElection *domain.Election, candidates []domain.Candidate, decision *domain.Decision) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin second round transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	electionQuery := `
		INSERT INTO elections (id, title, description, status, starts_at, ends_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING created_at, updated_at
	`
	err = tx.QueryRow(ctx, electionQuery,
		newElection.ID,
		newElection.Title,
		newElection.Description,
		newElection.Status,
		newElection.StartsAt,
		newElection.EndsAt,
	).Scan(&newElection.CreatedAt, &newElection.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create second round election: %w", err)
	}

	candidateQuery := `
		INSERT INTO candidates (id, election_id, name, position)
		VALUES ($1, $2, $3, $4)
	`
	for _, candidate := range candidates {
		if _, err := tx.Exec(ctx, candidateQuery, candidate.ID, candidate.ElectionID, candidate.Name, candidate.Position); err != nil {
			return fmt.Errorf("failed to copy candidate into second round: %w", err)
		}
	}

	decisionQuery := `
		INSERT INTO decisions (id, election_id, decision_type, payload, decided_by)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING decided_at
	`
	err = tx.QueryRow(ctx, decisionQuery,
		decision.ID,
		decision.ElectionID,
		decision.DecisionType,
		decision.Payload,
		decision.DecidedBy,
	).Scan(&decision.DecidedAt)
	if err != nil {
		return fmt.Errorf("failed to record second round decision: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit second round: %w", err)
	}

	return nil
}

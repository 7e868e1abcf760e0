package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/stone-hackingod/backend-votux/internal/domain"
	"github.com/stone-hackingod/backend-votux/pkg/database"
)

type ResultRepository struct {
	db *database.PostgresDB
}

func NewResultRepository(db *database.PostgresDB) *ResultRepository {
	return &ResultRepository{db: db}
}

// UpsertSnapshot writes a snapshot keyed by election, overwriting any
// previous run's content. Proclamation fields are never part of the update.
func (r *ResultRepository) UpsertSnapshot(ctx context.Context, snapshot *domain.ResultSnapshot) error {
	resultsJSON, err := json.Marshal(&snapshot.Results)
	if err != nil {
		return fmt.Errorf("failed to marshal results payload: %w", err)
	}

	query := `
		INSERT INTO result_snapshots (election_id, total_votes, failed_decryptions, results, winner_id, winner_name, tallied_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (election_id) DO UPDATE SET
			total_votes = EXCLUDED.total_votes,
			failed_decryptions = EXCLUDED.failed_decryptions,
			results = EXCLUDED.results,
			winner_id = EXCLUDED.winner_id,
			winner_name = EXCLUDED.winner_name,
			tallied_at = EXCLUDED.tallied_at
	`

	_, err = r.db.Pool.Exec(ctx, query,
		snapshot.ElectionID,
		snapshot.TotalVotes,
		snapshot.FailedDecryptions,
		resultsJSON,
		snapshot.WinnerID,
		snapshot.WinnerName,
		snapshot.TalliedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert result snapshot: %w", err)
	}

	return nil
}

// GetSnapshot retrieves the persisted snapshot. The results column is
// decoded through ResultsPayload, which accepts both the legacy flat-list
// shape and the current object shape.
func (r *ResultRepository) GetSnapshot(ctx context.Context, electionID string) (*domain.ResultSnapshot, error) {
	var snapshot domain.ResultSnapshot
	var resultsJSON []byte
	query := `
		SELECT election_id, total_votes, failed_decryptions, results, winner_id, winner_name, proclaimed, proclaimed_at, tallied_at
		FROM result_snapshots
		WHERE election_id = $1
	`

	err := r.db.Pool.QueryRow(ctx, query, electionID).Scan(
		&snapshot.ElectionID,
		&snapshot.TotalVotes,
		&snapshot.FailedDecryptions,
		&resultsJSON,
		&snapshot.WinnerID,
		&snapshot.WinnerName,
		&snapshot.Proclaimed,
		&snapshot.ProclaimedAt,
		&snapshot.TalliedAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get result snapshot: %w", err)
	}

	if err := json.Unmarshal(resultsJSON, &snapshot.Results); err != nil {
		return nil, fmt.Errorf("failed to decode results payload: %w", err)
	}

	return &snapshot, nil
}

// SetWinnerWithDecision writes the winner and the decision record in one
// transaction so neither can apply without the other
func (r *ResultRepository) SetWinnerWithDecision(ctx context.Context, electionID, winnerID, winnerName string, decision *domain.Decision) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin winner transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	winnerQuery := `
		UPDATE result_snapshots
		SET winner_id = $2, winner_name = $3
		WHERE election_id = $1
	`
	tag, err := tx.Exec(ctx, winnerQuery, electionID, winnerID, winnerName)
	if err != nil {
		return fmt.Errorf("failed to set winner: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrSnapshotNotFound
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
		return fmt.Errorf("failed to record decision: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit winner decision: %w", err)
	}

	return nil
}

// Proclaim flips the proclaimed flag. The COALESCE keeps the original
// proclamation time on repeated calls.
func (r *ResultRepository) Proclaim(ctx context.Context, electionID string) (*domain.ResultSnapshot, error) {
	query := `
		UPDATE result_snapshots
		SET proclaimed = TRUE, proclaimed_at = COALESCE(proclaimed_at, NOW())
		WHERE election_id = $1
	`

	tag, err := r.db.Pool.Exec(ctx, query, electionID)
	if err != nil {
		return nil, fmt.Errorf("failed to proclaim results: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return nil, domain.ErrSnapshotNotFound
	}

	return r.GetSnapshot(ctx, electionID)
}

// ListDecisions returns an election's decisions oldest first
func (r *ResultRepository) ListDecisions(ctx context.Context, electionID string) ([]domain.Decision, error) {
	query := `
		SELECT id, election_id, decision_type, payload, decided_by, decided_at
		FROM decisions
		WHERE election_id = $1
		ORDER BY decided_at ASC, id ASC
	`

	rows, err := r.db.Pool.Query(ctx, query, electionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list decisions: %w", err)
	}
	defer rows.Close()

	var decisions []domain.Decision
	for rows.Next() {
		var decision domain.Decision
		err := rows.Scan(
			&decision.ID,
			&decision.ElectionID,
			&decision.DecisionType,
			&decision.Payload,
			&decision.DecidedBy,
			&decision.DecidedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		decisions = append(decisions, decision)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read decisions: %w", err)
	}

	return decisions, nil
}

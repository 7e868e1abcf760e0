package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/stone-hackingod/backend-votux/internal/domain"
	"github.com/stone-hackingod/backend-votux/pkg/database"
)

// BallotRepository stores encrypted ballots on the vault database. The
// schema has no voter column and no foreign key into the ledger; a trigger
// rejects UPDATEs so immutability is enforced by the store, not by
// convention. The only mutations are Append and whole-election delete.
type BallotRepository struct {
	db *database.PostgresDB
}

func NewBallotRepository(db *database.PostgresDB) *BallotRepository {
	return &BallotRepository{db: db}
}

// Append stores one new ballot
func (r *BallotRepository) Append(ctx context.Context, ballot *domain.Ballot) error {
	query := `
		INSERT INTO ballots (id, election_id, ciphertext, iv, auth_tag, vote_hash)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING cast_at
	`

	err := r.db.Pool.QueryRow(ctx, query,
		ballot.ID,
		ballot.ElectionID,
		ballot.Ciphertext,
		ballot.IV,
		ballot.AuthTag,
		ballot.VoteHash,
	).Scan(&ballot.CastAt)

	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return domain.ErrDuplicateVoteHash
		}
		return fmt.Errorf("failed to append ballot: %w", err)
	}

	return nil
}

// CountForElection returns the number of ballots stored for an election
func (r *BallotRepository) CountForElection(ctx context.Context, electionID string) (int, error) {
	var count int
	query := `SELECT COUNT(*) FROM ballots WHERE election_id = $1`

	err := r.db.Pool.QueryRow(ctx, query, electionID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count ballots: %w", err)
	}

	return count, nil
}

// AllForElection returns a lazy cursor over one election's ballots
func (r *BallotRepository) AllForElection(ctx context.Context, electionID string) (BallotCursor, error) {
	query := `
		SELECT id, election_id, ciphertext, iv, auth_tag, vote_hash, cast_at
		FROM ballots
		WHERE election_id = $1
		ORDER BY cast_at ASC, id ASC
	`

	rows, err := r.db.Pool.Query(ctx, query, electionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query ballots: %w", err)
	}

	return &ballotCursor{rows: rows}, nil
}

// FindByHash retrieves a ballot by its vote hash
func (r *BallotRepository) FindByHash(ctx context.Context, voteHash string) (*domain.Ballot, error) {
	var ballot domain.Ballot
	query := `
		SELECT id, election_id, ciphertext, iv, auth_tag, vote_hash, cast_at
		FROM ballots
		WHERE vote_hash = $1
	`

	err := r.db.Pool.QueryRow(ctx, query, voteHash).Scan(
		&ballot.ID,
		&ballot.ElectionID,
		&ballot.Ciphertext,
		&ballot.IV,
		&ballot.AuthTag,
		&ballot.VoteHash,
		&ballot.CastAt,
	)

	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find ballot by hash: %w", err)
	}

	return &ballot, nil
}

// DeleteAllForElection removes every ballot of an election
func (r *BallotRepository) DeleteAllForElection(ctx context.Context, electionID string) (int64, error) {
	query := `DELETE FROM ballots WHERE election_id = $1`

	tag, err := r.db.Pool.Exec(ctx, query, electionID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete ballots: %w", err)
	}

	return tag.RowsAffected(), nil
}

// ballotCursor adapts pgx rows to the BallotCursor port
type ballotCursor struct {
	rows    pgx.Rows
	current domain.Ballot
	err     error
}

func (c *ballotCursor) Next() bool {
	if c.err != nil {
		return false
	}
	if !c.rows.Next() {
		c.err = c.rows.Err()
		return false
	}

	err := c.rows.Scan(
		&c.current.ID,
		&c.current.ElectionID,
		&c.current.Ciphertext,
		&c.current.IV,
		&c.current.AuthTag,
		&c.current.VoteHash,
		&c.current.CastAt,
	)
	if err != nil {
		c.err = fmt.Errorf("failed to scan ballot: %w", err)
		return false
	}
	return true
}

func (c *ballotCursor) Ballot() *domain.Ballot {
	ballot := c.current
	return &ballot
}

func (c *ballotCursor) Err() error {
	return c.err
}

func (c *ballotCursor) Close() {
	c.rows.Close()
}

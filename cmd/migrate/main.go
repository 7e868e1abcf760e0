package main

import (
	"context"
	"fmt"
	"log"
	"os"

	"github.com/jackc/pgx/v5"
	"github.com/joho/godotenv"
)

// The migrator manages two schemas: the eligibility ledger (elections,
// candidates, eligibility records, result snapshots, decisions) and the
// ballot vault (the ballots table alone). They may share one database or
// live on separate servers; VAULT_DATABASE_URL falls back to the ledger URL.
func main() {
	// Load environment variables
	if err := godotenv.Load(); err != nil {
		log.Println("Warning: .env file not found")
	}

	ledgerURL := os.Getenv("LEDGER_DATABASE_URL")
	if ledgerURL == "" {
		log.Fatal("LEDGER_DATABASE_URL environment variable is not set")
	}
	vaultURL := os.Getenv("VAULT_DATABASE_URL")
	if vaultURL == "" {
		vaultURL = ledgerURL
	}

	if len(os.Args) < 2 {
		fmt.Println("Usage: go run main.go [drop|up|seed]")
		os.Exit(1)
	}
	command := os.Args[1]

	ctx := context.Background()
	ledger, err := pgx.Connect(ctx, ledgerURL)
	if err != nil {
		log.Fatalf("Failed to connect to ledger database: %v", err)
	}
	defer ledger.Close(ctx)

	vault := ledger
	if vaultURL != ledgerURL {
		vault, err = pgx.Connect(ctx, vaultURL)
		if err != nil {
			log.Fatalf("Failed to connect to vault database: %v", err)
		}
		defer vault.Close(ctx)
	}

	switch command {
	case "drop":
		if err := dropLedgerTables(ctx, ledger); err != nil {
			log.Fatalf("Failed to drop ledger tables: %v", err)
		}
		if err := dropVaultTables(ctx, vault); err != nil {
			log.Fatalf("Failed to drop vault tables: %v", err)
		}
		fmt.Println("✅ All tables dropped successfully")

	case "up":
		if err := createLedgerTables(ctx, ledger); err != nil {
			log.Fatalf("Failed to create ledger tables: %v", err)
		}
		if err := createVaultTables(ctx, vault); err != nil {
			log.Fatalf("Failed to create vault tables: %v", err)
		}
		fmt.Println("✅ All tables created successfully")

	case "seed":
		if err := seedData(ctx, ledger); err != nil {
			log.Fatalf("Failed to seed data: %v", err)
		}
		fmt.Println("✅ Data seeded successfully")

	default:
		fmt.Printf("Unknown command: %s\n", command)
		fmt.Println("Usage: go run main.go [drop|up|seed]")
		os.Exit(1)
	}
}

func dropLedgerTables(ctx context.Context, conn *pgx.Conn) error {
	queries := []string{
		`DROP TABLE IF EXISTS decisions CASCADE`,
		`DROP TABLE IF EXISTS result_snapshots CASCADE`,
		`DROP TABLE IF EXISTS eligibility_records CASCADE`,
		`DROP TABLE IF EXISTS candidates CASCADE`,
		`DROP TABLE IF EXISTS elections CASCADE`,
	}

	for _, query := range queries {
		if _, err := conn.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
		fmt.Printf("  Dropped: %s\n", query)
	}

	return nil
}

func dropVaultTables(ctx context.Context, conn *pgx.Conn) error {
	queries := []string{
		`DROP TABLE IF EXISTS ballots CASCADE`,
		`DROP FUNCTION IF EXISTS reject_ballot_mutation CASCADE`,
	}

	for _, query := range queries {
		if _, err := conn.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w", err)
		}
		fmt.Printf("  Dropped: %s\n", query)
	}

	return nil
}

func createLedgerTables(ctx context.Context, conn *pgx.Conn) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS elections (
			id VARCHAR(64) PRIMARY KEY,
			title VARCHAR(255) NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			status VARCHAR(20) NOT NULL DEFAULT 'draft'
				CHECK (status IN ('draft', 'active', 'closed')),
			starts_at TIMESTAMPTZ,
			ends_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS candidates (
			id VARCHAR(64) PRIMARY KEY,
			election_id VARCHAR(64) NOT NULL REFERENCES elections(id) ON DELETE CASCADE,
			name VARCHAR(255) NOT NULL,
			position INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE TABLE IF NOT EXISTS eligibility_records (
			voter_id VARCHAR(128) NOT NULL,
			election_id VARCHAR(64) NOT NULL REFERENCES elections(id) ON DELETE CASCADE,
			has_voted BOOLEAN NOT NULL DEFAULT FALSE,
			voted_at TIMESTAMPTZ,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (voter_id, election_id)
		)`,

		`CREATE TABLE IF NOT EXISTS result_snapshots (
			election_id VARCHAR(64) PRIMARY KEY REFERENCES elections(id) ON DELETE CASCADE,
			total_votes INTEGER NOT NULL DEFAULT 0,
			failed_decryptions INTEGER NOT NULL DEFAULT 0,
			results JSONB NOT NULL,
			winner_id VARCHAR(64),
			winner_name VARCHAR(255),
			proclaimed BOOLEAN NOT NULL DEFAULT FALSE,
			proclaimed_at TIMESTAMPTZ,
			tallied_at TIMESTAMPTZ NOT NULL
		)`,

		`CREATE TABLE IF NOT EXISTS decisions (
			id VARCHAR(64) PRIMARY KEY,
			election_id VARCHAR(64) NOT NULL REFERENCES elections(id) ON DELETE CASCADE,
			decision_type VARCHAR(32) NOT NULL
				CHECK (decision_type IN ('second_round', 'random_draw', 'regulatory_decision')),
			payload JSONB NOT NULL,
			decided_by VARCHAR(128) NOT NULL,
			decided_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_candidates_election ON candidates(election_id, position)`,
		`CREATE INDEX IF NOT EXISTS idx_eligibility_voted ON eligibility_records(election_id) WHERE has_voted = TRUE`,
		`CREATE INDEX IF NOT EXISTS idx_decisions_election ON decisions(election_id, decided_at)`,
	}

	for _, query := range queries {
		if _, err := conn.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w\nQuery: %s", err, query)
		}
		fmt.Printf("  Created: %s\n", shorten(query))
	}

	return nil
}

func createVaultTables(ctx context.Context, conn *pgx.Conn) error {
	// No voter column, no foreign key into the ledger. The trigger makes
	// the table append-only at the store level; the repository's only
	// mutations are insert and whole-election delete.
	queries := []string{
		`CREATE TABLE IF NOT EXISTS ballots (
			id VARCHAR(64) PRIMARY KEY,
			election_id VARCHAR(64) NOT NULL,
			ciphertext BYTEA NOT NULL,
			iv BYTEA NOT NULL,
			auth_tag BYTEA NOT NULL,
			vote_hash VARCHAR(64) NOT NULL UNIQUE,
			cast_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,

		`CREATE INDEX IF NOT EXISTS idx_ballots_election ON ballots(election_id, cast_at)`,

		`CREATE OR REPLACE FUNCTION reject_ballot_mutation() RETURNS trigger AS $$
		BEGIN
			RAISE EXCEPTION 'ballots are append-only';
		END;
		$$ LANGUAGE plpgsql`,

		`DROP TRIGGER IF EXISTS ballots_no_update ON ballots`,

		`CREATE TRIGGER ballots_no_update
			BEFORE UPDATE ON ballots
			FOR EACH ROW EXECUTE FUNCTION reject_ballot_mutation()`,
	}

	for _, query := range queries {
		if _, err := conn.Exec(ctx, query); err != nil {
			return fmt.Errorf("failed to execute query: %w\nQuery: %s", err, query)
		}
		fmt.Printf("  Created: %s\n", shorten(query))
	}

	return nil
}

func seedData(ctx context.Context, conn *pgx.Conn) error {
	electionQuery := `
		INSERT INTO elections (id, title, description, status, starts_at, ends_at) VALUES
		('municipal-2026', 'Municipal Council 2026', 'General municipal council election', 'active', NOW() - INTERVAL '1 day', NOW() + INTERVAL '30 days')
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			status = EXCLUDED.status,
			starts_at = EXCLUDED.starts_at,
			ends_at = EXCLUDED.ends_at,
			updated_at = NOW()
	`
	if _, err := conn.Exec(ctx, electionQuery); err != nil {
		return fmt.Errorf("failed to seed election: %w", err)
	}
	fmt.Println("  Seeded 1 election")

	candidateQuery := `
		INSERT INTO candidates (id, election_id, name, position) VALUES
		('cand-serrano', 'municipal-2026', 'Elena Serrano', 1),
		('cand-okafor', 'municipal-2026', 'David Okafor', 2),
		('cand-lindqvist', 'municipal-2026', 'Maja Lindqvist', 3)
		ON CONFLICT (id) DO UPDATE SET
			name = EXCLUDED.name,
			position = EXCLUDED.position
	`
	if _, err := conn.Exec(ctx, candidateQuery); err != nil {
		return fmt.Errorf("failed to seed candidates: %w", err)
	}
	fmt.Println("  Seeded 3 candidates")

	eligibilityQuery := `
		INSERT INTO eligibility_records (voter_id, election_id)
		SELECT 'voter-' || n, 'municipal-2026' FROM generate_series(1, 20) AS n
		ON CONFLICT (voter_id, election_id) DO NOTHING
	`
	if _, err := conn.Exec(ctx, eligibilityQuery); err != nil {
		return fmt.Errorf("failed to seed eligibility records: %w", err)
	}
	fmt.Println("  Seeded 20 eligibility records")

	return nil
}

func shorten(query string) string {
	if len(query) > 50 {
		return query[:50] + "..."
	}
	return query
}

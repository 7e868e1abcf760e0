package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/stone-hackingod/backend-votux/internal/domain"
	"github.com/stone-hackingod/backend-votux/internal/repository"
	"github.com/stone-hackingod/backend-votux/pkg/redis"
)

// TallyService decrypts the vault, aggregates per-candidate counts and
// persists result snapshots. Runs are serialized per election through a
// TallyLocker and refuse to start once the snapshot is proclaimed.
type TallyService struct {
	ledger    repository.EligibilityLedger
	vault     repository.BallotVault
	elections repository.ElectionStore
	results   repository.ResultStore
	cipher    VoteCipher
	locks     TallyLocker
	redis     *redis.Client
	logger    *zap.Logger
	workers   int
}

// NewTallyService creates a new tally service. workers caps the number of
// concurrent ballot decryptions; values below 1 are raised to 1.
func NewTallyService(
	ledger repository.EligibilityLedger,
	vault repository.BallotVault,
	elections repository.ElectionStore,
	results repository.ResultStore,
	cipher VoteCipher,
	locks TallyLocker,
	redisClient *redis.Client,
	logger *zap.Logger,
	workers int,
) *TallyService {
	if workers < 1 {
		workers = 1
	}
	return &TallyService{
		ledger:    ledger,
		vault:     vault,
		elections: elections,
		results:   results,
		cipher:    cipher,
		locks:     locks,
		redis:     redisClient,
		logger:    logger,
		workers:   workers,
	}
}

// RunTally executes one tally run for the election under the per-election
// lock. A held lock maps to ErrTallyInProgress rather than blocking.
func (s *TallyService) RunTally(ctx context.Context, electionID string) (*domain.ResultSnapshot, error) {
	lockName := fmt.Sprintf(redis.KeyTallyLock, electionID)
	if s.redis != nil {
		lockName = s.redis.KeyBuilder.KeyTallyLock(electionID)
	}

	var snapshot *domain.ResultSnapshot
	err := s.locks.WithLock(ctx, lockName, redis.TTLTallyLock, func() error {
		var runErr error
		snapshot, runErr = s.runLocked(ctx, electionID)
		return runErr
	})
	if errors.Is(err, redis.ErrLockNotAcquired) {
		return nil, domain.ErrTallyInProgress
	}
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

func (s *TallyService) runLocked(ctx context.Context, electionID string) (*domain.ResultSnapshot, error) {
	existing, err := s.results.GetSnapshot(ctx, electionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing snapshot: %w", err)
	}
	if existing != nil && existing.Proclaimed {
		return nil, domain.ErrSnapshotProclaimed
	}

	election, err := s.elections.GetElection(ctx, electionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get election: %w", err)
	}
	if election == nil {
		return nil, domain.ErrElectionNotFound
	}

	// Hard consistency stop before any ballot is opened
	ledgerCount, err := s.ledger.CountVoted(ctx, electionID)
	if err != nil {
		return nil, fmt.Errorf("failed to count voted ledger entries: %w", err)
	}
	vaultCount, err := s.vault.CountForElection(ctx, electionID)
	if err != nil {
		return nil, fmt.Errorf("failed to count vault ballots: %w", err)
	}
	if ledgerCount != vaultCount {
		s.logger.Error("tally aborted on ledger/vault mismatch",
			zap.String("election_id", electionID),
			zap.Int("ledger_count", ledgerCount),
			zap.Int("vault_count", vaultCount))
		return nil, &domain.ConsistencyError{
			ElectionID:  electionID,
			LedgerCount: ledgerCount,
			VaultCount:  vaultCount,
		}
	}

	counts, decrypted, failed, err := s.decryptAndCount(ctx, electionID)
	if err != nil {
		return nil, err
	}

	candidates, err := s.elections.ListCandidates(ctx, electionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list candidates: %w", err)
	}
	names := make(map[string]string, len(candidates))
	for _, c := range candidates {
		names[c.ID] = c.Name
	}

	results := buildResults(counts, names, decrypted)

	snapshot := &domain.ResultSnapshot{
		ElectionID:        electionID,
		TotalVotes:        decrypted,
		FailedDecryptions: failed,
		Results:           results,
		TalliedAt:         time.Now().UTC(),
	}
	if !results.Tie && len(results.List) > 0 && results.List[0].Votes > 0 {
		winner := results.List[0]
		snapshot.WinnerID = &winner.CandidateID
		snapshot.WinnerName = &winner.CandidateName
	}

	if err := s.results.UpsertSnapshot(ctx, snapshot); err != nil {
		return nil, fmt.Errorf("failed to persist snapshot: %w", err)
	}

	s.invalidateResultsCache(ctx, electionID)

	s.logger.Info("tally completed",
		zap.String("election_id", electionID),
		zap.Int("total_votes", decrypted),
		zap.Int("failed_decryptions", failed),
		zap.Bool("tie", results.Tie))

	return snapshot, nil
}

// decryptAndCount streams the vault through a small worker pool. Each
// undecryptable or malformed ballot is skipped and counted, never fatal.
func (s *TallyService) decryptAndCount(ctx context.Context, electionID string) (map[string]int, int, int, error) {
	cursor, err := s.vault.AllForElection(ctx, electionID)
	if err != nil {
		return nil, 0, 0, fmt.Errorf("failed to open ballot cursor: %w", err)
	}
	defer cursor.Close()

	var (
		mu        sync.Mutex
		counts    = make(map[string]int)
		decrypted int
		failed    int
	)

	jobs := make(chan *domain.Ballot)
	var wg sync.WaitGroup
	for i := 0; i < s.workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for ballot := range jobs {
				candidateID, ok := s.openBallot(ballot, electionID)
				mu.Lock()
				if ok {
					counts[candidateID]++
					decrypted++
				} else {
					failed++
				}
				mu.Unlock()
			}
		}()
	}

	for cursor.Next() {
		jobs <- cursor.Ballot()
	}
	close(jobs)
	wg.Wait()

	if err := cursor.Err(); err != nil {
		return nil, 0, 0, fmt.Errorf("failed to iterate ballots: %w", err)
	}
	return counts, decrypted, failed, nil
}

func (s *TallyService) openBallot(ballot *domain.Ballot, electionID string) (string, bool) {
	plaintext, err := s.cipher.Decrypt(ballot.Encrypted(), electionID)
	if err != nil {
		s.logger.Warn("undecryptable ballot excluded from tally",
			zap.String("election_id", electionID),
			zap.String("ballot_id", ballot.ID),
			zap.Error(err))
		return "", false
	}

	var payload domain.VotePayload
	if err := json.Unmarshal(plaintext, &payload); err != nil {
		s.logger.Warn("malformed ballot payload excluded from tally",
			zap.String("election_id", electionID),
			zap.String("ballot_id", ballot.ID),
			zap.Error(err))
		return "", false
	}
	if payload.CandidateID == "" {
		return "", false
	}
	return payload.CandidateID, true
}

// buildResults turns raw counts into the persisted results payload. Only
// observed candidates appear; names are backfilled from the candidate
// list when known. Entries sort by votes descending, then candidate id
// ascending so equal runs produce identical snapshots.
func buildResults(counts map[string]int, names map[string]string, totalDecrypted int) domain.ResultsPayload {
	list := make([]domain.CandidateResult, 0, len(counts))
	for id, votes := range counts {
		pct := 0.0
		if totalDecrypted > 0 {
			pct = math.Round(float64(votes)/float64(totalDecrypted)*100*100) / 100
		}
		list = append(list, domain.CandidateResult{
			CandidateID:   id,
			CandidateName: names[id],
			Votes:         votes,
			Percentage:    pct,
		})
	}
	sort.Slice(list, func(i, j int) bool {
		if list[i].Votes != list[j].Votes {
			return list[i].Votes > list[j].Votes
		}
		return list[i].CandidateID < list[j].CandidateID
	})

	topVotes := 0
	if len(list) > 0 {
		topVotes = list[0].Votes
	}
	var tied []string
	for _, entry := range list {
		if entry.Votes != topVotes {
			break
		}
		tied = append(tied, entry.CandidateID)
	}

	payload := domain.ResultsPayload{
		List: list,
		Tie:  len(tied) > 1 && topVotes > 0,
	}
	if payload.Tie {
		payload.TiedCandidates = tied
	}
	return payload
}

// GetResults returns the persisted snapshot, read through the results
// cache when Redis is configured.
func (s *TallyService) GetResults(ctx context.Context, electionID string) (*domain.ResultSnapshot, error) {
	var cacheKey string
	if s.redis != nil {
		cacheKey = s.redis.KeyBuilder.KeyResults(electionID)
		if cached, err := s.redis.Get(ctx, cacheKey); err == nil && cached != "" {
			var snapshot domain.ResultSnapshot
			if err := json.Unmarshal([]byte(cached), &snapshot); err == nil {
				return &snapshot, nil
			}
			s.logger.Warn("failed to decode cached results, falling back to store",
				zap.String("election_id", electionID))
		}
	}

	snapshot, err := s.results.GetSnapshot(ctx, electionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	if snapshot == nil {
		return nil, domain.ErrSnapshotNotFound
	}

	if s.redis != nil {
		if data, err := json.Marshal(snapshot); err == nil {
			if err := s.redis.Set(ctx, cacheKey, string(data), redis.TTLResults); err != nil {
				s.logger.Warn("failed to cache results",
					zap.String("election_id", electionID),
					zap.Error(err))
			}
		}
	}
	return snapshot, nil
}

// Proclaim marks the current snapshot official. The flip is idempotent
// and freezes content: later tally runs are refused.
func (s *TallyService) Proclaim(ctx context.Context, electionID string) (*domain.ResultSnapshot, error) {
	snapshot, err := s.results.Proclaim(ctx, electionID)
	if err != nil {
		return nil, err
	}

	s.invalidateResultsCache(ctx, electionID)

	s.logger.Info("results proclaimed",
		zap.String("election_id", electionID),
		zap.Int("total_votes", snapshot.TotalVotes))
	return snapshot, nil
}

func (s *TallyService) invalidateResultsCache(ctx context.Context, electionID string) {
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

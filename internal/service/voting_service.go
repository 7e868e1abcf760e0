package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/stone-hackingod/backend-votux/internal/domain"
	"github.com/stone-hackingod/backend-votux/internal/repository"
	"github.com/stone-hackingod/backend-votux/pkg/redis"
)

// VotingService handles ballot submission and receipt verification.
// The eligibility ledger and the ballot vault are touched in a fixed
// order: the ballot is appended before the voter is marked, and a failed
// mark never rolls the ballot back. The tally consistency check surfaces
// any resulting discrepancy.
type VotingService struct {
	ledger    repository.EligibilityLedger
	vault     repository.BallotVault
	elections repository.ElectionStore
	cipher    VoteCipher
	redis     *redis.Client
	logger    *zap.Logger
}

// NewVotingService creates a new voting service. redisClient may be nil;
// the Redis guards are advisory and the ledger stays authoritative.
func NewVotingService(
	ledger repository.EligibilityLedger,
	vault repository.BallotVault,
	elections repository.ElectionStore,
	cipher VoteCipher,
	redisClient *redis.Client,
	logger *zap.Logger,
) *VotingService {
	return &VotingService{
		ledger:    ledger,
		vault:     vault,
		elections: elections,
		cipher:    cipher,
		redis:     redisClient,
		logger:    logger,
	}
}

// SubmitVote runs the full submission protocol: concurrency guard,
// eligibility check, election and candidate validation, encryption,
// vault append, and the atomic mark-voted flip. On success the voter
// gets a receipt carrying the vote hash.
//
// Voter IDs are never logged next to vote hashes; the log stream must
// not recreate the link the two stores avoid.
func (s *VotingService) SubmitVote(ctx context.Context, req *domain.VoteRequest) (*domain.VoteReceipt, error) {
	released := false
	submitKey := ""
	release := func() {
		if released || s.redis == nil || submitKey == "" {
			return
		}
		released = true
		if err := s.redis.Delete(ctx, submitKey); err != nil {
			s.logger.Warn("failed to release submit lock",
				zap.String("election_id", req.ElectionID),
				zap.Error(err))
		}
	}

	// Short-lived submit lock absorbs double-click storms before they
	// reach the ledger
	if s.redis != nil {
		submitKey = s.redis.KeyBuilder.KeySubmitLock(req.VoterID, req.ElectionID)
		acquired, err := s.redis.SetNX(ctx, submitKey, "1", redis.TTLSubmitLock)
		if err != nil {
			s.logger.Warn("submit lock unavailable, falling through to ledger",
				zap.String("election_id", req.ElectionID),
				zap.Error(err))
			submitKey = ""
		} else if !acquired {
			return nil, domain.ErrAlreadyVoted
		}
	}

	// Voted-status cache fast path
	if s.redis != nil {
		votedKey := s.redis.KeyBuilder.KeyVoterVoted(req.VoterID, req.ElectionID)
		if cached, err := s.redis.Get(ctx, votedKey); err == nil && cached != "" {
			release()
			return nil, domain.ErrAlreadyVoted
		}
	}

	status, err := s.ledger.Check(ctx, req.VoterID, req.ElectionID)
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to check eligibility: %w", err)
	}
	if !status.Eligible {
		release()
		return nil, domain.ErrNotEligible
	}
	if status.HasVoted {
		s.cacheVotedStatus(ctx, req.VoterID, req.ElectionID)
		release()
		return nil, domain.ErrAlreadyVoted
	}

	election, err := s.elections.GetElection(ctx, req.ElectionID)
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to get election: %w", err)
	}
	if election == nil {
		release()
		return nil, domain.ErrElectionNotFound
	}
	if !election.IsActive(time.Now().UTC()) {
		release()
		return nil, domain.ErrElectionNotActive
	}

	candidate, err := s.elections.GetCandidate(ctx, req.ElectionID, req.CandidateID)
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to get candidate: %w", err)
	}
	if candidate == nil {
		release()
		return nil, domain.ErrInvalidCandidate
	}

	now := time.Now().UTC()
	plaintext, err := json.Marshal(domain.VotePayload{
		ElectionID:  req.ElectionID,
		CandidateID: req.CandidateID,
		Timestamp:   now,
	})
	if err != nil {
		release()
		return nil, fmt.Errorf("failed to marshal vote payload: %w", err)
	}

	encrypted, err := s.cipher.Encrypt(plaintext, req.ElectionID)
	if err != nil {
		release()
		return nil, err
	}

	ballot := &domain.Ballot{
		ID:         uuid.New().String(),
		ElectionID: req.ElectionID,
		Ciphertext: encrypted.Ciphertext,
		IV:         encrypted.IV,
		AuthTag:    encrypted.AuthTag,
	}

	// One fresh fingerprint on hash collision, then give up
	var appendErr error
	for attempt := 0; attempt < 2; attempt++ {
		hash, err := s.cipher.Fingerprint(req.VoterID, req.ElectionID, now)
		if err != nil {
			release()
			return nil, err
		}
		ballot.VoteHash = hash

		appendErr = s.vault.Append(ctx, ballot)
		if appendErr == nil || !errors.Is(appendErr, domain.ErrDuplicateVoteHash) {
			break
		}
		s.logger.Warn("vote hash collision, regenerating fingerprint",
			zap.String("election_id", req.ElectionID))
	}
	if appendErr != nil {
		release()
		return nil, appendErr
	}

	if err := s.ledger.MarkVoted(ctx, req.VoterID, req.ElectionID); err != nil {
		// The ballot stays in the vault; the count mismatch is caught at
		// tally time
		s.logger.Error("mark voted failed after ballot append",
			zap.String("election_id", req.ElectionID),
			zap.Error(err))
		release()
		return nil, err
	}

	s.cacheVotedStatus(ctx, req.VoterID, req.ElectionID)

	s.logger.Info("ballot recorded",
		zap.String("election_id", req.ElectionID),
		zap.String("vote_hash_prefix", prefixHash(ballot.VoteHash)),
		zap.Time("cast_at", ballot.CastAt))

	return &domain.VoteReceipt{
		VoteHash:   ballot.VoteHash,
		ElectionID: ballot.ElectionID,
		CastAt:     ballot.CastAt,
		Message:    "Vote recorded. Keep this hash to verify your ballot later.",
	}, nil
}

// VerifyReceipt looks a ballot up by its vote hash. The receipt carries
// no voter identity.
func (s *VotingService) VerifyReceipt(ctx context.Context, voteHash string) (*domain.VoteReceipt, error) {
	ballot, err := s.vault.FindByHash(ctx, voteHash)
	if err != nil {
		return nil, fmt.Errorf("failed to look up ballot: %w", err)
	}
	if ballot == nil {
		return nil, domain.ErrReceiptNotFound
	}

	return &domain.VoteReceipt{
		VoteHash:   ballot.VoteHash,
		ElectionID: ballot.ElectionID,
		CastAt:     ballot.CastAt,
		Message:    "Ballot found in the vault.",
	}, nil
}

func (s *VotingService) cacheVotedStatus(ctx context.Context, voterID, electionID string) {
	if s.redis == nil {
		return
	}
	votedKey := s.redis.KeyBuilder.KeyVoterVoted(voterID, electionID)
	if err := s.redis.Set(ctx, votedKey, "1", redis.TTLVoterVoted); err != nil {
		s.logger.Warn("failed to cache voted status",
			zap.String("election_id", electionID),
			zap.Error(err))
	}
}

func prefixHash(hash string) string {
	if len(hash) <= 12 {
		return hash
	}
	return hash[:12] + "..."
}

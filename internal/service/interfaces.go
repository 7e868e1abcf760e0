package service

import (
	"context"
	"time"

	"github.com/stone-hackingod/backend-votux/internal/domain"
)

// VoteCipher seals and opens vote payloads and mints ballot fingerprints
type VoteCipher interface {
	// Encrypt seals a plaintext under the election's derived key
	Encrypt(plaintext []byte, electionID string) (domain.EncryptedVote, error)

	// Decrypt opens a sealed payload; failures are CryptoErrors, never
	// silent zeroes
	Decrypt(encrypted domain.EncryptedVote, electionID string) ([]byte, error)

	// Fingerprint mints the unlinkable vote hash used as storage key and
	// voter receipt
	Fingerprint(voterID, electionID string, ts time.Time) (string, error)
}

// TallyLocker serializes tally runs per election. Implementations return
// redis.ErrLockNotAcquired when the lock is already held.
type TallyLocker interface {
	WithLock(ctx context.Context, name string, expiry time.Duration, action func() error) error
}

// Services aggregates the ballot protocol services
type Services struct {
	Voting      *VotingService
	Eligibility *EligibilityService
	Tally       *TallyService
	TieBreak    *TieBreakService
}

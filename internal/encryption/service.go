package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/crypto/argon2"
	"golang.org/x/crypto/sha3"

	"github.com/stone-hackingod/backend-votux/internal/domain"
)

// MinSecretLen is the smallest accepted long-term secret
const MinSecretLen = 32

// Argon2id parameters for per-election key derivation
const (
	keyLen       = 32
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
)

// Service encrypts and decrypts vote payloads and generates unlinkable
// ballot fingerprints. Each election gets its own 256-bit key derived from
// the long-term secret with the election id as salt, so two elections never
// share an effective key even under the same secret.
type Service struct {
	secret []byte

	mu   sync.Mutex
	keys map[string][]byte
}

// NewService creates a vote cipher over the given long-term secret
func NewService(secret string) (*Service, error) {
	if len(secret) < MinSecretLen {
		return nil, domain.NewCryptoError("init",
			fmt.Errorf("encryption secret must be at least %d bytes, got %d", MinSecretLen, len(secret)))
	}
	return &Service{
		secret: []byte(secret),
		keys:   make(map[string][]byte),
	}, nil
}

// electionKey derives and caches the per-election key. Argon2id is
// deliberately expensive, so the derived key is computed once per election.
func (s *Service) electionKey(electionID string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key, ok := s.keys[electionID]; ok {
		return key
	}
	salt := []byte("votekey:" + electionID)
	key := argon2.IDKey(s.secret, salt, argonTime, argonMemory, argonThreads, keyLen)
	s.keys[electionID] = key
	return key
}

// Encrypt seals a vote payload under the election's key with a fresh random
// IV. The GCM authentication tag is returned as a separate field.
func (s *Service) Encrypt(plaintext []byte, electionID string) (domain.EncryptedVote, error) {
	if electionID == "" {
		return domain.EncryptedVote{}, domain.NewCryptoError("encrypt", errors.New("empty election id"))
	}

	block, err := aes.NewCipher(s.electionKey(electionID))
	if err != nil {
		return domain.EncryptedVote{}, domain.NewCryptoError("encrypt", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return domain.EncryptedVote{}, domain.NewCryptoError("encrypt", err)
	}

	iv := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return domain.EncryptedVote{}, domain.NewCryptoError("encrypt", err)
	}

	sealed := gcm.Seal(nil, iv, plaintext, nil)
	tagStart := len(sealed) - gcm.Overhead()

	return domain.EncryptedVote{
		Ciphertext: sealed[:tagStart],
		IV:         iv,
		AuthTag:    sealed[tagStart:],
	}, nil
}

// Decrypt opens a sealed vote payload. Tag mismatch, wrong IV or a payload
// sealed for a different election all fail with a CryptoError; the caller
// must treat that as "undecryptable", never as "zero votes".
func (s *Service) Decrypt(encrypted domain.EncryptedVote, electionID string) ([]byte, error) {
	if electionID == "" {
		return nil, domain.NewCryptoError("decrypt", errors.New("empty election id"))
	}
	if len(encrypted.IV) == 0 || len(encrypted.AuthTag) == 0 {
		return nil, domain.NewCryptoError("decrypt", errors.New("missing iv or auth tag"))
	}

	block, err := aes.NewCipher(s.electionKey(electionID))
	if err != nil {
		return nil, domain.NewCryptoError("decrypt", err)
	}

	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, domain.NewCryptoError("decrypt", err)
	}
	if len(encrypted.IV) != gcm.NonceSize() {
		return nil, domain.NewCryptoError("decrypt",
			fmt.Errorf("iv must be %d bytes, got %d", gcm.NonceSize(), len(encrypted.IV)))
	}

	sealed := make([]byte, 0, len(encrypted.Ciphertext)+len(encrypted.AuthTag))
	sealed = append(sealed, encrypted.Ciphertext...)
	sealed = append(sealed, encrypted.AuthTag...)

	plaintext, err := gcm.Open(nil, encrypted.IV, sealed, nil)
	if err != nil {
		return nil, domain.NewCryptoError("decrypt", err)
	}
	return plaintext, nil
}

// Fingerprint produces the vote hash stored with a ballot and handed to the
// voter as a receipt. The hash mixes in 32 bytes of fresh random material,
// so it cannot be reconstructed or correlated back to the voter even when
// election id and timestamp are known. It is a storage key only, never a
// join key into the eligibility ledger.
func (s *Service) Fingerprint(voterID, electionID string, ts time.Time) (string, error) {
	entropy := make([]byte, 32)
	if _, err := rand.Read(entropy); err != nil {
		return "", domain.NewCryptoError("fingerprint", err)
	}

	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(ts.UnixNano()))

	h := sha3.New256()
	h.Write([]byte(voterID))
	h.Write([]byte{0})
	h.Write([]byte(electionID))
	h.Write([]byte{0})
	h.Write(tsBuf[:])
	h.Write(entropy)

	return hex.EncodeToString(h.Sum(nil)), nil
}

package domain

import (
	"time"
)

// VotePayload is the plaintext content of a ballot before encryption
type VotePayload struct {
	ElectionID  string    `json:"election_id"`
	CandidateID string    `json:"candidate_id"`
	Timestamp   time.Time `json:"timestamp"`
}

// EncryptedVote is the output of the vote cipher: AES-GCM ciphertext with
// its IV and authentication tag carried as separate fields
type EncryptedVote struct {
	Ciphertext []byte `json:"ciphertext"`
	IV         []byte `json:"iv"`
	AuthTag    []byte `json:"auth_tag"`
}

// Ballot represents an encrypted vote at rest. It carries no voter
// reference; the vote hash contains independent random material and cannot
// be correlated back to an eligibility record.
type Ballot struct {
	ID         string    `json:"id"`
	ElectionID string    `json:"election_id"`
	Ciphertext []byte    `json:"-"`
	IV         []byte    `json:"-"`
	AuthTag    []byte    `json:"-"`
	VoteHash   string    `json:"vote_hash"`
	CastAt     time.Time `json:"cast_at"`
}

// Encrypted returns the ballot's payload in cipher form
func (b *Ballot) Encrypted() EncryptedVote {
	return EncryptedVote{Ciphertext: b.Ciphertext, IV: b.IV, AuthTag: b.AuthTag}
}

// VoteRequest represents a vote submission request
type VoteRequest struct {
	VoterID     string `json:"voter_id"`
	ElectionID  string `json:"election_id"`
	CandidateID string `json:"candidate_id"`
}

// VoteReceipt is the voter-facing proof of participation. It proves a ballot
// was stored and reveals nothing about its content.
type VoteReceipt struct {
	VoteHash   string    `json:"vote_hash"`
	ElectionID string    `json:"election_id"`
	CastAt     time.Time `json:"cast_at"`
	Message    string    `json:"message,omitempty"`
}

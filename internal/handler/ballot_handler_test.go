package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stone-hackingod/backend-votux/internal/domain"
)

func TestValidateVoteRequest(t *testing.T) {
	tests := []struct {
		name    string
		request domain.VoteRequest
		wantErr bool
	}{
		{
			name: "valid request",
			request: domain.VoteRequest{
				VoterID:     "voter-1",
				ElectionID:  "election-1",
				CandidateID: "cand-a",
			},
			wantErr: false,
		},
		{
			name: "missing voter id",
			request: domain.VoteRequest{
				ElectionID:  "election-1",
				CandidateID: "cand-a",
			},
			wantErr: true,
		},
		{
			name: "missing election id",
			request: domain.VoteRequest{
				VoterID:     "voter-1",
				CandidateID: "cand-a",
			},
			wantErr: true,
		},
		{
			name: "missing candidate id",
			request: domain.VoteRequest{
				VoterID:    "voter-1",
				ElectionID: "election-1",
			},
			wantErr: true,
		},
		{
			name: "oversized identifier",
			request: domain.VoteRequest{
				VoterID:     strings.Repeat("x", 129),
				ElectionID:  "election-1",
				CandidateID: "cand-a",
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := validateVoteRequest(&tt.request)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateVoteRequest() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubmitVote_ReturnsReceipt(t *testing.T) {
	env := newTestEnv(t)
	env.store.seedActiveElection("election-1", "cand-a", "cand-b")
	env.store.seedVoter("voter-1", "election-1")

	w := env.do(t, http.MethodPost, "/api/v1/votes", domain.VoteRequest{
		VoterID:     "voter-1",
		ElectionID:  "election-1",
		CandidateID: "cand-a",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code)

	var receipt domain.VoteReceipt
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &receipt))
	assert.Len(t, receipt.VoteHash, 64)
	assert.Equal(t, "election-1", receipt.ElectionID)
	assert.False(t, receipt.CastAt.IsZero())
	assert.NotEmpty(t, receipt.Message)

	// The receipt must not echo who voted
	assert.NotContains(t, w.Body.String(), "voter")

	status, err := env.store.Check(context.Background(), "voter-1", "election-1")
	require.NoError(t, err)
	assert.True(t, status.HasVoted)
}

func TestSubmitVote_SecondVoteConflict(t *testing.T) {
	env := newTestEnv(t)
	env.store.seedActiveElection("election-1", "cand-a", "cand-b")
	env.store.seedVoter("voter-1", "election-1")

	req := domain.VoteRequest{VoterID: "voter-1", ElectionID: "election-1", CandidateID: "cand-a"}

	w := env.do(t, http.MethodPost, "/api/v1/votes", req, "")
	require.Equal(t, http.StatusCreated, w.Code)

	// Switching candidates must not help
	req.CandidateID = "cand-b"
	w = env.do(t, http.MethodPost, "/api/v1/votes", req, "")
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "state", decodeError(t, w).Error.Type)

	count, err := env.store.CountForElection(context.Background(), "election-1")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestSubmitVote_IneligibleVoter(t *testing.T) {
	env := newTestEnv(t)
	env.store.seedActiveElection("election-1", "cand-a")

	w := env.do(t, http.MethodPost, "/api/v1/votes", domain.VoteRequest{
		VoterID:     "stranger",
		ElectionID:  "election-1",
		CandidateID: "cand-a",
	}, "")
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, "authorization", decodeError(t, w).Error.Type)
}

func TestSubmitVote_UnknownElection(t *testing.T) {
	env := newTestEnv(t)
	env.store.seedVoter("voter-1", "ghost-election")

	w := env.do(t, http.MethodPost, "/api/v1/votes", domain.VoteRequest{
		VoterID:     "voter-1",
		ElectionID:  "ghost-election",
		CandidateID: "cand-a",
	}, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeError(t, w).Error.Type)
}

func TestSubmitVote_UnknownCandidate(t *testing.T) {
	env := newTestEnv(t)
	env.store.seedActiveElection("election-1", "cand-a")
	env.store.seedVoter("voter-1", "election-1")

	w := env.do(t, http.MethodPost, "/api/v1/votes", domain.VoteRequest{
		VoterID:     "voter-1",
		ElectionID:  "election-1",
		CandidateID: "cand-z",
	}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", decodeError(t, w).Error.Type)
}

func TestSubmitVote_MalformedBody(t *testing.T) {
	env := newTestEnv(t)

	w := env.doRaw(t, http.MethodPost, "/api/v1/votes", "{not json", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", decodeError(t, w).Error.Type)
}

func TestGetResults_BeforeTally(t *testing.T) {
	env := newTestEnv(t)
	env.store.seedActiveElection("election-1", "cand-a")

	w := env.do(t, http.MethodGet, "/api/v1/elections/election-1/results", nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeError(t, w).Error.Type)
}

func TestGetResults_AfterTally(t *testing.T) {
	env := newTestEnv(t)
	env.store.seedActiveElection("election-1", "cand-a", "cand-b")
	for _, vote := range []struct{ voter, candidate string }{
		{"voter-1", "cand-a"},
		{"voter-2", "cand-a"},
		{"voter-3", "cand-b"},
	} {
		env.store.seedVoter(vote.voter, "election-1")
		w := env.do(t, http.MethodPost, "/api/v1/votes", domain.VoteRequest{
			VoterID:     vote.voter,
			ElectionID:  "election-1",
			CandidateID: vote.candidate,
		}, "")
		require.Equal(t, http.StatusCreated, w.Code)
	}

	token := adminToken(t, testAdminSecret, "admin-1", "admin")
	w := env.do(t, http.MethodPost, "/api/v1/admin/elections/election-1/tally", nil, token)
	require.Equal(t, http.StatusOK, w.Code)

	w = env.do(t, http.MethodGet, "/api/v1/elections/election-1/results", nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var snapshot domain.ResultSnapshot
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &snapshot))
	assert.Equal(t, 3, snapshot.TotalVotes)
	require.Len(t, snapshot.Results.List, 2)
	assert.Equal(t, "cand-a", snapshot.Results.List[0].CandidateID)
	assert.Equal(t, 2, snapshot.Results.List[0].Votes)
	assert.InDelta(t, 66.67, snapshot.Results.List[0].Percentage, 0.01)
	assert.False(t, snapshot.Results.Tie)
	require.NotNil(t, snapshot.WinnerID)
	assert.Equal(t, "cand-a", *snapshot.WinnerID)

	etag := w.Header().Get("ETag")
	require.NotEmpty(t, etag)
	assert.Equal(t, "public, max-age=30", w.Header().Get("Cache-Control"))

	req, err := http.NewRequest(http.MethodGet, "/api/v1/elections/election-1/results", nil)
	require.NoError(t, err)
	req.Header.Set("If-None-Match", etag)
	cached := httptest.NewRecorder()
	env.router.ServeHTTP(cached, req)
	assert.Equal(t, http.StatusNotModified, cached.Code)
	assert.Empty(t, cached.Body.String())
}

func TestVerifyReceipt(t *testing.T) {
	env := newTestEnv(t)
	env.store.seedActiveElection("election-1", "cand-a")
	env.store.seedVoter("voter-1", "election-1")

	w := env.do(t, http.MethodPost, "/api/v1/votes", domain.VoteRequest{
		VoterID:     "voter-1",
		ElectionID:  "election-1",
		CandidateID: "cand-a",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code)

	var receipt domain.VoteReceipt
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &receipt))

	w = env.do(t, http.MethodGet, "/api/v1/receipts/"+receipt.VoteHash, nil, "")
	require.Equal(t, http.StatusOK, w.Code)

	var verified domain.VoteReceipt
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &verified))
	assert.Equal(t, receipt.VoteHash, verified.VoteHash)
	assert.Equal(t, "election-1", verified.ElectionID)
}

func TestVerifyReceipt_BadHashLength(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/receipts/deadbeef", nil, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "validation", decodeError(t, w).Error.Type)
}

func TestVerifyReceipt_UnknownHash(t *testing.T) {
	env := newTestEnv(t)

	w := env.do(t, http.MethodGet, "/api/v1/receipts/"+strings.Repeat("ab", 32), nil, "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decodeError(t, w).Error.Type)
}

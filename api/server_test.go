package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voting-ledger/blockchain/ledger"
	"voting-ledger/encryption"
	"voting-ledger/models"
	"voting-ledger/registry"
	"voting-ledger/service"
	"voting-ledger/storage"
)

type testEnv struct {
	server *Server
	svc    *service.VotingService
	queue  *service.QueueProcessor
	store  *storage.RecordStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := storage.NewRecordStore("")
	require.NoError(t, err)
	_, err = registry.Apply(store, registry.DefaultSeed(), time.Now())
	require.NoError(t, err)

	chain, err := ledger.New(ledger.Config{Difficulty: 1})
	require.NoError(t, err)
	crypto, err := encryption.NewEphemeralCryptoService()
	require.NoError(t, err)

	svc := service.NewVotingService(store, chain, crypto)
	queue := service.NewQueueProcessor(svc, 10, 0)
	queue.Start()
	t.Cleanup(queue.Stop)

	return &testEnv{
		server: NewServer(svc, queue),
		svc:    svc,
		queue:  queue,
		store:  store,
	}
}

func (e *testEnv) do(t *testing.T, method, target string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func (e *testEnv) castVote(t *testing.T, voterID, candidateID int64) *httptest.ResponseRecorder {
	t.Helper()
	return e.do(t, http.MethodPost, "/api/vote", CastVoteRequest{VoterID: voterID, ElectionID: 1, CandidateID: candidateID})
}

func TestListElections(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/elections?active=true", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var elections []models.Election
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&elections))
	require.Len(t, elections, 1)
	assert.Equal(t, "Student Council President Election 2025", elections[0].Title)

	rec = env.do(t, http.MethodPost, "/api/elections", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCastVoteAndConfirm(t *testing.T) {
	env := newTestEnv(t)

	rec := env.castVote(t, 1, 2)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var vote models.VoteRecord
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&vote))
	assert.Equal(t, int64(2), vote.CandidateID)
	assert.NotEmpty(t, vote.Receipt)

	rec = env.do(t, http.MethodGet, "/api/vote?id="+vote.ID, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var confirmation service.VoteConfirmation
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&confirmation))
	assert.True(t, confirmation.ReceiptValid)
	assert.True(t, confirmation.EntryInChain)
	assert.Equal(t, "Bob Smith", confirmation.Candidate.Name)

	rec = env.castVote(t, 1, 1)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = env.do(t, http.MethodGet, "/api/vote?id=nope", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCastVoteBadRequests(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest(http.MethodPost, "/api/vote", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	env.server.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.do(t, http.MethodPost, "/api/vote", CastVoteRequest{VoterID: 1})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.castVote(t, 1, 99)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = env.castVote(t, 99, 1)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = env.do(t, http.MethodDelete, "/api/vote", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestResultsAndDetail(t *testing.T) {
	env := newTestEnv(t)
	for voter, candidate := range map[int64]int64{1: 1, 2: 1, 3: 1, 4: 2} {
		require.Equal(t, http.StatusCreated, env.castVote(t, voter, candidate).Code)
	}

	rec := env.do(t, http.MethodGet, "/api/results?election_id=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var results service.ElectionResults
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&results))
	assert.Equal(t, 4, results.TotalVotes)
	require.Len(t, results.Results, 3)
	assert.Equal(t, 3, results.Results[0].Votes)
	assert.Equal(t, 1, results.Results[1].Votes)
	assert.Equal(t, 0, results.Results[2].Votes)

	rec = env.do(t, http.MethodGet, "/api/elections/detail?id=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var detail service.ElectionDetail
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&detail))
	assert.True(t, detail.IsOngoing)
	assert.Len(t, detail.Candidates, 3)

	assert.Equal(t, http.StatusNotFound, env.do(t, http.MethodGet, "/api/results?election_id=9", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/results?election_id=x", nil).Code)
	assert.Equal(t, http.StatusBadRequest, env.do(t, http.MethodGet, "/api/elections/detail", nil).Code)
}

func TestBlockchainEndpoints(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusCreated, env.castVote(t, 1, 1).Code)

	rec := env.do(t, http.MethodGet, "/api/blockchain", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var view struct {
		Chain   []models.ExportedEntry `json:"chain"`
		IsValid bool                   `json:"is_valid"`
		Length  int                    `json:"chain_length"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&view))
	assert.True(t, view.IsValid)
	assert.Equal(t, 2, view.Length)
	assert.Equal(t, "0", view.Chain[0].PreviousDigest)
	assert.Equal(t, view.Chain[0].Digest, view.Chain[1].PreviousDigest)

	rec = env.do(t, http.MethodGet, "/api/blockchain/validate", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var report service.ValidationReport
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&report))
	assert.True(t, report.IsValid)
	assert.Empty(t, report.Errors)

	rec = env.do(t, http.MethodGet, "/api/voters/voted?voter_id=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var status VoterStatusResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.True(t, status.HasVotedInChain)

	rec = env.do(t, http.MethodGet, "/api/voters/voted?voter_id=2", nil)
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&status))
	assert.False(t, status.HasVotedInChain)
}

func TestExportBlockchain(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/blockchain/export", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	archive, err := storage.NewChainArchive(t.TempDir(), 1)
	require.NoError(t, err)
	env.svc.SetArchive(archive)

	rec = env.do(t, http.MethodPost, "/api/blockchain/export", nil)
	require.Equal(t, http.StatusCreated, rec.Code)
	var resp ArchiveResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.FileExists(t, resp.Path)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	require.Equal(t, http.StatusCreated, env.castVote(t, 1, 1).Code)

	rec := env.do(t, http.MethodGet, "/api/metrics", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var m service.MetricsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&m))
	assert.Equal(t, 1, m.Voting.Count)
	assert.Equal(t, 1, m.Sealing.Count)
	assert.Equal(t, encryption.SHA256, m.Sealing.HashAlgorithm)
}

func TestStreamBroadcastsSealedEntries(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()
	defer env.server.Hub().Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/blockchain/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var hello struct {
		Type string               `json:"type"`
		Data models.ExportedEntry `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&hello))
	assert.Equal(t, "tail", hello.Type)
	assert.Equal(t, uint64(0), hello.Data.Index)

	// The client joins the hub together with its greeting
	require.Eventually(t, func() bool { return env.server.Hub().Clients() == 1 }, time.Second, 10*time.Millisecond)

	require.Equal(t, http.StatusCreated, env.castVote(t, 1, 1).Code)

	var msg struct {
		Type string               `json:"type"`
		Data models.ExportedEntry `json:"data"`
	}
	require.NoError(t, conn.ReadJSON(&msg))
	assert.Equal(t, "entry", msg.Type)
	assert.Equal(t, uint64(1), msg.Data.Index)
	assert.Equal(t, hello.Data.Digest, msg.Data.PreviousDigest)
}

func TestStreamGreetingLeavesNoGap(t *testing.T) {
	env := newTestEnv(t)
	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()
	defer env.server.Hub().Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/blockchain/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	// Seal without waiting for registration; entry 1 must arrive either as
	// the greeting tail or as a later frame
	require.Equal(t, http.StatusCreated, env.castVote(t, 1, 1).Code)

	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	seen := false
	for !seen {
		var msg struct {
			Type string               `json:"type"`
			Data models.ExportedEntry `json:"data"`
		}
		require.NoError(t, conn.ReadJSON(&msg))
		seen = msg.Data.Index == 1
	}
}

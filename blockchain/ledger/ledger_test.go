package ledger

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voting-ledger/encryption"
	"voting-ledger/models"
)

func newTestLedger(t *testing.T, difficulty int) *Ledger {
	t.Helper()
	l, err := New(Config{Difficulty: difficulty, HashAlgorithm: encryption.SHA256})
	require.NoError(t, err)
	return l
}

func appendVote(t *testing.T, l *Ledger, voterID, candidateID int) models.Entry {
	t.Helper()
	e, err := l.Append(context.Background(), map[string]any{
		"voter_id":     voterID,
		"candidate_id": candidateID,
		"election_id":  1,
	})
	require.NoError(t, err)
	return e
}

func TestNewLedgerGenesis(t *testing.T) {
	l := NewDefault()

	require.Equal(t, 1, l.Len())
	assert.Equal(t, DefaultDifficulty, l.Difficulty())
	assert.Equal(t, encryption.SHA256, l.HashAlgorithm())

	genesis := l.Tail()
	assert.Equal(t, uint64(0), genesis.Index)
	assert.Equal(t, "0", genesis.PreviousDigest)
	assert.Equal(t, uint64(0), genesis.Nonce)
	assert.Equal(t, "Genesis Block", genesis.Payload["vote"])
	assert.Equal(t, genesis.ComputeDigest(encryption.DefaultHash()), genesis.Digest)
	assert.True(t, l.IsValid())
}

func TestNewLedgerRejectsBadConfig(t *testing.T) {
	_, err := New(Config{Difficulty: -1})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{Difficulty: 65})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = New(Config{Difficulty: 1, HashAlgorithm: "md5"})
	assert.ErrorIs(t, err, ErrInvalidConfig)
	assert.ErrorIs(t, err, encryption.ErrUnknownHash)
}

func TestAppendSealsAndLinks(t *testing.T) {
	l := newTestLedger(t, 2)

	for i := 1; i <= 5; i++ {
		e := appendVote(t, l, i, i%2+1)
		assert.Equal(t, uint64(i), e.Index)
		assert.True(t, strings.HasPrefix(e.Digest, "00"), "digest %s lacks proof of work", e.Digest)
	}

	entries := l.Entries()
	require.Len(t, entries, 6)
	for i := 1; i < len(entries); i++ {
		assert.Equal(t, uint64(i), entries[i].Index)
		assert.Equal(t, entries[i-1].Digest, entries[i].PreviousDigest)
		assert.Equal(t, entries[i].ComputeDigest(encryption.DefaultHash()), entries[i].Digest)
	}
	assert.True(t, l.IsValid())
	assert.Empty(t, l.Validate())
}

func TestAppendReturnsIndependentCopy(t *testing.T) {
	l := newTestLedger(t, 1)
	fields := map[string]any{"voter_id": 1, "candidate_id": 1}

	e, err := l.Append(context.Background(), fields)
	require.NoError(t, err)

	e.Payload["candidate_id"] = int64(42)
	fields["candidate_id"] = 42

	assert.True(t, l.IsValid())
	assert.Equal(t, 1, l.CountByField("candidate_id", 1))
}

func TestAppendRejectsUnsupportedPayload(t *testing.T) {
	l := newTestLedger(t, 1)

	_, err := l.Append(context.Background(), map[string]any{"ballot": []string{"a"}})
	assert.ErrorIs(t, err, models.ErrUnsupportedValue)
	assert.Equal(t, 1, l.Len())
}

func TestAppendWithOtherHashes(t *testing.T) {
	for _, algo := range []string{encryption.SHA3_256, encryption.Keccak256} {
		t.Run(algo, func(t *testing.T) {
			l, err := New(Config{Difficulty: 1, HashAlgorithm: algo})
			require.NoError(t, err)

			e := appendVote(t, l, 1, 1)
			assert.True(t, strings.HasPrefix(e.Digest, "0"))
			assert.Len(t, e.Digest, 64)
			assert.True(t, l.IsValid())
		})
	}
}

func TestDifficultyZeroAcceptsFirstNonce(t *testing.T) {
	l := newTestLedger(t, 0)

	e := appendVote(t, l, 1, 1)
	assert.Equal(t, uint64(0), e.Nonce)
	assert.True(t, l.IsValid())
}

func TestProofOfWorkNonceBound(t *testing.T) {
	l, err := New(Config{Difficulty: 64, MaxNonce: 10})
	require.NoError(t, err)

	_, err = l.Append(context.Background(), map[string]any{"voter_id": 1})
	assert.ErrorIs(t, err, ErrNonceExhausted)
	assert.Contains(t, err.Error(), "in 10 attempts")
	assert.Equal(t, 1, l.Len())
}

func TestProofOfWorkSingleNonce(t *testing.T) {
	l, err := New(Config{Difficulty: 64, MaxNonce: 1})
	require.NoError(t, err)

	_, err = l.Append(context.Background(), map[string]any{"voter_id": 1})
	assert.ErrorIs(t, err, ErrNonceExhausted)
	assert.Contains(t, err.Error(), "in 1 attempts")

	// nonce 0 is the only candidate and difficulty 0 accepts it
	l, err = New(Config{Difficulty: 0, MaxNonce: 1})
	require.NoError(t, err)
	e, err := l.Append(context.Background(), map[string]any{"voter_id": 1})
	require.NoError(t, err)
	assert.Equal(t, uint64(0), e.Nonce)
}

func TestProofOfWorkCancellation(t *testing.T) {
	l := newTestLedger(t, 64)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := l.Append(ctx, map[string]any{"voter_id": 1})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, l.Len())
}

func TestTamperDetection(t *testing.T) {
	l := newTestLedger(t, 1)
	appendVote(t, l, 1, 1)
	appendVote(t, l, 2, 2)
	require.True(t, l.IsValid())

	original := l.entries[1].Payload["candidate_id"]
	l.entries[1].Payload["candidate_id"] = int64(999)
	assert.False(t, l.IsValid())

	violations := l.Validate()
	require.NotEmpty(t, violations)
	assert.Equal(t, uint64(1), violations[0].Index)
	assert.Equal(t, ViolationDigestMismatch, violations[0].Kind)

	l.entries[1].Payload["candidate_id"] = original
	assert.True(t, l.IsValid())
}

func TestTamperDetectionRecomputedDigest(t *testing.T) {
	l := newTestLedger(t, 1)
	appendVote(t, l, 1, 1)
	appendVote(t, l, 2, 2)

	// Rewriting the digest too breaks the link held by the next entry
	l.entries[1].Payload["candidate_id"] = int64(2)
	l.entries[1].Digest = l.entries[1].ComputeDigest(l.hash)
	assert.False(t, l.IsValid())

	kinds := make(map[string]bool)
	for _, v := range l.Validate() {
		kinds[v.Kind] = true
	}
	assert.True(t, kinds[ViolationBrokenLink])
}

func TestTamperDetectionInvalidUTF8(t *testing.T) {
	l := newTestLedger(t, 1)

	_, err := l.Append(context.Background(), map[string]any{"voter_id": "\xff"})
	assert.ErrorIs(t, err, models.ErrUnsupportedValue)
	_, err = l.Append(context.Background(), map[string]any{"\xff": 1})
	assert.ErrorIs(t, err, models.ErrUnsupportedValue)
	require.Equal(t, 1, l.Len())

	// U+FFFD and a raw invalid byte must not share a digest
	appendVote(t, l, 1, 1)
	l.entries[1].Payload["note"] = "\ufffd"
	l.entries[1].Digest = l.entries[1].ComputeDigest(l.hash)
	l.entries[1].Payload["note"] = "\xfe"
	assert.False(t, l.IsValid())

	violations := l.Validate()
	require.NotEmpty(t, violations)
	assert.Equal(t, ViolationDigestMismatch, violations[0].Kind)
}

func TestTamperDetectionNonce(t *testing.T) {
	l := newTestLedger(t, 1)
	appendVote(t, l, 1, 1)

	l.entries[1].Nonce++
	assert.False(t, l.IsValid())
}

func TestCountByField(t *testing.T) {
	l := newTestLedger(t, 1)
	appendVote(t, l, 1, 1)
	appendVote(t, l, 2, 1)
	appendVote(t, l, 3, 1)
	appendVote(t, l, 4, 2)

	assert.Equal(t, 3, l.CountByField("candidate_id", 1))
	assert.Equal(t, 1, l.CountByField("candidate_id", 2))
	assert.Equal(t, 0, l.CountByField("candidate_id", 3))
	assert.Equal(t, 3, l.CountByField("candidate_id", int64(1)))
	assert.Equal(t, 3, l.CountByField("candidate_id", float64(1)))
	assert.Equal(t, 0, l.CountByField("missing_field", 1))
}

func TestCountByFieldSkipsGenesis(t *testing.T) {
	l := newTestLedger(t, 1)
	assert.Equal(t, 0, l.CountByField("vote", "Genesis Block"))
	assert.False(t, l.ExistsByField("vote", "Genesis Block"))
}

func TestExistsByField(t *testing.T) {
	l := newTestLedger(t, 1)
	assert.False(t, l.ExistsByField("voter_id", 7))

	appendVote(t, l, 7, 1)
	assert.True(t, l.ExistsByField("voter_id", 7))
	assert.False(t, l.ExistsByField("voter_id", 8))
	assert.False(t, l.ExistsByField("voter_id", "7"))
}

func TestExportChain(t *testing.T) {
	l := newTestLedger(t, 1)
	appendVote(t, l, 1, 1)
	appendVote(t, l, 2, 2)

	exported := l.ExportChain()
	entries := l.Entries()
	require.Len(t, exported, len(entries))
	for i := range exported {
		assert.Equal(t, entries[i].Digest, exported[i].Digest)
		assert.Equal(t, entries[i].Index, exported[i].Index)
		assert.Equal(t, entries[i].PreviousDigest, exported[i].PreviousDigest)
	}

	exported[1].Payload["candidate_id"] = int64(5)
	assert.True(t, l.IsValid())
}

func TestEntryByDigest(t *testing.T) {
	l := newTestLedger(t, 1)
	e := appendVote(t, l, 1, 1)

	got, err := l.EntryByDigest(e.Digest)
	require.NoError(t, err)
	assert.Equal(t, e.Index, got.Index)

	_, err = l.EntryByDigest("deadbeef")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestLoadDetectsTamperedCopy(t *testing.T) {
	cfg := Config{Difficulty: 1}
	l, err := New(cfg)
	require.NoError(t, err)
	appendVote(t, l, 1, 1)
	appendVote(t, l, 2, 2)

	entries := l.Entries()
	clean, err := Load(cfg, entries)
	require.NoError(t, err)
	assert.True(t, clean.IsValid())

	entries[2].Payload["candidate_id"] = int64(1)
	tampered, err := Load(cfg, entries)
	require.NoError(t, err)
	assert.False(t, tampered.IsValid())
	assert.True(t, l.IsValid())

	_, err = Load(cfg, entries[1:])
	assert.ErrorIs(t, err, ErrNoGenesis)
}

func TestConcurrentAppendKeepsChainLinked(t *testing.T) {
	l := newTestLedger(t, 1)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(voter int) {
			defer wg.Done()
			_, err := l.Append(context.Background(), map[string]any{"voter_id": voter, "candidate_id": 1})
			assert.NoError(t, err)
		}(i)
	}

	// Readers run alongside the writers
	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 50; i++ {
			_ = l.CountByField("candidate_id", 1)
			_ = l.ExportChain()
		}
	}()

	wg.Wait()
	<-done

	require.Equal(t, 21, l.Len())
	assert.True(t, l.IsValid())
	assert.Equal(t, 20, l.CountByField("candidate_id", 1))
}

func TestAppendUsesLedgerClock(t *testing.T) {
	fixed := time.Date(2025, 1, 1, 12, 0, 0, 0, time.FixedZone("EST", -5*3600))
	l := newTestLedger(t, 1)
	l.now = func() time.Time { return fixed }

	e := appendVote(t, l, 1, 1)
	assert.True(t, e.CreatedAt.Equal(fixed))
	assert.Equal(t, time.UTC, e.CreatedAt.Location())
	assert.True(t, l.IsValid())
}

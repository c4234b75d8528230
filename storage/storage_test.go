package storage

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voting-ledger/models"
)

func sampleChain() []models.ExportedEntry {
	return []models.ExportedEntry{
		{Index: 0, PreviousDigest: "0", Digest: "aa", Payload: models.Payload{"vote": "Genesis Block"}},
		{Index: 1, PreviousDigest: "aa", Digest: "0b", Payload: models.Payload{"voter_id": int64(1)}},
	}
}

func TestChainArchiveSaveAndLatest(t *testing.T) {
	archive, err := NewChainArchive(t.TempDir(), 3)
	require.NoError(t, err)

	path, err := archive.Save(sampleChain(), true)
	require.NoError(t, err)
	assert.FileExists(t, path)

	latest, err := archive.Latest()
	require.NoError(t, err)
	assert.True(t, latest.IsValid)
	assert.Equal(t, 2, latest.Length)
	require.Len(t, latest.Chain, 2)
	assert.Equal(t, "0b", latest.Chain[1].Digest)
}

func TestChainArchiveRetention(t *testing.T) {
	dir := t.TempDir()
	archive, err := NewChainArchive(dir, 2)
	require.NoError(t, err)

	base := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 0; i < 4; i++ {
		at := base.Add(time.Duration(i) * time.Second)
		archive.now = func() time.Time { return at }
		_, err := archive.Save(sampleChain()[:i%2+1], i == 3)
		require.NoError(t, err)
	}

	files, err := filepath.Glob(filepath.Join(dir, archivePrefix+"*.json"))
	require.NoError(t, err)
	assert.Len(t, files, 2)

	latest, err := archive.Latest()
	require.NoError(t, err)
	assert.True(t, latest.IsValid)
	assert.True(t, latest.ExportedAt.Equal(base.Add(3*time.Second)))
}

func TestChainArchiveRejectsEmpty(t *testing.T) {
	archive, err := NewChainArchive(t.TempDir(), 0)
	require.NoError(t, err)

	_, err = archive.Save(nil, true)
	assert.ErrorIs(t, err, ErrEmptyChain)

	_, err = archive.Latest()
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestChainArchiveSkipsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, archivePrefix+"garbage.json"), []byte("{}"), 0644))

	archive, err := NewChainArchive(dir, 1)
	require.NoError(t, err)

	_, err = archive.Latest()
	assert.ErrorIs(t, err, ErrNotFound)
}

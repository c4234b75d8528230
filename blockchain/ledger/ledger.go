// File: blockchain/ledger/ledger.go
package ledger

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"voting-ledger/encryption"
	"voting-ledger/models"
)

const DefaultDifficulty = 2

var (
	ErrNotFound       = errors.New("ledger: not found")
	ErrNonceExhausted = errors.New("ledger: nonce search exhausted")
	ErrInvalidConfig  = errors.New("ledger: invalid config")
	ErrNoGenesis      = errors.New("ledger: missing genesis entry")
)

// Config fixes the sealing parameters for the lifetime of a Ledger
type Config struct {
	Difficulty    int    `yaml:"difficulty"`
	HashAlgorithm string `yaml:"hash"`
	MaxNonce      uint64 `yaml:"max_nonce"` // 0 means unbounded
}

func DefaultConfig() Config {
	return Config{
		Difficulty:    DefaultDifficulty,
		HashAlgorithm: encryption.SHA256,
	}
}

// Ledger is an append-only chain of proof-of-work sealed entries. Append is
// a critical section; queries share a read lock.
type Ledger struct {
	entries    []models.Entry
	difficulty int
	target     string
	algorithm  string
	hash       encryption.HashFunc
	maxNonce   uint64
	now        func() time.Time
	mutex      sync.RWMutex
}

func genesisPayload() models.Payload {
	return models.Payload{"vote": "Genesis Block"}
}

func New(cfg Config) (*Ledger, error) {
	hash, err := encryption.LookupHash(cfg.HashAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if cfg.Difficulty < 0 || cfg.Difficulty > encryption.DigestSize*2 {
		return nil, fmt.Errorf("%w: difficulty %d out of range [0, %d]",
			ErrInvalidConfig, cfg.Difficulty, encryption.DigestSize*2)
	}

	algorithm := strings.ToLower(strings.TrimSpace(cfg.HashAlgorithm))
	if algorithm == "" {
		algorithm = encryption.SHA256
	}

	l := &Ledger{
		difficulty: cfg.Difficulty,
		target:     strings.Repeat("0", cfg.Difficulty),
		algorithm:  algorithm,
		hash:       hash,
		maxNonce:   cfg.MaxNonce,
		now:        time.Now,
	}

	// Genesis is accepted as-is, never mined
	genesis := models.NewEntry(0, l.now(), genesisPayload(), models.GenesisPreviousDigest, l.hash)
	l.entries = []models.Entry{genesis}

	return l, nil
}

// Load builds a ledger over entries previously taken from Entries without
// re-sealing them. Only the genesis shape is checked; the result may fail
// IsValid.
func Load(cfg Config, entries []models.Entry) (*Ledger, error) {
	if len(entries) == 0 || entries[0].Index != 0 || entries[0].PreviousDigest != models.GenesisPreviousDigest {
		return nil, ErrNoGenesis
	}

	l, err := New(cfg)
	if err != nil {
		return nil, err
	}

	l.entries = make([]models.Entry, len(entries))
	for i, e := range entries {
		l.entries[i] = e.Clone()
	}
	return l, nil
}

// NewDefault builds a ledger with DefaultConfig
func NewDefault() *Ledger {
	l, err := New(DefaultConfig())
	if err != nil {
		panic(err)
	}
	return l
}

// Append seals payload onto the tail of the chain and returns a copy of the
// sealed entry. It holds the write lock from reading the tail until the
// entry is committed.
func (l *Ledger) Append(ctx context.Context, fields map[string]any) (models.Entry, error) {
	payload, err := models.NormalizePayload(fields)
	if err != nil {
		return models.Entry{}, fmt.Errorf("invalid payload: %w", err)
	}

	l.mutex.Lock()
	defer l.mutex.Unlock()

	tail := l.entries[len(l.entries)-1]
	candidate := models.NewEntry(
		uint64(len(l.entries)),
		l.now(),
		payload,
		tail.Digest,
		l.hash,
	)

	if err := l.proofOfWork(ctx, &candidate); err != nil {
		log.Printf("Failed to seal entry %d: %v", candidate.Index, err)
		return models.Entry{}, err
	}

	l.entries = append(l.entries, candidate)
	log.Printf("Sealed entry %d with digest %s (nonce %d)", candidate.Index, candidate.Digest, candidate.Nonce)

	return candidate.Clone(), nil
}

// Difficulty is the number of leading zero hex characters a sealed digest needs
func (l *Ledger) Difficulty() int {
	return l.difficulty
}

// HashAlgorithm names the digest function in use
func (l *Ledger) HashAlgorithm() string {
	return l.algorithm
}

func (l *Ledger) Len() int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return len(l.entries)
}

// Tail returns a copy of the most recent entry
func (l *Ledger) Tail() models.Entry {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.entries[len(l.entries)-1].Clone()
}

// EntryByDigest looks an entry up by its stored digest
func (l *Ledger) EntryByDigest(digest string) (models.Entry, error) {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	for _, e := range l.entries {
		if e.Digest == digest {
			return e.Clone(), nil
		}
	}
	return models.Entry{}, fmt.Errorf("%w: digest %s", ErrNotFound, digest)
}

// ExportChain returns the display form of every entry in chain order
func (l *Ledger) ExportChain() []models.ExportedEntry {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	out := make([]models.ExportedEntry, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Export()
	}
	return out
}

package models

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"time"
	"unicode/utf8"

	"voting-ledger/encryption"
)

// GenesisPreviousDigest is the sentinel link of the first entry
const GenesisPreviousDigest = "0"

// Entry is one sealed record of the ledger. Once appended its fields never
// change; Digest is bound to all of the others.
type Entry struct {
	Index          uint64    `json:"index"`
	CreatedAt      time.Time `json:"created_at"`
	Payload        Payload   `json:"payload"`
	PreviousDigest string    `json:"previous_digest"`
	Nonce          uint64    `json:"nonce"`
	Digest         string    `json:"digest"`
}

// ExportedEntry is the display form of an Entry
type ExportedEntry struct {
	Index          uint64    `json:"index"`
	CreatedAt      time.Time `json:"created_at"`
	Payload        Payload   `json:"payload"`
	PreviousDigest string    `json:"previous_digest"`
	Nonce          uint64    `json:"nonce"`
	Digest         string    `json:"digest"`
}

// Helper struct for digest calculation; field order is part of the encoding
type entryForDigest struct {
	Index          uint64  `json:"index"`
	CreatedAt      string  `json:"created_at"`
	Payload        Payload `json:"payload"`
	PreviousDigest string  `json:"previous_digest"`
	Nonce          uint64  `json:"nonce"`
}

// NewEntry builds an entry with nonce 0 and computes its digest. No link
// or index validation happens here.
func NewEntry(index uint64, createdAt time.Time, payload Payload, previousDigest string, hash encryption.HashFunc) Entry {
	e := Entry{
		Index:          index,
		CreatedAt:      createdAt.UTC(),
		Payload:        payload,
		PreviousDigest: previousDigest,
	}
	e.Digest = e.ComputeDigest(hash)
	return e
}

// CanonicalBytes returns the encoding hashed into the digest: fixed field
// order, sorted payload keys, RFC3339Nano UTC timestamp. Strings that are
// not valid UTF-8 are refused rather than silently replaced.
func (e Entry) CanonicalBytes() ([]byte, error) {
	if err := e.Payload.checkEncodable(); err != nil {
		return nil, err
	}
	if !utf8.ValidString(e.PreviousDigest) {
		return nil, fmt.Errorf("%w: previous digest is not valid UTF-8", ErrUnsupportedValue)
	}
	return json.Marshal(entryForDigest{
		Index:          e.Index,
		CreatedAt:      e.CreatedAt.UTC().Format(time.RFC3339Nano),
		Payload:        e.Payload,
		PreviousDigest: e.PreviousDigest,
		Nonce:          e.Nonce,
	})
}

// ComputeDigest returns the lowercase hex digest of the entry's fields
func (e Entry) ComputeDigest(hash encryption.HashFunc) string {
	data, err := e.CanonicalBytes()
	if err != nil {
		log.Printf("Warning: Failed to encode entry %d for hashing: %v", e.Index, err)
		return ""
	}
	return hex.EncodeToString(hash(data))
}

// Export returns the display form; the payload is copied
func (e Entry) Export() ExportedEntry {
	return ExportedEntry{
		Index:          e.Index,
		CreatedAt:      e.CreatedAt,
		Payload:        e.Payload.Clone(),
		PreviousDigest: e.PreviousDigest,
		Nonce:          e.Nonce,
		Digest:         e.Digest,
	}
}

// Clone returns a copy that shares no mutable state with e
func (e Entry) Clone() Entry {
	e.Payload = e.Payload.Clone()
	return e
}

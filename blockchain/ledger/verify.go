package ledger

import (
	"log"

	"voting-ledger/models"
)

// Kinds of integrity violation reported by Validate
const (
	ViolationDigestMismatch   = "digest_mismatch"
	ViolationBrokenLink       = "broken_link"
	ViolationInsufficientWork = "insufficient_work"
)

type ValidationError struct {
	Index    uint64 `json:"index"`
	Kind     string `json:"kind"`
	Expected string `json:"expected,omitempty"`
	Actual   string `json:"actual,omitempty"`
}

// IsValid walks entries[1:] and reports false at the first entry whose
// digest does not match its fields, whose link does not match its
// predecessor, or whose digest lacks the required leading zeros.
// Detection is advisory; nothing is repaired.
func (l *Ledger) IsValid() bool {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	violations := l.check(true)
	if len(violations) > 0 {
		v := violations[0]
		log.Printf("Invalid chain: %s at entry %d", v.Kind, v.Index)
		return false
	}
	return true
}

// Validate runs the same checks as IsValid but collects every violation
func (l *Ledger) Validate() []ValidationError {
	l.mutex.RLock()
	defer l.mutex.RUnlock()
	return l.check(false)
}

func (l *Ledger) check(stopAtFirst bool) []ValidationError {
	var out []ValidationError
	for i := 1; i < len(l.entries); i++ {
		current := l.entries[i]
		previous := l.entries[i-1]

		if calculated := current.ComputeDigest(l.hash); calculated != current.Digest {
			out = append(out, ValidationError{
				Index:    current.Index,
				Kind:     ViolationDigestMismatch,
				Expected: calculated,
				Actual:   current.Digest,
			})
			if stopAtFirst {
				return out
			}
		}

		if current.PreviousDigest != previous.Digest {
			out = append(out, ValidationError{
				Index:    current.Index,
				Kind:     ViolationBrokenLink,
				Expected: previous.Digest,
				Actual:   current.PreviousDigest,
			})
			if stopAtFirst {
				return out
			}
		}

		if !l.meetsTarget(current.Digest) {
			out = append(out, ValidationError{
				Index:    current.Index,
				Kind:     ViolationInsufficientWork,
				Expected: l.target,
				Actual:   current.Digest,
			})
			if stopAtFirst {
				return out
			}
		}
	}
	return out
}

// CountByField counts vote entries whose payload field equals value.
// Genesis is excluded; entries without the field never match.
func (l *Ledger) CountByField(field string, value any) int {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	count := 0
	for _, e := range l.entries[1:] {
		if e.Payload.Matches(field, value) {
			count++
		}
	}
	return count
}

// ExistsByField reports whether any vote entry carries field == value. This
// is the chain-level duplicate voter check.
func (l *Ledger) ExistsByField(field string, value any) bool {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	for _, e := range l.entries[1:] {
		if e.Payload.Matches(field, value) {
			return true
		}
	}
	return false
}

// Entries returns a deep copy of the chain
func (l *Ledger) Entries() []models.Entry {
	l.mutex.RLock()
	defer l.mutex.RUnlock()

	out := make([]models.Entry, len(l.entries))
	for i, e := range l.entries {
		out[i] = e.Clone()
	}
	return out
}

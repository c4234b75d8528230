package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"unicode/utf8"
)

var ErrUnsupportedValue = errors.New("models: unsupported payload value")

// maxExactFloat is the largest integer a float64 holds without rounding
const maxExactFloat = 1 << 53

// Payload is the opaque key/value content of a ledger entry. Values are
// scalars only, normalised so that equal numbers encode to the same bytes
// regardless of the Go integer type the caller used.
type Payload map[string]any

// NormalizePayload validates raw and returns a normalised copy
func NormalizePayload(raw map[string]any) (Payload, error) {
	p := make(Payload, len(raw))
	for k, v := range raw {
		if !utf8.ValidString(k) {
			return nil, fmt.Errorf("%w: key %q is not valid UTF-8", ErrUnsupportedValue, k)
		}
		nv, err := normalizeValue(v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", k, err)
		}
		p[k] = nv
	}
	return p, nil
}

func normalizeValue(v any) (any, error) {
	switch x := v.(type) {
	case string:
		if !utf8.ValidString(x) {
			return nil, fmt.Errorf("%w: string %q is not valid UTF-8", ErrUnsupportedValue, x)
		}
		return x, nil
	case nil, bool, int64:
		return x, nil
	case int:
		return int64(x), nil
	case int8:
		return int64(x), nil
	case int16:
		return int64(x), nil
	case int32:
		return int64(x), nil
	case uint:
		return normalizeUnsigned(uint64(x)), nil
	case uint8:
		return int64(x), nil
	case uint16:
		return int64(x), nil
	case uint32:
		return int64(x), nil
	case uint64:
		return normalizeUnsigned(x), nil
	case float32:
		return normalizeFloat(float64(x))
	case float64:
		return normalizeFloat(x)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return i, nil
		}
		f, err := x.Float64()
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnsupportedValue, err)
		}
		return normalizeFloat(f)
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedValue, v)
	}
}

func normalizeUnsigned(u uint64) any {
	if u <= math.MaxInt64 {
		return int64(u)
	}
	return u
}

// Integral floats collapse to int64 so a value decoded from JSON matches the
// integer the vote service wrote.
func normalizeFloat(f float64) (any, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("%w: %v", ErrUnsupportedValue, f)
	}
	if f == math.Trunc(f) && math.Abs(f) <= maxExactFloat {
		return int64(f), nil
	}
	return f, nil
}

// checkEncodable reports strings that encoding/json would rewrite to
// U+FFFD, which would let two different payloads share one encoding
func (p Payload) checkEncodable() error {
	for k, v := range p {
		if !utf8.ValidString(k) {
			return fmt.Errorf("%w: key %q is not valid UTF-8", ErrUnsupportedValue, k)
		}
		if s, ok := v.(string); ok && !utf8.ValidString(s) {
			return fmt.Errorf("%w: field %q is not valid UTF-8", ErrUnsupportedValue, k)
		}
	}
	return nil
}

// Get returns the value stored under field
func (p Payload) Get(field string) (any, bool) {
	v, ok := p[field]
	return v, ok
}

// Matches reports whether field is present and equal to value. A missing
// field or an unsupported value is a non-match.
func (p Payload) Matches(field string, value any) bool {
	got, ok := p[field]
	if !ok {
		return false
	}
	want, err := normalizeValue(value)
	if err != nil {
		return false
	}
	return got == want
}

// Clone returns a shallow copy; values are scalars so this is a full copy.
func (p Payload) Clone() Payload {
	if p == nil {
		return nil
	}
	out := make(Payload, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}

package ledger

import (
	"context"
	"fmt"
	"strings"

	"voting-ledger/models"
)

// How often the search looks at ctx
const cancelCheckInterval = 1000

// proofOfWork searches nonces from 0 upward until the digest of e carries
// the required number of leading zeros. Nonce and Digest of e are updated in
// place. Expected cost is 16^difficulty hash evaluations.
func (l *Ledger) proofOfWork(ctx context.Context, e *models.Entry) error {
	var nonce uint64
	for ; l.maxNonce == 0 || nonce < l.maxNonce; nonce++ {
		if nonce > 0 && nonce%cancelCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return fmt.Errorf("proof of work cancelled at nonce %d: %w", nonce, err)
			}
		}

		e.Nonce = nonce
		e.Digest = e.ComputeDigest(l.hash)
		if l.meetsTarget(e.Digest) {
			return nil
		}
	}
	return fmt.Errorf("%w: no digest with %d leading zeros in %d attempts",
		ErrNonceExhausted, l.difficulty, nonce)
}

func (l *Ledger) meetsTarget(digest string) bool {
	return digest != "" && strings.HasPrefix(digest, l.target)
}

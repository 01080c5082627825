// Package revision allocates and parses document revision tokens.
//
// A token has the form "<generation>-<nonce>": a positive decimal generation
// counter followed by an 8-hex-character nonce. The generation orders the
// successful writes to one document; the nonce keeps concurrently derived
// revisions with equal generation from comparing equal.
package revision

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// Next returns the revision token that follows prev. An empty prev starts a
// new document at generation 1. A prev whose generation prefix does not
// parse is treated as generation 0, so the successor is always well formed.
func Next(prev string) string {
	return fmt.Sprintf("%d-%s", Generation(prev)+1, nonce())
}

// Generation returns the integer prefix of rev, or 0 when rev is empty or
// the prefix before the first '-' is not a non-negative decimal.
func Generation(rev string) int {
	if rev == "" {
		return 0
	}
	head, _, _ := strings.Cut(rev, "-")
	n, err := strconv.Atoi(head)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

// nonce returns 8 hex characters drawn from a UUIDv4.
func nonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

package ids

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// Reference prefixes used across the checkout flow. Gateway references
// must be globally unique; ULIDs also keep them roughly sortable by
// creation time, which helps reconciliation.
const (
	PrefixOrder   = "ORD"
	PrefixPayment = "PAY"
	PrefixTopup   = "TOP"
)

// New returns a prefixed ULID reference, e.g. ORD-01J9W9GQ4R....
func New(prefix string) string {
	id := ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0))
	return prefix + "-" + id.String()
}

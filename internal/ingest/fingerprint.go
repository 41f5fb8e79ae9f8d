package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/javigz/bdnsync-go/internal/datastore"
)

// hashFieldSeparator keeps adjacent field values from colliding into the same
// digest input.
const hashFieldSeparator = "\x1f"

// hashTime renders an optional timestamp for hashing. Nil renders empty so
// absent and present values never collide with each other.
func hashTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

// ContentHash computes the change-detection digest over the enumerated field
// subset, in fixed order: title, issuing-body description, modification date,
// application window, open flag, funding breakdown and computed total. Fields
// outside this subset never influence the digest, which is what allows
// touch-without-rewrite semantics.
func ContentHash(r *datastore.GrantRecord) string {
	fields := []string{
		r.Title,
		r.OrganName,
		hashTime(r.ModificationDate),
		hashTime(r.ApplicationStart),
		hashTime(r.ApplicationEnd),
		strconv.FormatBool(r.Open),
		r.RawFunding,
		strconv.FormatFloat(r.TotalAmount, 'f', -1, 64),
	}
	sum := sha256.Sum256([]byte(strings.Join(fields, hashFieldSeparator)))
	return hex.EncodeToString(sum[:])
}

// ModifiedSince is the alternative change-detection strategy: compare the
// external modification timestamps directly. When the timestamp is absent on
// either side the record is conservatively treated as changed.
func ModifiedSince(stored, incoming *datastore.GrantRecord) bool {
	if stored.ModificationDate == nil || incoming.ModificationDate == nil {
		return true
	}
	return !incoming.ModificationDate.Equal(*stored.ModificationDate)
}

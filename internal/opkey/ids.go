package opkey

import (
	"strings"

	"github.com/google/uuid"
)

// IDGenerator mints fresh operation ids.
// Implemented by UUIDv7Generator (production) and testutil.FixedIDs (tests).
type IDGenerator interface {
	Generate() string
}

// UUIDv7Generator generates time-sortable UUIDv7 ids.
//
// Thread-safety: UUIDv7Generator is stateless and safe for concurrent use.
type UUIDv7Generator struct{}

// Generate creates a new UUIDv7 and returns it as a hyphenated string.
//
// Panics if UUID generation fails (should never happen in practice).
func (UUIDv7Generator) Generate() string {
	return uuid.Must(uuid.NewV7()).String()
}

// namespace scopes Derive so derived ids never collide with other v5 users.
var namespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("urn:pharmaapp:operation"))

// Derive returns a deterministic UUIDv5 for the given parts. The same parts
// always yield the same id, so actions replayed from different entry points
// collapse onto one ledger event.
func Derive(parts ...string) string {
	return uuid.NewSHA1(namespace, []byte(strings.Join(parts, "\x1f"))).String()
}

// UndoID is the operation id of undoing targetID from source. Repeated undo
// gestures replay one reversal instead of racing for it.
func UndoID(targetID, source string) string {
	return Derive(ActionUndo, targetID, source)
}

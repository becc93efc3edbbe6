package routine

import (
	"strings"

	"github.com/google/uuid"
)

// TempIDPrefix marks client-generated ids for entities created offline.
// A temporary id is never sent to the remote backend as an existing-entity
// identifier; the server-assigned id replaces it on successful sync.
const TempIDPrefix = "local-"

// NewTempID generates a temporary id for an entity created offline.
func NewTempID() string {
	return TempIDPrefix + uuid.NewString()
}

// IsTempID reports whether id was generated locally and has not yet been
// replaced by a server-assigned id.
func IsTempID(id string) bool {
	return strings.HasPrefix(id, TempIDPrefix)
}

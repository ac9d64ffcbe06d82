package ir

import "github.com/google/uuid"

// NewDebugDumpName returns a collision-free artifact name for one
// compilation unit's `-debug` IR dump, e.g. "xcc-debug-<uuid>.txt". It
// has nothing to do with symbol identity: symbols keep using the
// process-unique integer id from NewSymbol, never a UUID.
func NewDebugDumpName() string {
	return "xcc-debug-" + uuid.NewString() + ".txt"
}

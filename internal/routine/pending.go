package routine

import "fmt"

// PendingState records which offline mutation, if any, an entity is still
// waiting to replay against the remote backend. An entity carries exactly
// one state at a time; a locally deleted never-synced creation is removed
// outright instead of holding two markers.
type PendingState int

const (
	// StateClean indicates the entity matches the last known remote copy.
	StateClean PendingState = iota
	// StatePendingCreate indicates the entity was created offline and has
	// never been sent to the remote backend. Its id is temporary.
	StatePendingCreate
	// StatePendingUpdate indicates local field changes await replay.
	StatePendingUpdate
	// StatePendingDelete indicates the entity is a tombstone: hidden from
	// callers, retained locally until the remote delete succeeds.
	StatePendingDelete
	// StatePendingActivation indicates an offline activate awaits replay.
	StatePendingActivation
	// StatePendingDeactivation indicates an offline deactivate awaits replay.
	StatePendingDeactivation
)

// String returns a human-readable representation of the state.
func (s PendingState) String() string {
	switch s {
	case StateClean:
		return "clean"
	case StatePendingCreate:
		return "pending-create"
	case StatePendingUpdate:
		return "pending-update"
	case StatePendingDelete:
		return "pending-delete"
	case StatePendingActivation:
		return "pending-activation"
	case StatePendingDeactivation:
		return "pending-deactivation"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state for JSON persistence in the local store.
func (s PendingState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state previously written by MarshalText.
func (s *PendingState) UnmarshalText(text []byte) error {
	switch string(text) {
	case "", "clean":
		*s = StateClean
	case "pending-create":
		*s = StatePendingCreate
	case "pending-update":
		*s = StatePendingUpdate
	case "pending-delete":
		*s = StatePendingDelete
	case "pending-activation":
		*s = StatePendingActivation
	case "pending-deactivation":
		*s = StatePendingDeactivation
	default:
		return fmt.Errorf("unknown pending state %q", text)
	}
	return nil
}

// IsPending reports whether the entity still has a mutation to replay.
func (s PendingState) IsPending() bool {
	return s != StateClean
}

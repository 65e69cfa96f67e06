package index

// State is the build state of an index engine.
type State int32

const (
	// StateIdle means no build has run and no prior index was loaded.
	StateIdle State = iota

	// StateBuilding means a build pass is currently running.
	StateBuilding

	// StateReady means the last build (or an artifact load) completed and
	// the index is queryable.
	StateReady

	// StateFailed means the last build failed. A previously completed
	// index, if any, remains queryable.
	StateFailed
)

// String returns a human-readable state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateBuilding:
		return "building"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Indexing reports whether the state counts as "build in progress" for
// external pollers.
func (s State) Indexing() bool { return s == StateBuilding }

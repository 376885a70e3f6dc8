package engine

// State is a rule's position in the per-run build lifecycle. Transitions are
// strictly Pending -> Building -> {Built, Reused, Failed}; rules downstream
// of a failure jump Pending -> Blocked without ever building.
type State int32

const (
	// Pending means no worker has claimed the rule yet.
	Pending State = iota
	// Building means the one authoritative build attempt is in progress.
	Building
	// Built means the rule's steps executed and the output was committed.
	Built
	// Reused means a cached artifact record satisfied the rule's key and
	// no steps were executed.
	Reused
	// Failed means the rule's own key computation or steps failed.
	Failed
	// Blocked means the rule was not attempted because a transitive
	// dependency failed.
	Blocked
)

func (s State) String() string {
	switch s {
	case Pending:
		return "PENDING"
	case Building:
		return "BUILDING"
	case Built:
		return "BUILT"
	case Reused:
		return "REUSED"
	case Failed:
		return "FAILED"
	case Blocked:
		return "BLOCKED"
	default:
		return "UNKNOWN"
	}
}

// Terminal reports whether the state is final for the run.
func (s State) Terminal() bool {
	switch s {
	case Built, Reused, Failed, Blocked:
		return true
	default:
		return false
	}
}

// Success reports whether the state satisfies dependents.
func (s State) Success() bool {
	return s == Built || s == Reused
}

package passkeywallet

import "time"

// State is a step of one recovery attempt.
type State string

const (
	StateIdle                 State = "idle"
	StateAwaitingAssertion    State = "awaiting_assertion"
	StateComputingHash        State = "computing_hash"
	StateRecoveringCandidates State = "recovering_candidates"
	StateQueryingRegistry     State = "querying_registry"
	StateMatchingMnemonic     State = "matching_mnemonic"
	StateMatchingLegacy       State = "matching_legacy"
	StateBound                State = "bound"
	StateFailed               State = "failed"
)

// Terminal reports whether no further transition follows s.
func (s State) Terminal() bool {
	return s == StateBound || s == StateFailed
}

// Observer receives pipeline events. Implementations must be safe for
// concurrent use and must not block.
type Observer interface {
	StateChanged(from, to State)
	PageFetched(networkID string, edges int)
	CandidateTried(generation string, recoveryID int, matched bool)
	RecoveryFinished(generation string, err error, elapsed time.Duration)
	BatchFinished(size int, err error)
}

// NopObserver ignores every event.
type NopObserver struct{}

func (NopObserver) StateChanged(State, State)                     {}
func (NopObserver) PageFetched(string, int)                       {}
func (NopObserver) CandidateTried(string, int, bool)              {}
func (NopObserver) RecoveryFinished(string, error, time.Duration) {}
func (NopObserver) BatchFinished(int, error)                      {}

// tracker walks one attempt through its states.
type tracker struct {
	observer Observer
	current  State
}

func newTracker(o Observer) *tracker {
	return &tracker{observer: o, current: StateIdle}
}

func (t *tracker) to(s State) {
	if t.current == s {
		return
	}
	prev := t.current
	t.current = s
	t.observer.StateChanged(prev, s)
}

// fail moves to StateFailed and returns err unchanged.
func (t *tracker) fail(err error) error {
	t.to(StateFailed)
	return err
}

package lifecycle

import (
	"fmt"
	"sync"

	"github.com/dmitrymomot/tenantdb/pkg/tenant"
)

// State is the provisioning state of one tenant.
type State string

const (
	StateUnprovisioned   State = "unprovisioned"
	StateProvisioning    State = "provisioning"
	StateActive          State = "active"
	StateDecommissioning State = "decommissioning"
)

func (s State) String() string { return string(s) }

// Event drives a state transition.
type Event string

const (
	EventProvision      Event = "provision"
	EventProvisioned    Event = "provisioned"
	EventFailed         Event = "failed"
	EventDecommission   Event = "decommission"
	EventDecommissioned Event = "decommissioned"
)

// transitions is indexed [from][event] -> to.
var transitions = map[State]map[Event]State{
	StateUnprovisioned: {
		EventProvision: StateProvisioning,
	},
	StateProvisioning: {
		EventProvisioned: StateActive,
		EventFailed:      StateUnprovisioned,
	},
	StateActive: {
		EventDecommission: StateDecommissioning,
	},
	StateDecommissioning: {
		EventDecommissioned: StateUnprovisioned,
	},
}

// TransitionError reports an event that is not allowed in the current state.
type TransitionError struct {
	TenantID string
	From     State
	Event    Event
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("lifecycle: tenant %q: no transition from %s on %s", e.TenantID, e.From, e.Event)
}

func (e *TransitionError) Unwrap() error { return ErrBusy }

type entry struct {
	state  State
	record tenant.Record
}

// tracker holds per-tenant states. Unprovisioned tenants have no entry.
type tracker struct {
	mu      sync.RWMutex
	entries map[string]entry
}

func newTracker() *tracker {
	return &tracker{entries: make(map[string]entry)}
}

func (t *tracker) get(id string) State {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if e, ok := t.entries[id]; ok {
		return e.state
	}
	return StateUnprovisioned
}

func (t *tracker) record(id string) (tenant.Record, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	e, ok := t.entries[id]
	if !ok || e.state != StateActive {
		return tenant.Record{}, false
	}
	return e.record, true
}

// fire applies event to the tenant's state and returns the new state.
// rec replaces the cached record projection when non-nil.
func (t *tracker) fire(id string, event Event, rec *tenant.Record) (State, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	cur, ok := t.entries[id]
	if !ok {
		cur.state = StateUnprovisioned
	}

	next, ok := transitions[cur.state][event]
	if !ok {
		return cur.state, &TransitionError{TenantID: id, From: cur.state, Event: event}
	}

	if next == StateUnprovisioned {
		delete(t.entries, id)
		return next, nil
	}
	cur.state = next
	if rec != nil {
		cur.record = *rec
	}
	t.entries[id] = cur
	return next, nil
}

// drop forgets id if it is still in state from.
func (t *tracker) drop(id string, from State) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if e, ok := t.entries[id]; ok && e.state == from {
		delete(t.entries, id)
	}
}

func (t *tracker) reset() {
	t.mu.Lock()
	t.entries = make(map[string]entry)
	t.mu.Unlock()
}

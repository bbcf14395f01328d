// Package ledger holds the admin-side workflow core: status machines,
// canonical row selection, the resilient update protocol, the best-effort
// audit queue and reconciled collections.
package ledger

// Status is a lifecycle state of a ledger entity.
type Status string

// Machine is a transition table for one entity kind.
type Machine struct {
	entity string
	edges  map[Status][]Status
}

// NewMachine builds a machine. Every status must appear as a key; terminal
// statuses map to an empty slice.
func NewMachine(entity string, edges map[Status][]Status) *Machine {
	return &Machine{entity: entity, edges: edges}
}

func (m *Machine) Entity() string { return m.entity }

// Known reports whether s is a status of this machine.
func (m *Machine) Known(s Status) bool {
	_, ok := m.edges[s]
	return ok
}

// Terminal reports whether s has no outgoing transitions.
func (m *Machine) Terminal(s Status) bool {
	return m.Known(s) && len(m.edges[s]) == 0
}

// AllowedTransitions returns the statuses reachable from current. Unknown
// statuses have none.
func (m *Machine) AllowedTransitions(current Status) []Status {
	return append([]Status(nil), m.edges[current]...)
}

func (m *Machine) CanTransition(from, to Status) bool {
	for _, s := range m.edges[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Validate returns a *TransitionError unless from -> to is in the table.
func (m *Machine) Validate(from, to Status) error {
	if !m.CanTransition(from, to) {
		return &TransitionError{Entity: m.entity, From: from, To: to}
	}
	return nil
}

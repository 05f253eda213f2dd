package state

import (
	"errors"
	"fmt"
	"sort"

	"time-ledger/internal/domain"
)

// ErrUnknownNamespace is returned when restoring a slot nobody registered.
var ErrUnknownNamespace = errors.New("unknown state namespace")

// Slot is anything that can be rebuilt from persisted state changes.
type Slot interface {
	Namespace() string
	Restore(key, value string) error
}

// Registry maps namespaces to the slots that own them.
type Registry struct {
	slots map[string]Slot
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{slots: make(map[string]Slot)}
}

// Register adds slots. Namespaces must be unique.
func (r *Registry) Register(slots ...Slot) error {
	for _, s := range slots {
		if _, ok := r.slots[s.Namespace()]; ok {
			return fmt.Errorf("namespace %q already registered", s.Namespace())
		}
		r.slots[s.Namespace()] = s
	}
	return nil
}

// Restore replays persisted changes into the registered slots.
func (r *Registry) Restore(changes []domain.StateChange) error {
	for _, c := range changes {
		s, ok := r.slots[c.Namespace]
		if !ok {
			return fmt.Errorf("%w: %s", ErrUnknownNamespace, c.Namespace)
		}
		if err := s.Restore(c.Key, c.Value); err != nil {
			return fmt.Errorf("restore %s: %w", c.SlotID(), err)
		}
	}
	return nil
}

// Namespaces lists registered namespaces in sorted order.
func (r *Registry) Namespaces() []string {
	out := make([]string, 0, len(r.slots))
	for ns := range r.slots {
		out = append(out, ns)
	}
	sort.Strings(out)
	return out
}

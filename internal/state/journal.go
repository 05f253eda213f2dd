// Package state holds the ledger's keyed records. Every mutation goes
// through a Journal so a failed operation can be rolled back and a
// committed one can be persisted slot by slot.
package state

import "time-ledger/internal/domain"

// Journal records undo steps and the final value of every slot touched by
// one operation.
type Journal struct {
	undo    []func()
	index   map[string]int
	changes []domain.StateChange
}

// NewJournal creates an empty journal.
func NewJournal() *Journal {
	return &Journal{index: make(map[string]int)}
}

func (j *Journal) record(undo func(), ns, key, value string) {
	j.undo = append(j.undo, undo)

	change := domain.StateChange{Namespace: ns, Key: key, Value: value}
	if i, ok := j.index[change.SlotID()]; ok {
		j.changes[i] = change
		return
	}
	j.index[change.SlotID()] = len(j.changes)
	j.changes = append(j.changes, change)
}

// Revert undoes every recorded mutation in reverse order and empties the journal.
func (j *Journal) Revert() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.reset()
}

// Changes returns the final value of each touched slot in first-touch order.
func (j *Journal) Changes() []domain.StateChange {
	out := make([]domain.StateChange, len(j.changes))
	copy(out, j.changes)
	return out
}

// Len returns the number of recorded mutations.
func (j *Journal) Len() int {
	return len(j.undo)
}

func (j *Journal) reset() {
	j.undo = nil
	j.changes = nil
	j.index = make(map[string]int)
}

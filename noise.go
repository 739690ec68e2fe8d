package server

// NoiseSlots is the shared fixed-size array of external synth node ids. Any
// client may mutate a slot and every connection receives the full array on
// change. Slots live for the process lifetime and are never persisted.
type NoiseSlots struct {
	slots [][]string
}

func NewNoiseSlots(count int) *NoiseSlots {
	return &NoiseSlots{slots: make([][]string, count)}
}

// Set replaces a slot's node ids. Out-of-range indices report false and
// leave the array untouched.
func (n *NoiseSlots) Set(slot int, nodeIDs []string) bool {
	if slot < 0 || slot >= len(n.slots) {
		return false
	}
	ids := make([]string, len(nodeIDs))
	copy(ids, nodeIDs)
	n.slots[slot] = ids
	return true
}

// Clear empties a slot. Out-of-range indices report false.
func (n *NoiseSlots) Clear(slot int) bool {
	if slot < 0 || slot >= len(n.slots) {
		return false
	}
	n.slots[slot] = nil
	return true
}

// Snapshot deep-copies the array for marshaling outside the Hub lock.
// Empty slots come back as empty lists, not null, so clients can index
// the array blindly.
func (n *NoiseSlots) Snapshot() [][]string {
	out := make([][]string, len(n.slots))
	for i, ids := range n.slots {
		copied := make([]string, len(ids))
		copy(copied, ids)
		out[i] = copied
	}
	return out
}

package server

// Registry is the in-memory table of simulated entities keyed by connection
// id. It performs no locking of its own: the Hub mutex is the single writer
// gate, and every caller below holds it.
type Registry struct {
	entities map[string]*entityState
}

func NewRegistry() *Registry {
	return &Registry{entities: make(map[string]*entityState)}
}

// Upsert stores state under its id, replacing any previous row.
func (r *Registry) Upsert(state *entityState) {
	if state == nil || state.ID == "" {
		return
	}
	r.entities[state.ID] = state
}

func (r *Registry) Get(id string) (*entityState, bool) {
	state, ok := r.entities[id]
	return state, ok
}

// Remove deletes the row for id and reports whether it existed.
func (r *Registry) Remove(id string) bool {
	if _, ok := r.entities[id]; !ok {
		return false
	}
	delete(r.entities, id)
	return true
}

// All returns the live states in map order. The slice is fresh on every
// call; the pointed-to states are shared.
func (r *Registry) All() []*entityState {
	states := make([]*entityState, 0, len(r.entities))
	for _, state := range r.entities {
		states = append(states, state)
	}
	return states
}

func (r *Registry) Len() int {
	return len(r.entities)
}

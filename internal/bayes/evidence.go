package bayes

// Evidence is a partial assignment of fixed truth values to Alarm nodes. It
// is owned by the campaign layer; the inference engine only reads it.
type Evidence map[string]bool

// NewEvidence returns an empty evidence map.
func NewEvidence() Evidence { return make(Evidence) }

// Set fixes a node to a value, replacing any previous value.
func (e Evidence) Set(id string, val bool) { e[id] = val }

// Delete removes any value for the node.
func (e Evidence) Delete(id string) { delete(e, id) }

// Value returns the fixed value for a node, if any.
func (e Evidence) Value(id string) (bool, bool) {
	v, ok := e[id]
	return v, ok
}

// ClearNegative removes every false entry and returns how many were cleared.
// True entries are never touched: confirmation is irreversible.
func (e Evidence) ClearNegative() int {
	n := 0
	for id, v := range e {
		if !v {
			delete(e, id)
			n++
		}
	}
	return n
}

// Clone returns an independent copy.
func (e Evidence) Clone() Evidence {
	out := make(Evidence, len(e))
	for k, v := range e {
		out[k] = v
	}
	return out
}

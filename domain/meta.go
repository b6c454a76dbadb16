package domain

// Meta keys used by the engine. Accepted and rejected flags carry the IRI
// of the Accept or Reject that settled a follow.
const (
	MetaCollection = "collection"
	MetaPrivateKey = "privateKey"
	MetaAccepted   = "accepted"
	MetaRejected   = "rejected"
)

// Meta is the hidden per-entity bookkeeping block: string sets keyed by
// name. The canonical copy lives in the store; the in-memory block is a
// working view and is refreshed whenever the store applies an atomic
// membership change.
type Meta map[string][]string

// Add appends value into the named set if not already present and reports
// whether it was newly added.
func (m *Meta) Add(key, value string) bool {
	if m.Has(key, value) {
		return false
	}
	if *m == nil {
		*m = make(Meta)
	}
	(*m)[key] = append((*m)[key], value)
	return true
}

// Has reports membership of value in the named set.
func (m Meta) Has(key, value string) bool {
	for _, v := range m[key] {
		if v == value {
			return true
		}
	}
	return false
}

// Remove drops value from the named set and reports whether it was present.
func (m Meta) Remove(key, value string) bool {
	list := m[key]
	for i, v := range list {
		if v == value {
			m[key] = append(list[:i:i], list[i+1:]...)
			return true
		}
	}
	return false
}

// Get returns the named set.
func (m Meta) Get(key string) []string {
	return m[key]
}

func (m Meta) clone() Meta {
	if m == nil {
		return nil
	}
	out := make(Meta, len(m))
	for k, v := range m {
		out[k] = append([]string(nil), v...)
	}
	return out
}

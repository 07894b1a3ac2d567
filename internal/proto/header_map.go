package proto

import "sort"

// HeaderMap is an ordered multimap from header name to a list of values.
// Values for the same name preserve insertion order; Iter yields names in
// sorted order. Len tracks the total number of values, separately from
// KeysLen, the number of distinct names.
type HeaderMap struct {
	names  map[string]HeaderName
	values map[string][]HeaderValue
	count  int
}

// NewHeaderMap returns an empty HeaderMap.
func NewHeaderMap() *HeaderMap {
	return &HeaderMap{
		names:  make(map[string]HeaderName),
		values: make(map[string][]HeaderValue),
	}
}

// Insert replaces any existing values for name with a single value.
func (m *HeaderMap) Insert(name HeaderName, value HeaderValue) {
	key := name.CanonicalKey()
	if existing, ok := m.values[key]; ok {
		m.count -= len(existing)
	}
	m.names[key] = name
	m.values[key] = []HeaderValue{value}
	m.count++
}

// Append adds value to the list for name, preserving insertion order,
// without discarding existing values.
func (m *HeaderMap) Append(name HeaderName, value HeaderValue) {
	key := name.CanonicalKey()
	if _, ok := m.names[key]; !ok {
		m.names[key] = name
	}
	m.values[key] = append(m.values[key], value)
	m.count++
}

// Remove deletes all values for name, returning whether anything was
// removed.
func (m *HeaderMap) Remove(name HeaderName) bool {
	key := name.CanonicalKey()
	existing, ok := m.values[key]
	if !ok {
		return false
	}
	m.count -= len(existing)
	delete(m.values, key)
	delete(m.names, key)
	return true
}

// Get returns the first value for name, if any.
func (m *HeaderMap) Get(name HeaderName) (HeaderValue, bool) {
	vs, ok := m.values[name.CanonicalKey()]
	if !ok || len(vs) == 0 {
		return HeaderValue{}, false
	}
	return vs[0], true
}

// Values returns all values for name, in insertion order.
func (m *HeaderMap) Values(name HeaderName) []HeaderValue {
	return m.values[name.CanonicalKey()]
}

// Len returns the total number of values stored, across all names.
func (m *HeaderMap) Len() int { return m.count }

// KeysLen returns the number of distinct header names stored.
func (m *HeaderMap) KeysLen() int { return len(m.names) }

// IsEmpty reports whether the map has no entries.
func (m *HeaderMap) IsEmpty() bool { return m.count == 0 }

// HeaderEntry is one (name, values) pair yielded by Iter, in insertion
// order for Values.
type HeaderEntry struct {
	Name   HeaderName
	Values []HeaderValue
}

// Iter returns every (name, values) pair, sorted by canonical name.
func (m *HeaderMap) Iter() []HeaderEntry {
	keys := make([]string, 0, len(m.names))
	for k := range m.names {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	entries := make([]HeaderEntry, 0, len(keys))
	for _, k := range keys {
		entries = append(entries, HeaderEntry{Name: m.names[k], Values: m.values[k]})
	}
	return entries
}

// Clone returns a deep-enough copy of m (the HeaderValue/HeaderName
// elements are themselves immutable, so only the containers are copied).
func (m *HeaderMap) Clone() *HeaderMap {
	out := NewHeaderMap()
	for _, entry := range m.Iter() {
		for _, v := range entry.Values {
			out.Append(entry.Name, v)
		}
	}
	return out
}

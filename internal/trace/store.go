package trace

import (
	"fmt"
	"sync"

	"github.com/zclconf/go-cty/cty"
)

// Store is a thread-safe, in-memory trace record store. Each record maps a
// (trace name, node) pair to the ordered trace entries of that node's
// sub-units, together with the count of currently active (within-cap)
// entries. Records are replaced wholesale on each re-expansion; no entry is
// ever mutated in place.
type Store struct {
	mu      sync.RWMutex
	records map[string]map[string]record // Key: trace name, then node name.
}

type record struct {
	entries []cty.Value
	active  int
}

// NewStore creates a new, empty trace store.
func NewStore() *Store {
	return &Store{
		records: make(map[string]map[string]record),
	}
}

// Put records the trace entries for one node under one trace name,
// superseding any previous record. active bounds how many leading entries
// are currently within the expansion cap.
func (s *Store) Put(traceName, node string, entries []cty.Value, active int) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if active < 0 || active > len(entries) {
		active = len(entries)
	}
	if s.records[traceName] == nil {
		s.records[traceName] = make(map[string]record)
	}
	stored := make([]cty.Value, len(entries))
	copy(stored, entries)
	s.records[traceName][node] = record{entries: stored, active: active}
}

// Lookup returns trace values for a node's sub-units in index order. With no
// indices it returns all currently active entries; with indices it returns
// exactly the requested entries, which may reach beyond the active set since
// declared-but-unbuilt sub-units still have queryable traces.
func (s *Store) Lookup(traceName, node string, indices ...int) ([]cty.Value, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	byNode, ok := s.records[traceName]
	if !ok {
		return nil, fmt.Errorf("no trace %q recorded", traceName)
	}
	rec, ok := byNode[node]
	if !ok {
		return nil, fmt.Errorf("no trace %q recorded for node %q", traceName, node)
	}

	if len(indices) == 0 {
		out := make([]cty.Value, rec.active)
		copy(out, rec.entries[:rec.active])
		return out, nil
	}

	out := make([]cty.Value, 0, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(rec.entries) {
			return nil, fmt.Errorf("trace %q for node %q has no entry %d (have %d)", traceName, node, i, len(rec.entries))
		}
		out = append(out, rec.entries[i])
	}
	return out, nil
}

// Names returns the trace names recorded for a node.
func (s *Store) Names(node string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var names []string
	for traceName, byNode := range s.records {
		if _, ok := byNode[node]; ok {
			names = append(names, traceName)
		}
	}
	return names
}

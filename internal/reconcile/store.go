package reconcile

import (
	"fmt"
	"strings"
	"sync"

	"github.com/zclconf/go-cty/cty"
)

// SubunitBuildError records the isolated failure of a single sub-unit build.
// It is keyed by the sub-unit's identity, never retried automatically, and
// leaves sibling sub-units untouched.
type SubunitBuildError struct {
	Node     string
	Identity string
	Index    int
	Err      error
}

// Error implements the error interface.
func (e *SubunitBuildError) Error() string {
	return fmt.Sprintf("build failed for sub-unit %s[%d] (identity %s): %v", e.Node, e.Index, e.Identity, e.Err)
}

// Unwrap returns the underlying build error.
func (e *SubunitBuildError) Unwrap() error {
	return e.Err
}

// Store records build outcomes keyed by node and sub-unit identity. It is
// the run state of the pipeline, passed explicitly into Reconcile rather
// than held as ambient state.
//
// The build phase writes results from many goroutines at once while
// reconciliation for other nodes reads, so storage uses sync.Map keyed per
// sub-unit rather than one mutex over everything.
type Store struct {
	results  sync.Map // Key: node + "\x00" + identity, Value: cty.Value
	failures sync.Map // Key: node + "\x00" + identity, Value: error
}

// NewStore creates a new, empty build store.
func NewStore() *Store {
	return &Store{}
}

func storeKey(node, identity string) string {
	return node + "\x00" + identity
}

// PutResult records a successful build, clearing any earlier failure for the
// same identity.
func (s *Store) PutResult(node, identity string, v cty.Value) {
	key := storeKey(node, identity)
	s.failures.Delete(key)
	s.results.Store(key, v)
}

// PutFailure records a failed build. The cached-result slot for this
// identity becomes invalid, so a later run reconciles it back into to_build.
func (s *Store) PutFailure(node, identity string, err error) {
	key := storeKey(node, identity)
	s.results.Delete(key)
	s.failures.Store(key, err)
}

// Result returns the cached build result for a sub-unit identity.
func (s *Store) Result(node, identity string) (cty.Value, bool) {
	v, ok := s.results.Load(storeKey(node, identity))
	if !ok {
		return cty.NilVal, false
	}
	return v.(cty.Value), true
}

// Failure returns the recorded build error for a sub-unit identity.
func (s *Store) Failure(node, identity string) (error, bool) {
	err, ok := s.failures.Load(storeKey(node, identity))
	if !ok {
		return nil, false
	}
	return err.(error), true
}

// Valid reports whether a still-valid cached result exists for the identity.
// An incomplete build looks exactly like no build at all.
func (s *Store) Valid(node, identity string) bool {
	_, ok := s.results.Load(storeKey(node, identity))
	return ok
}

// Prune drops every recorded outcome for the node whose identity is not in
// keep. Used when a new plan supersedes an old one: vanished sub-units are a
// normal consequence of shrinking input, not failures.
func (s *Store) Prune(node string, keep map[string]struct{}) {
	prefix := node + "\x00"
	drop := func(m *sync.Map) {
		m.Range(func(k, _ any) bool {
			key := k.(string)
			if !strings.HasPrefix(key, prefix) {
				return true
			}
			identity := key[len(prefix):]
			if _, ok := keep[identity]; !ok {
				m.Delete(key)
			}
			return true
		})
	}
	drop(&s.results)
	drop(&s.failures)
}

package reconcile

import (
	"github.com/vk/dynagrid/internal/expand"
)

// Unbounded disables the expansion cap: every sub-unit is eligible to build.
const Unbounded = -1

// Result partitions one node's new plan into three disjoint index sets.
type Result struct {
	Node string
	// Reused sub-units are content-identical to a previously built sub-unit
	// with a still-valid cached result.
	Reused []int
	// ToBuild sub-units are new, changed, invalidated by an earlier failure,
	// or newly revealed by a cap increase.
	ToBuild []int
	// RetainedUnbuilt sub-units sit beyond the current cap: declared, with
	// queryable identity and trace, but excluded from this run's build batch.
	RetainedUnbuilt []int
}

// Counts returns the sizes of the three categories.
func (r *Result) Counts() (reused, toBuild, retainedUnbuilt int) {
	return len(r.Reused), len(r.ToBuild), len(r.RetainedUnbuilt)
}

// Reconcile compares a node's new expansion plan against the recorded build
// state and applies the expansion cap.
//
// Identities present in the previous plan but absent from the new one are
// dropped from the store. Capping only changes the active index range, never
// the cache: lowering the cap moves trailing indices into RetainedUnbuilt
// without deleting their results, and raising it back returns them to Reused
// without a rebuild. prev may be nil on the first run for a node.
func Reconcile(store *Store, prev, next *expand.Plan, cap int) *Result {
	if prev != nil {
		keep := make(map[string]struct{}, len(next.Subunits))
		for _, su := range next.Subunits {
			keep[su.Identity] = struct{}{}
		}
		store.Prune(next.Node, keep)
	}

	result := &Result{Node: next.Node}
	for _, su := range next.Subunits {
		if cap >= 0 && su.Index >= cap {
			result.RetainedUnbuilt = append(result.RetainedUnbuilt, su.Index)
			continue
		}
		if store.Valid(next.Node, su.Identity) {
			result.Reused = append(result.Reused, su.Index)
		} else {
			result.ToBuild = append(result.ToBuild, su.Index)
		}
	}
	return result
}

// Active returns the count of sub-units inside the cap window.
func (r *Result) Active() int {
	return len(r.Reused) + len(r.ToBuild)
}

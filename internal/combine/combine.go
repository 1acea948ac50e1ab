package combine

import (
	"fmt"

	"github.com/vk/dynagrid/internal/expand"
	"github.com/vk/dynagrid/internal/grouping"
	"github.com/zclconf/go-cty/cty"
)

// Input describes one aggregation over an upstream dynamic node's sub-units.
type Input struct {
	// Node is the aggregating node's name.
	Node string
	// UpstreamName is the grouping-value name the aggregate fans out over:
	// the upstream node's own name.
	UpstreamName string
	// Upstream is the upstream node's current expansion plan.
	Upstream *expand.Plan
	// Keys holds the partition-key trace value per active upstream sub-unit,
	// read from the trace store. Nil keys produce a single aggregate bucket.
	Keys []cty.Value
	// Active is the count of upstream sub-units inside the expansion cap.
	// Only consulted when Keys is nil; keyed membership is bounded by the
	// trace record itself.
	Active int
	// Results maps active upstream sub-unit index to its build result.
	// Absent entries mark sub-units whose build failed or did not complete.
	Results map[int]cty.Value
	// TraceAs, when non-empty, records each aggregate's bucket key as the new
	// node's own trace under this name, enabling multi-hop trace chains.
	TraceAs string
}

// Combine partitions an upstream node's sub-units into aggregate sub-units,
// one per distinct partition-key trace value in first-appearance order, or a
// single aggregate without keys. Each aggregate's identity derives from the
// upstream sub-unit identities in its bucket, so an aggregate is rebuilt
// exactly when one of its members changed.
func Combine(in Input) (*expand.Plan, error) {
	if in.Upstream == nil {
		return nil, fmt.Errorf("node %q aggregates %q, which has no expansion plan", in.Node, in.UpstreamName)
	}
	active := len(in.Keys)
	if active > len(in.Upstream.Subunits) {
		return nil, fmt.Errorf("node %q: %d trace entries for %d upstream sub-units of %q",
			in.Node, active, len(in.Upstream.Subunits), in.UpstreamName)
	}

	var buckets []grouping.Bucket
	if in.Keys == nil {
		n := in.Active
		if n > len(in.Upstream.Subunits) {
			n = len(in.Upstream.Subunits)
		}
		buckets = grouping.Single(n)
	} else {
		buckets = grouping.Group(in.Keys)
	}

	plan := &expand.Plan{Node: in.Node, Mode: grouping.ModeGroup}
	plan.Subunits = make([]expand.Subunit, len(buckets))
	keyEntries := make([]cty.Value, len(buckets))

	for i, b := range buckets {
		identities := make([]string, len(b.Members))
		var present []cty.Value
		var missing []int
		for j, m := range b.Members {
			identities[j] = in.Upstream.Subunits[m].Identity
			if r, ok := in.Results[m]; ok {
				present = append(present, r)
			} else {
				// A member without a result is part of the aggregate's
				// content: repairing it later must yield a new identity so
				// the aggregate is rebuilt over the full member set.
				identities[j] += "\x00missing"
				missing = append(missing, m)
			}
		}

		su := expand.Subunit{
			Index:          i,
			Identity:       expand.CombineFingerprint(in.Node, i, b.Key, identities),
			Slices:         map[string]cty.Value{in.UpstreamName: cty.TupleVal(present)},
			Members:        append([]int(nil), b.Members...),
			MissingMembers: missing,
			Trace:          b.Key,
		}
		plan.Subunits[i] = su
		keyEntries[i] = b.Key
	}

	if in.TraceAs != "" {
		entries := make([]cty.Value, len(keyEntries))
		for i, k := range keyEntries {
			if k == cty.NilVal {
				entries[i] = cty.NullVal(cty.DynamicPseudoType)
			} else {
				entries[i] = k
			}
		}
		plan.Traces = map[string][]cty.Value{in.TraceAs: entries}
	}
	return plan, nil
}

package expand

import (
	"fmt"

	"github.com/vk/dynagrid/internal/grouping"
	"github.com/vk/dynagrid/internal/shape"
	"github.com/vk/dynagrid/internal/trace"
	"github.com/zclconf/go-cty/cty"
)

// Declaration is a node's fan-out specification, fixed when the pipeline is
// authored.
type Declaration struct {
	// Node is the declaring node's name.
	Node string
	// Mode selects the fan-out strategy.
	Mode grouping.Mode
	// Over lists the grouping value names the node fans out over, in
	// declaration order. Group mode takes exactly one.
	Over []string
	// PartitionKey names the value whose elements key the partition.
	// Group mode only; empty means a single aggregate bucket.
	PartitionKey string
	// Trace lists the value names whose per-sub-unit values are recorded.
	Trace []string
}

// Subunit is one planned, independently cacheable unit of work.
type Subunit struct {
	// Index is the stable, order-significant position within the plan.
	Index int
	// Identity is the content-derived fingerprint used for cross-run reuse
	// detection. Identical inputs at the same index always produce the same
	// identity.
	Identity string
	// Slices maps each grouping value name to the slice assigned to this
	// sub-unit: a single element or row for map/cross, a tuple of member
	// elements for group.
	Slices map[string]cty.Value
	// Members holds the upstream element indices aggregated by a group-mode
	// sub-unit. Nil for map and cross.
	Members []int
	// MissingMembers lists the Members whose upstream sub-unit has no valid
	// cached result. Only set by the combiner; the engine's missing-member
	// policy decides whether such an aggregate builds or fails.
	MissingMembers []int
	// Trace is this sub-unit's trace entry: a single value, a tuple when
	// several trace names are declared, or cty.NilVal without a trace spec.
	Trace cty.Value
}

// Plan is the ordered expansion of one dynamic node at one point in time.
type Plan struct {
	Node     string
	Mode     grouping.Mode
	Subunits []Subunit
	// Traces holds the per-trace-name entry sequences, each aligned with
	// Subunits, ready to persist in the trace store.
	Traces map[string][]cty.Value
}

// UnknownGroupingVariableError reports a declaration referencing a grouping
// value that is not currently available.
type UnknownGroupingVariableError struct {
	Node string
	Name string
}

// Error implements the error interface.
func (e *UnknownGroupingVariableError) Error() string {
	return fmt.Sprintf("node %q references unknown grouping value %q", e.Node, e.Name)
}

// Expand turns a declaration and the currently available grouping values into
// an ExpansionPlan. It is a pure, synchronous computation: either a complete
// plan is returned or an error before any sub-unit identity is assigned.
func Expand(decl Declaration, values map[string]cty.Value) (*Plan, error) {
	if len(decl.Over) == 0 {
		return nil, fmt.Errorf("node %q declares no grouping values", decl.Node)
	}
	if decl.Mode == grouping.ModeGroup && len(decl.Over) != 1 {
		return nil, fmt.Errorf("node %q: group mode takes exactly one grouping value, got %d", decl.Node, len(decl.Over))
	}
	if decl.Mode != grouping.ModeGroup && decl.PartitionKey != "" {
		return nil, fmt.Errorf("node %q: partition key is only valid in group mode", decl.Node)
	}

	sources := make([]grouping.Source, 0, len(decl.Over))
	elements := make(map[string][]cty.Value, len(decl.Over))
	for _, name := range decl.Over {
		v, ok := values[name]
		if !ok {
			return nil, &UnknownGroupingVariableError{Node: decl.Node, Name: name}
		}
		els, err := shape.Elements(name, v)
		if err != nil {
			return nil, err
		}
		sources = append(sources, grouping.Source{Name: name, Length: len(els)})
		elements[name] = els
	}

	if decl.Mode == grouping.ModeGroup {
		return expandGroup(decl, sources[0], elements[decl.Over[0]], values)
	}

	var assignments []grouping.Assignment
	var err error
	switch decl.Mode {
	case grouping.ModeMap:
		assignments, err = grouping.Map(sources)
	case grouping.ModeCross:
		assignments = grouping.Cross(sources)
	default:
		err = fmt.Errorf("node %q: unsupported fan-out mode %s", decl.Node, decl.Mode)
	}
	if err != nil {
		return nil, err
	}

	plan := &Plan{Node: decl.Node, Mode: decl.Mode}
	if err := projectTraces(plan, decl, sources, elements, assignments); err != nil {
		return nil, err
	}

	composite, err := trace.Project(decl.Over, elements, assignments, decl.Trace)
	if err != nil {
		return nil, err
	}

	plan.Subunits = make([]Subunit, len(assignments))
	for i, a := range assignments {
		slices := make(map[string]cty.Value, len(sources))
		for j, src := range sources {
			slices[src.Name] = elements[src.Name][a.Indices[j]]
		}
		su := Subunit{
			Index:  i,
			Slices: slices,
			Trace:  cty.NilVal,
		}
		if composite != nil {
			su.Trace = composite[i]
		}
		su.Identity = Fingerprint(decl.Node, decl.Mode, i, slices)
		plan.Subunits[i] = su
	}
	return plan, nil
}

// expandGroup builds the plan for a group-mode node over a plain grouping
// value. Partitioning over an upstream dynamic node's sub-units is handled by
// the combine package instead.
func expandGroup(decl Declaration, src grouping.Source, upstream []cty.Value, values map[string]cty.Value) (*Plan, error) {
	var buckets []grouping.Bucket
	if decl.PartitionKey == "" {
		buckets = grouping.Single(src.Length)
	} else {
		keyVal, ok := values[decl.PartitionKey]
		if !ok {
			return nil, &UnknownGroupingVariableError{Node: decl.Node, Name: decl.PartitionKey}
		}
		keys, err := shape.Elements(decl.PartitionKey, keyVal)
		if err != nil {
			return nil, err
		}
		if len(keys) != src.Length {
			return nil, &grouping.LengthMismatchError{
				Names:   []string{src.Name, decl.PartitionKey},
				Lengths: []int{src.Length, len(keys)},
			}
		}
		buckets = grouping.Group(keys)
	}

	for _, name := range decl.Trace {
		if name != decl.PartitionKey {
			return nil, fmt.Errorf("node %q: group mode can only trace its partition key %q, not %q", decl.Node, decl.PartitionKey, name)
		}
	}

	plan := &Plan{Node: decl.Node, Mode: grouping.ModeGroup}
	plan.Subunits = make([]Subunit, len(buckets))
	for i, b := range buckets {
		members := make([]cty.Value, len(b.Members))
		for j, m := range b.Members {
			members[j] = upstream[m]
		}
		slices := map[string]cty.Value{src.Name: cty.TupleVal(members)}
		su := Subunit{
			Index:   i,
			Slices:  slices,
			Members: append([]int(nil), b.Members...),
			Trace:   b.Key,
		}
		su.Identity = Fingerprint(decl.Node, decl.Mode, i, slices)
		plan.Subunits[i] = su
	}

	if len(decl.Trace) > 0 {
		entries := make([]cty.Value, len(buckets))
		for i, b := range buckets {
			entries[i] = b.Key
		}
		if len(entries) != len(plan.Subunits) {
			return nil, &trace.TraceLengthMismatchError{Trace: decl.PartitionKey, Got: len(entries), Expected: len(plan.Subunits)}
		}
		plan.Traces = map[string][]cty.Value{decl.PartitionKey: entries}
	}
	return plan, nil
}

// projectTraces fills plan.Traces with one aligned entry sequence per
// declared trace name.
func projectTraces(plan *Plan, decl Declaration, sources []grouping.Source, elements map[string][]cty.Value, assignments []grouping.Assignment) error {
	if len(decl.Trace) == 0 {
		return nil
	}
	plan.Traces = make(map[string][]cty.Value, len(decl.Trace))
	for _, name := range decl.Trace {
		entries, err := trace.Project(decl.Over, elements, assignments, []string{name})
		if err != nil {
			return err
		}
		if len(entries) != len(assignments) {
			return &trace.TraceLengthMismatchError{Trace: name, Got: len(entries), Expected: len(assignments)}
		}
		plan.Traces[name] = entries
	}
	return nil
}

package engine

import (
	"context"
	"fmt"
	"sync"

	"github.com/vk/dynagrid/internal/expand"
	"github.com/vk/dynagrid/internal/nodeid"
	"github.com/vk/dynagrid/internal/reconcile"
	"github.com/vk/dynagrid/internal/trace"
	"github.com/zclconf/go-cty/cty"
)

// BuildFunc builds a single sub-unit and returns its result value. Builds of
// sibling sub-units may run concurrently; the function must not assume any
// ordering among them.
type BuildFunc func(ctx context.Context, su expand.Subunit) (cty.Value, error)

// MissingMemberPolicy decides what happens when a group-mode aggregate
// depends on an upstream sub-unit without a valid build result.
type MissingMemberPolicy int

const (
	// FailAggregate fails the aggregate sub-unit, recording the missing
	// members. The default.
	FailAggregate MissingMemberPolicy = iota
	// SkipMissing builds the aggregate over the members that do have
	// results, dropping the rest.
	SkipMissing
)

// Options configures an Engine.
type Options struct {
	// Workers bounds how many sub-unit builds run concurrently. Values < 1
	// fall back to DefaultWorkers.
	Workers int
	// MissingMembers is the aggregation policy for failed upstream members.
	MissingMembers MissingMemberPolicy
}

// DefaultWorkers is the build pool width used when Options.Workers is unset.
const DefaultWorkers = 10

// node carries one dynamic node's declaration and its cross-run bookkeeping.
type node struct {
	decl  expand.Declaration
	build BuildFunc

	// prev is the plan recorded by the previous run, nil before the first.
	prev *expand.Plan
	// plan and result describe the most recent run.
	plan   *expand.Plan
	result *reconcile.Result
	// err is the declaration-level error that aborted the node, if any.
	err error
	// output holds the node's assembled active results; valid only when
	// complete is true.
	output   cty.Value
	complete bool
}

// Engine is the dynamic expansion engine: it owns the declared nodes, the
// available grouping values, and the trace and build stores, and reconciles
// each node's expansion across repeated runs.
type Engine struct {
	mu     sync.RWMutex
	values map[string]cty.Value
	nodes  map[string]*node

	traces  *trace.Store
	builds  *reconcile.Store
	workers int
	policy  MissingMemberPolicy
}

// New creates an Engine with no values or nodes registered.
func New(opts Options) *Engine {
	workers := opts.Workers
	if workers < 1 {
		workers = DefaultWorkers
	}
	return &Engine{
		values:  make(map[string]cty.Value),
		nodes:   make(map[string]*node),
		traces:  trace.NewStore(),
		builds:  reconcile.NewStore(),
		workers: workers,
		policy:  opts.MissingMembers,
	}
}

// SetValue registers or replaces an upstream grouping value. Names are
// shared between values and nodes; a name already taken by a node is
// rejected.
func (e *Engine) SetValue(name string, v cty.Value) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.nodes[name]; ok {
		return fmt.Errorf("name %q is already declared as a dynamic node", name)
	}
	e.values[name] = v
	return nil
}

// AddNode declares a dynamic node. The declaration is fixed from here on:
// re-running the engine re-expands it against current values but never
// changes its shape spec.
func (e *Engine) AddNode(decl expand.Declaration, build BuildFunc) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if decl.Node == "" {
		return fmt.Errorf("node name cannot be empty")
	}
	if addr, err := nodeid.Parse(decl.Node); err != nil || addr.HasIndex() {
		return fmt.Errorf("invalid node name %q", decl.Node)
	}
	if build == nil {
		return fmt.Errorf("node %q has no build function", decl.Node)
	}
	if _, ok := e.nodes[decl.Node]; ok {
		return fmt.Errorf("node %q is already declared", decl.Node)
	}
	if _, ok := e.values[decl.Node]; ok {
		return fmt.Errorf("name %q is already registered as a grouping value", decl.Node)
	}
	e.nodes[decl.Node] = &node{decl: decl, build: build}
	return nil
}

// Results returns a node's currently active sub-unit results in index order,
// or the requested positional subset.
func (e *Engine) Results(nodeName string, indices ...int) ([]cty.Value, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	n, ok := e.nodes[nodeName]
	if !ok {
		return nil, fmt.Errorf("unknown node %q", nodeName)
	}
	if n.err != nil {
		return nil, fmt.Errorf("node %q did not expand: %w", nodeName, n.err)
	}
	if n.plan == nil || n.result == nil {
		return nil, fmt.Errorf("node %q has not been run", nodeName)
	}

	if len(indices) == 0 {
		indices = activeIndices(n.result)
	}

	out := make([]cty.Value, 0, len(indices))
	for _, i := range indices {
		if i < 0 || i >= len(n.plan.Subunits) {
			return nil, fmt.Errorf("node %q has no sub-unit %d (have %d)", nodeName, i, len(n.plan.Subunits))
		}
		su := n.plan.Subunits[i]
		v, ok := e.builds.Result(nodeName, su.Identity)
		if !ok {
			if err, failed := e.builds.Failure(nodeName, su.Identity); failed {
				return nil, fmt.Errorf("sub-unit %s has no result: %w", nodeid.Sub(nodeName, i), err)
			}
			return nil, fmt.Errorf("sub-unit %s has not been built", nodeid.Sub(nodeName, i))
		}
		out = append(out, v)
	}
	return out, nil
}

// Trace returns the recorded trace values for a node's currently active
// sub-units, or the requested positional subset.
func (e *Engine) Trace(traceName, nodeName string, indices ...int) ([]cty.Value, error) {
	return e.traces.Lookup(traceName, nodeName, indices...)
}

// TraceNames returns the trace names recorded for a node.
func (e *Engine) TraceNames(nodeName string) []string {
	return e.traces.Names(nodeName)
}

// activeIndices merges the reused and to-build sets back into index order.
func activeIndices(r *reconcile.Result) []int {
	indices := make([]int, 0, r.Active())
	indices = append(indices, r.Reused...)
	indices = append(indices, r.ToBuild...)
	for i := 1; i < len(indices); i++ {
		for j := i; j > 0 && indices[j] < indices[j-1]; j-- {
			indices[j], indices[j-1] = indices[j-1], indices[j]
		}
	}
	return indices
}

package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/sourcegraph/conc/pool"
	"github.com/vk/dynagrid/internal/combine"
	"github.com/vk/dynagrid/internal/ctxlog"
	"github.com/vk/dynagrid/internal/dag"
	"github.com/vk/dynagrid/internal/expand"
	"github.com/vk/dynagrid/internal/grouping"
	"github.com/vk/dynagrid/internal/reconcile"
	"github.com/zclconf/go-cty/cty"
)

// RunOptions configures a single run.
type RunOptions struct {
	// Cap bounds how many sub-units of each dynamic node may be built in
	// this run. Negative means unbounded.
	Cap int
}

// NodeStatus reports one node's reconciliation outcome for a run.
type NodeStatus struct {
	Node            string
	Reused          int
	ToBuild         int
	RetainedUnbuilt int
	// Err is the declaration-level error that aborted the node's expansion,
	// including aborts inherited from upstream failures.
	Err error
	// Failures lists this run's isolated sub-unit build failures.
	Failures []*reconcile.SubunitBuildError
}

// Report is the per-node status of one run, in execution order.
type Report struct {
	Nodes []NodeStatus
}

// Status returns the report entry for a node.
func (r *Report) Status(node string) (NodeStatus, bool) {
	for _, s := range r.Nodes {
		if s.Node == node {
			return s, true
		}
	}
	return NodeStatus{}, false
}

// Run expands, reconciles, and builds every declared node in dependency
// order. Expansion per node is pure and completes before any of that node's
// sub-units are scheduled; sub-unit builds run concurrently on the engine's
// worker pool with no ordering constraint among siblings.
//
// Declaration-level errors abort the affected node and its dependents and
// are joined into the returned error. Sub-unit build failures are isolated:
// recorded in the report, they never fail the run.
func (e *Engine) Run(ctx context.Context, opts RunOptions) (*Report, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	logger := ctxlog.FromContext(ctx)

	order, graph, err := e.executionOrder()
	if err != nil {
		return nil, err
	}
	logger.Debug("Run: execution order resolved.", "nodes", order, "cap", opts.Cap)

	report := &Report{}
	var declErrs []error

	for _, name := range order {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		n := e.nodes[name]
		n.err = nil

		status := NodeStatus{Node: name}
		nodeLogger := logger.With("node", name)

		if err := e.checkUpstream(graph, name); err != nil {
			nodeLogger.Warn("Skipping node due to upstream failure.", "error", err)
			n.err = err
			n.plan, n.result, n.complete = nil, nil, false
			status.Err = err
			report.Nodes = append(report.Nodes, status)
			continue
		}

		plan, err := e.planNode(n)
		if err != nil {
			nodeLogger.Error("Expansion failed.", "error", err)
			n.err = err
			n.plan, n.result, n.complete = nil, nil, false
			status.Err = err
			report.Nodes = append(report.Nodes, status)
			declErrs = append(declErrs, fmt.Errorf("node %q: %w", name, err))
			continue
		}

		result := reconcile.Reconcile(e.builds, n.prev, plan, opts.Cap)
		for traceName, entries := range plan.Traces {
			e.traces.Put(traceName, name, entries, result.Active())
		}
		nodeLogger.Debug("Reconciled expansion plan.",
			"subunits", len(plan.Subunits),
			"reused", len(result.Reused),
			"to_build", len(result.ToBuild),
			"retained_unbuilt", len(result.RetainedUnbuilt))

		status.Failures = e.buildSubunits(ctx, n, plan, result)
		for _, f := range status.Failures {
			nodeLogger.Error("Sub-unit build failed.", "subunit", f.Index, "error", f.Err)
		}

		n.prev, n.plan, n.result = plan, plan, result
		e.assembleOutput(n, result)

		status.Reused, status.ToBuild, status.RetainedUnbuilt = result.Counts()
		report.Nodes = append(report.Nodes, status)
	}

	return report, errors.Join(declErrs...)
}

// executionOrder builds the node dependency graph and returns a
// deterministic topological order over it.
func (e *Engine) executionOrder() ([]string, *dag.Graph, error) {
	graph := dag.New()
	for name := range e.nodes {
		graph.AddNode(name)
	}
	for name, n := range e.nodes {
		for _, dep := range e.nodeDeps(n) {
			if err := graph.AddEdge(dep, name); err != nil {
				return nil, nil, fmt.Errorf("node %q: %w", name, err)
			}
		}
	}
	order, err := graph.TopologicalOrder()
	if err != nil {
		return nil, nil, err
	}
	return order, graph, nil
}

// nodeDeps lists the declared node names this node fans out over.
func (e *Engine) nodeDeps(n *node) []string {
	var deps []string
	for _, name := range n.decl.Over {
		if _, ok := e.nodes[name]; ok {
			deps = append(deps, name)
		}
	}
	// For aggregation over a node, the partition key names a trace, not a
	// value, so it never contributes an edge of its own.
	if !e.isCombine(n) && n.decl.PartitionKey != "" {
		if _, ok := e.nodes[n.decl.PartitionKey]; ok {
			deps = append(deps, n.decl.PartitionKey)
		}
	}
	return deps
}

// isCombine reports whether the node aggregates an upstream dynamic node's
// sub-units rather than a plain grouping value.
func (e *Engine) isCombine(n *node) bool {
	if n.decl.Mode != grouping.ModeGroup || len(n.decl.Over) != 1 {
		return false
	}
	_, ok := e.nodes[n.decl.Over[0]]
	return ok
}

// checkUpstream verifies that every upstream node this node depends on
// expanded successfully and, for non-aggregating consumers, built all of its
// active sub-units.
func (e *Engine) checkUpstream(graph *dag.Graph, name string) error {
	deps, err := graph.Dependencies(name)
	if err != nil {
		return err
	}
	n := e.nodes[name]
	for _, dep := range deps {
		up := e.nodes[dep]
		if up.err != nil {
			return fmt.Errorf("aborted: upstream node %q failed to expand: %w", dep, up.err)
		}
		// Aggregating consumers see partial upstream results through the
		// missing-member policy instead.
		if !e.isCombine(n) && !up.complete {
			return fmt.Errorf("aborted: upstream node %q has unbuilt or failed sub-units", dep)
		}
	}
	return nil
}

// planNode produces the node's new expansion plan, choosing the combiner
// path for dynamic-on-dynamic aggregation.
func (e *Engine) planNode(n *node) (*expand.Plan, error) {
	if e.isCombine(n) {
		return e.combinePlan(n)
	}

	avail := make(map[string]cty.Value, len(e.values)+len(e.nodes))
	for name, v := range e.values {
		avail[name] = v
	}
	for name, other := range e.nodes {
		if other.complete {
			avail[name] = other.output
		}
	}
	return expand.Expand(n.decl, avail)
}

// combinePlan aggregates an upstream node's sub-units using its trace record
// for bucket membership.
func (e *Engine) combinePlan(n *node) (*expand.Plan, error) {
	upName := n.decl.Over[0]
	up := e.nodes[upName]
	if up.plan == nil || up.result == nil {
		return nil, fmt.Errorf("upstream node %q has no expansion plan", upName)
	}
	if len(n.decl.Trace) > 1 {
		return nil, fmt.Errorf("aggregation over %q can propagate at most one trace name", upName)
	}

	var keys []cty.Value
	if n.decl.PartitionKey != "" {
		var err error
		keys, err = e.traces.Lookup(n.decl.PartitionKey, upName)
		if err != nil {
			return nil, fmt.Errorf("partition key %q: %w", n.decl.PartitionKey, err)
		}
	}

	active := up.result.Active()
	results := make(map[int]cty.Value, active)
	for i := 0; i < active && i < len(up.plan.Subunits); i++ {
		if v, ok := e.builds.Result(upName, up.plan.Subunits[i].Identity); ok {
			results[i] = v
		}
	}

	in := combine.Input{
		Node:         n.decl.Node,
		UpstreamName: upName,
		Upstream:     up.plan,
		Keys:         keys,
		Active:       active,
		Results:      results,
	}
	if len(n.decl.Trace) == 1 {
		in.TraceAs = n.decl.Trace[0]
	}
	return combine.Combine(in)
}

// buildSubunits runs the to_build set on the worker pool and records every
// outcome in the build store.
func (e *Engine) buildSubunits(ctx context.Context, n *node, plan *expand.Plan, result *reconcile.Result) []*reconcile.SubunitBuildError {
	var mu sync.Mutex
	var failures []*reconcile.SubunitBuildError
	record := func(f *reconcile.SubunitBuildError) {
		e.builds.PutFailure(plan.Node, f.Identity, f)
		mu.Lock()
		failures = append(failures, f)
		mu.Unlock()
	}

	p := pool.New().WithMaxGoroutines(e.workers)
	for _, idx := range result.ToBuild {
		su := plan.Subunits[idx]
		p.Go(func() {
			// A cancelled build simply never completes; the next run picks
			// the sub-unit up again as to_build.
			if ctx.Err() != nil {
				return
			}
			if len(su.MissingMembers) > 0 && e.policy == FailAggregate {
				record(&reconcile.SubunitBuildError{
					Node:     plan.Node,
					Identity: su.Identity,
					Index:    su.Index,
					Err:      fmt.Errorf("no valid results for upstream members %v", su.MissingMembers),
				})
				return
			}
			out, err := n.build(ctx, su)
			if err != nil {
				record(&reconcile.SubunitBuildError{
					Node:     plan.Node,
					Identity: su.Identity,
					Index:    su.Index,
					Err:      err,
				})
				return
			}
			e.builds.PutResult(plan.Node, su.Identity, out)
		})
	}
	p.Wait()

	// Deterministic order for reporting.
	for i := 1; i < len(failures); i++ {
		for j := i; j > 0 && failures[j].Index < failures[j-1].Index; j-- {
			failures[j], failures[j-1] = failures[j-1], failures[j]
		}
	}
	return failures
}

// assembleOutput collects the node's active results into the grouping value
// its dependents fan out over. A node with any unbuilt or failed active
// sub-unit publishes nothing.
func (e *Engine) assembleOutput(n *node, result *reconcile.Result) {
	indices := activeIndices(result)
	out := make([]cty.Value, 0, len(indices))
	for _, i := range indices {
		su := n.plan.Subunits[i]
		v, ok := e.builds.Result(n.plan.Node, su.Identity)
		if !ok {
			n.output, n.complete = cty.NilVal, false
			return
		}
		out = append(out, v)
	}
	n.output = cty.TupleVal(out)
	n.complete = true
}

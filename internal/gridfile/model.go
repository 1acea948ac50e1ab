package gridfile

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/dynagrid/internal/expand"
	"github.com/vk/dynagrid/internal/grouping"
	"github.com/zclconf/go-cty/cty"
)

// Grid is the decoded content of one or more grid files: the named grouping
// values and the dynamic node declarations, in file order.
type Grid struct {
	Values map[string]cty.Value
	Nodes  []*Node
}

// Node is one decoded node block. The expr is kept as an unevaluated HCL
// expression and evaluated once per sub-unit at build time.
type Node struct {
	Name         string
	Mode         grouping.Mode
	Over         []string
	PartitionKey string
	Trace        []string

	expr      hcl.Expression
	exprRange hcl.Range
}

// Declaration converts the node block into an expansion declaration.
func (n *Node) Declaration() expand.Declaration {
	return expand.Declaration{
		Node:         n.Name,
		Mode:         n.Mode,
		Over:         n.Over,
		PartitionKey: n.PartitionKey,
		Trace:        n.Trace,
	}
}

// Evaluate runs the node's expr with the given sub-unit slices bound as
// variables and returns the resulting value.
func (n *Node) Evaluate(slices map[string]cty.Value) (cty.Value, error) {
	evalCtx := &hcl.EvalContext{
		Variables: slices,
		Functions: exprFunctions(),
	}
	v, diags := n.expr.Value(evalCtx)
	if diags.HasErrors() {
		return cty.NilVal, fmt.Errorf("evaluating expr for node %q at %s: %w", n.Name, n.exprRange.String(), diags)
	}
	return v, nil
}

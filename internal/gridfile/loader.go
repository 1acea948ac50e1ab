package gridfile

import (
	"context"
	"fmt"
	"os"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/vk/dynagrid/internal/ctxlog"
	"github.com/vk/dynagrid/internal/fsutil"
	"github.com/vk/dynagrid/internal/grouping"
	"github.com/zclconf/go-cty/cty"
)

// fileRoot decodes the top-level blocks of one grid file.
type fileRoot struct {
	Values []*valueBlock `hcl:"value,block"`
	Nodes  []*nodeBlock  `hcl:"node,block"`
	Remain hcl.Body      `hcl:",remain"`
}

type valueBlock struct {
	Name  string         `hcl:"name,label"`
	Items hcl.Expression `hcl:"items"`
}

type nodeBlock struct {
	Name         string         `hcl:"name,label"`
	Mode         string         `hcl:"mode"`
	Over         []string       `hcl:"over,optional"`
	PartitionKey string         `hcl:"partition_key,optional"`
	Trace        []string       `hcl:"trace,optional"`
	Expr         hcl.Expression `hcl:"expr"`
}

// Load discovers, parses, and validates grid files from the given paths.
// Each path may name a single .hcl file or a directory searched recursively.
func Load(ctx context.Context, paths ...string) (*Grid, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Grid loader started.", "path_count", len(paths))

	var files []string
	seen := make(map[string]struct{})
	for _, path := range paths {
		if _, err := os.Stat(path); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return nil, fmt.Errorf("error accessing path %s: %w", path, err)
		}
		found, err := fsutil.FindFilesByExtension(path, ".hcl")
		if err != nil {
			return nil, err
		}
		for _, f := range found {
			if _, ok := seen[f]; !ok {
				files = append(files, f)
				seen[f] = struct{}{}
			}
		}
	}
	logger.Debug("Discovered grid files.", "count", len(files))

	grid := &Grid{Values: make(map[string]cty.Value)}
	parser := hclparse.NewParser()

	for _, file := range files {
		hclFile, diags := parser.ParseHCLFile(file)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to parse grid file %s: %w", file, diags)
		}

		var root fileRoot
		diags = gohcl.DecodeBody(hclFile.Body, nil, &root)
		if diags.HasErrors() {
			return nil, fmt.Errorf("failed to decode grid file %s: %w", file, diags)
		}

		for _, vb := range root.Values {
			if err := mergeValue(grid, vb); err != nil {
				return nil, err
			}
		}
		for _, nb := range root.Nodes {
			node, diags := translateNode(nb)
			if diags.HasErrors() {
				return nil, diags
			}
			grid.Nodes = append(grid.Nodes, node)
		}
	}

	if diags := validate(grid); diags.HasErrors() {
		return nil, diags
	}
	logger.Debug("Grid loading complete.", "values", len(grid.Values), "nodes", len(grid.Nodes))
	return grid, nil
}

// mergeValue evaluates a value block's items and records it under its name.
func mergeValue(grid *Grid, vb *valueBlock) error {
	if _, ok := grid.Values[vb.Name]; ok {
		return fmt.Errorf("duplicate value block %q", vb.Name)
	}
	evalCtx := &hcl.EvalContext{Functions: exprFunctions()}
	v, diags := vb.Items.Value(evalCtx)
	if diags.HasErrors() {
		return fmt.Errorf("evaluating items for value %q: %w", vb.Name, diags)
	}
	grid.Values[vb.Name] = v
	return nil
}

// translateNode converts a decoded node block into the model, validating the
// mode keyword against its declaration site.
func translateNode(nb *nodeBlock) (*Node, hcl.Diagnostics) {
	var diags hcl.Diagnostics

	mode, err := grouping.ParseMode(nb.Mode)
	if err != nil {
		diags = append(diags, &hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid fan-out mode",
			Detail:   fmt.Sprintf("Node %q: %s.", nb.Name, err),
			Subject:  nb.Expr.Range().Ptr(),
		})
		return nil, diags
	}

	return &Node{
		Name:         nb.Name,
		Mode:         mode,
		Over:         nb.Over,
		PartitionKey: nb.PartitionKey,
		Trace:        nb.Trace,
		expr:         nb.Expr,
		exprRange:    nb.Expr.Range(),
	}, nil
}

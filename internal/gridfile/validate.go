package gridfile

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/vk/dynagrid/internal/grouping"
)

func errorf(summary, format string, args ...any) *hcl.Diagnostic {
	return &hcl.Diagnostic{
		Severity: hcl.DiagError,
		Summary:  summary,
		Detail:   fmt.Sprintf(format, args...),
	}
}

// validate runs the cross-block structural checks that individual block
// decoding cannot see.
func validate(grid *Grid) hcl.Diagnostics {
	var diags hcl.Diagnostics

	names := make(map[string]struct{}, len(grid.Nodes))
	for _, n := range grid.Nodes {
		if _, dup := names[n.Name]; dup {
			diags = append(diags, errorf("Duplicate node block",
				"Node %q is declared more than once.", n.Name))
			continue
		}
		names[n.Name] = struct{}{}

		if _, clash := grid.Values[n.Name]; clash {
			diags = append(diags, errorf("Name collision",
				"Node %q shares its name with a value block; names are a single namespace.", n.Name))
		}

		switch n.Mode {
		case grouping.ModeMap, grouping.ModeCross:
			if len(n.Over) == 0 {
				diags = append(diags, errorf("Missing over list",
					"Node %q uses mode %q and must fan out over at least one name.", n.Name, n.Mode))
			}
			if n.PartitionKey != "" {
				diags = append(diags, errorf("Unexpected partition_key",
					"Node %q uses mode %q; partition_key applies only to group mode.", n.Name, n.Mode))
			}
		case grouping.ModeGroup:
			if len(n.Over) != 1 {
				diags = append(diags, errorf("Invalid over list",
					"Node %q uses mode \"group\" and must fan out over exactly one name, got %d.", n.Name, len(n.Over)))
			}
			if len(n.Trace) > 1 {
				diags = append(diags, errorf("Invalid trace list",
					"Node %q uses mode \"group\" and may propagate at most one trace name, got %d.", n.Name, len(n.Trace)))
			}
		}
	}

	return diags
}

package trace

import (
	"fmt"

	"github.com/vk/dynagrid/internal/grouping"
	"github.com/zclconf/go-cty/cty"
)

// TraceLengthMismatchError reports a trace projection that disagrees with the
// sub-unit count. This is a declaration error: the grouping and trace
// specifications reference mismatched upstream data.
type TraceLengthMismatchError struct {
	Trace    string
	Got      int
	Expected int
}

// Error implements the error interface.
func (e *TraceLengthMismatchError) Error() string {
	return fmt.Sprintf("trace %q produced %d entries for %d sub-units", e.Trace, e.Got, e.Expected)
}

// Project computes one trace entry per sub-unit by applying the same index
// assignments used for grouping to the designated trace values.
//
// sources is the declaration-ordered list of grouping value names and
// elements holds each source's materialized elements. Every trace name must
// be one of the sources; with several trace names each entry is a tuple
// aligned by name order.
func Project(sources []string, elements map[string][]cty.Value, assignments []grouping.Assignment, traceNames []string) ([]cty.Value, error) {
	if len(traceNames) == 0 {
		return nil, nil
	}

	positions := make([]int, len(traceNames))
	for i, name := range traceNames {
		pos := -1
		for j, src := range sources {
			if src == name {
				pos = j
				break
			}
		}
		if pos == -1 {
			return nil, fmt.Errorf("trace %q is not among the grouping values %v", name, sources)
		}
		positions[i] = pos
	}

	entries := make([]cty.Value, 0, len(assignments))
	for _, a := range assignments {
		parts := make([]cty.Value, len(traceNames))
		for i, name := range traceNames {
			els := elements[name]
			idx := a.Indices[positions[i]]
			if idx < 0 || idx >= len(els) {
				return nil, &TraceLengthMismatchError{Trace: name, Got: len(els), Expected: len(assignments)}
			}
			parts[i] = els[idx]
		}
		if len(parts) == 1 {
			entries = append(entries, parts[0])
		} else {
			entries = append(entries, cty.TupleVal(parts))
		}
	}
	return entries, nil
}

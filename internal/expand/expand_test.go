package expand

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/dynagrid/internal/grouping"
	"github.com/zclconf/go-cty/cty"
)

func testValues() map[string]cty.Value {
	return map[string]cty.Value{
		"numbers": cty.ListVal([]cty.Value{cty.NumberIntVal(1), cty.NumberIntVal(2)}),
		"letters": cty.ListVal([]cty.Value{cty.StringVal("a"), cty.StringVal("b")}),
		"batch":   cty.ListVal([]cty.Value{cty.StringVal("x"), cty.StringVal("y"), cty.StringVal("x")}),
		"samples": cty.ListVal([]cty.Value{cty.NumberIntVal(10), cty.NumberIntVal(20), cty.NumberIntVal(30)}),
	}
}

func TestExpandMap(t *testing.T) {
	plan, err := Expand(Declaration{
		Node:  "combined",
		Mode:  grouping.ModeMap,
		Over:  []string{"numbers", "letters"},
		Trace: []string{"numbers"},
	}, testValues())
	require.NoError(t, err)

	require.Len(t, plan.Subunits, 2)
	assert.Equal(t, cty.NumberIntVal(1), plan.Subunits[0].Slices["numbers"])
	assert.Equal(t, cty.StringVal("a"), plan.Subunits[0].Slices["letters"])
	assert.Equal(t, cty.NumberIntVal(2), plan.Subunits[1].Slices["numbers"])
	assert.Equal(t, cty.StringVal("b"), plan.Subunits[1].Slices["letters"])

	require.Contains(t, plan.Traces, "numbers")
	assert.Equal(t, []cty.Value{cty.NumberIntVal(1), cty.NumberIntVal(2)}, plan.Traces["numbers"])
	assert.Equal(t, cty.NumberIntVal(1), plan.Subunits[0].Trace)

	assert.NotEqual(t, plan.Subunits[0].Identity, plan.Subunits[1].Identity)
}

func TestExpandCross(t *testing.T) {
	plan, err := Expand(Declaration{
		Node: "pairs",
		Mode: grouping.ModeCross,
		Over: []string{"numbers", "letters"},
	}, testValues())
	require.NoError(t, err)

	require.Len(t, plan.Subunits, 4)
	// First-listed value varies slowest.
	want := [][2]cty.Value{
		{cty.NumberIntVal(1), cty.StringVal("a")},
		{cty.NumberIntVal(1), cty.StringVal("b")},
		{cty.NumberIntVal(2), cty.StringVal("a")},
		{cty.NumberIntVal(2), cty.StringVal("b")},
	}
	for i, su := range plan.Subunits {
		assert.Equal(t, want[i][0], su.Slices["numbers"], "sub-unit %d", i)
		assert.Equal(t, want[i][1], su.Slices["letters"], "sub-unit %d", i)
		assert.Equal(t, i, su.Index)
		assert.Equal(t, cty.NilVal, su.Trace)
	}
}

func TestExpandGroup(t *testing.T) {
	t.Run("keyed partition in first-appearance order", func(t *testing.T) {
		plan, err := Expand(Declaration{
			Node:         "totals",
			Mode:         grouping.ModeGroup,
			Over:         []string{"samples"},
			PartitionKey: "batch",
			Trace:        []string{"batch"},
		}, testValues())
		require.NoError(t, err)

		require.Len(t, plan.Subunits, 2)
		assert.Equal(t, []int{0, 2}, plan.Subunits[0].Members)
		assert.Equal(t, cty.TupleVal([]cty.Value{cty.NumberIntVal(10), cty.NumberIntVal(30)}), plan.Subunits[0].Slices["samples"])
		assert.Equal(t, cty.StringVal("x"), plan.Subunits[0].Trace)
		assert.Equal(t, []int{1}, plan.Subunits[1].Members)
		assert.Equal(t, cty.StringVal("y"), plan.Subunits[1].Trace)

		assert.Equal(t, []cty.Value{cty.StringVal("x"), cty.StringVal("y")}, plan.Traces["batch"])
	})

	t.Run("unkeyed group is a single aggregate", func(t *testing.T) {
		plan, err := Expand(Declaration{
			Node: "all",
			Mode: grouping.ModeGroup,
			Over: []string{"samples"},
		}, testValues())
		require.NoError(t, err)

		require.Len(t, plan.Subunits, 1)
		assert.Equal(t, []int{0, 1, 2}, plan.Subunits[0].Members)
	})

	t.Run("key length must match upstream", func(t *testing.T) {
		_, err := Expand(Declaration{
			Node:         "totals",
			Mode:         grouping.ModeGroup,
			Over:         []string{"numbers"},
			PartitionKey: "batch",
		}, testValues())
		var lm *grouping.LengthMismatchError
		require.ErrorAs(t, err, &lm)
	})

	t.Run("only the partition key is traceable", func(t *testing.T) {
		_, err := Expand(Declaration{
			Node:         "totals",
			Mode:         grouping.ModeGroup,
			Over:         []string{"samples"},
			PartitionKey: "batch",
			Trace:        []string{"samples"},
		}, testValues())
		assert.ErrorContains(t, err, "can only trace its partition key")
	})
}

func TestExpandErrors(t *testing.T) {
	t.Run("unknown grouping value", func(t *testing.T) {
		_, err := Expand(Declaration{
			Node: "combined",
			Mode: grouping.ModeMap,
			Over: []string{"numbers", "missing"},
		}, testValues())
		var ugv *UnknownGroupingVariableError
		require.ErrorAs(t, err, &ugv)
		assert.Equal(t, "missing", ugv.Name)
	})

	t.Run("length mismatch schedules nothing", func(t *testing.T) {
		plan, err := Expand(Declaration{
			Node: "combined",
			Mode: grouping.ModeMap,
			Over: []string{"numbers", "batch"},
		}, testValues())
		var lm *grouping.LengthMismatchError
		require.ErrorAs(t, err, &lm)
		assert.Nil(t, plan)
	})

	t.Run("trace name outside the grouping values", func(t *testing.T) {
		_, err := Expand(Declaration{
			Node:  "combined",
			Mode:  grouping.ModeMap,
			Over:  []string{"numbers"},
			Trace: []string{"letters"},
		}, testValues())
		assert.ErrorContains(t, err, "not among the grouping values")
	})

	t.Run("empty over is rejected", func(t *testing.T) {
		_, err := Expand(Declaration{Node: "combined", Mode: grouping.ModeMap}, testValues())
		assert.ErrorContains(t, err, "declares no grouping values")
	})
}

func TestFingerprintStability(t *testing.T) {
	slices := map[string]cty.Value{
		"numbers": cty.NumberIntVal(1),
		"letters": cty.StringVal("a"),
	}

	t.Run("identical inputs at the same index agree", func(t *testing.T) {
		a := Fingerprint("combined", grouping.ModeMap, 0, slices)
		b := Fingerprint("combined", grouping.ModeMap, 0, map[string]cty.Value{
			"letters": cty.StringVal("a"),
			"numbers": cty.NumberIntVal(1),
		})
		assert.Equal(t, a, b)
	})

	t.Run("index, node, mode, and values all discriminate", func(t *testing.T) {
		base := Fingerprint("combined", grouping.ModeMap, 0, slices)
		assert.NotEqual(t, base, Fingerprint("combined", grouping.ModeMap, 1, slices))
		assert.NotEqual(t, base, Fingerprint("other", grouping.ModeMap, 0, slices))
		assert.NotEqual(t, base, Fingerprint("combined", grouping.ModeCross, 0, slices))
		assert.NotEqual(t, base, Fingerprint("combined", grouping.ModeMap, 0, map[string]cty.Value{
			"numbers": cty.NumberIntVal(2),
			"letters": cty.StringVal("a"),
		}))
	})

	t.Run("re-expansion yields identical identities", func(t *testing.T) {
		decl := Declaration{Node: "combined", Mode: grouping.ModeMap, Over: []string{"numbers", "letters"}}
		p1, err := Expand(decl, testValues())
		require.NoError(t, err)
		p2, err := Expand(decl, testValues())
		require.NoError(t, err)
		require.Equal(t, len(p1.Subunits), len(p2.Subunits))
		for i := range p1.Subunits {
			assert.Equal(t, p1.Subunits[i].Identity, p2.Subunits[i].Identity)
		}
	})
}

// Guard against the projection layer drifting out of alignment: an expansion
// that succeeds always carries one trace entry per sub-unit.
func TestTraceAlignment(t *testing.T) {
	plan, err := Expand(Declaration{
		Node:  "pairs",
		Mode:  grouping.ModeCross,
		Over:  []string{"numbers", "letters"},
		Trace: []string{"numbers", "letters"},
	}, testValues())
	require.NoError(t, err)

	for name, entries := range plan.Traces {
		assert.Len(t, entries, len(plan.Subunits), "trace %q", name)
	}
	for i, su := range plan.Subunits {
		assert.Equal(t, cty.TupleVal([]cty.Value{su.Slices["numbers"], su.Slices["letters"]}), su.Trace, "sub-unit %d", i)
	}
}

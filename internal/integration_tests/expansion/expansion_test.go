package expansion_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/dynagrid/internal/app"
	"github.com/vk/dynagrid/internal/engine"
	"github.com/vk/dynagrid/internal/testutil"
	"github.com/zclconf/go-cty/cty"
)

// Test for: values and nodes spread over multiple grid files merge into one
// pipeline and fan out together.
func TestExpansion_MultiFileGrid(t *testing.T) {
	// --- Arrange ---
	files := map[string]string{
		"values.hcl": `
			value "envs"    { items = ["dev", "prod"] }
			value "regions" { items = ["eu", "us"] }
		`,
		"nodes.hcl": `
			node "deploy" {
				mode = "cross"
				over = ["envs", "regions"]
				expr = "${format("%s-%s", envs, regions)}"
			}
		`,
	}

	// --- Act ---
	result := testutil.RunGrid(t, files, app.Config{})

	// --- Assert ---
	require.NoError(t, result.Err, "logs:\n%s", result.LogOutput)
	results, err := result.App.Engine().Results("deploy")
	require.NoError(t, err)
	assert.Equal(t, []cty.Value{
		cty.StringVal("dev-eu"), cty.StringVal("dev-us"),
		cty.StringVal("prod-eu"), cty.StringVal("prod-us"),
	}, results)
}

// Test for: a cap-bounded first run followed by an uncapped re-run builds
// only the tail it revealed, reusing the capped window untouched.
func TestExpansion_CapGrowthAcrossRuns(t *testing.T) {
	// --- Arrange ---
	files := map[string]string{
		"main.hcl": `
			value "items" { items = ["a", "b", "c", "d"] }
			node "work" {
				mode = "map"
				over = ["items"]
				expr = "${upper(items)}"
			}
		`,
	}

	// --- Act ---
	result := testutil.RunGrid(t, files, app.Config{Cap: 2})
	require.NoError(t, result.Err, "logs:\n%s", result.LogOutput)

	eng := result.App.Engine()
	capped, err := eng.Results("work")
	require.NoError(t, err)
	require.Len(t, capped, 2)

	report, err := eng.Run(context.Background(), engine.RunOptions{Cap: -1})
	require.NoError(t, err)

	// --- Assert ---
	status, ok := report.Status("work")
	require.True(t, ok)
	assert.Equal(t, 2, status.Reused)
	assert.Equal(t, 2, status.ToBuild)

	full, err := eng.Results("work")
	require.NoError(t, err)
	assert.Equal(t, []cty.Value{
		cty.StringVal("A"), cty.StringVal("B"), cty.StringVal("C"), cty.StringVal("D"),
	}, full)
}

// Test for: a three-hop chain where a keyed aggregate consumes a dynamic
// node and a further map node consumes the aggregate.
func TestExpansion_DynamicOnDynamicChain(t *testing.T) {
	// --- Arrange ---
	files := map[string]string{
		"main.hcl": `
			value "files"   { items = ["f1", "f2", "f3", "f4"] }
			value "buckets" { items = ["odd", "even", "odd", "even"] }

			node "parse" {
				mode  = "map"
				over  = ["files", "buckets"]
				trace = ["buckets"]
				expr  = "${upper(files)}"
			}

			node "merge" {
				mode          = "group"
				over          = ["parse"]
				partition_key = "buckets"
				trace         = ["buckets"]
				expr          = "${join(",", parse)}"
			}

			node "publish" {
				mode = "map"
				over = ["merge"]
				expr = "${format("[%s]", merge)}"
			}
		`,
	}

	// --- Act ---
	result := testutil.RunGrid(t, files, app.Config{})

	// --- Assert ---
	require.NoError(t, result.Err, "logs:\n%s", result.LogOutput)
	eng := result.App.Engine()

	merged, err := eng.Results("merge")
	require.NoError(t, err)
	assert.Equal(t, []cty.Value{cty.StringVal("F1,F3"), cty.StringVal("F2,F4")}, merged)

	published, err := eng.Results("publish")
	require.NoError(t, err)
	assert.Equal(t, []cty.Value{cty.StringVal("[F1,F3]"), cty.StringVal("[F2,F4]")}, published)

	// The aggregate re-recorded bucket keys under its own trace.
	keys, err := eng.Trace("buckets", "merge")
	require.NoError(t, err)
	assert.Equal(t, []cty.Value{cty.StringVal("odd"), cty.StringVal("even")}, keys)
}

// Test for: a grouping length mismatch surfaces as a startup-time run error
// naming the offending sources.
func TestExpansion_LengthMismatch(t *testing.T) {
	// --- Arrange ---
	files := map[string]string{
		"main.hcl": `
			value "threes" { items = [1, 2, 3] }
			value "twos"   { items = ["x", "y"] }

			node "broken" {
				mode = "map"
				over = ["threes", "twos"]
				expr = "${twos}"
			}
		`,
	}

	// --- Act ---
	result := testutil.RunGrid(t, files, app.Config{})

	// --- Assert ---
	require.Error(t, result.Err)
	assert.Contains(t, result.Err.Error(), "broken")
	assert.Contains(t, result.LogOutput, "Expansion failed.")
}

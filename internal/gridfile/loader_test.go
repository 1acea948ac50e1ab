package gridfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vk/dynagrid/internal/grouping"
	"github.com/zclconf/go-cty/cty"
)

func writeGrid(t *testing.T, name, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadValuesAndNodes(t *testing.T) {
	path := writeGrid(t, "grid.hcl", `
value "numbers" { items = [1, 2] }
value "letters" { items = ["a", "b"] }

node "combined" {
  mode  = "map"
  over  = ["numbers", "letters"]
  trace = ["numbers"]
  expr  = "${format("%v%v", numbers, letters)}"
}
`)

	grid, err := Load(context.Background(), path)
	require.NoError(t, err)

	require.Len(t, grid.Values, 2)
	assert.Equal(t, cty.TupleVal([]cty.Value{cty.StringVal("a"), cty.StringVal("b")}), grid.Values["letters"])

	require.Len(t, grid.Nodes, 1)
	n := grid.Nodes[0]
	assert.Equal(t, "combined", n.Name)
	assert.Equal(t, grouping.ModeMap, n.Mode)
	assert.Equal(t, []string{"numbers", "letters"}, n.Over)
	assert.Equal(t, []string{"numbers"}, n.Trace)

	decl := n.Declaration()
	assert.Equal(t, "combined", decl.Node)
	assert.Equal(t, grouping.ModeMap, decl.Mode)
}

func TestLoadDirectoryMergesFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "values.hcl"),
		[]byte(`value "hosts" { items = ["h1", "h2"] }`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "nodes.hcl"), []byte(`
node "ping" {
  mode = "map"
  over = ["hosts"]
  expr = "${upper(hosts)}"
}
`), 0o644))

	grid, err := Load(context.Background(), dir)
	require.NoError(t, err)
	assert.Len(t, grid.Values, 1)
	assert.Len(t, grid.Nodes, 1)
}

func TestLoadSkipsMissingPath(t *testing.T) {
	grid, err := Load(context.Background(), "/nonexistent/grid.hcl")
	require.NoError(t, err)
	assert.Empty(t, grid.Values)
	assert.Empty(t, grid.Nodes)
}

func TestEvaluateExpr(t *testing.T) {
	path := writeGrid(t, "grid.hcl", `
node "shout" {
  mode = "map"
  over = ["words"]
  expr = "${upper(words)}!"
}
`)
	grid, err := Load(context.Background(), path)
	require.NoError(t, err)
	require.Len(t, grid.Nodes, 1)

	v, err := grid.Nodes[0].Evaluate(map[string]cty.Value{"words": cty.StringVal("hey")})
	require.NoError(t, err)
	assert.Equal(t, cty.StringVal("HEY!"), v)

	_, err = grid.Nodes[0].Evaluate(map[string]cty.Value{})
	require.Error(t, err, "unbound variable must surface as an eval error")
}

func TestLoadParseError(t *testing.T) {
	path := writeGrid(t, "broken.hcl", `node "x" { mode = `)
	_, err := Load(context.Background(), path)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to parse grid file")
}

func TestLoadValidation(t *testing.T) {
	t.Run("invalid mode", func(t *testing.T) {
		path := writeGrid(t, "grid.hcl", `
node "x" {
  mode = "zip"
  over = ["a"]
  expr = "v"
}
`)
		_, err := Load(context.Background(), path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Invalid fan-out mode")
	})

	t.Run("map without over", func(t *testing.T) {
		path := writeGrid(t, "grid.hcl", `
node "x" {
  mode = "map"
  expr = "v"
}
`)
		_, err := Load(context.Background(), path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Missing over list")
	})

	t.Run("partition_key outside group mode", func(t *testing.T) {
		path := writeGrid(t, "grid.hcl", `
node "x" {
  mode          = "cross"
  over          = ["a"]
  partition_key = "k"
  expr          = "v"
}
`)
		_, err := Load(context.Background(), path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Unexpected partition_key")
	})

	t.Run("group with multiple over", func(t *testing.T) {
		path := writeGrid(t, "grid.hcl", `
node "x" {
  mode = "group"
  over = ["a", "b"]
  expr = "v"
}
`)
		_, err := Load(context.Background(), path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Invalid over list")
	})

	t.Run("duplicate node name", func(t *testing.T) {
		path := writeGrid(t, "grid.hcl", `
node "x" {
  mode = "map"
  over = ["a"]
  expr = "v"
}
node "x" {
  mode = "map"
  over = ["a"]
  expr = "v"
}
`)
		_, err := Load(context.Background(), path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Duplicate node block")
	})

	t.Run("node name shadows value", func(t *testing.T) {
		path := writeGrid(t, "grid.hcl", `
value "x" { items = [1] }
node "x" {
  mode = "map"
  over = ["x"]
  expr = "v"
}
`)
		_, err := Load(context.Background(), path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "Name collision")
	})

	t.Run("duplicate value block", func(t *testing.T) {
		path := writeGrid(t, "grid.hcl", `
value "x" { items = [1] }
value "x" { items = [2] }
`)
		_, err := Load(context.Background(), path)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "duplicate value block")
	})
}

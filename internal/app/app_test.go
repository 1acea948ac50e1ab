package app

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
)

func writeGrid(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "main.hcl")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestAppRunsDeclaredGrid(t *testing.T) {
	path := writeGrid(t, `
value "numbers" { items = [1, 2] }
value "letters" { items = ["a", "b"] }

node "combined" {
  mode = "map"
  over = ["numbers", "letters"]
  expr = "${format("%v%v", numbers, letters)}"
}
`)
	var out bytes.Buffer
	cfg, err := NewConfig(Config{
		GridPath: path,
		Cap:      -1,
		LogLevel: "error",
		Show:     []string{"combined"},
	})
	require.NoError(t, err)

	a := NewApp(&out, cfg)
	require.NoError(t, a.Run(context.Background()))

	results, err := a.Engine().Results("combined")
	require.NoError(t, err)
	assert.Equal(t, []cty.Value{cty.StringVal("1a"), cty.StringVal("2b")}, results)

	assert.Contains(t, out.String(), `combined[0] = cty.StringVal("1a")`)
	assert.Contains(t, out.String(), `combined[1] = cty.StringVal("2b")`)
}

func TestAppGroupChain(t *testing.T) {
	path := writeGrid(t, `
value "shards" { items = ["s1", "s2", "s3"] }
value "zones"  { items = ["eu", "us", "eu"] }

node "scan" {
  mode  = "map"
  over  = ["shards", "zones"]
  trace = ["zones"]
  expr  = "${upper(shards)}"
}

node "rollup" {
  mode          = "group"
  over          = ["scan"]
  partition_key = "zones"
  expr          = "${join("+", scan)}"
}
`)
	var out bytes.Buffer
	cfg, err := NewConfig(Config{GridPath: path, Cap: -1, LogLevel: "error"})
	require.NoError(t, err)

	a := NewApp(&out, cfg)
	require.NoError(t, a.Run(context.Background()))

	results, err := a.Engine().Results("rollup")
	require.NoError(t, err)
	assert.Equal(t, []cty.Value{cty.StringVal("S1+S3"), cty.StringVal("S2")}, results)
}

func TestAppShowErrors(t *testing.T) {
	path := writeGrid(t, `
value "items" { items = ["x"] }

node "work" {
  mode = "map"
  over = ["items"]
  expr = "${items}"
}
`)
	var out bytes.Buffer
	cfg, err := NewConfig(Config{
		GridPath: path,
		Cap:      -1,
		LogLevel: "error",
		Show:     []string{"no-such-node"},
	})
	require.NoError(t, err)

	a := NewApp(&out, cfg)
	err = a.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no-such-node")
}

func TestNewConfigValidation(t *testing.T) {
	_, err := NewConfig(Config{})
	require.Error(t, err)

	_, err = NewConfig(Config{GridPath: "g", MissingMembers: "ignore"})
	require.Error(t, err)

	cfg, err := NewConfig(Config{GridPath: "g", MissingMembers: "skip"})
	require.NoError(t, err)
	assert.Equal(t, "skip", cfg.MissingMembers)
}

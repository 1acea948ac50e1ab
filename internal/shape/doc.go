// Package shape computes the iteration length of grouping values and slices
// out their per-index elements. It is the lowest layer of the expansion
// pipeline: everything above it reasons about lengths and indices only, never
// about concrete cty types.
package shape

// Package engine ties the expansion pipeline together: declared grouping
// values and dynamic nodes go in, and each Run expands every node in
// dependency order, reconciles the plan against cached build state, and
// executes the to-build set on a bounded worker pool.
//
// Expansion is strictly phased per node: the full plan exists before any of
// that node's sub-units are scheduled, so a build can never change the shape
// of the batch it belongs to. Sub-unit build failures are isolated and
// reported; only declaration-level errors abort a node and its dependents.
package engine

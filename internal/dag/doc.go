// Package dag maintains the dependency graph between dynamic nodes: which
// node's grouping values are fed by which other node's results. The engine
// uses it to reject cyclic declarations and to derive the deterministic order
// in which nodes are expanded and built. It is not a general scheduler; the
// per-sub-unit build scheduling lives in the engine.
package dag

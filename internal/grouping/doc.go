// Package grouping turns grouping-value lengths into ordered per-sub-unit
// index assignments for the three fan-out modes. It is a pure shape-level
// computation: it never touches element values except for the partition keys
// handed to Group, and never evaluates the underlying computation.
package grouping

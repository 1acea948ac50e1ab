// Package gridfile loads dynamic pipeline declarations from HCL grid files.
// A grid file declares named grouping values and node blocks; each node's
// expr stays unevaluated until build time, when it runs once per sub-unit
// with that sub-unit's slices in scope.
package gridfile

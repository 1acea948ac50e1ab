// Package reconcile diffs a freshly computed expansion plan against the
// recorded build state of earlier runs, deciding which sub-units can reuse a
// cached result, which must be (re)built, and which the expansion cap keeps
// declared-but-unbuilt. It also owns the build store those decisions read
// from and the build phase writes into.
package reconcile

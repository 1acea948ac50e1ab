// Package expand turns a dynamic node's declaration plus its currently
// available grouping values into an ExpansionPlan: the ordered, fully
// determined list of sub-unit specifications for one run. Planning is a pure
// computation; executing the plan is someone else's job.
package expand

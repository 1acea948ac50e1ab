// Package combine implements the aggregation side of group-mode fan-out when
// the upstream grouping value is itself a dynamic node's set of sub-units.
// Bucket membership comes from the upstream trace record rather than raw
// element values, which is what makes multi-hop dynamic chains possible.
package combine

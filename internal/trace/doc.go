// Package trace records which grouping value produced which sub-unit. The
// projection half applies grouping index assignments to designated trace
// values; the store half persists the resulting per-node records so that
// downstream aggregation can recover bucket membership after the fact.
package trace

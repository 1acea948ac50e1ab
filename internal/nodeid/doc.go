/*
Package nodeid provides a structured, type-safe representation for node and
sub-unit identifiers, based on the canonical format `node[index]`.

This package enforces the identifier schema and centralizes all formatting
and parsing logic.
*/
package nodeid

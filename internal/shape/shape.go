package shape

import (
	"fmt"

	"github.com/zclconf/go-cty/cty"
)

// InvalidGroupingValueError reports a grouping value whose iteration length
// cannot be determined.
type InvalidGroupingValueError struct {
	Name   string
	Reason string
}

// Error implements the error interface.
func (e *InvalidGroupingValueError) Error() string {
	return fmt.Sprintf("invalid grouping value %q: %s", e.Name, e.Reason)
}

// Length returns the iteration length of a grouping value.
//
// Flat ordered collections (lists, tuples, sets) report their element count.
// A columnar table, modeled as an object or map whose attributes are all
// equal-length collections, reports its row count: row-oriented fan-out is
// the fixed policy for every multi-dimensional value. Primitive values are
// treated as single-element collections.
func Length(name string, v cty.Value) (int, error) {
	if v == cty.NilVal || v.IsNull() {
		return 0, &InvalidGroupingValueError{Name: name, Reason: "value is null"}
	}
	if !v.IsWhollyKnown() {
		return 0, &InvalidGroupingValueError{Name: name, Reason: "value is not yet known"}
	}

	ty := v.Type()
	switch {
	case ty.IsPrimitiveType():
		return 1, nil
	case ty.IsListType() || ty.IsSetType() || ty.IsTupleType():
		return v.LengthInt(), nil
	case ty.IsObjectType() || ty.IsMapType():
		if isRecord(v) {
			// An object of scalars is a single record, not a table.
			return 1, nil
		}
		return rowCount(name, v)
	default:
		return 0, &InvalidGroupingValueError{
			Name:   name,
			Reason: fmt.Sprintf("type %s has no defined length", ty.FriendlyName()),
		}
	}
}

// ElementAt returns element i of a flat collection, or row i of a columnar
// table. The index must satisfy 0 <= i < Length(name, v).
func ElementAt(name string, v cty.Value, i int) (cty.Value, error) {
	n, err := Length(name, v)
	if err != nil {
		return cty.NilVal, err
	}
	if i < 0 || i >= n {
		return cty.NilVal, fmt.Errorf("index %d out of range for grouping value %q (length %d)", i, name, n)
	}

	ty := v.Type()
	switch {
	case ty.IsPrimitiveType():
		return v, nil
	case ty.IsListType() || ty.IsSetType() || ty.IsTupleType():
		it := v.ElementIterator()
		for j := 0; it.Next(); j++ {
			_, el := it.Element()
			if j == i {
				return el, nil
			}
		}
		// Unreachable: the bounds check above guarantees a hit.
		return cty.NilVal, fmt.Errorf("iteration ended before index %d of %q", i, name)
	default:
		if isRecord(v) {
			return v, nil
		}
		return row(v, i), nil
	}
}

// Elements returns all elements (or rows) of a grouping value in order.
func Elements(name string, v cty.Value) ([]cty.Value, error) {
	n, err := Length(name, v)
	if err != nil {
		return nil, err
	}
	out := make([]cty.Value, 0, n)
	for i := 0; i < n; i++ {
		el, err := ElementAt(name, v, i)
		if err != nil {
			return nil, err
		}
		out = append(out, el)
	}
	return out, nil
}

// isRecord reports whether an object/map value should be treated as a single
// record rather than a columnar table. A table requires every attribute to be
// a collection; anything else degrades to record semantics.
func isRecord(v cty.Value) bool {
	if v.LengthInt() == 0 {
		return true
	}
	for it := v.ElementIterator(); it.Next(); {
		_, col := it.Element()
		ct := col.Type()
		if !ct.IsListType() && !ct.IsSetType() && !ct.IsTupleType() {
			return true
		}
	}
	return false
}

// rowCount returns the shared column length of a columnar table.
func rowCount(name string, v cty.Value) (int, error) {
	rows := -1
	for it := v.ElementIterator(); it.Next(); {
		key, col := it.Element()
		if col.IsNull() {
			return 0, &InvalidGroupingValueError{
				Name:   name,
				Reason: fmt.Sprintf("column %q is null", key.AsString()),
			}
		}
		n := col.LengthInt()
		if rows == -1 {
			rows = n
			continue
		}
		if n != rows {
			return 0, &InvalidGroupingValueError{
				Name:   name,
				Reason: fmt.Sprintf("column %q has length %d, expected %d", key.AsString(), n, rows),
			}
		}
	}
	return rows, nil
}

// row extracts row i of a columnar table as an object keyed by column name.
func row(v cty.Value, i int) cty.Value {
	attrs := make(map[string]cty.Value)
	for it := v.ElementIterator(); it.Next(); {
		key, col := it.Element()
		j := 0
		for colIt := col.ElementIterator(); colIt.Next(); j++ {
			_, el := colIt.Element()
			if j == i {
				attrs[key.AsString()] = el
				break
			}
		}
	}
	return cty.ObjectVal(attrs)
}

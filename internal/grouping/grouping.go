package grouping

import (
	"fmt"
	"strings"

	"github.com/zclconf/go-cty/cty"
)

// Mode selects the fan-out strategy of a dynamic node.
type Mode int

const (
	// ModeMap pairs the i-th element of every grouping value into sub-unit i.
	ModeMap Mode = iota
	// ModeCross enumerates the cartesian product of all grouping values.
	ModeCross
	// ModeGroup partitions upstream elements by a key value.
	ModeGroup
)

// String returns the declaration-surface spelling of the mode.
func (m Mode) String() string {
	switch m {
	case ModeMap:
		return "map"
	case ModeCross:
		return "cross"
	case ModeGroup:
		return "group"
	default:
		return fmt.Sprintf("unknown(%d)", int(m))
	}
}

// ParseMode converts a declaration string into a Mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "map":
		return ModeMap, nil
	case "cross":
		return ModeCross, nil
	case "group":
		return ModeGroup, nil
	default:
		return 0, fmt.Errorf("unknown fan-out mode %q: must be 'map', 'cross', or 'group'", s)
	}
}

// Source describes one named grouping value by its resolved length.
type Source struct {
	Name   string
	Length int
}

// Assignment selects one element from each grouping source for a single
// sub-unit. Indices is aligned with the source order passed to Map or Cross:
// Indices[j] is the element index into the j-th source.
type Assignment struct {
	Indices []int
}

// LengthMismatchError reports map-mode grouping values that disagree in
// length. Names and Lengths are aligned and follow declaration order.
type LengthMismatchError struct {
	Names   []string
	Lengths []int
}

// Error implements the error interface.
func (e *LengthMismatchError) Error() string {
	pairs := make([]string, len(e.Names))
	for i, name := range e.Names {
		pairs[i] = fmt.Sprintf("%s=%d", name, e.Lengths[i])
	}
	return "map-mode grouping values disagree in length: " + strings.Join(pairs, ", ")
}

// Map produces one assignment per index 0..n-1, where n is the common length
// of all sources. Sources of unequal length yield a LengthMismatchError.
func Map(sources []Source) ([]Assignment, error) {
	if len(sources) == 0 {
		return nil, nil
	}

	n := sources[0].Length
	for _, src := range sources[1:] {
		if src.Length != n {
			err := &LengthMismatchError{}
			for _, s := range sources {
				err.Names = append(err.Names, s.Name)
				err.Lengths = append(err.Lengths, s.Length)
			}
			return nil, err
		}
	}

	assignments := make([]Assignment, n)
	for i := 0; i < n; i++ {
		indices := make([]int, len(sources))
		for j := range indices {
			indices[j] = i
		}
		assignments[i] = Assignment{Indices: indices}
	}
	return assignments, nil
}

// Cross produces the full cartesian product of all sources. The first-listed
// source varies slowest and the last-listed varies fastest, so for sources
// A=[1,2] and B=[x,y] the order is (1,x),(1,y),(2,x),(2,y). Any source of
// length zero collapses the product to zero sub-units.
func Cross(sources []Source) []Assignment {
	if len(sources) == 0 {
		return nil
	}

	total := 1
	for _, src := range sources {
		total *= src.Length
	}
	if total == 0 {
		return []Assignment{}
	}

	assignments := make([]Assignment, 0, total)
	indices := make([]int, len(sources))
	for {
		assignment := Assignment{Indices: make([]int, len(indices))}
		copy(assignment.Indices, indices)
		assignments = append(assignments, assignment)

		// Advance the odometer, rightmost position first.
		pos := len(indices) - 1
		for pos >= 0 {
			indices[pos]++
			if indices[pos] < sources[pos].Length {
				break
			}
			indices[pos] = 0
			pos--
		}
		if pos < 0 {
			return assignments
		}
	}
}

// Bucket is one partition of upstream elements sharing a key value. Members
// holds upstream element indices in their original order. Key is cty.NilVal
// for the single bucket produced by an unkeyed group.
type Bucket struct {
	Key     cty.Value
	Members []int
}

// Group performs a stable partition of upstream elements by key value. Keys
// is the partition-key value per upstream element, in upstream order. Bucket
// order follows the first appearance of each distinct key.
func Group(keys []cty.Value) []Bucket {
	var buckets []Bucket
	seen := make(map[string]int)
	for i, key := range keys {
		fp := key.GoString()
		if at, ok := seen[fp]; ok {
			buckets[at].Members = append(buckets[at].Members, i)
			continue
		}
		seen[fp] = len(buckets)
		buckets = append(buckets, Bucket{Key: key, Members: []int{i}})
	}
	return buckets
}

// Single produces the unkeyed group partition: one bucket holding all n
// upstream elements in original order.
func Single(n int) []Bucket {
	members := make([]int, n)
	for i := range members {
		members[i] = i
	}
	return []Bucket{{Key: cty.NilVal, Members: members}}
}

package nodeid

import (
	"fmt"
	"regexp"
	"strconv"
)

// Address identifies a dynamic node or a single sub-unit of one, in the
// canonical format `node` or `node[index]`. It addresses a position within
// the current expansion; the content identity that survives across runs is a
// separate concept.
type Address struct {
	Node  string
	Index int // -1 means the address names the whole node.
}

// New returns an address for a whole node.
func New(node string) Address {
	return Address{Node: node, Index: -1}
}

// Sub returns an address for one sub-unit of a node.
func Sub(node string, index int) Address {
	return Address{Node: node, Index: index}
}

// HasIndex reports whether the address names a single sub-unit.
func (a Address) HasIndex() bool {
	return a.Index >= 0
}

// String serializes the address into its canonical representation.
func (a Address) String() string {
	if !a.HasIndex() {
		return a.Node
	}
	return fmt.Sprintf("%s[%d]", a.Node, a.Index)
}

// addrRegex parses addresses like "name" or "name[index]".
var addrRegex = regexp.MustCompile(`^([a-zA-Z_][a-zA-Z0-9_-]*)(?:\[(\d+)\])?$`)

// Parse creates an Address from its canonical string representation.
func Parse(raw string) (Address, error) {
	if raw == "" {
		return Address{}, fmt.Errorf("address cannot be empty")
	}
	matches := addrRegex.FindStringSubmatch(raw)
	if matches == nil {
		return Address{}, fmt.Errorf("invalid address format: %q", raw)
	}

	addr := Address{Node: matches[1], Index: -1}
	if matches[2] != "" {
		index, err := strconv.Atoi(matches[2])
		if err != nil {
			// Unreachable due to the regex \d+
			return Address{}, fmt.Errorf("internal error parsing index: %w", err)
		}
		addr.Index = index
	}
	return addr, nil
}

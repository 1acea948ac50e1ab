package expand

import (
	"fmt"
	"sort"

	"github.com/cespare/xxhash/v2"
	"github.com/vk/dynagrid/internal/grouping"
	"github.com/zclconf/go-cty/cty"
	ctyjson "github.com/zclconf/go-cty/cty/json"
)

// Fingerprint derives the stable identity of one sub-unit from the node's
// own identity, the fan-out mode, the sub-unit index, and the value
// fingerprint of its assigned slices. The result is a map key, deliberately
// not a handle into any plan, so recomputed plans cannot alias.
func Fingerprint(node string, mode grouping.Mode, index int, slices map[string]cty.Value) string {
	h := xxhash.New()
	h.WriteString(node)
	h.WriteString("\x00")
	h.WriteString(mode.String())
	h.WriteString("\x00")
	h.WriteString(fmt.Sprintf("%d", index))

	names := make([]string, 0, len(slices))
	for name := range slices {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		h.WriteString("\x00")
		h.WriteString(name)
		h.WriteString("=")
		h.Write(valueFingerprint(slices[name]))
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// CombineFingerprint derives the identity of an aggregate sub-unit from the
// identities of the upstream sub-units in its bucket and the bucket key.
// Depending on upstream identities rather than upstream values means an
// aggregate is rebuilt exactly when one of its members changed.
func CombineFingerprint(node string, index int, key cty.Value, memberIdentities []string) string {
	h := xxhash.New()
	h.WriteString(node)
	h.WriteString("\x00")
	h.WriteString(grouping.ModeGroup.String())
	h.WriteString("\x00")
	h.WriteString(fmt.Sprintf("%d", index))
	h.WriteString("\x00")
	h.Write(valueFingerprint(key))
	for _, id := range memberIdentities {
		h.WriteString("\x00")
		h.WriteString(id)
	}
	return fmt.Sprintf("%016x", h.Sum64())
}

// valueFingerprint serializes a cty value, type included, into a
// deterministic byte form for hashing.
func valueFingerprint(v cty.Value) []byte {
	if v == cty.NilVal {
		return []byte("nil")
	}
	ty := v.Type()
	tyBytes, err := ctyjson.MarshalType(ty)
	if err != nil {
		return []byte(v.GoString())
	}
	valBytes, err := ctyjson.Marshal(v, ty)
	if err != nil {
		return []byte(v.GoString())
	}
	return append(append(tyBytes, ':'), valBytes...)
}

package ir

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/roach88/gpuflat/internal/affine"
)

// Attr is a sealed interface over compile-time op attributes.
// Only IntAttr, StringAttr, BoolAttr, ArrayAttr, DictAttr and MapAttr
// implement it. There is no float attribute: the IR is integer-only.
type Attr interface {
	String() string
	attr() // Sealed - only these types implement it
}

// IntAttr is an integer attribute.
type IntAttr int64

func (IntAttr) attr() {}

func (a IntAttr) String() string { return strconv.FormatInt(int64(a), 10) }

// StringAttr is a string attribute.
type StringAttr string

func (StringAttr) attr() {}

func (a StringAttr) String() string { return strconv.Quote(string(a)) }

// BoolAttr is a boolean attribute.
type BoolAttr bool

func (BoolAttr) attr() {}

func (a BoolAttr) String() string { return strconv.FormatBool(bool(a)) }

// ArrayAttr is an ordered list of attributes.
type ArrayAttr []Attr

func (ArrayAttr) attr() {}

func (a ArrayAttr) String() string {
	parts := make([]string, len(a))
	for i, e := range a {
		parts[i] = e.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

// DictAttr maps names to attributes. Use SortedKeys for deterministic iteration.
type DictAttr map[string]Attr

func (DictAttr) attr() {}

func (a DictAttr) String() string {
	keys := a.SortedKeys()
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%s = %s", k, a[k])
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// MapAttr wraps an affine map, e.g. the map of an affine.apply op.
type MapAttr struct {
	Map affine.Map
}

func (MapAttr) attr() {}

func (a MapAttr) String() string { return a.Map.String() }

// SortedKeys returns keys in RFC 8785 canonical order (UTF-16 code units).
// CRITICAL: Go's sort.Strings uses UTF-8 which produces DIFFERENT order.
func (a DictAttr) SortedKeys() []string {
	return sortedKeys(a)
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysRFC8785)
	return keys
}

// compareKeysRFC8785 compares strings using UTF-16 code unit ordering
// as required by RFC 8785 (Canonical JSON).
func compareKeysRFC8785(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	minLen := min(len(a16), len(b16))
	for i := 0; i < minLen; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}

	// If all compared units are equal, shorter string comes first
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// IntAttrOf returns the integer stored under key.
func IntAttrOf(op *Op, key string) (int64, bool) {
	a, ok := op.Attr(key)
	if !ok {
		return 0, false
	}
	i, ok := a.(IntAttr)
	return int64(i), ok
}

// MapAttrOf returns the affine map stored under key.
func MapAttrOf(op *Op, key string) (affine.Map, bool) {
	a, ok := op.Attr(key)
	if !ok {
		return affine.Map{}, false
	}
	m, ok := a.(MapAttr)
	return m.Map, ok
}

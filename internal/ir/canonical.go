package ir

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/samber/lo"
	"golang.org/x/text/unicode/norm"
)

// MarshalCanonical produces RFC 8785 canonical JSON.
// CRITICAL: This is the ONLY serialization that should be used for
// fingerprinting IR.
//
// Key differences from standard json.Marshal:
// 1. Object keys sorted by UTF-16 code units (not UTF-8 bytes)
// 2. No HTML escaping (< > & are NOT escaped)
// 3. Strings are NFC normalized
// 4. No floats and no null (returns error)
func MarshalCanonical(v any) ([]byte, error) {
	return marshalCanonical(v)
}

func marshalCanonical(v any) ([]byte, error) {
	switch val := v.(type) {
	case nil:
		return nil, fmt.Errorf("null is forbidden in canonical JSON")
	case IntAttr:
		return []byte(fmt.Sprintf("%d", val)), nil
	case StringAttr:
		return marshalCanonicalString(string(val))
	case BoolAttr:
		return marshalCanonicalBool(bool(val)), nil
	case MapAttr:
		return marshalCanonicalString(val.Map.String())
	case ArrayAttr:
		return marshalCanonicalArray(lo.Map(val, func(a Attr, _ int) any { return a }))
	case DictAttr:
		obj := make(map[string]any, len(val))
		for k, a := range val {
			obj[k] = a
		}
		return marshalCanonicalObject(obj)
	case string:
		return marshalCanonicalString(val)
	case int64:
		return []byte(fmt.Sprintf("%d", val)), nil
	case int:
		return []byte(fmt.Sprintf("%d", val)), nil
	case bool:
		return marshalCanonicalBool(val), nil
	case []any:
		return marshalCanonicalArray(val)
	case []string:
		return marshalCanonicalArray(lo.Map(val, func(s string, _ int) any { return s }))
	case []int:
		return marshalCanonicalArray(lo.Map(val, func(i int, _ int) any { return i }))
	case map[string]any:
		return marshalCanonicalObject(val)
	case float64, float32:
		return nil, fmt.Errorf("floats are forbidden in canonical JSON: %v", val)
	default:
		return nil, fmt.Errorf("unsupported type for canonical JSON: %T", v)
	}
}

func marshalCanonicalBool(b bool) []byte {
	if b {
		return []byte("true")
	}
	return []byte("false")
}

// marshalCanonicalString produces canonical JSON string with NFC normalization.
// CRITICAL: RFC 8785 compliance:
// - No HTML escaping (<, >, & are NOT escaped)
// - U+2028 and U+2029 are NOT escaped
// - Only control characters (U+0000-U+001F), backslash, and quote are escaped
func marshalCanonicalString(s string) ([]byte, error) {
	normalized := norm.NFC.String(s)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false) // CRITICAL: <, >, & must NOT be escaped
	if err := enc.Encode(normalized); err != nil {
		return nil, err
	}

	// json.Encoder adds trailing newline, remove it
	result := bytes.TrimSuffix(buf.Bytes(), []byte("\n"))
	return unescapeU2028U2029(result), nil
}

// unescapeU2028U2029 converts \u2028 and \u2029 escape sequences back to
// literal characters. An escape preceded by an odd number of backslashes is
// a literal backslash followed by "u2028" text and is kept as is.
func unescapeU2028U2029(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}

	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if i+6 <= len(data) && bytes.HasPrefix(data[i:], []byte(`\u202`)) && (data[i+5] == '8' || data[i+5] == '9') {
			backslashes := 0
			for j := len(out) - 1; j >= 0 && out[j] == '\\'; j-- {
				backslashes++
			}
			if backslashes%2 == 0 {
				if data[i+5] == '8' {
					out = append(out, "\u2028"...)
				} else {
					out = append(out, "\u2029"...)
				}
				i += 5
				continue
			}
		}
		out = append(out, data[i])
	}
	return out
}

// marshalCanonicalArray marshals an array to canonical JSON.
func marshalCanonicalArray(arr []any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('[')

	for i, elem := range arr {
		if i > 0 {
			buf.WriteByte(',')
		}
		elemBytes, err := marshalCanonical(elem)
		if err != nil {
			return nil, fmt.Errorf("array[%d]: %w", i, err)
		}
		buf.Write(elemBytes)
	}

	buf.WriteByte(']')
	return buf.Bytes(), nil
}

// marshalCanonicalObject marshals an object to canonical JSON with RFC 8785 key ordering.
func marshalCanonicalObject(obj map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')

	for i, k := range sortedKeys(obj) {
		if i > 0 {
			buf.WriteByte(',')
		}

		keyBytes, err := marshalCanonicalString(k)
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", k, err)
		}
		buf.Write(keyBytes)
		buf.WriteByte(':')

		valBytes, err := marshalCanonical(obj[k])
		if err != nil {
			return nil, fmt.Errorf("value for key %q: %w", k, err)
		}
		buf.Write(valBytes)
	}

	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// FuncTree converts f into a tree of maps and slices suitable for
// MarshalCanonical. Values are referred to by the same numbers Print uses.
func FuncTree(f *Func) map[string]any {
	n := newNamer()
	args := make([]any, len(f.Args()))
	for i, a := range f.Args() {
		n.define(a)
		args[i] = string(a.typ)
	}
	return map[string]any{
		"name": f.Name,
		"args": args,
		"body": blockTree(n, f.Entry()),
	}
}

// ModuleTree converts every function of m with FuncTree.
func ModuleTree(m *Module) map[string]any {
	return map[string]any{
		"ir_version": IRVersion,
		"funcs":      lo.Map(m.Funcs, func(f *Func, _ int) any { return FuncTree(f) }),
	}
}

func blockTree(n *namer, b *Block) []any {
	ops := make([]any, len(b.ops))
	for i, op := range b.ops {
		ops[i] = opTree(n, op)
	}
	return ops
}

func opTree(n *namer, op *Op) map[string]any {
	operands := lo.Map(op.operands, func(v *Value, _ int) any { return n.id(v) })
	results := lo.Map(op.results, func(v *Value, _ int) any {
		n.define(v)
		return string(v.typ)
	})
	node := map[string]any{
		"name":     op.name,
		"operands": operands,
		"results":  results,
	}
	if len(op.attrs) > 0 {
		node["attrs"] = DictAttr(op.attrs)
	}
	if op.loc.IsKnown() {
		node["loc"] = op.loc.String()
	}
	if len(op.regions) > 0 {
		regions := make([]any, len(op.regions))
		for i, r := range op.regions {
			blocks := make([]any, len(r.blocks))
			for j, b := range r.blocks {
				args := lo.Map(b.args, func(a *Value, _ int) any {
					n.define(a)
					return string(a.typ)
				})
				blocks[j] = map[string]any{
					"args": args,
					"ops":  blockTree(n, b),
				}
			}
			regions[i] = blocks
		}
		node["regions"] = regions
	}
	return node
}

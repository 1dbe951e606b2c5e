package merge

import (
	"math"
	"reflect"
	"sort"
)

// Kind identifies the variant held by a Node.
type Kind int

const (
	// KindScalar is an opaque leaf value compared by equality.
	KindScalar Kind = iota
	// KindSequence is an ordered list of nodes.
	KindSequence
	// KindMapping is a collection of key/value pairs with unique string keys.
	KindMapping
)

// String returns the lowercase name of the kind.
func (k Kind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindSequence:
		return "sequence"
	case KindMapping:
		return "mapping"
	default:
		return "unknown"
	}
}

// Field is a single entry of a mapping node. Field order is significant
// for output: it records the order in which the producer supplied keys.
type Field struct {
	Key   string
	Value Node
}

// Node is a closed tagged union over the three tree shapes the engine
// understands: scalars, sequences and mappings. Exactly one of the
// payload fields is meaningful, selected by Kind. The zero value is the
// null scalar.
//
// Nodes are treated as immutable by the engine; merge results are always
// freshly allocated and share no containers with their inputs.
type Node struct {
	Kind Kind

	// Value is the scalar payload. Callers should store only immutable
	// values here (strings, numbers, bools, nil).
	Value any

	// Items holds the elements of a sequence node.
	Items []Node

	// Fields holds the entries of a mapping node, in key order.
	Fields []Field
}

// Null returns the null scalar node.
func Null() Node { return Node{} }

// Scalar returns a scalar node holding v.
func Scalar(v any) Node { return Node{Kind: KindScalar, Value: v} }

// Sequence returns a sequence node over the given items.
func Sequence(items ...Node) Node { return Node{Kind: KindSequence, Items: items} }

// Mapping returns a mapping node over the given fields. Key uniqueness is
// the caller's responsibility and is not re-validated.
func Mapping(fields ...Field) Node { return Node{Kind: KindMapping, Fields: fields} }

// F builds a mapping field.
func F(key string, value Node) Field { return Field{Key: key, Value: value} }

// IsContainer reports whether the node is a mapping or a sequence.
func (n Node) IsContainer() bool { return n.Kind == KindSequence || n.Kind == KindMapping }

// IsNull reports whether the node is the null scalar.
func (n Node) IsNull() bool { return n.Kind == KindScalar && n.Value == nil }

// Lookup returns the value stored under key and whether the key exists.
// It returns false for non-mapping nodes.
func (n Node) Lookup(key string) (Node, bool) {
	for _, f := range n.Fields {
		if f.Key == key {
			return f.Value, true
		}
	}
	return Node{}, false
}

// Copy returns a deep copy of the node. The copy shares no slices with
// the original.
func (n Node) Copy() Node {
	switch n.Kind {
	case KindSequence:
		items := make([]Node, len(n.Items))
		for i, it := range n.Items {
			items[i] = it.Copy()
		}
		return Node{Kind: KindSequence, Items: items}
	case KindMapping:
		fields := make([]Field, len(n.Fields))
		for i, f := range n.Fields {
			fields[i] = Field{Key: f.Key, Value: f.Value.Copy()}
		}
		return Node{Kind: KindMapping, Fields: fields}
	default:
		return Node{Kind: n.Kind, Value: n.Value}
	}
}

// Equal reports whether two nodes are deeply equal. Sequences compare
// element-wise in order. Mappings compare by key set and per-key value;
// field order does not affect mapping equality.
func Equal(a, b Node) bool {
	if a.Kind != b.Kind {
		return false
	}
	switch a.Kind {
	case KindScalar:
		return scalarEqual(a.Value, b.Value)
	case KindSequence:
		if len(a.Items) != len(b.Items) {
			return false
		}
		for i := range a.Items {
			if !Equal(a.Items[i], b.Items[i]) {
				return false
			}
		}
		return true
	case KindMapping:
		if len(a.Fields) != len(b.Fields) {
			return false
		}
		for _, f := range a.Fields {
			bv, ok := b.Lookup(f.Key)
			if !ok || !Equal(f.Value, bv) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

// scalarEqual compares two scalar payloads. Numeric values compare by
// value across integer and float representations, so a tree decoded from
// YAML and one decoded from CUE agree on the number 3.
func scalarEqual(a, b any) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if ai, ok := asInt(a); ok {
		if bi, ok := asInt(b); ok {
			return ai == bi
		}
	}
	if af, ok := asFloat(a); ok {
		if bf, ok := asFloat(b); ok {
			return af == bf
		}
		return false
	}
	if _, ok := asFloat(b); ok {
		return false
	}
	return reflect.DeepEqual(a, b)
}

func asInt(v any) (int64, bool) {
	switch t := v.(type) {
	case int:
		return int64(t), true
	case int8:
		return int64(t), true
	case int16:
		return int64(t), true
	case int32:
		return int64(t), true
	case int64:
		return t, true
	case uint:
		return int64(t), true
	case uint8:
		return int64(t), true
	case uint16:
		return int64(t), true
	case uint32:
		return int64(t), true
	case uint64:
		if t > math.MaxInt64 {
			return 0, false
		}
		return int64(t), true
	}
	return 0, false
}

func asFloat(v any) (float64, bool) {
	if i, ok := asInt(v); ok {
		return float64(i), true
	}
	switch t := v.(type) {
	case float32:
		return float64(t), true
	case float64:
		return t, true
	}
	return 0, false
}

// FromGo converts plain Go values (the shapes produced by encoding/json
// and similar decoders: map[string]any, []any and scalars) into a Node
// tree. Go map iteration order is undefined, so mapping fields are
// emitted in sorted key order; decoders that need to preserve source
// order should build nodes directly instead.
func FromGo(v any) Node {
	switch t := v.(type) {
	case nil:
		return Node{}
	case Node:
		return t.Copy()
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		fields := make([]Field, 0, len(keys))
		for _, k := range keys {
			fields = append(fields, Field{Key: k, Value: FromGo(t[k])})
		}
		return Node{Kind: KindMapping, Fields: fields}
	case []any:
		items := make([]Node, 0, len(t))
		for _, it := range t {
			items = append(items, FromGo(it))
		}
		return Node{Kind: KindSequence, Items: items}
	default:
		return Node{Kind: KindScalar, Value: v}
	}
}

// Interface converts the node back into plain Go values: map[string]any
// for mappings, []any for sequences and the payload for scalars. Mapping
// key order is lost in the map representation.
func (n Node) Interface() any {
	switch n.Kind {
	case KindSequence:
		out := make([]any, len(n.Items))
		for i, it := range n.Items {
			out[i] = it.Interface()
		}
		return out
	case KindMapping:
		out := make(map[string]any, len(n.Fields))
		for _, f := range n.Fields {
			out[f.Key] = f.Value.Interface()
		}
		return out
	default:
		return n.Value
	}
}

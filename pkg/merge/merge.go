package merge

import (
	"fmt"
	"sort"
	"strconv"
)

// DefaultMaxDepth is the recursion depth guard applied when Options
// leaves MaxDepth at zero. Ordinary configuration documents are a few
// dozen levels deep at most.
const DefaultMaxDepth = 10000

// Options configure a Merger. Policy is required; ListDiff defaults to
// DiffByValue and MaxDepth to DefaultMaxDepth.
type Options struct {
	Policy   Policy
	ListDiff ListDiff
	MaxDepth int
}

// Merger merges document trees under a fixed policy and list-diff
// strategy. All fields are set at construction and never change, so a
// single Merger is safe for concurrent use.
type Merger struct {
	policy   Policy
	listDiff ListDiff
	maxDepth int
}

// New validates the options and returns a Merger. Unrecognized policy or
// list-diff values fail here, before any merge work begins.
func New(opts Options) (*Merger, error) {
	if !opts.Policy.valid() {
		return nil, &InvalidPolicyError{Value: strconv.Itoa(int(opts.Policy))}
	}
	if !opts.ListDiff.valid() {
		return nil, &InvalidListDiffError{Value: strconv.Itoa(int(opts.ListDiff))}
	}
	if opts.MaxDepth < 0 {
		return nil, fmt.Errorf("max depth must not be negative, got %d", opts.MaxDepth)
	}
	maxDepth := opts.MaxDepth
	if maxDepth == 0 {
		maxDepth = DefaultMaxDepth
	}
	return &Merger{
		policy:   opts.Policy,
		listDiff: opts.ListDiff,
		maxDepth: maxDepth,
	}, nil
}

// Policy returns the merge policy this Merger applies.
func (m *Merger) Policy() Policy { return m.policy }

// ListDiff returns the list-diff strategy this Merger applies.
func (m *Merger) ListDiff() ListDiff { return m.listDiff }

// Merge combines current and expected into a new tree. Neither input is
// mutated and the result shares no containers with either input. The
// call is atomic: it returns either a full result or an error, never a
// partial tree.
func (m *Merger) Merge(current, expected Node) (Node, error) {
	return m.merge(current, expected, 0)
}

func (m *Merger) merge(current, expected Node, depth int) (Node, error) {
	if depth > m.maxDepth {
		return Node{}, &DepthError{MaxDepth: m.maxDepth}
	}
	if err := checkKind(current); err != nil {
		return Node{}, err
	}
	if err := checkKind(expected); err != nil {
		return Node{}, err
	}

	// Identic is an absolute override: expected wins verbatim before any
	// shape inspection, at every level of the recursion.
	if m.policy == PolicyIdentic {
		return expected.Copy(), nil
	}

	// Mismatched shapes cannot be merged structurally. Present hands the
	// position to expected; absent has nothing matching to remove and
	// keeps current.
	if current.Kind != expected.Kind {
		if m.policy == PolicyPresent {
			return expected.Copy(), nil
		}
		return current.Copy(), nil
	}

	switch current.Kind {
	case KindMapping:
		return m.mergeMapping(current, expected, depth)
	case KindSequence:
		if m.listDiff == DiffByIndex {
			return m.mergeSequenceByIndex(current, expected, depth)
		}
		return m.mergeSequenceByValue(current, expected), nil
	default:
		// Scalar vs scalar at a call boundary is a degenerate case: there
		// is no parent to remove from, so absent keeps current.
		if m.policy == PolicyPresent {
			return expected.Copy(), nil
		}
		return current.Copy(), nil
	}
}

// mergeMapping applies the per-key rules. The result starts as a copy of
// current, preserving current's key order; expected's keys are visited in
// expected's order, so newly added keys append in that order.
func (m *Merger) mergeMapping(current, expected Node, depth int) (Node, error) {
	fields := current.Copy().Fields

	for _, ef := range expected.Fields {
		idx := fieldIndex(fields, ef.Key)

		// Two containers under the same key merge recursively, whatever
		// their container kinds; everything else is a leaf decision.
		if idx >= 0 && fields[idx].Value.IsContainer() && ef.Value.IsContainer() {
			merged, err := m.merge(fields[idx].Value, ef.Value, depth+1)
			if err != nil {
				return Node{}, err
			}
			fields[idx].Value = merged
			continue
		}

		switch m.policy {
		case PolicyPresent:
			// A null expected value means "leave the current value alone".
			if ef.Value.IsNull() {
				continue
			}
			if idx >= 0 {
				fields[idx].Value = ef.Value.Copy()
			} else {
				fields = append(fields, Field{Key: ef.Key, Value: ef.Value.Copy()})
			}
		case PolicyAbsent:
			// Removal is equality-gated: a key whose current value differs
			// from expected's is left untouched.
			if idx >= 0 && Equal(fields[idx].Value, ef.Value) {
				fields = append(fields[:idx], fields[idx+1:]...)
			}
		}
	}

	return Node{Kind: KindMapping, Fields: fields}, nil
}

// mergeSequenceByValue treats an element's deeply-compared value as its
// identity. Membership tests always scan the original input sequences,
// so duplicates already in current are never re-added but duplicates
// within expected are not deduplicated against each other.
func (m *Merger) mergeSequenceByValue(current, expected Node) Node {
	out := make([]Node, 0, len(current.Items))
	switch m.policy {
	case PolicyPresent:
		for _, it := range current.Items {
			out = append(out, it.Copy())
		}
		for _, it := range expected.Items {
			if !containsNode(current.Items, it) {
				out = append(out, it.Copy())
			}
		}
	case PolicyAbsent:
		for _, it := range current.Items {
			if !containsNode(expected.Items, it) {
				out = append(out, it.Copy())
			}
		}
	}
	return Node{Kind: KindSequence, Items: out}
}

// mergeSequenceByIndex converts both sequences to mappings keyed by the
// decimal index, delegates to the mapping merge and converts back in
// ascending index order. Reusing the mapping path keeps the leaf rules
// (null skip for present, equality-gated removal for absent) identical
// for indexed lists.
func (m *Merger) mergeSequenceByIndex(current, expected Node, depth int) (Node, error) {
	merged, err := m.mergeMapping(indexMapping(current), indexMapping(expected), depth)
	if err != nil {
		return Node{}, err
	}

	indices := make([]int, 0, len(merged.Fields))
	byIndex := make(map[int]Node, len(merged.Fields))
	for _, f := range merged.Fields {
		i, err := strconv.Atoi(f.Key)
		if err != nil {
			return Node{}, fmt.Errorf("non-numeric synthetic index %q: %w", f.Key, err)
		}
		indices = append(indices, i)
		byIndex[i] = f.Value
	}
	sort.Ints(indices)

	items := make([]Node, 0, len(indices))
	for _, i := range indices {
		items = append(items, byIndex[i])
	}
	return Node{Kind: KindSequence, Items: items}, nil
}

func indexMapping(seq Node) Node {
	fields := make([]Field, len(seq.Items))
	for i, it := range seq.Items {
		fields[i] = Field{Key: strconv.Itoa(i), Value: it}
	}
	return Node{Kind: KindMapping, Fields: fields}
}

func fieldIndex(fields []Field, key string) int {
	for i, f := range fields {
		if f.Key == key {
			return i
		}
	}
	return -1
}

func containsNode(items []Node, n Node) bool {
	for _, it := range items {
		if Equal(it, n) {
			return true
		}
	}
	return false
}

func checkKind(n Node) error {
	switch n.Kind {
	case KindScalar, KindSequence, KindMapping:
		return nil
	default:
		return &TypeMismatchError{Kind: n.Kind}
	}
}

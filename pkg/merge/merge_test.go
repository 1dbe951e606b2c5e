package merge

import (
	"errors"
	"testing"
)

func mustMerger(t *testing.T, opts Options) *Merger {
	t.Helper()
	m, err := New(opts)
	if err != nil {
		t.Fatalf("New(%+v) failed: %v", opts, err)
	}
	return m
}

func mustMerge(t *testing.T, m *Merger, current, expected Node) Node {
	t.Helper()
	result, err := m.Merge(current, expected)
	if err != nil {
		t.Fatalf("Merge failed: %v", err)
	}
	return result
}

func TestNew_InvalidOptions(t *testing.T) {
	if _, err := New(Options{Policy: Policy(42)}); err == nil {
		t.Fatal("Expected error for unknown policy")
	} else {
		var pe *InvalidPolicyError
		if !errors.As(err, &pe) {
			t.Errorf("Expected InvalidPolicyError, got %T: %v", err, err)
		}
	}

	if _, err := New(Options{Policy: PolicyPresent, ListDiff: ListDiff(7)}); err == nil {
		t.Fatal("Expected error for unknown list diff strategy")
	} else {
		var de *InvalidListDiffError
		if !errors.As(err, &de) {
			t.Errorf("Expected InvalidListDiffError, got %T: %v", err, err)
		}
	}

	if _, err := New(Options{Policy: PolicyPresent, MaxDepth: -1}); err == nil {
		t.Fatal("Expected error for negative max depth")
	}
}

func TestParsePolicy(t *testing.T) {
	cases := map[string]Policy{
		"identic": PolicyIdentic,
		"present": PolicyPresent,
		"absent":  PolicyAbsent,
	}
	for token, want := range cases {
		got, err := ParsePolicy(token)
		if err != nil {
			t.Errorf("ParsePolicy(%q) failed: %v", token, err)
		}
		if got != want {
			t.Errorf("ParsePolicy(%q) = %v, want %v", token, got, want)
		}
		if got.String() != token {
			t.Errorf("Policy(%v).String() = %q, want %q", got, got.String(), token)
		}
	}

	_, err := ParsePolicy("Present")
	var pe *InvalidPolicyError
	if !errors.As(err, &pe) {
		t.Fatalf("Expected InvalidPolicyError, got %T: %v", err, err)
	}
	if pe.Value != "Present" {
		t.Errorf("Expected offending token %q in error, got %q", "Present", pe.Value)
	}
}

func TestParseListDiff(t *testing.T) {
	if got, err := ParseListDiff("value"); err != nil || got != DiffByValue {
		t.Errorf("ParseListDiff(value) = %v, %v", got, err)
	}
	if got, err := ParseListDiff("index"); err != nil || got != DiffByIndex {
		t.Errorf("ParseListDiff(index) = %v, %v", got, err)
	}

	_, err := ParseListDiff("by_value")
	var de *InvalidListDiffError
	if !errors.As(err, &de) {
		t.Fatalf("Expected InvalidListDiffError, got %T: %v", err, err)
	}
	if de.Value != "by_value" {
		t.Errorf("Expected offending token %q in error, got %q", "by_value", de.Value)
	}
}

func TestMerge_IdenticReturnsExpectedVerbatim(t *testing.T) {
	m := mustMerger(t, Options{Policy: PolicyIdentic})

	cases := []struct {
		name     string
		current  Node
		expected Node
	}{
		{
			name:     "same shape mappings",
			current:  Mapping(F("a", Scalar(1)), F("b", Scalar(2))),
			expected: Mapping(F("a", Scalar(9))),
		},
		{
			name:     "mismatched root types",
			current:  Sequence(Scalar(1), Scalar(2)),
			expected: Mapping(F("k", Scalar("v"))),
		},
		{
			name:    "nested mismatch",
			current: Mapping(F("x", Sequence(Scalar(1)))),
			expected: Mapping(
				F("x", Mapping(F("deep", Scalar(true)))),
			),
		},
		{
			name:     "scalar root",
			current:  Scalar("old"),
			expected: Scalar("new"),
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			result := mustMerge(t, m, tc.current, tc.expected)
			if !Equal(result, tc.expected) {
				t.Errorf("Identic result = %#v, want expected verbatim", result)
			}
		})
	}
}

func TestMerge_PresentMappingScenario(t *testing.T) {
	// current = {"a": 1, "b": [1,2]}, expected = {"b": [2,3], "c": 4}
	current := Mapping(
		F("a", Scalar(1)),
		F("b", Sequence(Scalar(1), Scalar(2))),
	)
	expected := Mapping(
		F("b", Sequence(Scalar(2), Scalar(3))),
		F("c", Scalar(4)),
	)

	m := mustMerger(t, Options{Policy: PolicyPresent})
	result := mustMerge(t, m, current, expected)

	want := Mapping(
		F("a", Scalar(1)),
		F("b", Sequence(Scalar(1), Scalar(2), Scalar(3))),
		F("c", Scalar(4)),
	)
	if !Equal(result, want) {
		t.Errorf("Present result = %#v, want %#v", result, want)
	}
}

func TestMerge_AbsentMappingScenario(t *testing.T) {
	// current = {"a": 1, "b": [1,2]}, expected = {"b": [2,3], "c": 4}.
	// Key b's list loses 2 because 2 appears in expected's list; 1 stays.
	// Key c has no effect (absent from current); key a is untouched.
	current := Mapping(
		F("a", Scalar(1)),
		F("b", Sequence(Scalar(1), Scalar(2))),
	)
	expected := Mapping(
		F("b", Sequence(Scalar(2), Scalar(3))),
		F("c", Scalar(4)),
	)

	m := mustMerger(t, Options{Policy: PolicyAbsent})
	result := mustMerge(t, m, current, expected)

	want := Mapping(
		F("a", Scalar(1)),
		F("b", Sequence(Scalar(1))),
	)
	if !Equal(result, want) {
		t.Errorf("Absent result = %#v, want %#v", result, want)
	}
}

func TestMerge_PresentSkipsNullValues(t *testing.T) {
	current := Mapping(F("keep", Scalar("original")))
	expected := Mapping(
		F("keep", Null()),
		F("add", Scalar("new")),
	)

	m := mustMerger(t, Options{Policy: PolicyPresent})
	result := mustMerge(t, m, current, expected)

	if v, _ := result.Lookup("keep"); !Equal(v, Scalar("original")) {
		t.Errorf("Null expected value must not overwrite, got %#v", v)
	}
	if v, ok := result.Lookup("add"); !ok || !Equal(v, Scalar("new")) {
		t.Errorf("Missing added key, got %#v (present=%v)", v, ok)
	}
}

func TestMerge_AbsentRemovalIsEqualityGated(t *testing.T) {
	current := Mapping(
		F("match", Scalar("x")),
		F("differ", Scalar("current")),
	)
	expected := Mapping(
		F("match", Scalar("x")),
		F("differ", Scalar("expected")),
	)

	m := mustMerger(t, Options{Policy: PolicyAbsent})
	result := mustMerge(t, m, current, expected)

	if _, ok := result.Lookup("match"); ok {
		t.Error("Exactly matching key must be removed")
	}
	if v, ok := result.Lookup("differ"); !ok || !Equal(v, Scalar("current")) {
		t.Errorf("Mismatched value must be left untouched, got %#v (present=%v)", v, ok)
	}
}

func TestMerge_MappingKeyOrderPreserved(t *testing.T) {
	current := Mapping(
		F("z", Scalar(1)),
		F("m", Scalar(2)),
		F("a", Scalar(3)),
	)
	expected := Mapping(
		F("m", Scalar(20)),
		F("new2", Scalar(5)),
		F("new1", Scalar(4)),
	)

	m := mustMerger(t, Options{Policy: PolicyPresent})
	result := mustMerge(t, m, current, expected)

	wantOrder := []string{"z", "m", "a", "new2", "new1"}
	if len(result.Fields) != len(wantOrder) {
		t.Fatalf("Expected %d keys, got %d", len(wantOrder), len(result.Fields))
	}
	for i, key := range wantOrder {
		if result.Fields[i].Key != key {
			t.Errorf("Key %d = %q, want %q", i, result.Fields[i].Key, key)
		}
	}
	if v, _ := result.Lookup("m"); !Equal(v, Scalar(20)) {
		t.Errorf("Updated key must keep position and take new value, got %#v", v)
	}
}

func TestMerge_TypeMismatchByPolicy(t *testing.T) {
	current := Mapping(F("k", Sequence(Scalar(1))))
	expected := Mapping(F("k", Mapping(F("nested", Scalar(2)))))

	present := mustMerger(t, Options{Policy: PolicyPresent})
	result := mustMerge(t, present, current, expected)
	if v, _ := result.Lookup("k"); !Equal(v, Mapping(F("nested", Scalar(2)))) {
		t.Errorf("Present must let expected win on type conflict, got %#v", v)
	}

	absent := mustMerger(t, Options{Policy: PolicyAbsent})
	result = mustMerge(t, absent, current, expected)
	if v, _ := result.Lookup("k"); !Equal(v, Sequence(Scalar(1))) {
		t.Errorf("Absent must preserve current on type conflict, got %#v", v)
	}
}

func TestMerge_ScalarRootDegenerateCases(t *testing.T) {
	present := mustMerger(t, Options{Policy: PolicyPresent})
	if r := mustMerge(t, present, Scalar(1), Scalar(2)); !Equal(r, Scalar(2)) {
		t.Errorf("Present scalar root = %#v, want expected", r)
	}

	absent := mustMerger(t, Options{Policy: PolicyAbsent})
	if r := mustMerge(t, absent, Scalar(1), Scalar(1)); !Equal(r, Scalar(1)) {
		t.Errorf("Absent scalar root (equal) = %#v, want current", r)
	}
	if r := mustMerge(t, absent, Scalar(1), Scalar(2)); !Equal(r, Scalar(1)) {
		t.Errorf("Absent scalar root (differing) = %#v, want current", r)
	}
}

func TestMerge_ByValuePresentListSemantics(t *testing.T) {
	m := mustMerger(t, Options{Policy: PolicyPresent, ListDiff: DiffByValue})

	// Duplicates already in current are never re-added.
	result := mustMerge(t, m,
		Sequence(Scalar(2), Scalar(2)),
		Sequence(Scalar(2)),
	)
	if !Equal(result, Sequence(Scalar(2), Scalar(2))) {
		t.Errorf("Result = %#v, want [2 2]", result)
	}

	// Duplicates within expected are not deduplicated against each other
	// because membership is tested against the original current only.
	result = mustMerge(t, m,
		Sequence(Scalar(1)),
		Sequence(Scalar(2), Scalar(2)),
	)
	if !Equal(result, Sequence(Scalar(1), Scalar(2), Scalar(2))) {
		t.Errorf("Result = %#v, want [1 2 2]", result)
	}

	// Never shrinks: every element of current survives in order.
	current := Sequence(Scalar("c"), Scalar("a"), Scalar("b"))
	result = mustMerge(t, m, current, Sequence(Scalar("a"), Scalar("d")))
	want := Sequence(Scalar("c"), Scalar("a"), Scalar("b"), Scalar("d"))
	if !Equal(result, want) {
		t.Errorf("Result = %#v, want %#v", result, want)
	}
}

func TestMerge_ByValueAbsentListSemantics(t *testing.T) {
	m := mustMerger(t, Options{Policy: PolicyAbsent, ListDiff: DiffByValue})

	result := mustMerge(t, m,
		Sequence(Scalar(1), Scalar(2), Scalar(3), Scalar(2)),
		Sequence(Scalar(2), Scalar(9)),
	)
	if !Equal(result, Sequence(Scalar(1), Scalar(3))) {
		t.Errorf("Result = %#v, want [1 3]", result)
	}
	if len(result.Items) > 4 {
		t.Error("Absent must never grow the list")
	}

	// Deep equality for container elements.
	result = mustMerge(t, m,
		Sequence(Mapping(F("k", Scalar(1))), Mapping(F("k", Scalar(2)))),
		Sequence(Mapping(F("k", Scalar(2)))),
	)
	if !Equal(result, Sequence(Mapping(F("k", Scalar(1))))) {
		t.Errorf("Result = %#v, want [{k:1}]", result)
	}
}

func TestMerge_ByIndexPresentScenario(t *testing.T) {
	// current=[10,20,30], expected=[null,99] -> [10,99,30]
	m := mustMerger(t, Options{Policy: PolicyPresent, ListDiff: DiffByIndex})
	result := mustMerge(t, m,
		Sequence(Scalar(10), Scalar(20), Scalar(30)),
		Sequence(Null(), Scalar(99)),
	)
	if !Equal(result, Sequence(Scalar(10), Scalar(99), Scalar(30))) {
		t.Errorf("Result = %#v, want [10 99 30]", result)
	}
}

func TestMerge_ByIndexPresentAppendsBeyondLength(t *testing.T) {
	m := mustMerger(t, Options{Policy: PolicyPresent, ListDiff: DiffByIndex})
	result := mustMerge(t, m,
		Sequence(Scalar("a")),
		Sequence(Scalar("A"), Scalar("b"), Scalar("c")),
	)
	if !Equal(result, Sequence(Scalar("A"), Scalar("b"), Scalar("c"))) {
		t.Errorf("Result = %#v, want [A b c]", result)
	}
}

func TestMerge_ByIndexAbsentSemantics(t *testing.T) {
	m := mustMerger(t, Options{Policy: PolicyAbsent, ListDiff: DiffByIndex})

	// Only indices whose values match exactly are removed.
	result := mustMerge(t, m,
		Sequence(Scalar(1), Scalar(2), Scalar(3)),
		Sequence(Scalar(9), Scalar(2)),
	)
	if !Equal(result, Sequence(Scalar(1), Scalar(3))) {
		t.Errorf("Result = %#v, want [1 3]", result)
	}

	// Indices beyond current's length have no effect.
	result = mustMerge(t, m,
		Sequence(Scalar(1)),
		Sequence(Scalar(9), Scalar(8), Scalar(7)),
	)
	if !Equal(result, Sequence(Scalar(1))) {
		t.Errorf("Result = %#v, want [1]", result)
	}
}

func TestMerge_ByIndexRecursesIntoContainers(t *testing.T) {
	m := mustMerger(t, Options{Policy: PolicyPresent, ListDiff: DiffByIndex})
	result := mustMerge(t, m,
		Sequence(Mapping(F("name", Scalar("web")), F("port", Scalar(80)))),
		Sequence(Mapping(F("port", Scalar(8080)))),
	)
	want := Sequence(Mapping(F("name", Scalar("web")), F("port", Scalar(8080))))
	if !Equal(result, want) {
		t.Errorf("Result = %#v, want %#v", result, want)
	}
}

func TestMerge_PresentIdempotent(t *testing.T) {
	current := Mapping(
		F("a", Scalar(1)),
		F("b", Sequence(Scalar(1), Scalar(2))),
		F("c", Mapping(F("x", Scalar("v")))),
	)
	expected := Mapping(
		F("b", Sequence(Scalar(2), Scalar(3))),
		F("c", Mapping(F("y", Scalar("w")))),
		F("d", Scalar(true)),
	)

	for _, strategy := range []ListDiff{DiffByValue, DiffByIndex} {
		m := mustMerger(t, Options{Policy: PolicyPresent, ListDiff: strategy})
		once := mustMerge(t, m, current, expected)
		twice := mustMerge(t, m, once, expected)
		if !Equal(once, twice) {
			t.Errorf("Present merge not idempotent under %v: %#v vs %#v", strategy, once, twice)
		}
	}
}

func TestMerge_AbsentIdempotent(t *testing.T) {
	current := Mapping(
		F("a", Scalar(1)),
		F("b", Sequence(Scalar(1), Scalar(2), Scalar(3))),
	)
	expected := Mapping(
		F("a", Scalar(1)),
		F("b", Sequence(Scalar(2))),
	)

	for _, strategy := range []ListDiff{DiffByValue, DiffByIndex} {
		m := mustMerger(t, Options{Policy: PolicyAbsent, ListDiff: strategy})
		once := mustMerge(t, m, current, expected)
		twice := mustMerge(t, m, once, expected)
		if !Equal(once, twice) {
			t.Errorf("Absent merge not idempotent under %v: %#v vs %#v", strategy, once, twice)
		}
	}
}

func TestMerge_AbsentUndoesPresentForLeafKey(t *testing.T) {
	current := Mapping(F("existing", Scalar("x")))
	patch := Mapping(F("added", Scalar("v")))

	present := mustMerger(t, Options{Policy: PolicyPresent})
	absent := mustMerger(t, Options{Policy: PolicyAbsent})

	applied := mustMerge(t, present, current, patch)
	reverted := mustMerge(t, absent, applied, patch)

	if !Equal(reverted, current) {
		t.Errorf("Absent(Present(current, patch), patch) = %#v, want %#v", reverted, current)
	}
}

func TestMerge_ResultDoesNotAliasInputs(t *testing.T) {
	current := Mapping(F("list", Sequence(Scalar(1))))
	expected := Mapping(F("map", Mapping(F("k", Scalar("v")))))

	m := mustMerger(t, Options{Policy: PolicyPresent})
	result := mustMerge(t, m, current, expected)

	// Mutating the result must not be observable through either input.
	result.Fields[0].Value.Items[0] = Scalar(99)
	result.Fields[1].Value.Fields[0].Value = Scalar("mutated")

	if !Equal(current.Fields[0].Value, Sequence(Scalar(1))) {
		t.Error("Result aliases current's containers")
	}
	if !Equal(expected.Fields[0].Value, Mapping(F("k", Scalar("v")))) {
		t.Error("Result aliases expected's containers")
	}
}

func TestMerge_DepthGuard(t *testing.T) {
	deep := Scalar("leaf")
	for i := 0; i < 10; i++ {
		deep = Mapping(F("level", deep))
	}

	m := mustMerger(t, Options{Policy: PolicyPresent, MaxDepth: 3})
	_, err := m.Merge(deep, deep)
	if err == nil {
		t.Fatal("Expected depth guard to trip")
	}
	var de *DepthError
	if !errors.As(err, &de) {
		t.Fatalf("Expected DepthError, got %T: %v", err, err)
	}
	if de.MaxDepth != 3 {
		t.Errorf("DepthError.MaxDepth = %d, want 3", de.MaxDepth)
	}

	// The same tree merges fine with the default guard.
	dm := mustMerger(t, Options{Policy: PolicyPresent})
	if _, err := dm.Merge(deep, deep); err != nil {
		t.Errorf("Default depth guard rejected a shallow tree: %v", err)
	}
}

func TestMerge_RejectsCorruptedKind(t *testing.T) {
	m := mustMerger(t, Options{Policy: PolicyPresent})
	_, err := m.Merge(Node{Kind: Kind(99)}, Scalar(1))
	var te *TypeMismatchError
	if !errors.As(err, &te) {
		t.Fatalf("Expected TypeMismatchError, got %T: %v", err, err)
	}
	if te.Kind != Kind(99) {
		t.Errorf("TypeMismatchError.Kind = %v, want 99", te.Kind)
	}
}

func TestMerge_ConcurrentUse(t *testing.T) {
	m := mustMerger(t, Options{Policy: PolicyPresent})
	current := Mapping(F("a", Sequence(Scalar(1), Scalar(2))))
	expected := Mapping(F("a", Sequence(Scalar(3))))
	want := Mapping(F("a", Sequence(Scalar(1), Scalar(2), Scalar(3))))

	done := make(chan error, 8)
	for i := 0; i < 8; i++ {
		go func() {
			for j := 0; j < 100; j++ {
				result, err := m.Merge(current, expected)
				if err != nil {
					done <- err
					return
				}
				if !Equal(result, want) {
					done <- errors.New("unexpected concurrent merge result")
					return
				}
			}
			done <- nil
		}()
	}
	for i := 0; i < 8; i++ {
		if err := <-done; err != nil {
			t.Fatal(err)
		}
	}
}

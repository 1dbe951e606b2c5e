package config

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/openmerge/openmerge/pkg/merge"
)

func writeTempFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("Failed to write temp file: %v", err)
	}
	return path
}

func TestDetectFormat(t *testing.T) {
	cases := map[string]Format{
		"state.yaml":    FormatYAML,
		"state.yml":     FormatYAML,
		"STATE.YAML":    FormatYAML,
		"desired.json":  FormatJSON,
		"resources.cue": FormatCUE,
	}
	for path, want := range cases {
		got, err := DetectFormat(path)
		if err != nil {
			t.Errorf("DetectFormat(%q) failed: %v", path, err)
		}
		if got != want {
			t.Errorf("DetectFormat(%q) = %v, want %v", path, got, want)
		}
	}

	if _, err := DetectFormat("notes.txt"); err == nil {
		t.Error("Expected error for unknown extension")
	}
	if _, err := DetectFormat("noext"); err == nil {
		t.Error("Expected error for missing extension")
	}
}

func TestLoader_LoadYAMLPreservesKeyOrder(t *testing.T) {
	path := writeTempFile(t, "doc.yaml", `
zebra: 1
middle:
  inner_b: true
  inner_a: false
alpha:
  - one
  - two
`)

	doc, err := NewLoader().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if doc.Format != FormatYAML {
		t.Errorf("Format = %v, want yaml", doc.Format)
	}
	wantOrder := []string{"zebra", "middle", "alpha"}
	for i, key := range wantOrder {
		if doc.Root.Fields[i].Key != key {
			t.Errorf("Top-level key %d = %q, want %q", i, doc.Root.Fields[i].Key, key)
		}
	}

	middle, _ := doc.Root.Lookup("middle")
	if middle.Fields[0].Key != "inner_b" || middle.Fields[1].Key != "inner_a" {
		t.Errorf("Nested key order not preserved: %#v", middle.Fields)
	}

	alpha, _ := doc.Root.Lookup("alpha")
	if !merge.Equal(alpha, merge.Sequence(merge.Scalar("one"), merge.Scalar("two"))) {
		t.Errorf("Sequence = %#v", alpha)
	}
}

func TestLoader_LoadYAMLScalars(t *testing.T) {
	path := writeTempFile(t, "scalars.yaml", `
count: 3
ratio: 0.5
enabled: true
name: web
nothing: ~
`)

	doc, err := NewLoader().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if v, _ := doc.Root.Lookup("count"); !merge.Equal(v, merge.Scalar(int64(3))) {
		t.Errorf("count = %#v, want int64(3)", v)
	}
	if v, _ := doc.Root.Lookup("ratio"); !merge.Equal(v, merge.Scalar(0.5)) {
		t.Errorf("ratio = %#v, want 0.5", v)
	}
	if v, _ := doc.Root.Lookup("enabled"); !merge.Equal(v, merge.Scalar(true)) {
		t.Errorf("enabled = %#v, want true", v)
	}
	if v, _ := doc.Root.Lookup("nothing"); !v.IsNull() {
		t.Errorf("nothing = %#v, want null", v)
	}
}

func TestLoader_LoadYAMLAnchorsAndAliases(t *testing.T) {
	path := writeTempFile(t, "anchors.yaml", `
base: &b
  cpu: 2
copy: *b
`)

	doc, err := NewLoader().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	base, _ := doc.Root.Lookup("base")
	copied, _ := doc.Root.Lookup("copy")
	if !merge.Equal(base, copied) {
		t.Errorf("Alias not resolved: base=%#v copy=%#v", base, copied)
	}
}

func TestLoader_LoadJSON(t *testing.T) {
	path := writeTempFile(t, "doc.json", `{"b": {"y": 2, "x": 1}, "a": [true, null]}`)

	doc, err := NewLoader().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if doc.Format != FormatJSON {
		t.Errorf("Format = %v, want json", doc.Format)
	}
	if doc.Root.Fields[0].Key != "b" || doc.Root.Fields[1].Key != "a" {
		t.Errorf("JSON key order not preserved: %#v", doc.Root.Fields)
	}
	b, _ := doc.Root.Lookup("b")
	if b.Fields[0].Key != "y" {
		t.Errorf("Nested JSON key order not preserved: %#v", b.Fields)
	}
	a, _ := doc.Root.Lookup("a")
	if !merge.Equal(a, merge.Sequence(merge.Scalar(true), merge.Null())) {
		t.Errorf("a = %#v", a)
	}
}

func TestLoader_LoadCUE(t *testing.T) {
	path := writeTempFile(t, "doc.cue", `
name: "web"
replicas: 3
ratio: 0.25
ports: [80, 443]
labels: {
	env: "prod"
}
missing: null
`)

	doc, err := NewLoader().Load(context.Background(), path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	want := merge.Mapping(
		merge.F("name", merge.Scalar("web")),
		merge.F("replicas", merge.Scalar(int64(3))),
		merge.F("ratio", merge.Scalar(0.25)),
		merge.F("ports", merge.Sequence(merge.Scalar(int64(80)), merge.Scalar(int64(443)))),
		merge.F("labels", merge.Mapping(merge.F("env", merge.Scalar("prod")))),
		merge.F("missing", merge.Null()),
	)
	if !merge.Equal(doc.Root, want) {
		t.Errorf("CUE document = %#v, want %#v", doc.Root, want)
	}
}

func TestLoader_LoadCUEInvalid(t *testing.T) {
	path := writeTempFile(t, "bad.cue", `name: "web`)
	if _, err := NewLoader().Load(context.Background(), path); err == nil {
		t.Error("Expected error for invalid CUE")
	}
}

func TestLoader_YAMLAndCUENumbersCompareEqual(t *testing.T) {
	loader := NewLoader()
	yamlDoc, err := loader.Load(context.Background(), writeTempFile(t, "a.yaml", "count: 3"))
	if err != nil {
		t.Fatalf("Load yaml failed: %v", err)
	}
	cueDoc, err := loader.Load(context.Background(), writeTempFile(t, "a.cue", "count: 3"))
	if err != nil {
		t.Fatalf("Load cue failed: %v", err)
	}
	if !merge.Equal(yamlDoc.Root, cueDoc.Root) {
		t.Errorf("Equivalent documents from different formats must compare equal: %#v vs %#v",
			yamlDoc.Root, cueDoc.Root)
	}
}

func TestLoader_EmptyDocument(t *testing.T) {
	doc, err := NewLoader().Load(context.Background(), writeTempFile(t, "empty.yaml", ""))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !doc.Root.IsNull() {
		t.Errorf("Empty document = %#v, want null", doc.Root)
	}
}

func TestLoader_RootSequence(t *testing.T) {
	doc, err := NewLoader().Load(context.Background(), writeTempFile(t, "list.yaml", "- 1\n- 2\n"))
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !merge.Equal(doc.Root, merge.Sequence(merge.Scalar(int64(1)), merge.Scalar(int64(2)))) {
		t.Errorf("Root sequence = %#v", doc.Root)
	}
}

func TestLoader_MissingFile(t *testing.T) {
	if _, err := NewLoader().Load(context.Background(), "/nonexistent/state.yaml"); err == nil {
		t.Error("Expected error for missing file")
	}
}

func TestRequest_Validate(t *testing.T) {
	valid := &Request{
		CurrentPath:  "current.yaml",
		ExpectedPath: "expected.yaml",
		Policy:       "present",
	}
	if err := valid.Validate(); err != nil {
		t.Errorf("Valid request rejected: %v", err)
	}

	cases := []Request{
		{ExpectedPath: "e.yaml", Policy: "present"},                                   // missing current
		{CurrentPath: "c.yaml", Policy: "present"},                                    // missing expected
		{CurrentPath: "c.yaml", ExpectedPath: "e.yaml"},                               // missing policy
		{CurrentPath: "c.yaml", ExpectedPath: "e.yaml", Policy: "merge"},              // bad policy
		{CurrentPath: "c.yaml", ExpectedPath: "e.yaml", Policy: "present", ListDiff: "position"},   // bad strategy
		{CurrentPath: "c.yaml", ExpectedPath: "e.yaml", Policy: "present", OutputFormat: "toml"},   // bad format
		{CurrentPath: "c.yaml", ExpectedPath: "e.yaml", Policy: "present", MaxDepth: -2},           // bad depth
	}
	for i, req := range cases {
		if err := req.Validate(); err == nil {
			t.Errorf("Case %d: expected validation error for %+v", i, req)
		}
	}
}

func TestRequest_Options(t *testing.T) {
	req := &Request{
		CurrentPath:  "c.yaml",
		ExpectedPath: "e.yaml",
		Policy:       "absent",
		ListDiff:     "index",
		MaxDepth:     50,
	}
	opts, err := req.Options()
	if err != nil {
		t.Fatalf("Options failed: %v", err)
	}
	if opts.Policy != merge.PolicyAbsent {
		t.Errorf("Policy = %v, want absent", opts.Policy)
	}
	if opts.ListDiff != merge.DiffByIndex {
		t.Errorf("ListDiff = %v, want index", opts.ListDiff)
	}
	if opts.MaxDepth != 50 {
		t.Errorf("MaxDepth = %d, want 50", opts.MaxDepth)
	}

	// Empty list diff falls back to the engine default.
	req.ListDiff = ""
	opts, err = req.Options()
	if err != nil {
		t.Fatalf("Options failed: %v", err)
	}
	if opts.ListDiff != merge.DiffByValue {
		t.Errorf("Default ListDiff = %v, want value", opts.ListDiff)
	}
}

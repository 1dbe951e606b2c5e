package config

import (
	"context"
	"fmt"
	"os"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"gopkg.in/yaml.v3"

	"github.com/openmerge/openmerge/pkg/merge"
)

// Loader parses configuration documents into merge.Node trees. YAML and
// JSON are decoded through yaml.v3 node trees (JSON is a YAML subset),
// which keeps mapping key order intact; CUE is walked through its
// ordered field iterator. A Loader is safe to reuse across documents.
type Loader struct {
	cueCtx *cue.Context
}

// NewLoader creates a new document loader.
func NewLoader() *Loader {
	return &Loader{
		cueCtx: cuecontext.New(),
	}
}

// Load reads and parses the document at path, detecting the format from
// the file extension.
func (l *Loader) Load(ctx context.Context, path string) (*Document, error) {
	format, err := DetectFormat(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return l.LoadBytes(ctx, data, format, path)
}

// LoadBytes parses an in-memory document of the given format. The path
// is used only for diagnostics and the returned Document.
func (l *Loader) LoadBytes(_ context.Context, data []byte, format Format, path string) (*Document, error) {
	var (
		root merge.Node
		err  error
	)
	switch format {
	case FormatYAML, FormatJSON:
		root, err = l.parseYAML(data)
	case FormatCUE:
		root, err = l.parseCUE(data, path)
	default:
		err = fmt.Errorf("unsupported document format %q", format)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s document %s: %w", format, path, err)
	}

	return &Document{
		Path:     path,
		Format:   format,
		Root:     root,
		ParsedAt: time.Now(),
	}, nil
}

// parseYAML decodes YAML or JSON through the yaml.v3 node tree so that
// mapping key order survives the round trip.
func (l *Loader) parseYAML(data []byte) (merge.Node, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return merge.Node{}, err
	}
	// An empty file unmarshals to a zero node: treat it as null.
	if root.Kind == 0 {
		return merge.Null(), nil
	}
	return yamlToNode(&root)
}

func yamlToNode(n *yaml.Node) (merge.Node, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return merge.Null(), nil
		}
		return yamlToNode(n.Content[0])
	case yaml.AliasNode:
		return yamlToNode(n.Alias)
	case yaml.MappingNode:
		fields := make([]merge.Field, 0, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			value, err := yamlToNode(n.Content[i+1])
			if err != nil {
				return merge.Node{}, err
			}
			fields = append(fields, merge.F(n.Content[i].Value, value))
		}
		return merge.Mapping(fields...), nil
	case yaml.SequenceNode:
		items := make([]merge.Node, 0, len(n.Content))
		for _, c := range n.Content {
			item, err := yamlToNode(c)
			if err != nil {
				return merge.Node{}, err
			}
			items = append(items, item)
		}
		return merge.Sequence(items...), nil
	case yaml.ScalarNode:
		var v any
		if err := n.Decode(&v); err != nil {
			return merge.Node{}, fmt.Errorf("line %d: %w", n.Line, err)
		}
		return merge.Scalar(normalizeScalar(v)), nil
	default:
		return merge.Node{}, fmt.Errorf("unsupported yaml node kind %d at line %d", n.Kind, n.Line)
	}
}

// parseCUE compiles a single CUE file and walks the resulting value.
func (l *Loader) parseCUE(data []byte, path string) (merge.Node, error) {
	value := l.cueCtx.CompileBytes(data, cue.Filename(path))
	if err := value.Err(); err != nil {
		return merge.Node{}, err
	}
	return cueToNode(value)
}

func cueToNode(v cue.Value) (merge.Node, error) {
	switch v.Kind() {
	case cue.StructKind:
		iter, err := v.Fields()
		if err != nil {
			return merge.Node{}, fmt.Errorf("failed to iterate struct: %w", err)
		}
		var fields []merge.Field
		for iter.Next() {
			value, err := cueToNode(iter.Value())
			if err != nil {
				return merge.Node{}, err
			}
			fields = append(fields, merge.F(iter.Selector().Unquoted(), value))
		}
		return merge.Mapping(fields...), nil
	case cue.ListKind:
		iter, err := v.List()
		if err != nil {
			return merge.Node{}, fmt.Errorf("failed to iterate list: %w", err)
		}
		var items []merge.Node
		for iter.Next() {
			item, err := cueToNode(iter.Value())
			if err != nil {
				return merge.Node{}, err
			}
			items = append(items, item)
		}
		return merge.Sequence(items...), nil
	case cue.NullKind:
		return merge.Null(), nil
	case cue.BoolKind:
		b, err := v.Bool()
		if err != nil {
			return merge.Node{}, err
		}
		return merge.Scalar(b), nil
	case cue.IntKind:
		i, err := v.Int64()
		if err != nil {
			return merge.Node{}, err
		}
		return merge.Scalar(i), nil
	case cue.FloatKind, cue.NumberKind:
		f, err := v.Float64()
		if err != nil {
			return merge.Node{}, err
		}
		return merge.Scalar(f), nil
	case cue.StringKind:
		s, err := v.String()
		if err != nil {
			return merge.Node{}, err
		}
		return merge.Scalar(s), nil
	case cue.BytesKind:
		b, err := v.Bytes()
		if err != nil {
			return merge.Node{}, err
		}
		return merge.Scalar(string(b)), nil
	default:
		return merge.Node{}, fmt.Errorf("cannot convert incomplete or unsupported value at %s", v.Path())
	}
}

// normalizeScalar widens integers to int64 and floats to float64 so that
// trees decoded from different formats agree on numeric values.
func normalizeScalar(v any) any {
	switch t := v.(type) {
	case int:
		return int64(t)
	case int8:
		return int64(t)
	case int16:
		return int64(t)
	case int32:
		return int64(t)
	case uint:
		return int64(t)
	case uint8:
		return int64(t)
	case uint16:
		return int64(t)
	case uint32:
		return int64(t)
	case uint64:
		return int64(t)
	case float32:
		return float64(t)
	default:
		return v
	}
}

package config

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/openmerge/openmerge/pkg/merge"
)

// Encode serializes a tree in the given output format. CUE is an input
// format only; merge results are written as YAML or JSON.
func Encode(n merge.Node, format Format) ([]byte, error) {
	switch format {
	case FormatYAML:
		return EncodeYAML(n)
	case FormatJSON:
		return EncodeJSON(n)
	default:
		return nil, fmt.Errorf("unsupported output format %q", format)
	}
}

// EncodeYAML serializes a tree as YAML, preserving mapping key order.
func EncodeYAML(n merge.Node) ([]byte, error) {
	root, err := nodeToYAML(n)
	if err != nil {
		return nil, err
	}
	return yaml.Marshal(root)
}

func nodeToYAML(n merge.Node) (*yaml.Node, error) {
	switch n.Kind {
	case merge.KindMapping:
		out := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
		for _, f := range n.Fields {
			key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f.Key}
			value, err := nodeToYAML(f.Value)
			if err != nil {
				return nil, err
			}
			out.Content = append(out.Content, key, value)
		}
		return out, nil
	case merge.KindSequence:
		out := &yaml.Node{Kind: yaml.SequenceNode, Tag: "!!seq"}
		for _, it := range n.Items {
			item, err := nodeToYAML(it)
			if err != nil {
				return nil, err
			}
			out.Content = append(out.Content, item)
		}
		return out, nil
	default:
		if n.Value == nil {
			return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!null", Value: "null"}, nil
		}
		out := &yaml.Node{}
		if err := out.Encode(n.Value); err != nil {
			return nil, fmt.Errorf("failed to encode scalar %v: %w", n.Value, err)
		}
		return out, nil
	}
}

// EncodeJSON serializes a tree as indented JSON, preserving mapping key
// order (unlike encoding/json's map handling, which sorts keys).
func EncodeJSON(n merge.Node) ([]byte, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, n, "", "  "); err != nil {
		return nil, err
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

func writeJSON(buf *bytes.Buffer, n merge.Node, prefix, indent string) error {
	switch n.Kind {
	case merge.KindMapping:
		if len(n.Fields) == 0 {
			buf.WriteString("{}")
			return nil
		}
		buf.WriteByte('{')
		inner := prefix + indent
		for i, f := range n.Fields {
			if i > 0 {
				buf.WriteByte(',')
			}
			if indent != "" {
				buf.WriteByte('\n')
				buf.WriteString(inner)
			}
			key, err := json.Marshal(f.Key)
			if err != nil {
				return fmt.Errorf("failed to encode key %q: %w", f.Key, err)
			}
			buf.Write(key)
			buf.WriteByte(':')
			if indent != "" {
				buf.WriteByte(' ')
			}
			if err := writeJSON(buf, f.Value, inner, indent); err != nil {
				return err
			}
		}
		if indent != "" {
			buf.WriteByte('\n')
			buf.WriteString(prefix)
		}
		buf.WriteByte('}')
		return nil
	case merge.KindSequence:
		if len(n.Items) == 0 {
			buf.WriteString("[]")
			return nil
		}
		buf.WriteByte('[')
		inner := prefix + indent
		for i, it := range n.Items {
			if i > 0 {
				buf.WriteByte(',')
			}
			if indent != "" {
				buf.WriteByte('\n')
				buf.WriteString(inner)
			}
			if err := writeJSON(buf, it, inner, indent); err != nil {
				return err
			}
		}
		if indent != "" {
			buf.WriteByte('\n')
			buf.WriteString(prefix)
		}
		buf.WriteByte(']')
		return nil
	default:
		data, err := json.Marshal(n.Value)
		if err != nil {
			return fmt.Errorf("failed to encode scalar %v: %w", n.Value, err)
		}
		buf.Write(data)
		return nil
	}
}

// Digest returns the hex SHA-256 of the tree's compact JSON encoding.
// Mapping field order is part of the digest, so it identifies a concrete
// document, not an equivalence class under merge.Equal.
func Digest(n merge.Node) (string, error) {
	var buf bytes.Buffer
	if err := writeJSON(&buf, n, "", ""); err != nil {
		return "", err
	}
	sum := sha256.Sum256(buf.Bytes())
	return hex.EncodeToString(sum[:]), nil
}

package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/openmerge/openmerge/pkg/merge"
)

// Format identifies a supported document serialization format.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
	FormatCUE  Format = "cue"
)

// DetectFormat infers the document format from a file extension.
func DetectFormat(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".cue":
		return FormatCUE, nil
	default:
		return "", fmt.Errorf("cannot detect document format from path %q", path)
	}
}

// Document is a parsed configuration document.
type Document struct {
	// Path is the source file path, empty for in-memory documents.
	Path string `json:"path,omitempty"`

	// Format is the format the document was parsed from.
	Format Format `json:"format"`

	// Root is the document tree.
	Root merge.Node `json:"-"`

	// ParsedAt records when the document was loaded.
	ParsedAt time.Time `json:"parsed_at"`
}

// Request describes one merge invocation the way a CLI or API hands it
// over: raw string tokens and file paths. It is validated before any
// file is read or merge work begins.
type Request struct {
	// CurrentPath is the document holding current state.
	CurrentPath string `json:"current_path" validate:"required"`

	// ExpectedPath is the document holding expected state.
	ExpectedPath string `json:"expected_path" validate:"required"`

	// Policy selects the merge policy (identic, present, absent).
	Policy string `json:"policy" validate:"required,oneof=identic present absent"`

	// ListDiff selects the list-diff strategy (value, index). Empty means
	// the engine default (value).
	ListDiff string `json:"list_diff,omitempty" validate:"omitempty,oneof=value index"`

	// OutputFormat selects the result encoding (yaml, json). Empty lets
	// the caller decide from the output path.
	OutputFormat string `json:"output_format,omitempty" validate:"omitempty,oneof=yaml json"`

	// MaxDepth overrides the engine's recursion depth guard; zero keeps
	// the default.
	MaxDepth int `json:"max_depth,omitempty" validate:"gte=0"`
}

var requestValidator = validator.New()

// Validate checks the request fields against their constraints.
func (r *Request) Validate() error {
	if err := requestValidator.Struct(r); err != nil {
		return fmt.Errorf("invalid merge request: %w", err)
	}
	return nil
}

// Options converts the request tokens into engine options. Token
// validation errors carry the offending value.
func (r *Request) Options() (merge.Options, error) {
	policy, err := merge.ParsePolicy(r.Policy)
	if err != nil {
		return merge.Options{}, err
	}
	opts := merge.Options{Policy: policy, MaxDepth: r.MaxDepth}
	if r.ListDiff != "" {
		listDiff, err := merge.ParseListDiff(r.ListDiff)
		if err != nil {
			return merge.Options{}, err
		}
		opts.ListDiff = listDiff
	}
	return opts, nil
}

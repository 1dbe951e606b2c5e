package commands

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openmerge/openmerge/pkg/config"
	"github.com/openmerge/openmerge/pkg/merge"
	"github.com/openmerge/openmerge/pkg/stores"
	"github.com/openmerge/openmerge/pkg/telemetry"
)

func newMergeCommand() *cobra.Command {
	var (
		policy    string
		listDiff  string
		outPath   string
		outFormat string
		maxDepth  int
	)

	cmd := &cobra.Command{
		Use:   "merge <current> <expected>",
		Short: "Merge two configuration documents",
		Long: `Merge the expected document into the current document under a policy.

The documents may use different formats: YAML, JSON, and CUE inputs all
merge against each other. The result is written to stdout or to --out,
encoded as YAML or JSON.`,
		Example: `  # Fold expected settings into the current config
  omerge merge current.yaml expected.yaml --policy present

  # Remove the expected entries from the current config
  omerge merge current.json expected.json --policy absent

  # Merge lists position by position and write the result to a file
  omerge merge current.yaml expected.cue --policy present --list-diff index --out merged.yaml

  # Record the run in a history database
  omerge merge current.yaml expected.yaml --policy present --state runs.db`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := config.Request{
				CurrentPath:  args[0],
				ExpectedPath: args[1],
				Policy:       policy,
				ListDiff:     listDiff,
				OutputFormat: outFormat,
				MaxDepth:     maxDepth,
			}

			outcome, err := runMerge(cmd.Context(), &req, outPath)
			if err != nil {
				return err
			}

			if outPath == "" {
				fmt.Fprint(cmd.OutOrStdout(), string(outcome.encoded))
			} else {
				log.Info().
					Str("out", outPath).
					Bool("changed", outcome.changed).
					Msg("Merge result written")
			}

			return nil
		},
	}

	cmd.Flags().StringVarP(&policy, "policy", "p", "", "merge policy: identic, present, absent")
	cmd.Flags().StringVar(&listDiff, "list-diff", "", "list strategy: value (default), index")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "write the result to a file instead of stdout")
	cmd.Flags().StringVarP(&outFormat, "format", "f", "", "output format: yaml, json (default: inferred)")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "recursion depth limit (0 uses the engine default)")
	cmd.MarkFlagRequired("policy")

	return cmd
}

// mergeOutcome carries the result of one merge invocation.
type mergeOutcome struct {
	runID   string
	result  merge.Node
	encoded []byte
	changed bool
}

// runMerge loads both documents, merges them, encodes the result, and
// optionally records the run in the history database.
func runMerge(ctx context.Context, req *config.Request, outPath string) (*mergeOutcome, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	opts, err := req.Options()
	if err != nil {
		return nil, err
	}

	merger, err := merge.New(opts)
	if err != nil {
		return nil, err
	}

	loader := config.NewLoader()
	tel := telemetry.FromTelemetryContext(ctx)

	current, err := loadDocument(ctx, tel, loader, req.CurrentPath)
	if err != nil {
		return nil, fmt.Errorf("loading current document: %w", err)
	}
	expected, err := loadDocument(ctx, tel, loader, req.ExpectedPath)
	if err != nil {
		return nil, fmt.Errorf("loading expected document: %w", err)
	}

	log.Debug().
		Str("current", req.CurrentPath).
		Str("expected", req.ExpectedPath).
		Str("policy", merger.Policy().String()).
		Str("list_diff", merger.ListDiff().String()).
		Msg("Merging documents")

	store, err := openStore(ctx)
	if err != nil {
		return nil, err
	}
	if store != nil {
		defer store.Close()
	}

	run, err := recordRunStart(ctx, store, merger, current, expected)
	if err != nil {
		return nil, err
	}

	result, err := merger.Merge(current.Root, expected.Root)
	if err != nil {
		recordRunFailure(ctx, store, run, err)
		return nil, err
	}

	changed := !merge.Equal(current.Root, result)

	format, err := resolveOutputFormat(req, current, outPath)
	if err != nil {
		recordRunFailure(ctx, store, run, err)
		return nil, err
	}

	op := telemetry.StartOperation(ctx, "result.write", telemetry.AttrDocumentPath.String(outPath))
	encoded, err := config.Encode(result, format)
	if err == nil && outPath != "" {
		if werr := os.WriteFile(outPath, encoded, 0o644); werr != nil {
			err = fmt.Errorf("writing result: %w", werr)
		}
	}
	op.End(err)
	if err != nil {
		recordRunFailure(ctx, store, run, err)
		return nil, err
	}

	if err := recordRunCompletion(ctx, store, run, result, changed); err != nil {
		return nil, err
	}

	outcome := &mergeOutcome{result: result, encoded: encoded, changed: changed}
	if run != nil {
		outcome.runID = run.ID
	}
	return outcome, nil
}

// resolveOutputFormat picks the result encoding: the explicit flag wins,
// then the output file extension, then the current document's format.
// CUE inputs fall back to YAML since results are plain data.
func resolveOutputFormat(req *config.Request, current *config.Document, outPath string) (config.Format, error) {
	if req.OutputFormat != "" {
		return config.Format(req.OutputFormat), nil
	}
	if outPath != "" {
		if format, err := config.DetectFormat(outPath); err == nil && format != config.FormatCUE {
			return format, nil
		}
	}
	if current.Format == config.FormatCUE {
		return config.FormatYAML, nil
	}
	return current.Format, nil
}

// openStore opens the history database named by --state, or returns nil
// when no history is requested.
func openStore(ctx context.Context) (stores.Store, error) {
	if statePath == "" {
		return nil, nil
	}

	store, err := stores.NewSQLiteStore(stores.Config{Path: statePath})
	if err != nil {
		return nil, err
	}
	if err := store.Init(ctx); err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		store.Close()
		return nil, err
	}
	return store, nil
}

func recordRunStart(ctx context.Context, store stores.Store, merger *merge.Merger, current, expected *config.Document) (*stores.MergeRun, error) {
	if store == nil {
		return nil, nil
	}

	currentDigest, err := config.Digest(current.Root)
	if err != nil {
		return nil, err
	}
	expectedDigest, err := config.Digest(expected.Root)
	if err != nil {
		return nil, err
	}

	run := &stores.MergeRun{
		ID:             uuid.New().String(),
		Policy:         merger.Policy().String(),
		ListDiff:       merger.ListDiff().String(),
		CurrentPath:    current.Path,
		ExpectedPath:   expected.Path,
		CurrentDigest:  currentDigest,
		ExpectedDigest: expectedDigest,
		Status:         stores.RunStatusRunning,
		StartedAt:      time.Now().UTC(),
	}
	if err := store.CreateMergeRun(ctx, run); err != nil {
		return nil, fmt.Errorf("recording merge run: %w", err)
	}
	return run, nil
}

func recordRunCompletion(ctx context.Context, store stores.Store, run *stores.MergeRun, result merge.Node, changed bool) error {
	if store == nil || run == nil {
		return nil
	}
	resultDigest, err := config.Digest(result)
	if err != nil {
		return err
	}
	if err := store.CompleteMergeRun(ctx, run.ID, resultDigest, changed); err != nil {
		return fmt.Errorf("recording merge completion: %w", err)
	}
	return nil
}

// loadDocument loads one document, with a load span, a per-format
// metric, and a debug log entry when telemetry is carried in the
// context.
func loadDocument(ctx context.Context, tel *telemetry.Telemetry, loader *config.Loader, path string) (*config.Document, error) {
	if tel == nil {
		return loader.Load(ctx, path)
	}

	format, _ := config.DetectFormat(path)
	ctx, span := tel.Tracer.StartLoadSpan(ctx, path, string(format))
	defer span.End()

	doc, err := loader.Load(ctx, path)
	if err != nil {
		telemetry.RecordError(span, err)
		return nil, err
	}

	tel.Metrics.RecordDocumentLoaded(string(doc.Format))
	tel.Logger.WithDocument(doc.Path, string(doc.Format)).Debug("Document loaded")
	telemetry.RecordSuccess(span)
	return doc, nil
}

func recordRunFailure(ctx context.Context, store stores.Store, run *stores.MergeRun, cause error) {
	if store == nil || run == nil {
		return
	}
	if err := store.FailMergeRun(ctx, run.ID, cause.Error()); err != nil {
		log.Warn().Err(err).Str("run_id", run.ID).Msg("Failed to record merge failure")
	}
}

package commands

import (
	"context"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openmerge/openmerge/pkg/config"
	"github.com/openmerge/openmerge/pkg/telemetry"
)

func newWatchCommand() *cobra.Command {
	var (
		policy      string
		listDiff    string
		outPath     string
		outFormat   string
		maxDepth    int
		metricsAddr string
	)

	cmd := &cobra.Command{
		Use:   "watch <current> <expected>",
		Short: "Re-merge whenever an input document changes",
		Long: `Watch both input documents and re-run the merge on every change.

The merged result is written to --out after each successful run. A failed
run logs the error and keeps the previous result in place. Rapid bursts
of file events are coalesced before re-merging.`,
		Example: `  # Keep merged.yaml up to date as either input changes
  omerge watch current.yaml expected.yaml --policy present --out merged.yaml

  # Expose Prometheus metrics while watching
  omerge watch current.yaml expected.yaml --policy present --out merged.yaml --metrics-addr :9090`,
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
			if err := req.Validate(); err != nil {
				return err
			}

			tel, err := setupWatchTelemetry(metricsAddr)
			if err != nil {
				return err
			}
			ctx := tel.WithContext(cmd.Context())
			defer tel.Shutdown(context.Background())

			return watchAndMerge(ctx, &req, outPath, tel)
		},
	}

	cmd.Flags().StringVarP(&policy, "policy", "p", "", "merge policy: identic, present, absent")
	cmd.Flags().StringVar(&listDiff, "list-diff", "", "list strategy: value (default), index")
	cmd.Flags().StringVarP(&outPath, "out", "o", "", "file the merged result is written to")
	cmd.Flags().StringVarP(&outFormat, "format", "f", "", "output format: yaml, json (default: inferred)")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 0, "recursion depth limit (0 uses the engine default)")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "expose Prometheus metrics on this address")
	cmd.MarkFlagRequired("policy")
	cmd.MarkFlagRequired("out")

	return cmd
}

func setupWatchTelemetry(metricsAddr string) (*telemetry.Telemetry, error) {
	cfg := telemetry.DefaultConfig()
	if metricsAddr != "" {
		cfg.Metrics.Enabled = true
		cfg.Metrics.ListenAddress = metricsAddr
	}
	if verbose {
		cfg.Logging.Level = "debug"
	}

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		return nil, err
	}

	// Route the package-global logger through the configured one, so
	// statements outside the watch loop land in the same stream.
	log.Logger = tel.Logger.Zerolog()

	if err := tel.StartMetricsServer(); err != nil {
		return nil, err
	}
	return tel, nil
}

// shouldRemerge reports whether a file event warrants a new merge.
// Rename and Remove count: atomic-save editors replace the input by
// renaming a temp file over it.
func shouldRemerge(op fsnotify.Op) bool {
	return op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) != 0
}

// watchAndMerge runs an initial merge, then re-merges on every change to
// either input file until the context is cancelled.
func watchAndMerge(ctx context.Context, req *config.Request, outPath string, tel *telemetry.Telemetry) error {
	logger := tel.Logger.NewComponentLogger("watch")

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer watcher.Close()

	watched := []string{req.CurrentPath, req.ExpectedPath}
	for _, path := range watched {
		if err := watcher.Add(path); err != nil {
			return err
		}
	}
	tel.Metrics.SetWatchedFiles(float64(len(watched)))

	runOnce := func() {
		runID := uuid.New().String()
		runLog := logger.WithRunID(runID).WithPolicy(req.Policy, req.ListDiff)
		err := telemetry.InstrumentMerge(ctx, runID, req.Policy, req.ListDiff, func(ctx context.Context) (bool, error) {
			outcome, err := runMerge(ctx, req, outPath)
			if err != nil {
				return false, err
			}
			runLog.
				WithField("out", outPath).
				WithField("changed", outcome.changed).
				Info("Merge result written")
			return outcome.changed, nil
		})
		if err != nil {
			tel.Metrics.RecordWatchReload("failed")
			runLog.WithError(err).Error("Merge failed, keeping previous result")
			return
		}
		tel.Metrics.RecordWatchReload("completed")
		if err := tel.Flush(ctx); err != nil {
			logger.WithError(err).Warn("Failed to flush telemetry")
		}
	}

	runOnce()
	logger.
		WithField("current", req.CurrentPath).
		WithField("expected", req.ExpectedPath).
		Info("Watching for changes")

	// Coalesce bursts of events (editors often write several) into one
	// re-merge.
	const debounce = 500 * time.Millisecond
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if !shouldRemerge(event.Op) {
				continue
			}
			logger.
				WithField("file", event.Name).
				WithField("op", event.Op.String()).
				Debug("Input file changed")

			// A rename or replace drops the watch on the old inode.
			_ = watcher.Add(event.Name)

			if timer == nil {
				timer = time.NewTimer(debounce)
				timerC = timer.C
			} else {
				if !timer.Stop() {
					<-timerC
				}
				timer.Reset(debounce)
			}

		case <-timerC:
			timer = nil
			timerC = nil
			// Re-arm the watches in case a file was replaced or briefly
			// missing while events were coalescing.
			for _, path := range watched {
				_ = watcher.Add(path)
			}
			runOnce()

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			logger.WithError(err).Error("Watcher error")
		}
	}
}

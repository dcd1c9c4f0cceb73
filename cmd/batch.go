package main

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/tradedocs-cli/internal/model"
	"github.com/sells-group/tradedocs-cli/internal/resilience"
	"github.com/sells-group/tradedocs-cli/internal/store"
	"github.com/sells-group/tradedocs-cli/internal/trace"
)

var (
	batchOutDir      string
	batchConcurrency int
)

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Extract every document in a directory",
	Long:  "Runs the extraction workflow over each supported file in the directory. Each document gets its own in-memory trace; records are written as <name>.json.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("batch"); err != nil {
			return err
		}

		dir := args[0]
		entries, err := os.ReadDir(dir)
		if err != nil {
			return eris.Wrapf(err, "read dir %s", dir)
		}

		var paths []string
		for _, e := range entries {
			if e.IsDir() {
				continue
			}
			if _, ok := mediaTypeFor(e.Name()); ok {
				paths = append(paths, filepath.Join(dir, e.Name()))
			}
		}
		if len(paths) == 0 {
			return eris.Errorf("no supported documents in %s", dir)
		}

		outDir := batchOutDir
		if outDir == "" {
			outDir = dir
		}
		if err := os.MkdirAll(outDir, 0755); err != nil {
			return eris.Wrapf(err, "create out dir %s", outDir)
		}

		concurrency := batchConcurrency
		if concurrency == 0 {
			concurrency = cfg.Batch.MaxConcurrent
		}

		// One breaker across the batch so repeated fatal failures stop
		// the remaining documents quickly.
		breaker := resilience.NewCircuitBreaker(resilience.DefaultCircuitBreakerConfig())

		g, ctx := errgroup.WithContext(ctx)
		g.SetLimit(concurrency)

		var done, failed atomic.Int64
		for _, path := range paths {
			g.Go(func() error {
				if err := batchOne(ctx, breaker, path, outDir); err != nil {
					failed.Add(1)
					zap.L().Error("batch document failed",
						zap.String("file", path),
						zap.Error(err),
					)
					// Keep going; the batch reports failures at the end.
					return nil
				}
				done.Add(1)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		zap.L().Info("batch complete",
			zap.Int64("succeeded", done.Load()),
			zap.Int64("failed", failed.Load()),
		)
		if n := failed.Load(); n > 0 {
			return eris.Errorf("%d of %d documents failed", n, len(paths))
		}
		return nil
	},
}

// batchOne extracts a single document with a private in-memory trace and
// writes the record next to the output directory.
func batchOne(ctx context.Context, breaker *resilience.CircuitBreaker, path, outDir string) error {
	parts, err := loadFileParts([]string{path}, os.ReadFile)
	if err != nil {
		return err
	}

	tracer := trace.New(store.NewMemory())
	ex := newExtractor(tracer, breaker)

	record, err := ex.Extract(ctx, parts, func(msg string) {
		zap.L().Info(msg, zap.String("file", filepath.Base(path)))
	})
	if err != nil {
		return err
	}

	return writeRecord(record, outPathFor(path, outDir))
}

func outPathFor(path, outDir string) string {
	base := filepath.Base(path)
	name := strings.TrimSuffix(base, filepath.Ext(base)) + ".json"
	return filepath.Join(outDir, name)
}

func writeRecord(record *model.InvoiceRecord, path string) error {
	out, err := json.MarshalIndent(record, "", "  ")
	if err != nil {
		return eris.Wrap(err, "marshal record")
	}
	if err := os.WriteFile(path, append(out, '\n'), 0644); err != nil {
		return eris.Wrapf(err, "write %s", path)
	}
	return nil
}

func init() {
	batchCmd.Flags().StringVar(&batchOutDir, "out-dir", "", "directory for output records (default: alongside inputs)")
	batchCmd.Flags().IntVar(&batchConcurrency, "concurrency", 0, "max documents in flight (default from config)")
	rootCmd.AddCommand(batchCmd)
}

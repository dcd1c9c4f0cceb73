package main

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/tradedocs-cli/internal/cost"
	"github.com/sells-group/tradedocs-cli/internal/extract"
	"github.com/sells-group/tradedocs-cli/internal/model"
	"github.com/sells-group/tradedocs-cli/internal/resilience"
	"github.com/sells-group/tradedocs-cli/internal/store"
	"github.com/sells-group/tradedocs-cli/internal/trace"
	anthropicpkg "github.com/sells-group/tradedocs-cli/pkg/anthropic"
)

func initStore(ctx context.Context) (store.SessionStore, error) {
	switch cfg.Store.Driver {
	case "sqlite":
		path := cfg.Store.Path
		if path == "" {
			path = "tradedocs.db"
		}
		st, err := store.NewSQLite(path)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, err
		}
		return st, nil
	case "postgres":
		st, err := store.NewPostgres(ctx, cfg.Store.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := st.Migrate(ctx); err != nil {
			st.Close()
			return nil, err
		}
		return st, nil
	case "memory":
		return store.NewMemory(), nil
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
}

// extractorOptions maps the loaded config onto workflow options.
func extractorOptions() extract.Options {
	rates := cost.DefaultRates()
	for m, p := range cfg.Pricing.Anthropic {
		rates[m] = cost.ModelRate{Input: p.Input, Output: p.Output}
	}
	return extract.Options{
		Model:       cfg.Anthropic.Model,
		MaxTokens:   cfg.Anthropic.MaxTokens,
		CallSpacing: cfg.Extract.CallSpacing(),
		Retry: resilience.RetryConfig{
			MaxRetries:     cfg.Retry.MaxRetries,
			InitialBackoff: time.Duration(cfg.Retry.InitialSecs) * time.Second,
			MaxBackoff:     time.Duration(cfg.Retry.MaxBackoffSecs) * time.Second,
		},
		Timeouts: model.TimeoutConfig{
			ServerCeiling:  cfg.Extract.ServerTimeout(),
			PerCallCeiling: cfg.Extract.PerCallTimeout(),
		},
		Rates: rates,
	}
}

func newExtractor(tracer *trace.Tracer, breaker *resilience.CircuitBreaker) *extract.Extractor {
	client := anthropicpkg.NewClient(cfg.Anthropic.Key)
	return extract.New(client, tracer, breaker, extractorOptions())
}

// loadFileParts reads document files and tags each with its media type.
func loadFileParts(paths []string, readFile func(string) ([]byte, error)) ([]model.FilePart, error) {
	parts := make([]model.FilePart, 0, len(paths))
	for _, p := range paths {
		mt, ok := mediaTypeFor(p)
		if !ok {
			return nil, eris.Errorf("unsupported file type: %s (want pdf, png, jpg, gif, or webp)", p)
		}
		data, err := readFile(p)
		if err != nil {
			return nil, eris.Wrapf(err, "read %s", p)
		}
		parts = append(parts, model.FilePart{
			Data:      data,
			MediaType: mt,
			Filename:  filepath.Base(p),
		})
	}
	return parts, nil
}

func mediaTypeFor(path string) (string, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".pdf":
		return "application/pdf", true
	case ".png":
		return "image/png", true
	case ".jpg", ".jpeg":
		return "image/jpeg", true
	case ".gif":
		return "image/gif", true
	case ".webp":
		return "image/webp", true
	default:
		return "", false
	}
}

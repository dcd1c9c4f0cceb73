// Package extract drives the two-call extraction workflow: metadata, then
// line items, each through the retry controller and the repair parser, then
// merge, normalize, and soft-validate into one record.
package extract

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/tradedocs-cli/internal/cost"
	"github.com/sells-group/tradedocs-cli/internal/jsonrepair"
	"github.com/sells-group/tradedocs-cli/internal/model"
	"github.com/sells-group/tradedocs-cli/internal/resilience"
	"github.com/sells-group/tradedocs-cli/internal/trace"
	"github.com/sells-group/tradedocs-cli/pkg/anthropic"
)

// ProgressFunc receives free-text liveness messages during a run. It is the
// only externally visible signal during a long call, so every major phase
// and every retry countdown emits one.
type ProgressFunc func(message string)

// Options configures an Extractor.
type Options struct {
	// Model is the model identifier for both calls.
	Model string

	// MaxTokens caps the output of each call. Default: 8192.
	MaxTokens int64

	// CallSpacing is the courtesy interval between the metadata call and
	// the line-items call, respecting the provider's per-second request
	// ceiling. Default: 1500ms.
	CallSpacing time.Duration

	// Retry controls backoff for both calls.
	Retry resilience.RetryConfig

	// Timeouts are advisory ceilings recorded on the session.
	Timeouts model.TimeoutConfig

	// Rates prices token usage for session metrics. Nil disables costing.
	Rates cost.Rates
}

// Extractor orchestrates one extraction run at a time against the AI service.
type Extractor struct {
	client  anthropic.Client
	tracer  *trace.Tracer
	breaker *resilience.CircuitBreaker
	costs   *cost.Calculator
	limiter *rate.Limiter
	opts    Options
}

// New creates an Extractor. The breaker is shared across runs so repeated
// fatal failures in a batch fail fast.
func New(client anthropic.Client, tracer *trace.Tracer, breaker *resilience.CircuitBreaker, opts Options) *Extractor {
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 8192
	}
	if opts.CallSpacing <= 0 {
		opts.CallSpacing = 1500 * time.Millisecond
	}
	calc := cost.NewCalculator(opts.Rates)
	if opts.Rates == nil {
		calc = cost.NewCalculator(cost.DefaultRates())
	}
	// Drain the initial token so the first Wait between the two calls
	// actually sleeps for the full spacing interval.
	limiter := rate.NewLimiter(rate.Every(opts.CallSpacing), 1)
	limiter.Allow()
	return &Extractor{
		client:  client,
		tracer:  tracer,
		breaker: breaker,
		costs:   calc,
		limiter: limiter,
		opts:    opts,
	}
}

// Extract runs the full workflow over the given file parts and returns the
// merged record. On failure the tracer always records a terminal transition
// before the error propagates, and any partial data captured during the run
// stays queryable for manual recovery.
func (e *Extractor) Extract(ctx context.Context, files []model.FilePart, onProgress ProgressFunc) (*model.InvoiceRecord, error) {
	progress := func(msg string) {
		if onProgress != nil {
			onProgress(msg)
		}
	}

	var payloadBytes int64
	for _, f := range files {
		payloadBytes += int64(len(f.Data))
	}

	e.tracer.Start(trace.StartOptions{
		FileCount:    len(files),
		PayloadBytes: payloadBytes,
		Timeouts:     e.opts.Timeouts,
	})

	e.tracer.LogEvent(model.StepPreProcessing, fmt.Sprintf("prepared %d file part(s), %d bytes", len(files), payloadBytes), nil)
	progress(fmt.Sprintf("Preparing %d document part(s)…", len(files)))

	e.tracer.LogEvent(model.StepAPIConnect, "connecting to ai service", &trace.EventMeta{
		Payload: map[string]any{"model": e.opts.Model},
	})

	// Call 1: header/entity/logistics fields.
	progress("Extracting document header fields…")
	metaRaw, err := e.call(ctx, model.StepMetadataRequest, model.StepMetadataResponse, metadataPrompt, files, progress)
	if err != nil {
		e.fail("metadata call failed", err)
		return nil, err
	}

	metaValue, err := jsonrepair.Repair(metaRaw)
	if err != nil {
		e.fail("metadata response unparseable", err)
		return nil, err
	}
	meta, err := decodeMetadata(metaValue)
	if err != nil {
		e.fail("metadata response malformed", err)
		return nil, err
	}
	e.tracer.SetPartial(&model.PartialExtractionData{Metadata: meta})

	// Courtesy spacing before the second call.
	if err := e.limiter.Wait(ctx); err != nil {
		e.fail("canceled between calls", err)
		return nil, err
	}

	// Call 2: the line-item table.
	progress("Extracting line items…")
	itemsRaw, err := e.call(ctx, model.StepLineItemsRequest, model.StepLineItemsResponse, buildLineItemsPrompt(), files, progress)
	if err != nil {
		e.fail("line items call failed", err)
		return nil, err
	}

	itemsValue, err := jsonrepair.Repair(itemsRaw)
	if err != nil {
		e.fail("line items response unparseable", err)
		return nil, err
	}
	items, err := decodeLineItems(itemsValue)
	if err != nil {
		e.fail("line items response malformed", err)
		return nil, err
	}
	e.tracer.SetPartial(&model.PartialExtractionData{Metadata: meta, LineItems: items})

	e.tracer.LogEvent(model.StepParsing, fmt.Sprintf("decoded %d line item(s)", len(items)), nil)

	record := merge(meta, items)
	record.Normalize()

	if err := checkSchema(record); err != nil {
		// Soft validation: warn and hand back best-effort data anyway.
		zap.L().Warn("extract: schema mismatch on merged record", zap.Error(err))
		e.tracer.LogEvent(model.StepValidation, "schema mismatch: "+err.Error(), nil)
	} else {
		e.tracer.LogEvent(model.StepValidation, "record matches schema", nil)
	}

	e.tracer.Complete()
	progress("Extraction complete.")
	return record, nil
}

// call issues one AI request through the circuit breaker and the retry
// controller, logging the request/response pair with latency and usage.
func (e *Extractor) call(ctx context.Context, reqStep, respStep model.StepTag, prompt string, files []model.FilePart, progress ProgressFunc) (string, error) {
	e.tracer.LogEvent(reqStep, "dispatching request", nil)

	retryCfg := e.opts.Retry
	retryCfg.OnProgress = func(msg string) {
		progress(msg)
	}

	started := time.Now()
	resp, err := resilience.ExecuteVal(ctx, e.breaker, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return resilience.DoVal(ctx, retryCfg, func(ctx context.Context) (*anthropic.MessageResponse, error) {
			return e.client.CreateMessage(ctx, anthropic.MessageRequest{
				Model:     e.opts.Model,
				MaxTokens: e.opts.MaxTokens,
				System:    systemText,
				Messages: []anthropic.Message{{
					Role:  "user",
					Text:  prompt,
					Files: toAttachments(files),
				}},
			})
		})
	})
	if err != nil {
		return "", err
	}

	latency := time.Since(started).Milliseconds()
	tokens := model.TokenMetrics{
		InputTokens:  resp.Usage.InputTokens,
		OutputTokens: resp.Usage.OutputTokens,
	}
	e.tracer.LogEvent(respStep, "response received", &trace.EventMeta{
		LatencyMs: latency,
		Tokens:    &tokens,
		CostUSD:   e.costs.Call(e.opts.Model, tokens.InputTokens, tokens.OutputTokens),
		Payload:   map[string]any{"stop_reason": resp.StopReason, "bytes": len(resp.Text)},
	})

	return resp.Text, nil
}

// fail records the fatal trace event and the terminal transition so no run
// is ever left RUNNING after control returns to the caller.
func (e *Extractor) fail(reason string, err error) {
	e.tracer.LogEvent(model.StepError, reason+": "+err.Error(), nil)
	e.tracer.Fail(reason)
}

func toAttachments(files []model.FilePart) []anthropic.FileAttachment {
	out := make([]anthropic.FileAttachment, len(files))
	for i, f := range files {
		out[i] = anthropic.FileAttachment{
			Data:      f.Data,
			MediaType: f.MediaType,
			Filename:  f.Filename,
		}
	}
	return out
}

package generator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/pigcharles06/remote-course-system/internal/llm"
	"go.uber.org/zap"
)

const (
	DefaultBatchSize   = 10
	DefaultMaxRounds   = 2
	DefaultCallTimeout = 120 * time.Second

	// maxLoggedKeys bounds how many missing keys end up in a log line.
	maxLoggedKeys = 5
)

// ErrProviderTimeout means a single provider call ran past its deadline.
// Unlike other batch failures it aborts the run.
var ErrProviderTimeout = errors.New("provider call timed out")

type Options struct {
	BatchSize   int
	MaxRounds   int
	CallTimeout time.Duration
	Logger      *zap.Logger
}

// Generator resolves placeholder keys to values by asking a provider in
// fixed-size batches, retrying the keys still missing after each round.
type Generator struct {
	provider    llm.Provider
	batchSize   int
	maxRounds   int
	callTimeout time.Duration
	logger      *zap.Logger
}

// BatchFailure records a batch that produced no values.
type BatchFailure struct {
	Round int      `json:"round"`
	Batch int      `json:"batch"`
	Keys  []string `json:"keys"`
	Error string   `json:"error"`
}

type Result struct {
	Values    map[string]string `json:"-"`
	Requested int               `json:"requested"`
	Resolved  int               `json:"resolved"`
	Missing   []string          `json:"missing,omitempty"`
	Rounds    int               `json:"rounds"`
	Batches   int               `json:"batches"`
	Failures  []BatchFailure    `json:"failures,omitempty"`
}

// Complete reports whether every requested key got a value.
func (r *Result) Complete() bool {
	return len(r.Missing) == 0
}

func New(provider llm.Provider, opts Options) *Generator {
	if opts.BatchSize <= 0 {
		opts.BatchSize = DefaultBatchSize
	}
	if opts.MaxRounds <= 0 {
		opts.MaxRounds = DefaultMaxRounds
	}
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = DefaultCallTimeout
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Generator{
		provider:    provider,
		batchSize:   opts.BatchSize,
		maxRounds:   opts.MaxRounds,
		callTimeout: opts.CallTimeout,
		logger:      opts.Logger,
	}
}

// Resolve asks for a value for every key. The reference, when given, goes
// along with the first batch of the first round only. Batches that fail or
// answer with something other than a JSON object contribute nothing; a key
// once resolved is never overwritten. Keys still unresolved after the last
// round are listed in Result.Missing.
//
// The only errors returned are cancellation of ctx and ErrProviderTimeout.
func (g *Generator) Resolve(ctx context.Context, form llm.FormData, keys []string, ref *llm.Reference) (*Result, error) {
	pending := dedupe(keys)
	res := &Result{
		Values:    make(map[string]string, len(pending)),
		Requested: len(pending),
	}

	for round := 0; round < g.maxRounds && len(pending) > 0; round++ {
		res.Rounds++
		g.logger.Info("resolving placeholders",
			zap.Int("round", round+1),
			zap.Int("pending", len(pending)),
			zap.Int("batch_size", g.batchSize))

		for i, batch := range split(pending, g.batchSize) {
			req := llm.Request{FormData: form, Keys: batch}
			if round == 0 && i == 0 {
				req.Reference = ref
			}
			res.Batches++

			values, err := g.call(ctx, req)
			if err != nil {
				if ctx.Err() != nil {
					return nil, ctx.Err()
				}
				if errors.Is(err, ErrProviderTimeout) {
					return nil, fmt.Errorf("round %d batch %d: %w", round+1, i+1, err)
				}
				g.logger.Warn("batch produced no values",
					zap.Int("round", round+1),
					zap.Int("batch", i+1),
					zap.Int("keys", len(batch)),
					zap.Error(err))
				res.Failures = append(res.Failures, BatchFailure{
					Round: round + 1,
					Batch: i + 1,
					Keys:  batch,
					Error: err.Error(),
				})
				continue
			}

			added := 0
			for k, v := range values {
				if _, ok := res.Values[k]; ok {
					continue
				}
				res.Values[k] = v
				added++
			}
			g.logger.Debug("batch resolved",
				zap.Int("round", round+1),
				zap.Int("batch", i+1),
				zap.Int("keys", len(batch)),
				zap.Int("resolved", added))
		}

		pending = missing(pending, res.Values)
	}

	res.Resolved = len(res.Values)
	res.Missing = pending
	sort.Strings(res.Missing)

	fields := []zap.Field{
		zap.Int("resolved", res.Resolved),
		zap.Int("requested", res.Requested),
		zap.Int("rounds", res.Rounds),
		zap.Int("batches", res.Batches),
	}
	if res.Complete() {
		g.logger.Info("all placeholders resolved", fields...)
	} else {
		shown := res.Missing
		if len(shown) > maxLoggedKeys {
			shown = shown[:maxLoggedKeys]
		}
		fields = append(fields, zap.Int("missing", len(res.Missing)), zap.Strings("missing_keys", shown))
		g.logger.Warn("placeholders left unresolved", fields...)
	}
	return res, nil
}

func (g *Generator) call(ctx context.Context, req llm.Request) (map[string]string, error) {
	callCtx, cancel := context.WithTimeout(ctx, g.callTimeout)
	defer cancel()

	raw, err := g.provider.Generate(callCtx, req)
	if err != nil {
		if ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("%w after %s: %v", ErrProviderTimeout, g.callTimeout, err)
		}
		return nil, err
	}
	return llm.ParseValues(raw, req.Keys)
}

func split(keys []string, size int) [][]string {
	batches := make([][]string, 0, (len(keys)+size-1)/size)
	for start := 0; start < len(keys); start += size {
		end := start + size
		if end > len(keys) {
			end = len(keys)
		}
		batches = append(batches, keys[start:end:end])
	}
	return batches
}

func missing(keys []string, values map[string]string) []string {
	var out []string
	for _, k := range keys {
		if _, ok := values[k]; !ok {
			out = append(out, k)
		}
	}
	return out
}

func dedupe(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}

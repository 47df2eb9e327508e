package pipeline

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/pigcharles06/remote-course-system/internal/docx"
	"github.com/pigcharles06/remote-course-system/internal/generator"
	"github.com/pigcharles06/remote-course-system/internal/llm"
	"github.com/pigcharles06/remote-course-system/internal/placeholder"
	"go.uber.org/zap"
)

// Resolver turns placeholder keys into values. *generator.Generator is the
// production implementation.
type Resolver interface {
	Resolve(ctx context.Context, form llm.FormData, keys []string, ref *llm.Reference) (*generator.Result, error)
}

type Options struct {
	TemplatePath string
	// Reference is optional; without it values are generated from the form
	// data alone.
	Reference *llm.Reference
	Generator Resolver
	Logger    *zap.Logger
}

// Assembler produces filled documents from one fixed template. It holds no
// per-request state and may be shared by concurrent callers.
type Assembler struct {
	templatePath string
	reference    *llm.Reference
	resolver     Resolver
	logger       *zap.Logger
}

type Output struct {
	Document []byte
	Report   *Report
}

func NewAssembler(opts Options) (*Assembler, error) {
	if strings.TrimSpace(opts.TemplatePath) == "" {
		return nil, fmt.Errorf("template path is required")
	}
	if opts.Generator == nil {
		return nil, fmt.Errorf("generator is required")
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Assembler{
		templatePath: opts.TemplatePath,
		reference:    opts.Reference,
		resolver:     opts.Generator,
		logger:       opts.Logger,
	}, nil
}

func (a *Assembler) TemplatePath() string {
	return a.templatePath
}

// Generate runs extract, resolve, fill and serialize in sequence. Any
// template or serialization failure aborts with an error and no document.
// Placeholders left unresolved do not: their markers stay in the document
// and are listed in the report.
func (a *Assembler) Generate(ctx context.Context, form llm.FormData) (*Output, error) {
	report := NewReport(a.templatePath)

	data, err := os.ReadFile(a.templatePath)
	if err != nil {
		return nil, fmt.Errorf("loading template: %w", err)
	}

	// 1. Extract
	stage := report.BeginStage("extract")
	tmpl, err := docx.Read(data)
	if err != nil {
		report.EndStage(stage, "error", nil, nil, err)
		return nil, fmt.Errorf("loading template %s: %w", a.templatePath, err)
	}
	keys, err := placeholder.Extract(tmpl)
	if err != nil {
		report.EndStage(stage, "error", nil, nil, err)
		return nil, fmt.Errorf("extracting placeholders: %w", err)
	}
	report.EndStage(stage, "ok", map[string]float64{"placeholders": float64(len(keys))}, nil, nil)
	a.logger.Info("placeholders extracted", zap.String("template", a.templatePath), zap.Int("count", len(keys)))

	// 2. Resolve
	if a.reference == nil {
		report.AddSignal(SignalReferenceMissing, "resolve", "info",
			"no reference document; values are generated from form data only", 0)
	}
	stage = report.BeginStage("resolve")
	res, err := a.resolver.Resolve(ctx, form, keys, a.reference)
	if err != nil {
		report.EndStage(stage, "error", nil, nil, err)
		return nil, fmt.Errorf("resolving placeholders: %w", err)
	}
	status := "ok"
	if !res.Complete() {
		status = "partial"
	}
	var notes []string
	for _, f := range res.Failures {
		notes = append(notes, fmt.Sprintf("round %d batch %d failed: %s", f.Round, f.Batch, f.Error))
	}
	if len(res.Missing) > 0 {
		notes = append(notes, "unresolved: "+strings.Join(res.Missing, ", "))
	}
	report.EndStage(stage, status, map[string]float64{
		"requested": float64(res.Requested),
		"resolved":  float64(res.Resolved),
		"rounds":    float64(res.Rounds),
		"batches":   float64(res.Batches),
	}, notes, nil)
	report.Requested = res.Requested
	report.Resolved = res.Resolved
	report.Missing = res.Missing
	report.Rounds = res.Rounds
	report.Batches = res.Batches
	for _, f := range res.Failures {
		report.AddSignal(SignalBatchFailed, "resolve", "info",
			fmt.Sprintf("round %d batch %d (%d keys): %s", f.Round, f.Batch, len(f.Keys), f.Error), float64(len(f.Keys)))
	}
	if n := len(res.Missing); n > 0 {
		report.AddSignal(SignalUnresolved, "resolve", "warning",
			fmt.Sprintf("%d of %d placeholders left unresolved", n, res.Requested), float64(n))
	}

	// 3. Fill a fresh copy of the template
	stage = report.BeginStage("fill")
	doc, err := docx.Read(data)
	if err != nil {
		report.EndStage(stage, "error", nil, nil, err)
		return nil, fmt.Errorf("reloading template: %w", err)
	}
	stats, err := placeholder.Fill(doc, res.Values)
	if err != nil {
		report.EndStage(stage, "error", nil, nil, err)
		return nil, fmt.Errorf("filling template: %w", err)
	}
	report.EndStage(stage, "ok", map[string]float64{
		"paragraphs": float64(stats.Paragraphs),
		"rewritten":  float64(stats.Rewritten),
		"multiline":  float64(stats.Multiline),
		"replaced":   float64(stats.Replaced),
		"unresolved": float64(stats.Unresolved),
	}, nil, nil)

	// 4. Serialize
	stage = report.BeginStage("serialize")
	out, err := doc.Bytes()
	if err != nil {
		report.EndStage(stage, "error", nil, nil, err)
		return nil, fmt.Errorf("serializing document: %w", err)
	}
	report.EndStage(stage, "ok", map[string]float64{"bytes": float64(len(out))}, nil, nil)
	report.Finalize()

	a.logger.Info("document generated",
		zap.Int("bytes", len(out)),
		zap.Int("resolved", res.Resolved),
		zap.Int("requested", res.Requested),
		zap.Int("markers_replaced", stats.Replaced))
	return &Output{Document: out, Report: report}, nil
}

// Package pipeline implements C8, the Pipeline Orchestrator: idempotent
// Ingest->Analyze->Correlate->Summarize stage composition over a case, with
// bounded AI concurrency and per-item failure aggregation.
package pipeline

import (
	"context"
	"fmt"
	"io"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/csic-platform/forensic-evidence-platform/internal/core/analyze"
	"github.com/csic-platform/forensic-evidence-platform/internal/core/correlate"
	"github.com/csic-platform/forensic-evidence-platform/internal/core/domain"
	"github.com/csic-platform/forensic-evidence-platform/internal/core/pattern"
	"github.com/csic-platform/forensic-evidence-platform/internal/core/ports"
	"github.com/csic-platform/forensic-evidence-platform/internal/core/summary"
)

const defaultConcurrency = 5

type Config struct {
	AIConcurrency int
}

func (c Config) withDefaults() Config {
	if c.AIConcurrency <= 0 {
		c.AIConcurrency = defaultConcurrency
	}
	return c
}

// Orchestrator wires C1 (store), C4 (analyzer), C5 (correlation), C6
// (pattern), and C7 (summary) into the four named stages. Every dependency
// is a port or a pure-function service; the orchestrator itself holds no
// domain logic beyond sequencing and concurrency control.
type Orchestrator struct {
	store     ports.EvidenceStore
	analyzer  *analyze.Service
	engine    *correlate.Engine
	detector  *pattern.Detector
	aggregator *summary.Aggregator
	events    ports.EventPublisher
	logger    ports.Logger
	sem       *semaphore.Weighted
}

func NewOrchestrator(store ports.EvidenceStore, analyzer *analyze.Service, engine *correlate.Engine, detector *pattern.Detector, aggregator *summary.Aggregator, events ports.EventPublisher, cfg Config, logger ports.Logger) *Orchestrator {
	cfg = cfg.withDefaults()
	return &Orchestrator{
		store: store, analyzer: analyzer, engine: engine, detector: detector, aggregator: aggregator,
		events: events, logger: logger, sem: semaphore.NewWeighted(int64(cfg.AIConcurrency)),
	}
}

// ItemResult is the per-evidence outcome of a batch stage; a non-nil Err
// never aborts the batch.
type ItemResult struct {
	SHA256 string
	Err    error
}

// StageReport summarizes one pipeline stage's outcome across a batch of
// evidence items.
type StageReport struct {
	Stage     string
	Succeeded int
	Failed    int
	Results   []ItemResult
}

func (r StageReport) Exhausted() bool { return r.Failed == 0 }

// CaseReport is the aggregate result of ProcessCase: one StageReport per
// stage actually run.
type CaseReport struct {
	CaseID  string
	Ingest  *StageReport
	Analyze *StageReport
	Correlate *StageReport
	Summarize *StageReport
}

// IngestItem is one file handed to the Ingest stage.
type IngestItem struct {
	Reader   io.Reader
	Filename string
}

// Ingest runs C1.Ingest for every item, sequentially (I/O-bound, not
// AI-bound; no concurrency cap needed). caseID must already exist as a
// concept at the CLI layer — cases are implicit in this store, created on
// first reference.
func (o *Orchestrator) Ingest(ctx context.Context, caseID, actor string, items []IngestItem) (*StageReport, []string, error) {
	report := &StageReport{Stage: "ingest"}
	var shas []string
	for _, it := range items {
		sha, _, err := o.store.Ingest(ctx, it.Reader, it.Filename, caseID, actor)
		if err != nil {
			report.Failed++
			report.Results = append(report.Results, ItemResult{Err: err})
			o.logger.Error("ingest failed", "filename", it.Filename, "error", err)
			continue
		}
		report.Succeeded++
		report.Results = append(report.Results, ItemResult{SHA256: sha})
		shas = append(shas, sha)
		if o.events != nil {
			if err := o.events.PublishEvidenceIngested(ctx, sha, caseID); err != nil {
				o.logger.Warn("failed to publish evidence_ingested event", "sha256", sha, "error", err)
			}
		}
	}
	return report, shas, nil
}

// Analyze runs C4 over every sha256 in shas, bounded by the configured AI
// concurrency semaphore. Idempotent: an item whose analysis.v1.json already
// exists is skipped unless force is true.
func (o *Orchestrator) Analyze(ctx context.Context, caseID string, shas []string, force bool) (*StageReport, error) {
	report := &StageReport{Stage: "analyze"}
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, sha := range shas {
		sha := sha
		if !force {
			if _, err := o.store.GetAnalysis(ctx, sha); err == nil {
				mu.Lock()
				report.Succeeded++
				report.Results = append(report.Results, ItemResult{SHA256: sha})
				mu.Unlock()
				continue
			}
		}

		if err := o.sem.Acquire(ctx, 1); err != nil {
			mu.Lock()
			report.Failed++
			report.Results = append(report.Results, ItemResult{SHA256: sha, Err: err})
			mu.Unlock()
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer o.sem.Release(1)
			err := o.analyzeOne(ctx, sha, "")
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failed++
				o.logger.Error("analyze failed", "sha256", sha, "error", err)
			} else {
				report.Succeeded++
				if o.events != nil {
					meta, _ := o.store.GetMetadata(ctx, sha)
					evType := domain.EvidenceOther
					if meta != nil {
						evType = classifyFromMime(meta.Mime)
					}
					if pubErr := o.events.PublishEvidenceAnalyzed(ctx, sha, evType); pubErr != nil {
						o.logger.Warn("failed to publish evidence_analyzed event", "sha256", sha, "error", pubErr)
					}
				}
			}
			report.Results = append(report.Results, ItemResult{SHA256: sha, Err: err})
		}()
	}
	wg.Wait()
	return report, nil
}

func classifyFromMime(mime string) domain.EvidenceType {
	switch {
	case mime == "message/rfc822":
		return domain.EvidenceEmail
	case mime == "application/pdf":
		return domain.EvidencePDF
	case len(mime) >= 6 && mime[:6] == "image/":
		return domain.EvidenceImage
	case len(mime) >= 5 && mime[:5] == "text/":
		return domain.EvidenceDocument
	default:
		return domain.EvidenceOther
	}
}

func (o *Orchestrator) analyzeOne(ctx context.Context, sha string, overrideType domain.EvidenceType) error {
	meta, err := o.store.GetMetadata(ctx, sha)
	if err != nil {
		return err
	}
	rc, err := o.store.OpenRaw(ctx, sha)
	if err != nil {
		return err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return domain.NewIOFailureError("analyze.read_raw", err)
	}

	evType := overrideType
	if evType == "" {
		evType = classifyFromMime(meta.Mime)
	}
	result, err := o.analyzer.Analyze(ctx, evType, data, *meta)
	if err != nil {
		return err
	}
	return o.store.PutAnalysis(ctx, sha, result, "pipeline")
}

// AnalyzeItem runs C4 over a single evidence item, per the `analyze SHA256
// [--case-id ID] [--type T] [--force]` CLI contract. It takes no caseID:
// the CLI's --case-id is not passed down, since the store (C1) indexes
// evidence by sha256, not case; overrideType, when non-empty,
// bypasses mime-based classification. Idempotent unless force is true.
func (o *Orchestrator) AnalyzeItem(ctx context.Context, sha string, overrideType domain.EvidenceType, force bool) error {
	if !force {
		if _, err := o.store.GetAnalysis(ctx, sha); err == nil {
			return nil
		}
	}
	return o.analyzeOne(ctx, sha, overrideType)
}

// Correlate runs C5 (and, if a detector is configured, C6) over every
// evidence item currently linked to caseID, always overwriting any prior
// cases/<case_id>/correlation_analysis.json. aiResolve enables the optional, cost-bounded AI
// entity resolution pass (CLI: --ai-resolve); it defaults to off.
func (o *Orchestrator) Correlate(ctx context.Context, caseID string, aiResolve bool) (*StageReport, error) {
	report := &StageReport{Stage: "correlate"}
	shas, err := o.store.ListCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	analyses := make(map[string]*domain.UnifiedAnalysis)
	var contexts []correlate.EvidenceContext
	for _, sha := range shas {
		ua, err := o.store.GetAnalysis(ctx, sha)
		if err != nil {
			report.Failed++
			report.Results = append(report.Results, ItemResult{SHA256: sha, Err: err})
			continue
		}
		analyses[sha] = ua
		ec := correlate.EvidenceContext{SHA256: sha, EvidenceType: ua.EvidenceType, Analysis: ua, EmailRawDate: ua.EmailRawDate}
		if ua.EXIFCapturedAt != nil {
			ec.Exif = &correlate.ExifData{DateTimeOriginal: ua.EXIFCapturedAt}
		}
		contexts = append(contexts, ec)
		report.Succeeded++
		report.Results = append(report.Results, ItemResult{SHA256: sha})
	}

	result, err := o.engine.Run(ctx, caseID, analyses, contexts, aiResolve)
	if err != nil {
		return report, err
	}

	if o.detector != nil {
		summaries := make([]domain.EvidenceSummary, 0, len(analyses))
		for sha, ua := range analyses {
			summaries = append(summaries, summary.EvidenceSummaryOf(sha, ua))
		}
		patterns, err := o.detector.Detect(ctx, result, summaries)
		if err != nil {
			o.logger.Warn("pattern detection failed, continuing without legal_patterns", "case_id", caseID, "error", err)
		} else {
			result.LegalPatterns = patterns
		}
	}

	if err := o.store.PutCorrelation(ctx, caseID, result); err != nil {
		return report, err
	}
	if o.events != nil {
		if err := o.events.PublishCaseCorrelated(ctx, caseID); err != nil {
			o.logger.Warn("failed to publish case_correlated event", "case_id", caseID, "error", err)
		}
	}
	return report, nil
}

// Summarize runs C7 over the case's current correlation result, producing
// and persisting cases/<case_id>/case_summary.json. caseType, when non-empty, selects the
// §4.7 case-type-specific executive-summary prompt variant (CLI:
// process-case --case-type).
func (o *Orchestrator) Summarize(ctx context.Context, caseID, caseType string) (*StageReport, error) {
	report := &StageReport{Stage: "summarize"}
	correlation, err := o.store.GetCorrelation(ctx, caseID)
	if err != nil {
		return nil, err
	}
	shas, err := o.store.ListCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	analyses := make(map[string]*domain.UnifiedAnalysis)
	for _, sha := range shas {
		ua, err := o.store.GetAnalysis(ctx, sha)
		if err != nil {
			report.Failed++
			report.Results = append(report.Results, ItemResult{SHA256: sha, Err: err})
			continue
		}
		analyses[sha] = ua
		report.Succeeded++
		report.Results = append(report.Results, ItemResult{SHA256: sha})
	}

	cs, err := o.aggregator.BuildCaseSummary(ctx, caseID, analyses, correlation, caseType)
	if err != nil {
		return report, err
	}
	if err := o.store.PutCaseSummary(ctx, caseID, cs); err != nil {
		return report, err
	}
	if o.events != nil {
		if err := o.events.PublishCaseSummarized(ctx, caseID); err != nil {
			o.logger.Warn("failed to publish case_summarized event", "case_id", caseID, "error", err)
		}
	}
	return report, nil
}

// ProcessCase runs all four stages in sequence: Ingest (if items given) ->
// Analyze -> Correlate -> Summarize. When items are given, Analyze runs
// over the newly ingested items only; otherwise it runs over every item
// already linked to the case. Correlate and Summarize always cover every
// item linked to the case. A stage failure on individual items never halts
// the pipeline; only a stage-level infrastructure error (e.g. store
// unreachable) short-circuits the remaining stages.
func (o *Orchestrator) ProcessCase(ctx context.Context, caseID, actor string, items []IngestItem, force, aiResolve bool, caseType string) (*CaseReport, error) {
	report := &CaseReport{CaseID: caseID}

	var shas []string
	if len(items) > 0 {
		ingestReport, newShas, err := o.Ingest(ctx, caseID, actor, items)
		if err != nil {
			return report, err
		}
		report.Ingest = ingestReport
		shas = newShas
	} else {
		listed, err := o.store.ListCase(ctx, caseID)
		if err != nil {
			return report, err
		}
		shas = listed
	}

	analyzeReport, err := o.Analyze(ctx, caseID, shas, force)
	if err != nil {
		return report, err
	}
	report.Analyze = analyzeReport

	correlateReport, err := o.Correlate(ctx, caseID, aiResolve)
	if err != nil {
		return report, err
	}
	report.Correlate = correlateReport

	summarizeReport, err := o.Summarize(ctx, caseID, caseType)
	if err != nil {
		return report, err
	}
	report.Summarize = summarizeReport

	return report, nil
}

// Reanalyze re-runs C4 (force=true) over every evidence item in caseID
// whose current evidence_type matches filterType (empty matches all), then
// re-runs C5-C7 so downstream artifacts stay consistent. It re-correlates
// without AI entity resolution and re-summarizes without a case-type
// override: reanalyze's CLI contract carries neither flag.
func (o *Orchestrator) Reanalyze(ctx context.Context, caseID string, filterType domain.EvidenceType, dryRun bool) (*StageReport, error) {
	shas, err := o.store.ListCase(ctx, caseID)
	if err != nil {
		return nil, err
	}

	var targets []string
	for _, sha := range shas {
		ua, err := o.store.GetAnalysis(ctx, sha)
		if err != nil {
			continue
		}
		if filterType == "" || ua.EvidenceType == filterType {
			targets = append(targets, sha)
		}
	}

	report := &StageReport{Stage: "reanalyze"}
	if dryRun {
		for _, sha := range targets {
			report.Results = append(report.Results, ItemResult{SHA256: sha})
		}
		report.Succeeded = len(targets)
		return report, nil
	}

	analyzeReport, err := o.Analyze(ctx, caseID, targets, true)
	if err != nil {
		return nil, err
	}
	if _, err := o.Correlate(ctx, caseID, false); err != nil {
		return analyzeReport, fmt.Errorf("reanalyze: correlate after reanalyze: %w", err)
	}
	if _, err := o.Summarize(ctx, caseID, ""); err != nil {
		return analyzeReport, fmt.Errorf("reanalyze: summarize after reanalyze: %w", err)
	}
	return analyzeReport, nil
}

// Package pattern implements C6, the Pattern Detector: a single bounded-
// context AI call over a case's correlated entities, timeline, and
// per-evidence summaries, producing contradictions, corroboration links,
// and evidence gaps.
package pattern

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/csic-platform/forensic-evidence-platform/internal/core/analyze"
	"github.com/csic-platform/forensic-evidence-platform/internal/core/domain"
	"github.com/csic-platform/forensic-evidence-platform/internal/core/ports"
)

const (
	defaultTopEntities   = 20
	defaultRecentEvents  = 30
	defaultSummaryCount  = 10
)

type Config struct {
	TopEntities  int
	RecentEvents int
	SummaryCount int
}

func (c Config) withDefaults() Config {
	if c.TopEntities <= 0 {
		c.TopEntities = defaultTopEntities
	}
	if c.RecentEvents <= 0 {
		c.RecentEvents = defaultRecentEvents
	}
	if c.SummaryCount <= 0 {
		c.SummaryCount = defaultSummaryCount
	}
	return c
}

type Detector struct {
	ai       ports.AIProvider // may be nil; Detect then degrades to nil patterns
	registry *analyze.Registry
	cfg      Config
	logger   ports.Logger
}

func NewDetector(ai ports.AIProvider, registry *analyze.Registry, cfg Config, logger ports.Logger) *Detector {
	return &Detector{ai: ai, registry: registry, cfg: cfg.withDefaults(), logger: logger}
}

type boundedContext struct {
	Entities  []domain.CorrelatedEntity `json:"entities"`
	Events    []domain.TimelineEvent    `json:"recent_events"`
	Summaries []domain.EvidenceSummary  `json:"summaries"`
}

// Detect builds the bounded context described in §4.6 (top N entities by
// occurrence_count, the N most recent timeline events, the first N evidence
// summaries) and asks C3 for a LegalPatternAnalysis. If the AI provider is
// unavailable, times out, refuses, or returns an incomplete response, Detect
// returns (nil, nil): absence of patterns is not a pipeline failure.
func (d *Detector) Detect(ctx context.Context, correlation *domain.CorrelationAnalysis, summaries []domain.EvidenceSummary) (*domain.LegalPatternAnalysis, error) {
	if d.ai == nil {
		d.logger.Debug("pattern detection skipped: no AI provider configured")
		return nil, nil
	}

	bc := boundedContext{
		Entities:  topEntities(correlation.EntityCorrelations, d.cfg.TopEntities),
		Events:    recentEvents(nonIngestionEvents(correlation.TimelineEvents), d.cfg.RecentEvents),
		Summaries: firstSummaries(summaries, d.cfg.SummaryCount),
	}

	prompt := d.registry.Get("pattern", "")

	var raw domain.LegalPatternAnalysis
	err := d.ai.GenerateStructured(ctx, prompt.SystemPrompt, renderContext(bc), &raw)
	if err != nil {
		switch domain.KindOf(err) {
		case domain.KindConfigMissing, domain.KindAIRefusal, domain.KindAIIncomplete, domain.KindAITimeout, domain.KindAIRateLimited:
			d.logger.Warn("pattern detection unavailable, case proceeds without legal_patterns", "error", err)
			return nil, nil
		default:
			return nil, err
		}
	}

	validSHA := make(map[string]bool, len(correlation.TimelineEvents))
	for _, e := range correlation.TimelineEvents {
		validSHA[e.EvidenceSHA256] = true
	}
	raw.Contradictions = filterContradictions(raw.Contradictions, validSHA, d.logger)
	raw.Corroboration = filterCorroboration(raw.Corroboration, validSHA, d.logger)

	return &raw, nil
}

// renderContext serializes the bounded context to JSON for the prompt's user
// message; GenerateStructured takes the context as a plain string.
func renderContext(bc boundedContext) string {
	b, err := json.Marshal(bc)
	if err != nil {
		return ""
	}
	return string(b)
}

func topEntities(entities []domain.CorrelatedEntity, n int) []domain.CorrelatedEntity {
	// entities is already sorted by (occurrence_count desc, confidence_average desc).
	if len(entities) <= n {
		return entities
	}
	return entities[:n]
}

// nonIngestionEvents drops file_created/file_modified/analysis_performed
// events from the timeline before it feeds the bounded context: these mark
// evidence handling, not case-relevant activity, and would otherwise crowd
// out substantive events from the N-most-recent window.
func nonIngestionEvents(events []domain.TimelineEvent) []domain.TimelineEvent {
	filtered := make([]domain.TimelineEvent, 0, len(events))
	for _, e := range events {
		if domain.IsIngestionArtifact(e.EventType) {
			continue
		}
		filtered = append(filtered, e)
	}
	return filtered
}

func recentEvents(events []domain.TimelineEvent, n int) []domain.TimelineEvent {
	if len(events) <= n {
		return events
	}
	ordered := make([]domain.TimelineEvent, len(events))
	copy(ordered, events)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Timestamp.After(ordered[j].Timestamp) })
	return ordered[:n]
}

func firstSummaries(summaries []domain.EvidenceSummary, n int) []domain.EvidenceSummary {
	if len(summaries) <= n {
		return summaries
	}
	return summaries[:n]
}

// filterContradictions drops any contradiction whose statement sources are
// not sha256 identifiers present in this case, per §4.6's "only reference
// evidence present in the provided context" constraint.
func filterContradictions(in []domain.Contradiction, validSHA map[string]bool, logger ports.Logger) []domain.Contradiction {
	var out []domain.Contradiction
	for _, c := range in {
		if !validSHA[c.Statement1Source] || !validSHA[c.Statement2Source] {
			logger.Warn("dropping contradiction with out-of-case source reference", "source1", c.Statement1Source, "source2", c.Statement2Source)
			continue
		}
		out = append(out, c)
	}
	return out
}

func filterCorroboration(in []domain.CorroborationLink, validSHA map[string]bool, logger ports.Logger) []domain.CorroborationLink {
	var out []domain.CorroborationLink
	for _, c := range in {
		var kept []string
		for _, sha := range c.SupportingEvidence {
			if validSHA[sha] {
				kept = append(kept, sha)
			} else {
				logger.Warn("dropping out-of-case supporting evidence reference", "sha256", sha)
			}
		}
		if len(kept) < 2 {
			// corroboration requires at least two independent sources by definition
			continue
		}
		c.SupportingEvidence = kept
		out = append(out, c)
	}
	return out
}

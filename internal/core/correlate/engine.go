package correlate

import (
	"context"
	"fmt"
	"time"

	"github.com/csic-platform/forensic-evidence-platform/internal/core/domain"
	"github.com/csic-platform/forensic-evidence-platform/internal/core/ports"
)

type Config struct {
	TemporalWindowHours int
	GapThresholdHours   int
	AIResolveMaxPairs   int
}

type Engine struct {
	ai     ports.AIProvider // may be nil; AI resolution then skipped
	cfg    Config
	logger ports.Logger
}

func NewEngine(ai ports.AIProvider, cfg Config, logger ports.Logger) *Engine {
	return &Engine{ai: ai, cfg: cfg, logger: logger}
}

// entityResolutionResponse is the schema for the optional AI "same entity?"
// call described in §4.5.
type entityResolutionResponse struct {
	IsSameEntity       bool     `json:"is_same_entity"`
	Confidence         float64  `json:"confidence"`
	Reasoning          string   `json:"reasoning"`
	SupportingSignals  []string `json:"supporting_signals"`
	ConflictingSignals []string `json:"conflicting_signals"`
}

// Run builds the full CorrelationAnalysis for a case: entity correlation,
// timeline reconstruction, temporal sequences, and timeline gaps. AI entity
// resolution runs only if aiResolve is true and an AI provider is
// configured; its absence or failure degrades gracefully (the string-
// canonicalized result stands unchanged).
func (e *Engine) Run(ctx context.Context, caseID string, analyses map[string]*domain.UnifiedAnalysis, contexts []EvidenceContext, aiResolve bool) (*domain.CorrelationAnalysis, error) {
	entities := BuildCorrelatedEntities(analyses)
	if aiResolve && e.ai != nil {
		entities = e.resolveAmbiguousPersons(ctx, entities)
	}

	timeline := BuildTimeline(contexts)
	sequences := BuildTemporalSequences(timeline, e.cfg.TemporalWindowHours)
	gaps := BuildTimelineGaps(timeline, e.cfg.GapThresholdHours)

	return &domain.CorrelationAnalysis{
		SchemaVersion:      domain.SchemaVersion,
		CaseID:             caseID,
		EvidenceCount:      len(analyses),
		EntityCorrelations: entities,
		TimelineEvents:     timeline,
		TemporalSequences:  sequences,
		TimelineGaps:       gaps,
		AnalysisTimestamp:  time.Now().UTC(),
	}, nil
}

// resolveAmbiguousPersons compares up to AIResolveMaxPairs candidate person
// pairs and merges any the AI confirms are the same entity. Conservative
// bias: on AI error or low confidence, the pair is left unmerged (false
// negatives preferred per §4.5).
func (e *Engine) resolveAmbiguousPersons(ctx context.Context, entities []domain.CorrelatedEntity) []domain.CorrelatedEntity {
	var persons []int
	for i, ent := range entities {
		if ent.EntityType == domain.EntityPerson {
			persons = append(persons, i)
		}
	}

	merged := make(map[int]bool)
	pairsChecked := 0
	for a := 0; a < len(persons) && pairsChecked < e.cfg.AIResolveMaxPairs; a++ {
		for b := a + 1; b < len(persons) && pairsChecked < e.cfg.AIResolveMaxPairs; b++ {
			ia, ib := persons[a], persons[b]
			if merged[ia] || merged[ib] {
				continue
			}
			pairsChecked++

			prompt := fmt.Sprintf("Entity A: %q (seen in %d evidence items)\nEntity B: %q (seen in %d evidence items)\nAre these the same real-world person?",
				entities[ia].EntityName, entities[ia].OccurrenceCount, entities[ib].EntityName, entities[ib].OccurrenceCount)

			var resp entityResolutionResponse
			err := e.ai.GenerateStructured(ctx, "Determine if two entity mentions refer to the same person. Be conservative.", prompt, &resp)
			if err != nil {
				e.logger.Debug("entity resolution call failed, leaving entities unmerged", "error", err)
				continue
			}
			if !resp.IsSameEntity || resp.Confidence < 0.8 {
				continue
			}
			if len(resp.SupportingSignals) == 0 {
				continue
			}
			entities[ia] = mergeEntities(entities[ia], entities[ib])
			merged[ib] = true
		}
	}

	if len(merged) == 0 {
		return entities
	}
	out := make([]domain.CorrelatedEntity, 0, len(entities)-len(merged))
	for i, ent := range entities {
		if !merged[i] {
			out = append(out, ent)
		}
	}
	return out
}

func mergeEntities(a, b domain.CorrelatedEntity) domain.CorrelatedEntity {
	seen := make(map[string]bool)
	var occ []domain.EntityOccurrence
	var sum float64
	name := a.EntityName
	if len(b.EntityName) > len(name) {
		name = b.EntityName
	}
	for _, o := range append(append([]domain.EntityOccurrence{}, a.EvidenceOccurrences...), b.EvidenceOccurrences...) {
		if seen[o.EvidenceSHA256] {
			continue
		}
		seen[o.EvidenceSHA256] = true
		occ = append(occ, o)
		sum += o.Confidence
	}
	return domain.CorrelatedEntity{
		EntityName: name, EntityType: domain.EntityPerson, OccurrenceCount: len(occ),
		ConfidenceAverage: round4(sum / float64(len(occ))), EvidenceOccurrences: occ,
	}
}

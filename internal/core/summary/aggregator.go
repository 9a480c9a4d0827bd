// Package summary implements C7, the Summary Aggregator: per-evidence key
// findings, the case-level overall_assessment, and executive summary
// generation (single-shot or map-reduce chunked for large cases).
package summary

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/csic-platform/forensic-evidence-platform/internal/core/analyze"
	"github.com/csic-platform/forensic-evidence-platform/internal/core/domain"
	"github.com/csic-platform/forensic-evidence-platform/internal/core/ports"
)

const chunkSize = 30
const mapReduceThreshold = 50

type Config struct {
	CaseType string // "", "employment"/"workplace", "contract" — selects the summary prompt variant
}

type Aggregator struct {
	ai       ports.AIProvider // may be nil; ExecutiveSummary then nil
	registry *analyze.Registry
	cfg      Config
	logger   ports.Logger
}

func NewAggregator(ai ports.AIProvider, registry *analyze.Registry, cfg Config, logger ports.Logger) *Aggregator {
	return &Aggregator{ai: ai, registry: registry, cfg: cfg, logger: logger}
}

// EvidenceSummaryOf extracts the type-specific key findings for one evidence
// item, per §4.7.
func EvidenceSummaryOf(sha256 string, ua *domain.UnifiedAnalysis) domain.EvidenceSummary {
	var findings []string
	switch {
	case ua.DocumentAnalysis != nil:
		findings = append(findings, fmt.Sprintf("summary: %s", ua.DocumentAnalysis.Summary))
		if len(ua.DocumentAnalysis.RiskFlags) > 0 {
			findings = append(findings, fmt.Sprintf("risk flags: %s", joinRiskFlags(ua.DocumentAnalysis.RiskFlags)))
		}
		for _, e := range ua.DocumentAnalysis.Entities {
			if e.QuotedText != "" {
				findings = append(findings, fmt.Sprintf("quoted statement (%s): %q", e.Name, e.QuotedText))
			}
		}
	case ua.EmailAnalysis != nil:
		findings = append(findings, fmt.Sprintf("thread: %s", ua.EmailAnalysis.ThreadSummary))
		findings = append(findings, fmt.Sprintf("communication pattern: %s", ua.EmailAnalysis.CommunicationPattern))
		for _, esc := range ua.EmailAnalysis.EscalationEvents {
			findings = append(findings, fmt.Sprintf("escalation (%s): %s", esc.Type, esc.Description))
		}
	case ua.ImageAnalysis != nil:
		findings = append(findings, fmt.Sprintf("scene: %s", ua.ImageAnalysis.SceneDescription))
		if ua.ImageAnalysis.DetectedText != "" {
			findings = append(findings, fmt.Sprintf("ocr text: %s", ua.ImageAnalysis.DetectedText))
		}
	}
	return domain.EvidenceSummary{EvidenceSHA256: sha256, EvidenceType: ua.EvidenceType, KeyFindings: findings}
}

func joinRiskFlags(flags []domain.RiskFlag) string {
	parts := make([]string, len(flags))
	for i, f := range flags {
		parts[i] = string(f)
	}
	return strings.Join(parts, ", ")
}

// BuildCaseSummary assembles the full CaseSummary artifact: per-evidence
// findings, overall_assessment, and (if an AI provider is configured) an
// executive summary.
// caseType, when non-empty, overrides Config.CaseType for this call,
// selecting the "summary.<caseType>" prompt variant (e.g. "employment",
// "contract") described in §4.7.
func (a *Aggregator) BuildCaseSummary(ctx context.Context, caseID string, analyses map[string]*domain.UnifiedAnalysis, correlation *domain.CorrelationAnalysis, caseType string) (*domain.CaseSummary, error) {
	shas := make([]string, 0, len(analyses))
	for sha := range analyses {
		shas = append(shas, sha)
	}
	sort.Strings(shas)

	evidenceSummaries := make([]domain.EvidenceSummary, 0, len(shas))
	evidenceTypesSeen := make(map[domain.EvidenceType]bool)
	for _, sha := range shas {
		ua := analyses[sha]
		evidenceSummaries = append(evidenceSummaries, EvidenceSummaryOf(sha, ua))
		evidenceTypesSeen[ua.EvidenceType] = true
	}
	var evidenceTypes []domain.EvidenceType
	for t := range evidenceTypesSeen {
		evidenceTypes = append(evidenceTypes, t)
	}
	sort.Slice(evidenceTypes, func(i, j int) bool { return evidenceTypes[i] < evidenceTypes[j] })

	overall := a.buildOverallAssessment(analyses, correlation)

	cs := &domain.CaseSummary{
		SchemaVersion:       domain.SchemaVersion,
		CaseID:              caseID,
		GenerationTimestamp: time.Now().UTC(),
		EvidenceCount:       len(analyses),
		EvidenceTypes:       evidenceTypes,
		EvidenceSummaries:   evidenceSummaries,
		CorrelationResult:   *correlation,
		OverallAssessment:   overall,
	}

	exec, err := a.generateExecutiveSummary(ctx, evidenceSummaries, correlation, caseType)
	if err != nil {
		return nil, err
	}
	cs.ExecutiveSummary = exec
	return cs, nil
}

// buildOverallAssessment computes the case_summary.json overall_assessment
// map described in §4.7: confidence, significance distribution, risk flag
// breakdown, correlation/timeline counts, power dynamics and communication
// patterns (from email evidence), quoted statements (from document
// entities), and OCR text (from image evidence).
func (a *Aggregator) buildOverallAssessment(analyses map[string]*domain.UnifiedAnalysis, correlation *domain.CorrelationAnalysis) map[string]interface{} {
	var confSum float64
	var confCount int
	sigDist := make(map[domain.LegalSignificance]int)
	riskCount := make(map[domain.RiskFlag]int)
	overallSig := domain.SignificanceLow
	var quotedStatements []string
	var commPatterns []string
	var ocrText []string
	var powerDynamics []map[string]interface{}

	for _, ua := range analyses {
		switch {
		case ua.DocumentAnalysis != nil:
			confSum += ua.DocumentAnalysis.ConfidenceOverall
			confCount++
			sigDist[ua.DocumentAnalysis.LegalSignificance]++
			if domain.HigherSignificance(ua.DocumentAnalysis.LegalSignificance, overallSig) {
				overallSig = ua.DocumentAnalysis.LegalSignificance
			}
			for _, f := range ua.DocumentAnalysis.RiskFlags {
				riskCount[f]++
			}
			for _, e := range ua.DocumentAnalysis.Entities {
				if e.QuotedText != "" {
					quotedStatements = append(quotedStatements, e.QuotedText)
				}
			}
		case ua.EmailAnalysis != nil:
			confSum += ua.EmailAnalysis.ConfidenceOverall
			confCount++
			sigDist[ua.EmailAnalysis.LegalSignificance]++
			if domain.HigherSignificance(ua.EmailAnalysis.LegalSignificance, overallSig) {
				overallSig = ua.EmailAnalysis.LegalSignificance
			}
			for _, f := range ua.EmailAnalysis.RiskFlags {
				riskCount[f]++
			}
			commPatterns = append(commPatterns, string(ua.EmailAnalysis.CommunicationPattern))
			for _, p := range ua.EmailAnalysis.Participants {
				powerDynamics = append(powerDynamics, map[string]interface{}{
					"participant":     p.DisplayName,
					"authority_level": p.AuthorityLevel,
					"deference_score": p.DeferenceScore,
				})
			}
		case ua.ImageAnalysis != nil:
			confSum += ua.ImageAnalysis.ConfidenceOverall
			confCount++
			for _, f := range ua.ImageAnalysis.RiskFlags {
				riskCount[f]++
			}
			if ua.ImageAnalysis.DetectedText != "" {
				ocrText = append(ocrText, ua.ImageAnalysis.DetectedText)
			}
		}
	}

	var overallConfidence float64
	if confCount > 0 {
		overallConfidence = round4(confSum / float64(confCount))
	}

	var relationshipNetwork []map[string]interface{}
	for _, ent := range correlation.EntityCorrelations {
		if ent.EntityType != domain.EntityPerson && ent.EntityType != domain.EntityOrganization {
			continue
		}
		for _, occ := range ent.EvidenceOccurrences {
			relationshipNetwork = append(relationshipNetwork, map[string]interface{}{
				"entity": ent.EntityName, "evidence_sha256": occ.EvidenceSHA256, "context": occ.Context,
			})
		}
	}

	assessment := map[string]interface{}{
		"overall_confidence":             overallConfidence,
		"legal_significance_distribution": sigDist,
		"overall_legal_significance":     overallSig,
		"risk_flag_breakdown":            riskCount,
		"entity_correlations_found":      len(correlation.EntityCorrelations),
		"timeline_events_count":          len(correlation.TimelineEvents),
		"temporal_sequences_count":       len(correlation.TemporalSequences),
		"timeline_gaps_count":            len(correlation.TimelineGaps),
		"evidence_type_distribution":     typeDistribution(analyses),
	}
	if len(quotedStatements) > 0 {
		assessment["quoted_statements"] = quotedStatements
	}
	if len(commPatterns) > 0 {
		assessment["communication_patterns"] = commPatterns
	}
	if len(ocrText) > 0 {
		assessment["image_ocr"] = ocrText
	}
	if len(powerDynamics) > 0 {
		assessment["power_dynamics"] = powerDynamics
	}
	if len(relationshipNetwork) > 0 {
		assessment["relationship_network"] = relationshipNetwork
	}
	return assessment
}

func typeDistribution(analyses map[string]*domain.UnifiedAnalysis) map[domain.EvidenceType]int {
	dist := make(map[domain.EvidenceType]int)
	for _, ua := range analyses {
		dist[ua.EvidenceType]++
	}
	return dist
}

func round4(f float64) float64 {
	return float64(int64(f*10000+0.5)) / 10000
}

// generateExecutiveSummary produces the final ExecutiveSummaryResponse. For
// cases with more than mapReduceThreshold evidence items it map-reduces over
// chunks of chunkSize, running one errgroup goroutine per chunk (the chunk
// calls are not limited to a maximum number in flight), then reduces with
// one final call. Nil AI provider degrades to a nil
// executive summary, matching C6's degradation contract.
func (a *Aggregator) generateExecutiveSummary(ctx context.Context, summaries []domain.EvidenceSummary, correlation *domain.CorrelationAnalysis, caseType string) (*domain.ExecutiveSummaryResponse, error) {
	if a.ai == nil {
		a.logger.Debug("executive summary skipped: no AI provider configured")
		return nil, nil
	}

	prompt := a.registry.Get("summary", a.resolveCaseType(caseType))

	var contextText string
	if len(summaries) <= mapReduceThreshold {
		contextText = renderSummaries(summaries, correlation)
	} else {
		chunks := chunkSummaries(summaries, chunkSize)
		chunkResults := make([]domain.ChunkSummary, len(chunks))

		g, gctx := errgroup.WithContext(ctx)
		chunkPrompt := a.registry.Get("chunk", "")
		for i, chunk := range chunks {
			i, chunk := i, chunk
			g.Go(func() error {
				var cs domain.ChunkSummary
				if err := a.ai.GenerateStructured(gctx, chunkPrompt.SystemPrompt, renderSummaries(chunk, nil), &cs); err != nil {
					return err
				}
				cs.ChunkIndex = i
				chunkResults[i] = cs
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			switch domain.KindOf(err) {
			case domain.KindConfigMissing, domain.KindAIRefusal, domain.KindAIIncomplete, domain.KindAITimeout, domain.KindAIRateLimited:
				a.logger.Warn("chunk summarization unavailable, executive summary omitted", "error", err)
				return nil, nil
			default:
				return nil, err
			}
		}
		contextText = renderChunks(chunkResults, correlation)
	}

	var resp domain.ExecutiveSummaryResponse
	err := a.ai.GenerateStructured(ctx, prompt.SystemPrompt, contextText, &resp)
	if err != nil {
		switch domain.KindOf(err) {
		case domain.KindConfigMissing, domain.KindAIRefusal, domain.KindAIIncomplete, domain.KindAITimeout, domain.KindAIRateLimited:
			a.logger.Warn("executive summary unavailable", "error", err)
			return nil, nil
		default:
			return nil, err
		}
	}
	return &resp, nil
}

// resolveCaseType prefers a per-call override (the CLI's --case-type) and
// falls back to the Aggregator's configured default.
func (a *Aggregator) resolveCaseType(override string) string {
	if override != "" {
		return override
	}
	return a.cfg.CaseType
}

func chunkSummaries(summaries []domain.EvidenceSummary, size int) [][]domain.EvidenceSummary {
	var chunks [][]domain.EvidenceSummary
	for i := 0; i < len(summaries); i += size {
		end := i + size
		if end > len(summaries) {
			end = len(summaries)
		}
		chunks = append(chunks, summaries[i:end])
	}
	return chunks
}

func renderSummaries(summaries []domain.EvidenceSummary, correlation *domain.CorrelationAnalysis) string {
	var b strings.Builder
	for _, s := range summaries {
		fmt.Fprintf(&b, "[%s %s]\n", s.EvidenceSHA256[:12], s.EvidenceType)
		for _, f := range s.KeyFindings {
			fmt.Fprintf(&b, "- %s\n", f)
		}
	}
	if correlation != nil {
		fmt.Fprintf(&b, "\nentities: %d, timeline events: %d, gaps: %d\n",
			len(correlation.EntityCorrelations), len(correlation.TimelineEvents), len(correlation.TimelineGaps))
	}
	return b.String()
}

func renderChunks(chunks []domain.ChunkSummary, correlation *domain.CorrelationAnalysis) string {
	var b strings.Builder
	for _, c := range chunks {
		fmt.Fprintf(&b, "[chunk %d] %s\n", c.ChunkIndex, c.Summary)
		for _, p := range c.KeyPoints {
			fmt.Fprintf(&b, "- %s\n", p)
		}
	}
	if correlation != nil {
		fmt.Fprintf(&b, "\nentities: %d, timeline events: %d, gaps: %d\n",
			len(correlation.EntityCorrelations), len(correlation.TimelineEvents), len(correlation.TimelineGaps))
	}
	return b.String()
}

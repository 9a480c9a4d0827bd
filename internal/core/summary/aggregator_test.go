package summary

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csic-platform/forensic-evidence-platform/internal/adapter/ai"
	"github.com/csic-platform/forensic-evidence-platform/internal/core/analyze"
	"github.com/csic-platform/forensic-evidence-platform/internal/core/domain"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

func sha(n int) string {
	return fmt.Sprintf("%064d", n)
}

// combinedFakeResponse is shaped to satisfy both ChunkSummary and
// ExecutiveSummaryResponse unmarshaling, since the same FakeProvider default
// response backs both the map and the reduce stage in the >50-item test.
var combinedFakeResponse = map[string]interface{}{
	"chunk_index":         0,
	"summary":             "chunk summary",
	"key_points":          []string{"a", "b"},
	"executive_summary":   "overall summary",
	"key_findings":        []string{"finding one", "finding two", "finding three"},
	"legal_implications":  []string{"implication"},
	"recommended_actions": []string{"action"},
	"risk_assessment":     "medium",
	"confidence_overall":  0.7,
}

func TestEvidenceSummaryOfExtractsPerTypeFindings(t *testing.T) {
	ua := &domain.UnifiedAnalysis{
		EvidenceType: domain.EvidenceDocument,
		DocumentAnalysis: &domain.DocumentAnalysis{
			Summary:   "a memo",
			RiskFlags: []domain.RiskFlag{domain.RiskHarassment},
			Entities:  []domain.DocumentEntity{{Name: "Jane Doe", QuotedText: "I quit"}},
		},
	}
	s := EvidenceSummaryOf(sha(1), ua)
	assert.Contains(t, s.KeyFindings, "summary: a memo")
	assert.Contains(t, s.KeyFindings, "risk flags: harassment")
	assert.Contains(t, s.KeyFindings, `quoted statement (Jane Doe): "I quit"`)
}

func TestBuildOverallAssessmentTracksHighestSignificanceAcrossTypes(t *testing.T) {
	a := NewAggregator(nil, analyze.NewRegistry(), Config{}, nopLogger{})
	analyses := map[string]*domain.UnifiedAnalysis{
		sha(1): {EvidenceType: domain.EvidenceDocument, DocumentAnalysis: &domain.DocumentAnalysis{
			ConfidenceOverall: 0.6, LegalSignificance: domain.SignificanceMedium,
		}},
		sha(2): {EvidenceType: domain.EvidenceEmail, EmailAnalysis: &domain.EmailThreadAnalysis{
			ConfidenceOverall: 0.8, LegalSignificance: domain.SignificanceCritical, CommunicationPattern: domain.CommHostile,
		}},
	}
	correlation := &domain.CorrelationAnalysis{}
	result, err := a.BuildCaseSummary(context.Background(), "case-1", analyses, correlation, "")
	require.NoError(t, err)
	assert.Equal(t, domain.SignificanceCritical, result.OverallAssessment["overall_legal_significance"])
	assert.Equal(t, 0.7, result.OverallAssessment["overall_confidence"])
	assert.Nil(t, result.ExecutiveSummary, "no AI provider configured means no executive summary")
}

func TestGenerateExecutiveSummarySingleShotBelowThreshold(t *testing.T) {
	provider := ai.NewFakeProvider()
	provider.SetDefaultResponse(combinedFakeResponse)
	a := NewAggregator(provider, analyze.NewRegistry(), Config{}, nopLogger{})

	summaries := []domain.EvidenceSummary{{EvidenceSHA256: sha(1), EvidenceType: domain.EvidenceDocument, KeyFindings: []string{"x"}}}
	resp, err := a.generateExecutiveSummary(context.Background(), summaries, &domain.CorrelationAnalysis{}, "")
	require.NoError(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, domain.RiskAssessMedium, resp.RiskAssessment)
	assert.Equal(t, 1, provider.GetCallCount())
}

func TestGenerateExecutiveSummaryMapReducesAboveThreshold(t *testing.T) {
	provider := ai.NewFakeProvider()
	provider.SetDefaultResponse(combinedFakeResponse)
	a := NewAggregator(provider, analyze.NewRegistry(), Config{}, nopLogger{})

	var summaries []domain.EvidenceSummary
	for i := 0; i < 65; i++ {
		summaries = append(summaries, domain.EvidenceSummary{EvidenceSHA256: sha(i), EvidenceType: domain.EvidenceDocument, KeyFindings: []string{"finding"}})
	}
	resp, err := a.generateExecutiveSummary(context.Background(), summaries, &domain.CorrelationAnalysis{}, "")
	require.NoError(t, err)
	require.NotNil(t, resp)
	// 65 items at chunkSize 30 -> 3 chunk calls + 1 reduce call.
	assert.Equal(t, 4, provider.GetCallCount())
}

func TestGenerateExecutiveSummaryDegradesOnConfigMissing(t *testing.T) {
	a := NewAggregator(ai.NewUnavailableProvider(), analyze.NewRegistry(), Config{}, nopLogger{})
	resp, err := a.generateExecutiveSummary(context.Background(), nil, &domain.CorrelationAnalysis{}, "")
	assert.NoError(t, err)
	assert.Nil(t, resp)
}

func TestResolveCaseTypePrefersOverrideThenFallsBackToConfig(t *testing.T) {
	a := NewAggregator(nil, analyze.NewRegistry(), Config{CaseType: "employment"}, nopLogger{})
	assert.Equal(t, "contract", a.resolveCaseType("contract"))
	assert.Equal(t, "employment", a.resolveCaseType(""))
}

func TestChunkSummariesSplitsIntoFixedSizeChunksWithShortLastChunk(t *testing.T) {
	var summaries []domain.EvidenceSummary
	for i := 0; i < 65; i++ {
		summaries = append(summaries, domain.EvidenceSummary{EvidenceSHA256: sha(i)})
	}
	chunks := chunkSummaries(summaries, 30)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 30)
	assert.Len(t, chunks[1], 30)
	assert.Len(t, chunks[2], 5)
}

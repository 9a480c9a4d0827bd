package pipeline

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csic-platform/forensic-evidence-platform/internal/adapter/ai"
	"github.com/csic-platform/forensic-evidence-platform/internal/adapter/logging"
	"github.com/csic-platform/forensic-evidence-platform/internal/adapter/storage"
	"github.com/csic-platform/forensic-evidence-platform/internal/core/analyze"
	"github.com/csic-platform/forensic-evidence-platform/internal/core/correlate"
	"github.com/csic-platform/forensic-evidence-platform/internal/core/domain"
	"github.com/csic-platform/forensic-evidence-platform/internal/core/pattern"
	"github.com/csic-platform/forensic-evidence-platform/internal/core/store"
	"github.com/csic-platform/forensic-evidence-platform/internal/core/summary"
)

func newTestOrchestrator(t *testing.T, provider *ai.FakeProvider) (*Orchestrator, *store.Store) {
	t.Helper()
	logger, err := logging.New("error", "console")
	require.NoError(t, err)
	blob, err := storage.NewLocalStorage(t.TempDir(), logger)
	require.NoError(t, err)
	st := store.New(blob, nil, nil, nil, logger)

	registry := analyze.NewRegistry()
	analyzer := analyze.NewService(provider, registry, analyze.NewDefaultTextExtractor(), analyze.NewDefaultEmailParser(), logger)
	engine := correlate.NewEngine(provider, correlate.Config{TemporalWindowHours: 72, GapThresholdHours: 168}, logger)
	detector := pattern.NewDetector(provider, registry, pattern.Config{}, logger)
	aggregator := summary.NewAggregator(provider, registry, summary.Config{}, logger)

	orch := NewOrchestrator(st, analyzer, engine, detector, aggregator, nil, Config{AIConcurrency: 2}, logger)
	return orch, st
}

func registerStandardDocumentResponse(provider *ai.FakeProvider) {
	provider.SetDefaultResponse(domain.DocumentAnalysis{
		Summary: "a short memo", DocumentType: domain.DocTypeLetter,
		Sentiment: domain.SentimentNeutral, LegalSignificance: domain.SignificanceMedium,
		ConfidenceOverall: 0.6,
	})
}

func TestProcessCaseRunsAllFourStagesEndToEnd(t *testing.T) {
	provider := ai.NewFakeProvider()
	registerStandardDocumentResponse(provider)
	orch, st := newTestOrchestrator(t, provider)
	ctx := context.Background()

	items := []IngestItem{
		{Reader: strings.NewReader("first memo contents"), Filename: "a.txt"},
		{Reader: strings.NewReader("second memo contents"), Filename: "b.txt"},
	}
	report, err := orch.ProcessCase(ctx, "case-1", "tester", items, false, false, "")
	require.NoError(t, err)

	require.NotNil(t, report.Ingest)
	assert.Equal(t, 2, report.Ingest.Succeeded)
	require.NotNil(t, report.Analyze)
	assert.Equal(t, 2, report.Analyze.Succeeded)
	require.NotNil(t, report.Correlate)
	require.NotNil(t, report.Summarize)

	cs, err := st.GetCaseSummary(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, 2, cs.EvidenceCount)
}

func TestAnalyzeIsIdempotentUnlessForced(t *testing.T) {
	provider := ai.NewFakeProvider()
	registerStandardDocumentResponse(provider)
	orch, _ := newTestOrchestrator(t, provider)
	ctx := context.Background()

	_, shas, err := orch.Ingest(ctx, "case-1", "tester", []IngestItem{{Reader: strings.NewReader("memo body"), Filename: "a.txt"}})
	require.NoError(t, err)

	_, err = orch.Analyze(ctx, "case-1", shas, false)
	require.NoError(t, err)
	firstCount := provider.GetCallCount()
	assert.Equal(t, 1, firstCount)

	report, err := orch.Analyze(ctx, "case-1", shas, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, firstCount, provider.GetCallCount(), "re-analyzing without force must not call the AI provider again")

	_, err = orch.Analyze(ctx, "case-1", shas, true)
	require.NoError(t, err)
	assert.Equal(t, firstCount+1, provider.GetCallCount(), "force must re-invoke the AI provider")
}

func TestAnalyzeAggregatesPerItemFailuresWithoutAbortingBatch(t *testing.T) {
	provider := ai.NewFakeProvider()
	registerStandardDocumentResponse(provider)
	orch, _ := newTestOrchestrator(t, provider)
	ctx := context.Background()

	_, shas, err := orch.Ingest(ctx, "case-1", "tester", []IngestItem{
		{Reader: strings.NewReader("good memo"), Filename: "a.txt"},
	})
	require.NoError(t, err)
	shas = append(shas, "sha-does-not-exist")

	report, err := orch.Analyze(ctx, "case-1", shas, false)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, 1, report.Failed)
	assert.False(t, report.Exhausted())
}

func TestReanalyzeDryRunListsTargetsWithoutReanalyzing(t *testing.T) {
	provider := ai.NewFakeProvider()
	registerStandardDocumentResponse(provider)
	orch, _ := newTestOrchestrator(t, provider)
	ctx := context.Background()

	_, shas, err := orch.Ingest(ctx, "case-1", "tester", []IngestItem{{Reader: strings.NewReader("memo body"), Filename: "a.txt"}})
	require.NoError(t, err)
	_, err = orch.Analyze(ctx, "case-1", shas, false)
	require.NoError(t, err)
	callsAfterAnalyze := provider.GetCallCount()

	report, err := orch.Reanalyze(ctx, "case-1", "", true)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)
	assert.Equal(t, callsAfterAnalyze, provider.GetCallCount(), "dry run must not invoke the AI provider")
}

func TestAnalyzeItemAppliesTypeOverrideAndForce(t *testing.T) {
	provider := ai.NewFakeProvider()
	registerStandardDocumentResponse(provider)
	orch, st := newTestOrchestrator(t, provider)
	ctx := context.Background()

	rawEmail := "From: a@example.com\r\nTo: b@example.com\r\nSubject: hi\r\nDate: Mon, 02 Jan 2006 15:04:05 -0700\r\n\r\nbody text\r\n"
	_, shas, err := orch.Ingest(ctx, "case-1", "tester", []IngestItem{{Reader: strings.NewReader(rawEmail), Filename: "thread.txt"}})
	require.NoError(t, err)
	sha := shas[0]

	err = orch.AnalyzeItem(ctx, sha, domain.EvidenceEmail, false)
	require.NoError(t, err)
	callsAfterFirst := provider.GetCallCount()

	ua, err := st.GetAnalysis(ctx, sha)
	require.NoError(t, err)
	assert.Equal(t, domain.EvidenceEmail, ua.EvidenceType)
	assert.NotNil(t, ua.EmailAnalysis)

	err = orch.AnalyzeItem(ctx, sha, domain.EvidenceEmail, false)
	require.NoError(t, err)
	assert.Equal(t, callsAfterFirst, provider.GetCallCount(), "re-analyzing without force must not call the AI provider again")

	err = orch.AnalyzeItem(ctx, sha, domain.EvidenceEmail, true)
	require.NoError(t, err)
	assert.Equal(t, callsAfterFirst+1, provider.GetCallCount(), "force must re-invoke the AI provider")
}

func TestCorrelateThreadsEmailRawDateIntoCommunicationEvent(t *testing.T) {
	provider := ai.NewFakeProvider()
	registerStandardDocumentResponse(provider)
	orch, st := newTestOrchestrator(t, provider)
	ctx := context.Background()

	rawEmail := "From: a@example.com\r\nTo: b@example.com\r\nSubject: hi\r\nDate: Mon, 02 Jan 2006 15:04:05 -0700\r\n\r\nbody text\r\n"
	_, shas, err := orch.Ingest(ctx, "case-1", "tester", []IngestItem{{Reader: strings.NewReader(rawEmail), Filename: "thread.txt"}})
	require.NoError(t, err)
	require.NoError(t, orch.AnalyzeItem(ctx, shas[0], domain.EvidenceEmail, false))

	_, err = orch.Correlate(ctx, "case-1", false)
	require.NoError(t, err)

	correlation, err := st.GetCorrelation(ctx, "case-1")
	require.NoError(t, err)

	found := false
	for _, ev := range correlation.TimelineEvents {
		if ev.EventType == domain.EventCommunication {
			found = true
		}
	}
	assert.True(t, found, "EmailRawDate must reach BuildTimeline as a communication event")
}

func TestReanalyzeForceRecorrelatesAndResummarizes(t *testing.T) {
	provider := ai.NewFakeProvider()
	registerStandardDocumentResponse(provider)
	orch, st := newTestOrchestrator(t, provider)
	ctx := context.Background()

	items := []IngestItem{{Reader: strings.NewReader("memo body"), Filename: "a.txt"}}
	_, err := orch.ProcessCase(ctx, "case-1", "tester", items, false, false, "")
	require.NoError(t, err)

	_, err = orch.Reanalyze(ctx, "case-1", domain.EvidenceDocument, false)
	require.NoError(t, err)

	cs, err := st.GetCaseSummary(ctx, "case-1")
	require.NoError(t, err)
	assert.Equal(t, 1, cs.EvidenceCount)
}

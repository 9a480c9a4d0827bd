package pattern

import (
	"context"
	"testing"
	"time"

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

func TestDetectReturnsNilWithoutErrorWhenAIUnconfigured(t *testing.T) {
	d := NewDetector(nil, analyze.NewRegistry(), Config{}, nopLogger{})
	result, err := d.Detect(context.Background(), &domain.CorrelationAnalysis{}, nil)
	assert.NoError(t, err)
	assert.Nil(t, result)
}

func TestDetectDegradesGracefullyWhenAIProviderIsUnavailable(t *testing.T) {
	d := NewDetector(ai.NewUnavailableProvider(), analyze.NewRegistry(), Config{}, nopLogger{})
	result, err := d.Detect(context.Background(), &domain.CorrelationAnalysis{}, nil)
	assert.NoError(t, err, "ConfigMissing must degrade to (nil, nil), not propagate")
	assert.Nil(t, result)
}

func TestDetectPropagatesUnexpectedErrorKinds(t *testing.T) {
	provider := ai.NewFakeProvider()
	provider.FailNextWith(domain.NewIntegrityError("ai.generate", "sha", assertFailure))
	d := NewDetector(provider, analyze.NewRegistry(), Config{}, nopLogger{})
	result, err := d.Detect(context.Background(), &domain.CorrelationAnalysis{}, nil)
	assert.Error(t, err)
	assert.Nil(t, result)
}

var assertFailure = errString("unexpected failure")

type errString string

func (e errString) Error() string { return string(e) }

func TestDetectFiltersOutOfCaseSourceReferences(t *testing.T) {
	provider := ai.NewFakeProvider()
	provider.SetDefaultResponse(domain.LegalPatternAnalysis{
		Contradictions: []domain.Contradiction{
			{Statement1Source: "sha-in-case", Statement2Source: "sha-in-case", ContradictionType: domain.ContradictionFactual},
			{Statement1Source: "sha-in-case", Statement2Source: "sha-not-in-case", ContradictionType: domain.ContradictionFactual},
		},
		Corroboration: []domain.CorroborationLink{
			{SupportingEvidence: []string{"sha-in-case", "sha-not-in-case"}, CorroborationStrength: domain.CorroborationWeak},
		},
	})
	d := NewDetector(provider, analyze.NewRegistry(), Config{}, nopLogger{})

	correlation := &domain.CorrelationAnalysis{
		TimelineEvents: []domain.TimelineEvent{{EvidenceSHA256: "sha-in-case"}},
	}
	result, err := d.Detect(context.Background(), correlation, nil)
	require.NoError(t, err)
	require.NotNil(t, result)
	assert.Len(t, result.Contradictions, 1, "contradiction referencing an out-of-case source must be dropped")
	assert.Empty(t, result.Corroboration, "corroboration left with fewer than two valid sources must be dropped")
}

func TestDetectExcludesIngestionArtifactsFromBoundedContext(t *testing.T) {
	provider := ai.NewFakeProvider()
	provider.SetDefaultResponse(domain.LegalPatternAnalysis{})
	d := NewDetector(provider, analyze.NewRegistry(), Config{}, nopLogger{})

	correlation := &domain.CorrelationAnalysis{
		TimelineEvents: []domain.TimelineEvent{
			{EvidenceSHA256: "sha-1", EventType: domain.EventFileCreated},
			{EvidenceSHA256: "sha-1", EventType: domain.EventAnalysisPerformed},
			{EvidenceSHA256: "sha-1", EventType: domain.EventCommunication},
		},
	}
	_, err := d.Detect(context.Background(), correlation, nil)
	require.NoError(t, err)
	assert.NotContains(t, provider.GetLastPrompt(), string(domain.EventFileCreated))
	assert.NotContains(t, provider.GetLastPrompt(), string(domain.EventAnalysisPerformed))
	assert.Contains(t, provider.GetLastPrompt(), string(domain.EventCommunication))
}

func TestNonIngestionEventsFiltersArtifactTypes(t *testing.T) {
	events := []domain.TimelineEvent{
		{EventType: domain.EventFileCreated},
		{EventType: domain.EventFileModified},
		{EventType: domain.EventAnalysisPerformed},
		{EventType: domain.EventCommunication},
	}
	filtered := nonIngestionEvents(events)
	require.Len(t, filtered, 1)
	assert.Equal(t, domain.EventCommunication, filtered[0].EventType)
}

func TestTopEntitiesTruncatesToN(t *testing.T) {
	entities := make([]domain.CorrelatedEntity, 25)
	for i := range entities {
		entities[i] = domain.CorrelatedEntity{EntityName: string(rune('a' + i))}
	}
	assert.Len(t, topEntities(entities, 20), 20)
	assert.Len(t, topEntities(entities[:5], 20), 5)
}

func TestRecentEventsReturnsMostRecentN(t *testing.T) {
	now := time.Now().UTC()
	events := []domain.TimelineEvent{
		{EventType: "old", Timestamp: now.Add(-72 * time.Hour)},
		{EventType: "newest", Timestamp: now},
		{EventType: "middle", Timestamp: now.Add(-24 * time.Hour)},
	}
	recent := recentEvents(events, 2)
	require.Len(t, recent, 2)
	assert.Equal(t, "newest", recent[0].EventType)
	assert.Equal(t, "middle", recent[1].EventType)
}

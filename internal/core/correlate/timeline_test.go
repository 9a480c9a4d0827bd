package correlate

import (
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csic-platform/forensic-evidence-platform/internal/core/domain"
)

func TestBuildTimelineIsSortedAscending(t *testing.T) {
	now := time.Now().UTC()
	items := []EvidenceContext{
		{
			SHA256: "sha-1", EvidenceType: domain.EvidenceDocument,
			Analysis: &domain.UnifiedAnalysis{
				FileMetadata:      domain.FileMetadata{Filename: "a.txt", Created: now.Add(48 * time.Hour), Modified: now.Add(48 * time.Hour)},
				AnalysisTimestamp: now.Add(49 * time.Hour),
			},
		},
		{
			SHA256: "sha-2", EvidenceType: domain.EvidenceDocument,
			Analysis: &domain.UnifiedAnalysis{
				FileMetadata:      domain.FileMetadata{Filename: "b.txt", Created: now, Modified: now},
				AnalysisTimestamp: now.Add(time.Hour),
			},
		},
	}
	events := BuildTimeline(items)
	require.NotEmpty(t, events)
	assert.True(t, sort.SliceIsSorted(events, func(i, j int) bool {
		return events[i].Timestamp.Before(events[j].Timestamp)
	}))
	assert.Equal(t, "sha-2", events[0].EvidenceSHA256)
}

func TestBuildTimelineSkipsUnmodifiedFileModifiedEvent(t *testing.T) {
	now := time.Now().UTC()
	items := []EvidenceContext{
		{
			SHA256: "sha-1", EvidenceType: domain.EvidenceDocument,
			Analysis: &domain.UnifiedAnalysis{
				FileMetadata:      domain.FileMetadata{Filename: "a.txt", Created: now, Modified: now},
				AnalysisTimestamp: now,
			},
		},
	}
	events := BuildTimeline(items)
	for _, e := range events {
		assert.NotEqual(t, domain.EventFileModified, e.EventType)
	}
}

func TestBuildTimelineExtractsEmailCommunicationEvent(t *testing.T) {
	now := time.Now().UTC()
	items := []EvidenceContext{
		{
			SHA256: "sha-email", EvidenceType: domain.EvidenceEmail,
			Analysis: &domain.UnifiedAnalysis{
				FileMetadata:      domain.FileMetadata{Filename: "thread.eml", Created: now, Modified: now},
				AnalysisTimestamp: now,
				EmailAnalysis:     &domain.EmailThreadAnalysis{CommunicationPattern: domain.CommHostile},
			},
			EmailRawDate: "Mon, 02 Jan 2024 15:04:05 -0700",
		},
	}
	events := BuildTimeline(items)
	var found bool
	for _, e := range events {
		if e.EventType == domain.EventCommunication {
			found = true
			require.NotNil(t, e.AIClassification)
			assert.Equal(t, string(domain.CommHostile), e.AIClassification.Pattern)
		}
	}
	assert.True(t, found, "expected a communication event parsed from the email Date header")
}

func TestParseFlexibleDateFormats(t *testing.T) {
	cases := []string{"2024-01-02", "02/01/2024", "2nd January 2024", "January 2024"}
	for _, raw := range cases {
		_, ok := ParseFlexibleDate(raw)
		assert.True(t, ok, "expected %q to parse", raw)
	}
	_, ok := ParseFlexibleDate("not a date")
	assert.False(t, ok)
}

func TestBuildTemporalSequencesGroupsWithinWindow(t *testing.T) {
	base := time.Now().UTC()
	events := []domain.TimelineEvent{
		{
			Timestamp: base, EventType: domain.EventCommunication,
			AIClassification: &domain.AIClassification{LegalSignificance: domain.SignificanceCritical},
		},
		{Timestamp: base.Add(10 * time.Hour), EventType: domain.EventCommunication},
		{Timestamp: base.Add(100 * time.Hour), EventType: domain.EventCommunication},
	}
	sequences := BuildTemporalSequences(events, 72)
	require.Len(t, sequences, 1)
	assert.Equal(t, 0, sequences[0].AnchorEventIndex)
	assert.Len(t, sequences[0].RelatedEvents, 1)
	assert.Equal(t, domain.SignificanceHigh, sequences[0].Significance)
}

func TestBuildTimelineGapsDetectsLargeGaps(t *testing.T) {
	base := time.Now().UTC()
	events := []domain.TimelineEvent{
		{Timestamp: base, EventType: domain.EventCommunication},
		{Timestamp: base.Add(31 * 24 * time.Hour), EventType: domain.EventCommunication},
	}
	gaps := BuildTimelineGaps(events, 168)
	require.Len(t, gaps, 1)
	assert.Equal(t, domain.SignificanceHigh, gaps[0].Significance)
}

func TestBuildTimelineGapsIgnoresIngestionArtifacts(t *testing.T) {
	base := time.Now().UTC()
	events := []domain.TimelineEvent{
		{Timestamp: base, EventType: domain.EventFileCreated},
		{Timestamp: base.Add(60 * 24 * time.Hour), EventType: domain.EventFileModified},
	}
	gaps := BuildTimelineGaps(events, 168)
	assert.Empty(t, gaps, "ingestion-artifact-only events should not produce a gap")
}

package correlate

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csic-platform/forensic-evidence-platform/internal/core/domain"
)

func docAnalysis(entities ...domain.DocumentEntity) *domain.UnifiedAnalysis {
	return &domain.UnifiedAnalysis{
		EvidenceType:     domain.EvidenceDocument,
		DocumentAnalysis: &domain.DocumentAnalysis{Entities: entities},
	}
}

func TestBuildCorrelatedEntitiesRequiresTwoDistinctEvidenceItems(t *testing.T) {
	analyses := map[string]*domain.UnifiedAnalysis{
		"sha-only-one": docAnalysis(domain.DocumentEntity{Name: "Jane Doe", Type: domain.EntityPerson, Confidence: 0.9}),
	}
	entities := BuildCorrelatedEntities(analyses)
	assert.Empty(t, entities, "a name mentioned in only one evidence item must not correlate")
}

func TestBuildCorrelatedEntitiesCorrelatesAcrossVariants(t *testing.T) {
	analyses := map[string]*domain.UnifiedAnalysis{
		"sha-a": docAnalysis(domain.DocumentEntity{Name: "Jane Doe", Type: domain.EntityPerson, Confidence: 0.9, Context: "memo"}),
		"sha-b": docAnalysis(domain.DocumentEntity{Name: "Doe, Jane", Type: domain.EntityPerson, Confidence: 0.8, Context: "email"}),
	}
	entities := BuildCorrelatedEntities(analyses)
	require.Len(t, entities, 1)
	assert.Equal(t, 2, entities[0].OccurrenceCount)
	assert.Equal(t, domain.EntityPerson, entities[0].EntityType)
	assert.Equal(t, 0.85, entities[0].ConfidenceAverage)
}

func TestBuildCorrelatedEntitiesDedupesMultipleMentionsInSameEvidence(t *testing.T) {
	analyses := map[string]*domain.UnifiedAnalysis{
		"sha-a": docAnalysis(
			domain.DocumentEntity{Name: "Jane Doe", Type: domain.EntityPerson, Confidence: 0.6},
			domain.DocumentEntity{Name: "Jane Doe", Type: domain.EntityPerson, Confidence: 0.95},
		),
		"sha-b": docAnalysis(domain.DocumentEntity{Name: "Jane Doe", Type: domain.EntityPerson, Confidence: 0.7}),
	}
	entities := BuildCorrelatedEntities(analyses)
	require.Len(t, entities, 1)
	// occurrence_count counts distinct evidence items, not raw mentions; the
	// higher-confidence duplicate within sha-a wins.
	assert.Equal(t, 2, entities[0].OccurrenceCount)
	for _, occ := range entities[0].EvidenceOccurrences {
		if occ.EvidenceSHA256 == "sha-a" {
			assert.Equal(t, 0.95, occ.Confidence)
		}
	}
}

func TestBuildCorrelatedEntitiesSortedByOccurrenceThenConfidence(t *testing.T) {
	analyses := map[string]*domain.UnifiedAnalysis{
		"sha-a": docAnalysis(
			domain.DocumentEntity{Name: "Jane Doe", Type: domain.EntityPerson, Confidence: 0.9},
			domain.DocumentEntity{Name: "Acme Corp", Type: domain.EntityOrganization, Confidence: 0.9},
		),
		"sha-b": docAnalysis(
			domain.DocumentEntity{Name: "Jane Doe", Type: domain.EntityPerson, Confidence: 0.9},
		),
		"sha-c": docAnalysis(
			domain.DocumentEntity{Name: "Jane Doe", Type: domain.EntityPerson, Confidence: 0.9},
			domain.DocumentEntity{Name: "Acme Corp", Type: domain.EntityOrganization, Confidence: 0.9},
		),
	}
	entities := BuildCorrelatedEntities(analyses)
	require.Len(t, entities, 2)
	assert.Equal(t, "Jane Doe", entities[0].EntityName)
	assert.Equal(t, 3, entities[0].OccurrenceCount)
	assert.Equal(t, "Acme Corp", entities[1].EntityName)
	assert.Equal(t, 2, entities[1].OccurrenceCount)
}

func TestExtractOccurrencesImageUsesWeakConfidenceBand(t *testing.T) {
	ua := &domain.UnifiedAnalysis{
		EvidenceType: domain.EvidenceImage,
		ImageAnalysis: &domain.ImageAnalysis{
			DetectedText: "Meeting with John Smith and Jane Doe on site",
		},
	}
	pairs := ExtractOccurrences("sha-img", ua)
	require.NotEmpty(t, pairs)
	for _, p := range pairs {
		assert.Equal(t, 0.35, p.Occ.confidence)
		assert.Equal(t, domain.EntityOther, p.Occ.entityType)
	}
}

package correlate

import (
	"time"

	"github.com/csic-platform/forensic-evidence-platform/internal/core/domain"
)

var anchorRiskFlags = map[domain.RiskFlag]bool{
	domain.RiskRetaliation: true, domain.RiskHarassment: true,
	domain.RiskDiscrimination: true, domain.RiskThreatening: true,
}

func isAnchor(e domain.TimelineEvent) bool {
	if domain.IsIngestionArtifact(e.EventType) {
		return false
	}
	if e.AIClassification == nil {
		return false
	}
	ac := e.AIClassification
	if ac.LegalSignificance == domain.SignificanceCritical || ac.LegalSignificance == domain.SignificanceHigh {
		return true
	}
	for _, rf := range ac.RiskFlags {
		if anchorRiskFlags[rf] {
			return true
		}
	}
	if ac.Pattern == string(domain.CommHostile) || ac.Pattern == string(domain.CommRetaliatory) {
		return true
	}
	return false
}

// BuildTemporalSequences groups, for each anchor event, subsequent
// forensically-relevant events within windowHours into a sequence, per
// §4.5. Events must be pre-sorted ascending by timestamp (as BuildTimeline
// returns them).
func BuildTemporalSequences(events []domain.TimelineEvent, windowHours int) []domain.TemporalSequence {
	window := time.Duration(windowHours) * time.Hour
	var sequences []domain.TemporalSequence

	for i, anchor := range events {
		if !isAnchor(anchor) {
			continue
		}
		var related []domain.TimelineEvent
		for j := i + 1; j < len(events); j++ {
			cand := events[j]
			if cand.Timestamp.Sub(anchor.Timestamp) > window {
				break
			}
			if domain.IsIngestionArtifact(cand.EventType) {
				continue
			}
			related = append(related, cand)
		}

		significance := domain.SignificanceLow
		hasCritical := anchor.AIClassification != nil && anchor.AIClassification.LegalSignificance == domain.SignificanceCritical
		for _, e := range related {
			if e.AIClassification != nil && e.AIClassification.LegalSignificance == domain.SignificanceCritical {
				hasCritical = true
			}
		}
		switch {
		case hasCritical:
			significance = domain.SignificanceHigh
		case len(related) >= 3:
			significance = domain.SignificanceMedium
		}

		sequences = append(sequences, domain.TemporalSequence{
			AnchorEventIndex: i, RelatedEvents: related, Significance: significance,
		})
	}
	return sequences
}

// BuildTimelineGaps records a gap for every consecutive pair of
// forensically relevant events (excluding ingestion artifacts) separated by
// more than gapThresholdHours.
func BuildTimelineGaps(events []domain.TimelineEvent, gapThresholdHours int) []domain.TimelineGap {
	threshold := time.Duration(gapThresholdHours) * time.Hour

	var relevant []domain.TimelineEvent
	for _, e := range events {
		if !domain.IsIngestionArtifact(e.EventType) {
			relevant = append(relevant, e)
		}
	}

	var gaps []domain.TimelineGap
	for i := 1; i < len(relevant); i++ {
		gap := relevant[i].Timestamp.Sub(relevant[i-1].Timestamp)
		if gap <= threshold {
			continue
		}
		days := gap.Hours() / 24
		var significance domain.LegalSignificance
		switch {
		case days >= 30:
			significance = domain.SignificanceHigh
		case days >= 14:
			significance = domain.SignificanceMedium
		default:
			significance = domain.SignificanceLow
		}
		gaps = append(gaps, domain.TimelineGap{
			FromTimestamp: relevant[i-1].Timestamp, ToTimestamp: relevant[i].Timestamp,
			GapDurationDays: round4(days), Significance: significance,
		})
	}
	return gaps
}

package correlate

import (
	"fmt"
	"net/mail"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/csic-platform/forensic-evidence-platform/internal/core/domain"
)

// ExifData carries the one EXIF tag the timeline needs, captured on
// UnifiedAnalysis.EXIFCapturedAt at analysis time (C4); only
// DateTimeOriginal feeds the timeline.
type ExifData struct {
	DateTimeOriginal *time.Time
}

// EvidenceContext is one evidence item's correlation input. EmailRawDate and
// Exif are populated from UnifiedAnalysis.EmailRawDate/EXIFCapturedAt by the
// orchestrator before BuildTimeline runs.
type EvidenceContext struct {
	SHA256        string
	EvidenceType  domain.EvidenceType
	Analysis      *domain.UnifiedAnalysis
	Exif          *ExifData
	EmailRawDate  string // RFC 2822 Date header, if evidence_type == email
}

// BuildTimeline reconstructs TimelineEvents for every evidence item in a
// case per §4.5's five event sources, then sorts ascending by timestamp,
// stable on ties by (evidence_sha256, event_type).
func BuildTimeline(items []EvidenceContext) []domain.TimelineEvent {
	var events []domain.TimelineEvent

	for _, it := range items {
		meta := it.Analysis.FileMetadata
		events = append(events, domain.TimelineEvent{
			Timestamp: meta.Created, EvidenceSHA256: it.SHA256, EvidenceType: it.EvidenceType,
			EventType: domain.EventFileCreated, Description: fmt.Sprintf("file %s created", meta.Filename), Confidence: 1.0,
		})
		if !meta.Modified.Equal(meta.Created) {
			events = append(events, domain.TimelineEvent{
				Timestamp: meta.Modified, EvidenceSHA256: it.SHA256, EvidenceType: it.EvidenceType,
				EventType: domain.EventFileModified, Description: fmt.Sprintf("file %s modified", meta.Filename), Confidence: 1.0,
			})
		}

		events = append(events, domain.TimelineEvent{
			Timestamp: it.Analysis.AnalysisTimestamp, EvidenceSHA256: it.SHA256, EvidenceType: it.EvidenceType,
			EventType: domain.EventAnalysisPerformed, Description: "analysis performed", Confidence: 1.0,
			AIClassification: classificationFor(it.Analysis),
		})

		if it.EvidenceType == domain.EvidenceEmail && it.EmailRawDate != "" {
			if t, err := mail.ParseDate(it.EmailRawDate); err == nil {
				events = append(events, domain.TimelineEvent{
					Timestamp: t, EvidenceSHA256: it.SHA256, EvidenceType: it.EvidenceType,
					EventType: domain.EventCommunication, Description: "email sent", Confidence: 0.95,
					AIClassification: classificationFor(it.Analysis),
				})
			}
		}

		if it.Exif != nil && it.Exif.DateTimeOriginal != nil {
			events = append(events, domain.TimelineEvent{
				Timestamp: *it.Exif.DateTimeOriginal, EvidenceSHA256: it.SHA256, EvidenceType: it.EvidenceType,
				EventType: domain.EventPhotoTaken, Description: "photo taken", Confidence: 0.9,
			})
		}

		if it.Analysis.DocumentAnalysis != nil {
			for _, e := range it.Analysis.DocumentAnalysis.Entities {
				if e.Type != domain.EntityDate || e.AssociatedEvent == "" {
					continue
				}
				if t, ok := ParseFlexibleDate(e.Name); ok {
					events = append(events, domain.TimelineEvent{
						Timestamp: t, EvidenceSHA256: it.SHA256, EvidenceType: it.EvidenceType,
						EventType: domain.EventSemanticEvent, Description: e.AssociatedEvent, Confidence: e.Confidence,
						AIClassification: classificationFor(it.Analysis),
					})
				}
			}
		}
	}

	sort.SliceStable(events, func(i, j int) bool {
		if !events[i].Timestamp.Equal(events[j].Timestamp) {
			return events[i].Timestamp.Before(events[j].Timestamp)
		}
		if events[i].EvidenceSHA256 != events[j].EvidenceSHA256 {
			return events[i].EvidenceSHA256 < events[j].EvidenceSHA256
		}
		return events[i].EventType < events[j].EventType
	})
	return events
}

func classificationFor(ua *domain.UnifiedAnalysis) *domain.AIClassification {
	switch {
	case ua.EmailAnalysis != nil:
		return &domain.AIClassification{
			Pattern: string(ua.EmailAnalysis.CommunicationPattern), RiskFlags: ua.EmailAnalysis.RiskFlags,
			LegalSignificance: ua.EmailAnalysis.LegalSignificance,
		}
	case ua.DocumentAnalysis != nil:
		return &domain.AIClassification{
			RiskFlags: ua.DocumentAnalysis.RiskFlags, LegalSignificance: ua.DocumentAnalysis.LegalSignificance,
		}
	default:
		return nil
	}
}

var (
	ddmmyyyy   = regexp.MustCompile(`^(\d{1,2})/(\d{1,2})/(\d{4})$`)
	nthMonthYr = regexp.MustCompile(`^(\d{1,2})(?:st|nd|rd|th)?\s+([A-Za-z]+)\s+(\d{4})$`)
	monthYr    = regexp.MustCompile(`^([A-Za-z]+)\s+(\d{4})$`)
)

var monthNames = map[string]time.Month{
	"january": time.January, "february": time.February, "march": time.March, "april": time.April,
	"may": time.May, "june": time.June, "july": time.July, "august": time.August,
	"september": time.September, "october": time.October, "november": time.November, "december": time.December,
}

// ParseFlexibleDate parses ISO, DD/MM/YYYY, "Nth Month YYYY", and
// "Month YYYY" (resolved to the 1st) formats. Unparseable dates are skipped
// silently by returning ok=false.
func ParseFlexibleDate(raw string) (time.Time, bool) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, true
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t, true
	}
	if m := ddmmyyyy.FindStringSubmatch(raw); m != nil {
		day, _ := strconv.Atoi(m[1])
		month, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
	}
	if m := nthMonthYr.FindStringSubmatch(raw); m != nil {
		day, _ := strconv.Atoi(m[1])
		if mo, ok := monthNames[strings.ToLower(m[2])]; ok {
			year, _ := strconv.Atoi(m[3])
			return time.Date(year, mo, day, 0, 0, 0, 0, time.UTC), true
		}
	}
	if m := monthYr.FindStringSubmatch(raw); m != nil {
		if mo, ok := monthNames[strings.ToLower(m[1])]; ok {
			year, _ := strconv.Atoi(m[2])
			return time.Date(year, mo, 1, 0, 0, 0, 0, time.UTC), true
		}
	}
	return time.Time{}, false
}

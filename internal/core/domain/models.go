// Package domain defines the canonical data model for every artifact the
// platform persists. Types with a Validate method are checked where they are
// produced (the store validates analyses on write; AI providers validate
// their responses); records read back from the store are not re-validated,
// and CaseSummary's overall assessment is an untyped map.
package domain

import (
	"fmt"
	"math"
	"regexp"
	"time"
)

const SchemaVersion = "1.0.0"

var sha256Pattern = regexp.MustCompile(`^[a-f0-9]{64}$`)

// EvidenceType classifies an ingested file. PDFs are split to document if
// text-extractable, else image.
type EvidenceType string

const (
	EvidenceDocument EvidenceType = "document"
	EvidenceImage    EvidenceType = "image"
	EvidenceEmail    EvidenceType = "email"
	EvidencePDF      EvidenceType = "pdf"
	EvidenceAudio    EvidenceType = "audio"
	EvidenceVideo    EvidenceType = "video"
	EvidenceOther    EvidenceType = "other"
)

func (t EvidenceType) Valid() bool {
	switch t {
	case EvidenceDocument, EvidenceImage, EvidenceEmail, EvidencePDF, EvidenceAudio, EvidenceVideo, EvidenceOther:
		return true
	}
	return false
}

// FileMetadata is immutable after first write.
type FileMetadata struct {
	Filename string    `json:"filename"`
	SizeB    int64     `json:"size_bytes"`
	Mime     string    `json:"mime"`
	Created  time.Time `json:"created_at"`
	Modified time.Time `json:"modified_at"`
	Ext      string    `json:"extension"`
	SHA256   string    `json:"sha256"`
}

func (m FileMetadata) Validate() error {
	if m.SizeB < 1 {
		return NewValidationError("file_metadata", fmt.Errorf("size_bytes must be >= 1, got %d", m.SizeB))
	}
	if !sha256Pattern.MatchString(m.SHA256) {
		return NewValidationError("file_metadata", fmt.Errorf("sha256 %q does not match ^[a-f0-9]{64}$", m.SHA256))
	}
	return nil
}

// CustodyAction enumerates the permitted chain-of-custody action values.
type CustodyAction string

const (
	CustodyIngest        CustodyAction = "ingest"
	CustodyAnalyze       CustodyAction = "analyze"
	CustodyCaseAssociate CustodyAction = "case_associate"
	CustodyExport        CustodyAction = "export"
	CustodyReanalyze     CustodyAction = "reanalyze"
	CustodyPrune         CustodyAction = "prune"
)

// ChainOfCustodyEvent is append-only; never reordered or deleted. Events are
// totally ordered by (timestamp, insertion order); the hash chain fields
// make post-hoc reordering or deletion detectable.
type ChainOfCustodyEvent struct {
	Timestamp time.Time     `json:"timestamp"`
	Actor     string        `json:"actor"`
	Action    CustodyAction `json:"action"`
	Note      string        `json:"note,omitempty"`
	PrevHash  string        `json:"prev_hash,omitempty"`
	RecordID  string        `json:"record_id"`
}

// EntityType classifies an entity extracted from document or email text.
type EntityType string

const (
	EntityPerson       EntityType = "person"
	EntityOrganization EntityType = "organization"
	EntityDate         EntityType = "date"
	EntityLegalTerm    EntityType = "legal_term"
	EntityEmailAddress EntityType = "email_address"
	EntityOther        EntityType = "other"
)

type DocumentEntity struct {
	Name            string     `json:"name"`
	Type            EntityType `json:"type"`
	Confidence      float64    `json:"confidence"`
	Context         string     `json:"context"`
	Relationship    string     `json:"relationship,omitempty"`
	QuotedText      string     `json:"quoted_text,omitempty"`
	AssociatedEvent string     `json:"associated_event,omitempty"`
}

type LegalSignificance string

const (
	SignificanceCritical LegalSignificance = "critical"
	SignificanceHigh     LegalSignificance = "high"
	SignificanceMedium   LegalSignificance = "medium"
	SignificanceLow      LegalSignificance = "low"
)

var significanceRank = map[LegalSignificance]int{
	SignificanceCritical: 4, SignificanceHigh: 3, SignificanceMedium: 2, SignificanceLow: 1,
}

// HigherSignificance reports whether a outranks b (critical > high > medium > low).
func HigherSignificance(a, b LegalSignificance) bool {
	return significanceRank[a] > significanceRank[b]
}

type RiskFlag string

const (
	RiskHarassment      RiskFlag = "harassment"
	RiskRetaliation     RiskFlag = "retaliation"
	RiskDiscrimination  RiskFlag = "discrimination"
	RiskThreatening     RiskFlag = "threatening"
	RiskFraud           RiskFlag = "fraud"
	RiskDataBreach      RiskFlag = "data_breach"
	RiskPolicyViolation RiskFlag = "policy_violation"
)

type DocumentType string

const (
	DocTypeEmail    DocumentType = "email"
	DocTypeLetter   DocumentType = "letter"
	DocTypeContract DocumentType = "contract"
	DocTypeFiling   DocumentType = "filing"
	DocTypeOther    DocumentType = "other"
)

type Sentiment string

const (
	SentimentHostile      Sentiment = "hostile"
	SentimentNeutral      Sentiment = "neutral"
	SentimentProfessional Sentiment = "professional"
)

// DocumentAnalysis is the structured output of the document analyzer (C4).
type DocumentAnalysis struct {
	Summary           string            `json:"summary"`
	Entities          []DocumentEntity  `json:"entities"`
	DocumentType      DocumentType      `json:"document_type"`
	Sentiment         Sentiment         `json:"sentiment"`
	LegalSignificance LegalSignificance `json:"legal_significance"`
	RiskFlags         []RiskFlag        `json:"risk_flags"`
	ConfidenceOverall float64           `json:"confidence_overall"`
}

type ParticipantRole string

const (
	RoleSender    ParticipantRole = "sender"
	RoleRecipient ParticipantRole = "recipient"
	RoleCC        ParticipantRole = "cc"
	RoleBCC       ParticipantRole = "bcc"
)

type AuthorityLevel string

const (
	AuthorityExecutive  AuthorityLevel = "executive"
	AuthorityManagement AuthorityLevel = "management"
	AuthorityEmployee   AuthorityLevel = "employee"
	AuthorityExternal   AuthorityLevel = "external"
)

type EmailParticipant struct {
	EmailAddress   string          `json:"email_address"`
	DisplayName    string          `json:"display_name,omitempty"`
	Role           ParticipantRole `json:"role"`
	AuthorityLevel AuthorityLevel  `json:"authority_level"`
	MessageCount   int             `json:"message_count"`
	DeferenceScore float64         `json:"deference_score"`
	DominantTopics []string        `json:"dominant_topics"`
}

type CommunicationPattern string

const (
	CommProfessional CommunicationPattern = "professional"
	CommEscalating   CommunicationPattern = "escalating"
	CommHostile      CommunicationPattern = "hostile"
	CommRetaliatory  CommunicationPattern = "retaliatory"
)

type EscalationType string

const (
	EscalationToneChange        EscalationType = "tone_change"
	EscalationNewRecipient      EscalationType = "new_recipient"
	EscalationAuthorityEscalate EscalationType = "authority_escalation"
	EscalationThreat            EscalationType = "threat"
)

type EscalationEvent struct {
	MessagePosition int            `json:"message_position"`
	Type            EscalationType `json:"type"`
	Confidence      float64        `json:"confidence"`
	Description     string         `json:"description"`
}

// EmailThreadAnalysis is the structured output of the email analyzer (C4).
type EmailThreadAnalysis struct {
	ThreadSummary          string               `json:"thread_summary"`
	Participants           []EmailParticipant   `json:"participants"`
	CommunicationPattern   CommunicationPattern `json:"communication_pattern"`
	SentimentProgression   []float64            `json:"sentiment_progression"`
	EscalationEvents       []EscalationEvent    `json:"escalation_events"`
	LegalSignificance      LegalSignificance    `json:"legal_significance"`
	RiskFlags              []RiskFlag           `json:"risk_flags"`
	TimelineReconstruction []string             `json:"timeline_reconstruction"`
	ConfidenceOverall      float64              `json:"confidence_overall"`
}

type EvidentialValue string

const (
	EvidenceValueCritical EvidentialValue = "critical"
	EvidenceValueHigh     EvidentialValue = "high"
	EvidenceValueMedium   EvidentialValue = "medium"
	EvidenceValueLow      EvidentialValue = "low"
)

// ImageAnalysis is the structured output of the image analyzer (C4).
type ImageAnalysis struct {
	SceneDescription       string          `json:"scene_description"`
	DetectedText           string          `json:"detected_text"`
	DetectedObjects        []string        `json:"detected_objects"`
	PeoplePresent          bool            `json:"people_present"`
	TimestampsVisible      []string        `json:"timestamps_visible"`
	PotentialEvidenceValue EvidentialValue `json:"potential_evidence_value"`
	RiskFlags              []RiskFlag      `json:"risk_flags"`
	ConfidenceOverall      float64         `json:"confidence_overall"`
}

// UnifiedAnalysis wraps exactly one typed analysis per evidence item.
// Rewritten only by reanalyze; the previous version is backed up first.
type UnifiedAnalysis struct {
	SchemaVersion     string                `json:"schema_version"`
	EvidenceType      EvidenceType          `json:"evidence_type"`
	AnalysisTimestamp time.Time             `json:"analysis_timestamp"`
	FileMetadata      FileMetadata          `json:"file_metadata"`
	CaseIDs           []string              `json:"case_ids"`
	DocumentAnalysis  *DocumentAnalysis     `json:"document_analysis,omitempty"`
	EmailAnalysis     *EmailThreadAnalysis  `json:"email_analysis,omitempty"`
	ImageAnalysis     *ImageAnalysis        `json:"image_analysis,omitempty"`
	Labels            []string              `json:"labels"`
	ChainOfCustody    []ChainOfCustodyEvent `json:"chain_of_custody"`

	// EmailRawDate is the unparsed RFC 2822 Date header, set only when
	// EvidenceType is email; it feeds the communication timeline event.
	EmailRawDate string `json:"email_raw_date,omitempty"`
	// EXIFCapturedAt is the image's DateTimeOriginal tag, set only when
	// EvidenceType is image and the JPEG carries an EXIF segment; it feeds
	// the photo_taken timeline event.
	EXIFCapturedAt *time.Time `json:"exif_captured_at,omitempty"`
}

func (u *UnifiedAnalysis) Validate() error {
	set := 0
	if u.DocumentAnalysis != nil {
		set++
	}
	if u.EmailAnalysis != nil {
		set++
	}
	if u.ImageAnalysis != nil {
		set++
	}
	if set != 1 {
		return NewValidationError("unified_analysis", fmt.Errorf("exactly one of document/email/image analysis must be set, got %d", set))
	}
	if err := u.FileMetadata.Validate(); err != nil {
		return err
	}
	clampAndValidateConfidences(u)
	return nil
}

// clampAndValidateConfidences rounds every confidence field to 4 decimals and
// clamps to [0,1], matching the invariant "Confidences in [0,1]; float
// serialization rounded to 4 decimals."
func clampAndValidateConfidences(u *UnifiedAnalysis) {
	round := func(f float64) float64 {
		if f < 0 {
			f = 0
		}
		if f > 1 {
			f = 1
		}
		return math.Round(f*10000) / 10000
	}
	if u.DocumentAnalysis != nil {
		u.DocumentAnalysis.ConfidenceOverall = round(u.DocumentAnalysis.ConfidenceOverall)
		for i := range u.DocumentAnalysis.Entities {
			u.DocumentAnalysis.Entities[i].Confidence = round(u.DocumentAnalysis.Entities[i].Confidence)
		}
	}
	if u.EmailAnalysis != nil {
		u.EmailAnalysis.ConfidenceOverall = round(u.EmailAnalysis.ConfidenceOverall)
		for i := range u.EmailAnalysis.Participants {
			u.EmailAnalysis.Participants[i].DeferenceScore = round(u.EmailAnalysis.Participants[i].DeferenceScore)
		}
		for i := range u.EmailAnalysis.SentimentProgression {
			u.EmailAnalysis.SentimentProgression[i] = round(u.EmailAnalysis.SentimentProgression[i])
		}
		for i := range u.EmailAnalysis.EscalationEvents {
			u.EmailAnalysis.EscalationEvents[i].Confidence = round(u.EmailAnalysis.EscalationEvents[i].Confidence)
		}
	}
	if u.ImageAnalysis != nil {
		u.ImageAnalysis.ConfidenceOverall = round(u.ImageAnalysis.ConfidenceOverall)
	}
}

// CorrelatedEntity is one canonicalized entity found in two or more evidence
// items within a case.
type CorrelatedEntity struct {
	EntityName          string             `json:"entity_name"`
	EntityType          EntityType         `json:"entity_type"`
	OccurrenceCount     int                `json:"occurrence_count"`
	ConfidenceAverage   float64            `json:"confidence_average"`
	EvidenceOccurrences []EntityOccurrence `json:"evidence_occurrences"`
}

type EntityOccurrence struct {
	EvidenceSHA256 string     `json:"evidence_sha256"`
	OriginalName   string     `json:"original_name"`
	Confidence     float64    `json:"confidence"`
	Context        string     `json:"context"`
	Type           EntityType `json:"type"`
}

// TimelineEvent is one reconstructed point on a case's timeline.
type TimelineEvent struct {
	Timestamp        time.Time         `json:"timestamp"`
	EvidenceSHA256   string            `json:"evidence_sha256"`
	EvidenceType     EvidenceType      `json:"evidence_type"`
	EventType        string            `json:"event_type"`
	Description      string            `json:"description"`
	Confidence       float64           `json:"confidence"`
	AIClassification *AIClassification `json:"ai_classification,omitempty"`
}

type AIClassification struct {
	Pattern           string            `json:"pattern,omitempty"`
	RiskFlags         []RiskFlag        `json:"risk_flags,omitempty"`
	LegalSignificance LegalSignificance `json:"legal_significance,omitempty"`
}

// TimelineEvent.EventType values. file_created, file_modified and
// analysis_performed are ingestion artifacts (see IsIngestionArtifact),
// excluded from temporal sequences/gaps and from Pattern Detector context
// (resolved Open Question, see DESIGN.md).
const (
	EventFileCreated       = "file_created"
	EventFileModified      = "file_modified"
	EventAnalysisPerformed = "analysis_performed"
	EventCommunication     = "communication"
	EventPhotoTaken        = "photo_taken"
	EventSemanticEvent     = "semantic_event"
	EventIngested          = "ingested"
)

func IsIngestionArtifact(eventType string) bool {
	switch eventType {
	case EventFileCreated, EventFileModified, EventAnalysisPerformed:
		return true
	}
	return false
}

type TemporalSequence struct {
	AnchorEventIndex int               `json:"anchor_event_index"`
	RelatedEvents    []TimelineEvent   `json:"related_events"`
	Significance     LegalSignificance `json:"significance"`
}

type TimelineGap struct {
	FromTimestamp   time.Time         `json:"from_timestamp"`
	ToTimestamp     time.Time         `json:"to_timestamp"`
	GapDurationDays float64           `json:"gap_duration_days"`
	Significance    LegalSignificance `json:"significance"`
}

type ContradictionType string

const (
	ContradictionFactual     ContradictionType = "factual"
	ContradictionTemporal    ContradictionType = "temporal"
	ContradictionAttribution ContradictionType = "attribution"
)

type Contradiction struct {
	Statement1        string            `json:"statement_1"`
	Statement1Source  string            `json:"statement_1_source"`
	Statement2        string            `json:"statement_2"`
	Statement2Source  string            `json:"statement_2_source"`
	ContradictionType ContradictionType `json:"contradiction_type"`
	Severity          float64           `json:"severity"`
	Explanation       string            `json:"explanation"`
}

type CorroborationStrength string

const (
	CorroborationWeak     CorroborationStrength = "weak"
	CorroborationModerate CorroborationStrength = "moderate"
	CorroborationStrong   CorroborationStrength = "strong"
)

type CorroborationLink struct {
	Claim                 string                `json:"claim"`
	SupportingEvidence    []string              `json:"supporting_evidence"`
	CorroborationStrength CorroborationStrength `json:"corroboration_strength"`
	Explanation           string                `json:"explanation"`
}

type LegalPatternAnalysis struct {
	Contradictions []Contradiction     `json:"contradictions"`
	Corroboration  []CorroborationLink `json:"corroboration"`
	EvidenceGaps   []string            `json:"evidence_gaps"`
	PatternSummary string              `json:"pattern_summary"`
	Confidence     float64             `json:"confidence"`
}

// CorrelationAnalysis is the case-level artifact produced by C5 (+ C6).
type CorrelationAnalysis struct {
	SchemaVersion      string                `json:"schema_version"`
	CaseID             string                `json:"case_id"`
	EvidenceCount      int                   `json:"evidence_count"`
	EntityCorrelations []CorrelatedEntity    `json:"entity_correlations"`
	TimelineEvents     []TimelineEvent       `json:"timeline_events"`
	TemporalSequences  []TemporalSequence    `json:"temporal_sequences"`
	TimelineGaps       []TimelineGap         `json:"timeline_gaps"`
	LegalPatterns      *LegalPatternAnalysis `json:"legal_patterns,omitempty"`
	AnalysisTimestamp  time.Time             `json:"analysis_timestamp"`
}

type EvidenceSummary struct {
	EvidenceSHA256 string       `json:"evidence_sha256"`
	EvidenceType   EvidenceType `json:"evidence_type"`
	KeyFindings    []string     `json:"key_findings"`
}

type RiskAssessment string

const (
	RiskAssessLow      RiskAssessment = "low"
	RiskAssessMedium   RiskAssessment = "medium"
	RiskAssessHigh     RiskAssessment = "high"
	RiskAssessCritical RiskAssessment = "critical"
)

type ExecutiveSummaryResponse struct {
	ExecutiveSummary   string         `json:"executive_summary"`
	KeyFindings        []string       `json:"key_findings"`
	LegalImplications  []string       `json:"legal_implications"`
	RecommendedActions []string       `json:"recommended_actions"`
	RiskAssessment     RiskAssessment `json:"risk_assessment"`
	ConfidenceOverall  float64        `json:"confidence_overall"`
}

func (r *ExecutiveSummaryResponse) Validate() error {
	if n := len(r.KeyFindings); n < 3 || n > 5 {
		return NewValidationError("executive_summary", fmt.Errorf("key_findings must have 3-5 entries, got %d", n))
	}
	return nil
}

// ChunkSummary is the intermediate map stage of the map-reduce executive
// summary generation for cases with more than 50 evidence items.
type ChunkSummary struct {
	ChunkIndex int      `json:"chunk_index"`
	Summary    string   `json:"summary"`
	KeyPoints  []string `json:"key_points"`
}

// CaseSummary is the top-level case deliverable artifact.
type CaseSummary struct {
	SchemaVersion       string                    `json:"schema_version"`
	CaseID              string                    `json:"case_id"`
	GenerationTimestamp time.Time                 `json:"generation_timestamp"`
	EvidenceCount       int                       `json:"evidence_count"`
	EvidenceTypes       []EvidenceType            `json:"evidence_types"`
	EvidenceSummaries   []EvidenceSummary         `json:"evidence_summaries"`
	CorrelationResult   CorrelationAnalysis       `json:"correlation_result"`
	OverallAssessment   map[string]interface{}    `json:"overall_assessment"`
	ExecutiveSummary    *ExecutiveSummaryResponse `json:"executive_summary,omitempty"`
}

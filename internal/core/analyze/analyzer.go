package analyze

import (
	"context"
	"fmt"
	"time"

	"github.com/csic-platform/forensic-evidence-platform/internal/core/domain"
	"github.com/csic-platform/forensic-evidence-platform/internal/core/ports"
)

// Analyzer is the uniform per-evidence-type contract: (bytes, metadata,
// prompt config) -> TypedAnalysis, avoiding a class hierarchy by dispatching
// on a tagged EvidenceType instead (per the design notes' re-architecture
// guidance).
type Analyzer interface {
	Analyze(ctx context.Context, data []byte, meta domain.FileMetadata) (*domain.UnifiedAnalysis, error)
}

// Service dispatches EvidenceType -> Analyzer. It owns the PDF -> image
// re-route: if text extraction fails or yields empty text, the evidence is
// re-typed to image and routed to the image analyzer instead.
type Service struct {
	ai        ports.AIProvider
	registry  *Registry
	extractor TextExtractor
	emailer   EmailParser
	logger    ports.Logger
}

func NewService(ai ports.AIProvider, registry *Registry, extractor TextExtractor, emailer EmailParser, logger ports.Logger) *Service {
	return &Service{ai: ai, registry: registry, extractor: extractor, emailer: emailer, logger: logger}
}

// Analyze dispatches by evType, applying the PDF->image reroute described in
// §4.4. Returns (nil, ErrorKind) on AIRefusal/AIIncomplete/schema-invalid
// output; the orchestrator records the failure but never aborts the case.
func (s *Service) Analyze(ctx context.Context, evType domain.EvidenceType, data []byte, meta domain.FileMetadata) (*domain.UnifiedAnalysis, error) {
	switch evType {
	case domain.EvidenceDocument:
		return s.analyzeDocument(ctx, data, meta)
	case domain.EvidencePDF:
		text, err := s.extractor.ExtractText(data, meta.Mime)
		if err != nil || text == "" {
			s.logger.Warn("pdf text extraction failed, rerouting to image analyzer", "sha256", meta.SHA256, "error", err)
			meta.Mime = "image/unknown"
			return s.analyzeImage(ctx, data, meta)
		}
		return s.analyzeDocumentText(ctx, text, meta)
	case domain.EvidenceEmail:
		return s.analyzeEmail(ctx, data, meta)
	case domain.EvidenceImage:
		return s.analyzeImage(ctx, data, meta)
	default:
		return nil, domain.NewExtractorUnsupportedError("analyze", fmt.Errorf("no analyzer for evidence_type %s", evType))
	}
}

func (s *Service) analyzeDocument(ctx context.Context, data []byte, meta domain.FileMetadata) (*domain.UnifiedAnalysis, error) {
	text, err := s.extractor.ExtractText(data, meta.Mime)
	if err != nil || text == "" {
		s.logger.Warn("document text extraction failed, rerouting to image analyzer", "sha256", meta.SHA256, "error", err)
		return s.analyzeImage(ctx, data, meta)
	}
	return s.analyzeDocumentText(ctx, text, meta)
}

func (s *Service) analyzeDocumentText(ctx context.Context, text string, meta domain.FileMetadata) (*domain.UnifiedAnalysis, error) {
	prompt := s.registry.Get("document", "")
	var da domain.DocumentAnalysis
	if err := s.ai.GenerateStructured(ctx, prompt.SystemPrompt, text, &da); err != nil {
		return nil, err
	}
	return &domain.UnifiedAnalysis{
		EvidenceType:      domain.EvidenceDocument,
		AnalysisTimestamp: time.Now().UTC(),
		FileMetadata:      meta,
		DocumentAnalysis:  &da,
	}, nil
}

func (s *Service) analyzeImage(ctx context.Context, data []byte, meta domain.FileMetadata) (*domain.UnifiedAnalysis, error) {
	prompt := s.registry.Get("image", "")
	var ia domain.ImageAnalysis
	if err := s.ai.GenerateVision(ctx, data, prompt.SystemPrompt, &ia); err != nil {
		return nil, err
	}
	capturedAt, _ := ExtractEXIFDateTimeOriginal(data)
	return &domain.UnifiedAnalysis{
		EvidenceType:      domain.EvidenceImage,
		AnalysisTimestamp: time.Now().UTC(),
		FileMetadata:      meta,
		ImageAnalysis:     &ia,
		EXIFCapturedAt:    capturedAt,
	}, nil
}

func (s *Service) analyzeEmail(ctx context.Context, data []byte, meta domain.FileMetadata) (*domain.UnifiedAnalysis, error) {
	parsed, err := s.emailer.Parse(data)
	if err != nil {
		return nil, err
	}
	prompt := s.registry.Get("email", "")
	userContext := fmt.Sprintf("From: %s\nTo: %v\nCc: %v\nSubject: %s\nDate: %s\n\n%s",
		parsed.From, parsed.To, parsed.CC, parsed.Subject, parsed.Date, parsed.Body)

	var ea domain.EmailThreadAnalysis
	if err := s.ai.GenerateStructured(ctx, prompt.SystemPrompt, userContext, &ea); err != nil {
		return nil, err
	}
	return &domain.UnifiedAnalysis{
		EvidenceType:      domain.EvidenceEmail,
		AnalysisTimestamp: time.Now().UTC(),
		FileMetadata:      meta,
		EmailAnalysis:     &ea,
		EmailRawDate:      parsed.Date,
	}, nil
}

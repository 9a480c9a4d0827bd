package analyze

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/csic-platform/forensic-evidence-platform/internal/adapter/ai"
	"github.com/csic-platform/forensic-evidence-platform/internal/core/domain"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Warn(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}

func newTestService(provider *ai.FakeProvider) *Service {
	return NewService(provider, NewRegistry(), NewDefaultTextExtractor(), NewDefaultEmailParser(), nopLogger{})
}

func TestAnalyzeDocumentIsReproducibleGivenIdenticalInputAndFakeProvider(t *testing.T) {
	provider := ai.NewFakeProvider()
	provider.SetDefaultResponse(domain.DocumentAnalysis{
		Summary: "a memo about scheduling", DocumentType: domain.DocTypeLetter,
		Sentiment: domain.SentimentNeutral, LegalSignificance: domain.SignificanceLow,
		ConfidenceOverall: 0.6,
	})
	svc := newTestService(provider)
	meta := domain.FileMetadata{Filename: "memo.txt", Mime: "text/plain", SHA256: "sha-memo"}

	first, err := svc.Analyze(context.Background(), domain.EvidenceDocument, []byte("please reschedule the meeting"), meta)
	require.NoError(t, err)
	second, err := svc.Analyze(context.Background(), domain.EvidenceDocument, []byte("please reschedule the meeting"), meta)
	require.NoError(t, err)

	assert.Equal(t, first.DocumentAnalysis, second.DocumentAnalysis)
	assert.Equal(t, 2, provider.GetCallCount())
}

func TestAnalyzePDFReroutesToImageWhenTextExtractionUnsupported(t *testing.T) {
	provider := ai.NewFakeProvider()
	provider.SetDefaultResponse(domain.ImageAnalysis{
		SceneDescription: "scanned page", PotentialEvidenceValue: domain.EvidenceValueLow, ConfidenceOverall: 0.4,
	})
	svc := newTestService(provider)
	meta := domain.FileMetadata{Filename: "scan.pdf", Mime: "application/pdf", SHA256: "sha-pdf"}

	result, err := svc.Analyze(context.Background(), domain.EvidencePDF, []byte("%PDF-1.4 binary content"), meta)
	require.NoError(t, err)
	assert.Equal(t, domain.EvidenceImage, result.EvidenceType)
	require.NotNil(t, result.ImageAnalysis)
	assert.Nil(t, result.DocumentAnalysis)
}

func TestAnalyzeDocumentReroutesToImageWhenNotTextExtractable(t *testing.T) {
	provider := ai.NewFakeProvider()
	provider.SetDefaultResponse(domain.ImageAnalysis{
		SceneDescription: "a photograph", PotentialEvidenceValue: domain.EvidenceValueMedium, ConfidenceOverall: 0.5,
	})
	svc := newTestService(provider)
	meta := domain.FileMetadata{Filename: "photo.jpg", Mime: "image/jpeg", SHA256: "sha-jpg"}

	result, err := svc.Analyze(context.Background(), domain.EvidenceDocument, []byte{0xff, 0xd8, 0xff}, meta)
	require.NoError(t, err)
	assert.Equal(t, domain.EvidenceImage, result.EvidenceType)
}

func TestAnalyzePropagatesAIRefusalAsError(t *testing.T) {
	provider := ai.NewFakeProvider()
	provider.FailNextWith(domain.NewAIRefusalError("ai.generate", fmt.Errorf("model refused")))
	svc := newTestService(provider)
	meta := domain.FileMetadata{Filename: "memo.txt", Mime: "text/plain", SHA256: "sha-refused"}

	_, err := svc.Analyze(context.Background(), domain.EvidenceDocument, []byte("some text"), meta)
	assert.Equal(t, domain.KindAIRefusal, domain.KindOf(err))
}

func TestAnalyzeEmailParsesHeadersAndBody(t *testing.T) {
	provider := ai.NewFakeProvider()
	provider.SetDefaultResponse(domain.EmailThreadAnalysis{
		ThreadSummary: "a short exchange", CommunicationPattern: domain.CommProfessional,
		LegalSignificance: domain.SignificanceLow, ConfidenceOverall: 0.5,
	})
	svc := newTestService(provider)
	raw := []byte("From: alice@example.com\r\nTo: bob@example.com\r\nSubject: Hi\r\nDate: Mon, 02 Jan 2024 15:04:05 -0700\r\n\r\nHello Bob,\r\nSee you soon.\r\n")
	meta := domain.FileMetadata{Filename: "thread.eml", Mime: "message/rfc822", SHA256: "sha-email"}

	result, err := svc.Analyze(context.Background(), domain.EvidenceEmail, raw, meta)
	require.NoError(t, err)
	require.NotNil(t, result.EmailAnalysis)
	assert.Contains(t, provider.GetLastPrompt(), "From: alice@example.com")
	assert.Contains(t, provider.GetLastPrompt(), "Hello Bob")
}

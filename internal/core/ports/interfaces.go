// Package ports declares the hexagonal boundary of the platform: every
// adapter (storage, AI provider, index, messaging) implements one of these
// interfaces, and every core service depends only on the interface.
package ports

import (
	"context"
	"io"
	"time"

	"github.com/csic-platform/forensic-evidence-platform/internal/core/domain"
)

// Logger is provider-agnostic; the production implementation wraps
// zap.SugaredLogger.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// EvidenceStore is the C1 port: content-addressed storage, case linking,
// chain-of-custody append.
type EvidenceStore interface {
	// Ingest hashes bytes; if new, writes raw+metadata. Always appends a
	// case_associate custody event when caseID is non-empty. Idempotent.
	Ingest(ctx context.Context, r io.Reader, filename, caseID, actor string) (sha256 string, isNew bool, err error)

	GetAnalysis(ctx context.Context, sha256 string) (*domain.UnifiedAnalysis, error)
	PutAnalysis(ctx context.Context, sha256 string, analysis *domain.UnifiedAnalysis, actor string) error

	GetMetadata(ctx context.Context, sha256 string) (*domain.FileMetadata, error)
	OpenRaw(ctx context.Context, sha256 string) (io.ReadCloser, error)

	ListCase(ctx context.Context, caseID string) ([]string, error)
	ListCases(ctx context.Context) ([]string, error)

	GetChainOfCustody(ctx context.Context, sha256 string) ([]domain.ChainOfCustodyEvent, error)
	AppendCustody(ctx context.Context, sha256 string, event domain.ChainOfCustodyEvent) error
	VerifyChainIntegrity(ctx context.Context, sha256 string) (bool, error)

	PutCorrelation(ctx context.Context, caseID string, analysis *domain.CorrelationAnalysis) error
	GetCorrelation(ctx context.Context, caseID string) (*domain.CorrelationAnalysis, error)
	PutCaseSummary(ctx context.Context, caseID string, summary *domain.CaseSummary) error
	GetCaseSummary(ctx context.Context, caseID string) (*domain.CaseSummary, error)

	// Prune removes a case link; deletes raw/derived only if no other case
	// references remain. dryRun defaults to true at the CLI layer.
	Prune(ctx context.Context, caseID string, dryRun bool) (*PruneReport, error)

	StorageStats(ctx context.Context) (*StorageStats, error)

	// PruneBackups deletes reanalyze backup artifacts (analysis.v1.json.bak.*)
	// older than olderThan. Off by default at the CLI layer; backups are kept
	// indefinitely unless an operator opts in.
	PruneBackups(ctx context.Context, olderThan time.Duration) (deleted int, err error)
}

type PruneReport struct {
	CaseID          string   `json:"case_id"`
	UnlinkedSHA256s []string `json:"unlinked_sha256s"`
	DeletedSHA256s  []string `json:"deleted_sha256s"`
	DryRun          bool     `json:"dry_run"`
}

type StorageStats struct {
	TotalSizeBytes int64
	EvidenceCount  int64
	LastUpdated    time.Time
}

// Blob is a minimal byte-addressed read/write backend; LocalStorage and
// S3Store both implement it, and EvidenceStore composes one for raw/derived
// persistence.
type Blob interface {
	Put(ctx context.Context, key string, r io.Reader) (size int64, err error)
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, key string) (bool, error)
	Delete(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// SearchIndex is the optional secondary index (Postgres) over evidence and
// case metadata. The filesystem store remains authoritative; the index may
// lag or be absent entirely (nil-able at the call site).
type SearchIndex interface {
	IndexEvidence(ctx context.Context, sha256, caseID string, meta *domain.FileMetadata, evType domain.EvidenceType) error
	Search(ctx context.Context, query string, evidenceTypes []domain.EvidenceType, page, pageSize int) ([]domain.EvidenceSummary, int64, error)
	HealthCheck(ctx context.Context) error
}

// EventPublisher is the optional Kafka-backed stage-completion eventing
// port. A nil-safe no-op implementation is used when messaging is disabled.
type EventPublisher interface {
	PublishEvidenceIngested(ctx context.Context, sha256, caseID string) error
	PublishEvidenceAnalyzed(ctx context.Context, sha256 string, evType domain.EvidenceType) error
	PublishCaseCorrelated(ctx context.Context, caseID string) error
	PublishCaseSummarized(ctx context.Context, caseID string) error
	PublishCustodyAppended(ctx context.Context, sha256 string, action domain.CustodyAction) error
	Close() error
}

// AIProvider is the C3 port. Implementations must be deterministic
// (temperature 0); refusal and incomplete responses are reported as
// AIRefusal/AIIncomplete errors, not raised as success. Schema validation
// failures are never retried; transport/rate-limit errors are retried with
// backoff by the implementation.
type AIProvider interface {
	// GenerateStructured populates into (a pointer to a struct tagged with
	// json, validated against its own Validate() if present) from the given
	// system prompt and user context.
	GenerateStructured(ctx context.Context, systemPrompt, userContext string, into interface{}) error

	// GenerateVision is the same contract, additionally given image bytes.
	GenerateVision(ctx context.Context, imageBytes []byte, prompt string, into interface{}) error

	// Provider returns a short identifier, e.g. "openai", "anthropic", "fake".
	Provider() string

	Health(ctx context.Context) error
}

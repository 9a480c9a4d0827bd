// Package index provides the optional Postgres-backed secondary search
// index over evidence/case metadata. The filesystem evidence store remains
// authoritative per the external on-disk-layout contract; this index only
// accelerates case list/show and full-text search for large cases and may
// be absent entirely.
package index

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/csic-platform/forensic-evidence-platform/internal/core/domain"
	"github.com/csic-platform/forensic-evidence-platform/internal/core/ports"
)

type PostgresIndex struct {
	db     *sql.DB
	logger ports.Logger
}

func NewPostgresIndex(dsn string, logger ports.Logger) (*PostgresIndex, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	idx := &PostgresIndex{db: db, logger: logger}
	if err := idx.ensureSchema(context.Background()); err != nil {
		return nil, err
	}
	return idx, nil
}

func (p *PostgresIndex) ensureSchema(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS evidence_index (
	sha256 TEXT NOT NULL,
	case_id TEXT NOT NULL,
	filename TEXT NOT NULL,
	mime TEXT NOT NULL,
	evidence_type TEXT NOT NULL,
	size_bytes BIGINT NOT NULL,
	indexed_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (sha256, case_id)
)`)
	if err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

func (p *PostgresIndex) IndexEvidence(ctx context.Context, sha256, caseID string, meta *domain.FileMetadata, evType domain.EvidenceType) error {
	_, err := p.db.ExecContext(ctx, `
INSERT INTO evidence_index (sha256, case_id, filename, mime, evidence_type, size_bytes, indexed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (sha256, case_id) DO UPDATE SET filename = $3, mime = $4, evidence_type = $5, size_bytes = $6, indexed_at = $7`,
		sha256, caseID, meta.Filename, meta.Mime, string(evType), meta.SizeB, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("index evidence %s: %w", sha256, err)
	}
	return nil
}

// Search builds a dynamic WHERE clause incrementing argNum, following the
// teacher's SearchEvidence query-building pattern (ILIKE + ANY($n) array
// membership), narrowed here to the index table's columns.
func (p *PostgresIndex) Search(ctx context.Context, query string, evidenceTypes []domain.EvidenceType, page, pageSize int) ([]domain.EvidenceSummary, int64, error) {
	var conditions []string
	var args []interface{}
	argNum := 1

	if query != "" {
		conditions = append(conditions, fmt.Sprintf("filename ILIKE $%d", argNum))
		args = append(args, "%"+query+"%")
		argNum++
	}
	if len(evidenceTypes) > 0 {
		types := make([]string, len(evidenceTypes))
		for i, t := range evidenceTypes {
			types[i] = string(t)
		}
		conditions = append(conditions, fmt.Sprintf("evidence_type = ANY(string_to_array($%d, ','))", argNum))
		args = append(args, strings.Join(types, ","))
		argNum++
	}

	where := ""
	if len(conditions) > 0 {
		where = "WHERE " + strings.Join(conditions, " AND ")
	}

	var total int64
	countQuery := fmt.Sprintf("SELECT COUNT(DISTINCT sha256) FROM evidence_index %s", where)
	if err := p.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count search results: %w", err)
	}

	offset := (page - 1) * pageSize
	if offset < 0 {
		offset = 0
	}
	args = append(args, pageSize, offset)
	rowsQuery := fmt.Sprintf(
		"SELECT sha256, evidence_type FROM evidence_index %s ORDER BY indexed_at DESC LIMIT $%d OFFSET $%d",
		where, argNum, argNum+1)

	rows, err := p.db.QueryContext(ctx, rowsQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search evidence: %w", err)
	}
	defer rows.Close()

	var summaries []domain.EvidenceSummary
	for rows.Next() {
		var sha, evType string
		if err := rows.Scan(&sha, &evType); err != nil {
			return nil, 0, fmt.Errorf("scan search row: %w", err)
		}
		summaries = append(summaries, domain.EvidenceSummary{
			EvidenceSHA256: sha,
			EvidenceType:   domain.EvidenceType(evType),
		})
	}
	return summaries, total, rows.Err()
}

func (p *PostgresIndex) HealthCheck(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *PostgresIndex) Close() error { return p.db.Close() }

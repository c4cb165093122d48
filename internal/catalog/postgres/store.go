// Package postgres provides a Postgres-backed harvest catalog.
package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mfeldman486/resume-harvester/internal/harvest"
)

var validTableName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Config controls the Postgres connection pool used for catalog rows.
type Config struct {
	DSN             string
	RunsTable       string
	DocumentsTable  string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type execCloser interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Close()
}

// Store writes run and document rows into Postgres.
type Store struct {
	pool      execCloser
	runs      string
	documents string
}

var _ harvest.Catalog = (*Store)(nil)

// New creates a Postgres-backed catalog using the provided config.
// It assumes table schemas like:
//
//	CREATE TABLE harvest_runs (
//		run_id TEXT PRIMARY KEY,
//		started_at TIMESTAMPTZ NOT NULL,
//		finished_at TIMESTAMPTZ,
//		links_direct BIGINT, links_probed BIGINT, links_scanned BIGINT,
//		fetched BIGINT, duplicates BIGINT, fetch_failures BIGINT,
//		records_ai BIGINT, records_fallback BIGINT
//	);
//
//	CREATE TABLE harvest_documents (
//		record_id TEXT PRIMARY KEY,
//		run_id TEXT NOT NULL REFERENCES harvest_runs(run_id),
//		content_hash TEXT NOT NULL,
//		source_url TEXT NOT NULL,
//		pdf_path TEXT NOT NULL,
//		byte_size BIGINT NOT NULL,
//		name TEXT, email TEXT, github TEXT, education TEXT,
//		experiences JSONB NOT NULL,
//		extraction_method TEXT NOT NULL,
//		created_at TIMESTAMPTZ DEFAULT NOW()
//	);
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("catalog.dsn is required")
	}
	runs, documents, err := tableNames(cfg.RunsTable, cfg.DocumentsTable)
	if err != nil {
		return nil, err
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{pool: pool, runs: runs, documents: documents}, nil
}

// NewWithPool constructs a catalog from an existing pool (primarily for testing).
func NewWithPool(pool execCloser, runsTable, documentsTable string) (*Store, error) {
	if pool == nil {
		return nil, fmt.Errorf("pool is required")
	}
	runs, documents, err := tableNames(runsTable, documentsTable)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool, runs: runs, documents: documents}, nil
}

func tableNames(runs, documents string) (string, string, error) {
	if runs == "" {
		runs = "harvest_runs"
	}
	if documents == "" {
		documents = "harvest_documents"
	}
	if !validTableName.MatchString(runs) {
		return "", "", fmt.Errorf("invalid runs table name %q", runs)
	}
	if !validTableName.MatchString(documents) {
		return "", "", fmt.Errorf("invalid documents table name %q", documents)
	}
	return runs, documents, nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// StartRun inserts a row for a new run.
func (s *Store) StartRun(ctx context.Context, runID string, startedAt time.Time) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("catalog is not configured")
	}
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	query := fmt.Sprintf(`
INSERT INTO %s (run_id, started_at) VALUES ($1, $2)`, s.runs)
	if _, err := s.pool.Exec(ctx, query, runID, startedAt); err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// RecordDocument inserts one extracted document row. Record IDs derive from
// content hashes, so a rerun over the same corpus may collide; collisions are
// ignored rather than treated as errors.
func (s *Store) RecordDocument(ctx context.Context, runID string, record *harvest.ResumeRecord, doc *harvest.FetchedDocument) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("catalog is not configured")
	}
	if record == nil || record.ID == "" {
		return fmt.Errorf("record id is required")
	}
	experiencesJSON, err := json.Marshal(record.Experiences)
	if err != nil {
		return fmt.Errorf("marshal experiences: %w", err)
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	record_id,
	run_id,
	content_hash,
	source_url,
	pdf_path,
	byte_size,
	name,
	email,
	github,
	education,
	experiences,
	extraction_method
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
) ON CONFLICT (record_id) DO NOTHING`, s.documents)

	args := []any{
		record.ID,
		runID,
		doc.ContentHash,
		record.SourceURL,
		record.PDFPath,
		doc.ByteSize,
		record.Name,
		record.Email,
		record.GitHub,
		record.Education,
		experiencesJSON,
		string(record.Method),
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

// FinishRun stamps the run row with its end time and counters.
func (s *Store) FinishRun(ctx context.Context, runID string, finishedAt time.Time, summary harvest.RunSummary) error {
	if s == nil || s.pool == nil {
		return fmt.Errorf("catalog is not configured")
	}
	if runID == "" {
		return fmt.Errorf("run id is required")
	}
	query := fmt.Sprintf(`
UPDATE %s SET
	finished_at = $2,
	links_direct = $3,
	links_probed = $4,
	links_scanned = $5,
	fetched = $6,
	duplicates = $7,
	fetch_failures = $8,
	records_ai = $9,
	records_fallback = $10
WHERE run_id = $1`, s.runs)

	args := []any{
		runID,
		finishedAt,
		summary.LinksDirect,
		summary.LinksProbed,
		summary.LinksScanned,
		summary.Fetched,
		summary.Duplicates,
		summary.FetchFailures,
		summary.RecordsAI,
		summary.RecordsFallback,
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("update run: %w", err)
	}
	return nil
}

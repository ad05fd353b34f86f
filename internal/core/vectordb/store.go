package vectordb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pgvector/pgvector-go"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/kelechi-nwosu/enrichd/internal/config"
	"github.com/kelechi-nwosu/enrichd/internal/core"
	"github.com/kelechi-nwosu/enrichd/internal/models"
)

// Store is the pgvector-backed implementation of core.VectorStore.
type Store struct {
	db *sql.DB
}

func NewStore(ctx context.Context, cfg *config.Config) (core.VectorStore, error) {
	if cfg == nil {
		return nil, fmt.Errorf("vector store configuration is nil")
	}
	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}

	// Pool settings sized for a small API service.
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)
	db.SetConnMaxIdleTime(10 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	if err := EnsureBootstrapped(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bootstrap: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Upsert writes one embedding record, replacing any previous record with the
// same id. Last writer wins; no concurrency token is used.
func (s *Store) Upsert(ctx context.Context, rec *models.EmbeddingRecord) error {
	if rec == nil {
		return errors.New("nil record")
	}
	const q = `
		INSERT INTO section_embeddings
			(id, tenant_id, file_id, file_url, section_id, heading, summary, body, embedding, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, COALESCE($10, now()))
		ON CONFLICT (id) DO UPDATE SET
			tenant_id = EXCLUDED.tenant_id,
			file_id = EXCLUDED.file_id,
			file_url = EXCLUDED.file_url,
			section_id = EXCLUDED.section_id,
			heading = EXCLUDED.heading,
			summary = EXCLUDED.summary,
			body = EXCLUDED.body,
			embedding = EXCLUDED.embedding
	`
	vec := pgvector.NewVector(rec.Embedding)
	_, err := s.db.ExecContext(ctx, q,
		rec.ID, rec.TenantID, rec.FileID, rec.FileURL, rec.SectionID,
		rec.Heading, rec.Summary, rec.Body, vec, rec.CreatedAt)
	return err
}

// ListByTenant returns up to max records for one tenant partition, newest
// first. The read path ranks them in memory.
func (s *Store) ListByTenant(ctx context.Context, tenantID string, max int) ([]models.EmbeddingRecord, error) {
	const q = `
		SELECT id, tenant_id, file_id, file_url, section_id, heading, summary, body, embedding, created_at
		FROM section_embeddings
		WHERE tenant_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, q, tenantID, max)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []models.EmbeddingRecord
	for rows.Next() {
		var (
			rec models.EmbeddingRecord
			emb pgvector.Vector
		)
		if err := rows.Scan(
			&rec.ID, &rec.TenantID, &rec.FileID, &rec.FileURL, &rec.SectionID,
			&rec.Heading, &rec.Summary, &rec.Body, &emb, &rec.CreatedAt,
		); err != nil {
			return nil, err
		}
		rec.Embedding = emb.Slice()
		out = append(out, rec)
	}
	return out, rows.Err()
}

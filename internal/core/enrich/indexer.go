package enrich

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/kelechi-nwosu/enrichd/internal/core"
	"github.com/kelechi-nwosu/enrichd/internal/core/retry"
	"github.com/kelechi-nwosu/enrichd/internal/models"
)

// Indexer computes one embedding per section and upserts it into the vector
// store under the file's tenant partition.
type Indexer struct {
	embedder core.EmbeddingProvider
	store    core.VectorStore
	retry    retry.Policy
	logger   *zap.Logger
}

func NewIndexer(embedder core.EmbeddingProvider, store core.VectorStore, retryPolicy retry.Policy, logger *zap.Logger) *Indexer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Indexer{embedder: embedder, store: store, retry: retryPolicy, logger: logger}
}

// IndexSections embeds and stores every section, returning how many were
// indexed. A failed section is logged and skipped; it never fails the run.
func (ix *Indexer) IndexSections(ctx context.Context, ref models.FileReference, fileURL string, doc *models.StructuredDocument) int {
	indexed := 0
	for _, sec := range doc.Sections {
		text := sec.Summary
		if text == "" {
			text = sec.Body
		}

		var vecs [][]float32
		err := ix.retry.Do(ctx, "embed-section", func(ctx context.Context) error {
			var embErr error
			vecs, embErr = ix.embedder.EmbedTexts(ctx, []string{text})
			return embErr
		})
		if err != nil || len(vecs) == 0 {
			ix.logger.Warn("embedding failed for section, skipping",
				zap.String("file", ref.Key()),
				zap.String("section", sec.ID),
				zap.Error(err))
			continue
		}

		rec := &models.EmbeddingRecord{
			ID:        uuid.NewString(),
			TenantID:  ref.TenantID,
			FileID:    ref.ItemID,
			FileURL:   fileURL,
			SectionID: sec.ID,
			Heading:   sec.Heading,
			Summary:   sec.Summary,
			Body:      sec.Body,
			Embedding: vecs[0],
			CreatedAt: time.Now(),
		}
		err = ix.retry.Do(ctx, "upsert-section", func(ctx context.Context) error {
			return ix.store.Upsert(ctx, rec)
		})
		if err != nil {
			ix.logger.Warn("vector upsert failed for section, skipping",
				zap.String("file", ref.Key()),
				zap.String("section", sec.ID),
				zap.Error(err))
			continue
		}
		indexed++
	}
	return indexed
}

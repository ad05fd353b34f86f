package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/kelechi-nwosu/enrichd/internal/core"
	"github.com/kelechi-nwosu/enrichd/internal/core/retry"
	"github.com/kelechi-nwosu/enrichd/internal/models"
)

const (
	topMatches = 3

	// defaultMaxCandidates caps how many stored records one query loads for
	// in-memory ranking. Tenants beyond the cap rank only their newest
	// records.
	defaultMaxCandidates = 500

	// NoDocumentsAnswer is returned when a tenant has no stored sections;
	// the inference provider is not called in that case.
	NoDocumentsAnswer = "No relevant documents were found to answer this question."

	answerSystemPrompt = "You are an assistant answering questions based only on the provided document sections. If the sections do not contain the answer, say so."
)

// QueryAnswerer is the read path: rank stored section embeddings against a
// query embedding and synthesize an answer from the top matches.
type QueryAnswerer struct {
	embedder      core.EmbeddingProvider
	llm           core.LLMProvider
	store         core.VectorStore
	retry         retry.Policy
	maxCandidates int
	logger        *zap.Logger
}

type QueryConfig struct {
	MaxCandidates int
}

func NewQueryAnswerer(embedder core.EmbeddingProvider, llm core.LLMProvider, store core.VectorStore, retryPolicy retry.Policy, logger *zap.Logger, cfg QueryConfig) *QueryAnswerer {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxCandidates <= 0 {
		cfg.MaxCandidates = defaultMaxCandidates
	}
	return &QueryAnswerer{
		embedder:      embedder,
		llm:           llm,
		store:         store,
		retry:         retryPolicy,
		maxCandidates: cfg.MaxCandidates,
		logger:        logger,
	}
}

func (q *QueryAnswerer) Answer(ctx context.Context, question, tenantID string) (*models.QueryResponse, error) {
	if strings.TrimSpace(question) == "" {
		return nil, fmt.Errorf("question is empty")
	}
	if tenantID == "" {
		tenantID = defaultTenant
	}

	var records []models.EmbeddingRecord
	err := q.retry.Do(ctx, "list-tenant-sections", func(ctx context.Context) error {
		var listErr error
		records, listErr = q.store.ListByTenant(ctx, tenantID, q.maxCandidates)
		return listErr
	})
	if err != nil {
		return nil, fmt.Errorf("load tenant sections: %w", err)
	}
	if len(records) == 0 {
		return &models.QueryResponse{Answer: NoDocumentsAnswer, Sources: []models.QuerySource{}}, nil
	}

	var vecs [][]float32
	err = q.retry.Do(ctx, "embed-question", func(ctx context.Context) error {
		var embErr error
		vecs, embErr = q.embedder.EmbedTexts(ctx, []string{question})
		return embErr
	})
	if err != nil {
		return nil, fmt.Errorf("embed question: %w", err)
	}
	if len(vecs) == 0 {
		return nil, errors.New("embed question: provider returned no vectors")
	}
	queryVec := vecs[0]

	ranked := rankBySimilarity(queryVec, records)
	if len(ranked) > topMatches {
		ranked = ranked[:topMatches]
	}

	var b strings.Builder
	sources := make([]models.QuerySource, 0, len(ranked))
	for _, m := range ranked {
		fmt.Fprintf(&b, "## %s\n%s\n\n", m.rec.Heading, m.rec.Body)
		sources = append(sources, models.QuerySource{
			FileURL: m.rec.FileURL,
			Heading: m.rec.Heading,
			Score:   m.score,
		})
	}

	userPrompt := fmt.Sprintf("Sections:\n%s\nQuestion: %s", b.String(), question)
	var answer string
	err = q.retry.Do(ctx, "synthesize-answer", func(ctx context.Context) error {
		var genErr error
		answer, genErr = q.llm.Generate(ctx, answerSystemPrompt, userPrompt, 0, 0.3)
		return genErr
	})
	if err != nil {
		return nil, fmt.Errorf("synthesize answer: %w", err)
	}

	return &models.QueryResponse{Answer: answer, Sources: sources}, nil
}

type scoredRecord struct {
	rec   models.EmbeddingRecord
	score float64
}

func rankBySimilarity(query []float32, records []models.EmbeddingRecord) []scoredRecord {
	scored := make([]scoredRecord, 0, len(records))
	for _, rec := range records {
		if len(rec.Embedding) == 0 {
			continue
		}
		scored = append(scored, scoredRecord{rec: rec, score: cosineSimilarity(query, rec.Embedding)})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].score > scored[j].score
	})
	return scored
}

// cosineSimilarity computes dot(a,b) / (‖a‖·‖b‖ + ε). The epsilon guards
// against zero vectors.
func cosineSimilarity(a, b []float32) float64 {
	const eps = 1e-8

	n := len(a)
	if len(b) < n {
		n = len(b)
	}

	var dot, normA, normB float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	return dot / (math.Sqrt(normA)*math.Sqrt(normB) + eps)
}

package enrich

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/kelechi-nwosu/enrichd/internal/core"
	"github.com/kelechi-nwosu/enrichd/internal/core/retry"
	"github.com/kelechi-nwosu/enrichd/internal/models"
)

const systemPrompt = `You are a technical editor. Re-section the provided document into a clean, well-structured form.
Preserve all substantive content; you may expand terse passages for clarity.
Return a JSON object: {"title": string, "sections": [{"id": string, "heading": string, "summary": string, "body": string}]}.
Use at most %d sections. Every section must have a non-empty heading and body.`

const strictSystemPrompt = systemPrompt + `
Return RAW JSON only. No commentary, no markdown fencing, no text before or after the JSON object.`

// Output token budget bounds. The budget itself scales with input size so
// large documents are not truncated and small ones are not over-provisioned.
const (
	minOutputTokens = 1000
	maxOutputTokens = 8000
)

// Enricher drives the AI re-sectioning call and its validation gate. A
// malformed response gets exactly one stricter retry; a second failure is
// terminal for the file and both raw responses go to the review side-channel.
type Enricher struct {
	llm          core.LLMProvider
	reviews      core.ObjectClient
	reviewBucket string
	retry        retry.Policy
	logger       *zap.Logger
}

func NewEnricher(llm core.LLMProvider, reviews core.ObjectClient, reviewBucket string, retryPolicy retry.Policy, logger *zap.Logger) *Enricher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Enricher{llm: llm, reviews: reviews, reviewBucket: reviewBucket, retry: retryPolicy, logger: logger}
}

// Enrich converts raw text (plus any OCR text from embedded images) into a
// validated structured document.
func (e *Enricher) Enrich(ctx context.Context, rawText string, imageOcrTexts []string, correlationID string) (result *ParseOutcome, err error) {
	userPrompt := buildUserPrompt(rawText, imageOcrTexts)
	budget := outputTokenBudget(rawText)

	// Transient provider failures (rate limits, 5xx) are retried here; the
	// validation gate below is a separate, content-level concern.
	var first string
	err = e.retry.Do(ctx, "enrichment-call", func(ctx context.Context) error {
		var genErr error
		first, genErr = e.llm.Generate(ctx, fmt.Sprintf(systemPrompt, MaxSections), userPrompt, budget, 0.2)
		return genErr
	})
	if err != nil {
		return nil, fmt.Errorf("enrichment call: %w", err)
	}
	res := ParseStructuredDocument(first)
	if res.Valid() {
		return &ParseOutcome{Doc: res.Doc, Attempts: 1}, nil
	}
	e.logger.Warn("enrichment response failed validation, retrying with strict prompt",
		zap.String("correlationId", correlationID),
		zap.String("reason", res.Reason))

	var second string
	err = e.retry.Do(ctx, "enrichment-strict-call", func(ctx context.Context) error {
		var genErr error
		second, genErr = e.llm.Generate(ctx, fmt.Sprintf(strictSystemPrompt, MaxSections), userPrompt, budget, 0.0)
		return genErr
	})
	if err != nil {
		return nil, fmt.Errorf("enrichment retry call: %w", err)
	}
	res = ParseStructuredDocument(second)
	if res.Valid() {
		return &ParseOutcome{Doc: res.Doc, Attempts: 2}, nil
	}

	e.persistForReview(ctx, correlationID, first, second)
	return nil, &ValidationError{Reason: res.Reason, CorrelationID: correlationID}
}

// ParseOutcome reports the validated document and how many model calls it
// took to obtain it.
type ParseOutcome struct {
	Doc      *models.StructuredDocument
	Attempts int
}

// persistForReview stores both raw responses for manual inspection. Failures
// here are logged only; the terminal validation error still stands.
func (e *Enricher) persistForReview(ctx context.Context, correlationID, first, second string) {
	if e.reviews == nil {
		return
	}
	for i, raw := range []string{first, second} {
		key := fmt.Sprintf("reviews/%s/attempt-%d.txt", correlationID, i+1)
		if _, err := e.reviews.UploadFile(ctx, e.reviewBucket, key, []byte(raw), "text/plain"); err != nil {
			e.logger.Error("failed to persist raw enrichment response",
				zap.String("key", key), zap.Error(err))
		}
	}
}

func buildUserPrompt(rawText string, imageOcrTexts []string) string {
	var b strings.Builder
	b.WriteString("Document text:\n")
	b.WriteString(rawText)
	for i, ocr := range imageOcrTexts {
		if strings.TrimSpace(ocr) == "" {
			continue
		}
		fmt.Fprintf(&b, "\n\nText extracted from embedded image %d:\n%s", i+1, ocr)
	}
	return b.String()
}

// outputTokenBudget provisions roughly twice the input token estimate,
// clamped to the configured floor and ceiling.
func outputTokenBudget(rawText string) int {
	budget := approxTokens(rawText) * 2
	if budget < minOutputTokens {
		return minOutputTokens
	}
	if budget > maxOutputTokens {
		return maxOutputTokens
	}
	return budget
}

// approxTokens is a cheap token estimator (~4 chars ≈ 1 token).
func approxTokens(s string) int {
	n := len([]rune(s))
	if n <= 0 {
		return 0
	}
	return (n + 3) / 4
}

package enrich

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"

	"github.com/kelechi-nwosu/enrichd/internal/core/retry"
)

func testPolicy() retry.Policy {
	return retry.NewPolicy(2, time.Millisecond, 5*time.Millisecond, nil)
}

type fakeLLM struct {
	responses   []string
	err         error
	rateLimited int // initial calls answered with a 429 before responses flow
	calls       int
}

func (f *fakeLLM) Generate(ctx context.Context, system, user string, maxTokens int, temperature float32) (string, error) {
	f.calls++
	if f.rateLimited > 0 {
		f.rateLimited--
		return "", &googleapi.Error{Code: 429, Message: "quota exceeded"}
	}
	if f.err != nil {
		return "", f.err
	}
	if f.calls > len(f.responses) {
		return f.responses[len(f.responses)-1], nil
	}
	return f.responses[f.calls-1], nil
}

type fakeObjectClient struct {
	uploads map[string][]byte
	err     error
}

func newFakeObjectClient() *fakeObjectClient {
	return &fakeObjectClient{uploads: make(map[string][]byte)}
}

func (f *fakeObjectClient) UploadFile(ctx context.Context, bucket, key string, data []byte, contentType string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	f.uploads[key] = data
	return "https://" + bucket + "/" + key, nil
}

func (f *fakeObjectClient) GetFile(ctx context.Context, bucket, key string) ([]byte, error) {
	return f.uploads[key], nil
}

func (f *fakeObjectClient) DeleteFile(ctx context.Context, bucket, key string) error {
	delete(f.uploads, key)
	return nil
}

const validResponse = `{"title":"Doc","sections":[{"id":"s1","heading":"Intro","summary":"sum","body":"body text"}]}`

func TestEnrichValidFirstResponseSingleCall(t *testing.T) {
	llm := &fakeLLM{responses: []string{validResponse}}
	e := NewEnricher(llm, nil, "", testPolicy(), nil)

	out, err := e.Enrich(context.Background(), "raw text", nil, "c1")
	require.NoError(t, err)
	assert.Equal(t, 1, llm.calls)
	assert.Equal(t, 1, out.Attempts)
	require.Len(t, out.Doc.Sections, 1)
	assert.Equal(t, "Intro", out.Doc.Sections[0].Heading)
}

func TestEnrichMalformedThenValidIssuesTwoCalls(t *testing.T) {
	llm := &fakeLLM{responses: []string{"I think the document is about...", validResponse}}
	e := NewEnricher(llm, nil, "", testPolicy(), nil)

	out, err := e.Enrich(context.Background(), "raw text", nil, "c2")
	require.NoError(t, err)
	assert.Equal(t, 2, llm.calls)
	assert.Equal(t, 2, out.Attempts)
}

func TestEnrichTwoMalformedResponsesIsTerminal(t *testing.T) {
	llm := &fakeLLM{responses: []string{"not json", "still not json"}}
	reviews := newFakeObjectClient()
	e := NewEnricher(llm, reviews, "review-bucket", testPolicy(), nil)

	_, err := e.Enrich(context.Background(), "raw text", nil, "c3")
	require.Error(t, err)

	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "c3", vErr.CorrelationID)
	assert.Equal(t, 2, llm.calls, "exactly original + 1 retry")

	// Both raw responses persisted for manual review.
	assert.Equal(t, []byte("not json"), reviews.uploads["reviews/c3/attempt-1.txt"])
	assert.Equal(t, []byte("still not json"), reviews.uploads["reviews/c3/attempt-2.txt"])
}

func TestEnrichRetriesRateLimitedProviderCall(t *testing.T) {
	llm := &fakeLLM{rateLimited: 1, responses: []string{validResponse}}
	e := NewEnricher(llm, nil, "", testPolicy(), nil)

	out, err := e.Enrich(context.Background(), "raw text", nil, "c6")
	require.NoError(t, err)
	assert.Equal(t, 2, llm.calls, "rate-limited call retried once")
	assert.Equal(t, 1, out.Attempts, "still a single validation attempt")
}

func TestEnrichGivesUpAfterPersistentRateLimit(t *testing.T) {
	llm := &fakeLLM{rateLimited: 10, responses: []string{validResponse}}
	e := NewEnricher(llm, nil, "", testPolicy(), nil)

	_, err := e.Enrich(context.Background(), "raw text", nil, "c7")
	require.Error(t, err)

	var vErr *ValidationError
	assert.False(t, errors.As(err, &vErr), "infrastructure exhaustion is not a content failure")
	assert.Equal(t, 2, llm.calls)
}

func TestEnrichInfrastructureErrorIsNotValidationError(t *testing.T) {
	llm := &fakeLLM{err: errors.New("connection reset")}
	e := NewEnricher(llm, nil, "", testPolicy(), nil)

	_, err := e.Enrich(context.Background(), "raw text", nil, "c4")
	require.Error(t, err)

	var vErr *ValidationError
	assert.False(t, errors.As(err, &vErr))
	assert.Equal(t, 1, llm.calls)
}

func TestEnrichAcceptsFencedJSON(t *testing.T) {
	llm := &fakeLLM{responses: []string{"```json\n" + validResponse + "\n```"}}
	e := NewEnricher(llm, nil, "", testPolicy(), nil)

	out, err := e.Enrich(context.Background(), "raw text", nil, "c5")
	require.NoError(t, err)
	assert.Equal(t, 1, out.Attempts)
}

func TestOutputTokenBudgetClamped(t *testing.T) {
	assert.Equal(t, minOutputTokens, outputTokenBudget("short"))

	big := make([]byte, 100000)
	for i := range big {
		big[i] = 'a'
	}
	assert.Equal(t, maxOutputTokens, outputTokenBudget(string(big)))

	// Mid-range input scales at roughly 2x the token estimate.
	mid := make([]byte, 8000) // ~2000 tokens -> 4000 budget
	for i := range mid {
		mid[i] = 'a'
	}
	assert.Equal(t, 4000, outputTokenBudget(string(mid)))
}

func TestValidateRejectsSchemaViolations(t *testing.T) {
	cases := []struct {
		name string
		raw  string
	}{
		{"empty", ""},
		{"not json", "hello"},
		{"no sections", `{"title":"x","sections":[]}`},
		{"empty heading", `{"sections":[{"id":"s1","heading":"","body":"b"}]}`},
		{"empty body", `{"sections":[{"id":"s1","heading":"h","body":"  "}]}`},
		{"duplicate ids", `{"sections":[{"id":"s1","heading":"a","body":"b"},{"id":"s1","heading":"c","body":"d"}]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res := ParseStructuredDocument(tc.raw)
			assert.False(t, res.Valid())
			assert.NotEmpty(t, res.Reason)
		})
	}
}

func TestValidateRejectsTooManySections(t *testing.T) {
	raw := `{"sections":[`
	for i := 0; i <= MaxSections; i++ {
		if i > 0 {
			raw += ","
		}
		raw += fmt.Sprintf(`{"id":"s%d","heading":"h%d","body":"b%d"}`, i, i, i)
	}
	raw += `]}`

	res := ParseStructuredDocument(raw)
	assert.False(t, res.Valid())
}

func TestValidateAssignsMissingIDs(t *testing.T) {
	res := ParseStructuredDocument(`{"sections":[{"heading":"h","body":"b"},{"heading":"h2","body":"b2"}]}`)
	require.True(t, res.Valid())
	assert.Equal(t, "s1", res.Doc.Sections[0].ID)
	assert.Equal(t, "s2", res.Doc.Sections[1].ID)
}

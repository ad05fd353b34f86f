package enrich

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kelechi-nwosu/enrichd/internal/models"
)

// MaxSections caps how many sections the model may return.
const MaxSections = 15

// ValidationError is the terminal content-correctness failure: the model's
// output failed schema validation twice. It is never retried as a transient
// infrastructure error.
type ValidationError struct {
	Reason        string
	CorrelationID string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("enrichment result invalid (%s): %s", e.CorrelationID, e.Reason)
}

// ParseResult is the outcome of validating raw model output: either a valid
// structured document or the reason it was rejected.
type ParseResult struct {
	Doc    *models.StructuredDocument
	Reason string
}

func (r ParseResult) Valid() bool {
	return r.Doc != nil
}

func invalid(format string, args ...any) ParseResult {
	return ParseResult{Reason: fmt.Sprintf(format, args...)}
}

// ParseStructuredDocument validates raw model output against the section
// schema. Pure function; the retry orchestration lives in the enricher.
func ParseStructuredDocument(raw string) ParseResult {
	cleaned := stripCodeFence(strings.TrimSpace(raw))
	if cleaned == "" {
		return invalid("empty response")
	}

	var doc models.StructuredDocument
	if err := json.Unmarshal([]byte(cleaned), &doc); err != nil {
		return invalid("not valid JSON: %v", err)
	}

	if len(doc.Sections) == 0 {
		return invalid("no sections")
	}
	if len(doc.Sections) > MaxSections {
		return invalid("too many sections: %d > %d", len(doc.Sections), MaxSections)
	}

	seen := make(map[string]bool, len(doc.Sections))
	for i := range doc.Sections {
		s := &doc.Sections[i]
		if strings.TrimSpace(s.Heading) == "" {
			return invalid("section %d has empty heading", i+1)
		}
		if strings.TrimSpace(s.Body) == "" {
			return invalid("section %d has empty body", i+1)
		}
		if s.ID == "" {
			s.ID = fmt.Sprintf("s%d", i+1)
		}
		if seen[s.ID] {
			return invalid("duplicate section id %q", s.ID)
		}
		seen[s.ID] = true
	}

	return ParseResult{Doc: &doc}
}

// stripCodeFence removes a markdown code fence the model sometimes wraps its
// JSON in, despite instructions.
func stripCodeFence(s string) string {
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}

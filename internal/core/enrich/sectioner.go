package enrich

import (
	"fmt"
	"regexp"
	"strings"
	"unicode"

	"github.com/kelechi-nwosu/enrichd/internal/models"
)

// headingRule is one independent predicate for classifying a line as a
// section heading. Rules are evaluated in order; the first match wins.
type headingRule struct {
	name  string
	match func(line string, lineNo int) bool
}

var numberedHeading = regexp.MustCompile(`^\d+(\.\d+)*[.)]?\s+\S`)

var headingRules = []headingRule{
	{
		name: "numbered",
		match: func(line string, _ int) bool {
			return numberedHeading.MatchString(line) && len(line) <= 120
		},
	},
	{
		name: "caps-line",
		match: func(line string, _ int) bool {
			return len(line) <= 80 && isMostlyCaps(line)
		},
	},
	{
		name: "colon-phrase",
		match: func(line string, _ int) bool {
			return strings.HasSuffix(line, ":") && len(line) <= 60 &&
				!strings.Contains(strings.TrimSuffix(line, ":"), ":")
		},
	},
	{
		name: "short-first-line",
		match: func(line string, lineNo int) bool {
			return lineNo == 0 && len(line) <= 60 && !strings.ContainsAny(line, ".,;:!?")
		},
	},
}

func isMostlyCaps(line string) bool {
	letters, caps := 0, 0
	for _, r := range line {
		if unicode.IsLetter(r) {
			letters++
			if unicode.IsUpper(r) {
				caps++
			}
		}
	}
	if letters < 3 {
		return false
	}
	return float64(caps)/float64(letters) >= 0.8
}

func isHeading(line string, lineNo int) bool {
	for _, rule := range headingRules {
		if rule.match(line, lineNo) {
			return true
		}
	}
	return false
}

// SectionText is the rule-based fallback splitter. It is total: any non-empty
// input yields at least one section with non-empty heading and body; an empty
// input yields an empty section list.
func SectionText(text string) *models.StructuredDocument {
	doc := &models.StructuredDocument{}

	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return doc
	}

	var current *models.Section
	flush := func() {
		if current == nil {
			return
		}
		current.Body = strings.TrimSpace(current.Body)
		if current.Body == "" {
			// A heading with no content keeps its heading as body so the
			// non-empty invariant holds downstream.
			current.Body = current.Heading
		}
		current.Summary = summarize(current.Body)
		doc.Sections = append(doc.Sections, *current)
		current = nil
	}

	lineNo := 0
	for _, raw := range strings.Split(trimmed, "\n") {
		line := strings.TrimSpace(raw)
		if line == "" {
			continue
		}

		if isHeading(line, lineNo) {
			flush()
			current = &models.Section{
				ID:      fmt.Sprintf("s%d", len(doc.Sections)+1),
				Heading: strings.TrimSuffix(line, ":"),
			}
			if doc.Title == "" {
				doc.Title = current.Heading
			}
		} else {
			if current == nil {
				current = &models.Section{
					ID:      fmt.Sprintf("s%d", len(doc.Sections)+1),
					Heading: "Content",
				}
			}
			if current.Body != "" {
				current.Body += "\n"
			}
			current.Body += line
		}
		lineNo++
	}
	flush()

	if doc.Title == "" && len(doc.Sections) > 0 {
		doc.Title = doc.Sections[0].Heading
	}
	return doc
}

var sentenceEnd = regexp.MustCompile(`[.!?](\s|$)`)

// summarize returns the first sentence when it fits in 200 chars, otherwise
// the first 40 words with an ellipsis.
func summarize(body string) string {
	body = strings.TrimSpace(strings.ReplaceAll(body, "\n", " "))
	if body == "" {
		return ""
	}

	if loc := sentenceEnd.FindStringIndex(body); loc != nil {
		sentence := strings.TrimSpace(body[:loc[0]+1])
		if len(sentence) <= 200 {
			return sentence
		}
	}

	words := strings.Fields(body)
	if len(words) <= 40 {
		return strings.Join(words, " ")
	}
	return strings.Join(words[:40], " ") + "..."
}

package enrich

import (
	"fmt"
	"time"

	"github.com/kelechi-nwosu/enrichd/internal/core/codec"
	"github.com/kelechi-nwosu/enrichd/internal/models"
)

const defaultTitle = "Untitled Document"

// Assembler turns a structured document into final bytes with the standard
// layout: cover page, TOC field, section blocks, captioned figures and a
// seeded revision-history table.
type Assembler struct {
	codec  codec.Codec
	author string
	now    func() time.Time
}

func NewAssembler(c codec.Codec, author string) *Assembler {
	return &Assembler{codec: c, author: author, now: time.Now}
}

func (a *Assembler) Assemble(doc *models.StructuredDocument) ([]byte, error) {
	data, err := a.codec.Build(a.Plan(doc))
	if err != nil {
		return nil, fmt.Errorf("assemble document: %w", err)
	}
	return data, nil
}

// Plan produces the ordered block layout. Exposed separately so the layout
// rules are testable without inspecting document bytes.
func (a *Assembler) Plan(doc *models.StructuredDocument) []codec.Block {
	title := doc.Title
	if title == "" {
		title = defaultTitle
	}
	now := a.now()

	blocks := []codec.Block{
		codec.Paragraph{Text: title, Style: codec.StyleTitle},
		codec.Paragraph{Text: "Generated " + now.Format("2 January 2006 15:04 MST")},
		codec.PageBreak{},
		codec.TOCField{},
		codec.PageBreak{},
	}

	for i, sec := range doc.Sections {
		blocks = append(blocks, codec.Paragraph{
			Text:  sec.Heading,
			Style: headingStyle(doc.Sections, i),
		})
		if sec.Summary != "" {
			blocks = append(blocks, codec.Paragraph{Text: sec.Summary})
		}
		blocks = append(blocks, codec.Paragraph{Text: sec.Body})
	}

	// The figures heading stays even with no images; only the content is
	// skipped.
	blocks = append(blocks, codec.Paragraph{Text: "Figures", Style: codec.StyleHeading1})
	for i, img := range doc.Images {
		cx, cy := codec.ImageExtents(img.Bytes)
		blocks = append(blocks,
			codec.Image{Name: img.Name, Data: img.Bytes, WidthEMU: cx, HeightEMU: cy},
			codec.Paragraph{Text: fmt.Sprintf("Figure %d", i+1), Style: codec.StyleCaption},
		)
	}

	blocks = append(blocks,
		codec.Paragraph{Text: "Revision History", Style: codec.StyleHeading1},
		codec.Table{Rows: [][]string{
			{"Date", "Author", "Notes"},
			{now.Format("2006-01-02"), a.author, "Initial enriched version"},
		}},
	)

	return trimTrailingBlanks(blocks)
}

// headingStyle picks the outline level. The first section is always level 1;
// later sections drop to level 2 when their body is shorter than the
// previous one, otherwise the level alternates.
func headingStyle(sections []models.Section, i int) string {
	if i == 0 {
		return codec.StyleHeading1
	}
	if len(sections[i].Body) < len(sections[i-1].Body) {
		return codec.StyleHeading2
	}
	if headingStyle(sections, i-1) == codec.StyleHeading1 {
		return codec.StyleHeading2
	}
	return codec.StyleHeading1
}

// trimTrailingBlanks drops empty paragraphs and page breaks from the tail so
// the rendered document does not end on a blank page.
func trimTrailingBlanks(blocks []codec.Block) []codec.Block {
	for len(blocks) > 0 {
		switch blk := blocks[len(blocks)-1].(type) {
		case codec.PageBreak:
			blocks = blocks[:len(blocks)-1]
		case codec.Paragraph:
			if !blk.IsBlank() {
				return blocks
			}
			blocks = blocks[:len(blocks)-1]
		default:
			return blocks
		}
	}
	return blocks
}

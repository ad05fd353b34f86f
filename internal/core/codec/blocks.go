package codec

// Block is one element of a document layout plan. The assembler decides the
// block order; the codec only renders it.
type Block interface {
	isBlock()
}

// Paragraph styles understood by the builder.
const (
	StyleTitle    = "Title"
	StyleHeading1 = "Heading1"
	StyleHeading2 = "Heading2"
	StyleCaption  = "Caption"
)

// Paragraph is a styled run of text. An empty Style renders as body text.
type Paragraph struct {
	Text  string
	Style string
}

func (Paragraph) isBlock() {}

// IsBlank reports whether the paragraph renders no visible content.
func (p Paragraph) IsBlank() bool {
	return p.Text == ""
}

// TOCField is a table-of-contents placeholder; page numbers can only be
// computed by the end viewer, so the field is emitted dirty for regeneration.
type TOCField struct{}

func (TOCField) isBlock() {}

// Image is an embedded picture with pre-computed extents in EMUs.
type Image struct {
	Name      string
	Data      []byte
	WidthEMU  int64
	HeightEMU int64
}

func (Image) isBlock() {}

// Table is a simple grid; the first row is rendered as the header.
type Table struct {
	Rows [][]string
}

func (Table) isBlock() {}

// PageBreak forces the following block onto a new page.
type PageBreak struct{}

func (PageBreak) isBlock() {}

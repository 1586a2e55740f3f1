// Package layout turns PDF pages into blocks, lines and styled spans and
// supports the text search and highlight operations used to mark sections
// back in the source document.
package layout

import "strings"

// Flags are span style bits. Bit values match the common PDF text-extraction
// convention (italic = 2, bold = 16).
type Flags uint8

const (
	FlagItalic Flags = 1 << 1
	FlagBold   Flags = 1 << 4
)

// Bold reports whether the bold bit is set.
func (f Flags) Bold() bool { return f&FlagBold != 0 }

// Italic reports whether the italic bit is set.
func (f Flags) Italic() bool { return f&FlagItalic != 0 }

// Rect is an axis-aligned rectangle in PDF user space (origin bottom-left).
type Rect struct {
	X0, Y0 float64 // lower-left
	X1, Y1 float64 // upper-right
}

// Empty reports whether the rectangle has no area.
func (r Rect) Empty() bool {
	return r.X1 <= r.X0 || r.Y1 <= r.Y0
}

// Union returns the smallest rectangle containing r and o. An empty operand
// is ignored.
func (r Rect) Union(o Rect) Rect {
	if r.Empty() {
		return o
	}
	if o.Empty() {
		return r
	}
	return Rect{
		X0: min(r.X0, o.X0),
		Y0: min(r.Y0, o.Y0),
		X1: max(r.X1, o.X1),
		Y1: max(r.Y1, o.Y1),
	}
}

// Height returns the vertical extent.
func (r Rect) Height() float64 { return r.Y1 - r.Y0 }

// Span is a run of glyphs drawn with one font at one size.
type Span struct {
	Text  string
	Font  string
	Size  float64
	Flags Flags
	BBox  Rect
	// Boxes holds one rectangle per rune of Text. Inserted word spaces get a
	// zero-width box.
	Boxes []Rect
}

// Line is a sequence of spans sharing a baseline.
type Line struct {
	Spans []Span
	BBox  Rect
}

// Text returns the concatenated span text.
func (l Line) Text() string {
	var sb strings.Builder
	for _, s := range l.Spans {
		sb.WriteString(s.Text)
	}
	return sb.String()
}

// BlockKind distinguishes text blocks from drawn graphics.
type BlockKind int

const (
	BlockText BlockKind = iota
	BlockGraphic
)

// Block is a group of vertically adjacent lines, or a drawn rectangle.
type Block struct {
	Kind  BlockKind
	Lines []Line
	BBox  Rect
}

// Page is the layout of one PDF page.
type Page struct {
	Number int // 1-based
	Width  float64
	Height float64
	// Top is the upper edge of the media box in user space.
	Top    float64
	Blocks []Block
}

// TopOffset converts the upper edge of r into a distance from the top of the
// page, the orientation the segmenter records positions in.
func (p Page) TopOffset(r Rect) float64 {
	return p.Top - r.Y1
}

// TextLines returns the text lines of all text blocks in order.
func (p Page) TextLines() []Line {
	var lines []Line
	for _, b := range p.Blocks {
		if b.Kind != BlockText {
			continue
		}
		lines = append(lines, b.Lines...)
	}
	return lines
}

// Text returns the plain page text, one line per text line.
func (p Page) Text() string {
	lines := p.TextLines()
	parts := make([]string, len(lines))
	for i, l := range lines {
		parts[i] = l.Text()
	}
	return strings.Join(parts, "\n")
}

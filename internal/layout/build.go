package layout

import (
	"math"
	"strings"
	"unicode"

	pdflib "github.com/ledongthuc/pdf"
)

const (
	// Glyphs whose baselines differ by less than this fraction of the font
	// size belong to the same line.
	lineToleranceRatio = 0.3
	minLineTolerance   = 1.0

	// A horizontal gap wider than this fraction of the font size is a word
	// break.
	wordSpaceRatio = 0.3

	// A vertical gap wider than this multiple of the previous line height
	// starts a new block.
	blockGapRatio = 1.8

	// Glyph boxes extend this fraction of the font size below and above the
	// baseline.
	descentRatio = 0.2
	ascentRatio  = 0.8

	// Width assumed for glyphs whose font carries no width table.
	fallbackWidthRatio = 0.5
)

var boldMarkers = []string{"bold", "black", "heavy", "demi"}

// fontFlags derives style bits from a base font name such as
// "Helvetica-BoldOblique".
func fontFlags(name string) Flags {
	lower := strings.ToLower(name)
	var f Flags
	for _, m := range boldMarkers {
		if strings.Contains(lower, m) {
			f |= FlagBold
			break
		}
	}
	if strings.Contains(lower, "italic") || strings.Contains(lower, "oblique") {
		f |= FlagItalic
	}
	return f
}

func glyphSize(g pdflib.Text) float64 {
	return math.Abs(g.FontSize)
}

func glyphWidth(g pdflib.Text) float64 {
	if w := math.Abs(g.W); w > 0 {
		return w
	}
	return fallbackWidthRatio * glyphSize(g)
}

func glyphBox(g pdflib.Text) Rect {
	size := glyphSize(g)
	return Rect{
		X0: g.X,
		Y0: g.Y - descentRatio*size,
		X1: g.X + glyphWidth(g),
		Y1: g.Y + ascentRatio*size,
	}
}

func isBlank(s string) bool {
	return strings.TrimFunc(s, unicode.IsSpace) == ""
}

// buildPage groups glyphs (in content-stream order) into lines and blocks.
// Drawn rectangles become graphic blocks after the text blocks.
func buildPage(number int, mediaBox Rect, content pdflib.Content) Page {
	page := Page{
		Number: number,
		Width:  mediaBox.X1 - mediaBox.X0,
		Height: mediaBox.Y1 - mediaBox.Y0,
		Top:    mediaBox.Y1,
	}
	page.Blocks = buildBlocks(buildLines(content.Text))
	for _, r := range content.Rect {
		page.Blocks = append(page.Blocks, Block{
			Kind: BlockGraphic,
			BBox: Rect{X0: r.Min.X, Y0: r.Min.Y, X1: r.Max.X, Y1: r.Max.Y},
		})
	}
	return page
}

// buildLines splits glyphs into lines whenever the baseline moves. Stream
// order is preserved within a line.
func buildLines(glyphs []pdflib.Text) []Line {
	var lines []Line
	var current []pdflib.Text

	flush := func() {
		if len(current) == 0 {
			return
		}
		if l, ok := assembleLine(current); ok {
			lines = append(lines, l)
		}
		current = nil
	}

	for _, g := range glyphs {
		if g.S == "" {
			continue
		}
		if len(current) > 0 && !sameBaseline(current[0], g) {
			flush()
		}
		current = append(current, g)
	}
	flush()
	return lines
}

func sameBaseline(first, g pdflib.Text) bool {
	tol := lineToleranceRatio * max(glyphSize(first), glyphSize(g))
	if tol < minLineTolerance {
		tol = minLineTolerance
	}
	return math.Abs(first.Y-g.Y) <= tol
}

// assembleLine splits one line's glyphs into spans on font or size changes.
// Returns false when the line carries no visible text.
func assembleLine(glyphs []pdflib.Text) (Line, bool) {
	var line Line
	var cur *Span
	var sb strings.Builder
	var prev *pdflib.Text
	visible := false

	closeSpan := func() {
		if cur == nil {
			return
		}
		cur.Text = sb.String()
		line.Spans = append(line.Spans, *cur)
		line.BBox = line.BBox.Union(cur.BBox)
		cur = nil
		sb.Reset()
	}

	for i := range glyphs {
		g := glyphs[i]
		size := glyphSize(g)
		box := glyphBox(g)

		gap := false
		if prev != nil && !isBlank(prev.S) && !isBlank(g.S) {
			gap = g.X-(prev.X+glyphWidth(*prev)) > wordSpaceRatio*size
		}

		if cur == nil || cur.Font != g.Font || math.Abs(cur.Size-size) > 0.01 {
			closeSpan()
			cur = &Span{Font: g.Font, Size: size, Flags: fontFlags(g.Font)}
		}
		if gap {
			sb.WriteByte(' ')
			cur.Boxes = append(cur.Boxes, Rect{X0: box.X0, Y0: box.Y0, X1: box.X0, Y1: box.Y1})
		}
		for range g.S {
			cur.Boxes = append(cur.Boxes, box)
		}
		sb.WriteString(g.S)
		if !isBlank(g.S) {
			cur.BBox = cur.BBox.Union(box)
			visible = true
		}
		prev = &glyphs[i]
	}
	closeSpan()
	return line, visible
}

// buildBlocks starts a new block when the vertical gap to the previous line
// is large or the text jumps back up the page (a new column).
func buildBlocks(lines []Line) []Block {
	var blocks []Block
	var cur *Block
	for i, l := range lines {
		if cur != nil && i > 0 {
			prev := lines[i-1]
			gap := prev.BBox.Y0 - l.BBox.Y1
			if gap > blockGapRatio*prev.BBox.Height() || l.BBox.Y0 > prev.BBox.Y1 {
				blocks = append(blocks, *cur)
				cur = nil
			}
		}
		if cur == nil {
			cur = &Block{Kind: BlockText}
		}
		cur.Lines = append(cur.Lines, l)
		cur.BBox = cur.BBox.Union(l.BBox)
	}
	if cur != nil {
		blocks = append(blocks, *cur)
	}
	return blocks
}

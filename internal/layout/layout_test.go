package layout

import (
	"bytes"
	"os"
	"testing"

	pdflib "github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/docrank/internal/layout/layouttest"
)

// glyphs lays out s as fixed-width glyphs starting at x on baseline y.
func glyphs(font string, size, x, y float64, s string) []pdflib.Text {
	w := size * 0.5
	var out []pdflib.Text
	for _, r := range s {
		out = append(out, pdflib.Text{Font: font, FontSize: size, X: x, Y: y, W: w, S: string(r)})
		x += w
	}
	return out
}

func TestFontFlags(t *testing.T) {
	cases := []struct {
		font string
		want Flags
	}{
		{"Helvetica", 0},
		{"Helvetica-Bold", FlagBold},
		{"Arial-BoldItalicMT", FlagBold | FlagItalic},
		{"Times-Oblique", FlagItalic},
		{"OpenSans-Semibold", FlagBold},
		{"Roboto-Black", FlagBold},
	}
	for _, tc := range cases {
		t.Run(tc.font, func(t *testing.T) {
			assert.Equal(t, tc.want, fontFlags(tc.font))
		})
	}
}

func TestRectUnion(t *testing.T) {
	a := Rect{X0: 0, Y0: 0, X1: 10, Y1: 10}
	b := Rect{X0: 5, Y0: -5, X1: 20, Y1: 8}
	assert.Equal(t, Rect{X0: 0, Y0: -5, X1: 20, Y1: 10}, a.Union(b))
	assert.Equal(t, a, Rect{}.Union(a))
	assert.Equal(t, a, a.Union(Rect{}))
}

func TestBuildLinesSplitsOnBaseline(t *testing.T) {
	var g []pdflib.Text
	g = append(g, glyphs("Helvetica", 12, 72, 700, "First")...)
	g = append(g, glyphs("Helvetica", 12, 72, 686, "Second")...)

	lines := buildLines(g)
	require.Len(t, lines, 2)
	assert.Equal(t, "First", lines[0].Text())
	assert.Equal(t, "Second", lines[1].Text())
}

func TestBuildLinesInsertsWordSpace(t *testing.T) {
	var g []pdflib.Text
	g = append(g, glyphs("Helvetica", 10, 72, 700, "Hello")...)
	g = append(g, glyphs("Helvetica", 10, 72+5*5+6, 700, "World")...)

	lines := buildLines(g)
	require.Len(t, lines, 1)
	assert.Equal(t, "Hello World", lines[0].Text())

	span := lines[0].Spans[0]
	assert.Len(t, span.Boxes, len([]rune(span.Text)))
}

func TestBuildLinesSplitsSpansOnFontChange(t *testing.T) {
	var g []pdflib.Text
	g = append(g, glyphs("Helvetica-Bold", 12, 72, 700, "Note:")...)
	g = append(g, glyphs("Helvetica", 12, 72+30+4, 700, "body")...)

	lines := buildLines(g)
	require.Len(t, lines, 1)
	require.Len(t, lines[0].Spans, 2)
	assert.True(t, lines[0].Spans[0].Flags.Bold())
	assert.False(t, lines[0].Spans[1].Flags.Bold())
	assert.Equal(t, "Note: body", lines[0].Text())
}

func TestBuildLinesDropsBlankLines(t *testing.T) {
	g := glyphs("Helvetica", 12, 72, 700, "   ")
	assert.Empty(t, buildLines(g))
}

func TestBuildBlocksSplitsOnLargeGap(t *testing.T) {
	var g []pdflib.Text
	g = append(g, glyphs("Helvetica", 10, 72, 700, "one")...)
	g = append(g, glyphs("Helvetica", 10, 72, 688, "two")...)
	g = append(g, glyphs("Helvetica", 10, 72, 600, "three")...)

	blocks := buildBlocks(buildLines(g))
	require.Len(t, blocks, 2)
	assert.Len(t, blocks[0].Lines, 2)
	assert.Len(t, blocks[1].Lines, 1)
}

func TestBuildPageGeometry(t *testing.T) {
	content := pdflib.Content{
		Text: glyphs("Helvetica", 10, 72, 700, "Heading"),
		Rect: []pdflib.Rect{{Min: pdflib.Point{X: 10, Y: 10}, Max: pdflib.Point{X: 20, Y: 20}}},
	}
	page := buildPage(1, Rect{X1: 612, Y1: 792}, content)

	assert.Equal(t, 612.0, page.Width)
	assert.Equal(t, 792.0, page.Height)
	require.Len(t, page.Blocks, 2)
	assert.Equal(t, BlockText, page.Blocks[0].Kind)
	assert.Equal(t, BlockGraphic, page.Blocks[1].Kind)
	assert.Equal(t, "Heading", page.Text())

	// Box top sits 0.8 * size above the baseline.
	assert.InDelta(t, 792-708, page.TopOffset(page.Blocks[0].BBox), 1e-9)
}

func TestSearchOneRectPerLine(t *testing.T) {
	var g []pdflib.Text
	g = append(g, glyphs("Helvetica", 10, 72, 700, "Executive Summary")...)
	g = append(g, glyphs("Helvetica", 10, 72, 686, "The quarter closed strong.")...)
	page := buildPage(1, Rect{X1: 612, Y1: 792}, pdflib.Content{Text: g})

	rects := Search(page, "Summary\nThe quarter")
	require.Len(t, rects, 2)
	assert.Greater(t, rects[0].Y0, rects[1].Y0)
	assert.Equal(t, 72.0, rects[1].X0)
}

func TestSearchCollapsesWhitespace(t *testing.T) {
	page := buildPage(1, Rect{X1: 612, Y1: 792}, pdflib.Content{
		Text: glyphs("Helvetica", 10, 72, 700, "alpha  beta"),
	})
	assert.Len(t, Search(page, "alpha beta"), 1)
	assert.Len(t, Search(page, "alpha \n beta"), 1)
	assert.Empty(t, Search(page, "gamma"))
	assert.Empty(t, Search(page, "   "))
}

func TestSearchIsCaseSensitive(t *testing.T) {
	page := buildPage(1, Rect{X1: 612, Y1: 792}, pdflib.Content{
		Text: glyphs("Helvetica", 10, 72, 700, "Budget"),
	})
	assert.Empty(t, Search(page, "budget"))
	assert.Len(t, Search(page, "Budget"), 1)
}

func TestSearchFindsEveryOccurrence(t *testing.T) {
	var g []pdflib.Text
	g = append(g, glyphs("Helvetica", 10, 72, 700, "risk")...)
	g = append(g, glyphs("Helvetica", 10, 72, 686, "risk")...)
	page := buildPage(1, Rect{X1: 612, Y1: 792}, pdflib.Content{Text: g})
	assert.Len(t, Search(page, "risk"), 2)
}

func TestDocumentPendingHighlights(t *testing.T) {
	d := &Document{pending: make(map[int][]Rect)}
	assert.Equal(t, 0, d.PendingHighlights())
	require.NoError(t, d.SaveIncremental())

	d.AddHighlight(1, Rect{X1: 1, Y1: 1})
	d.AddHighlight(2, Rect{X1: 1, Y1: 1})
	assert.Equal(t, 2, d.PendingHighlights())
}

func TestDocumentSaveIncrementalWritesQueued(t *testing.T) {
	orig := writeHighlights
	t.Cleanup(func() { writeHighlights = orig })

	var got map[int][]Rect
	writeHighlights = func(path string, pending map[int][]Rect) error {
		got = pending
		return nil
	}

	d := &Document{path: "x.pdf", pending: make(map[int][]Rect)}
	d.AddHighlight(3, Rect{X1: 5, Y1: 5})
	require.NoError(t, d.SaveIncremental())
	require.Len(t, got[3], 1)
	assert.Equal(t, 0, d.PendingHighlights())
	require.NoError(t, d.Close())
	require.NoError(t, d.Close())
}

func TestOpenMissingFile(t *testing.T) {
	_, err := Open("/nonexistent/file.pdf")
	assert.Error(t, err)
}

func TestOpenReadsGeneratedPDF(t *testing.T) {
	path := layouttest.WriteFile(t, t.TempDir(), "report.pdf",
		layouttest.Page{
			{Text: "Executive Summary", Size: 16, Bold: true, X: 72, Y: 720},
			{Text: "The report covers Q1 results.", Size: 11, X: 72, Y: 690},
		},
		layouttest.Page{
			{Text: "Appendix", Size: 14, Bold: true, X: 72, Y: 720},
		},
	)

	doc, err := Open(path)
	require.NoError(t, err)
	defer doc.Close()

	assert.Equal(t, 2, doc.PageCount())

	// MediaBox is inherited from the page tree root.
	page, err := doc.Page(1)
	require.NoError(t, err)
	assert.Equal(t, 612.0, page.Width)
	assert.Equal(t, 792.0, page.Height)
	lines := page.TextLines()
	require.Len(t, lines, 2)
	assert.Equal(t, "Executive Summary", lines[0].Text())
	assert.True(t, lines[0].Spans[0].Flags.Bold())
	assert.Equal(t, 16.0, lines[0].Spans[0].Size)
	assert.False(t, lines[1].Spans[0].Flags.Bold())

	text, err := doc.PageText(1)
	require.NoError(t, err)
	assert.Equal(t, "Executive Summary\nThe report covers Q1 results.", text)

	rects, err := doc.SearchFor(1, "Executive Summary")
	require.NoError(t, err)
	require.Len(t, rects, 1)
	assert.InDelta(t, 72, rects[0].X0, 1e-6)
	assert.InDelta(t, 72+17*8, rects[0].X1, 1e-6)

	_, err = doc.Page(3)
	assert.ErrorIs(t, err, ErrPageRange)
	_, err = doc.Page(0)
	assert.ErrorIs(t, err, ErrPageRange)

	pages, err := doc.Pages()
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, "Appendix", pages[1].Text())
}

func highlightCount(t *testing.T, path string) int {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	annots, err := api.Annotations(f, nil, nil)
	require.NoError(t, err)
	n := 0
	for _, pg := range annots {
		n += len(pg[model.AnnHighLight].Map)
	}
	return n
}

func TestRepeatedSavesStayReadable(t *testing.T) {
	path := layouttest.WriteFile(t, t.TempDir(), "report.pdf", layouttest.Page{
		{Text: "Executive Summary", Size: 16, Bold: true, X: 72, Y: 720},
		{Text: "The report covers Q1 results.", Size: 11, X: 72, Y: 690},
	})
	original, err := os.ReadFile(path)
	require.NoError(t, err)

	for round := 1; round <= 2; round++ {
		doc, err := Open(path)
		require.NoError(t, err, "round %d", round)
		rects, err := doc.SearchFor(1, "Executive Summary")
		require.NoError(t, err)
		require.Len(t, rects, 1)
		doc.AddHighlight(1, rects[0])
		require.NoError(t, doc.SaveIncremental(), "round %d", round)
		require.NoError(t, doc.Close())

		assert.Equal(t, round, highlightCount(t, path))
	}

	saved, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(saved, original))

	doc, err := Open(path)
	require.NoError(t, err)
	defer doc.Close()
	text, err := doc.PageText(1)
	require.NoError(t, err)
	assert.Equal(t, "Executive Summary\nThe report covers Q1 results.", text)
}

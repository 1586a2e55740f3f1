// Package segment merges consecutive, identically styled text lines into
// style runs.
package segment

import (
	"math"
	"strings"
	"unicode/utf8"

	"github.com/dgallion1/docrank/internal/layout"
)

// fontSizeTolerance is the largest font size difference two lines may have
// and still share a run.
const fontSizeTolerance = 0.5

// Run is a maximal sequence of consecutive qualifying lines sharing font
// size and bold/italic style. Style and position come from the first line.
type Run struct {
	Text     string
	Page     int
	FontSize float64
	Bold     bool
	Italic   bool
	// Y is the first line's distance from the top of the page.
	Y float64
	// YGap is the distance to the previous emitted run's Y. Nil for the
	// first run of a document.
	YGap *float64
}

type pendingRun struct {
	lines    []string
	page     int
	fontSize float64
	bold     bool
	italic   bool
	y        float64
}

func (p *pendingRun) sameStyle(size float64, bold, italic bool) bool {
	return math.Abs(p.fontSize-size) < fontSizeTolerance && p.bold == bold && p.italic == italic
}

// Segment walks the pages in order and returns the style runs of one
// document.
func Segment(pages []layout.Page) []Run {
	s := &segmenter{}
	for _, page := range pages {
		for _, line := range page.TextLines() {
			s.addLine(page, line)
		}
		s.flush()
	}
	return s.runs
}

type segmenter struct {
	runs    []Run
	current *pendingRun
	prevY   *float64
}

func (s *segmenter) addLine(page layout.Page, line layout.Line) {
	var parts []string
	var first *layout.Span
	for i := range line.Spans {
		t := strings.TrimSpace(line.Spans[i].Text)
		if t == "" {
			continue
		}
		if first == nil {
			first = &line.Spans[i]
		}
		parts = append(parts, t)
	}
	if first == nil {
		return
	}

	text := StripBullet(strings.Join(parts, " "))
	if text == "" || ShouldIgnore(text) {
		return
	}

	bold, italic := first.Flags.Bold(), first.Flags.Italic()
	if s.current != nil && s.current.sameStyle(first.Size, bold, italic) {
		s.current.lines = append(s.current.lines, text)
		return
	}
	s.flush()
	s.current = &pendingRun{
		lines:    []string{text},
		page:     page.Number,
		fontSize: first.Size,
		bold:     bold,
		italic:   italic,
		y:        page.TopOffset(first.BBox),
	}
}

// flush emits the pending run if its merged text survives filtering.
func (s *segmenter) flush() {
	cur := s.current
	s.current = nil
	if cur == nil {
		return
	}
	text := strings.Join(cur.lines, " ")
	if ShouldIgnore(text) || utf8.RuneCountInString(strings.TrimSpace(text)) <= 2 {
		return
	}

	run := Run{
		Text:     text,
		Page:     cur.page,
		FontSize: cur.fontSize,
		Bold:     cur.bold,
		Italic:   cur.italic,
		Y:        cur.y,
	}
	if s.prevY != nil {
		gap := math.Abs(cur.y - *s.prevY)
		run.YGap = &gap
	}
	y := cur.y
	s.prevY = &y
	s.runs = append(s.runs, run)
}

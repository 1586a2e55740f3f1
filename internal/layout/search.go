package layout

import (
	"strings"
	"unicode"
)

// searchChar is one character of the normalized page stream.
type searchChar struct {
	r    rune
	line int
	box  Rect
}

// searchStream flattens the page's text lines into a character stream in
// which every whitespace run (including line breaks) is a single space.
func searchStream(p Page) []searchChar {
	var out []searchChar
	pendingSpace := false
	for li, line := range p.TextLines() {
		if li > 0 {
			pendingSpace = true
		}
		for _, span := range line.Spans {
			i := 0
			for _, r := range span.Text {
				var box Rect
				if i < len(span.Boxes) {
					box = span.Boxes[i]
				}
				i++
				if unicode.IsSpace(r) {
					pendingSpace = true
					continue
				}
				if pendingSpace && len(out) > 0 {
					out = append(out, searchChar{r: ' ', line: -1})
				}
				pendingSpace = false
				out = append(out, searchChar{r: r, line: li, box: box})
			}
		}
	}
	return out
}

// normalizeNeedle collapses whitespace runs to single spaces and trims.
func normalizeNeedle(s string) []rune {
	return []rune(strings.Join(strings.Fields(s), " "))
}

// Search returns one rectangle per visual line touched by each
// non-overlapping occurrence of needle on the page. Matching is exact except
// that whitespace runs compare equal to a single space.
func Search(p Page, needle string) []Rect {
	n := normalizeNeedle(needle)
	if len(n) == 0 {
		return nil
	}
	stream := searchStream(p)

	var rects []Rect
	for i := 0; i+len(n) <= len(stream); {
		if !matchAt(stream, i, n) {
			i++
			continue
		}
		rects = append(rects, lineRects(stream[i:i+len(n)])...)
		i += len(n)
	}
	return rects
}

func matchAt(stream []searchChar, at int, needle []rune) bool {
	for j, r := range needle {
		if stream[at+j].r != r {
			return false
		}
	}
	return true
}

// lineRects unions the boxes of matched characters per line, in line order.
func lineRects(chars []searchChar) []Rect {
	var rects []Rect
	cur := -1
	var acc Rect
	for _, c := range chars {
		if c.line < 0 {
			continue
		}
		if c.line != cur {
			if cur >= 0 && !acc.Empty() {
				rects = append(rects, acc)
			}
			cur = c.line
			acc = Rect{}
		}
		acc = acc.Union(c.box)
	}
	if cur >= 0 && !acc.Empty() {
		rects = append(rects, acc)
	}
	return rects
}

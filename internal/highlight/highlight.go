// Package highlight marks ranked section headings and the text after them
// in the stored PDFs.
package highlight

import (
	"context"
	"log/slog"
	"strings"
	"unicode"

	"github.com/dgallion1/docrank/internal/layout"
)

// windowExtra is how many runes past the heading the highlight extends.
const windowExtra = 500

// Skip reasons reported in Outcome.
const (
	ReasonMissingFile  = "file not found"
	ReasonBadPage      = "page out of range"
	ReasonEmptyHeading = "empty heading"
	ReasonNotFound     = "heading not found on page"
	ReasonNoRects      = "no text rectangles"
	ReasonOpenFailed   = "open failed"
	ReasonReadFailed   = "page read failed"
	ReasonSaveFailed   = "save failed"
)

// Document is the subset of an open PDF the locator needs.
type Document interface {
	PageCount() int
	PageText(page int) (string, error)
	SearchFor(page int, needle string) ([]layout.Rect, error)
	AddHighlight(page int, r layout.Rect)
	SaveIncremental() error
	Close() error
}

// Opener opens the PDF at path.
type Opener func(path string) (Document, error)

// OpenPDF opens path with the layout package.
func OpenPDF(path string) (Document, error) {
	doc, err := layout.Open(path)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Files resolves stored names and serializes access to them.
type Files interface {
	Path(name string) (string, error)
	Exists(name string) bool
	Lock(name string) func()
}

// Reference points at one section heading in a stored file.
type Reference struct {
	Filename string
	Page     int // 1-based
	Heading  string
}

// Outcome reports what happened to one reference. Reason is empty when
// highlights were written.
type Outcome struct {
	Reference
	Highlights int
	Reason     string
}

// Skipped reports whether the reference left the file untouched.
func (o Outcome) Skipped() bool { return o.Reason != "" }

// Locator finds and highlights section text in stored PDFs.
type Locator struct {
	files Files
	open  Opener
	log   *slog.Logger
}

func NewLocator(files Files, open Opener, log *slog.Logger) *Locator {
	if open == nil {
		open = OpenPDF
	}
	if log == nil {
		log = slog.Default()
	}
	return &Locator{files: files, open: open, log: log}
}

// HighlightAll processes each reference in order. A skip or failure on one
// reference does not stop the others.
func (l *Locator) HighlightAll(ctx context.Context, refs []Reference) []Outcome {
	outcomes := make([]Outcome, 0, len(refs))
	for _, ref := range refs {
		if ctx.Err() != nil {
			break
		}
		outcomes = append(outcomes, l.Highlight(ref))
	}
	return outcomes
}

// Highlight marks one reference. The file is held under its lock from open
// until close.
func (l *Locator) Highlight(ref Reference) Outcome {
	out := Outcome{Reference: ref}
	log := l.log.With("file", ref.Filename, "page", ref.Page, "heading", ref.Heading)

	skip := func(reason string, args ...any) Outcome {
		out.Reason = reason
		log.Warn("highlight skipped", append([]any{"reason", reason}, args...)...)
		return out
	}

	if strings.TrimSpace(ref.Heading) == "" {
		return skip(ReasonEmptyHeading)
	}
	if !l.files.Exists(ref.Filename) {
		return skip(ReasonMissingFile)
	}
	path, err := l.files.Path(ref.Filename)
	if err != nil {
		return skip(ReasonMissingFile, "error", err)
	}

	unlock := l.files.Lock(ref.Filename)
	defer unlock()

	doc, err := l.open(path)
	if err != nil {
		return skip(ReasonOpenFailed, "error", err)
	}
	defer doc.Close()

	if ref.Page < 1 || ref.Page > doc.PageCount() {
		return skip(ReasonBadPage, "page_count", doc.PageCount())
	}

	text, err := doc.PageText(ref.Page)
	if err != nil {
		return skip(ReasonReadFailed, "error", err)
	}
	window, ok := Window(text, ref.Heading)
	if !ok {
		return skip(ReasonNotFound)
	}

	rects, err := doc.SearchFor(ref.Page, window)
	if err != nil {
		return skip(ReasonReadFailed, "error", err)
	}
	if len(rects) == 0 {
		return skip(ReasonNoRects)
	}
	for _, r := range rects {
		doc.AddHighlight(ref.Page, r)
	}
	if err := doc.SaveIncremental(); err != nil {
		return skip(ReasonSaveFailed, "error", err)
	}

	out.Highlights = len(rects)
	log.Info("highlighted section", "rects", len(rects))
	return out
}

// Window finds heading in text ignoring case and returns the original-case
// text from the match up to len(heading)+500 runes further. Offsets are in
// runes.
func Window(text, heading string) (string, bool) {
	p := Find(text, heading)
	if p < 0 {
		return "", false
	}
	runes := []rune(text)
	end := min(p+len([]rune(heading))+windowExtra, len(runes))
	return string(runes[p:end]), true
}

// Find returns the rune offset of the first case-insensitive occurrence of
// needle in text, or -1.
func Find(text, needle string) int {
	t := lowerRunes(text)
	n := lowerRunes(needle)
	if len(n) == 0 {
		return -1
	}
outer:
	for i := 0; i+len(n) <= len(t); i++ {
		for j := range n {
			if t[i+j] != n[j] {
				continue outer
			}
		}
		return i
	}
	return -1
}

// lowerRunes lowercases rune by rune so offsets line up with the original.
func lowerRunes(s string) []rune {
	r := []rune(s)
	for i, c := range r {
		r[i] = unicode.ToLower(c)
	}
	return r
}

package layout

import (
	"errors"
	"fmt"
	"os"

	pdflib "github.com/ledongthuc/pdf"
)

// ErrPageRange is returned for page numbers outside 1..PageCount.
var ErrPageRange = errors.New("page out of range")

// Document is an open PDF file. Highlights are collected in memory and
// written back by SaveIncremental.
type Document struct {
	path    string
	file    *os.File
	reader  *pdflib.Reader
	pending map[int][]Rect
	cache   map[int]Page
}

// Open opens the PDF at path for reading.
func Open(path string) (doc *Document, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("open pdf %s: %v", path, r)
		}
	}()
	f, reader, err := pdflib.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf %s: %w", path, err)
	}
	return &Document{
		path:    path,
		file:    f,
		reader:  reader,
		pending: make(map[int][]Rect),
		cache:   make(map[int]Page),
	}, nil
}

// PageCount returns the number of pages.
func (d *Document) PageCount() (n int) {
	defer func() {
		if r := recover(); r != nil {
			n = 0
		}
	}()
	return d.reader.NumPage()
}

// Page returns the layout of page n (1-based).
func (d *Document) Page(n int) (page Page, err error) {
	if p, ok := d.cache[n]; ok {
		return p, nil
	}
	if n < 1 || n > d.PageCount() {
		return Page{}, fmt.Errorf("page %d: %w", n, ErrPageRange)
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read page %d: %v", n, r)
		}
	}()

	p := d.reader.Page(n)
	if p.V.IsNull() {
		page = Page{Number: n}
		d.cache[n] = page
		return page, nil
	}
	page = buildPage(n, mediaBox(p), p.Content())
	d.cache[n] = page
	return page, nil
}

// Pages returns the layout of every page in order.
func (d *Document) Pages() ([]Page, error) {
	count := d.PageCount()
	pages := make([]Page, 0, count)
	for i := 1; i <= count; i++ {
		p, err := d.Page(i)
		if err != nil {
			return nil, err
		}
		pages = append(pages, p)
	}
	return pages, nil
}

// PageText returns the plain text of page n.
func (d *Document) PageText(n int) (string, error) {
	p, err := d.Page(n)
	if err != nil {
		return "", err
	}
	return p.Text(), nil
}

// SearchFor returns the rectangles covering needle on page n.
func (d *Document) SearchFor(n int, needle string) ([]Rect, error) {
	p, err := d.Page(n)
	if err != nil {
		return nil, err
	}
	return Search(p, needle), nil
}

// AddHighlight queues a highlight annotation over r on page n.
func (d *Document) AddHighlight(n int, r Rect) {
	d.pending[n] = append(d.pending[n], r)
}

// PendingHighlights returns the number of queued highlights.
func (d *Document) PendingHighlights() int {
	total := 0
	for _, rs := range d.pending {
		total += len(rs)
	}
	return total
}

// SaveIncremental appends queued highlights to the file as an incremental
// update. It is a no-op when nothing is queued. The read handle is released
// first, so the document cannot be read after saving.
func (d *Document) SaveIncremental() error {
	if d.PendingHighlights() == 0 {
		return nil
	}
	if err := d.closeReader(); err != nil {
		return err
	}
	if err := writeHighlights(d.path, d.pending); err != nil {
		return fmt.Errorf("save highlights %s: %w", d.path, err)
	}
	d.pending = make(map[int][]Rect)
	return nil
}

// Close releases the file handle. Safe to call more than once.
func (d *Document) Close() error {
	return d.closeReader()
}

func (d *Document) closeReader() error {
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	d.reader = nil
	d.cache = make(map[int]Page)
	return err
}

func mediaBox(p pdflib.Page) Rect {
	box := inherited(p.V, "MediaBox")
	if box.Len() != 4 {
		// US Letter
		return Rect{X1: 612, Y1: 792}
	}
	x0, y0 := box.Index(0).Float64(), box.Index(1).Float64()
	x1, y1 := box.Index(2).Float64(), box.Index(3).Float64()
	return Rect{X0: min(x0, x1), Y0: min(y0, y1), X1: max(x0, x1), Y1: max(y0, y1)}
}

// inherited looks key up on the page dictionary and then on each ancestor in
// the page tree.
func inherited(v pdflib.Value, key string) pdflib.Value {
	for ; !v.IsNull(); v = v.Key("Parent") {
		if r := v.Key(key); !r.IsNull() {
			return r
		}
	}
	return pdflib.Value{}
}

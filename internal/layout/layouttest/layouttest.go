// Package layouttest writes small, valid PDF files for tests.
package layouttest

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// GlyphWidth is the advance of every glyph, in thousandths of the font size.
const GlyphWidth = 500

// Line is one line of text drawn at baseline (X, Y) in user space.
type Line struct {
	Text string
	Size float64
	Bold bool
	X, Y float64
}

// Page is the lines of one page.
type Page []Line

// BuildPDF returns a US Letter PDF with one page per entry. Text uses the
// standard Helvetica faces with a fixed width table. The MediaBox sits on the
// page tree root, so pages inherit it.
func BuildPDF(pages ...Page) []byte {
	var objs []string
	// 1 catalog, 2 pages, 3 regular font, 4 bold font, then page/content pairs.
	widths := strings.TrimSpace(strings.Repeat(fmt.Sprintf("%d ", GlyphWidth), 126-32+1))
	font := func(base string) string {
		return fmt.Sprintf("<< /Type /Font /Subtype /Type1 /BaseFont /%s /Encoding /WinAnsiEncoding /FirstChar 32 /LastChar 126 /Widths [%s] >>", base, widths)
	}

	var kids []string
	for i := range pages {
		kids = append(kids, fmt.Sprintf("%d 0 R", 5+2*i))
	}
	objs = append(objs,
		"<< /Type /Catalog /Pages 2 0 R >>",
		fmt.Sprintf("<< /Type /Pages /Kids [%s] /Count %d /MediaBox [0 0 612 792] >>", strings.Join(kids, " "), len(pages)),
		font("Helvetica"),
		font("Helvetica-Bold"),
	)
	for i, p := range pages {
		stream := contentStream(p)
		objs = append(objs,
			fmt.Sprintf("<< /Type /Page /Parent 2 0 R /Contents %d 0 R /Resources << /Font << /F1 3 0 R /F2 4 0 R >> >> >>", 6+2*i),
			fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", len(stream), stream),
		)
	}

	var b strings.Builder
	b.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objs)+1)
	for i, o := range objs {
		offsets[i+1] = b.Len()
		fmt.Fprintf(&b, "%d 0 obj\n%s\nendobj\n", i+1, o)
	}
	xref := b.Len()
	fmt.Fprintf(&b, "xref\n0 %d\n", len(objs)+1)
	b.WriteString("0000000000 65535 f \n")
	for i := 1; i <= len(objs); i++ {
		fmt.Fprintf(&b, "%010d 00000 n \n", offsets[i])
	}
	fmt.Fprintf(&b, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objs)+1, xref)
	return []byte(b.String())
}

func contentStream(p Page) string {
	var b strings.Builder
	for _, l := range p {
		f := "F1"
		if l.Bold {
			f = "F2"
		}
		fmt.Fprintf(&b, "BT\n/%s %g Tf\n%g %g Td\n(%s) Tj\nET\n", f, l.Size, l.X, l.Y, escape(l.Text))
	}
	return strings.TrimSuffix(b.String(), "\n")
}

func escape(s string) string {
	return strings.NewReplacer(`\`, `\\`, "(", `\(`, ")", `\)`).Replace(s)
}

// WriteFile writes the PDF to dir/name and returns its path.
func WriteFile(t testing.TB, dir, name string, pages ...Page) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, BuildPDF(pages...), 0o644); err != nil {
		t.Fatalf("write pdf: %v", err)
	}
	return path
}

// Package report holds the role-query result shape and renders results and
// outlines as HTML.
package report

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/dgallion1/docrank/internal/doctree"
	"github.com/dgallion1/docrank/internal/outline"
)

// TimestampLayout formats Metadata.ProcessingTimestamp.
const TimestampLayout = "2006-01-02T15:04:05.000000"

// Result is the ranked answer to one role query.
type Result struct {
	Metadata           Metadata           `json:"metadata"`
	ExtractedSections  []ExtractedSection `json:"extracted_sections"`
	SubsectionAnalysis []Subsection       `json:"subsection_analysis"`
}

type Metadata struct {
	InputDocuments      []string `json:"input_documents"`
	Persona             string   `json:"persona"`
	JobToBeDone         string   `json:"job_to_be_done"`
	ProcessingTimestamp string   `json:"processing_timestamp"`
}

// ExtractedSection is one selected heading. ImportanceRank starts at 1.
type ExtractedSection struct {
	Document       string `json:"document"`
	SectionTitle   string `json:"section_title"`
	ImportanceRank int    `json:"importance_rank"`
	PageNumber     int    `json:"page_number"`
}

// Subsection is the full text of a selected section.
type Subsection struct {
	Document    string `json:"document"`
	RefinedText string `json:"refined_text"`
	PageNumber  int    `json:"page_number"`
}

var md = goldmark.New(goldmark.WithExtensions(extension.Table))

// Markdown renders the result as a Markdown document.
func Markdown(r Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", escape(r.Metadata.JobToBeDone))
	fmt.Fprintf(&b, "**Persona:** %s  \n", escape(r.Metadata.Persona))
	fmt.Fprintf(&b, "**Documents:** %s  \n", escape(strings.Join(r.Metadata.InputDocuments, ", ")))
	fmt.Fprintf(&b, "**Processed:** %s\n\n", escape(r.Metadata.ProcessingTimestamp))

	b.WriteString("## Ranked sections\n\n")
	if len(r.ExtractedSections) == 0 {
		b.WriteString("No sections selected.\n")
		return b.String()
	}
	b.WriteString("| Rank | Section | Document | Page |\n")
	b.WriteString("| ---: | --- | --- | ---: |\n")
	for _, s := range r.ExtractedSections {
		fmt.Fprintf(&b, "| %d | %s | %s | %d |\n",
			s.ImportanceRank, escape(s.SectionTitle), escape(s.Document), s.PageNumber)
	}

	b.WriteString("\n## Section text\n")
	for i, s := range r.SubsectionAnalysis {
		title := ""
		if i < len(r.ExtractedSections) {
			title = r.ExtractedSections[i].SectionTitle
		}
		fmt.Fprintf(&b, "\n### %d. %s\n\n", i+1, escape(title))
		fmt.Fprintf(&b, "*%s, page %d*\n\n", escape(s.Document), s.PageNumber)
		for _, part := range outline.BodyOf(doctree.Section{Text: s.RefinedText}) {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			fmt.Fprintf(&b, "%s\n\n", escape(part))
		}
	}
	return b.String()
}

// HTML renders the result as an HTML fragment.
func HTML(r Result) ([]byte, error) {
	return render(Markdown(r))
}

// OutlineMarkdown renders an outline as a nested list. levels orders the
// heading labels from outermost inward.
func OutlineMarkdown(o doctree.Outline, levels []string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", escape(o.Title))
	roots := doctree.Nest(o.Outline, levels)
	if len(roots) == 0 {
		b.WriteString("No headings found.\n")
		return b.String()
	}
	var walk func(nodes []*doctree.DocNode, depth int)
	walk = func(nodes []*doctree.DocNode, depth int) {
		for _, n := range nodes {
			fmt.Fprintf(&b, "%s- %s (p. %d)\n", strings.Repeat("  ", depth), escape(n.Title), n.Page)
			walk(n.Children, depth+1)
		}
	}
	walk(roots, 0)
	return b.String()
}

// OutlineHTML renders an outline as an HTML fragment.
func OutlineHTML(o doctree.Outline, levels []string) ([]byte, error) {
	return render(OutlineMarkdown(o, levels))
}

func render(src string) ([]byte, error) {
	var buf bytes.Buffer
	if err := md.Convert([]byte(src), &buf); err != nil {
		return nil, fmt.Errorf("render markdown: %w", err)
	}
	return buf.Bytes(), nil
}

const markdownSpecial = "\\`*_[]#|<>!"

// escape backslash-escapes Markdown punctuation and flattens newlines.
func escape(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(markdownSpecial, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

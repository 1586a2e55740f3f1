// Package outline builds the document outline and section list from
// classified style runs.
package outline

import (
	"fmt"
	"strings"

	"github.com/dgallion1/docrank/internal/classify"
	"github.com/dgallion1/docrank/internal/doctree"
	"github.com/dgallion1/docrank/internal/features"
)

// UntitledDocument is the title used when no run carries a heading label.
const UntitledDocument = "Untitled Document"

// BodyDelimiter joins a section's heading and body runs.
const BodyDelimiter = "|"

// Assemble pairs records with their labels and returns the outline and the
// sections. headings is the set of labels that start a section.
func Assemble(records []features.Record, labels []string, headings classify.LabelSet) (doctree.Outline, []doctree.Section, error) {
	if len(records) != len(labels) {
		return doctree.Outline{}, nil, fmt.Errorf("outline: %d records but %d labels", len(records), len(labels))
	}
	return BuildOutline(records, labels), BuildSections(records, labels, headings), nil
}

// BuildOutline picks the title and lists every labelled run other than
// None and Title in document order.
func BuildOutline(records []features.Record, labels []string) doctree.Outline {
	out := doctree.Outline{
		Title:   title(records, labels),
		Outline: []doctree.OutlineNode{},
	}
	for i, r := range records {
		if labels[i] == classify.LabelNone || labels[i] == classify.LabelTitle {
			continue
		}
		out.Outline = append(out.Outline, doctree.OutlineNode{
			Level: labels[i],
			Text:  r.Text,
			Page:  r.Page,
		})
	}
	return out
}

// title is the first Title run, else the first labelled run, else a
// placeholder.
func title(records []features.Record, labels []string) string {
	for i, r := range records {
		if labels[i] == classify.LabelTitle {
			return r.Text
		}
	}
	for i, r := range records {
		if labels[i] != classify.LabelNone {
			return r.Text
		}
	}
	return UntitledDocument
}

// BuildSections starts a section at every heading-labelled run. The body is
// every following run up to the next heading-labelled run.
func BuildSections(records []features.Record, labels []string, headings classify.LabelSet) []doctree.Section {
	sections := []doctree.Section{}
	var cur *doctree.Section
	var body []string

	flush := func() {
		if cur == nil {
			return
		}
		cur.Text = sectionText(cur.Heading, body)
		sections = append(sections, *cur)
		cur = nil
		body = nil
	}

	for i, r := range records {
		if headings.Has(labels[i]) {
			flush()
			cur = &doctree.Section{Heading: r.Text, Page: r.Page}
			continue
		}
		if cur != nil {
			body = append(body, r.Text)
		}
	}
	flush()
	return sections
}

func sectionText(heading string, body []string) string {
	if len(body) == 0 {
		return heading
	}
	return heading + BodyDelimiter + strings.Join(body, BodyDelimiter)
}

// BodyOf splits a section's text back into its body runs.
func BodyOf(s doctree.Section) []string {
	parts := strings.Split(s.Text, BodyDelimiter)
	if len(parts) <= 1 {
		return nil
	}
	return parts[1:]
}

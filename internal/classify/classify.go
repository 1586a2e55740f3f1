// Package classify labels feature rows as headings or body text.
package classify

import (
	"context"
	"fmt"
	"strings"

	"github.com/dgallion1/docrank/internal/features"
)

// Labels the rest of the pipeline gives meaning to. Other labels a backend
// returns are carried through as opaque outline levels.
const (
	LabelTitle = "Title"
	LabelH1    = "H1"
	LabelH2    = "H2"
	LabelNone  = "None"
)

// DefaultHeadingLabels start a new section.
var DefaultHeadingLabels = []string{LabelTitle, LabelH1, LabelH2}

// Classifier predicts one label per feature row.
type Classifier interface {
	Predict(ctx context.Context, rows [][features.Columns]float64) ([]string, error)
}

// ValidateLabels checks that a backend answered every row. Empty labels
// become None.
func ValidateLabels(rows int, labels []string) ([]string, error) {
	if len(labels) != rows {
		return nil, fmt.Errorf("classifier returned %d labels for %d rows", len(labels), rows)
	}
	out := make([]string, len(labels))
	for i, l := range labels {
		l = strings.TrimSpace(l)
		if l == "" {
			l = LabelNone
		}
		out[i] = l
	}
	return out, nil
}

// LabelSet is a set of labels.
type LabelSet map[string]bool

// NewLabelSet builds a set from a list, ignoring blanks.
func NewLabelSet(labels []string) LabelSet {
	s := make(LabelSet, len(labels))
	for _, l := range labels {
		if l = strings.TrimSpace(l); l != "" {
			s[l] = true
		}
	}
	return s
}

// Has reports membership.
func (s LabelSet) Has(label string) bool { return s[label] }

// Package features derives classifier inputs from style runs.
package features

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/dgallion1/docrank/internal/segment"
)

// Columns is the number of classifier input columns.
const Columns = 10

var (
	numberingPrefix = regexp.MustCompile(`^\d+(\.\d+)*[.)]\s`)
	dotPrefix       = regexp.MustCompile(`^((?:\d+\.)+)\d+`)
)

// Record is one style run plus its derived and normalized features.
type Record struct {
	DocID    string
	Page     int
	Text     string
	FontSize float64
	Bold     bool
	Italic   bool
	Y        float64
	YGap     *float64

	TextLength     int
	CapRatio       float64
	StartsNumbered bool
	PrefixDots     int

	// Filled by Normalize.
	FontRank        int
	FontRatio       float64
	FontSizeScaled  float64
	LengthScaled    float64
	CapRatioScaled  float64
	YScaled         float64
	FontCount       int
	FontCountScaled float64
	YGapScaled      float64
	UniqueFont      bool
}

// Extract computes the raw features of one run.
func Extract(docID string, run segment.Run) Record {
	return Record{
		DocID:          docID,
		Page:           run.Page,
		Text:           run.Text,
		FontSize:       run.FontSize,
		Bold:           run.Bold,
		Italic:         run.Italic,
		Y:              run.Y,
		YGap:           run.YGap,
		TextLength:     utf8.RuneCountInString(run.Text),
		CapRatio:       capitalizationRatio(run.Text),
		StartsNumbered: numberingPrefix.MatchString(run.Text),
		PrefixDots:     prefixDotCount(run.Text),
	}
}

// ExtractAll extracts every run of one document.
func ExtractAll(docID string, runs []segment.Run) []Record {
	out := make([]Record, len(runs))
	for i, r := range runs {
		out[i] = Extract(docID, r)
	}
	return out
}

func capitalizationRatio(s string) float64 {
	var upper, letters int
	for _, r := range s {
		if !unicode.IsLetter(r) {
			continue
		}
		letters++
		if unicode.IsUpper(r) {
			upper++
		}
	}
	if letters == 0 {
		return 0
	}
	return float64(upper) / float64(letters)
}

func prefixDotCount(s string) int {
	m := dotPrefix.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	return strings.Count(m[1], ".")
}

// Vector returns the classifier input row in fixed column order.
func (r Record) Vector() [Columns]float64 {
	return [Columns]float64{
		r.FontRatio,
		float64(r.FontRank),
		r.LengthScaled,
		r.CapRatioScaled,
		r.YScaled,
		boolFloat(r.Bold),
		boolFloat(r.Italic),
		boolFloat(r.StartsNumbered),
		r.FontCountScaled,
		boolFloat(r.UniqueFont),
	}
}

// Matrix returns the classifier input rows for a batch.
func Matrix(records []Record) [][Columns]float64 {
	rows := make([][Columns]float64, len(records))
	for i, r := range records {
		rows[i] = r.Vector()
	}
	return rows
}

func boolFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

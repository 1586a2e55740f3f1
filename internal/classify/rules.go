package classify

import (
	"context"

	"github.com/dgallion1/docrank/internal/features"
)

// Column positions in a feature row.
const (
	colFontRatio = iota
	colFontRank
	colLength
	colCapRatio
	colY
	colBold
	colItalic
	colNumbered
	colFontCount
	colUniqueFont
)

// RuleConfig holds the font-ratio thresholds used by RuleClassifier.
type RuleConfig struct {
	TitleRatio float64
	H1Ratio    float64
	H2Ratio    float64
	// Bold or numbered rows at body size count as H2 when their scaled
	// length is at most this.
	ShortLength float64
}

func DefaultRuleConfig() RuleConfig {
	return RuleConfig{
		TitleRatio:  1.5,
		H1Ratio:     1.5,
		H2Ratio:     1.15,
		ShortLength: 0.25,
	}
}

// RuleClassifier labels rows from font size ratios and emphasis. It needs no
// model and gives the same answer for the same rows.
type RuleClassifier struct {
	cfg RuleConfig
}

func NewRuleClassifier(cfg RuleConfig) *RuleClassifier {
	return &RuleClassifier{cfg: cfg}
}

func (c *RuleClassifier) Predict(ctx context.Context, rows [][features.Columns]float64) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	labels := make([]string, len(rows))
	titled := false
	for i, row := range rows {
		labels[i] = c.label(row, &titled)
	}
	return labels, nil
}

func (c *RuleClassifier) label(row [features.Columns]float64, titled *bool) string {
	ratio := row[colFontRatio]
	switch {
	case !*titled && row[colFontRank] == 1 && ratio >= c.cfg.TitleRatio:
		*titled = true
		return LabelTitle
	case ratio >= c.cfg.H1Ratio:
		return LabelH1
	case ratio >= c.cfg.H2Ratio:
		return LabelH2
	case ratio >= 1 && (row[colBold] == 1 || row[colNumbered] == 1) && row[colLength] <= c.cfg.ShortLength:
		return LabelH2
	}
	return LabelNone
}

package features

import (
	"math"
	"slices"
	"sort"
)

// missingYGap replaces absent or non-finite y-gaps before scaling.
const missingYGap = 2.0

// Normalize returns a copy of records with the batch-level columns filled.
// The input is not modified. Rank map, min-max scaling, modal font size and
// font counts are computed over the whole batch; font-count and y-gap
// scaling are computed per DocID.
func Normalize(in []Record) []Record {
	if len(in) == 0 {
		return []Record{}
	}
	records := slices.Clone(in)

	ranks := FontRanks(records)
	counts := fontCounts(records)
	modal := ModalFontSize(records)

	sizes := make([]float64, len(records))
	lengths := make([]float64, len(records))
	caps := make([]float64, len(records))
	ys := make([]float64, len(records))
	for i, r := range records {
		sizes[i] = r.FontSize
		lengths[i] = float64(r.TextLength)
		caps[i] = r.CapRatio
		ys[i] = r.Y
	}
	sizes = minMax(sizes)
	lengths = minMax(lengths)
	caps = minMax(caps)
	ys = minMax(ys)

	for i := range records {
		r := &records[i]
		r.FontRank = ranks[r.FontSize]
		r.FontSizeScaled = sizes[i]
		r.LengthScaled = lengths[i]
		r.CapRatioScaled = caps[i]
		r.YScaled = ys[i]
		r.FontRatio = 1.0
		if modal != 0 {
			r.FontRatio = r.FontSize / modal
		}
		r.FontCount = counts[r.FontSize]
		r.UniqueFont = r.FontCount == 1
	}

	for _, idx := range groupByDoc(records) {
		gaps := make([]float64, len(idx))
		fc := make([]float64, len(idx))
		for j, i := range idx {
			gaps[j] = yGapValue(records[i].YGap)
			fc[j] = float64(records[i].FontCount)
		}
		gaps = groupScale(gaps)
		fc = groupScale(fc)
		for j, i := range idx {
			records[i].YGapScaled = gaps[j]
			records[i].FontCountScaled = fc[j]
		}
	}
	return records
}

// FontRanks maps each distinct font size to its rank, largest = 1.
func FontRanks(records []Record) map[float64]int {
	seen := make(map[float64]bool)
	var distinct []float64
	for _, r := range records {
		if !seen[r.FontSize] {
			seen[r.FontSize] = true
			distinct = append(distinct, r.FontSize)
		}
	}
	sort.Sort(sort.Reverse(sort.Float64Slice(distinct)))
	ranks := make(map[float64]int, len(distinct))
	for i, s := range distinct {
		ranks[s] = i + 1
	}
	return ranks
}

// ModalFontSize returns the most frequent font size. Ties go to the smallest
// size; an empty batch yields 0.
func ModalFontSize(records []Record) float64 {
	counts := fontCounts(records)
	var best float64
	bestN := 0
	for size, n := range counts {
		if n > bestN || (n == bestN && size < best) {
			best, bestN = size, n
		}
	}
	return best
}

func fontCounts(records []Record) map[float64]int {
	counts := make(map[float64]int)
	for _, r := range records {
		counts[r.FontSize]++
	}
	return counts
}

// groupByDoc returns record indices per DocID in first-seen order.
func groupByDoc(records []Record) [][]int {
	pos := make(map[string]int)
	var groups [][]int
	for i, r := range records {
		g, ok := pos[r.DocID]
		if !ok {
			g = len(groups)
			pos[r.DocID] = g
			groups = append(groups, nil)
		}
		groups[g] = append(groups[g], i)
	}
	return groups
}

func yGapValue(g *float64) float64 {
	if g == nil || math.IsNaN(*g) || math.IsInf(*g, 0) {
		return missingYGap
	}
	return *g
}

// minMax scales values to [0,1]. A zero-range column scales to 0.
func minMax(values []float64) []float64 {
	out := make([]float64, len(values))
	if len(values) == 0 {
		return out
	}
	lo, hi := values[0], values[0]
	for _, v := range values[1:] {
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	span := hi - lo
	if span == 0 {
		return out
	}
	for i, v := range values {
		out[i] = (v - lo) / span
	}
	return out
}

// groupScale min-max scales one group, or zeroes it when the group has a
// single member or no variance.
func groupScale(values []float64) []float64 {
	if len(values) <= 1 {
		return make([]float64, len(values))
	}
	return minMax(values)
}

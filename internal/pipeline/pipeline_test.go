package pipeline

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dgallion1/docrank/internal/classify"
	"github.com/dgallion1/docrank/internal/doctree"
	"github.com/dgallion1/docrank/internal/features"
	"github.com/dgallion1/docrank/internal/highlight"
	"github.com/dgallion1/docrank/internal/layout"
	"github.com/dgallion1/docrank/internal/layout/layouttest"
	"github.com/dgallion1/docrank/internal/store"
)

// rankClassifier labels rows by font-size rank: 1 Title, 2 H1, else None.
type rankClassifier struct {
	calls int
	rows  int
	err   error
}

func (c *rankClassifier) Predict(_ context.Context, rows [][features.Columns]float64) ([]string, error) {
	c.calls++
	c.rows += len(rows)
	if c.err != nil {
		return nil, c.err
	}
	labels := make([]string, len(rows))
	for i, r := range rows {
		switch r[1] {
		case 1:
			labels[i] = classify.LabelTitle
		case 2:
			labels[i] = classify.LabelH1
		default:
			labels[i] = classify.LabelNone
		}
	}
	return labels, nil
}

func newStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.New(t.TempDir())
	require.NoError(t, err)
	return s
}

func reportPDF() []byte {
	return layouttest.BuildPDF(layouttest.Page{
		{Text: "Annual Report", Size: 20, Bold: true, X: 72, Y: 740},
		{Text: "Overview", Size: 14, Bold: true, X: 72, Y: 700},
		{Text: "Revenue grew in every region.", Size: 11, X: 72, Y: 680},
		{Text: "Costs were flat.", Size: 11, X: 72, Y: 666},
	})
}

func storedFiles(t *testing.T, s *store.Store) []store.FileInfo {
	t.Helper()
	files, err := s.List()
	require.NoError(t, err)
	return files
}

func TestAnalyzeUpload(t *testing.T) {
	s := newStore(t)
	clf := &rankClassifier{}
	a := NewAnalyzer(s, clf, AnalyzerConfig{}, nil, nil)

	res, err := a.Analyze(context.Background(), Upload{Filename: "annual.pdf", Body: bytes.NewReader(reportPDF())})
	require.NoError(t, err)

	assert.True(t, strings.HasSuffix(res.Filename, "_annual.pdf"))
	assert.Equal(t, "annual.pdf", res.Original)
	assert.Equal(t, "Annual Report", res.Outline.Title)
	require.Len(t, res.Outline.Outline, 1)
	assert.Equal(t, doctree.OutlineNode{Level: "H1", Text: "Overview", Page: 1}, res.Outline.Outline[0])

	require.Len(t, res.Sections, 2)
	assert.Equal(t, "Annual Report", res.Sections[0].Text)
	assert.Equal(t, "Overview", res.Sections[1].Heading)
	assert.True(t, strings.HasPrefix(res.Sections[1].Text, "Overview|Revenue grew"))
	assert.Equal(t, "Successfully processed PDF and found 1 headings and 2 sections", res.Message())

	assert.Equal(t, 1, clf.calls)
	assert.Len(t, storedFiles(t, s), 1)
}

func TestAnalyzeRejectsNonPDF(t *testing.T) {
	s := newStore(t)
	a := NewAnalyzer(s, &rankClassifier{}, AnalyzerConfig{}, nil, nil)

	_, err := a.Analyze(context.Background(), Upload{Filename: "notes.txt", Body: strings.NewReader("hi")})
	require.ErrorIs(t, err, ErrInput)
	assert.Equal(t, "Invalid file type. Only PDF files are allowed", Message(err))
	assert.Empty(t, storedFiles(t, s))

	_, err = a.Analyze(context.Background(), Upload{Filename: "  ", Body: strings.NewReader("hi")})
	assert.ErrorIs(t, err, ErrInput)
}

func TestAnalyzeWithoutClassifierStoresNothing(t *testing.T) {
	s := newStore(t)
	a := NewAnalyzer(s, nil, AnalyzerConfig{}, nil, nil)

	_, err := a.Analyze(context.Background(), Upload{Filename: "annual.pdf", Body: bytes.NewReader(reportPDF())})
	require.ErrorIs(t, err, ErrCapabilityUnavailable)
	assert.Equal(t, "Model not loaded", Message(err))
	assert.Empty(t, storedFiles(t, s))
}

func TestAnalyzeEmptyExtractionRemovesFile(t *testing.T) {
	s := newStore(t)
	blank := func(string) ([]layout.Page, error) {
		return []layout.Page{{Number: 1, Width: 612, Height: 792, Top: 792}}, nil
	}
	a := NewAnalyzer(s, &rankClassifier{}, AnalyzerConfig{}, blank, nil)

	_, err := a.Analyze(context.Background(), Upload{Filename: "scan.pdf", Body: bytes.NewReader(reportPDF())})
	require.ErrorIs(t, err, ErrExtractionEmpty)
	assert.Equal(t, "No extractable text", Message(err))
	assert.Empty(t, storedFiles(t, s))
}

func TestAnalyzeCorruptPDF(t *testing.T) {
	s := newStore(t)
	a := NewAnalyzer(s, &rankClassifier{}, AnalyzerConfig{}, nil, nil)

	_, err := a.Analyze(context.Background(), Upload{Filename: "broken.pdf", Body: strings.NewReader("not a pdf")})
	require.ErrorIs(t, err, ErrExtractionEmpty)
	assert.Empty(t, storedFiles(t, s))
}

func TestAnalyzeClassifierFailureRemovesFiles(t *testing.T) {
	s := newStore(t)
	clf := &rankClassifier{err: errors.New("connection refused")}
	a := NewAnalyzer(s, clf, AnalyzerConfig{Timeout: time.Second}, nil, nil)

	_, err := a.AnalyzeBatch(context.Background(), []Upload{
		{Filename: "a.pdf", Body: bytes.NewReader(reportPDF())},
		{Filename: "b.pdf", Body: bytes.NewReader(reportPDF())},
	})
	require.ErrorIs(t, err, ErrCapabilityUnavailable)
	assert.Empty(t, storedFiles(t, s))
}

func TestAnalyzeBatchSharesOneClassifierCall(t *testing.T) {
	s := newStore(t)
	clf := &rankClassifier{}
	a := NewAnalyzer(s, clf, AnalyzerConfig{Concurrency: 2}, nil, nil)

	results, err := a.AnalyzeBatch(context.Background(), []Upload{
		{Filename: "a.pdf", Body: bytes.NewReader(reportPDF())},
		{Filename: "readme.md", Body: strings.NewReader("# hi")},
		{Filename: "b.pdf", Body: bytes.NewReader(reportPDF())},
	})
	require.NoError(t, err)
	require.Len(t, results, 3)

	assert.NoError(t, results[0].Err)
	assert.ErrorIs(t, results[1].Err, ErrInput)
	assert.NoError(t, results[2].Err)
	assert.Equal(t, 1, clf.calls)
	assert.Equal(t, 6, clf.rows)
	assert.Equal(t, results[0].Outline.Title, results[2].Outline.Title)
	assert.Len(t, storedFiles(t, s), 2)
}

func TestAnalyzeBatchSameNameKeepsBothFiles(t *testing.T) {
	s := newStore(t)
	manual := layouttest.BuildPDF(layouttest.Page{
		{Text: "Field Manual", Size: 20, Bold: true, X: 72, Y: 740},
		{Text: "Setup", Size: 14, Bold: true, X: 72, Y: 700},
		{Text: "Unpack the kit.", Size: 11, X: 72, Y: 680},
	})
	a := NewAnalyzer(s, &rankClassifier{}, AnalyzerConfig{}, nil, nil)

	results, err := a.AnalyzeBatch(context.Background(), []Upload{
		{Filename: "report.pdf", Body: bytes.NewReader(reportPDF())},
		{Filename: "report.pdf", Body: bytes.NewReader(manual)},
	})
	require.NoError(t, err)
	require.Len(t, results, 2)
	require.NoError(t, results[0].Err)
	require.NoError(t, results[1].Err)

	assert.NotEqual(t, results[0].Filename, results[1].Filename)
	assert.Equal(t, "Annual Report", results[0].Outline.Title)
	assert.Equal(t, "Field Manual", results[1].Outline.Title)
	assert.Len(t, storedFiles(t, s), 2)
}

func TestAnalyzeBatchEmpty(t *testing.T) {
	a := NewAnalyzer(newStore(t), &rankClassifier{}, AnalyzerConfig{}, nil, nil)
	_, err := a.AnalyzeBatch(context.Background(), nil)
	assert.ErrorIs(t, err, ErrInput)
}

// mapEmbedder returns fixed vectors per text.
type mapEmbedder struct {
	vecs map[string][]float32
	fail map[string]bool
}

func (e mapEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if e.fail[text] {
		return nil, errors.New("embedding backend down")
	}
	if v, ok := e.vecs[text]; ok {
		return v, nil
	}
	return []float32{0, 0, 1}, nil
}

type recordingHighlighter struct {
	refs []highlight.Reference
}

func (h *recordingHighlighter) HighlightAll(_ context.Context, refs []highlight.Reference) []highlight.Outcome {
	h.refs = append(h.refs, refs...)
	out := make([]highlight.Outcome, len(refs))
	for i, r := range refs {
		out[i] = highlight.Outcome{Reference: r, Highlights: 1}
	}
	return out
}

func travelQuery() Query {
	return Query{
		Persona: "Travel Planner",
		Job:     "Plan a trip",
		Documents: []QueryDocument{
			{Filename: "cities.pdf", Sections: []doctree.Section{
				{Heading: "Nightlife", Text: "Nightlife|Bars", Page: 2},
				{Heading: "Museums", Text: "Museums|Art", Page: 4},
			}},
			{Filename: "food.pdf", Sections: []doctree.Section{
				{Heading: "Markets", Text: "Markets|Cheese", Page: 1},
			}},
		},
	}
}

func travelEmbedder() mapEmbedder {
	return mapEmbedder{vecs: map[string][]float32{
		"Plan a trip Travel Planner": {1, 0, 0},
		"Nightlife|Bars":             {1, 0, 0},
		"Museums|Art":                {0.9, 0.1, 0},
		"Markets|Cheese":             {0.5, 0, 0.5},
	}}
}

func TestQueryRanksAndHighlights(t *testing.T) {
	h := &recordingHighlighter{}
	r := NewRanker(travelEmbedder(), h, RankerConfig{Lambda: 0.72, K: 2}, nil)
	r.now = func() time.Time { return time.Date(2026, 10, 16, 9, 30, 0, 0, time.UTC) }

	res, err := r.Query(context.Background(), travelQuery())
	require.NoError(t, err)

	assert.Equal(t, []string{"cities.pdf", "food.pdf"}, res.Metadata.InputDocuments)
	assert.Equal(t, "Travel Planner", res.Metadata.Persona)
	assert.Equal(t, "Plan a trip", res.Metadata.JobToBeDone)
	assert.Equal(t, "2026-10-16T09:30:00.000000", res.Metadata.ProcessingTimestamp)

	require.Len(t, res.ExtractedSections, 2)
	assert.Equal(t, "Nightlife", res.ExtractedSections[0].SectionTitle)
	assert.Equal(t, 1, res.ExtractedSections[0].ImportanceRank)
	assert.Equal(t, 2, res.ExtractedSections[0].PageNumber)
	assert.Equal(t, "Museums", res.ExtractedSections[1].SectionTitle)
	assert.Equal(t, 2, res.ExtractedSections[1].ImportanceRank)

	require.Len(t, res.SubsectionAnalysis, 2)
	assert.Equal(t, "Nightlife|Bars", res.SubsectionAnalysis[0].RefinedText)

	require.Len(t, h.refs, 2)
	assert.Equal(t, highlight.Reference{Filename: "cities.pdf", Page: 2, Heading: "Nightlife"}, h.refs[0])
}

func TestQueryClampsK(t *testing.T) {
	r := NewRanker(travelEmbedder(), nil, RankerConfig{Lambda: 0.72, K: 10}, nil)
	res, err := r.Query(context.Background(), travelQuery())
	require.NoError(t, err)
	assert.Len(t, res.ExtractedSections, 3)
}

func TestQuerySkipsDocumentOnEmbedFailure(t *testing.T) {
	emb := travelEmbedder()
	emb.fail = map[string]bool{"Museums|Art": true}
	r := NewRanker(emb, nil, RankerConfig{Lambda: 0.72, K: 5}, nil)

	res, err := r.Query(context.Background(), travelQuery())
	require.NoError(t, err)
	require.Len(t, res.ExtractedSections, 1)
	assert.Equal(t, "food.pdf", res.ExtractedSections[0].Document)
	assert.Equal(t, []string{"cities.pdf", "food.pdf"}, res.Metadata.InputDocuments)
}

func TestQueryErrors(t *testing.T) {
	ctx := context.Background()

	r := NewRanker(travelEmbedder(), nil, RankerConfig{Lambda: 0.72}, nil)
	q := travelQuery()
	q.Persona = " "
	_, err := r.Query(ctx, q)
	assert.ErrorIs(t, err, ErrInput)
	assert.Equal(t, "Missing persona or job_to_be_done", Message(err))

	_, err = r.Query(ctx, Query{Persona: "p", Job: "j", Documents: []QueryDocument{{Filename: "x.pdf"}}})
	assert.ErrorIs(t, err, ErrInput)
	assert.Equal(t, "No headings/sections found in supplied documents", Message(err))

	_, err = NewRanker(nil, nil, RankerConfig{}, nil).Query(ctx, travelQuery())
	assert.ErrorIs(t, err, ErrCapabilityUnavailable)

	failing := travelEmbedder()
	failing.fail = map[string]bool{"Plan a trip Travel Planner": true}
	_, err = NewRanker(failing, nil, RankerConfig{Lambda: 0.72}, nil).Query(ctx, travelQuery())
	assert.ErrorIs(t, err, ErrCapabilityUnavailable)

	all := travelEmbedder()
	all.fail = map[string]bool{"Museums|Art": true, "Markets|Cheese": true}
	_, err = NewRanker(all, nil, RankerConfig{Lambda: 0.72}, nil).Query(ctx, travelQuery())
	assert.ErrorIs(t, err, ErrCapabilityUnavailable)
}

func TestErrorUnwrapsCause(t *testing.T) {
	cause := errors.New("timeout")
	err := unavailable("Query embedding failed", cause)
	assert.ErrorIs(t, err, ErrCapabilityUnavailable)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "Query embedding failed: timeout", err.Error())
	assert.Equal(t, "", Message(cause))
}

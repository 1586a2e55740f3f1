package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/dgallion1/docrank/internal/classify"
	"github.com/dgallion1/docrank/internal/doctree"
	"github.com/dgallion1/docrank/internal/features"
	"github.com/dgallion1/docrank/internal/layout"
	"github.com/dgallion1/docrank/internal/outline"
	"github.com/dgallion1/docrank/internal/segment"
	"github.com/dgallion1/docrank/internal/store"
)

// Files stores uploads. *store.Store satisfies it.
type Files interface {
	Save(name string, r io.Reader) (string, error)
	Path(name string) (string, error)
	Remove(name string) error
}

// PageReader returns the laid-out pages of the PDF at path.
type PageReader func(path string) ([]layout.Page, error)

// ReadPDF reads every page of path with the layout package.
func ReadPDF(path string) ([]layout.Page, error) {
	doc, err := layout.Open(path)
	if err != nil {
		return nil, err
	}
	defer doc.Close()
	return doc.Pages()
}

// Upload is one file received from a client.
type Upload struct {
	Filename string
	Body     io.Reader
}

// Analysis is the outcome for one uploaded file. Err is set when the file
// was rejected; the stored copy is removed in that case.
type Analysis struct {
	Filename string // stored name
	Original string
	Outline  doctree.Outline
	Sections []doctree.Section
	Err      error
}

// Message summarizes a successful analysis.
func (a Analysis) Message() string {
	return fmt.Sprintf("Successfully processed PDF and found %d headings and %d sections",
		len(a.Outline.Outline), len(a.Sections))
}

// AnalyzerConfig tunes the upload pipeline.
type AnalyzerConfig struct {
	// Headings is the label set that starts a section.
	Headings classify.LabelSet
	// Timeout bounds one classifier call. Zero means no bound.
	Timeout time.Duration
	// Concurrency bounds how many files are parsed at once.
	Concurrency int
}

// Analyzer turns uploaded PDFs into outlines and sections.
type Analyzer struct {
	files      Files
	classifier classify.Classifier
	cfg        AnalyzerConfig
	read       PageReader
	log        *slog.Logger
}

// NewAnalyzer builds an analyzer. A nil classifier makes every upload fail
// with ErrCapabilityUnavailable.
func NewAnalyzer(files Files, classifier classify.Classifier, cfg AnalyzerConfig, read PageReader, log *slog.Logger) *Analyzer {
	if len(cfg.Headings) == 0 {
		cfg.Headings = classify.NewLabelSet(classify.DefaultHeadingLabels)
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if read == nil {
		read = ReadPDF
	}
	if log == nil {
		log = slog.Default()
	}
	return &Analyzer{files: files, classifier: classifier, cfg: cfg, read: read, log: log}
}

// Analyze stores and analyzes a single upload.
func (a *Analyzer) Analyze(ctx context.Context, up Upload) (Analysis, error) {
	results, err := a.AnalyzeBatch(ctx, []Upload{up})
	if err != nil {
		return Analysis{}, err
	}
	return results[0], results[0].Err
}

// AnalyzeBatch stores and analyzes uploads as one normalization batch.
// Per-file rejections are reported in Analysis.Err; the returned error is
// set only when the whole batch fails.
func (a *Analyzer) AnalyzeBatch(ctx context.Context, uploads []Upload) ([]Analysis, error) {
	if len(uploads) == 0 {
		return nil, inputError("No file provided")
	}
	if a.classifier == nil {
		return nil, unavailable("Model not loaded", nil)
	}

	results := make([]Analysis, len(uploads))
	for i, up := range uploads {
		results[i].Original = up.Filename
		results[i].Filename, results[i].Err = a.store(up)
	}

	// Phase 1: segment and extract with bounded concurrency.
	type parsed struct {
		idx     int
		records []features.Record
		err     error
	}
	out := make(chan parsed, len(uploads))
	sem := make(chan struct{}, a.cfg.Concurrency)
	pending := 0
	for i := range results {
		if results[i].Err != nil {
			continue
		}
		pending++
		sem <- struct{}{}
		go func(i int, name string) {
			defer func() { <-sem }()
			recs, err := a.extract(name)
			out <- parsed{idx: i, records: recs, err: err}
		}(i, results[i].Filename)
	}
	perDoc := make([][]features.Record, len(uploads))
	for range pending {
		p := <-out
		if p.err != nil {
			a.reject(&results[p.idx], p.err)
			continue
		}
		perDoc[p.idx] = p.records
	}

	// Phase 2: normalize and classify the surviving files together.
	var batch []features.Record
	spans := make([][2]int, len(uploads))
	var live []int
	for i, recs := range perDoc {
		if results[i].Err != nil {
			continue
		}
		spans[i] = [2]int{len(batch), len(batch) + len(recs)}
		batch = append(batch, recs...)
		live = append(live, i)
	}
	if len(live) == 0 {
		return results, nil
	}
	batch = features.Normalize(batch)

	labels, err := a.classify(ctx, batch)
	if err != nil {
		for _, i := range live {
			a.remove(results[i].Filename)
		}
		a.log.Error("classification failed", "files", len(live), "rows", len(batch), "error", err)
		return nil, unavailable("Heading classifier unavailable", err)
	}

	// Phase 3: assemble per document.
	for _, i := range live {
		s := spans[i]
		ol, sections, err := outline.Assemble(batch[s[0]:s[1]], labels[s[0]:s[1]], a.cfg.Headings)
		if err != nil {
			a.reject(&results[i], err)
			continue
		}
		results[i].Outline = ol
		results[i].Sections = sections
		a.log.Info("analyzed upload",
			"file", results[i].Filename,
			"runs", s[1]-s[0],
			"headings", len(ol.Outline),
			"sections", len(sections),
		)
	}
	return results, nil
}

func (a *Analyzer) store(up Upload) (string, error) {
	name := strings.TrimSpace(up.Filename)
	if name == "" {
		return "", inputError("No file selected")
	}
	if !strings.EqualFold(filepath.Ext(name), ".pdf") {
		return "", inputError("Invalid file type. Only PDF files are allowed")
	}
	stored, err := a.files.Save(name, up.Body)
	if errors.Is(err, store.ErrInvalidName) {
		return "", inputError("Invalid filename")
	}
	if err != nil {
		return "", fmt.Errorf("save %s: %w", name, err)
	}
	a.log.Info("uploaded file", "file", stored)
	return stored, nil
}

func (a *Analyzer) extract(stored string) ([]features.Record, error) {
	path, err := a.files.Path(stored)
	if err != nil {
		return nil, err
	}
	pages, err := a.read(path)
	if err != nil {
		return nil, emptyExtraction(err)
	}
	runs := segment.Segment(pages)
	if len(runs) == 0 {
		return nil, emptyExtraction(nil)
	}
	return features.ExtractAll(stored, runs), nil
}

func (a *Analyzer) classify(ctx context.Context, batch []features.Record) ([]string, error) {
	if a.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, a.cfg.Timeout)
		defer cancel()
	}
	labels, err := a.classifier.Predict(ctx, features.Matrix(batch))
	if err != nil {
		return nil, err
	}
	return classify.ValidateLabels(len(batch), labels)
}

func (a *Analyzer) reject(res *Analysis, err error) {
	a.log.Warn("upload rejected", "file", res.Filename, "error", err)
	a.remove(res.Filename)
	res.Err = err
}

func (a *Analyzer) remove(name string) {
	if name == "" {
		return
	}
	if err := a.files.Remove(name); err != nil {
		a.log.Warn("remove upload failed", "file", name, "error", err)
	}
}

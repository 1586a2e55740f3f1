package pipeline

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/dgallion1/docrank/internal/doctree"
	"github.com/dgallion1/docrank/internal/embed"
	"github.com/dgallion1/docrank/internal/highlight"
	"github.com/dgallion1/docrank/internal/rank"
	"github.com/dgallion1/docrank/internal/report"
)

// QueryDocument is one document's candidate sections.
type QueryDocument struct {
	Filename string
	Sections []doctree.Section
}

// Query is a persona and task plus the documents to rank.
type Query struct {
	Persona   string
	Job       string
	Documents []QueryDocument
}

// Text is the string embedded for the query.
func (q Query) Text() string {
	return q.Job + " " + q.Persona
}

// Highlighter marks selected sections in the stored PDFs.
type Highlighter interface {
	HighlightAll(ctx context.Context, refs []highlight.Reference) []highlight.Outcome
}

// RankerConfig tunes role queries.
type RankerConfig struct {
	Lambda float64
	K      int
	// Timeout bounds the embedding of the query and of each document.
	Timeout time.Duration
	// Concurrency bounds how many documents are embedded at once.
	Concurrency int
}

// Ranker answers role queries with MMR selection.
type Ranker struct {
	embedder    embed.Embedder
	highlighter Highlighter
	cfg         RankerConfig
	log         *slog.Logger
	now         func() time.Time
}

// NewRanker builds a ranker. A nil embedder makes every query fail with
// ErrCapabilityUnavailable; a nil highlighter skips highlighting.
func NewRanker(embedder embed.Embedder, highlighter Highlighter, cfg RankerConfig, log *slog.Logger) *Ranker {
	if cfg.K <= 0 {
		cfg.K = rank.DefaultK
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &Ranker{embedder: embedder, highlighter: highlighter, cfg: cfg, log: log, now: time.Now}
}

type candidate struct {
	document string
	section  doctree.Section
	vec      []float32
}

// Query ranks every supplied section against the persona and task, then
// highlights the selected headings.
func (r *Ranker) Query(ctx context.Context, q Query) (report.Result, error) {
	q.Persona = strings.TrimSpace(q.Persona)
	q.Job = strings.TrimSpace(q.Job)
	if q.Persona == "" || q.Job == "" {
		return report.Result{}, inputError("Missing persona or job_to_be_done")
	}
	if r.embedder == nil {
		return report.Result{}, unavailable("Embedder not loaded on server", nil)
	}

	total := 0
	for _, d := range q.Documents {
		total += len(d.Sections)
	}
	if total == 0 {
		return report.Result{}, inputError("No headings/sections found in supplied documents")
	}

	log := r.log.With("persona", q.Persona, "documents", len(q.Documents))

	qctx, cancel := r.bound(ctx)
	qvec, err := r.embedder.Embed(qctx, q.Text())
	cancel()
	if err != nil {
		return report.Result{}, unavailable("Query embedding failed", err)
	}

	cands := r.embedDocuments(ctx, q.Documents, log)
	if len(cands) == 0 {
		return report.Result{}, unavailable("Embedding failed for every document", nil)
	}

	vecs := make([][]float32, len(cands))
	for i, c := range cands {
		vecs[i] = c.vec
	}
	sel := rank.MMR(qvec, vecs, r.cfg.Lambda, r.cfg.K)

	res := report.Result{
		Metadata: report.Metadata{
			InputDocuments:      make([]string, len(q.Documents)),
			Persona:             q.Persona,
			JobToBeDone:         q.Job,
			ProcessingTimestamp: r.now().Format(report.TimestampLayout),
		},
		ExtractedSections:  make([]report.ExtractedSection, 0, len(sel.Selected)),
		SubsectionAnalysis: make([]report.Subsection, 0, len(sel.Selected)),
	}
	for i, d := range q.Documents {
		res.Metadata.InputDocuments[i] = d.Filename
	}

	refs := make([]highlight.Reference, 0, len(sel.Selected))
	for n, idx := range sel.Selected {
		c := cands[idx]
		res.ExtractedSections = append(res.ExtractedSections, report.ExtractedSection{
			Document:       c.document,
			SectionTitle:   c.section.Heading,
			ImportanceRank: n + 1,
			PageNumber:     c.section.Page,
		})
		res.SubsectionAnalysis = append(res.SubsectionAnalysis, report.Subsection{
			Document:    c.document,
			RefinedText: c.section.Text,
			PageNumber:  c.section.Page,
		})
		refs = append(refs, highlight.Reference{
			Filename: c.document,
			Page:     c.section.Page,
			Heading:  c.section.Heading,
		})
		log.Debug("selected section", "rank", n+1, "document", c.document, "heading", c.section.Heading, "relevance", sel.QuerySim[idx])
	}

	if r.highlighter != nil {
		marked := 0
		for _, o := range r.highlighter.HighlightAll(ctx, refs) {
			if !o.Skipped() {
				marked++
			}
		}
		log.Info("role query complete", "candidates", len(cands), "selected", len(refs), "highlighted", marked)
	} else {
		log.Info("role query complete", "candidates", len(cands), "selected", len(refs))
	}
	return res, nil
}

// embedDocuments embeds every section, document by document. A document
// whose embedding fails is skipped. Candidate order follows the input.
func (r *Ranker) embedDocuments(ctx context.Context, docs []QueryDocument, log *slog.Logger) []candidate {
	type docResult struct {
		idx   int
		cands []candidate
		err   error
	}
	results := make(chan docResult, len(docs))
	sem := make(chan struct{}, r.cfg.Concurrency)
	for i, d := range docs {
		sem <- struct{}{}
		go func(i int, d QueryDocument) {
			defer func() { <-sem }()
			cands, err := r.embedDocument(ctx, d)
			results <- docResult{idx: i, cands: cands, err: err}
		}(i, d)
	}

	perDoc := make([][]candidate, len(docs))
	for range docs {
		res := <-results
		if res.err != nil {
			log.Warn("embedding failed, skipping document", "document", docs[res.idx].Filename, "error", res.err)
			continue
		}
		perDoc[res.idx] = res.cands
	}

	var out []candidate
	for _, c := range perDoc {
		out = append(out, c...)
	}
	return out
}

func (r *Ranker) embedDocument(ctx context.Context, d QueryDocument) ([]candidate, error) {
	ctx, cancel := r.bound(ctx)
	defer cancel()
	cands := make([]candidate, 0, len(d.Sections))
	for _, s := range d.Sections {
		vec, err := r.embedder.Embed(ctx, s.Text)
		if err != nil {
			return nil, err
		}
		cands = append(cands, candidate{document: d.Filename, section: s, vec: vec})
	}
	return cands, nil
}

func (r *Ranker) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if r.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, r.cfg.Timeout)
	}
	return context.WithCancel(ctx)
}

package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"

	"github.com/dgallion1/docrank/internal/doctree"
	"github.com/dgallion1/docrank/internal/pipeline"
	"github.com/dgallion1/docrank/internal/report"
)

const maxQueryBytes = 10 << 20

// roleQueryRequest is the raw body. persona and job_to_be_done may be a
// string or an object; documents must be a list.
type roleQueryRequest struct {
	Persona     json.RawMessage `json:"persona"`
	JobToBeDone json.RawMessage `json:"job_to_be_done"`
	Documents   json.RawMessage `json:"documents"`
}

type rawDocument struct {
	Filename       string           `json:"filename"`
	ServerFilename string           `json:"serverFilename"`
	Name           string           `json:"name"`
	Sections       []map[string]any `json:"sections"`
	Outline        *struct {
		Outline []map[string]any `json:"outline"`
	} `json:"outline"`
}

type roleQuery struct {
	Persona   string          `validate:"required"`
	Job       string          `validate:"required"`
	Documents []queryDocument `validate:"dive"`
}

type queryDocument struct {
	Filename string            `validate:"required"`
	Sections []doctree.Section `validate:"dive"`
}

func (s *Server) handleRoleQuery(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxQueryBytes)

	var req roleQueryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, "Invalid JSON", http.StatusBadRequest)
		return
	}

	q, msg := decodeRoleQuery(req)
	if msg != "" {
		jsonError(w, msg, http.StatusBadRequest)
		return
	}
	if err := s.validate.Struct(q); err != nil {
		jsonError(w, validationMessage(err), http.StatusBadRequest)
		return
	}

	query := pipeline.Query{Persona: q.Persona, Job: q.Job}
	for _, d := range q.Documents {
		query.Documents = append(query.Documents, pipeline.QueryDocument{
			Filename: d.Filename,
			Sections: d.Sections,
		})
	}

	res, err := s.ranker.Query(r.Context(), query)
	if err != nil {
		s.pipelineError(w, r, err)
		return
	}

	if r.URL.Query().Get("format") == "html" {
		html, err := report.HTML(res)
		if err != nil {
			s.pipelineError(w, r, err)
			return
		}
		writeHTML(w, html)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// decodeRoleQuery resolves the flexible request shapes. A non-empty message
// is a client error.
func decodeRoleQuery(req roleQueryRequest) (roleQuery, string) {
	q := roleQuery{
		Persona: textField(req.Persona, "role"),
		Job:     textField(req.JobToBeDone, "task"),
	}

	raw := bytes.TrimSpace(req.Documents)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return q, ""
	}
	if raw[0] != '[' {
		return q, "documents must be a list"
	}
	var docs []rawDocument
	if err := json.Unmarshal(raw, &docs); err != nil {
		return q, "documents must be a list of objects"
	}

	for _, d := range docs {
		name := d.Filename
		if name == "" {
			name = d.ServerFilename
		}
		if name == "" {
			name = d.Name
		}
		items := d.Sections
		if len(items) == 0 && d.Outline != nil {
			items = d.Outline.Outline
		}
		doc := queryDocument{Filename: name}
		for _, item := range items {
			doc.Sections = append(doc.Sections, sectionFromItem(item))
		}
		q.Documents = append(q.Documents, doc)
	}
	return q, ""
}

// textField reads a bare string, or the string under key of an object.
func textField(raw json.RawMessage, key string) string {
	if len(raw) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err == nil {
		if v, ok := obj[key].(string); ok {
			return v
		}
	}
	return ""
}

// sectionFromItem accepts a section {heading,text,page}, an outline node
// {level,text,page} whose text is both heading and body, or anything else
// on a best-effort basis. A missing page becomes -1.
func sectionFromItem(item map[string]any) doctree.Section {
	text, hasText := item["text"].(string)
	heading, hasHeading := item["heading"].(string)
	_, hasLevel := item["level"]

	var sec doctree.Section
	switch {
	case hasText && hasHeading:
		sec.Heading, sec.Text = heading, text
	case hasText && hasLevel:
		sec.Heading, sec.Text = text, text
	default:
		sec.Heading = heading
		if sec.Heading == "" {
			sec.Heading = text
		}
		if sec.Heading == "" {
			b, _ := json.Marshal(item)
			sec.Heading = string(b)
		}
		sec.Text = text
		if sec.Text == "" {
			sec.Text = sec.Heading
		}
	}
	sec.Page = pageNumber(item["page"])
	return sec
}

func pageNumber(v any) int {
	switch p := v.(type) {
	case float64:
		return int(p)
	case string:
		if n, err := strconv.Atoi(p); err == nil {
			return n
		}
	}
	return -1
}

func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return "Invalid request"
	}
	for _, fe := range verrs {
		if fe.Field() == "Persona" || fe.Field() == "Job" {
			return "Missing persona or job_to_be_done"
		}
	}
	return "Each document needs a filename"
}

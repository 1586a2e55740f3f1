package layout

import (
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/color"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

var highlightColor = color.SimpleColor{R: 1, G: 1, B: 0}

// saveSeq distinguishes annotation ids written within the same nanosecond.
var saveSeq atomic.Uint64

// writeHighlights appends highlight annotations to the file at path as an
// incremental update. The original body, including any encryption
// dictionary, is left untouched.
//
// The update uses a classic xref table so the file stays readable by
// ledongthuc/pdf, and ids carry a per-save nonce so repeated saves never
// collide with annotations already in the file.
var writeHighlights = func(path string, pending map[int][]Rect) error {
	nonce := saveNonce()
	m := make(map[int][]model.AnnotationRenderer, len(pending))
	for page, rects := range pending {
		for _, r := range rects {
			id := fmt.Sprintf("docrank-hl-%s-%d-%d", nonce, page, len(m[page]))
			m[page] = append(m[page], highlightAnnotation(id, r))
		}
	}
	conf := model.NewDefaultConfiguration()
	conf.WriteXRefStream = false
	conf.WriteObjectStream = false
	return api.AddAnnotationsMapFile(path, path, m, conf, true)
}

func saveNonce() string {
	return strconv.FormatInt(time.Now().UnixNano(), 36) + "." + strconv.FormatUint(saveSeq.Add(1), 36)
}

func highlightAnnotation(id string, r Rect) model.AnnotationRenderer {
	rect := types.NewRectangle(r.X0, r.Y0, r.X1, r.Y1)
	quad := types.QuadLiteral{
		P1: types.Point{X: r.X0, Y: r.Y1},
		P2: types.Point{X: r.X1, Y: r.Y1},
		P3: types.Point{X: r.X0, Y: r.Y0},
		P4: types.Point{X: r.X1, Y: r.Y0},
	}
	return model.NewHighlightAnnotation(
		*rect,
		0,  // apObjNr
		"", // contents
		id,
		"", // modDate
		model.AnnPrint,
		&highlightColor,
		0, 0, 0, // border
		"",  // title
		nil, // popup
		nil, // opacity
		"",  // rich text
		"",  // subject
		types.QuadPoints{quad},
	)
}

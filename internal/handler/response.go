package handler

import (
	"net/http"

	"github.com/go-faster/errors"
	"github.com/go-faster/jx"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/xenking/product-catalog/internal/domain/product"
	"github.com/xenking/product-catalog/pkg/httpmiddleware"
)

func encodeView(e *jx.Encoder, v product.View) {
	e.ObjStart()
	e.FieldStart("id")
	e.Int64(v.ID)
	e.FieldStart("name")
	e.Str(v.Name)
	e.FieldStart("description")
	e.Str(v.Description)
	e.FieldStart("price")
	e.Str(v.Price.StringFixed(2))
	e.FieldStart("image_key")
	encodeOptStr(e, v.ImageKey)
	e.FieldStart("image_url")
	encodeOptStr(e, v.ImageURL)
	e.ObjEnd()
}

func encodeOptStr(e *jx.Encoder, s *string) {
	if s == nil {
		e.Null()
		return
	}
	e.Str(*s)
}

func writeJSON(w http.ResponseWriter, status int, encode func(e *jx.Encoder)) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)
	encode(e)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	// Status is already written, a failed write means the client is gone.
	_, _ = w.Write(e.Bytes())
}

// writeError maps domain errors to status codes. Unknown errors are logged
// and reported without detail beyond the request ID.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var invalid *product.InvalidInputError
	switch {
	case errors.As(err, &invalid):
		httpmiddleware.WriteError(w, r, http.StatusBadRequest, invalid.Error())
	case errors.Is(err, product.ErrNotFound):
		httpmiddleware.WriteError(w, r, http.StatusNotFound, "product not found")
	case errors.Is(err, errBodyTooLarge):
		httpmiddleware.WriteError(w, r, http.StatusRequestEntityTooLarge, "request body too large")
	default:
		zctx.From(r.Context()).Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		httpmiddleware.WriteError(w, r, http.StatusInternalServerError, "internal server error")
	}
}

package httpmiddleware

import (
	"net/http"

	"github.com/go-faster/jx"
)

// WriteError writes {"error": msg}, the body shape of every API failure.
// Server errors also carry the request ID so clients can quote it.
func WriteError(w http.ResponseWriter, r *http.Request, code int, msg string) {
	e := jx.GetEncoder()
	defer jx.PutEncoder(e)

	e.ObjStart()
	e.FieldStart("error")
	e.Str(msg)
	if id := RequestIDFromContext(r.Context()); id != "" && code >= http.StatusInternalServerError {
		e.FieldStart("request_id")
		e.Str(id)
	}
	e.ObjEnd()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	// Status is already written, a failed write means the client is gone.
	_, _ = w.Write(e.Bytes())
}

package httpmiddleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// RequestIDHeader carries the request ID in both directions.
const RequestIDHeader = "X-Request-ID"

// requestIDAttr is the span attribute holding the request ID.
const requestIDAttr = "http.request.id"

type requestIDKey struct{}

// WithRequestID returns a copy of ctx carrying id.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

// RequestIDFromContext returns the ID stored by RequestID, or "".
func RequestIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey{}).(string)
	return id
}

// RequestID tags every request with an ID so a client can quote it when
// reporting a failure. A usable incoming X-Request-ID is kept, anything else
// is replaced by a random UUID. The ID is echoed in the response header and
// set on the active server span, so it must run inside Instrument.
func RequestID() Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := clientRequestID(r.Header.Get(RequestIDHeader))
			if id == "" {
				id = uuid.NewString()
			}

			w.Header().Set(RequestIDHeader, id)
			trace.SpanFromContext(r.Context()).SetAttributes(attribute.String(requestIDAttr, id))

			next.ServeHTTP(w, r.WithContext(WithRequestID(r.Context(), id)))
		})
	}
}

// clientRequestID returns v when it is short printable ASCII, else "".
func clientRequestID(v string) string {
	if v == "" || len(v) > 128 {
		return ""
	}
	if strings.IndexFunc(v, func(c rune) bool { return c < ' ' || c > '~' }) >= 0 {
		return ""
	}
	return v
}

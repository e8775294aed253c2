// Package middleware holds the HTTP middleware chain mounted in front of the
// mint and ownership routes.
package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

const (
	RequestIDHeader = "X-Request-ID"
	TraceIDHeader   = "X-Trace-ID"
)

type idKey struct{ name string }

var (
	requestIDKey = idKey{"request_id"}
	traceIDKey   = idKey{"trace_id"}
)

// maxIDLength bounds caller-supplied ids before they reach the logs.
const maxIDLength = 128

// acceptID returns v when it is usable as a log correlation id: non-empty,
// bounded and printable ASCII without spaces.
func acceptID(v string) (string, bool) {
	if v == "" || len(v) > maxIDLength {
		return "", false
	}
	if strings.IndexFunc(v, func(r rune) bool { return r <= ' ' || r > '~' }) >= 0 {
		return "", false
	}
	return v, true
}

// RequestID tags every request with an id, echoing it in the response. A
// caller-supplied X-Request-ID is kept when acceptable; otherwise a UUID is
// minted. X-Trace-ID is propagated only when the caller sends one.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, ok := acceptID(r.Header.Get(RequestIDHeader))
		if !ok {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		ctx := context.WithValue(r.Context(), requestIDKey, id)

		if trace, ok := acceptID(r.Header.Get(TraceIDHeader)); ok {
			w.Header().Set(TraceIDHeader, trace)
			ctx = context.WithValue(ctx, traceIDKey, trace)
		}

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetRequestID returns the id assigned by RequestID, or "".
func GetRequestID(ctx context.Context) string {
	id, _ := ctx.Value(requestIDKey).(string)
	return id
}

func GetTraceID(ctx context.Context) string {
	id, _ := ctx.Value(traceIDKey).(string)
	return id
}

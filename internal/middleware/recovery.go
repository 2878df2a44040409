package middleware

import (
	"errors"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/andrewdmason/undercurrent-sub000/internal/httputil"
)

// Recovery middleware recovers from panics. Before anything was written it
// answers with a 500 problem response. After a completion stream has sent its
// status line nothing more is written and the response just ends.
func Recovery(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tw := &trackingWriter{ResponseWriter: w}
			defer func() {
				err := recover()
				if err == nil {
					return
				}
				// net/http uses this sentinel to abort a response on purpose
				if e, ok := err.(error); ok && errors.Is(e, http.ErrAbortHandler) {
					panic(err)
				}

				logger.Error("panic recovered",
					"error", err,
					"path", r.URL.Path,
					"method", r.Method,
					"owner_id", httputil.GetOwnerID(r),
					"streaming", tw.wroteHeader,
					"stack", string(debug.Stack()),
				)

				if tw.wroteHeader {
					return
				}
				httputil.RespondError(w, http.StatusInternalServerError, "internal server error")
			}()

			next.ServeHTTP(tw, r)
		})
	}
}

// trackingWriter records whether the response has started. It keeps
// Flush and Unwrap so SSE streams and http.ResponseController still reach
// the underlying writer.
type trackingWriter struct {
	http.ResponseWriter
	wroteHeader bool
}

func (t *trackingWriter) WriteHeader(status int) {
	t.wroteHeader = true
	t.ResponseWriter.WriteHeader(status)
}

func (t *trackingWriter) Write(b []byte) (int, error) {
	t.wroteHeader = true
	return t.ResponseWriter.Write(b)
}

func (t *trackingWriter) Flush() {
	if f, ok := t.ResponseWriter.(http.Flusher); ok {
		t.wroteHeader = true
		f.Flush()
	}
}

func (t *trackingWriter) Unwrap() http.ResponseWriter {
	return t.ResponseWriter
}

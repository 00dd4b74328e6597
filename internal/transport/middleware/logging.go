package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/middleware"

	"github.com/frahmantamala/momo-collections/pkg/logger"
)

// maxLoggedBody caps how much of a body is kept for the log line; the rest of
// a request body is still streamed to the handler.
const maxLoggedBody = 64 << 10

const redacted = "[FILTERED]"

// secretKeys are dropped outright wherever they appear in a header name or a
// JSON key.
var secretKeys = []string{
	"authorization",
	"cookie",
	"token",
	"secret",
	"api_key",
	"apikey",
	"password",
	"credential",
	"session",
}

// phoneKeys hold payer wallet numbers; only the last three digits are logged.
var phoneKeys = []string{"phone", "msisdn"}

// quietPaths are polled by infrastructure and logged at debug.
var quietPaths = map[string]bool{
	"/metrics":       true,
	"/api/v1/health": true,
	"/api/v1/ping":   true,
}

// LoggingMiddleware writes one line per request and one per response using
// the request-scoped logger, so both carry the trace id. Response bodies are
// only logged for 4xx and 5xx.
func LoggingMiddleware(base *slog.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lg := logger.FromOr(r.Context(), base)

			level := slog.LevelInfo
			if quietPaths[r.URL.Path] {
				level = slog.LevelDebug
			}

			reqID := middleware.GetReqID(r.Context())
			if reqID == "" {
				reqID = w.Header().Get("X-Trace-ID")
			}

			var body []byte
			if r.Body != nil && r.Body != http.NoBody {
				body, _ = io.ReadAll(io.LimitReader(r.Body, maxLoggedBody))
				r.Body = readCloser{io.MultiReader(bytes.NewReader(body), r.Body), r.Body}
			}

			lg.Log(r.Context(), level, "incoming request",
				"request_id", reqID,
				"method", r.Method,
				"path", r.URL.Path,
				"query", r.URL.RawQuery,
				"remote_addr", r.RemoteAddr,
				"user_agent", r.UserAgent(),
				"headers", redactHeaders(r.Header),
				"body", redactBody(body),
			)

			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			attrs := []any{
				"request_id", reqID,
				"status_code", rec.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"response_size", rec.size,
			}
			switch {
			case rec.status >= http.StatusInternalServerError:
				level = slog.LevelError
			case rec.status >= http.StatusBadRequest:
				level = slog.LevelWarn
			}
			if rec.status >= http.StatusBadRequest {
				attrs = append(attrs, "body", redactBody(rec.errBody.Bytes()))
			}
			lg.Log(r.Context(), level, "response", attrs...)
		})
	}
}

// readCloser keeps the original body's Close after it has been partly buffered.
type readCloser struct {
	io.Reader
	io.Closer
}

type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
	size        int
	errBody     bytes.Buffer
}

func (rw *statusRecorder) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.status = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *statusRecorder) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	if rw.status >= http.StatusBadRequest && rw.errBody.Len() < maxLoggedBody {
		rw.errBody.Write(b[:min(len(b), maxLoggedBody-rw.errBody.Len())])
	}
	n, err := rw.ResponseWriter.Write(b)
	rw.size += n
	return n, err
}

func redactHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for name, values := range headers {
		if matchesAny(strings.ToLower(name), secretKeys) {
			out[name] = redacted
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}

func redactBody(body []byte) string {
	if len(body) == 0 {
		return ""
	}

	var data any
	if err := json.Unmarshal(body, &data); err != nil {
		// form-encoded and plain bodies are not parsed; drop them if they look secret
		if matchesAny(strings.ToLower(string(body)), secretKeys) {
			return redacted
		}
		return string(body)
	}

	out, err := json.Marshal(redactValue("", data))
	if err != nil {
		return redacted
	}
	return string(out)
}

func redactValue(key string, v any) any {
	lower := strings.ToLower(key)
	switch {
	case key != "" && matchesAny(lower, secretKeys):
		return redacted
	case key != "" && matchesAny(lower, phoneKeys):
		if s, ok := v.(string); ok {
			return MaskPhone(s)
		}
		return redacted
	}

	switch val := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = redactValue(k, item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = redactValue(key, item)
		}
		return out
	default:
		return v
	}
}

// MaskPhone keeps the last three digits of a wallet number.
func MaskPhone(phone string) string {
	if len(phone) <= 3 {
		return strings.Repeat("*", len(phone))
	}
	return strings.Repeat("*", len(phone)-3) + phone[len(phone)-3:]
}

func matchesAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

package middleware

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/frahmantamala/authcore/pkg/logger"
)

const (
	filtered = "[FILTERED]"

	// maxLoggedBody caps how much of a body ends up in a log line.
	maxLoggedBody = 4 << 10
)

// sensitiveFields are matched as substrings of lower-cased header, JSON and
// form field names.
var sensitiveFields = []string{
	"password",
	"token",
	"authorization",
	"cookie",
	"secret",
	"api_key",
	"session",
	"credential",
}

// quietPaths are polled by infrastructure and logged at debug only.
var quietPaths = map[string]struct{}{
	"/metrics":       {},
	"/api/v1/health": {},
	"/api/v1/ping":   {},
}

// LoggingMiddleware logs each request and response with credentials masked.
// It picks up fields (request id, username) attached to the context logger.
func LoggingMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			lg := logger.From(r.Context())

			if _, quiet := quietPaths[r.URL.Path]; quiet {
				next.ServeHTTP(w, r)
				lg.Debug("polled", "path", r.URL.Path, "duration_ms", time.Since(start).Milliseconds())
				return
			}

			var reqBody []byte
			if r.Body != nil {
				reqBody, _ = io.ReadAll(r.Body)
				r.Body = io.NopCloser(bytes.NewReader(reqBody))
			}
			lg.Info("incoming request",
				"method", r.Method,
				"path", r.URL.Path,
				"query", r.URL.RawQuery,
				"remote_addr", r.RemoteAddr,
				"user_agent", r.UserAgent(),
				"headers", maskHeaders(r.Header),
				"body", maskBody(r.Header.Get("Content-Type"), reqBody),
			)

			rec := &recordingWriter{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)

			lg.Log(r.Context(), levelFor(rec.status), "response",
				"method", r.Method,
				"path", r.URL.Path,
				"status_code", rec.status,
				"duration_ms", time.Since(start).Milliseconds(),
				"response_size", rec.size,
				"body", maskBody(rec.Header().Get("Content-Type"), rec.body.Bytes()),
			)
		})
	}
}

// recordingWriter keeps the status, the byte count and just enough of the
// response body for truncate to notice an overflow.
type recordingWriter struct {
	http.ResponseWriter
	status int
	size   int
	body   bytes.Buffer
}

func (w *recordingWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *recordingWriter) Write(b []byte) (int, error) {
	if room := maxLoggedBody + 1 - w.body.Len(); room > 0 {
		w.body.Write(b[:min(room, len(b))])
	}
	n, err := w.ResponseWriter.Write(b)
	w.size += n
	return n, err
}

func levelFor(status int) slog.Level {
	switch {
	case status >= http.StatusInternalServerError:
		return slog.LevelError
	case status >= http.StatusBadRequest:
		return slog.LevelWarn
	default:
		return slog.LevelInfo
	}
}

func isSensitive(name string) bool {
	name = strings.ToLower(name)
	for _, field := range sensitiveFields {
		if strings.Contains(name, field) {
			return true
		}
	}
	return false
}

func maskHeaders(headers http.Header) map[string]string {
	out := make(map[string]string, len(headers))
	for name, values := range headers {
		if isSensitive(name) {
			out[name] = filtered
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}

// maskBody renders a JSON or urlencoded body with sensitive fields replaced.
// Anything else that mentions a sensitive field is dropped whole.
func maskBody(contentType string, body []byte) string {
	if len(body) == 0 {
		return ""
	}

	mediaType, _, _ := mime.ParseMediaType(contentType)
	if mediaType == "application/x-www-form-urlencoded" {
		if form, err := url.ParseQuery(string(body)); err == nil {
			for key := range form {
				if isSensitive(key) {
					form[key] = []string{filtered}
				}
			}
			return truncate(form.Encode())
		}
	}

	var doc interface{}
	if err := json.Unmarshal(body, &doc); err == nil {
		out, err := json.Marshal(maskJSON(doc))
		if err != nil {
			return "[ERROR - Failed to marshal filtered JSON]"
		}
		return truncate(string(out))
	}

	if isSensitive(string(body)) {
		return "[FILTERED - Contains sensitive data]"
	}
	return truncate(string(body))
}

func maskJSON(v interface{}) interface{} {
	switch v := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(v))
		for key, value := range v {
			if isSensitive(key) {
				out[key] = filtered
				continue
			}
			out[key] = maskJSON(value)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(v))
		for i, item := range v {
			out[i] = maskJSON(item)
		}
		return out
	default:
		return v
	}
}

func truncate(s string) string {
	if len(s) <= maxLoggedBody {
		return s
	}
	return s[:maxLoggedBody] + "...(truncated)"
}

package observability

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Request-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)
		next.ServeHTTP(w, r)
	})
}

func Logging(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			next.ServeHTTP(rec, r)
			log.Info("request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", rec.status),
				zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			)
		})
	}
}

const signatureVersion = "v0"

// Slack signs requests with an HMAC over "v0:<timestamp>:<body>". Requests
// older than five minutes are rejected to limit replay.
func SlackSignature(signingSecret string, now func() time.Time) func(http.Handler) http.Handler {
	if now == nil {
		now = time.Now
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if signingSecret == "" {
				http.Error(w, "signing secret not configured", http.StatusUnauthorized)
				return
			}

			ts := r.Header.Get("X-Slack-Request-Timestamp")
			unix, err := strconv.ParseInt(ts, 10, 64)
			if err != nil {
				http.Error(w, "invalid request timestamp", http.StatusUnauthorized)
				return
			}
			age := now().Unix() - unix
			if age < -300 || age > 300 {
				http.Error(w, "request timestamp out of range", http.StatusUnauthorized)
				return
			}

			body, err := io.ReadAll(io.LimitReader(r.Body, 1024*1024))
			if err != nil {
				http.Error(w, "failed to read body", http.StatusBadRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))

			mac := hmac.New(sha256.New, []byte(signingSecret))
			mac.Write([]byte(signatureVersion + ":" + ts + ":"))
			mac.Write(body)
			expected := signatureVersion + "=" + hex.EncodeToString(mac.Sum(nil))

			if !hmac.Equal([]byte(expected), []byte(r.Header.Get("X-Slack-Signature"))) {
				http.Error(w, "signature mismatch", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

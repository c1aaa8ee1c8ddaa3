package rest

import (
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/davidleathers/healthcare-security-pipeline/internal/domain/security"
	"github.com/davidleathers/healthcare-security-pipeline/internal/metrics"
	risksvc "github.com/davidleathers/healthcare-security-pipeline/internal/service/risk"
)

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// withLogging logs each request and records HTTP metrics
func withLogging(logger *zap.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		duration := time.Since(start)
		metrics.RecordHTTPRequest(r.Method, r.URL.Path, strconv.Itoa(rec.status), duration)
		logger.Debug("request handled",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("duration", duration))
	})
}

// withCorrelationID assigns a correlation ID when the client did not
// send one, and echoes it back.
func withCorrelationID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		correlationID := r.Header.Get("X-Correlation-ID")
		if correlationID == "" {
			correlationID = uuid.New().String()
			r.Header.Set("X-Correlation-ID", correlationID)
		}
		w.Header().Set("X-Correlation-ID", correlationID)
		next.ServeHTTP(w, r)
	})
}

// WithEvaluation runs the security pipeline inline for the wrapped
// routes. Blocked requests get the decision's status and headers and
// never reach the handler.
func WithEvaluation(engine risksvc.Service, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		descriptor := describeRequest(r)

		decision := engine.Evaluate(r.Context(), descriptor)
		for name, value := range decision.Headers {
			w.Header().Set(name, value)
		}
		if !decision.Allowed {
			w.Header().Set("Content-Type", "application/json; charset=utf-8")
			w.WriteHeader(decision.StatusCode)
			w.Write([]byte(`{"error":{"code":"REQUEST_BLOCKED","message":"request blocked by security policy"}}`))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func describeRequest(r *http.Request) *security.RequestDescriptor {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		host = forwarded
	}

	headers := make(map[string]string, len(r.Header))
	for name := range r.Header {
		headers[name] = r.Header.Get(name)
	}

	descriptor := &security.RequestDescriptor{
		Method:            r.Method,
		Path:              r.URL.Path,
		ClientIP:          host,
		UserAgent:         r.UserAgent(),
		Headers:           headers,
		BearerToken:       security.ExtractBearer(r.Header.Get("Authorization")),
		DeviceFingerprint: r.Header.Get("X-Device-Fingerprint"),
		TenantID:          r.Header.Get("X-Tenant-ID"),
		CorrelationID:     r.Header.Get("X-Correlation-ID"),
	}
	if cookie, err := r.Cookie("session_id"); err == nil {
		descriptor.SessionID = cookie.Value
	}
	descriptor.ParseQuery(r.URL.RawQuery)
	return descriptor
}

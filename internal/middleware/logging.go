package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/changelog/internal/logger"
	"github.com/hitoshi/changelog/internal/metrics"
)

// HeaderRequestID はゲートウェイから引き継ぐ、またはこのサービスで採番するリクエストID。
const HeaderRequestID = "X-Request-ID"

// maxRequestIDLength を超えるリクエストIDは信用せず採番し直す。
const maxRequestIDLength = 128

// statusRecorder は最初に書き込まれたステータスコードを記録する。
type statusRecorder struct {
	http.ResponseWriter
	statusCode int
	written    bool
}

func (sr *statusRecorder) WriteHeader(code int) {
	if !sr.written {
		sr.statusCode = code
		sr.written = true
	}
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if !sr.written {
		sr.statusCode = http.StatusOK
		sr.written = true
	}
	return sr.ResponseWriter.Write(b)
}

// requestID はゲートウェイのリクエストIDを引き継ぐ。無い場合や長すぎる場合はUUIDを採番する。
func requestID(r *http.Request) string {
	if id := r.Header.Get(HeaderRequestID); id != "" && len(id) <= maxRequestIDLength {
		return id
	}
	return uuid.NewString()
}

// NewLoggingMiddleware はアクセスログを出力するミドルウェアを返す。
//
// リクエストIDをレスポンスヘッダーとコンテキストに設定するため、下流の*Context系ログにも
// request_idが付く。アクセスログのレベルは5xxでerror、4xxでwarnとする。
// recorderがnilでなければステータスコードと処理時間をメトリクスに記録する。
func NewLoggingMiddleware(l *slog.Logger, recorder metrics.HTTPRecorder) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			id := requestID(r)
			w.Header().Set(HeaderRequestID, id)
			r = r.WithContext(logger.ContextWithRequestID(r.Context(), id))

			rec := &statusRecorder{ResponseWriter: w, statusCode: http.StatusOK}
			next.ServeHTTP(rec, r)

			duration := time.Since(start)
			if recorder != nil {
				recorder.RecordHTTPStatus(rec.statusCode)
				recorder.RecordRequestLatency(duration)
			}

			args := []any{
				slog.String("method", r.Method),
				slog.String("path", r.URL.Path),
				slog.Int("status", rec.statusCode),
				slog.Float64("duration_ms", float64(duration.Microseconds())/1000),
			}
			// テナントミドルウェアより外側に置くため、ヘッダーから直接読む
			if tenantID := r.Header.Get(HeaderTenantID); tenantID != "" {
				args = append(args, slog.String("tenant_id", tenantID))
			}
			if actorID := r.Header.Get(HeaderActorID); actorID != "" {
				args = append(args, slog.String("actor_id", actorID))
			}

			level := slog.LevelInfo
			switch {
			case rec.statusCode >= http.StatusInternalServerError:
				level = slog.LevelError
			case rec.statusCode >= http.StatusBadRequest:
				level = slog.LevelWarn
			}
			l.Log(r.Context(), level, "http_request", args...)
		})
	}
}

package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/cors"

	"github.com/hitoshi/changelog/internal/metrics"
	"github.com/hitoshi/changelog/internal/middleware"
)

// HealthChecker は/healthで疎通を確認する依存先。*sql.DBが満たす。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// ContentStore は全ハンドラーが必要とするストアのインターフェース。*content.Storeが満たす。
type ContentStore interface {
	ReaderStore
	AdminStore
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Store             ContentStore
	HealthChecker     HealthChecker
	RateLimiter       *middleware.RateLimiter
	CORSAllowedOrigin string

	// WriteTimeoutは管理者の書き込み1件あたりの期限。0の場合は期限を設けない。
	WriteTimeout time.Duration
	// Loggerがnilの場合はslog.Default()を使う。
	Logger *slog.Logger
	// HTTPRecorderがnilの場合はHTTPメトリクスを記録しない。
	HTTPRecorder metrics.HTTPRecorder
	// Gathererがnilの場合は/metricsを公開しない。
	Gatherer prometheus.Gatherer
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → Logging → SecurityHeaders → CORS → Tenant → RateLimit(General) → [RequireAdmin → RateLimit(Write)]
//
// /health と /metrics はテナントチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware(logger))
	r.Use(middleware.NewLoggingMiddleware(logger, deps.HTTPRecorder))
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(newCORS(deps.CORSAllowedOrigin).Handler)

	postHandler := NewPostHandler(deps.Store)
	adminHandler := NewAdminHandler(deps.Store, deps.WriteTimeout)

	// --- 認証不要のルート ---
	r.Get("/health", healthHandler(deps.HealthChecker))
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}

	// --- ゲートウェイの認証ヘッダーが必要なルート ---
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewTenantMiddleware())
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// 読者向けフィード
		r.Route("/api/posts", func(r chi.Router) {
			r.Get("/", postHandler.ListPosts)
			r.Get("/{slug}", postHandler.GetPost)
		})

		// 未読バッジ
		r.Route("/api/unread", func(r chi.Router) {
			r.Get("/", postHandler.GetUnread)
			r.Post("/seen", postHandler.MarkSeen)
		})

		// 投稿管理（管理者のみ）
		r.Route("/api/admin/posts", func(r chi.Router) {
			r.Use(middleware.RequireAdmin())

			r.Get("/", adminHandler.ListPosts)
			r.With(deps.RateLimiter.WriteMiddleware()).Post("/", adminHandler.CreatePost)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", adminHandler.GetPost)
				r.Get("/audit", adminHandler.ListAudit)

				r.Group(func(r chi.Router) {
					r.Use(deps.RateLimiter.WriteMiddleware())
					r.Patch("/", adminHandler.UpdatePost)
					r.Post("/publish", adminHandler.PublishPost)
					r.Post("/unpublish", adminHandler.UnpublishPost)
				})
			})
		})
	})

	return r
}

// newCORS は許可オリジンをカンマ区切りで受け取り、CORSハンドラーを生成する。
func newCORS(allowedOrigin string) *cors.Cors {
	var origins []string
	for _, o := range strings.Split(allowedOrigin, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return cors.New(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPatch, http.MethodOptions},
		AllowedHeaders: []string{
			"Content-Type", "Accept",
			middleware.HeaderTenantID, middleware.HeaderActorID, middleware.HeaderActorRole,
			middleware.HeaderRequestID,
		},
		ExposedHeaders: []string{middleware.HeaderRequestID, "Retry-After"},
		MaxAge: 300,
	})
}

// healthHandler はDBへの疎通を確認する。checkerがnilの場合は常に200を返す。
func healthHandler(checker HealthChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if checker != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			if err := checker.PingContext(ctx); err != nil {
				slog.ErrorContext(ctx, "health check failed", slog.String("error", err.Error()))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unavailable"})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}
}

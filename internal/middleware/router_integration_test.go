package middleware

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
)

// newIntegrationRouter はテナント -> レート制限 -> 管理者 のチェーンを組んだルーターを返す。
func newIntegrationRouter(t *testing.T) http.Handler {
	t.Helper()

	rl := NewRateLimiter(NewRateLimiterConfig(100, 1))
	t.Cleanup(rl.Stop)

	r := chi.NewRouter()
	r.Use(NewRecoveryMiddleware(slog.New(slog.NewJSONHandler(io.Discard, nil))))
	r.Use(NewSecurityHeadersMiddleware())

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	r.Group(func(r chi.Router) {
		r.Use(NewTenantMiddleware())
		r.Use(rl.GeneralMiddleware())

		r.Get("/api/posts", func(w http.ResponseWriter, r *http.Request) {
			p, _ := PrincipalFromContext(r.Context())
			json.NewEncoder(w).Encode(map[string]string{"tenant_id": p.TenantID})
		})

		r.Route("/api/admin", func(r chi.Router) {
			r.Use(RequireAdmin())
			r.Get("/posts", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusOK)
			})
			r.With(rl.WriteMiddleware()).Post("/posts", func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusCreated)
			})
			r.Get("/panic", func(w http.ResponseWriter, r *http.Request) {
				panic("boom")
			})
		})
	})

	return r
}

func serveRequest(h http.Handler, req *http.Request) *http.Response {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	return w.Result()
}

// TestRouterIntegration_PublicEndpointNoTenant はヘルスチェックが認証なしで通ることを検証する。
func TestRouterIntegration_PublicEndpointNoTenant(t *testing.T) {
	r := newIntegrationRouter(t)

	resp := serveRequest(r, httptest.NewRequest(http.MethodGet, "/health", nil))
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}
	if resp.Header.Get("X-Content-Type-Options") != "nosniff" {
		t.Error("security headers should be applied")
	}
}

// TestRouterIntegration_TenantChain はテナント -> 管理者チェックのチェーンを検証する。
func TestRouterIntegration_TenantChain(t *testing.T) {
	r := newIntegrationRouter(t)

	tests := []struct {
		name       string
		method     string
		path       string
		tenant     string
		actor      string
		role       string
		wantStatus int
	}{
		{name: "読者がフィードを取得", method: http.MethodGet, path: "/api/posts", tenant: "alpha", actor: "u-1", wantStatus: http.StatusOK},
		{name: "テナントなしで401", method: http.MethodGet, path: "/api/posts", actor: "u-1", wantStatus: http.StatusUnauthorized},
		{name: "読者が管理APIで403", method: http.MethodGet, path: "/api/admin/posts", tenant: "alpha", actor: "u-1", role: "member", wantStatus: http.StatusForbidden},
		{name: "管理者が管理APIを取得", method: http.MethodGet, path: "/api/admin/posts", tenant: "alpha", actor: "a-1", role: "admin", wantStatus: http.StatusOK},
		{name: "認証なしの管理APIは401", method: http.MethodPost, path: "/api/admin/posts", wantStatus: http.StatusUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := newGatewayRequest(tt.method, tt.tenant, tt.actor, tt.role)
			req.URL.Path = tt.path

			resp := serveRequest(r, req)
			if resp.StatusCode != tt.wantStatus {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.wantStatus)
			}
		})
	}
}

// TestRouterIntegration_PrincipalReachesHandler はヘッダーのテナントがハンドラーまで届くことを検証する。
func TestRouterIntegration_PrincipalReachesHandler(t *testing.T) {
	r := newIntegrationRouter(t)

	req := newGatewayRequest(http.MethodGet, "beta", "u-2", "")
	req.URL.Path = "/api/posts"
	resp := serveRequest(r, req)

	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["tenant_id"] != "beta" {
		t.Errorf("tenant_id = %q, want %q", body["tenant_id"], "beta")
	}
}

// TestRouterIntegration_WriteLimitOnlyOnWrites は書き込みのレート制限が書き込みルートにだけ掛かることを検証する。
func TestRouterIntegration_WriteLimitOnlyOnWrites(t *testing.T) {
	r := newIntegrationRouter(t)

	post := func() int {
		req := newGatewayRequest(http.MethodPost, "alpha", "a-1", "admin")
		req.URL.Path = "/api/admin/posts"
		return serveRequest(r, req).StatusCode
	}

	if got := post(); got != http.StatusCreated {
		t.Fatalf("first write status = %d, want %d", got, http.StatusCreated)
	}
	if got := post(); got != http.StatusTooManyRequests {
		t.Errorf("second write status = %d, want %d", got, http.StatusTooManyRequests)
	}

	// 読み取りは書き込み制限の影響を受けない
	req := newGatewayRequest(http.MethodGet, "alpha", "a-1", "admin")
	req.URL.Path = "/api/admin/posts"
	if got := serveRequest(r, req).StatusCode; got != http.StatusOK {
		t.Errorf("read status = %d, want %d", got, http.StatusOK)
	}
}

// TestRouterIntegration_PanicRecovered はハンドラー内のpanicが500に変換されることを検証する。
func TestRouterIntegration_PanicRecovered(t *testing.T) {
	r := newIntegrationRouter(t)

	req := newGatewayRequest(http.MethodGet, "alpha", "a-1", "admin")
	req.URL.Path = "/api/admin/panic"
	resp := serveRequest(r, req)

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", resp.StatusCode, http.StatusInternalServerError)
	}

	var body ErrorResponseBody
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode body: %v", err)
	}
	if body.Code != "INTERNAL_ERROR" {
		t.Errorf("code = %q, want %q", body.Code, "INTERNAL_ERROR")
	}
}

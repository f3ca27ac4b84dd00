// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hitoshi/changelog/internal/model"
)

// 上流の認証ゲートウェイが付与するヘッダー。値はそのまま信頼する。
const (
	HeaderTenantID  = "X-Tenant-ID"
	HeaderActorID   = "X-Actor-ID"
	HeaderActorRole = "X-Actor-Role"
)

// RoleAdmin は管理APIの利用に必要なロール。
const RoleAdmin = "admin"

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// principalContextKey はリクエストコンテキストに呼び出し元を格納するためのキー。
var principalContextKey = contextKey("principal")

// Principal はリクエストの呼び出し元を表す。
type Principal struct {
	TenantID string
	ActorID  string
	Role     string
}

// Scope は呼び出し元のテナントスコープを返す。
func (p Principal) Scope() model.TenantScope {
	return model.TenantScope{TenantID: p.TenantID}
}

// IsAdmin は管理者ロールかどうかを返す。
func (p Principal) IsAdmin() bool {
	return p.Role == RoleAdmin
}

// NewTenantMiddleware はゲートウェイのヘッダーからテナントとアクターを読み取り、
// リクエストコンテキストに注入するミドルウェアを返す。
// テナントまたはアクターが無いリクエストには401 Unauthorizedを返す。
func NewTenantMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p := Principal{
				TenantID: strings.TrimSpace(r.Header.Get(HeaderTenantID)),
				ActorID:  strings.TrimSpace(r.Header.Get(HeaderActorID)),
				Role:     strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderActorRole))),
			}
			if p.TenantID == "" || p.ActorID == "" {
				WriteAPIError(w, model.NewUnauthorizedAPIError())
				return
			}

			next.ServeHTTP(w, r.WithContext(ContextWithPrincipal(r.Context(), p)))
		})
	}
}

// RequireAdmin は管理者ロール以外のリクエストに403 Forbiddenを返すミドルウェアを返す。
// NewTenantMiddlewareの後に配置する。
func RequireAdmin() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			p, err := PrincipalFromContext(r.Context())
			if err != nil || !p.IsAdmin() {
				WriteAPIError(w, model.NewForbiddenAPIError())
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// PrincipalFromContext はリクエストコンテキストから呼び出し元を取得する。
// テナントミドルウェアを通過したリクエストでのみ有効。
func PrincipalFromContext(ctx context.Context) (Principal, error) {
	p, ok := ctx.Value(principalContextKey).(Principal)
	if !ok || p.TenantID == "" {
		return Principal{}, fmt.Errorf("principal not found in context")
	}
	return p, nil
}

// ContextWithPrincipal はコンテキストに呼び出し元を注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}

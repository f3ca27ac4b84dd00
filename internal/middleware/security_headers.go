package middleware

import "net/http"

// NewSecurityHeadersMiddleware はJSON APIのレスポンスヘッダーを付与するミドルウェアを返す。
//
// レスポンスはテナントと呼び出し元ごとに異なるため、共有キャッシュに保存させず、
// キャッシュする場合もゲートウェイヘッダー単位で区別させる。
func NewSecurityHeadersMiddleware() func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			h := w.Header()
			h.Set("X-Content-Type-Options", "nosniff")
			h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
			h.Set("Referrer-Policy", "no-referrer")
			h.Set("Cache-Control", "no-store")
			h.Add("Vary", HeaderTenantID)
			h.Add("Vary", HeaderActorID)
			next.ServeHTTP(w, r)
		})
	}
}

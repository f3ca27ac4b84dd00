package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/hitoshi/changelog/internal/middleware"
	"github.com/hitoshi/changelog/internal/model"
)

// postResponse は投稿のAPIレスポンス。
type postResponse struct {
	ID           string     `json:"id"`
	TenantID     *string    `json:"tenant_id"`
	Visibility   string     `json:"visibility"`
	Status       string     `json:"status"`
	Category     string     `json:"category"`
	Title        string     `json:"title"`
	Slug         string     `json:"slug"`
	BodyMarkdown string     `json:"body_markdown"`
	PublishedAt  *time.Time `json:"published_at"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
	Revision     int        `json:"revision"`
}

// toPostResponse はmodel.PostからAPIレスポンスに変換する。
func toPostResponse(p *model.Post) postResponse {
	return postResponse{
		ID:           p.ID,
		TenantID:     p.TenantID,
		Visibility:   string(p.Visibility),
		Status:       string(p.Status),
		Category:     string(p.Category),
		Title:        p.Title,
		Slug:         p.Slug,
		BodyMarkdown: p.BodyMarkdown,
		PublishedAt:  p.PublishedAt,
		CreatedAt:    p.CreatedAt,
		UpdatedAt:    p.UpdatedAt,
		Revision:     p.Revision,
	}
}

func toPostResponses(posts []model.Post) []postResponse {
	out := make([]postResponse, len(posts))
	for i := range posts {
		out[i] = toPostResponse(&posts[i])
	}
	return out
}

// writeJSON はJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(body)
}

// handleStoreError はストアから返されたエラーを適切なHTTPステータスコードに変換する。
func handleStoreError(w http.ResponseWriter, r *http.Request, err error) {
	var validationErr *model.ValidationError
	var conflictErr *model.ConflictError

	switch {
	case errors.As(err, &validationErr):
		middleware.WriteAPIError(w, model.NewValidationAPIError(validationErr))
	case errors.As(err, &conflictErr):
		middleware.WriteAPIError(w, model.NewConflictAPIError(conflictErr))
	case errors.Is(err, model.ErrPostNotFound):
		middleware.WriteAPIError(w, model.NewPostNotFoundError())
	default:
		// 詳細はログのみに記録する
		slog.ErrorContext(r.Context(), "internal server error",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		middleware.WriteInternalServerError(w)
	}
}

// maxRequestBodyBytes は管理APIのリクエストボディ上限。
// 本文の最大文字数を全文字\uXXXXエスケープで送っても収まる大きさにしている。
const maxRequestBodyBytes = 1 << 20

// decodeBody はサイズ上限付きでJSONボディを読み込む。失敗時は400を書き込んでfalseを返す。
// allowEmptyがtrueなら空ボディをゼロ値として受け付ける。
func decodeBody(w http.ResponseWriter, r *http.Request, dst any, allowEmpty bool) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodyBytes)
	err := json.NewDecoder(r.Body).Decode(dst)
	if err == nil || (allowEmpty && errors.Is(err, io.EOF)) {
		return true
	}
	writeInvalidBody(w)
	return false
}

// writeInvalidBody はリクエストボディの解析失敗を返す。
func writeInvalidBody(w http.ResponseWriter) {
	middleware.WriteAPIError(w, model.NewInvalidBodyAPIError())
}

// principalOrUnauthorized はコンテキストから呼び出し元を取り出す。
// 見つからない場合は401を書き込んでfalseを返す。
func principalOrUnauthorized(w http.ResponseWriter, r *http.Request) (middleware.Principal, bool) {
	p, err := middleware.PrincipalFromContext(r.Context())
	if err != nil {
		middleware.WriteAPIError(w, model.NewUnauthorizedAPIError())
		return middleware.Principal{}, false
	}
	return p, true
}

// queryInt はクエリパラメータを整数として読む。未指定の場合は0を返す。
func queryInt(r *http.Request, name string) (int, error) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, model.NewValidationError(name, "must be an integer")
	}
	return n, nil
}

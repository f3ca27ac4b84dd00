package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/changelog/internal/content"
	"github.com/hitoshi/changelog/internal/model"
)

// AdminStore は管理者向けハンドラーが必要とするストアのインターフェース。
type AdminStore interface {
	Create(ctx context.Context, actorID string, scope model.TenantScope, in content.CreateInput) (*model.Post, error)
	Update(ctx context.Context, actorID string, scope model.TenantScope, id string, in content.UpdateInput) (*model.Post, error)
	Publish(ctx context.Context, actorID string, scope model.TenantScope, id string, expectedRevision *int) (*model.Post, error)
	Unpublish(ctx context.Context, actorID string, scope model.TenantScope, id string, expectedRevision *int) (*model.Post, error)
	GetForAdmin(ctx context.Context, scope model.TenantScope, id string) (*model.Post, error)
	ListAdmin(ctx context.Context, scope model.TenantScope, q content.AdminQuery) (*content.AdminPage, error)
	ListAudit(ctx context.Context, scope model.TenantScope, postID string, limit int) ([]model.AuditRecord, error)
}

// AdminHandler は投稿管理のHTTPハンドラー。
type AdminHandler struct {
	store        AdminStore
	writeTimeout time.Duration
}

// NewAdminHandler はAdminHandlerを生成する。
// writeTimeoutが正の場合、書き込み（作成・更新・公開・非公開）のトランザクション全体にその期限を設ける。
func NewAdminHandler(store AdminStore, writeTimeout time.Duration) *AdminHandler {
	return &AdminHandler{store: store, writeTimeout: writeTimeout}
}

// writeContext は書き込み期限を付けたコンテキストを返す。
func (h *AdminHandler) writeContext(r *http.Request) (context.Context, context.CancelFunc) {
	if h.writeTimeout <= 0 {
		return r.Context(), func() {}
	}
	return context.WithTimeout(r.Context(), h.writeTimeout)
}

// createPostRequest は投稿作成リクエストのボディ。
// tenant_idは未指定とnullを区別する。
type createPostRequest struct {
	Title        string                 `json:"title"`
	Slug         *string                `json:"slug"`
	Category     model.Category         `json:"category"`
	BodyMarkdown string                 `json:"body_markdown"`
	TenantID     model.TenantAssignment `json:"tenant_id"`
}

// updatePostRequest は投稿更新リクエストのボディ。省略したフィールドは変更しない。
type updatePostRequest struct {
	Title            *string         `json:"title"`
	Slug             *string         `json:"slug"`
	Category         *model.Category `json:"category"`
	BodyMarkdown     *string         `json:"body_markdown"`
	ExpectedRevision *int            `json:"expected_revision"`
}

// transitionRequest は公開・非公開リクエストのボディ。ボディ自体を省略してもよい。
type transitionRequest struct {
	ExpectedRevision *int `json:"expected_revision"`
}

// adminListResponse は管理画面一覧のAPIレスポンス。
type adminListResponse struct {
	Posts   []postResponse `json:"posts"`
	HasMore bool           `json:"has_more"`
}

// auditRecordResponse は監査レコードのAPIレスポンス。
type auditRecordResponse struct {
	ID       string         `json:"id"`
	TenantID *string        `json:"tenant_id"`
	ActorID  string         `json:"actor_id"`
	Action   string         `json:"action"`
	PostID   string         `json:"post_id"`
	At       time.Time      `json:"at"`
	Metadata map[string]any `json:"metadata"`
}

type auditListResponse struct {
	Records []auditRecordResponse `json:"records"`
}

// ListPosts は下書きを含む投稿一覧を返す。
// GET /api/admin/posts?status=&tenant=&q=&limit=&offset=
func (h *AdminHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}

	q, err := parseAdminQuery(r)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	page, err := h.store.ListAdmin(r.Context(), p.Scope(), q)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, adminListResponse{
		Posts:   toPostResponses(page.Posts),
		HasMore: page.HasMore,
	})
}

// CreatePost は下書きを作成する。
// POST /api/admin/posts
func (h *AdminHandler) CreatePost(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req createPostRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	ctx, cancel := h.writeContext(r)
	defer cancel()

	post, err := h.store.Create(ctx, p.ActorID, p.Scope(), content.CreateInput{
		Title:        req.Title,
		Slug:         req.Slug,
		Category:     req.Category,
		BodyMarkdown: req.BodyMarkdown,
		TenantID:     req.TenantID,
	})
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toPostResponse(post))
}

// GetPost は状態を問わず投稿を返す。
// GET /api/admin/posts/{id}
func (h *AdminHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}

	post, err := h.store.GetForAdmin(r.Context(), p.Scope(), chi.URLParam(r, "id"))
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toPostResponse(post))
}

// UpdatePost は指定されたフィールドを更新する。
// PATCH /api/admin/posts/{id}
func (h *AdminHandler) UpdatePost(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req updatePostRequest
	if !decodeBody(w, r, &req, false) {
		return
	}

	ctx, cancel := h.writeContext(r)
	defer cancel()

	post, err := h.store.Update(ctx, p.ActorID, p.Scope(), chi.URLParam(r, "id"), content.UpdateInput{
		Title:            req.Title,
		Slug:             req.Slug,
		Category:         req.Category,
		BodyMarkdown:     req.BodyMarkdown,
		ExpectedRevision: req.ExpectedRevision,
	})
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toPostResponse(post))
}

// PublishPost は下書きを公開する。
// POST /api/admin/posts/{id}/publish
func (h *AdminHandler) PublishPost(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.store.Publish)
}

// UnpublishPost は公開中の投稿を下書きに戻す。
// POST /api/admin/posts/{id}/unpublish
func (h *AdminHandler) UnpublishPost(w http.ResponseWriter, r *http.Request) {
	h.transition(w, r, h.store.Unpublish)
}

type transitionFunc func(ctx context.Context, actorID string, scope model.TenantScope, id string, expectedRevision *int) (*model.Post, error)

func (h *AdminHandler) transition(w http.ResponseWriter, r *http.Request, fn transitionFunc) {
	p, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}

	var req transitionRequest
	if !decodeBody(w, r, &req, true) {
		return
	}

	ctx, cancel := h.writeContext(r)
	defer cancel()

	post, err := fn(ctx, p.ActorID, p.Scope(), chi.URLParam(r, "id"), req.ExpectedRevision)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toPostResponse(post))
}

// ListAudit は投稿の監査レコードを新しい順に返す。
// GET /api/admin/posts/{id}/audit?limit=
func (h *AdminHandler) ListAudit(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	records, err := h.store.ListAudit(r.Context(), p.Scope(), chi.URLParam(r, "id"), limit)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	resp := auditListResponse{Records: make([]auditRecordResponse, len(records))}
	for i, rec := range records {
		resp.Records[i] = auditRecordResponse{
			ID:       rec.ID,
			TenantID: rec.TenantID,
			ActorID:  rec.ActorID,
			Action:   string(rec.Action),
			PostID:   rec.PostID,
			At:       rec.At,
			Metadata: rec.Metadata,
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

// parseAdminQuery はクエリパラメータから管理画面一覧の検索条件を組み立てる。
// 値の妥当性はストアが検証する。
func parseAdminQuery(r *http.Request) (content.AdminQuery, error) {
	values := r.URL.Query()

	q := content.AdminQuery{
		Filter: model.AdminFilter{
			Tenant: model.AdminTenantFilter(values.Get("tenant")),
			Query:  values.Get("q"),
		},
	}
	if s := values.Get("status"); s != "" {
		status := model.PostStatus(s)
		q.Filter.Status = &status
	}

	var err error
	if q.Limit, err = queryInt(r, "limit"); err != nil {
		return q, err
	}
	if q.Offset, err = queryInt(r, "offset"); err != nil {
		return q, err
	}
	return q, nil
}

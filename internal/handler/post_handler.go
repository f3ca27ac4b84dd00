package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/changelog/internal/model"
	"github.com/hitoshi/changelog/internal/pagination"
)

// ReaderStore は読者向けハンドラーが必要とするストアのインターフェース。
type ReaderStore interface {
	ListPublished(ctx context.Context, scope model.TenantScope, cursor string, limit int) (*pagination.Page, error)
	FindPublishedBySlug(ctx context.Context, scope model.TenantScope, slug string) (*model.Post, error)
	HasUnread(ctx context.Context, scope model.TenantScope, userID string) (bool, error)
	MarkSeen(ctx context.Context, scope model.TenantScope, userID string) (*model.ReadState, error)
}

// PostHandler は公開フィードと未読バッジのHTTPハンドラー。
type PostHandler struct {
	store ReaderStore
}

// NewPostHandler はPostHandlerを生成する。
func NewPostHandler(store ReaderStore) *PostHandler {
	return &PostHandler{store: store}
}

// feedResponse はフィード1ページ分のAPIレスポンス。
type feedResponse struct {
	Posts      []postResponse `json:"posts"`
	NextCursor string         `json:"next_cursor,omitempty"`
	HasMore    bool           `json:"has_more"`
}

// unreadResponse は未読判定のAPIレスポンス。
type unreadResponse struct {
	HasUnread bool `json:"has_unread"`
}

// readStateResponse は既読ウォーターマークのAPIレスポンス。
type readStateResponse struct {
	TenantID   string    `json:"tenant_id"`
	UserID     string    `json:"user_id"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// ListPosts は公開済み投稿のフィードを返す。
// GET /api/posts?cursor=...&limit=...
func (h *PostHandler) ListPosts(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}

	limit, err := queryInt(r, "limit")
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	page, err := h.store.ListPublished(r.Context(), p.Scope(), r.URL.Query().Get("cursor"), limit)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, feedResponse{
		Posts:      toPostResponses(page.Posts),
		NextCursor: page.NextCursor,
		HasMore:    page.HasMore,
	})
}

// GetPost はスラッグで公開済み投稿を返す。
// GET /api/posts/{slug}
func (h *PostHandler) GetPost(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}

	post, err := h.store.FindPublishedBySlug(r.Context(), p.Scope(), chi.URLParam(r, "slug"))
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, toPostResponse(post))
}

// GetUnread は呼び出し元に未読の投稿があるかを返す。
// GET /api/unread
func (h *PostHandler) GetUnread(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}

	hasUnread, err := h.store.HasUnread(r.Context(), p.Scope(), p.ActorID)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, unreadResponse{HasUnread: hasUnread})
}

// MarkSeen は呼び出し元の既読ウォーターマークを現在時刻に進める。
// POST /api/unread/seen
func (h *PostHandler) MarkSeen(w http.ResponseWriter, r *http.Request) {
	p, ok := principalOrUnauthorized(w, r)
	if !ok {
		return
	}

	state, err := h.store.MarkSeen(r.Context(), p.Scope(), p.ActorID)
	if err != nil {
		handleStoreError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, readStateResponse{
		TenantID:   state.TenantID,
		UserID:     state.UserID,
		LastSeenAt: state.LastSeenAt,
	})
}

package content

import (
	"context"
	"fmt"

	"github.com/hitoshi/changelog/internal/model"
	"github.com/hitoshi/changelog/internal/pagination"
)

// GetForAdmin はスコープから見える投稿を状態を問わず取得する。
// 更新前の再取得（リビジョンの確認）に使う。
func (s *Store) GetForAdmin(ctx context.Context, scope model.TenantScope, id string) (*model.Post, error) {
	post, err := s.posts.FindVisibleByID(ctx, scope, id)
	if err != nil {
		return nil, fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}
	if post == nil {
		return nil, model.ErrPostNotFound
	}
	return post, nil
}

// FindPublishedBySlug はスコープから見える公開済み投稿をスラッグで取得する。
func (s *Store) FindPublishedBySlug(ctx context.Context, scope model.TenantScope, slug string) (*model.Post, error) {
	post, err := s.posts.FindPublishedBySlug(ctx, scope, slug)
	if err != nil {
		return nil, fmt.Errorf("投稿の取得に失敗しました: %w", err)
	}
	if post == nil {
		return nil, model.ErrPostNotFound
	}
	return post, nil
}

// ListPublished は公開済み投稿のフィードを1ページ返す。cursorが空なら先頭から取得する。
func (s *Store) ListPublished(ctx context.Context, scope model.TenantScope, cursor string, limit int) (*pagination.Page, error) {
	page, err := s.paginator.NextPage(ctx, scope, cursor, limit)
	if err != nil {
		if model.IsValidationError(err) {
			return nil, err
		}
		return nil, fmt.Errorf("フィードの取得に失敗しました: %w", err)
	}
	return page, nil
}

// ListAdmin は下書きを含む投稿一覧を返す。公開済みを新しい順に並べ、その後に下書きを最終更新順に並べる。
func (s *Store) ListAdmin(ctx context.Context, scope model.TenantScope, q AdminQuery) (*AdminPage, error) {
	q, err := validateAdminQuery(q)
	if err != nil {
		return nil, err
	}
	limit := pagination.ClampLimit(q.Limit)

	posts, err := s.posts.ListAdmin(ctx, scope, q.Filter, limit+1, q.Offset)
	if err != nil {
		return nil, fmt.Errorf("投稿一覧の取得に失敗しました: %w", err)
	}

	page := &AdminPage{Posts: posts, HasMore: len(posts) > limit}
	if page.HasMore {
		page.Posts = posts[:limit]
	}
	if page.Posts == nil {
		page.Posts = []model.Post{}
	}
	return page, nil
}

// ListAudit は投稿の監査レコードを新しい順に返す。投稿が見えない場合はErrPostNotFoundを返す。
func (s *Store) ListAudit(ctx context.Context, scope model.TenantScope, postID string, limit int) ([]model.AuditRecord, error) {
	if _, err := s.GetForAdmin(ctx, scope, postID); err != nil {
		return nil, err
	}

	records, err := s.audits.ListByPost(ctx, scope, postID, pagination.ClampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("監査ログの取得に失敗しました: %w", err)
	}
	return records, nil
}

// HasUnread はユーザーの既読ウォーターマークより後に公開された投稿があるかを返す。
func (s *Store) HasUnread(ctx context.Context, scope model.TenantScope, userID string) (bool, error) {
	return s.tracker.HasUnread(ctx, scope, userID)
}

// MarkSeen はユーザーの既読ウォーターマークをサーバーの現在時刻に進める。
func (s *Store) MarkSeen(ctx context.Context, scope model.TenantScope, userID string) (*model.ReadState, error) {
	return s.tracker.MarkSeen(ctx, scope, userID)
}

package pagination

import (
	"context"

	"github.com/hitoshi/changelog/internal/model"
)

// Source は公開済み投稿をキーセット条件付きで取得する。
// afterが指定された場合は (published_at, id) < (after.PublishedAt, after.ID) の行のみを返す。
// 可視性とstatus='published'の絞り込みはWHERE句で行い、件数を正確に保つこと。
type Source interface {
	ListPublished(ctx context.Context, scope model.TenantScope, after *model.Cursor, limit int) ([]model.Post, error)
}

// Page はフィード1ページ分の結果。
type Page struct {
	Posts      []model.Post
	NextCursor string
	HasMore    bool
}

// Paginator はフィードのページ送りを行う。
type Paginator struct {
	source Source
}

// NewPaginator はPaginatorを生成する。
func NewPaginator(source Source) *Paginator {
	return &Paginator{source: source}
}

// NextPage はtokenの次のページを返す。tokenが空なら先頭から取得する。
// limit+1件を取得して続きの有無を判定し、続きがある場合のみ最終行からカーソルを発行する。
func (p *Paginator) NextPage(ctx context.Context, scope model.TenantScope, token string, limit int) (*Page, error) {
	var after *model.Cursor
	if token != "" {
		c, err := DecodeCursor(token)
		if err != nil {
			return nil, err
		}
		after = &c
	}

	limit = ClampLimit(limit)

	posts, err := p.source.ListPublished(ctx, scope, after, limit+1)
	if err != nil {
		return nil, err
	}

	hasMore := len(posts) > limit
	if hasMore {
		posts = posts[:limit] // 判定用の余分な1件を除外
	}

	page := &Page{Posts: posts, HasMore: hasMore}
	if hasMore && len(posts) > 0 {
		if c, ok := CursorAfter(posts[len(posts)-1]); ok {
			page.NextCursor = EncodeCursor(c)
		}
	}
	if page.Posts == nil {
		page.Posts = []model.Post{}
	}
	return page, nil
}

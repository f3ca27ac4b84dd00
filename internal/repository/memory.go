package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/hitoshi/changelog/internal/audit"
	"github.com/hitoshi/changelog/internal/model"
)

// MemoryStore はテスト・ローカル実行用のインメモリ実装。
// PostRepository、ReadStateRepository、AuditRepositoryを1つのストアで提供する。
//
// 書き込みトランザクションはwriterロックで直列化する。行ロックよりも粗いが、
// 同一投稿への更新が直列に実行されるという性質は保たれる。
// トランザクション内の変更はステージングされ、コミット時にまとめて反映される。
type MemoryStore struct {
	writer sync.Mutex

	mu         sync.RWMutex
	posts      map[string]model.Post
	audits     []model.AuditRecord
	readStates map[readStateKey]model.ReadState
}

type readStateKey struct {
	tenantID string
	userID   string
}

// NewMemoryStore はMemoryStoreを生成する。
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		posts:      make(map[string]model.Post),
		readStates: make(map[readStateKey]model.ReadState),
	}
}

// RunInTx はfnをトランザクション内で実行する。fnが失敗した場合はステージングした変更を破棄する。
func (s *MemoryStore) RunInTx(ctx context.Context, fn func(tx PostTx) error) error {
	s.writer.Lock()
	defer s.writer.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memoryTx{store: s, staged: make(map[string]model.Post)}
	if err := fn(tx); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for id, p := range tx.staged {
		s.posts[id] = p
	}
	s.audits = append(s.audits, tx.audits...)
	return nil
}

// FindVisibleByID はスコープから見える投稿を状態を問わず取得する。
func (s *MemoryStore) FindVisibleByID(_ context.Context, scope model.TenantScope, id string) (*model.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[id]
	if !ok || !p.VisibleTo(scope) {
		return nil, nil
	}
	out := p.Clone()
	return &out, nil
}

// FindPublishedBySlug はスコープから見える公開済み投稿をスラッグで取得する。
func (s *MemoryStore) FindPublishedBySlug(_ context.Context, scope model.TenantScope, slug string) (*model.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.posts {
		if p.Slug == slug && p.IsPublished() && p.VisibleTo(scope) {
			out := p.Clone()
			return &out, nil
		}
	}
	return nil, nil
}

// ListPublished は公開済み投稿を published_at DESC, id DESC のキーセット条件で取得する。
func (s *MemoryStore) ListPublished(_ context.Context, scope model.TenantScope, after *model.Cursor, limit int) ([]model.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidates []model.Post
	for _, p := range s.posts {
		if !p.IsPublished() || !p.VisibleTo(scope) || p.PublishedAt == nil {
			continue
		}
		if after != nil && !beforeCursor(p, *after) {
			continue
		}
		candidates = append(candidates, p.Clone())
	}

	sort.Slice(candidates, func(i, j int) bool {
		return feedLess(candidates[i], candidates[j])
	})
	return truncatePosts(candidates, limit, 0), nil
}

// ListAdmin は下書きを含む投稿を公開済み優先で取得する。
func (s *MemoryStore) ListAdmin(_ context.Context, scope model.TenantScope, filter model.AdminFilter, limit, offset int) ([]model.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	query := strings.ToLower(strings.TrimSpace(filter.Query))

	var candidates []model.Post
	for _, p := range s.posts {
		if !p.VisibleTo(scope) {
			continue
		}
		if filter.Status != nil && p.Status != *filter.Status {
			continue
		}
		switch filter.Tenant {
		case model.AdminTenantOwn:
			if p.IsGlobal() {
				continue
			}
		case model.AdminTenantGlobal:
			if !p.IsGlobal() {
				continue
			}
		}
		if query != "" &&
			!strings.Contains(strings.ToLower(p.Title), query) &&
			!strings.Contains(strings.ToLower(p.Slug), query) {
			continue
		}
		candidates = append(candidates, p.Clone())
	}

	sort.Slice(candidates, func(i, j int) bool {
		return adminLess(candidates[i], candidates[j])
	})
	return truncatePosts(candidates, limit, offset), nil
}

// LatestPublishedAt はスコープから見える公開済み投稿の最新published_atを返す。
func (s *MemoryStore) LatestPublishedAt(_ context.Context, scope model.TenantScope) (*time.Time, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *time.Time
	for _, p := range s.posts {
		if !p.IsPublished() || !p.VisibleTo(scope) || p.PublishedAt == nil {
			continue
		}
		if latest == nil || p.PublishedAt.After(*latest) {
			t := *p.PublishedAt
			latest = &t
		}
	}
	return latest, nil
}

// Find は既読状態を取得する。
func (s *MemoryStore) Find(_ context.Context, tenantID, userID string) (*model.ReadState, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	state, ok := s.readStates[readStateKey{tenantID: tenantID, userID: userID}]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

// Upsert はlast_seen_atを上書きする。
func (s *MemoryStore) Upsert(_ context.Context, tenantID, userID string, seenAt time.Time) (*model.ReadState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	state := model.ReadState{TenantID: tenantID, UserID: userID, LastSeenAt: seenAt}
	s.readStates[readStateKey{tenantID: tenantID, userID: userID}] = state
	return &state, nil
}

// ListByPost は投稿の監査レコードを新しい順に取得する。
func (s *MemoryStore) ListByPost(_ context.Context, scope model.TenantScope, postID string, limit int) ([]model.AuditRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	records := []model.AuditRecord{}
	for i := len(s.audits) - 1; i >= 0 && len(records) < limit; i-- {
		rec := s.audits[i]
		if rec.PostID != postID {
			continue
		}
		if rec.TenantID != nil && *rec.TenantID != scope.TenantID {
			continue
		}
		records = append(records, rec)
	}
	return records, nil
}

// memoryTx はMemoryStoreのトランザクション。writerロック保持中のみ使用される。
type memoryTx struct {
	store  *MemoryStore
	staged map[string]model.Post
	audits []model.AuditRecord
}

func (t *memoryTx) current(id string) (model.Post, bool) {
	if p, ok := t.staged[id]; ok {
		return p, true
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	p, ok := t.store.posts[id]
	return p, ok
}

// LockVisible はスコープから見える投稿を取得する。writerロックが行ロックの代わりになる。
func (t *memoryTx) LockVisible(_ context.Context, scope model.TenantScope, id string) (*model.Post, error) {
	p, ok := t.current(id)
	if !ok || !p.VisibleTo(scope) {
		return nil, nil
	}
	out := p.Clone()
	return &out, nil
}

// SlugTaken はスラッグが使用済みかを返す。
func (t *memoryTx) SlugTaken(_ context.Context, slug string) (bool, error) {
	return t.slugOwner(slug) != "", nil
}

// slugOwner はスラッグを使用している投稿のIDを返す。未使用なら空文字列。
func (t *memoryTx) slugOwner(slug string) string {
	for id, p := range t.staged {
		if p.Slug == slug {
			return id
		}
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	for id, p := range t.store.posts {
		if _, overridden := t.staged[id]; overridden {
			continue
		}
		if p.Slug == slug {
			return id
		}
	}
	return ""
}

// Insert は投稿をステージングする。
func (t *memoryTx) Insert(_ context.Context, post *model.Post) error {
	if t.slugOwner(post.Slug) != "" {
		return ErrSlugTaken
	}
	t.staged[post.ID] = post.Clone()
	return nil
}

// Update は投稿の更新をステージングする。
func (t *memoryTx) Update(_ context.Context, post *model.Post, previousRevision int) error {
	existing, ok := t.current(post.ID)
	if !ok || existing.Revision != previousRevision {
		return ErrStaleRevision
	}
	if owner := t.slugOwner(post.Slug); owner != "" && owner != post.ID {
		return ErrSlugTaken
	}
	t.staged[post.ID] = post.Clone()
	return nil
}

// AppendAudit は監査レコードをステージングする。
func (t *memoryTx) AppendAudit(_ context.Context, record *model.AuditRecord) error {
	safe, err := audit.IsSafe(record.Metadata)
	if err != nil {
		return err
	}
	if !safe {
		return fmt.Errorf("audit record %s: %w", record.ID, ErrUnsafeAuditMetadata)
	}

	rec := *record
	if rec.TenantID != nil {
		tenant := *rec.TenantID
		rec.TenantID = &tenant
	}
	t.audits = append(t.audits, rec)
	return nil
}

// beforeCursor は (published_at, id) < (cursor.PublishedAt, cursor.ID) を判定する。
func beforeCursor(p model.Post, c model.Cursor) bool {
	if !p.PublishedAt.Equal(c.PublishedAt) {
		return p.PublishedAt.Before(c.PublishedAt)
	}
	return p.ID < c.ID
}

// feedLess は published_at DESC, id DESC の順序。
func feedLess(a, b model.Post) bool {
	if !a.PublishedAt.Equal(*b.PublishedAt) {
		return a.PublishedAt.After(*b.PublishedAt)
	}
	return a.ID > b.ID
}

// adminLess は公開済み優先、published_at DESC NULLS LAST, updated_at DESC, id DESC の順序。
func adminLess(a, b model.Post) bool {
	if a.IsPublished() != b.IsPublished() {
		return a.IsPublished()
	}
	switch {
	case a.PublishedAt != nil && b.PublishedAt != nil:
		if !a.PublishedAt.Equal(*b.PublishedAt) {
			return a.PublishedAt.After(*b.PublishedAt)
		}
	case a.PublishedAt != nil:
		return true
	case b.PublishedAt != nil:
		return false
	}
	if !a.UpdatedAt.Equal(b.UpdatedAt) {
		return a.UpdatedAt.After(b.UpdatedAt)
	}
	return a.ID > b.ID
}

func truncatePosts(posts []model.Post, limit, offset int) []model.Post {
	if offset >= len(posts) {
		return []model.Post{}
	}
	posts = posts[offset:]
	if limit >= 0 && len(posts) > limit {
		posts = posts[:limit]
	}
	return posts
}

// compile-time interface check
var (
	_ PostRepository      = (*MemoryStore)(nil)
	_ ReadStateRepository = (*MemoryStore)(nil)
	_ AuditRepository     = (*MemoryStore)(nil)
	_ PostTx              = (*memoryTx)(nil)
)

// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/hitoshi/changelog/internal/model"
)

// ErrSlugTaken はスラッグの一意制約違反を表す。
// ストアはこれをConflictError("slug already exists")に変換する。
var ErrSlugTaken = errors.New("slug already taken")

// ErrStaleRevision は更新時に行のリビジョンが想定と異なっていたことを表す。
// 行ロック下では発生しないが、ロックを取らない実装に対する最終防衛線になる。
var ErrStaleRevision = errors.New("stale revision")

// ErrUnsafeAuditMetadata は監査メタデータに本文を保持しうるキーが含まれていたことを表す。
// PostgreSQLではaudit_log_metadata_check制約違反がこれに変換される。
var ErrUnsafeAuditMetadata = errors.New("audit metadata contains a forbidden key")

// PostRepository は投稿データの永続化インターフェース。
// 読み取り系はすべて可視性ルール（tenant_id IS NULL OR tenant_id = scope）をWHERE句で適用する。
type PostRepository interface {
	// RunInTx はfnを1つのトランザクション内で実行する。
	// fnがエラーを返した場合はロールバックし、そのエラーをそのまま返す。
	RunInTx(ctx context.Context, fn func(tx PostTx) error) error

	// FindVisibleByID はスコープから見える投稿を状態を問わず取得する。見つからない場合はnilを返す。
	FindVisibleByID(ctx context.Context, scope model.TenantScope, id string) (*model.Post, error)

	// FindPublishedBySlug はスコープから見える公開済み投稿をスラッグで取得する。見つからない場合はnilを返す。
	FindPublishedBySlug(ctx context.Context, scope model.TenantScope, slug string) (*model.Post, error)

	// ListPublished は公開済み投稿を published_at DESC, id DESC で取得する。
	// afterが指定された場合は (published_at, id) < (after.PublishedAt, after.ID) の行のみを返す。
	ListPublished(ctx context.Context, scope model.TenantScope, after *model.Cursor, limit int) ([]model.Post, error)

	// ListAdmin は下書きを含む投稿を公開済み優先で取得する。
	// 公開済みはpublished_at降順、下書きはupdated_at降順、同値はid降順。
	ListAdmin(ctx context.Context, scope model.TenantScope, filter model.AdminFilter, limit, offset int) ([]model.Post, error)

	// LatestPublishedAt はスコープから見える公開済み投稿の最新published_atを返す。
	// 公開済み投稿がない場合はnilを返す。
	LatestPublishedAt(ctx context.Context, scope model.TenantScope) (*time.Time, error)
}

// PostTx はトランザクション内で利用できる投稿操作。
type PostTx interface {
	// LockVisible はスコープから見える投稿を行ロック付きで取得する。見つからない場合はnilを返す。
	LockVisible(ctx context.Context, scope model.TenantScope, id string) (*model.Post, error)

	// SlugTaken はスラッグが使用済みかを返す。
	SlugTaken(ctx context.Context, slug string) (bool, error)

	// Insert は投稿を作成する。スラッグが重複した場合はErrSlugTakenを返す。
	Insert(ctx context.Context, post *model.Post) error

	// Update は投稿を上書きする。行のrevisionがpreviousRevisionと一致しない場合はErrStaleRevision、
	// スラッグが重複した場合はErrSlugTakenを返す。
	Update(ctx context.Context, post *model.Post, previousRevision int) error

	// AppendAudit は監査レコードを追記する。メタデータのどこかに禁止キーがあれば
	// ErrUnsafeAuditMetadataを返す。
	AppendAudit(ctx context.Context, record *model.AuditRecord) error
}

// ReadStateRepository は既読ウォーターマークの永続化インターフェース。
type ReadStateRepository interface {
	// Find は既読状態を取得する。見つからない場合はnilを返す。
	Find(ctx context.Context, tenantID, userID string) (*model.ReadState, error)

	// Upsert はlast_seen_atを冪等にUPSERTする。
	Upsert(ctx context.Context, tenantID, userID string, seenAt time.Time) (*model.ReadState, error)
}

// AuditRepository は監査ログの参照インターフェース。書き込みはPostTx.AppendAuditのみで行う。
type AuditRepository interface {
	// ListByPost は投稿の監査レコードを新しい順に取得する。
	// スコープから見えるテナント（自テナントまたはグローバル）のレコードのみを返す。
	ListByPost(ctx context.Context, scope model.TenantScope, postID string, limit int) ([]model.AuditRecord, error)
}

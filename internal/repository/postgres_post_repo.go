package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/changelog/internal/model"
)

const postColumns = `id, tenant_id, visibility, status, category, title, slug, body_markdown,
       published_at, created_at, updated_at, revision`

// visibleClause はスコープから見える投稿に絞り込むWHERE句。$1にテナントIDを渡す。
const visibleClause = `(tenant_id IS NULL OR tenant_id = $1)`

// adminOrder は管理画面一覧の並び順。公開済みを先頭に、下書きは最終更新順。
const adminOrder = `ORDER BY (status = 'published') DESC, published_at DESC NULLS LAST, updated_at DESC, id DESC`

// queryer は*sql.DBと*sql.Txの共通メソッド。
type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// rowScanner は*sql.Rowと*sql.Rowsの共通メソッド。
type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresPostRepo はPostgreSQLを使用した投稿リポジトリ。
type PostgresPostRepo struct {
	db *sql.DB
}

// NewPostgresPostRepo はPostgresPostRepoを生成する。
func NewPostgresPostRepo(db *sql.DB) *PostgresPostRepo {
	return &PostgresPostRepo{db: db}
}

// RunInTx はfnを1つのトランザクション内で実行する。fnが失敗した場合はロールバックする。
func (r *PostgresPostRepo) RunInTx(ctx context.Context, fn func(tx PostTx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(&postgresPostTx{tx: tx}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// FindVisibleByID はスコープから見える投稿を状態を問わず取得する。見つからない場合はnilを返す。
func (r *PostgresPostRepo) FindVisibleByID(ctx context.Context, scope model.TenantScope, id string) (*model.Post, error) {
	if !isUUID(id) {
		return nil, nil
	}
	return findOnePost(ctx, r.db,
		`SELECT `+postColumns+` FROM posts WHERE `+visibleClause+` AND id = $2`,
		scope.TenantID, id,
	)
}

// FindPublishedBySlug はスコープから見える公開済み投稿をスラッグで取得する。見つからない場合はnilを返す。
func (r *PostgresPostRepo) FindPublishedBySlug(ctx context.Context, scope model.TenantScope, slug string) (*model.Post, error) {
	return findOnePost(ctx, r.db,
		`SELECT `+postColumns+` FROM posts
		 WHERE `+visibleClause+` AND status = 'published' AND slug = $2`,
		scope.TenantID, slug,
	)
}

// ListPublished は公開済み投稿を published_at DESC, id DESC のキーセット条件で取得する。
func (r *PostgresPostRepo) ListPublished(ctx context.Context, scope model.TenantScope, after *model.Cursor, limit int) ([]model.Post, error) {
	if after == nil {
		return queryPosts(ctx, r.db,
			`SELECT `+postColumns+` FROM posts
			 WHERE `+visibleClause+` AND status = 'published'
			 ORDER BY published_at DESC, id DESC
			 LIMIT $2`,
			scope.TenantID, limit,
		)
	}
	return queryPosts(ctx, r.db,
		`SELECT `+postColumns+` FROM posts
		 WHERE `+visibleClause+` AND status = 'published'
		   AND (published_at, id) < ($2::timestamptz, $3::uuid)
		 ORDER BY published_at DESC, id DESC
		 LIMIT $4`,
		scope.TenantID, after.PublishedAt, after.ID, limit,
	)
}

// ListAdmin は下書きを含む投稿を公開済み優先で取得する。
func (r *PostgresPostRepo) ListAdmin(ctx context.Context, scope model.TenantScope, filter model.AdminFilter, limit, offset int) ([]model.Post, error) {
	conds := []string{visibleClause}
	args := []any{scope.TenantID}

	if filter.Status != nil {
		args = append(args, string(*filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	switch filter.Tenant {
	case model.AdminTenantOwn:
		conds = append(conds, "tenant_id = $1")
	case model.AdminTenantGlobal:
		conds = append(conds, "tenant_id IS NULL")
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+escapeLike(q)+"%")
		conds = append(conds, fmt.Sprintf("(title ILIKE $%d OR slug ILIKE $%d)", len(args), len(args)))
	}

	args = append(args, limit, offset)
	query := `SELECT ` + postColumns + ` FROM posts
		 WHERE ` + strings.Join(conds, " AND ") + `
		 ` + adminOrder + fmt.Sprintf(`
		 LIMIT $%d OFFSET $%d`, len(args)-1, len(args))

	return queryPosts(ctx, r.db, query, args...)
}

// LatestPublishedAt はスコープから見える公開済み投稿の最新published_atを返す。
func (r *PostgresPostRepo) LatestPublishedAt(ctx context.Context, scope model.TenantScope) (*time.Time, error) {
	var latest sql.NullTime
	err := r.db.QueryRowContext(ctx,
		`SELECT MAX(published_at) FROM posts WHERE `+visibleClause+` AND status = 'published'`,
		scope.TenantID,
	).Scan(&latest)
	if err != nil {
		return nil, fmt.Errorf("failed to get latest published_at: %w", err)
	}
	if !latest.Valid {
		return nil, nil
	}
	t := latest.Time.UTC()
	return &t, nil
}

// postgresPostTx はトランザクション内の投稿操作。
type postgresPostTx struct {
	tx *sql.Tx
}

// LockVisible はスコープから見える投稿をSELECT ... FOR UPDATEで取得する。
func (t *postgresPostTx) LockVisible(ctx context.Context, scope model.TenantScope, id string) (*model.Post, error) {
	if !isUUID(id) {
		return nil, nil
	}
	return findOnePost(ctx, t.tx,
		`SELECT `+postColumns+` FROM posts WHERE `+visibleClause+` AND id = $2 FOR UPDATE`,
		scope.TenantID, id,
	)
}

// SlugTaken はスラッグが使用済みかを返す。テナントを問わず全体で一意。
func (t *postgresPostTx) SlugTaken(ctx context.Context, slug string) (bool, error) {
	var exists bool
	err := t.tx.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM posts WHERE slug = $1)`,
		slug,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check slug: %w", err)
	}
	return exists, nil
}

// Insert は投稿を作成する。
func (t *postgresPostTx) Insert(ctx context.Context, post *model.Post) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO posts (id, tenant_id, visibility, status, category, title, slug, body_markdown,
		                    published_at, created_at, updated_at, revision)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		post.ID, post.TenantID, string(post.Visibility), string(post.Status), string(post.Category),
		post.Title, post.Slug, post.BodyMarkdown,
		post.PublishedAt, post.CreatedAt, post.UpdatedAt, post.Revision,
	)
	if err != nil {
		if isSlugViolation(err) {
			return ErrSlugTaken
		}
		return fmt.Errorf("failed to insert post: %w", err)
	}
	return nil
}

// Update は投稿を上書きする。revisionをWHERE句に含め、想定外の同時更新を検出する。
func (t *postgresPostTx) Update(ctx context.Context, post *model.Post, previousRevision int) error {
	result, err := t.tx.ExecContext(ctx,
		`UPDATE posts SET
		    tenant_id = $2, visibility = $3, status = $4, category = $5, title = $6, slug = $7,
		    body_markdown = $8, published_at = $9, updated_at = $10, revision = $11
		 WHERE id = $1 AND revision = $12`,
		post.ID, post.TenantID, string(post.Visibility), string(post.Status), string(post.Category),
		post.Title, post.Slug, post.BodyMarkdown,
		post.PublishedAt, post.UpdatedAt, post.Revision, previousRevision,
	)
	if err != nil {
		if isSlugViolation(err) {
			return ErrSlugTaken
		}
		return fmt.Errorf("failed to update post: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return ErrStaleRevision
	}
	return nil
}

// AppendAudit は監査レコードを追記する。メタデータはjsonbとして保存する。
func (t *postgresPostTx) AppendAudit(ctx context.Context, record *model.AuditRecord) error {
	var metadata any
	if len(record.Metadata) > 0 {
		data, err := json.Marshal(record.Metadata)
		if err != nil {
			return fmt.Errorf("failed to marshal audit metadata: %w", err)
		}
		metadata = string(data)
	}

	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO audit_log (id, tenant_id, actor_id, action, post_id, at, metadata)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::jsonb)`,
		record.ID, record.TenantID, record.ActorID, string(record.Action), record.PostID, record.At, metadata,
	)
	if isUnsafeAuditMetadata(err) {
		return fmt.Errorf("audit record %s: %w", record.ID, ErrUnsafeAuditMetadata)
	}
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

func findOnePost(ctx context.Context, q queryer, query string, args ...any) (*model.Post, error) {
	post, err := scanPost(q.QueryRowContext(ctx, query, args...))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find post: %w", err)
	}
	return post, nil
}

func queryPosts(ctx context.Context, q queryer, query string, args ...any) ([]model.Post, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list posts: %w", err)
	}
	defer rows.Close()

	posts := []model.Post{}
	for rows.Next() {
		post, err := scanPost(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan post: %w", err)
		}
		posts = append(posts, *post)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate posts: %w", err)
	}
	return posts, nil
}

func scanPost(row rowScanner) (*model.Post, error) {
	post := &model.Post{}
	var tenantID sql.NullString
	var publishedAt sql.NullTime

	err := row.Scan(
		&post.ID, &tenantID, &post.Visibility, &post.Status, &post.Category,
		&post.Title, &post.Slug, &post.BodyMarkdown,
		&publishedAt, &post.CreatedAt, &post.UpdatedAt, &post.Revision,
	)
	if err != nil {
		return nil, err
	}

	if tenantID.Valid {
		post.TenantID = &tenantID.String
	}
	if publishedAt.Valid {
		t := publishedAt.Time.UTC()
		post.PublishedAt = &t
	}
	post.CreatedAt = post.CreatedAt.UTC()
	post.UpdatedAt = post.UpdatedAt.UTC()
	return post, nil
}

// isUUID はidがuuid列と比較可能な形式かを返す。不正な形式は「見つからない」として扱う。
func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil && len(id) == 36
}

// escapeLike はLIKEパターンのメタ文字をエスケープする。
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// compile-time interface check
var (
	_ PostRepository = (*PostgresPostRepo)(nil)
	_ PostTx         = (*postgresPostTx)(nil)
)

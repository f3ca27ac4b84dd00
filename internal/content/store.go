// Package content はテナント単位で分離されたチェンジログ投稿のストアを提供する。
//
// 書き込み（作成・更新・公開・非公開）はすべて1つのトランザクションで行い、
// 投稿の変更と監査ログの追記は同時に成功するか同時に失敗する。
// 更新・公開・非公開は対象行を行ロックしたうえでリビジョンを検査する。
// 他テナントの投稿は存在しない投稿と区別せず、常にErrPostNotFoundを返す。
package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/changelog/internal/audit"
	"github.com/hitoshi/changelog/internal/model"
	"github.com/hitoshi/changelog/internal/pagination"
	"github.com/hitoshi/changelog/internal/repository"
	"github.com/hitoshi/changelog/internal/slug"
	"github.com/hitoshi/changelog/internal/unread"
)

// Invalidator は公開状態の変化を未読判定のキャッシュに通知する。
// tenantIDがnilの場合はグローバル投稿で、全スコープが対象になる。
type Invalidator interface {
	Invalidate(ctx context.Context, tenantID *string) error
}

// Recorder は書き込み操作の結果を記録する。
type Recorder interface {
	RecordMutation(action string)
	RecordConflict(reason string)
}

// Store はテナントスコープ付きの投稿ストア。
type Store struct {
	posts     repository.PostRepository
	audits    repository.AuditRepository
	paginator *pagination.Paginator
	tracker   *unread.Tracker
	trail     *audit.Trail

	latest      unread.LatestSource
	invalidator Invalidator
	recorder    Recorder
	logger      *slog.Logger
	now         func() time.Time
	newID       func() string
}

// Option はStoreの設定を変更する。
type Option func(*Store)

// WithClock はサーバー時刻の取得元を差し替える。
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// WithIDGenerator は投稿・監査レコードのID生成器を差し替える。
func WithIDGenerator(gen func() string) Option {
	return func(s *Store) {
		s.newID = gen
	}
}

// WithLogger はロガーを設定する。
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		s.logger = logger
	}
}

// WithRecorder はメトリクスの記録先を設定する。
func WithRecorder(r Recorder) Option {
	return func(s *Store) {
		s.recorder = r
	}
}

// WithUnreadCache は未読判定に使う最新公開日時の取得元と、その無効化先を設定する。
func WithUnreadCache(latest unread.LatestSource, invalidator Invalidator) Option {
	return func(s *Store) {
		s.latest = latest
		s.invalidator = invalidator
	}
}

// NewStore はStoreを生成する。
func NewStore(
	posts repository.PostRepository,
	states repository.ReadStateRepository,
	audits repository.AuditRepository,
	opts ...Option,
) *Store {
	s := &Store{
		posts:  posts,
		audits: audits,
		latest: posts,
		logger: slog.Default(),
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Microsecond)
		},
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.paginator = pagination.NewPaginator(posts)
	s.tracker = unread.NewTracker(states, s.latest, unread.WithClock(s.now))
	s.trail = audit.NewTrail(audit.WithClock(s.now), audit.WithIDGenerator(s.newID))
	return s
}

// Create は下書きの投稿を作成し、create監査レコードを記録する。
func (s *Store) Create(ctx context.Context, actorID string, scope model.TenantScope, in CreateInput) (*model.Post, error) {
	title := normalizeTitle(in.Title)
	body := normalizeBody(in.BodyMarkdown)
	if err := validateTitle(title); err != nil {
		return nil, err
	}
	if err := validateBody(body); err != nil {
		return nil, err
	}
	if err := validateCategory(in.Category); err != nil {
		return nil, err
	}
	tenantID, err := resolveTenant(scope, in.TenantID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	post := model.Post{
		ID:           s.newID(),
		TenantID:     tenantID,
		Visibility:   model.VisibilityAuthenticated,
		Status:       model.PostStatusDraft,
		Category:     in.Category,
		Title:        title,
		BodyMarkdown: body,
		CreatedAt:    now,
		UpdatedAt:    now,
		Revision:     1,
	}

	err = s.posts.RunInTx(ctx, func(tx repository.PostTx) error {
		resolved, err := slug.Resolve(ctx, tx, in.Slug, title)
		if err != nil {
			return err
		}
		post.Slug = resolved

		if err := tx.Insert(ctx, &post); err != nil {
			return err
		}
		_, err = s.trail.Append(ctx, tx, actingTenant(scope), actorID, model.AuditActionCreate, post.ID,
			audit.ChangedFieldsMetadata(createdFields(post)))
		return err
	})
	if err != nil {
		return nil, s.failMutation(ctx, model.AuditActionCreate, err)
	}

	s.recordMutation(model.AuditActionCreate)
	s.logger.InfoContext(ctx, "投稿を作成しました",
		slog.String("post_id", post.ID),
		slog.String("tenant_id", tenantLabel(post.TenantID)),
		slog.String("slug", post.Slug),
	)
	return &post, nil
}

// Update は指定されたフィールドのみを更新する。
// 実際に値が変わったフィールドがない場合はリビジョンを上げず、監査レコードも記録しない。
func (s *Store) Update(ctx context.Context, actorID string, scope model.TenantScope, id string, in UpdateInput) (*model.Post, error) {
	var (
		result  model.Post
		mutated bool
	)

	err := s.posts.RunInTx(ctx, func(tx repository.PostTx) error {
		current, err := s.lockForWrite(ctx, tx, scope, id, in.ExpectedRevision)
		if err != nil {
			return err
		}

		next, changed, err := diffUpdate(*current, in)
		if err != nil {
			return err
		}
		if len(changed) == 0 {
			result = *current
			return nil
		}

		next.Revision = current.Revision + 1
		next.UpdatedAt = s.now()
		if err := tx.Update(ctx, &next, current.Revision); err != nil {
			return err
		}
		if _, err := s.trail.Append(ctx, tx, actingTenant(scope), actorID, model.AuditActionUpdate, next.ID,
			audit.ChangedFieldsMetadata(changed)); err != nil {
			return err
		}
		result = next
		mutated = true
		return nil
	})
	if err != nil {
		return nil, s.failMutation(ctx, model.AuditActionUpdate, err)
	}

	if mutated {
		s.recordMutation(model.AuditActionUpdate)
	}
	return &result, nil
}

// Publish は下書きを公開する。公開日時は未設定の場合のみ現在時刻を設定する。
func (s *Store) Publish(ctx context.Context, actorID string, scope model.TenantScope, id string, expectedRevision *int) (*model.Post, error) {
	return s.transition(ctx, actorID, scope, id, expectedRevision, model.PostStatusPublished)
}

// Unpublish は公開中の投稿を下書きに戻し、公開日時をクリアする。
func (s *Store) Unpublish(ctx context.Context, actorID string, scope model.TenantScope, id string, expectedRevision *int) (*model.Post, error) {
	return s.transition(ctx, actorID, scope, id, expectedRevision, model.PostStatusDraft)
}

func (s *Store) transition(
	ctx context.Context,
	actorID string,
	scope model.TenantScope,
	id string,
	expectedRevision *int,
	target model.PostStatus,
) (*model.Post, error) {
	action := model.AuditActionUnpublish
	if target == model.PostStatusPublished {
		action = model.AuditActionPublish
	}

	var result model.Post
	err := s.posts.RunInTx(ctx, func(tx repository.PostTx) error {
		current, err := s.lockForWrite(ctx, tx, scope, id, expectedRevision)
		if err != nil {
			return err
		}

		if current.Status == target {
			if target == model.PostStatusPublished {
				return model.NewConflictError(model.ConflictAlreadyPublished)
			}
			return model.NewConflictError(model.ConflictAlreadyDraft)
		}
		if target == model.PostStatusPublished {
			if err := validatePublishable(*current); err != nil {
				return err
			}
		}

		now := s.now()
		next := current.Clone()
		next.Status = target
		switch target {
		case model.PostStatusPublished:
			if next.PublishedAt == nil {
				next.PublishedAt = &now
			}
		case model.PostStatusDraft:
			next.PublishedAt = nil
		}
		next.Revision = current.Revision + 1
		next.UpdatedAt = now

		if err := tx.Update(ctx, &next, current.Revision); err != nil {
			return err
		}
		if _, err := s.trail.Append(ctx, tx, actingTenant(scope), actorID, action, next.ID,
			audit.TransitionMetadata(current.Status, target, next.Revision)); err != nil {
			return err
		}
		result = next
		return nil
	})
	if err != nil {
		return nil, s.failMutation(ctx, action, err)
	}

	s.recordMutation(action)
	s.invalidate(ctx, result.TenantID)
	s.logger.InfoContext(ctx, "投稿の公開状態を変更しました",
		slog.String("post_id", result.ID),
		slog.String("tenant_id", tenantLabel(result.TenantID)),
		slog.String("status", string(result.Status)),
		slog.Int("revision", result.Revision),
	)
	return &result, nil
}

// lockForWrite は対象行を行ロックし、リビジョンを検査する。
// 見えない投稿はErrPostNotFound、リビジョン不一致はConflictErrorを返す。
func (s *Store) lockForWrite(ctx context.Context, tx repository.PostTx, scope model.TenantScope, id string, expectedRevision *int) (*model.Post, error) {
	current, err := tx.LockVisible(ctx, scope, id)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, model.ErrPostNotFound
	}
	if expectedRevision != nil && *expectedRevision != current.Revision {
		return nil, model.NewConflictError(model.ConflictRevisionMismatch)
	}
	return current, nil
}

// failMutation はリポジトリのエラーをドメインエラーに変換し、競合を記録する。
func (s *Store) failMutation(ctx context.Context, action model.AuditAction, err error) error {
	switch {
	case errors.Is(err, repository.ErrSlugTaken):
		err = model.NewConflictError(model.ConflictSlugExists)
	case errors.Is(err, repository.ErrStaleRevision):
		err = model.NewConflictError(model.ConflictRevisionMismatch)
	}

	var conflict *model.ConflictError
	if errors.As(err, &conflict) {
		s.recordConflict(conflict.Message)
		if conflict.Message == model.ConflictSlugExhausted {
			s.logger.WarnContext(ctx, "スラッグの候補が上限に達しました", slog.String("action", string(action)))
		}
		return err
	}
	if model.IsValidationError(err) || errors.Is(err, model.ErrPostNotFound) {
		return err
	}
	return fmt.Errorf("投稿の%sに失敗しました: %w", action, err)
}

func (s *Store) invalidate(ctx context.Context, tenantID *string) {
	if s.invalidator == nil {
		return
	}
	if err := s.invalidator.Invalidate(ctx, tenantID); err != nil {
		// TTLで期限切れになるため処理は継続する
		s.logger.WarnContext(ctx, "未読キャッシュの無効化に失敗しました",
			slog.String("tenant_id", tenantLabel(tenantID)),
			slog.String("error", err.Error()),
		)
	}
}

func (s *Store) recordMutation(action model.AuditAction) {
	if s.recorder != nil {
		s.recorder.RecordMutation(string(action))
	}
}

func (s *Store) recordConflict(message string) {
	if s.recorder != nil {
		s.recorder.RecordConflict(conflictReason(message))
	}
}

// conflictReason は競合メッセージをメトリクスのラベル値に変換する。
func conflictReason(message string) string {
	switch message {
	case model.ConflictRevisionMismatch:
		return "revision"
	case model.ConflictSlugExists:
		return "slug"
	case model.ConflictSlugExhausted:
		return "slug_exhausted"
	case model.ConflictAlreadyPublished, model.ConflictAlreadyDraft:
		return "transition"
	}
	return "other"
}

// tenantLabel はログ用のテナント表記。グローバル投稿は"global"とする。
func tenantLabel(tenantID *string) string {
	if tenantID == nil {
		return "global"
	}
	return *tenantID
}

// actingTenant は監査レコードに記録する操作者のテナント。
// グローバル投稿の監査履歴は、各テナントに自テナントの操作分だけが見える。
func actingTenant(scope model.TenantScope) *string {
	tenantID := scope.TenantID
	return &tenantID
}

package audit

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/changelog/internal/model"
)

// Writer は監査レコードを書き込む。投稿の変更と同じトランザクションで呼ばれる。
type Writer interface {
	AppendAudit(ctx context.Context, record *model.AuditRecord) error
}

// Trail は監査レコードをサニタイズして追記する。
type Trail struct {
	now   func() time.Time
	newID func() string
}

// Option はTrailの生成オプション。
type Option func(*Trail)

// WithClock は記録時刻の取得元を差し替える。
func WithClock(now func() time.Time) Option {
	return func(t *Trail) { t.now = now }
}

// WithIDGenerator はレコードIDの生成器を差し替える。
func WithIDGenerator(gen func() string) Option {
	return func(t *Trail) { t.newID = gen }
}

// NewTrail はTrailを生成する。
func NewTrail(opts ...Option) *Trail {
	t := &Trail{
		now:   func() time.Time { return time.Now().UTC().Truncate(time.Microsecond) },
		newID: uuid.NewString,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Append はサニタイズ済みメタデータで監査レコードを1件書き込む。
// 書き込みに失敗した場合、呼び出し元のトランザクションごとロールバックされる。
func (t *Trail) Append(
	ctx context.Context,
	w Writer,
	tenantID *string,
	actorID string,
	action model.AuditAction,
	postID string,
	metadata map[string]any,
) (*model.AuditRecord, error) {
	record := &model.AuditRecord{
		ID:       t.newID(),
		TenantID: tenantID,
		ActorID:  actorID,
		Action:   action,
		PostID:   postID,
		At:       t.now(),
		Metadata: Sanitize(metadata),
	}

	if err := w.AppendAudit(ctx, record); err != nil {
		return nil, fmt.Errorf("監査ログの書き込みに失敗しました: %w", err)
	}
	return record, nil
}

// ChangedFieldsMetadata はchanged_fieldsにフィールド名のみを並べたメタデータを返す。
func ChangedFieldsMetadata(fields []model.PostField) map[string]any {
	names := make([]any, len(fields))
	for i, f := range fields {
		names[i] = string(f)
	}
	return map[string]any{"changed_fields": names}
}

// TransitionMetadata は状態遷移の前後を記録するメタデータを返す。
func TransitionMetadata(previous, next model.PostStatus, revision int) map[string]any {
	return map[string]any{
		"previous_status": string(previous),
		"new_status":      string(next),
		"revision":        revision,
	}
}

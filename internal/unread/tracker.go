// Package unread はテナント・ユーザー単位の既読ウォーターマークと未読判定を提供する。
package unread

import (
	"context"
	"fmt"
	"time"

	"github.com/hitoshi/changelog/internal/model"
)

// StateRepository は既読ウォーターマークの永続化を行う。
type StateRepository interface {
	// Find は既読状態を返す。未記録の場合は nil, nil を返す。
	Find(ctx context.Context, tenantID, userID string) (*model.ReadState, error)
	// Upsert はlast_seen_atを上書きし、保存後の状態を返す。
	Upsert(ctx context.Context, tenantID, userID string, seenAt time.Time) (*model.ReadState, error)
}

// LatestSource はスコープから見える公開済み投稿のうち最新のpublished_atを返す。
// 公開済み投稿がない場合は nil を返す。
type LatestSource interface {
	LatestPublishedAt(ctx context.Context, scope model.TenantScope) (*time.Time, error)
}

// Tracker は未読判定を行う。
type Tracker struct {
	states StateRepository
	latest LatestSource
	now    func() time.Time
}

// Option はTrackerの設定を変更する。
type Option func(*Tracker)

// WithClock はサーバー時刻の取得元を差し替える。
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) {
		t.now = now
	}
}

// NewTracker はTrackerを生成する。
func NewTracker(states StateRepository, latest LatestSource, opts ...Option) *Tracker {
	t := &Tracker{
		states: states,
		latest: latest,
		now: func() time.Time {
			return time.Now().UTC().Truncate(time.Microsecond)
		},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// MarkSeen はウォーターマークをサーバーの現在時刻に更新する。
// クライアントから渡された時刻は受け付けない。
func (t *Tracker) MarkSeen(ctx context.Context, scope model.TenantScope, userID string) (*model.ReadState, error) {
	state, err := t.states.Upsert(ctx, scope.TenantID, userID, t.now())
	if err != nil {
		return nil, fmt.Errorf("mark seen: %w", err)
	}
	return state, nil
}

// HasUnread はウォーターマークより後に公開された可視の投稿があるかを返す。
// ウォーターマーク未記録の場合は公開済み投稿が1件でもあれば未読とする。
func (t *Tracker) HasUnread(ctx context.Context, scope model.TenantScope, userID string) (bool, error) {
	latest, err := t.latest.LatestPublishedAt(ctx, scope)
	if err != nil {
		return false, fmt.Errorf("get latest published_at: %w", err)
	}
	if latest == nil {
		return false, nil
	}

	state, err := t.states.Find(ctx, scope.TenantID, userID)
	if err != nil {
		return false, fmt.Errorf("get read state: %w", err)
	}
	if state == nil {
		return true, nil
	}
	return latest.After(state.LastSeenAt), nil
}

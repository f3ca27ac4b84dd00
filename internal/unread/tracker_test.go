package unread

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/changelog/internal/model"
)

type memoryStates struct {
	mu     sync.Mutex
	states map[[2]string]model.ReadState
	err    error
}

func newMemoryStates() *memoryStates {
	return &memoryStates{states: make(map[[2]string]model.ReadState)}
}

func (m *memoryStates) Find(_ context.Context, tenantID, userID string) (*model.ReadState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.states[[2]string{tenantID, userID}]
	if !ok {
		return nil, nil
	}
	return &s, nil
}

func (m *memoryStates) Upsert(_ context.Context, tenantID, userID string, seenAt time.Time) (*model.ReadState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	s := model.ReadState{TenantID: tenantID, UserID: userID, LastSeenAt: seenAt}
	m.states[[2]string{tenantID, userID}] = s
	return &s, nil
}

// fixedLatest はスコープごとの最新公開日時を返すテスト用Source。
type fixedLatest struct {
	byTenant map[string]*time.Time
	calls    int
	err      error
}

func (f *fixedLatest) LatestPublishedAt(_ context.Context, scope model.TenantScope) (*time.Time, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.byTenant[scope.TenantID], nil
}

func timePtr(t time.Time) *time.Time { return &t }

func TestTracker_NoPublishedPosts(t *testing.T) {
	tr := NewTracker(newMemoryStates(), &fixedLatest{})
	unread, err := tr.HasUnread(context.Background(), model.TenantScope{TenantID: "alpha"}, "u1")
	require.NoError(t, err)
	assert.False(t, unread)
}

func TestTracker_NeverSeenCountsAsUnread(t *testing.T) {
	published := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(newMemoryStates(), &fixedLatest{byTenant: map[string]*time.Time{"alpha": timePtr(published)}})

	unread, err := tr.HasUnread(context.Background(), model.TenantScope{TenantID: "alpha"}, "u1")
	require.NoError(t, err)
	assert.True(t, unread)
}

func TestTracker_MarkSeenUsesServerClock(t *testing.T) {
	published := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	now := published.Add(time.Hour)
	states := newMemoryStates()
	latest := &fixedLatest{byTenant: map[string]*time.Time{"alpha": timePtr(published)}}
	tr := NewTracker(states, latest, WithClock(func() time.Time { return now }))
	ctx := context.Background()
	scope := model.TenantScope{TenantID: "alpha"}

	state, err := tr.MarkSeen(ctx, scope, "u1")
	require.NoError(t, err)
	assert.Equal(t, now, state.LastSeenAt)
	assert.Equal(t, "alpha", state.TenantID)
	assert.Equal(t, "u1", state.UserID)

	unread, err := tr.HasUnread(ctx, scope, "u1")
	require.NoError(t, err)
	assert.False(t, unread)

	// 後から公開された投稿は未読になる
	latest.byTenant["alpha"] = timePtr(now.Add(time.Second))
	unread, err = tr.HasUnread(ctx, scope, "u1")
	require.NoError(t, err)
	assert.True(t, unread)
}

func TestTracker_WatermarkEqualToLatestIsRead(t *testing.T) {
	at := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	tr := NewTracker(newMemoryStates(), &fixedLatest{byTenant: map[string]*time.Time{"alpha": timePtr(at)}},
		WithClock(func() time.Time { return at }))
	ctx := context.Background()
	scope := model.TenantScope{TenantID: "alpha"}

	_, err := tr.MarkSeen(ctx, scope, "u1")
	require.NoError(t, err)

	unread, err := tr.HasUnread(ctx, scope, "u1")
	require.NoError(t, err)
	assert.False(t, unread)
}

func TestTracker_WatermarksAreScopedByTenant(t *testing.T) {
	published := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	latest := &fixedLatest{byTenant: map[string]*time.Time{
		"alpha": timePtr(published),
		"beta":  timePtr(published),
	}}
	tr := NewTracker(newMemoryStates(), latest, WithClock(func() time.Time { return published.Add(time.Minute) }))
	ctx := context.Background()

	_, err := tr.MarkSeen(ctx, model.TenantScope{TenantID: "alpha"}, "u1")
	require.NoError(t, err)

	unread, err := tr.HasUnread(ctx, model.TenantScope{TenantID: "beta"}, "u1")
	require.NoError(t, err)
	assert.True(t, unread)
}

func TestTracker_PropagatesErrors(t *testing.T) {
	boom := errors.New("boom")
	published := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)

	tr := NewTracker(newMemoryStates(), &fixedLatest{err: boom})
	_, err := tr.HasUnread(context.Background(), model.TenantScope{TenantID: "alpha"}, "u1")
	assert.ErrorIs(t, err, boom)

	states := newMemoryStates()
	states.err = boom
	tr = NewTracker(states, &fixedLatest{byTenant: map[string]*time.Time{"alpha": timePtr(published)}})
	_, err = tr.HasUnread(context.Background(), model.TenantScope{TenantID: "alpha"}, "u1")
	assert.ErrorIs(t, err, boom)
	_, err = tr.MarkSeen(context.Background(), model.TenantScope{TenantID: "alpha"}, "u1")
	assert.ErrorIs(t, err, boom)
}

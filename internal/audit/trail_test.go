package audit

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitoshi/changelog/internal/model"
)

type recordingWriter struct {
	records []*model.AuditRecord
	err     error
}

func (w *recordingWriter) AppendAudit(_ context.Context, r *model.AuditRecord) error {
	if w.err != nil {
		return w.err
	}
	w.records = append(w.records, r)
	return nil
}

func TestTrail_AppendSanitizesAndStamps(t *testing.T) {
	at := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	trail := NewTrail(
		WithClock(func() time.Time { return at }),
		WithIDGenerator(func() string { return "audit-1" }),
	)
	w := &recordingWriter{}
	tenant := "alpha"

	rec, err := trail.Append(context.Background(), w, &tenant, "actor-1", model.AuditActionUpdate, "post-1",
		map[string]any{"changed_fields": []any{"title"}, "body_markdown": "leak"})
	require.NoError(t, err)

	require.Len(t, w.records, 1)
	assert.Same(t, rec, w.records[0])
	assert.Equal(t, "audit-1", rec.ID)
	assert.Equal(t, at, rec.At)
	assert.Equal(t, "alpha", *rec.TenantID)
	assert.Equal(t, "actor-1", rec.ActorID)
	assert.Equal(t, model.AuditActionUpdate, rec.Action)
	assert.Equal(t, "post-1", rec.PostID)
	assert.Equal(t, map[string]any{"changed_fields": []any{"title"}}, rec.Metadata)
}

func TestTrail_AppendPropagatesWriterError(t *testing.T) {
	boom := errors.New("insert failed")
	_, err := NewTrail().Append(context.Background(), &recordingWriter{err: boom}, nil, "a", model.AuditActionCreate, "p", nil)
	assert.ErrorIs(t, err, boom)
}

func TestChangedFieldsMetadata_HoldsNamesOnly(t *testing.T) {
	got := ChangedFieldsMetadata([]model.PostField{model.FieldTitle, model.FieldBodyMarkdown})
	assert.Equal(t, map[string]any{"changed_fields": []any{"title", "body_markdown"}}, got)
	assert.Equal(t, got, Sanitize(got))
}

func TestTransitionMetadata(t *testing.T) {
	got := TransitionMetadata(model.PostStatusDraft, model.PostStatusPublished, 3)
	assert.Equal(t, "draft", got["previous_status"])
	assert.Equal(t, "published", got["new_status"])
	assert.Equal(t, 3, got["revision"])
}

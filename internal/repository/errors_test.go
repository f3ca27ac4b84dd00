package repository

import (
	"errors"
	"fmt"
	"testing"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
)

func TestIsSlugViolation(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"slug constraint", &pq.Error{Code: "23505", Constraint: "posts_slug_key"}, true},
		{"wrapped", fmt.Errorf("insert: %w", &pq.Error{Code: "23505", Constraint: "posts_slug_key"}), true},
		{"other unique constraint", &pq.Error{Code: "23505", Constraint: "posts_pkey"}, false},
		{"check violation", &pq.Error{Code: "23514", Constraint: "posts_slug_key"}, false},
		{"plain error", errors.New("boom"), false},
		{"nil", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, isSlugViolation(tt.err))
		})
	}
}

func TestIsUnsafeAuditMetadata(t *testing.T) {
	assert.True(t, isUnsafeAuditMetadata(&pq.Error{Code: "23514", Constraint: "audit_log_metadata_check"}))
	assert.True(t, isUnsafeAuditMetadata(fmt.Errorf("exec: %w", &pq.Error{Code: "23514", Constraint: "audit_log_metadata_check"})))
	assert.False(t, isUnsafeAuditMetadata(&pq.Error{Code: "23514", Constraint: "audit_log_action_check"}))
	assert.False(t, isUnsafeAuditMetadata(&pq.Error{Code: "23505", Constraint: "audit_log_metadata_check"}))
	assert.False(t, isUnsafeAuditMetadata(errors.New("boom")))
}

func TestEscapeLike(t *testing.T) {
	assert.Equal(t, `50\% off`, escapeLike("50% off"))
	assert.Equal(t, `snake\_case`, escapeLike("snake_case"))
	assert.Equal(t, `back\\slash`, escapeLike(`back\slash`))
	assert.Equal(t, "plain", escapeLike("plain"))
}

func TestIsUUID(t *testing.T) {
	assert.True(t, isUUID("0b7c4f3e-2d7a-4e0c-9a61-6f1f6a3b2c10"))
	assert.False(t, isUUID("post-1"))
	assert.False(t, isUUID(""))
	assert.False(t, isUUID("urn:uuid:0b7c4f3e-2d7a-4e0c-9a61-6f1f6a3b2c10"))
}

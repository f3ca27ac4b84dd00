package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/hitoshi/changelog/internal/model"
)

// PostgresReadStateRepo はPostgreSQLを使用した既読状態リポジトリ。
type PostgresReadStateRepo struct {
	db *sql.DB
}

// NewPostgresReadStateRepo はPostgresReadStateRepoを生成する。
func NewPostgresReadStateRepo(db *sql.DB) *PostgresReadStateRepo {
	return &PostgresReadStateRepo{db: db}
}

// Find は既読状態を取得する。見つからない場合はnilを返す。
func (r *PostgresReadStateRepo) Find(ctx context.Context, tenantID, userID string) (*model.ReadState, error) {
	state := &model.ReadState{}
	err := r.db.QueryRowContext(ctx,
		`SELECT tenant_id, user_id, last_seen_at FROM read_state WHERE tenant_id = $1 AND user_id = $2`,
		tenantID, userID,
	).Scan(&state.TenantID, &state.UserID, &state.LastSeenAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find read state: %w", err)
	}
	state.LastSeenAt = state.LastSeenAt.UTC()
	return state, nil
}

// Upsert はlast_seen_atを冪等にUPSERTする。
// PRIMARY KEY(tenant_id, user_id)を利用したINSERT ON CONFLICTで実装する。
func (r *PostgresReadStateRepo) Upsert(ctx context.Context, tenantID, userID string, seenAt time.Time) (*model.ReadState, error) {
	state := &model.ReadState{}
	err := r.db.QueryRowContext(ctx,
		`INSERT INTO read_state (tenant_id, user_id, last_seen_at)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (tenant_id, user_id) DO UPDATE SET last_seen_at = EXCLUDED.last_seen_at
		 RETURNING tenant_id, user_id, last_seen_at`,
		tenantID, userID, seenAt,
	).Scan(&state.TenantID, &state.UserID, &state.LastSeenAt)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert read state: %w", err)
	}
	state.LastSeenAt = state.LastSeenAt.UTC()
	return state, nil
}

// compile-time interface check
var _ ReadStateRepository = (*PostgresReadStateRepo)(nil)

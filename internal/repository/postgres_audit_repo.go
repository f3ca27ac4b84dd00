package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/changelog/internal/model"
)

// PostgresAuditRepo はPostgreSQLを使用した監査ログの参照リポジトリ。
type PostgresAuditRepo struct {
	db *sql.DB
}

// NewPostgresAuditRepo はPostgresAuditRepoを生成する。
func NewPostgresAuditRepo(db *sql.DB) *PostgresAuditRepo {
	return &PostgresAuditRepo{db: db}
}

// ListByPost は投稿の監査レコードを新しい順に取得する。
func (r *PostgresAuditRepo) ListByPost(ctx context.Context, scope model.TenantScope, postID string, limit int) ([]model.AuditRecord, error) {
	records := []model.AuditRecord{}
	if !isUUID(postID) {
		return records, nil
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT id, tenant_id, actor_id, action, post_id, at, metadata
		 FROM audit_log
		 WHERE `+visibleClause+` AND post_id = $2
		 ORDER BY at DESC, seq DESC
		 LIMIT $3`,
		scope.TenantID, postID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit records: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec model.AuditRecord
		var tenantID sql.NullString
		var metadata []byte
		if err := rows.Scan(&rec.ID, &tenantID, &rec.ActorID, &rec.Action, &rec.PostID, &rec.At, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		if tenantID.Valid {
			rec.TenantID = &tenantID.String
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal audit metadata: %w", err)
			}
		}
		rec.At = rec.At.UTC()
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate audit records: %w", err)
	}
	return records, nil
}

// compile-time interface check
var _ AuditRepository = (*PostgresAuditRepo)(nil)

package model

import "time"

// AuditAction は監査ログに記録する操作種別。
type AuditAction string

const (
	AuditActionCreate    AuditAction = "create"
	AuditActionUpdate    AuditAction = "update"
	AuditActionPublish   AuditAction = "publish"
	AuditActionUnpublish AuditAction = "unpublish"
)

// AuditRecord は追記専用の操作ログ1件を表す。
// Metadataはサニタイズ済みで、本文を保持しうるキーを含まない。
// TenantIDは投稿ではなく操作者のテナントで、一覧はこれで絞り込まれる。
type AuditRecord struct {
	ID       string
	TenantID *string
	ActorID  string
	Action   AuditAction
	PostID   string
	At       time.Time
	Metadata map[string]any
}

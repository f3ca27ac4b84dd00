package repository

import (
	"errors"

	"github.com/lib/pq"
)

// pqUniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const pqUniqueViolation = "23505"

// pqCheckViolation はPostgreSQLのCHECK制約違反のSQLSTATE。
const pqCheckViolation = "23514"

// auditMetadataConstraint はaudit_log.metadataの禁止キー検査制約名。
const auditMetadataConstraint = "audit_log_metadata_check"

// postsSlugConstraint はposts.slugの一意制約名。
const postsSlugConstraint = "posts_slug_key"

// isSlugViolation はerrがposts.slugの一意制約違反かどうかを返す。
func isSlugViolation(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == pqUniqueViolation && pqErr.Constraint == postsSlugConstraint
}

// isUnsafeAuditMetadata はerrが監査メタデータの禁止キー検査に違反したかどうかを返す。
func isUnsafeAuditMetadata(err error) bool {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) {
		return false
	}
	return pqErr.Code == pqCheckViolation && pqErr.Constraint == auditMetadataConstraint
}

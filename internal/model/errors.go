// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, conflict, post, system
	Action   string // ユーザー向け対処方法
	Field    string // 検証エラーの対象フィールド。それ以外は空
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation   = "VALIDATION_FAILED"
	ErrCodeConflict     = "CONFLICT"
	ErrCodePostNotFound = "POST_NOT_FOUND"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeForbidden    = "FORBIDDEN"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

// 競合エラーのメッセージ。呼び出し元は再取得してから再試行する。
const (
	ConflictSlugExists        = "slug already exists"
	ConflictRevisionMismatch  = "revision mismatch"
	ConflictSlugExhausted     = "unable to generate unique slug"
	ConflictAlreadyPublished  = "post is already published"
	ConflictAlreadyDraft      = "post is already a draft"
	ValidationCursorInvalid   = "cursor is invalid"
	ValidationTenantMismatch  = "tenant_id must match the caller's tenant"
	ValidationPublishRequired = "must not be empty when publishing"
)

// ErrPostNotFound は投稿が存在しない、または呼び出し元スコープから見えないことを表す。
// 他テナントの投稿の存在を観測させないため、両者を区別しない。
var ErrPostNotFound = errors.New("post not found")

// ValidationError は入力値の不正を表す。リクエストを修正すれば回復できる。
type ValidationError struct {
	Field   string
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// NewValidationError はフィールド名付きのValidationErrorを生成する。
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ConflictError はリビジョン不一致・スラッグ衝突・不正な状態遷移を表す。
// ストアは自動で再試行しない。
type ConflictError struct {
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *ConflictError) Error() string {
	return e.Message
}

// NewConflictError はConflictErrorを生成する。
func NewConflictError(message string) *ConflictError {
	return &ConflictError{Message: message}
}

// IsValidationError はerrがValidationErrorを含むかを返す。
func IsValidationError(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// IsConflictError はerrがConflictErrorを含むかを返す。
func IsConflictError(err error) bool {
	var c *ConflictError
	return errors.As(err, &c)
}

// NewPostNotFoundError は投稿未検出のAPIエラーを生成する。
func NewPostNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodePostNotFound,
		Message:  "指定された投稿が見つかりません。",
		Category: "post",
		Action:   "投稿IDまたはスラッグを確認してください。",
	}
}

// NewValidationAPIError はValidationErrorをAPIエラーに変換する。
func NewValidationAPIError(err *ValidationError) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  err.Error(),
		Category: "validation",
		Action:   "入力内容を修正してから再度お試しください。",
		Field:    err.Field,
	}
}

// NewInvalidBodyAPIError はリクエストボディを解析できない場合のAPIエラーを生成する。
func NewInvalidBodyAPIError() *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  "リクエストボディの解析に失敗しました。",
		Category: "validation",
		Action:   "正しいJSON形式でリクエストしてください。",
	}
}

// NewUnauthorizedAPIError はゲートウェイの認証ヘッダーが欠けている場合のAPIエラーを生成する。
func NewUnauthorizedAPIError() *APIError {
	return &APIError{
		Code:     ErrCodeUnauthorized,
		Message:  "認証情報がありません。",
		Category: "auth",
		Action:   "再度ログインしてください。",
	}
}

// NewForbiddenAPIError は管理者権限が必要な操作のAPIエラーを生成する。
func NewForbiddenAPIError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "この操作を行う権限がありません。",
		Category: "auth",
		Action:   "管理者に権限を確認してください。",
	}
}

// NewRateLimitedAPIError はレート制限超過のAPIエラーを生成する。
func NewRateLimitedAPIError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "リクエストが多すぎます。",
		Category: "system",
		Action:   "Retry-Afterの秒数だけ待ってから再度お試しください。",
	}
}

// NewConflictAPIError はConflictErrorをAPIエラーに変換する。
func NewConflictAPIError(err *ConflictError) *APIError {
	return &APIError{
		Code:     ErrCodeConflict,
		Message:  err.Message,
		Category: "conflict",
		Action:   "最新の投稿を再取得してから再度お試しください。",
	}
}

// NewInternalAPIError は内部エラーのAPIエラーを生成する。詳細はログにのみ記録する。
func NewInternalAPIError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	}
}

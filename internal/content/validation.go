package content

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/hitoshi/changelog/internal/model"
)

// normalizeTitle は連続する空白を1つにまとめ、前後の空白を除去する。
func normalizeTitle(title string) string {
	return strings.Join(strings.Fields(title), " ")
}

// normalizeBody は本文の前後の空白を除去する。
func normalizeBody(body string) string {
	return strings.TrimSpace(body)
}

func fieldError(field model.PostField, err error) error {
	if err == nil {
		return nil
	}
	return model.NewValidationError(string(field), err.Error())
}

// validateTitle は下書き保存時のタイトルを検証する。空文字列は許容する。
func validateTitle(title string) error {
	return fieldError(model.FieldTitle, validation.Validate(title,
		validation.RuneLength(0, model.MaxTitleLength),
	))
}

// validateBody は下書き保存時の本文を検証する。空文字列は許容する。
func validateBody(body string) error {
	return fieldError(model.FieldBodyMarkdown, validation.Validate(body,
		validation.RuneLength(0, model.MaxBodyMarkdownLength),
	))
}

func validateCategory(category model.Category) error {
	allowed := make([]any, len(model.Categories))
	for i, c := range model.Categories {
		allowed[i] = c
	}
	return fieldError(model.FieldCategory, validation.Validate(category,
		validation.Required,
		validation.In(allowed...).Error("must be one of new, improvement, fix"),
	))
}

// validatePublishable は公開に必要なタイトルと本文が揃っているかを検証する。
func validatePublishable(post model.Post) error {
	required := validation.Required.Error(model.ValidationPublishRequired)
	if err := validation.Validate(strings.TrimSpace(post.Title), required); err != nil {
		return fieldError(model.FieldTitle, err)
	}
	if err := validation.Validate(strings.TrimSpace(post.BodyMarkdown), required); err != nil {
		return fieldError(model.FieldBodyMarkdown, err)
	}
	return nil
}

// resolveTenant は作成時のtenant_id指定を解決する。
// 未指定は呼び出し元テナント、null指定はグローバル、値指定はスコープと一致する場合のみ許可する。
func resolveTenant(scope model.TenantScope, a model.TenantAssignment) (*string, error) {
	if !a.Present {
		tenant := scope.TenantID
		return &tenant, nil
	}
	if a.Value == nil {
		return nil, nil
	}
	if *a.Value != scope.TenantID {
		return nil, model.NewValidationError(string(model.FieldTenantID), model.ValidationTenantMismatch)
	}
	tenant := *a.Value
	return &tenant, nil
}

// validateAdminQuery は管理画面一覧の検索条件を検証し、既定値を補う。
func validateAdminQuery(q AdminQuery) (AdminQuery, error) {
	if q.Filter.Tenant == "" {
		q.Filter.Tenant = model.AdminTenantAll
	}
	if !q.Filter.Tenant.Valid() {
		return q, model.NewValidationError("tenant", "must be one of all, tenant, global")
	}
	if q.Filter.Status != nil && !q.Filter.Status.Valid() {
		return q, model.NewValidationError("status", "must be one of draft, published")
	}
	if q.Offset < 0 {
		return q, model.NewValidationError("offset", "must be no less than 0")
	}
	return q, nil
}

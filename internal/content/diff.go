package content

import (
	"github.com/hitoshi/changelog/internal/model"
	"github.com/hitoshi/changelog/internal/slug"
)

// diffUpdate は更新要求を現在の投稿に適用した結果と、実際に値が変わったフィールド名を返す。
// 指定されていても現在値と同じフィールドは変更に含めない。
func diffUpdate(current model.Post, in UpdateInput) (model.Post, []model.PostField, error) {
	next := current.Clone()
	var changed []model.PostField

	if in.Title != nil {
		title := normalizeTitle(*in.Title)
		if err := validateTitle(title); err != nil {
			return current, nil, err
		}
		if title != current.Title {
			next.Title = title
			changed = append(changed, model.FieldTitle)
		}
	}

	if in.Slug != nil {
		// 更新時は明示指定のスラッグをそのまま採用し、自動採番しない
		if err := slug.Validate(*in.Slug); err != nil {
			return current, nil, err
		}
		if *in.Slug != current.Slug {
			next.Slug = *in.Slug
			changed = append(changed, model.FieldSlug)
		}
	}

	if in.Category != nil {
		if err := validateCategory(*in.Category); err != nil {
			return current, nil, err
		}
		if *in.Category != current.Category {
			next.Category = *in.Category
			changed = append(changed, model.FieldCategory)
		}
	}

	if in.BodyMarkdown != nil {
		body := normalizeBody(*in.BodyMarkdown)
		if err := validateBody(body); err != nil {
			return current, nil, err
		}
		if body != current.BodyMarkdown {
			next.BodyMarkdown = body
			changed = append(changed, model.FieldBodyMarkdown)
		}
	}

	return next, changed, nil
}

// createdFields は作成時に値が設定されたフィールド名を返す。
func createdFields(post model.Post) []model.PostField {
	fields := make([]model.PostField, 0, 6)
	if post.Title != "" {
		fields = append(fields, model.FieldTitle)
	}
	fields = append(fields, model.FieldSlug, model.FieldCategory)
	if post.BodyMarkdown != "" {
		fields = append(fields, model.FieldBodyMarkdown)
	}
	if post.TenantID != nil {
		fields = append(fields, model.FieldTenantID)
	}
	fields = append(fields, model.FieldVisibility)
	return fields
}

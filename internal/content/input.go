package content

import "github.com/hitoshi/changelog/internal/model"

// CreateInput は投稿作成の入力。
type CreateInput struct {
	Title        string
	Slug         *string // nilまたは空白のみの場合はタイトルから生成する
	Category     model.Category
	BodyMarkdown string
	TenantID     model.TenantAssignment
}

// UpdateInput は投稿更新の入力。nilのフィールドは変更しない。
type UpdateInput struct {
	Title            *string
	Slug             *string
	Category         *model.Category
	BodyMarkdown     *string
	ExpectedRevision *int
}

// AdminQuery は管理画面一覧の検索条件とページング。
type AdminQuery struct {
	Filter model.AdminFilter
	Limit  int
	Offset int
}

// AdminPage は管理画面一覧の1ページ分の結果。
type AdminPage struct {
	Posts   []model.Post
	HasMore bool
}

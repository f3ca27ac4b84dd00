// Package model はドメインモデルを定義する。
package model

import "time"

// 投稿フィールドの上限値。
const (
	MaxTitleLength        = 180
	MaxBodyMarkdownLength = 50000
	MaxSlugLength         = 80
)

// Post は変更履歴（チェンジログ）の投稿を表す。
// TenantIDがnilの投稿はグローバル投稿で、全テナントから参照できる。
type Post struct {
	ID           string
	TenantID     *string
	Visibility   Visibility
	Status       PostStatus
	Category     Category
	Title        string
	Slug         string
	BodyMarkdown string
	PublishedAt  *time.Time
	CreatedAt    time.Time
	UpdatedAt    time.Time
	Revision     int
}

// IsGlobal は全テナントに公開されるグローバル投稿かどうかを返す。
func (p *Post) IsGlobal() bool {
	return p.TenantID == nil
}

// IsPublished は公開済みかどうかを返す。
func (p *Post) IsPublished() bool {
	return p.Status == PostStatusPublished
}

// VisibleTo は指定スコープの呼び出し元がこの投稿を参照できるかを返す。
func (p *Post) VisibleTo(scope TenantScope) bool {
	return p.TenantID == nil || *p.TenantID == scope.TenantID
}

// Clone は可変フィールドを共有しないコピーを返す。
func (p Post) Clone() Post {
	if p.TenantID != nil {
		t := *p.TenantID
		p.TenantID = &t
	}
	if p.PublishedAt != nil {
		t := *p.PublishedAt
		p.PublishedAt = &t
	}
	return p
}

// PostStatus は投稿の公開状態を表す。
type PostStatus string

const (
	// PostStatusDraft は下書き状態。
	PostStatusDraft PostStatus = "draft"
	// PostStatusPublished は公開状態。published_atが必ず設定される。
	PostStatusPublished PostStatus = "published"
)

// Valid は定義済みの状態値かどうかを返す。
func (s PostStatus) Valid() bool {
	return s == PostStatusDraft || s == PostStatusPublished
}

// Visibility は投稿の閲覧対象を表す。
type Visibility string

const (
	// VisibilityAuthenticated は認証済みユーザー向けの投稿。
	VisibilityAuthenticated Visibility = "authenticated"
	// VisibilityPublic は将来の匿名公開用に予約されている。
	VisibilityPublic Visibility = "public"
)

// Category は投稿の種別を表す。
type Category string

const (
	CategoryNew         Category = "new"
	CategoryImprovement Category = "improvement"
	CategoryFix         Category = "fix"
)

// Categories は有効なカテゴリの一覧。
var Categories = []Category{CategoryNew, CategoryImprovement, CategoryFix}

// Valid は定義済みのカテゴリかどうかを返す。
func (c Category) Valid() bool {
	for _, v := range Categories {
		if c == v {
			return true
		}
	}
	return false
}

// PostField は監査ログのchanged_fieldsに記録するフィールド名。
// 値そのものは決して記録しない。
type PostField string

const (
	FieldTitle        PostField = "title"
	FieldSlug         PostField = "slug"
	FieldCategory     PostField = "category"
	FieldBodyMarkdown PostField = "body_markdown"
	FieldTenantID     PostField = "tenant_id"
	FieldVisibility   PostField = "visibility"
)

// AdminTenantFilter は管理画面一覧のテナント絞り込み条件。
type AdminTenantFilter string

const (
	// AdminTenantAll はスコープから見える全投稿（グローバル + 自テナント）。
	AdminTenantAll AdminTenantFilter = "all"
	// AdminTenantOwn は自テナントの投稿のみ。
	AdminTenantOwn AdminTenantFilter = "tenant"
	// AdminTenantGlobal はグローバル投稿のみ。
	AdminTenantGlobal AdminTenantFilter = "global"
)

// Valid は定義済みのフィルタ値かどうかを返す。
func (f AdminTenantFilter) Valid() bool {
	switch f {
	case AdminTenantAll, AdminTenantOwn, AdminTenantGlobal:
		return true
	}
	return false
}

// AdminFilter は管理画面一覧の検索条件。
type AdminFilter struct {
	Status *PostStatus
	Tenant AdminTenantFilter
	Query  string // title/slugに対する部分一致（大文字小文字を区別しない）
}

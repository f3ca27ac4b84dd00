// Package slug はタイトルからURLスラッグを生成し、全テナントで一意な値を解決する。
package slug

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"unicode"

	validation "github.com/go-ozzo/ozzo-validation/v4"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/hitoshi/changelog/internal/model"
)

const (
	// Fallback は正規化結果が空になった場合のスラッグ。
	Fallback = "post"
	// MaxAttempts は自動採番で試行する候補数（base, base-2, ... base-100）。
	MaxAttempts = 100
)

// Pattern はスラッグの書式（小文字kebab-case）。
var Pattern = regexp.MustCompile(`^[a-z0-9]+(-[a-z0-9]+)*$`)

var nonAlnum = regexp.MustCompile(`[^a-z0-9]+`)

// Checker はスラッグの使用有無を問い合わせる。
// 作成処理と同じトランザクション内で呼ばれる。
type Checker interface {
	SlugTaken(ctx context.Context, slug string) (bool, error)
}

// Slugify はタイトルを小文字kebab-caseに正規化する。
// 合成文字はNFKD分解して結合記号を除去するため "Café" は "cafe" になる。
func Slugify(title string) string {
	folded, _, err := transform.String(
		transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC),
		title,
	)
	if err != nil {
		folded = title
	}

	s := nonAlnum.ReplaceAllString(strings.ToLower(folded), "-")
	s = strings.Trim(s, "-")
	s = truncate(s, model.MaxSlugLength)
	if s == "" {
		return Fallback
	}
	return s
}

// Validate は明示指定されたスラッグの書式を検証する。
func Validate(s string) error {
	err := validation.Validate(s,
		validation.Required,
		validation.RuneLength(1, model.MaxSlugLength),
		validation.Match(Pattern).Error("must be lowercase kebab-case"),
	)
	if err != nil {
		return model.NewValidationError(string(model.FieldSlug), err.Error())
	}
	return nil
}

// Resolve は作成時のスラッグを決定する。
// explicitが指定されていれば書式のみ検証してそのまま返す（一意性はINSERT時の制約で保証する）。
// 未指定ならタイトルから base, base-2, base-3 ... の順に未使用の候補を探す。
func Resolve(ctx context.Context, checker Checker, explicit *string, title string) (string, error) {
	if explicit != nil && strings.TrimSpace(*explicit) != "" {
		if err := Validate(*explicit); err != nil {
			return "", err
		}
		return *explicit, nil
	}

	base := Slugify(title)
	for attempt := 1; attempt <= MaxAttempts; attempt++ {
		candidate := Candidate(base, attempt)
		taken, err := checker.SlugTaken(ctx, candidate)
		if err != nil {
			return "", fmt.Errorf("スラッグの使用状況の確認に失敗しました: %w", err)
		}
		if !taken {
			return candidate, nil
		}
	}

	return "", model.NewConflictError(model.ConflictSlugExhausted)
}

// Candidate はattempt回目の候補を返す。1回目はbaseそのもの。
// 接尾辞を付けても上限長に収まるようにbaseを切り詰める。
func Candidate(base string, attempt int) string {
	if attempt <= 1 {
		return base
	}
	suffix := "-" + strconv.Itoa(attempt)
	head := truncate(base, model.MaxSlugLength-len(suffix))
	if head == "" {
		head = Fallback
	}
	return head + suffix
}

// truncate はs（ASCIIのみ）を最大n文字に切り詰め、末尾のハイフンを除去する。
func truncate(s string, n int) string {
	if len(s) > n {
		s = s[:n]
	}
	return strings.TrimRight(s, "-")
}

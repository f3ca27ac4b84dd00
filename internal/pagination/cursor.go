// Package pagination はフィード走査用のカーソルとキーセットページネーションを提供する。
//
// 並び順は常に published_at DESC, id DESC。idは同時刻の投稿を区別するための
// タイブレークで、ページ間で投稿が重複・欠落しない全順序を保証する。
package pagination

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/changelog/internal/model"
)

const (
	// DefaultLimit はlimit未指定時の件数。
	DefaultLimit = 20
	// MaxLimit はサーバー側で強制する件数の上限。
	MaxLimit = 50
)

// ClampLimit は要求された件数を 1..MaxLimit に収める。0以下はDefaultLimitとする。
func ClampLimit(requested int) int {
	if requested <= 0 {
		return DefaultLimit
	}
	if requested > MaxLimit {
		return MaxLimit
	}
	return requested
}

type cursorPayload struct {
	PublishedAt string `json:"published_at"`
	ID          string `json:"id"`
}

// EncodeCursor はカーソルをbase64url(JSON)の不透明なトークンに変換する。
func EncodeCursor(c model.Cursor) string {
	data, _ := json.Marshal(cursorPayload{
		PublishedAt: c.PublishedAt.UTC().Format(time.RFC3339Nano),
		ID:          c.ID,
	})
	return base64.RawURLEncoding.EncodeToString(data)
}

// CursorAfter は投稿の位置を表すカーソルを返す。公開日時のない投稿はフィードに載らない。
func CursorAfter(p model.Post) (model.Cursor, bool) {
	if p.PublishedAt == nil {
		return model.Cursor{}, false
	}
	return model.Cursor{PublishedAt: *p.PublishedAt, ID: p.ID}, true
}

// DecodeCursor はトークンを厳密に解析する。
// 不正なエンコーディング・未知のフィールド・不正なid・解析できない日時は
// すべてValidationError("cursor is invalid")とし、先頭ページへのフォールバックはしない。
func DecodeCursor(token string) (model.Cursor, error) {
	invalid := model.NewValidationError("cursor", model.ValidationCursorInvalid)

	raw, err := base64.RawURLEncoding.Strict().DecodeString(token)
	if err != nil || len(raw) == 0 {
		return model.Cursor{}, invalid
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()
	var payload cursorPayload
	if err := dec.Decode(&payload); err != nil || dec.More() {
		return model.Cursor{}, invalid
	}

	publishedAt, err := time.Parse(time.RFC3339Nano, payload.PublishedAt)
	if err != nil {
		return model.Cursor{}, invalid
	}

	id, err := uuid.Parse(payload.ID)
	if err != nil || id.String() != payload.ID {
		return model.Cursor{}, invalid
	}

	return model.Cursor{PublishedAt: publishedAt.UTC(), ID: payload.ID}, nil
}

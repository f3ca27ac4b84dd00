// Package audit は投稿操作の追記専用監査ログを扱う。
//
// メタデータには本文を保持しうるキー（body, body_markdown, markdown, content など）を
// どの階層にも残さない。書き込み前にSanitizeで再帰的に除去し、
// データベース側のCHECK制約でも同じ条件を強制する。
package audit

import (
	"encoding"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
)

// forbiddenKeys は小文字化したキーで照合する禁止キーの集合。
var forbiddenKeys = map[string]struct{}{
	"body":          {},
	"body_markdown": {},
	"bodymarkdown":  {},
	"markdown":      {},
	"content":       {},
}

// IsForbiddenKey はキーが本文を保持しうる禁止キーかどうかを大文字小文字を区別せずに返す。
func IsForbiddenKey(key string) bool {
	_, ok := forbiddenKeys[strings.ToLower(key)]
	return ok
}

// Sanitize はメタデータから禁止キーを再帰的に取り除く。
// 除去の結果空になったオブジェクト・配列は保持せず省略する。
// 何も残らなければnilを返す。入力は変更しない。
func Sanitize(metadata map[string]any) map[string]any {
	out, ok := sanitizeObject(metadata)
	if !ok {
		return nil
	}
	return out
}

func sanitizeObject(in map[string]any) (map[string]any, bool) {
	out := make(map[string]any, len(in))
	for k, v := range in {
		if IsForbiddenKey(k) {
			continue
		}
		if cleaned, ok := sanitizeValue(v); ok {
			out[k] = cleaned
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

func sanitizeArray(in []any) ([]any, bool) {
	out := make([]any, 0, len(in))
	for _, v := range in {
		if cleaned, ok := sanitizeValue(v); ok {
			out = append(out, cleaned)
		}
	}
	if len(out) == 0 {
		return nil, false
	}
	return out, true
}

// sanitizeValue は値を再帰的にサニタイズする。falseは「省略すべき」を意味する。
//
// 文字列キーのマップとスライスは要素の型によらずreflectで辿る。構造体や
// json.Marshalerを実装する値は、保存時と同じJSON表現に変換してから辿るため、
// jsonタグで付けられたキー名も照合対象になる。
func sanitizeValue(v any) (any, bool) {
	switch val := v.(type) {
	case nil:
		return nil, false
	case map[string]any:
		return sanitizeObject(val)
	case []any:
		return sanitizeArray(val)
	case string, bool, json.Number,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return val, true
	case json.Marshaler, encoding.TextMarshaler:
		return sanitizeJSON(val)
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Map:
		if rv.IsNil() {
			return nil, false
		}
		if rv.Type().Key().Kind() != reflect.String {
			return sanitizeJSON(v)
		}
		m := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			m[iter.Key().String()] = iter.Value().Interface()
		}
		return sanitizeObject(m)
	case reflect.Slice:
		if rv.IsNil() {
			return nil, false
		}
		if rv.Type().Elem().Kind() == reflect.Uint8 {
			return sanitizeJSON(v)
		}
		return sanitizeArray(reflectElems(rv))
	case reflect.Array:
		return sanitizeArray(reflectElems(rv))
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return nil, false
		}
		return sanitizeValue(rv.Elem().Interface())
	case reflect.Struct:
		return sanitizeJSON(v)
	case reflect.String, reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return v, true
	default:
		// チャネル・関数・複素数はJSONにできない
		return nil, false
	}
}

func reflectElems(rv reflect.Value) []any {
	out := make([]any, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out
}

// sanitizeJSON は値をJSONの汎用表現に変換してからサニタイズする。
// JSONにできない値は省略する。
func sanitizeJSON(v any) (any, bool) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, false
	}
	var decoded any
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, false
	}
	return sanitizeValue(decoded)
}

// IsSafe はメタデータを保存時のJSON表現にしたとき、どの階層にも禁止キーが
// 含まれないかを返す。データベースのaudit_metadata_is_safeと同じ判定をする。
func IsSafe(metadata map[string]any) (bool, error) {
	if metadata == nil {
		return true, nil
	}
	data, err := json.Marshal(metadata)
	if err != nil {
		return false, fmt.Errorf("failed to marshal audit metadata: %w", err)
	}
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return false, fmt.Errorf("failed to decode audit metadata: %w", err)
	}
	return !hasForbiddenKey(doc), nil
}

func hasForbiddenKey(doc any) bool {
	switch val := doc.(type) {
	case map[string]any:
		for k, child := range val {
			if IsForbiddenKey(k) || hasForbiddenKey(child) {
				return true
			}
		}
	case []any:
		for _, child := range val {
			if hasForbiddenKey(child) {
				return true
			}
		}
	}
	return false
}

package middleware

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/hitoshi/changelog/internal/model"
)

// ErrorResponseBody はAPIエラーレスポンスの統一フォーマット。
// fieldは検証エラーの場合のみ含まれる。
type ErrorResponseBody struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
	Field    string `json:"field,omitempty"`
}

// statusByCode はエラーコードとHTTPステータスの対応表。
var statusByCode = map[string]int{
	model.ErrCodeValidation:   http.StatusBadRequest,
	model.ErrCodeUnauthorized: http.StatusUnauthorized,
	model.ErrCodeForbidden:    http.StatusForbidden,
	model.ErrCodePostNotFound: http.StatusNotFound,
	model.ErrCodeConflict:     http.StatusConflict,
	model.ErrCodeRateLimited:  http.StatusTooManyRequests,
	model.ErrCodeInternal:     http.StatusInternalServerError,
}

// StatusForCode はエラーコードに対応するHTTPステータスを返す。未知のコードは500とする。
func StatusForCode(code string) int {
	if status, ok := statusByCode[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// WriteAPIError はエラーコードから決まるステータスで統一フォーマットのエラーを書き込む。
func WriteAPIError(w http.ResponseWriter, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(StatusForCode(apiErr.Code))
	if err := json.NewEncoder(w).Encode(ErrorResponseBody{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
		Field:    apiErr.Field,
	}); err != nil {
		slog.Warn("failed to write error response", slog.String("error", err.Error()))
	}
}

// WriteInternalServerError は内部エラーを書き込む。原因はレスポンスに含めず、呼び出し元でログに残す。
func WriteInternalServerError(w http.ResponseWriter) {
	WriteAPIError(w, model.NewInternalAPIError())
}

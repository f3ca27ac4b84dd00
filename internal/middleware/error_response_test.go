package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/hitoshi/changelog/internal/model"
)

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) ErrorResponseBody {
	t.Helper()
	var body ErrorResponseBody
	if err := json.NewDecoder(w.Result().Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	return body
}

func TestStatusForCode(t *testing.T) {
	tests := []struct {
		code string
		want int
	}{
		{model.ErrCodeValidation, http.StatusBadRequest},
		{model.ErrCodeUnauthorized, http.StatusUnauthorized},
		{model.ErrCodeForbidden, http.StatusForbidden},
		{model.ErrCodePostNotFound, http.StatusNotFound},
		{model.ErrCodeConflict, http.StatusConflict},
		{model.ErrCodeRateLimited, http.StatusTooManyRequests},
		{model.ErrCodeInternal, http.StatusInternalServerError},
		{"SOMETHING_NEW", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			if got := StatusForCode(tt.code); got != tt.want {
				t.Errorf("StatusForCode(%q) = %d, want %d", tt.code, got, tt.want)
			}
		})
	}
}

func TestWriteAPIError_ValidationCarriesField(t *testing.T) {
	w := httptest.NewRecorder()

	WriteAPIError(w, model.NewValidationAPIError(model.NewValidationError("title", "the length must be no more than 180")))

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want %q", ct, "application/json")
	}

	body := decodeErrorBody(t, w)
	if body.Code != model.ErrCodeValidation {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeValidation)
	}
	if body.Field != "title" {
		t.Errorf("field = %q, want %q", body.Field, "title")
	}
	if body.Message != "title: the length must be no more than 180" {
		t.Errorf("message = %q", body.Message)
	}
	if body.Category != "validation" || body.Action == "" {
		t.Errorf("category/action = %q/%q", body.Category, body.Action)
	}
}

func TestWriteAPIError_ConflictOmitsField(t *testing.T) {
	w := httptest.NewRecorder()

	WriteAPIError(w, model.NewConflictAPIError(model.NewConflictError(model.ConflictRevisionMismatch)))

	if w.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", w.Code, http.StatusConflict)
	}

	var raw map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &raw); err != nil {
		t.Fatalf("failed to decode response body: %v", err)
	}
	if _, ok := raw["field"]; ok {
		t.Error("field should be omitted for non-validation errors")
	}
	if raw["message"] != model.ConflictRevisionMismatch {
		t.Errorf("message = %v, want %q", raw["message"], model.ConflictRevisionMismatch)
	}
}

// TestWriteInternalServerError は内部エラーの詳細がレスポンスに含まれないことを検証する。
func TestWriteInternalServerError(t *testing.T) {
	w := httptest.NewRecorder()

	WriteInternalServerError(w)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
	body := decodeErrorBody(t, w)
	if body.Code != model.ErrCodeInternal {
		t.Errorf("code = %q, want %q", body.Code, model.ErrCodeInternal)
	}
	if body.Category != "system" {
		t.Errorf("category = %q, want %q", body.Category, "system")
	}
}

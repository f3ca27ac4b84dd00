package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsForbiddenKey(t *testing.T) {
	for _, k := range []string{"body", "BODY", "body_markdown", "bodyMarkdown", "BodyMarkdown", "markdown", "Markdown", "content", "CONTENT"} {
		assert.True(t, IsForbiddenKey(k), k)
	}
	for _, k := range []string{"title", "changed_fields", "bodies", "content_type", "slug"} {
		assert.False(t, IsForbiddenKey(k), k)
	}
}

func TestSanitize_StripsTopLevelKeys(t *testing.T) {
	in := map[string]any{
		"body":           "secret",
		"bodyMarkdown":   "secret",
		"Content":        "secret",
		"changed_fields": []any{"title", "body_markdown"},
	}

	got := Sanitize(in)

	assert.Equal(t, map[string]any{
		"changed_fields": []any{"title", "body_markdown"},
	}, got)
	assert.Contains(t, in, "body", "input must not be mutated")
}

func TestSanitize_StripsNestedObjectsAndArrays(t *testing.T) {
	in := map[string]any{
		"request": map[string]any{
			"markdown": "# hi",
			"title":    "Hello",
			"draft": map[string]any{
				"BODY": "x",
			},
		},
		"history": []any{
			map[string]any{"content": "x"},
			map[string]any{"content": "y", "rev": 2},
			"plain",
		},
		"reason": "typo",
	}

	got := Sanitize(in)

	assert.False(t, hasForbiddenKey(got))
	assert.Equal(t, map[string]any{
		"request": map[string]any{"title": "Hello"},
		"history": []any{
			map[string]any{"rev": 2},
			"plain",
		},
		"reason": "typo",
	}, got)
}

func TestSanitize_CollapsesEmptyContainers(t *testing.T) {
	in := map[string]any{
		"only": map[string]any{"body": "x"},
		"list": []any{map[string]any{"markdown": "x"}},
	}
	assert.Nil(t, Sanitize(in))
}

func TestSanitize_NilAndEmptyInput(t *testing.T) {
	assert.Nil(t, Sanitize(nil))
	assert.Nil(t, Sanitize(map[string]any{}))
	assert.Nil(t, Sanitize(map[string]any{"k": nil}))
}

func TestSanitize_TypedContainers(t *testing.T) {
	in := map[string]any{
		"headers": map[string]string{"content": "x", "x-id": "1"},
		"items":   []map[string]any{{"body": "x"}, {"id": "a"}},
		"tags":    []string{"a"},
		"nested":  map[string]map[string]any{"x": {"content": "x", "rev": 3}},
		"rows":    []map[string]string{{"markdown": "x"}, {"slug": "launch"}},
		"mixed":   map[string][]any{"y": {map[string]any{"Body": "x", "ok": true}}},
		"matrix":  [][]map[string]any{{{"BodyMarkdown": "x"}}},
		"fixed":   [2]string{"a", "b"},
	}

	got := Sanitize(in)

	assert.False(t, hasForbiddenKey(got))
	assert.Equal(t, map[string]any{
		"headers": map[string]any{"x-id": "1"},
		"items":   []any{map[string]any{"id": "a"}},
		"tags":    []any{"a"},
		"nested":  map[string]any{"x": map[string]any{"rev": 3}},
		"rows":    []any{map[string]any{"slug": "launch"}},
		"mixed":   map[string]any{"y": []any{map[string]any{"ok": true}}},
		"fixed":   []any{"a", "b"},
	}, got)
}

type revisionNote struct {
	Body     string        `json:"body"`
	Markdown string
	Reason   string        `json:"reason"`
	Previous *revisionNote `json:"previous,omitempty"`
}

func TestSanitize_StructsUseJSONKeys(t *testing.T) {
	in := map[string]any{
		"note": revisionNote{
			Body:     "x",
			Markdown: "x",
			Reason:   "typo",
			Previous: &revisionNote{Body: "older", Reason: "initial"},
		},
		"ptr":   &revisionNote{Body: "x"},
		"notes": []revisionNote{{Body: "x", Reason: "a"}},
		"ids":   map[int]string{7: "x"},
	}

	got := Sanitize(in)

	require.NotNil(t, got)
	assert.False(t, hasForbiddenKey(got))
	assert.Equal(t, map[string]any{
		"reason":   "typo",
		"previous": map[string]any{"reason": "initial"},
	}, got["note"])
	assert.Equal(t, map[string]any{"reason": ""}, got["ptr"])
	assert.Equal(t, []any{map[string]any{"reason": "a"}}, got["notes"])
	assert.Equal(t, map[string]any{"7": "x"}, got["ids"])
}

func TestSanitize_DropsValuesJSONCannotEncode(t *testing.T) {
	got := Sanitize(map[string]any{
		"ch":   make(chan int),
		"fn":   func() {},
		"keep": "y",
	})
	assert.Equal(t, map[string]any{"keep": "y"}, got)
}

func TestIsSafe(t *testing.T) {
	tests := []struct {
		name     string
		metadata map[string]any
		want     bool
	}{
		{"nil", nil, true},
		{"plain", map[string]any{"changed_fields": []any{"body_markdown"}}, true},
		{"top level", map[string]any{"Body": "x"}, false},
		{"typed nesting", map[string]any{"rows": []map[string]string{{"markdown": "x"}}}, false},
		{"struct tag", map[string]any{"note": revisionNote{Reason: "r"}}, false},
		{"after sanitize", Sanitize(map[string]any{"note": revisionNote{Body: "x", Reason: "r"}}), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := IsSafe(tt.metadata)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestSanitize_UnrelatedSiblingsSurvive(t *testing.T) {
	keys := []string{"body", "body_markdown", "bodyMarkdown", "markdown", "content"}
	for _, k := range keys {
		t.Run(k, func(t *testing.T) {
			in := map[string]any{
				k:         "x",
				"sibling": 1,
				"deep":    map[string]any{k: "x", "keep": true},
				"arr":     []any{map[string]any{k: "x", "keep": "y"}},
			}
			got := Sanitize(in)
			assert.False(t, hasForbiddenKey(got))
			assert.Equal(t, 1, got["sibling"])
			assert.Equal(t, map[string]any{"keep": true}, got["deep"])
			assert.Equal(t, []any{map[string]any{"keep": "y"}}, got["arr"])
		})
	}
}

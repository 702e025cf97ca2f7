package jsonutil

import (
	"encoding/json"
	"testing"
)

func decode(t *testing.T, s string) any {
	t.Helper()
	var v any
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		t.Fatalf("unmarshal %q: %v", s, err)
	}
	return v
}

func TestFindValueByKeyNested(t *testing.T) {
	doc := decode(t, `{"a":{"b":[{"c":1},{"attachmentResumeId":"r-77"}]}}`)

	got, ok := FindValueByKey(doc, "attachmentResumeId")
	if !ok {
		t.Fatal("FindValueByKey(attachmentResumeId) not found")
	}
	if got != "r-77" {
		t.Errorf("FindValueByKey() = %v; want r-77", got)
	}
}

func TestFindValueByKeyMissing(t *testing.T) {
	doc := decode(t, `{"a":[1,2,{"b":null}]}`)

	if _, ok := FindValueByKey(doc, "nope"); ok {
		t.Error("FindValueByKey(nope) found; want miss")
	}
}

func TestFindValueByKeyPrefersDirectMember(t *testing.T) {
	doc := decode(t, `{"id":"top","inner":{"id":"deep"}}`)

	got, _ := FindValueByKey(doc, "id")
	if got != "top" {
		t.Errorf("FindValueByKey(id) = %v; want top", got)
	}
}

func TestFindAllValuesByKey(t *testing.T) {
	doc := decode(t, `{"x":{"id":1},"y":[{"id":2},{"z":{"id":3}}]}`)

	got := FindAllValuesByKey(doc, "id")
	if len(got) != 3 {
		t.Fatalf("FindAllValuesByKey() returned %d values; want 3", len(got))
	}
}

// nest wraps leaf in n levels of single-member objects.
func nest(leaf any, n int) any {
	for i := 0; i < n; i++ {
		leaf = map[string]any{"wrap": leaf}
	}
	return leaf
}

func TestSearchStopsAtDepthLimit(t *testing.T) {
	shallow := nest(map[string]any{"target": "found"}, maxSearchDepth-2)
	if got, ok := FindValueByKey(shallow, "target"); !ok || got != "found" {
		t.Errorf("FindValueByKey(shallow) = %v, %v; want found, true", got, ok)
	}

	deep := nest(map[string]any{"target": "found"}, maxSearchDepth+50)
	if _, ok := FindValueByKey(deep, "target"); ok {
		t.Error("FindValueByKey found a value past the depth limit")
	}
	if got := FindAllValuesByKey(deep, "target"); len(got) != 0 {
		t.Errorf("FindAllValuesByKey past the depth limit = %d values; want 0", len(got))
	}
}

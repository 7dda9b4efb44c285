package ai

import (
	"errors"
	"testing"
)

func TestFirstJSONArrayTolerantOfProse(t *testing.T) {
	text := "Here are your insights:\n[{\"title\":\"a\"},{\"title\":\"b\"}]\nHope that helps!"
	got, err := FirstJSONArray(text)
	if err != nil {
		t.Fatalf("FirstJSONArray: %v", err)
	}
	if got != `[{"title":"a"},{"title":"b"}]` {
		t.Fatalf("got %q", got)
	}
}

func TestFirstJSONArrayGreedy(t *testing.T) {
	// Nested arrays must not truncate at the first closing bracket.
	text := `[["x"],["y"]]`
	got, err := FirstJSONArray(text)
	if err != nil {
		t.Fatalf("FirstJSONArray: %v", err)
	}
	if got != text {
		t.Fatalf("got %q, want %q", got, text)
	}
}

func TestFirstJSONArrayMissingBrackets(t *testing.T) {
	if _, err := FirstJSONArray("no json here"); !errors.Is(err, ErrNotJSON) {
		t.Fatalf("err = %v, want ErrNotJSON", err)
	}
	if _, err := FirstJSONArray("] backwards ["); !errors.Is(err, ErrNotJSON) {
		t.Fatalf("err = %v, want ErrNotJSON", err)
	}
}

func TestFirstJSONObject(t *testing.T) {
	got, err := FirstJSONObject("result: {\"clusters\": []} done")
	if err != nil {
		t.Fatalf("FirstJSONObject: %v", err)
	}
	if got != `{"clusters": []}` {
		t.Fatalf("got %q", got)
	}
}

func TestDecodeArray(t *testing.T) {
	var items []struct {
		Title string `json:"title"`
	}
	if err := DecodeArray("prefix [{\"title\":\"t\"}] suffix", &items); err != nil {
		t.Fatalf("DecodeArray: %v", err)
	}
	if len(items) != 1 || items[0].Title != "t" {
		t.Fatalf("items = %+v", items)
	}
}

func TestDecodeArrayBadJSON(t *testing.T) {
	var items []any
	err := DecodeArray("[{broken]", &items)
	if !errors.Is(err, ErrNotJSON) {
		t.Fatalf("err = %v, want ErrNotJSON", err)
	}
}

func TestDecodeObjectBadJSON(t *testing.T) {
	var out map[string]any
	if err := DecodeObject("{nope}", &out); !errors.Is(err, ErrNotJSON) {
		t.Fatalf("err = %v, want ErrNotJSON", err)
	}
}

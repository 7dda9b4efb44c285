package ai

import (
	"encoding/json"
	"errors"
	"strings"
)

// ErrNotJSON reports that a model response did not contain the expected
// JSON structure. Retrying immediately on the same malformed output is
// unlikely to help, so callers surface it instead.
var ErrNotJSON = errors.New("response not in expected format")

// FirstJSONArray extracts the first top-level JSON array from free text
// by greedy bracket matching. Models are instructed to emit JSON only,
// but surrounding prose is tolerated.
func FirstJSONArray(text string) (string, error) {
	return firstBracketed(text, '[', ']')
}

// FirstJSONObject extracts the first top-level JSON object from free text.
func FirstJSONObject(text string) (string, error) {
	return firstBracketed(text, '{', '}')
}

func firstBracketed(text string, open, close byte) (string, error) {
	start := strings.IndexByte(text, open)
	end := strings.LastIndexByte(text, close)
	if start < 0 || end <= start {
		return "", ErrNotJSON
	}
	return text[start : end+1], nil
}

// DecodeArray extracts and unmarshals a JSON array response into out.
// Any JSON syntax failure is reported as ErrNotJSON so every call site
// shares one tolerance behavior.
func DecodeArray(text string, out any) error {
	raw, err := FirstJSONArray(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return errors.Join(ErrNotJSON, err)
	}
	return nil
}

// DecodeObject extracts and unmarshals a JSON object response into out.
func DecodeObject(text string, out any) error {
	raw, err := FirstJSONObject(text)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(raw), out); err != nil {
		return errors.Join(ErrNotJSON, err)
	}
	return nil
}

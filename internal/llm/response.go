package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/pigcharles06/remote-course-system/internal/placeholder"
	jsonschema "github.com/santhosh-tekuri/jsonschema/v5"
	"golang.org/x/text/unicode/norm"
)

const valuesSchemaJSON = `{
  "$schema": "http://json-schema.org/draft-07/schema#",
  "type": "object",
  "additionalProperties": {"type": ["string", "null", "number", "boolean"]}
}`

var valuesSchema = jsonschema.MustCompileString("mem://plandoc/values.schema.json", valuesSchemaJSON)

// ParseValues decodes a provider answer into values for the requested keys.
// The answer must be exactly one JSON object (optionally fenced as a markdown
// code block) whose values are scalars. Answer keys are matched to requested
// keys after whitespace and Unicode normalization; keys nobody asked for are
// dropped. Null becomes the empty string, numbers and booleans their literal
// text.
//
// When several answer keys normalize to the same requested key, the one equal
// to the requested key wins, otherwise the lexically smallest.
func ParseValues(raw string, keys []string) (map[string]string, error) {
	dec := json.NewDecoder(strings.NewReader(cleanJSONOutput(raw)))
	dec.UseNumber()

	var decoded any
	if err := dec.Decode(&decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("%w: trailing data after JSON value", ErrMalformedResponse)
	}
	if err := valuesSchema.Validate(decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	obj := decoded.(map[string]any)

	requested := make(map[string]string, len(keys))
	for _, k := range keys {
		requested[matchKey(k)] = k
	}

	answered := make([]string, 0, len(obj))
	for k := range obj {
		answered = append(answered, k)
	}
	sort.Strings(answered)

	values := make(map[string]string, len(obj))
	exact := make(map[string]bool, len(obj))
	for _, k := range answered {
		key, ok := requested[matchKey(k)]
		if !ok || exact[key] {
			continue
		}
		if _, seen := values[key]; seen && k != key {
			continue
		}
		values[key] = scalarText(obj[k])
		exact[key] = k == key
	}
	return values, nil
}

func scalarText(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case json.Number:
		return val.String()
	case bool:
		return strconv.FormatBool(val)
	}
	return ""
}

func matchKey(k string) string {
	return norm.NFC.String(placeholder.Normalize(k))
}

func cleanJSONOutput(text string) string {
	text = strings.TrimSpace(text)
	if strings.HasPrefix(text, "```json") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimSuffix(text, "```")
	} else if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```")
		text = strings.TrimSuffix(text, "```")
	}
	return strings.TrimSpace(text)
}

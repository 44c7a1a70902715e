package ai

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// ErrNoJSONObject indicates the model output did not contain a balanced JSON object.
var ErrNoJSONObject = errors.New("no json object in model response")

// ErrResponseSchema indicates the JSON object did not match the expected schema.
var ErrResponseSchema = errors.New("model response does not match schema")

// ExtractJSONObject returns the first balanced {...} block of raw. Braces inside
// JSON strings are ignored.
func ExtractJSONObject(raw string) (string, error) {
	start := strings.IndexByte(raw, '{')
	for start >= 0 {
		if end := matchBrace(raw, start); end > start {
			candidate := raw[start : end+1]
			if json.Valid([]byte(candidate)) {
				return candidate, nil
			}
		}

		next := strings.IndexByte(raw[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", ErrNoJSONObject
}

func matchBrace(raw string, start int) int {
	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(raw); i++ {
		c := raw[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// ResponseSchema validates decoded model output against a JSON schema.
type ResponseSchema struct {
	schema *jsonschema.Schema
}

// MustCompileSchema compiles an inline JSON schema document.
func MustCompileSchema(name, source string) *ResponseSchema {
	url := "mem://schemas/" + name
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource(url, strings.NewReader(source)); err != nil {
		panic(fmt.Sprintf("add schema %s: %v", name, err))
	}
	return &ResponseSchema{schema: compiler.MustCompile(url)}
}

// DecodeObject extracts the first JSON object from raw, validates it and
// unmarshals it into out.
func (s *ResponseSchema) DecodeObject(raw string, out interface{}) error {
	object, err := ExtractJSONObject(raw)
	if err != nil {
		return err
	}

	if s != nil {
		var doc interface{}
		decoder := json.NewDecoder(bytes.NewReader([]byte(object)))
		decoder.UseNumber()
		if err := decoder.Decode(&doc); err != nil {
			return fmt.Errorf("%w: %v", ErrNoJSONObject, err)
		}
		if err := s.schema.Validate(doc); err != nil {
			return fmt.Errorf("%w: %v", ErrResponseSchema, err)
		}
	}

	if err := json.Unmarshal([]byte(object), out); err != nil {
		return fmt.Errorf("%w: %v", ErrResponseSchema, err)
	}
	return nil
}

// Accepts reports whether raw decodes into an object matching the schema.
// It fits GenerateRequest.Cacheable.
func (s *ResponseSchema) Accepts(raw string) bool {
	var out map[string]interface{}
	return s.DecodeObject(raw, &out) == nil
}

package ai

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractJSONObjectSkipsProse(t *testing.T) {
	raw := "Sure! Here is the mapping:\n```json\n{\"mappings\": [{\"question_id\": \"1\", \"student_answer\": \"uses {braces} and \\\"quotes\\\"\"}]}\n```\nLet me know."

	object, err := ExtractJSONObject(raw)
	require.NoError(t, err)
	require.Equal(t, "{\"mappings\": [{\"question_id\": \"1\", \"student_answer\": \"uses {braces} and \\\"quotes\\\"\"}]}", object)
}

func TestExtractJSONObjectSkipsInvalidCandidate(t *testing.T) {
	object, err := ExtractJSONObject(`{not json} then {"grades": []}`)
	require.NoError(t, err)
	require.Equal(t, `{"grades": []}`, object)
}

func TestExtractJSONObjectReportsMissingObject(t *testing.T) {
	_, err := ExtractJSONObject("I could not grade this submission.")
	require.True(t, errors.Is(err, ErrNoJSONObject))

	_, err = ExtractJSONObject(`{"unterminated": [1, 2`)
	require.True(t, errors.Is(err, ErrNoJSONObject))
}

func TestResponseSchemaDecodeObject(t *testing.T) {
	schema := MustCompileSchema("test.json", `{
		"type": "object",
		"required": ["items"],
		"properties": {"items": {"type": "array", "items": {"type": "object", "required": ["id"]}}}
	}`)

	var out struct {
		Items []struct {
			ID string `json:"id"`
		} `json:"items"`
	}
	require.NoError(t, schema.DecodeObject(`result: {"items": [{"id": "a"}]}`, &out))
	require.Len(t, out.Items, 1)
	require.Equal(t, "a", out.Items[0].ID)

	err := schema.DecodeObject(`{"items": [{"name": "missing id"}]}`, &out)
	require.True(t, errors.Is(err, ErrResponseSchema))
}

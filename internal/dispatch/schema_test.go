package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildSchema_MergesCommonAndToolFields(t *testing.T) {
	schema := BuildSchema(map[string]FieldSpec{
		"prompt": String("the question to ask"),
	}, []string{"prompt"})

	props, ok := schema["properties"].(map[string]interface{})
	require.True(t, ok)

	for _, common := range []string{"model", "temperature", "thinking_mode", "continuation_id", "files", "images", "working_directory"} {
		assert.Contains(t, props, common)
	}
	assert.Contains(t, props, "prompt")
	assert.Equal(t, []string{"prompt"}, schema["required"])
	assert.Equal(t, false, schema["additionalProperties"])
}

func TestBuildSchema_NoRequiredOmitsKey(t *testing.T) {
	schema := BuildSchema(nil, nil)
	_, hasRequired := schema["required"]
	assert.False(t, hasRequired)
}

func TestFieldConstructors_ProduceExpectedJSONSchema(t *testing.T) {
	s := String("desc")
	assert.Equal(t, map[string]interface{}{"type": "string", "description": "desc"}, s.toJSONSchema())

	e := Enum("pick one", "a", "b")
	js := e.toJSONSchema()
	assert.Equal(t, "string", js["type"])
	assert.Equal(t, []string{"a", "b"}, js["enum"])

	arr := Array("list of things", String("item"))
	js = arr.toJSONSchema()
	assert.Equal(t, "array", js["type"])
	require.Contains(t, js, "items")
}

func TestCommonFields_ThinkingModeIsEnum(t *testing.T) {
	cf := CommonFields()
	tm, ok := cf["thinking_mode"]
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"minimal", "low", "medium", "high", "max"}, tm.Enum)
}

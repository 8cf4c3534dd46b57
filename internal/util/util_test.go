package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type weatherArgs struct {
	City  string `json:"city" jsonschema:"description=City name"`
	Units string `json:"units,omitempty" jsonschema:"enum=c,enum=f"`
	Days  *int   `json:"days,omitempty"`
}

func TestCreateSchema(t *testing.T) {
	schema := CreateSchema(weatherArgs{})
	assert.Equal(t, "object", schema["type"])

	props, ok := schema["properties"].(map[string]any)
	require.True(t, ok)
	assert.Contains(t, props, "city")
	assert.Contains(t, props, "units")
	assert.Contains(t, props, "days")

	city := props["city"].(map[string]any)
	assert.Equal(t, "string", city["type"])
	assert.Equal(t, "City name", city["description"])

	assert.Equal(t, []string{"city"}, RequiredFields(schema))
}

func TestCreateSchema_NonStruct(t *testing.T) {
	schema := CreateSchema(42)
	assert.Equal(t, map[string]any{"type": "object", "properties": map[string]any{}}, schema)
}

func TestValidateParameters(t *testing.T) {
	schema := CreateSchema(&weatherArgs{})

	assert.NoError(t, ValidateParameters(map[string]any{"city": "Tokyo"}, schema))
	assert.NoError(t, ValidateParameters(map[string]any{"city": "Tokyo", "extra": true}, schema))

	err := ValidateParameters(map[string]any{}, schema)
	var vErr *ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "city", vErr.Field)

	err = ValidateParameters(map[string]any{"city": 1}, schema)
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Message, "expected type string")

	err = ValidateParameters(map[string]any{"city": "Tokyo", "units": "k"}, schema)
	require.ErrorAs(t, err, &vErr)
	assert.Equal(t, "units", vErr.Field)
}

func TestValidateParameters_IntegerFromJSON(t *testing.T) {
	schema := map[string]any{
		"properties": map[string]any{"max": map[string]any{"type": "integer"}},
		"required":   []string{"max"},
	}
	assert.NoError(t, ValidateParameters(map[string]any{"max": 10.0}, schema))
	assert.Error(t, ValidateParameters(map[string]any{"max": 10.5}, schema))
}

func TestTemplate(t *testing.T) {
	tmpl, err := ParseTemplate("i", "Reply in {{ .Style | upper }} style.")
	require.NoError(t, err)

	out, err := RenderTemplate(tmpl, "", map[string]any{"Style": "pirate"})
	require.NoError(t, err)
	assert.Equal(t, "Reply in PIRATE style.", out)

	plain, err := ParseTemplate("p", "no markers")
	require.NoError(t, err)
	assert.Nil(t, plain)

	out, err = RenderTemplate(plain, "no markers", nil)
	require.NoError(t, err)
	assert.Equal(t, "no markers", out)
}

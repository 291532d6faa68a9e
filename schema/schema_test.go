package schema_test

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/effective-security/toolgate/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type exportRequest struct {
	Name   string   `json:"name" jsonschema:"title=Name,description=Name of the dataset to export"`
	Format string   `json:"format,omitempty" jsonschema:"title=Format,description=Export format,default=json,enum=json,enum=csv"`
	Fields []string `json:"fields,omitempty" jsonschema:"title=Fields,description=Fields to include"`
}

func Test_Schema(t *testing.T) {
	s, err := schema.New(reflect.TypeOf(exportRequest{}))
	require.NoError(t, err)
	require.NotNil(t, s.Parameters)

	bs, err := json.Marshal(s.Parameters)
	require.NoError(t, err)

	js := string(bs)
	assert.Contains(t, js, `"type":"object"`)
	assert.Contains(t, js, `"required":["name"]`)
	assert.Contains(t, js, `"description":"Name of the dataset to export"`)
	assert.Contains(t, js, `"enum":["json","csv"]`)
	assert.NotContains(t, js, `$ref`)

	// cached per type
	s2, err := schema.New(reflect.TypeOf(exportRequest{}))
	require.NoError(t, err)
	assert.Same(t, s, s2)
}

type nestedFilter struct {
	Field string `json:"field" jsonschema:"description=Field to filter on"`
	Value string `json:"value" jsonschema:"description=Value to match"`
}

type searchRequest struct {
	Query   string         `json:"query" jsonschema:"description=Search query"`
	Filters []nestedFilter `json:"filters,omitempty" jsonschema:"description=Optional filters"`
}

func Test_SchemaNested(t *testing.T) {
	s, err := schema.New(reflect.TypeOf(searchRequest{}))
	require.NoError(t, err)

	bs, err := json.Marshal(s.Parameters)
	require.NoError(t, err)

	js := string(bs)
	assert.Contains(t, js, `"description":"Field to filter on"`)
	assert.NotContains(t, js, `$ref`)
}

package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidate_Schema(t *testing.T) {
	out, err := execute(t, "validate", "testdata/shop.cue")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ Schema valid: 2 entities")
	assert.Contains(t, out, "Category key([Id]): 2 fields, 1 relations")
	assert.Contains(t, out, "Product key([Id]): 4 fields, 1 relations")
}

func TestValidate_SchemaJSON(t *testing.T) {
	out, err := execute(t, "--format", "json", "validate", "testdata/shop.cue")
	require.NoError(t, err)

	var resp struct {
		Status string           `json:"status"`
		Data   ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.True(t, resp.Data.Valid)
	require.Len(t, resp.Data.Entities, 2)

	product := resp.Data.Entities[1]
	assert.Equal(t, "Product", product.Name)
	require.Len(t, product.Relations, 1)
	assert.Equal(t, RelationSummary{
		Name:       "Category",
		Target:     "Category",
		ForeignKey: []string{"CategoryId"},
		Inverse:    "Products",
	}, product.Relations[0])

	var id FieldSummary
	for _, f := range product.Fields {
		if f.Name == "Id" {
			id = f
		}
	}
	assert.Equal(t, FieldSummary{Name: "Id", Kind: "int", Generated: true}, id)
}

func TestValidate_Plans(t *testing.T) {
	out, err := execute(t, "--format", "json", "validate", "testdata/shop.cue", "testdata/plans.yaml")
	require.Error(t, err, "the broken plan names an unknown member")
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Data ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.False(t, resp.Data.Valid)
	require.Len(t, resp.Data.Plans, 5)

	failed := map[string]string{}
	for _, p := range resp.Data.Plans {
		if p.Error != "" {
			failed[p.Plan] = p.Error
		}
	}
	require.Len(t, failed, 1)
	assert.Contains(t, failed["broken"], "Colour")
}

func TestValidate_SchemaFromFlag(t *testing.T) {
	out, err := execute(t, "--schema", "testdata/shop.cue", "validate")
	require.NoError(t, err)
	assert.Contains(t, out, "2 entities")
}

func TestValidate_Errors(t *testing.T) {
	dir := t.TempDir()
	bad := filepath.Join(dir, "bad.cue")
	require.NoError(t, os.WriteFile(bad, []byte("entities: {\n\tA: {fields: {Id: \"complex\"}}\n}\n"), 0o644))
	noEntities := filepath.Join(dir, "empty.cue")
	require.NoError(t, os.WriteFile(noEntities, []byte("other: 1\n"), 0o644))

	tests := []struct {
		name string
		args []string
		exit int
		code string
	}{
		{"no schema", []string{"validate"}, ExitCommandError, ErrCodeNoSchema},
		{"missing schema", []string{"validate", filepath.Join(dir, "none.cue")}, ExitCommandError, ErrCodeNotFound},
		{"bad field", []string{"validate", bad}, ExitFailure, ErrCodeSchema},
		{"no entities", []string{"validate", noEntities}, ExitFailure, ErrCodeSchema},
		{"missing plan file", []string{"validate", "testdata/shop.cue", filepath.Join(dir, "p.yaml")}, ExitCommandError, ErrCodeNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out, err := execute(t, append([]string{"--format", "json"}, tt.args...)...)
			require.Error(t, err)
			assert.Equal(t, tt.exit, GetExitCode(err))

			var resp CLIResponse
			require.NoError(t, json.Unmarshal([]byte(out), &resp))
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

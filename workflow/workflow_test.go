package workflow

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleSteps = `
steps:
  - name: relevant
    system: You are a careful reader.
    prompts:
      - Does this paper study [topic]? Answer yes or no.
  - name: sample_size
    system: You extract facts.
    prompts:
      - How many participants were enrolled? [paper]
      - "#expr trimSpace([reply])"
    skip_prompt: Was your last answer a number? [reply]
    skip_test: is_not_number
    data_out: true
  - prompts: []
`

func writeSteps(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "steps.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad(t *testing.T) {
	steps, err := Load(writeSteps(t, sampleSteps))
	require.NoError(t, err)
	require.Len(t, steps, 3)

	assert.Equal(t, "relevant", steps[0].Name)
	assert.False(t, steps[0].DataOut)

	assert.Equal(t, "sample_size", steps[1].Name)
	assert.Len(t, steps[1].Prompts, 2)
	assert.Equal(t, "is_not_number", steps[1].SkipTest)
	assert.True(t, steps[1].DataOut)

	// Replay step: no name, no prompts.
	assert.Empty(t, steps[2].Name)
	assert.Empty(t, steps[2].Prompts)
}

func TestLoadJSONSubset(t *testing.T) {
	steps, err := Load(writeSteps(t,
		`{"steps": [{"name": "q", "prompts": ["ask [paper]"], "data_out": true}]}`))
	require.NoError(t, err)
	require.Len(t, steps, 1)
	assert.Equal(t, "q", steps[0].Name)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load("/no/such/steps.yaml")
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		steps   []Step
		wantErr bool
	}{
		{
			name:    "empty workflow",
			steps:   nil,
			wantErr: true,
		},
		{
			name: "skip_test without skip_prompt",
			steps: []Step{
				{Name: "a", Prompts: []string{"p"}, SkipTest: "is_yes"},
			},
			wantErr: true,
		},
		{
			name: "data_out without name",
			steps: []Step{
				{Prompts: []string{"p"}, DataOut: true},
			},
			wantErr: true,
		},
		{
			name: "valid",
			steps: []Step{
				{Name: "a", Prompts: []string{"p"}},
			},
			wantErr: false,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Validate(tt.steps)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDefinition = `
job_id: "nightly-etl"
type:   "etl"
created_by: "ops"
config: {
	source: "s3://bucket/raw"
}
variables: {
	batch_size: 500
}
steps: [
	{
		step_id: "extract"
		name:    "Extract rows"
		command: "etl extract"
		order:   1
	},
	{
		step_id: "transform"
		name:    "Transform rows"
		command: "etl transform"
		order:   2
		dependencies: ["extract"]
		max_retries: 2
		environment: {
			ETL_MODE: "strict"
		}
	},
]
`

func writeDefinition(t *testing.T, contents string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "job.cue")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0o644))
	return path
}

func TestLoadJobDefinition_Valid(t *testing.T) {
	def, err := LoadJobDefinition(writeDefinition(t, validDefinition))
	require.NoError(t, err)

	assert.Equal(t, "nightly-etl", def.JobID)
	assert.Equal(t, "etl", def.JobType)
	assert.Equal(t, "ops", def.CreatedBy)
	assert.Equal(t, "s3://bucket/raw", def.Config["source"])
	require.Len(t, def.Steps, 2)

	extract := def.Steps[0]
	assert.Equal(t, "extract", extract.StepID)
	assert.Equal(t, 1, extract.Order)
	assert.Equal(t, "command", extract.Type, "type defaults to command")
	assert.Equal(t, 0, extract.MaxRetries)

	transform := def.Steps[1]
	assert.Equal(t, []string{"extract"}, transform.Dependencies)
	assert.Equal(t, 2, transform.MaxRetries)
	assert.Equal(t, "strict", transform.Environment["ETL_MODE"])
}

func TestLoadJobDefinition_DefaultsApplied(t *testing.T) {
	def, err := LoadJobDefinition(writeDefinition(t, `
job_id: "minimal"
steps: []
`))
	require.NoError(t, err)
	assert.Equal(t, "batch", def.JobType, "job type defaults to batch")
	assert.Empty(t, def.Steps)
}

func TestLoadJobDefinition_MissingJobID(t *testing.T) {
	_, err := LoadJobDefinition(writeDefinition(t, `
type: "etl"
steps: []
`))
	require.Error(t, err)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeInvalid, le.Code)
}

func TestLoadJobDefinition_EmptyJobIDRejected(t *testing.T) {
	_, err := LoadJobDefinition(writeDefinition(t, `
job_id: ""
steps: []
`))
	require.Error(t, err)
}

func TestLoadJobDefinition_ParseError(t *testing.T) {
	_, err := LoadJobDefinition(writeDefinition(t, `job_id: "x" steps: [`))
	require.Error(t, err)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeParseFailed, le.Code)
}

func TestLoadJobDefinition_MissingFile(t *testing.T) {
	_, err := LoadJobDefinition(filepath.Join(t.TempDir(), "absent.cue"))
	require.Error(t, err)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeNotFound, le.Code)
}

func TestLoadJobDefinition_DuplicateStepID(t *testing.T) {
	_, err := LoadJobDefinition(writeDefinition(t, `
job_id: "dup"
steps: [
	{step_id: "a", name: "first", order: 1},
	{step_id: "a", name: "second", order: 2},
]
`))
	require.Error(t, err)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeDuplicateStep, le.Code)
}

func TestLoadJobDefinition_UnknownDependency(t *testing.T) {
	_, err := LoadJobDefinition(writeDefinition(t, `
job_id: "dangling"
steps: [
	{step_id: "a", name: "first", order: 1, dependencies: ["ghost"]},
]
`))
	require.Error(t, err)
	var le *LoadError
	require.ErrorAs(t, err, &le)
	assert.Equal(t, ErrCodeUnknownDep, le.Code)
}

func TestLoadJobDefinition_RejectsUnknownFields(t *testing.T) {
	_, err := LoadJobDefinition(writeDefinition(t, `
job_id: "typo"
stepz: []
steps: []
`))
	require.Error(t, err)
}

package cli

import (
	"fmt"
	"os"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
)

// jobSchema constrains job definition files. Definitions are CUE so
// authors get defaults and type checking before anything touches the
// database.
const jobSchema = `
#Step: {
	step_id: string & !=""
	name:    string & !=""
	type:    string | *"command"
	command: string | *""
	working_directory?: string
	environment?: {[string]: string}
	order:            int & >=0
	dependencies?: [...string]
	max_retries:     int & >=0 | *0
	timeout_seconds: int & >=0 | *0
	metadata?: {...}
}

#Job: {
	job_id: string & !=""
	type:   string | *"batch"
	created_by: string | *""
	config?: {...}
	variables?: {...}
	metadata?: {...}
	steps: [...#Step]
}
`

// JobDefinition is a decoded, validated job definition file.
type JobDefinition struct {
	JobID     string           `json:"job_id"`
	JobType   string           `json:"type"`
	CreatedBy string           `json:"created_by"`
	Config    map[string]any   `json:"config,omitempty"`
	Variables map[string]any   `json:"variables,omitempty"`
	Metadata  map[string]any   `json:"metadata,omitempty"`
	Steps     []StepDefinition `json:"steps"`
}

// StepDefinition is one step inside a JobDefinition.
type StepDefinition struct {
	StepID           string            `json:"step_id"`
	Name             string            `json:"name"`
	Type             string            `json:"type"`
	Command          string            `json:"command"`
	WorkingDirectory string            `json:"working_directory,omitempty"`
	Environment      map[string]string `json:"environment,omitempty"`
	Order            int               `json:"order"`
	Dependencies     []string          `json:"dependencies,omitempty"`
	MaxRetries       int               `json:"max_retries"`
	TimeoutSeconds   int               `json:"timeout_seconds"`
	Metadata         map[string]any    `json:"metadata,omitempty"`
}

// LoadError represents an error that occurred during definition loading.
type LoadError struct {
	Code    string
	Message string
}

func (e *LoadError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error code constants - unified across all CLI commands.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeNotFound    = "E002" // Path not found / unreadable
	ErrCodeParseFailed = "E003" // CUE parse failed
	ErrCodeInvalid     = "E004" // Definition does not satisfy the schema
	ErrCodeDatabase    = "E005" // Database error
	ErrCodeNoJob       = "E006" // Job not found

	// Definition semantic errors
	ErrCodeDuplicateStep = "E101" // Duplicate step_id
	ErrCodeUnknownDep    = "E102" // Dependency on an undefined step
)

// LoadJobDefinition reads a CUE job definition file, unifies it with
// the schema, and decodes it. Semantic checks the schema cannot
// express (unique step IDs, dependency references) run afterwards.
func LoadJobDefinition(path string) (*JobDefinition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("reading definition file: %v", err)}
	}

	ctx := cuecontext.New()
	schema := ctx.CompileString(jobSchema)
	if err := schema.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeGeneric, Message: fmt.Sprintf("compiling schema: %v", err)}
	}

	file := ctx.CompileBytes(data, cue.Filename(path))
	if err := file.Err(); err != nil {
		return nil, &LoadError{Code: ErrCodeParseFailed, Message: fmt.Sprintf("parsing %s: %v", path, err)}
	}

	unified := schema.LookupPath(cue.ParsePath("#Job")).Unify(file)
	if err := unified.Validate(cue.Concrete(true), cue.Final()); err != nil {
		return nil, &LoadError{Code: ErrCodeInvalid, Message: fmt.Sprintf("invalid definition %s: %v", path, err)}
	}

	var def JobDefinition
	if err := unified.Decode(&def); err != nil {
		return nil, &LoadError{Code: ErrCodeInvalid, Message: fmt.Sprintf("decoding %s: %v", path, err)}
	}

	if err := validateDefinition(&def); err != nil {
		return nil, err
	}
	return &def, nil
}

// validateDefinition enforces cross-step constraints.
func validateDefinition(def *JobDefinition) error {
	seen := make(map[string]bool, len(def.Steps))
	for _, s := range def.Steps {
		if seen[s.StepID] {
			return &LoadError{Code: ErrCodeDuplicateStep, Message: fmt.Sprintf("duplicate step_id %q", s.StepID)}
		}
		seen[s.StepID] = true
	}
	for _, s := range def.Steps {
		for _, dep := range s.Dependencies {
			if !seen[dep] {
				return &LoadError{Code: ErrCodeUnknownDep, Message: fmt.Sprintf("step %q depends on undefined step %q", s.StepID, dep)}
			}
		}
	}
	return nil
}

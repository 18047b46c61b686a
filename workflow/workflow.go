// Package workflow defines the configured step sequence a document passes
// through. Steps are immutable once loaded.
package workflow

import (
	"os"

	"gopkg.in/yaml.v3"

	"github.com/docsieve/docsieve/errors"
)

// Step is one configured stage of the extraction pipeline.
type Step struct {
	// Name stores the step result in the variable store and, when
	// DataOut is set, names the output column. An empty name with no
	// prompts replays the last reply without producing new output.
	Name string `yaml:"name" json:"name"`

	// System is the system text sent with every prompt of this step.
	System string `yaml:"system" json:"system"`

	// Prompts are the step's prompt fragments, executed in order. Each
	// may carry a leading marker: "#expr " for an embedded expression,
	// "#!" for a script invocation, "#" for literal passthrough;
	// unmarked fragments are substituted and sent to the backend.
	Prompts []string `yaml:"prompts" json:"prompts"`

	// SkipPrompt is resolved under the precheck system text when
	// SkipTest is set.
	SkipPrompt string `yaml:"skip_prompt" json:"skip_prompt"`

	// SkipTest is a predicate name plus optional parameter, e.g.
	// "is_yes" or "is_greater_than 10". When the predicate holds on the
	// resolved SkipPrompt answer, the step is skipped.
	SkipTest string `yaml:"skip_test" json:"skip_test"`

	// DataOut marks the step result externally visible: written to the
	// output accumulator under Name.
	DataOut bool `yaml:"data_out" json:"data_out"`
}

// stepsFile is the on-disk shape of a workflow definition.
type stepsFile struct {
	Steps []Step `yaml:"steps" json:"steps"`
}

// Load reads and validates a workflow definition from a YAML (or JSON,
// which YAML subsumes) file.
func Load(path string) ([]Step, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "cannot read workflow file %s", path)
	}

	var file stepsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, errors.Wrapf(err, "cannot parse workflow file %s", path)
	}
	if err := Validate(file.Steps); err != nil {
		return nil, errors.Wrapf(err, "invalid workflow file %s", path)
	}
	return file.Steps, nil
}

// Validate checks structural invariants of a step sequence.
func Validate(steps []Step) error {
	if len(steps) == 0 {
		return errors.New("workflow defines no steps")
	}
	for i, step := range steps {
		if step.SkipTest != "" && step.SkipPrompt == "" {
			return errors.Newf("step %d (%q) declares skip_test without skip_prompt", i, step.Name)
		}
		if step.DataOut && step.Name == "" {
			return errors.Newf("step %d declares data_out without a name", i)
		}
	}
	return nil
}

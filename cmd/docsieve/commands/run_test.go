package commands

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/docsieve/docsieve/conf"
)

func TestExternalVars(t *testing.T) {
	cfg := conf.NewStore(map[string]conf.Value{
		"[animal]":        conf.Scalar("dog"),
		"[study design]":  conf.Scalar("cohort"),
		"model":           conf.Scalar("claude"),
		"precheck_system": conf.Scalar("custom gate text"),
		"[]":              conf.Scalar("degenerate"),
	}, "/tmp")

	vars := externalVars(cfg)

	// Only bracket-named entries become variables, brackets stripped.
	assert.Equal(t, map[string]string{
		"animal":       "dog",
		"study design": "cohort",
	}, vars)
}

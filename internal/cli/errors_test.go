package cli

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pthm/relmodel/schema"
)

func TestExitCode(t *testing.T) {
	cause := errors.New("boom")

	assert.Equal(t, ExitSuccess, ExitCode(nil))
	assert.Equal(t, ExitGeneral, ExitCode(cause))
	assert.Equal(t, ExitConfig, ExitCode(ConfigError("loading config", cause)))
	assert.Equal(t, ExitSchemaParse, ExitCode(SchemaParseError("reading input", cause)))
	assert.Equal(t, ExitBuild, ExitCode(BuildError("compiling", cause)))
	assert.Equal(t, ExitNondeterministic, ExitCode(NondeterministicError("manifests differ")))
	assert.Equal(t, ExitBuild, ExitCode(fmt.Errorf("outer: %w", BuildError("compiling", cause))))
}

func TestExitError_Message(t *testing.T) {
	err := BuildError("compiling Pgsql", errors.New("boom"))
	assert.Equal(t, "compiling Pgsql: boom", err.Error())
	assert.ErrorIs(t, err, err.Err)

	assert.Equal(t, "manifests differ", NondeterministicError("manifests differ").Error())
}

func TestClassifyBuildError(t *testing.T) {
	invalidSet := fmt.Errorf("%w: no projects", schema.ErrInvalidEffectiveSchema)
	invalidResource := fmt.Errorf("%w: resource 'Ed-Fi:School': missing jsonSchemaForInsert", schema.ErrInvalidResourceSchema)

	assert.Equal(t, ExitSchemaParse, ClassifyBuildError("compiling", invalidSet).Code)
	assert.Equal(t, ExitBuild, ClassifyBuildError("compiling", invalidResource).Code)
}

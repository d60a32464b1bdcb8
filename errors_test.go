package relmodel_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/pthm/relmodel"
)

func TestErrorHelpers(t *testing.T) {
	cases := []struct {
		name     string
		sentinel error
		is       func(error) bool
	}{
		{"IsInvalidEffectiveSchemaErr", relmodel.ErrInvalidEffectiveSchema, relmodel.IsInvalidEffectiveSchemaErr},
		{"IsInvalidResourceSchemaErr", relmodel.ErrInvalidResourceSchema, relmodel.IsInvalidResourceSchemaErr},
		{"IsInvalidJsonPathErr", relmodel.ErrInvalidJsonPath, relmodel.IsInvalidJsonPathErr},
		{"IsIdentifierCollisionErr", relmodel.ErrIdentifierCollision, relmodel.IsIdentifierCollisionErr},
		{"IsInvalidModelErr", relmodel.ErrInvalidModel, relmodel.IsInvalidModelErr},
		{"IsDuplicatePassOrderErr", relmodel.ErrDuplicatePassOrder, relmodel.IsDuplicatePassOrderErr},
		{"IsUnknownDialectErr", relmodel.ErrUnknownDialect, relmodel.IsUnknownDialectErr},
		{"IsDialectMismatchErr", relmodel.ErrDialectMismatch, relmodel.IsDialectMismatchErr},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.True(t, tc.is(fmt.Errorf("wrapped: %w", tc.sentinel)))
			assert.False(t, tc.is(errors.New("other error")))
		})
	}
}

func TestSentinelsAreDistinct(t *testing.T) {
	sentinels := []error{
		relmodel.ErrInvalidEffectiveSchema,
		relmodel.ErrInvalidResourceSchema,
		relmodel.ErrInvalidJsonPath,
		relmodel.ErrIdentifierCollision,
		relmodel.ErrInvalidModel,
		relmodel.ErrDuplicatePassOrder,
		relmodel.ErrUnknownDialect,
		relmodel.ErrDialectMismatch,
	}
	for i, a := range sentinels {
		for j, b := range sentinels {
			if i != j {
				assert.NotErrorIs(t, a, b)
			}
		}
	}
}

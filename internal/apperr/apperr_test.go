package apperr

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("consume key: %w", Conflict("key %s used by another student", "ABCD1234"))

	assert.True(t, errors.Is(err, ErrConflict))
	assert.False(t, errors.Is(err, ErrNotFound))
	assert.Equal(t, KindConflict, KindOf(err))
	assert.Equal(t, "consume key: key ABCD1234 used by another student", err.Error())
	assert.Equal(t, "key ABCD1234 used by another student", MessageOf(err))
}

func TestValidationCarriesFields(t *testing.T) {
	err := fmt.Errorf("save highlights: %w", Validation(map[string]string{"highlights[0].end": "must be >= start"}))

	assert.True(t, errors.Is(err, ErrValidation))
	assert.Equal(t, "must be >= start", FieldsOf(err)["highlights[0].end"])
}

func TestKindOfPlainError(t *testing.T) {
	assert.Equal(t, Kind(""), KindOf(errors.New("boom")))
	assert.Nil(t, FieldsOf(errors.New("boom")))
}

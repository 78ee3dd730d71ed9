package utils

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sampleRequest struct {
	Prompt  string   `validate:"required"`
	MaxCost *float64 `validate:"omitempty,gte=0"`
}

func TestValidateStruct(t *testing.T) {
	t.Run("valid struct", func(t *testing.T) {
		err := ValidateStruct(&sampleRequest{Prompt: "hello"})
		assert.NoError(t, err)
	})

	t.Run("missing required field", func(t *testing.T) {
		err := ValidateStruct(&sampleRequest{})
		require.Error(t, err)
		assert.True(t, IsValidationError(err))

		fields := GetValidationFields(err)
		assert.Contains(t, fields["Prompt"], "required")
	})

	t.Run("gte violation", func(t *testing.T) {
		cost := -0.5
		err := ValidateStruct(&sampleRequest{Prompt: "hello", MaxCost: &cost})
		require.Error(t, err)

		fields := GetValidationFields(err)
		assert.Contains(t, fields["MaxCost"], "greater than or equal")
	})

	t.Run("nil optional field passes", func(t *testing.T) {
		err := ValidateStruct(&sampleRequest{Prompt: "hello", MaxCost: nil})
		assert.NoError(t, err)
	})
}

func TestIsValidationError(t *testing.T) {
	assert.False(t, IsValidationError(errors.New("plain error")))
	assert.False(t, IsValidationError(nil))

	err := ValidateStruct(&sampleRequest{})
	assert.True(t, IsValidationError(err))
}

func TestGetValidationFields(t *testing.T) {
	assert.Nil(t, GetValidationFields(errors.New("plain error")))

	err := ValidateStruct(&sampleRequest{})
	fields := GetValidationFields(err)
	require.NotNil(t, fields)
	assert.Len(t, fields, 1)
}

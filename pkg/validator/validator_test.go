package validator

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type signupPayload struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,email"`
	Age      int    `json:"age" validate:"gte=18"`
}

func TestValidateStructSuccess(t *testing.T) {
	err := ValidateStruct(signupPayload{
		Username: "alice",
		Email:    "alice@example.com",
		Age:      20,
	})
	require.NoError(t, err)
}

func TestValidateStructReportsEachFailure(t *testing.T) {
	err := ValidateStruct(signupPayload{Email: "invalid", Age: 10})
	require.Error(t, err)

	vErrs, ok := err.(ValidationErrors)
	require.True(t, ok, "expected ValidationErrors, got %T", err)
	require.Len(t, vErrs, 3)

	fields := make([]string, 0, len(vErrs))
	for _, v := range vErrs {
		fields = append(fields, v.Field)
	}
	assert.Contains(t, fields, "username")
	assert.Contains(t, fields, "email")
	assert.Contains(t, fields, "age")

	assert.Contains(t, err.Error(), "email failed on email")
	assert.Contains(t, err.Error(), "age failed on gte=18")
}

func TestFieldNamesFallBackWithoutJSONTags(t *testing.T) {
	type untagged struct {
		FirstName string `validate:"required"`
	}

	err := ValidateStruct(untagged{})
	vErrs, ok := err.(ValidationErrors)
	require.True(t, ok)
	require.Len(t, vErrs, 1)
	assert.Equal(t, "FirstName", vErrs[0].Field)
}

func TestRegisterValidation(t *testing.T) {
	err := RegisterValidation("warden", func(fl validator.FieldLevel) bool {
		return fl.Field().String() == "warden"
	})
	require.NoError(t, err)

	type custom struct {
		Value string `validate:"warden"`
	}

	assert.NoError(t, ValidateStruct(custom{Value: "warden"}))
	assert.Error(t, ValidateStruct(custom{Value: "other"}))
}

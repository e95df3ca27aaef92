package validator

import (
	"testing"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/require"
)

type registerPayload struct {
	Username string `json:"username" validate:"required"`
	Email    string `json:"email" validate:"required,address"`
	Password string `json:"password" validate:"required,min=8"`
}

func TestValidateStructSuccess(t *testing.T) {
	payload := registerPayload{
		Username: "maria",
		Email:    "maria@saude.ma.gov.br",
		Password: "Senha@123",
	}
	require.NoError(t, ValidateStruct(payload))
}

func TestValidateStructFailures(t *testing.T) {
	err := ValidateStruct(registerPayload{Email: "sem-arroba"})
	require.Error(t, err)

	vErrs, ok := err.(ValidationErrors)
	require.True(t, ok, "expected ValidationErrors, got %T", err)
	require.Len(t, vErrs, 3)
	require.True(t, vErrs.HasTag("required"))
	require.True(t, vErrs.HasTag("address"))
	require.False(t, vErrs.HasTag("min"))

	fields := map[string]bool{}
	for _, v := range vErrs {
		fields[v.Field] = true
	}
	require.True(t, fields["email"], "json tag names are used for fields")
}

func TestIsEmailAddress(t *testing.T) {
	require.True(t, IsEmailAddress("a@b.co"))
	require.True(t, IsEmailAddress(" joao@example.com "))
	require.False(t, IsEmailAddress("joao@example"))
	require.False(t, IsEmailAddress("joao.example.com"))
}

func TestRegisterValidation(t *testing.T) {
	err := RegisterValidation("uf21", func(fl validator.FieldLevel) bool {
		return fl.Field().String() == "MA"
	})
	require.NoError(t, err)

	type state struct {
		UF string `validate:"uf21"`
	}

	require.NoError(t, ValidateStruct(state{UF: "MA"}))
	require.Error(t, ValidateStruct(state{UF: "PI"}))
}

func TestValidationErrorsFields(t *testing.T) {
	err := ValidateStruct(registerPayload{Username: "ana", Email: "ana@example.com", Password: "curta"})
	vErrs, ok := err.(ValidationErrors)
	require.True(t, ok)
	require.Equal(t, map[string]string{"password": "min=8"}, vErrs.Fields())
	require.Equal(t, "password failed on min=8", vErrs.Error())
	require.Nil(t, ValidationErrors(nil).Fields())
}

func TestNotBlank(t *testing.T) {
	type search struct {
		Category string `json:"category" validate:"notblank"`
	}
	require.NoError(t, ValidateStruct(search{Category: "hospital"}))

	err := ValidateStruct(search{Category: "   "})
	vErrs, ok := err.(ValidationErrors)
	require.True(t, ok)
	require.True(t, vErrs.HasTag("notblank"))
	require.Equal(t, "category", vErrs[0].Field)
}

package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	appvalidator "github.com/saudema/saudema/pkg/validator"
)

func TestCheckPasswordStrength(t *testing.T) {
	cases := map[string]string{
		"Ab1!":         MsgPasswordTooShort,
		"senhafraca1!": MsgPasswordUppercase,
		"SENHAFORTE1!": MsgPasswordLowercase,
		"SenhaForte!!": MsgPasswordDigit,
		"SenhaForte12": MsgPasswordSpecial,
		"SenhaForte1!": "",
		"Outra-Senh4":  "",
		"Com~Til9aa":   "",
	}
	for password, want := range cases {
		require.Equal(t, want, CheckPasswordStrength(password), password)
	}

	require.Empty(t, CheckPasswordStrength("Aa1!"+strings.Repeat("x", 68)))
	require.Equal(t, MsgPasswordTooLong, CheckPasswordStrength("Aa1!"+strings.Repeat("x", 69)))
}

func TestStrongPasswordTagRegistered(t *testing.T) {
	type input struct {
		Password string `json:"password" validate:"strongpassword"`
	}

	require.NoError(t, appvalidator.ValidateStruct(input{Password: "SenhaForte1!"}))

	err := appvalidator.ValidateStruct(input{Password: "fraca"})
	require.Error(t, err)
	var verrs appvalidator.ValidationErrors
	require.ErrorAs(t, err, &verrs)
	require.True(t, verrs.HasTag(StrongPasswordTag))
}

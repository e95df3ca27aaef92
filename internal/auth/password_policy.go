package auth

import (
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"

	appvalidator "github.com/saudema/saudema/pkg/validator"
)

// Characters accepted as the special character of a strong password.
const passwordSpecials = `!@#$%^&*()_+={}[]:;<>,.?~\-`

// Policy messages, in the order they are checked.
const (
	MsgPasswordTooShort  = "A senha deve ter pelo menos 8 caracteres."
	MsgPasswordTooLong   = "A senha deve ter no máximo 72 bytes."
	MsgPasswordUppercase = "A senha deve conter pelo menos uma letra maiúscula."
	MsgPasswordLowercase = "A senha deve conter pelo menos uma letra minúscula."
	MsgPasswordDigit     = "A senha deve conter pelo menos um número."
	MsgPasswordSpecial   = "A senha deve conter pelo menos um caractere especial."
)

// StrongPasswordTag is the validator tag backed by CheckPasswordStrength.
const StrongPasswordTag = "strongpassword"

func init() {
	_ = appvalidator.RegisterValidation(StrongPasswordTag, func(fl validator.FieldLevel) bool {
		return CheckPasswordStrength(fl.Field().String()) == ""
	})
}

// CheckPasswordStrength returns the first unmet rule's message, or "" when
// the password is acceptable.
func CheckPasswordStrength(password string) string {
	switch {
	case len([]rune(password)) < 8:
		return MsgPasswordTooShort
	case len(password) > 72:
		// bcrypt ignores everything past 72 bytes
		return MsgPasswordTooLong
	}

	var upper, lower, digit, special bool
	for _, r := range password {
		switch {
		case r >= 'A' && r <= 'Z':
			upper = true
		case r >= 'a' && r <= 'z':
			lower = true
		case unicode.IsDigit(r):
			digit = true
		case strings.ContainsRune(passwordSpecials, r):
			special = true
		}
	}

	switch {
	case !upper:
		return MsgPasswordUppercase
	case !lower:
		return MsgPasswordLowercase
	case !digit:
		return MsgPasswordDigit
	case !special:
		return MsgPasswordSpecial
	}
	return ""
}

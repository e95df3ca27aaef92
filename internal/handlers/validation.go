package handlers

import (
	"errors"

	"github.com/gin-gonic/gin"

	appErrors "github.com/saudema/saudema/pkg/errors"
	"github.com/saudema/saudema/pkg/response"
	appValidator "github.com/saudema/saudema/pkg/validator"
)

const msgInvalidPayload = "Corpo da requisição inválido."

// tagMessage maps a failed validator tag to the message shown to the user.
// Rules are checked in order and the first match wins.
type tagMessage struct {
	tag     string
	message string
}

// bindAndValidate binds the JSON payload into dest and runs struct validation rules.
// When validation fails, an error response is written and false is returned.
func bindAndValidate[T any](c *gin.Context, dest *T, rules ...tagMessage) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest(msgInvalidPayload))
		return false
	}

	trimStrings(dest)

	if err := appValidator.ValidateStruct(dest); err != nil {
		appErr := appErrors.NewBadRequest(validationMessage(err, rules))
		var ve appValidator.ValidationErrors
		if errors.As(err, &ve) {
			appErr = appErr.WithDetails(ve.Fields())
		}
		response.Error(c, appErr)
		return false
	}
	return true
}

func validationMessage(err error, rules []tagMessage) string {
	var ve appValidator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return msgInvalidPayload
	}
	for _, rule := range rules {
		if ve.HasTag(rule.tag) {
			return rule.message
		}
	}
	return "Campo inválido: " + ve[0].Field
}

// trimmer is implemented by request payloads whose fields need trimming
// before validation.
type trimmer interface {
	trim()
}

func trimStrings(dest any) {
	if t, ok := dest.(trimmer); ok {
		t.trim()
	}
}


package handlers

import (
	"errors"
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	appErrors "github.com/kitemc/verifyd/pkg/errors"
	"github.com/kitemc/verifyd/pkg/response"
	appValidator "github.com/kitemc/verifyd/pkg/validator"
)

// bindAndValidate binds the JSON payload into dest and runs struct validation
// rules. When validation fails, an error response is written and false is
// returned.
func bindAndValidate[T any](c *gin.Context, dest *T) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest("invalid JSON payload"))
		return false
	}

	if err := appValidator.ValidateStruct(dest); err != nil {
		response.Error(c, appErrors.NewBadRequest(formatValidationError(err)))
		return false
	}

	return true
}

func formatValidationError(err error) string {
	var ve appValidator.ValidationErrors
	if !errors.As(err, &ve) || len(ve) == 0 {
		return "invalid request payload"
	}

	messages := make([]string, 0, len(ve))
	for _, failure := range ve {
		field := strings.ToLower(strings.ReplaceAll(failure.Field, "_", " "))
		switch failure.Tag {
		case "required":
			messages = append(messages, fmt.Sprintf("%s is required", field))
		case "email":
			messages = append(messages, fmt.Sprintf("%s must be a valid email address", field))
		case "min":
			messages = append(messages, fmt.Sprintf("%s must be at least %s characters", field, failure.Param))
		case "max":
			messages = append(messages, fmt.Sprintf("%s must be at most %s characters", field, failure.Param))
		default:
			if failure.Param != "" {
				messages = append(messages, fmt.Sprintf("%s failed validation: %s=%s", field, failure.Tag, failure.Param))
			} else {
				messages = append(messages, fmt.Sprintf("%s failed validation: %s", field, failure.Tag))
			}
		}
	}
	return strings.Join(messages, "; ")
}

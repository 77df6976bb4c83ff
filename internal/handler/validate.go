package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	"schoolportal/internal/model"
)

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 1 << 20

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	// Report json field names so messages match the request body.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}

// decodeJSON reads the body into dst and runs its validate tags.
// Failures come back as validation AppErrors.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return model.NewValidationError("Invalid request body")
	}
	if err := validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func validationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return model.NewValidationError("Invalid request body")
	}
	fe := verrs[0]
	switch fe.Tag() {
	case "required":
		return model.NewValidationError(fmt.Sprintf("%s is required", fe.Field()))
	case "max":
		return model.NewValidationError(fmt.Sprintf("%s must be at most %s characters", fe.Field(), fe.Param()))
	case "min":
		return model.NewValidationError(fmt.Sprintf("%s must be at least %s characters", fe.Field(), fe.Param()))
	case "oneof":
		return model.NewValidationError(fmt.Sprintf("%s must be one of: %s", fe.Field(), fe.Param()))
	default:
		return model.NewValidationError(fmt.Sprintf("%s is invalid", fe.Field()))
	}
}

package control

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/go-playground/validator/v10"
)

var requestValidator = validator.New()

// decodeAndValidate decodes exactly one JSON object into dst, rejecting
// unknown fields and trailing content, then runs struct validation tags.
// Grounded on the teacher's api/validation.go decodeAndValidate.
func decodeAndValidate(body io.Reader, dst any) error {
	decoder := json.NewDecoder(body)
	decoder.DisallowUnknownFields()

	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("invalid JSON body")
	}
	if err := decoder.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("invalid JSON body")
	}

	if err := requestValidator.Struct(dst); err != nil {
		var validationErrors validator.ValidationErrors
		if errors.As(err, &validationErrors) && len(validationErrors) > 0 {
			first := validationErrors[0]
			field := strings.ToLower(first.Field())
			switch first.Tag() {
			case "required":
				return fmt.Errorf("%s is required", field)
			case "url":
				return fmt.Errorf("%s must be a valid URL", field)
			case "oneof":
				return fmt.Errorf("%s has an unrecognized value", field)
			default:
				return fmt.Errorf("invalid %s", field)
			}
		}
		return fmt.Errorf("invalid request payload")
	}

	return nil
}

package utils

import (
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// ValidateInput runs struct-tag validation on an inbound payload and
// collapses the first failure into a client-facing message.
func ValidateInput(s any) error {
	err := validate.Struct(s)
	if err == nil {
		return nil
	}
	if verrs, ok := err.(validator.ValidationErrors); ok && len(verrs) > 0 {
		ve := verrs[0]
		return fmt.Errorf("field %s failed validation on %s", ve.Field(), ve.Tag())
	}
	return err
}

package dto

import (
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
)

var validate = validator.New()

// Validate checks the struct tags of a request payload and reports the first
// failing field.
func Validate(payload any) error {
	if err := validate.Struct(payload); err != nil {
		var vErrs validator.ValidationErrors
		if errors.As(err, &vErrs) && len(vErrs) > 0 {
			first := vErrs[0]
			return fmt.Errorf("field %s failed %s validation", first.Field(), first.Tag())
		}
		return err
	}
	return nil
}

package assistant

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"

	app_errors "pickwise/client/internal/errors"
)

var (
	validate *validator.Validate
	once     sync.Once
)

func getValidator() *validator.Validate {
	once.Do(func() {
		validate = validator.New()
	})
	return validate
}

// validateRequest checks the outbound payload against the rules in its field
// tags before anything touches the network. Failures come back wrapped in
// app_errors.ErrValidation so the surface can recognize them with errors.Is.
func validateRequest(payload interface{}) error {
	err := getValidator().Struct(payload)
	if err == nil {
		return nil
	}

	var validationErrors validator.ValidationErrors
	if !errors.As(err, &validationErrors) {
		return fmt.Errorf("%w: unexpected error during validation: %s", app_errors.ErrValidation, err.Error())
	}

	var msgs []string
	for _, fieldErr := range validationErrors {
		msgs = append(msgs, fmt.Sprintf("Field '%s' failed on the '%s' tag", fieldErr.Field(), fieldErr.Tag()))
	}
	return fmt.Errorf("%w: %s", app_errors.ErrValidation, strings.Join(msgs, "; "))
}

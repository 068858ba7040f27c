package runtime

import (
	"fmt"

	"github.com/Veolinan/triage/pkg/domain"
	"github.com/go-playground/validator/v10"
)

// NewValidator returns a validator with the triage-specific rules registered.
func NewValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	if err := v.RegisterValidation("classification", func(fl validator.FieldLevel) bool {
		switch domain.Classification(fl.Field().String()) {
		case domain.ClassLowRisk, domain.ClassAlertZone, domain.ClassDangerZone:
			return true
		}
		return false
	}); err != nil {
		panic(fmt.Sprintf("register classification rule: %v", err))
	}
	return v
}

// TransitionError reports an operation attempted in a phase that does not
// allow it.
type TransitionError struct {
	Op   string
	From domain.Phase
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s while %s", e.Op, e.From)
}

func (e *TransitionError) Unwrap() error {
	return domain.ErrInvalidTransition
}

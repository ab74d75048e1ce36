package flow

import "errors"

var (
	// ErrFlowActive is returned by Start when the identity is already inside a flow.
	ErrFlowActive = errors.New("flow already active")
	// ErrNoActiveFlow is returned by Handle and Cancel when no flow is active.
	ErrNoActiveFlow = errors.New("no active flow")
	// ErrInvalidTransition is returned when the stored step is unknown to the
	// flow definition, which indicates corrupted or stale state.
	ErrInvalidTransition = errors.New("invalid flow transition")
)

// ValidationError rejects user input for one step. The flow stays on the same
// step and the collected data is left untouched.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// Code implements the error-code hook used by handler summary logging.
func (e *ValidationError) Code() string {
	return "VALIDATION"
}

func invalid(message string) *ValidationError {
	return &ValidationError{Message: message}
}

// IsValidation reports whether err is a user input rejection.
func IsValidation(err error) bool {
	var verr *ValidationError
	return errors.As(err, &verr)
}

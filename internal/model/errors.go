package model

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

var (
	// ErrNotFound is returned for unknown set tokens, exam ids and question ids.
	ErrNotFound = errors.New("not found")
	// ErrEmptyBank means the question set has no questions to sample from.
	ErrEmptyBank = errors.New("question set has no questions")
	// ErrAlreadyFinished is returned when mutating an exam that is already graded.
	ErrAlreadyFinished = errors.New("exam already finished")
	// ErrActiveExists means another active exam holds the (set, email, index) slot.
	ErrActiveExists = errors.New("active exam already exists")
)

// ValidationError reports malformed user input. No state is mutated when it is returned.
type ValidationError struct {
	Fields []string
	Reason string
}

func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation: " + e.Reason
	}
	return fmt.Sprintf("validation: %s (%s)", e.Reason, strings.Join(e.Fields, ", "))
}

// NewValidationError converts validator field errors into a ValidationError.
func NewValidationError(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return &ValidationError{Reason: err.Error()}
	}
	ve := &ValidationError{Reason: "invalid fields"}
	for _, fe := range verrs {
		ve.Fields = append(ve.Fields, fe.Field())
	}
	return ve
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

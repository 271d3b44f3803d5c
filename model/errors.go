package model

import (
	"errors"
	"fmt"
)

type NotFoundError struct {
	Kind string
	Id   string
}

func (e NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.Id)
}

func IsNotFound(err error) bool {
	var nf NotFoundError
	return errors.As(err, &nf)
}

// ValidationError rejects a bad graph or payload before anything is persisted.
type ValidationError struct {
	Message string
}

func (e ValidationError) Error() string {
	return e.Message
}

func Validationf(format string, args ...any) ValidationError {
	return ValidationError{Message: fmt.Sprintf(format, args...)}
}

func IsValidation(err error) bool {
	var ve ValidationError
	return errors.As(err, &ve)
}

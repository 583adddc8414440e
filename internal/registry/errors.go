package registry

import "fmt"

// RegistrationError is returned when an operator cannot be registered.
type RegistrationError struct {
	Name   string
	Reason string
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("cannot register operator '%s': %s", e.Name, e.Reason)
}

package app

import "fmt"

// DomainError is the structured error every handler boundary converts to a
// JSON response. Status carries the HTTP code; Code is the stable machine
// readable tag.
type DomainError struct {
	Status  int
	Code    string
	Message string
	Details any
}

func (e *DomainError) Error() string {
	if e == nil {
		return ""
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func domainError(status int, code, message string, details any) *DomainError {
	return &DomainError{
		Status:  status,
		Code:    code,
		Message: message,
		Details: details,
	}
}

func validationError(message string, details any) *DomainError {
	return domainError(400, "VALIDATION", message, details)
}

func invalidIDError(id string) *DomainError {
	return domainError(400, "INVALID_ID", fmt.Sprintf("malformed id %q", id), nil)
}

package app

import "fmt"

// DomainError is a failure the HTTP layer can translate directly into
// a response: an HTTP status, a stable machine-readable code, a human
// message, and optional structured details (for example the measured
// distance on a geofence rejection).
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

// domainError builds a DomainError. The optional trailing argument
// carries Details; most call sites have none.
func domainError(status int, code, message string, details ...any) *DomainError {
	e := &DomainError{Status: status, Code: code, Message: message}
	if len(details) > 0 {
		e.Details = details[0]
	}
	return e
}

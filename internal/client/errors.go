package client

import (
	"fmt"
	"strings"
)

// ValidationError reports missing input. It is produced before any
// network call is made.
type ValidationError struct {
	Fields  []string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "Please enter " + strings.Join(e.Fields, " and ") + "."
}

// APIError is a non-success HTTP response. Message is the backend's
// detail when it sent one, otherwise the status text, otherwise
// "HTTP error <status>".
type APIError struct {
	Method   string
	Endpoint string
	Status   int
	Message  string
}

func (e *APIError) Error() string {
	return e.Message
}

// NetworkError means the request produced no response.
type NetworkError struct {
	Method   string
	Endpoint string
	Err      error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("request %s %s failed: %v", e.Method, e.Endpoint, e.Err)
}

func (e *NetworkError) Unwrap() error {
	return e.Err
}

// DecodeError means a response body was not the JSON the caller needed.
type DecodeError struct {
	Method   string
	Endpoint string
	Status   int
	Err      error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("invalid response from %s %s (%d): %v", e.Method, e.Endpoint, e.Status, e.Err)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

type field struct {
	name  string
	value string
}

// require returns a ValidationError naming every empty field.
func require(fields ...field) error {
	var missing []string
	for _, f := range fields {
		if f.value == "" {
			missing = append(missing, f.name)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Fields: missing}
	}
	return nil
}

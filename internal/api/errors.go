package api

import (
	"errors"
	"fmt"
)

// NotFoundError represents a resource not found error with contextual information.
// It is returned for unknown services, tools and configuration entries so that every
// layer (manager, HTTP controllers, CLI) can map it to a structured "not found" answer
// instead of a generic failure.
type NotFoundError struct {
	// ResourceType categorizes the type of resource that was not found
	// (e.g., "service", "tool", "configuration").
	ResourceType string

	// ResourceName is the specific identifier of the resource that was not found.
	ResourceName string

	// Message provides a custom error message if the default format is insufficient.
	Message string
}

// Error implements the error interface for NotFoundError.
func (e *NotFoundError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("%s %s not found", e.ResourceType, e.ResourceName)
}

// IsNotFound checks if an error is a NotFoundError using error unwrapping.
//
// Example:
//
//	result, err := mgr.Invoke(ctx, "missing", "any_tool", nil)
//	if api.IsNotFound(err) {
//	    // respond with 404
//	}
func IsNotFound(err error) bool {
	var notFoundErr *NotFoundError
	return errors.As(err, &notFoundErr)
}

// NewNotFoundError creates a new NotFoundError with the specified resource type and name.
func NewNotFoundError(resourceType, resourceName string) *NotFoundError {
	return &NotFoundError{
		ResourceType: resourceType,
		ResourceName: resourceName,
	}
}

// NewNotFoundErrorWithMessage creates a new NotFoundError with a custom message.
func NewNotFoundErrorWithMessage(resourceType, resourceName, message string) *NotFoundError {
	return &NotFoundError{
		ResourceType: resourceType,
		ResourceName: resourceName,
		Message:      message,
	}
}

// Resource specific constructors.
var (
	// NewServiceNotFoundError creates a service not found error.
	NewServiceNotFoundError = func(name string) *NotFoundError {
		return NewNotFoundErrorWithMessage("service", name, fmt.Sprintf("Service %s does not exist.", name))
	}

	// NewToolNotFoundError creates a tool not found error.
	NewToolNotFoundError = func(name string) *NotFoundError {
		return NewNotFoundError("tool", name)
	}

	// NewConfigNotFoundError creates a configuration file not found error.
	NewConfigNotFoundError = func(path string) *NotFoundError {
		return NewNotFoundErrorWithMessage("configuration", path, fmt.Sprintf("Configuration file not found: %s", path))
	}
)

// ValidationError reports malformed input: a missing tool name, parameters that are not
// a JSON object, or a configuration document that breaks an invariant.
type ValidationError struct {
	Field   string
	Message string
	Err     error
}

func (e *ValidationError) Error() string {
	msg := e.Message
	if e.Field != "" {
		msg = fmt.Sprintf("%s: %s", e.Field, e.Message)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

func (e *ValidationError) Unwrap() error {
	return e.Err
}

// NewValidationError creates a ValidationError for field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// IsValidation checks if an error is or wraps a ValidationError.
func IsValidation(err error) bool {
	var validationErr *ValidationError
	return errors.As(err, &validationErr)
}

// Sentinel errors shared across packages.
var (
	// ErrServiceNotRunning is returned when a capability operation targets a service
	// whose process is not alive.
	ErrServiceNotRunning = errors.New("service is not running")

	// ErrNoCapabilities is returned when the orchestrator is asked to chat with a
	// service that has no discovered capabilities yet.
	ErrNoCapabilities = errors.New("service has no cached capabilities")
)

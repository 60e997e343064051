package engine

import (
	"errors"
	"fmt"
)

// FailureClass classifies an update failure for stop-on-error and exit
// code decisions.
type FailureClass string

const (
	// ClassPrecondition indicates the environment is unusable: docker
	// missing, container absent, config directory unreadable. Nothing
	// was attempted and nothing should be.
	ClassPrecondition FailureClass = "precondition"

	// ClassCompile indicates compilation failed for a device.
	ClassCompile FailureClass = "compile"

	// ClassArtifact indicates compilation appeared to succeed but no
	// firmware binary could be located.
	ClassArtifact FailureClass = "artifact"

	// ClassUpload indicates the OTA upload failed for a device.
	ClassUpload FailureClass = "upload"

	// ClassInterrupted indicates the run was cancelled by the user or
	// supervisor. Progress up to the interruption is preserved.
	ClassInterrupted FailureClass = "interrupted"
)

// UpdateError is a classified failure with device context.
type UpdateError struct {
	// Class is the failure classification.
	Class FailureClass

	// Message is the human-readable error message.
	Message string

	// Device is the device being processed, if applicable.
	Device string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *UpdateError) Error() string {
	if e.Device != "" {
		return fmt.Sprintf("[%s] %s (device=%s): %s", e.Class, e.Message, e.Device, e.unwrapMessage())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.unwrapMessage())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *UpdateError) Unwrap() error {
	return e.Err
}

func (e *UpdateError) unwrapMessage() string {
	if e.Err != nil {
		return e.Err.Error()
	}
	return ""
}

// Is implements error equality checking for errors.Is.
func (e *UpdateError) Is(target error) bool {
	t, ok := target.(*UpdateError)
	if !ok {
		return false
	}
	return e.Class == t.Class
}

// NewPreconditionError creates a new precondition error.
func NewPreconditionError(message string, err error) *UpdateError {
	return &UpdateError{
		Class:   ClassPrecondition,
		Message: message,
		Err:     err,
	}
}

// NewCompileError creates a new compile error.
func NewCompileError(message string, err error) *UpdateError {
	return &UpdateError{
		Class:   ClassCompile,
		Message: message,
		Err:     err,
	}
}

// NewArtifactError creates a new artifact error.
func NewArtifactError(message string, err error) *UpdateError {
	return &UpdateError{
		Class:   ClassArtifact,
		Message: message,
		Err:     err,
	}
}

// NewUploadError creates a new upload error.
func NewUploadError(message string, err error) *UpdateError {
	return &UpdateError{
		Class:   ClassUpload,
		Message: message,
		Err:     err,
	}
}

// NewInterruptedError creates a new interruption error.
func NewInterruptedError(err error) *UpdateError {
	return &UpdateError{
		Class:   ClassInterrupted,
		Message: "run interrupted",
		Err:     err,
	}
}

// WithDevice adds device context to an error.
func (e *UpdateError) WithDevice(device string) *UpdateError {
	e.Device = device
	return e
}

// IsPrecondition returns true if the error is classified as a failed
// precondition.
func IsPrecondition(err error) bool {
	return hasClass(err, ClassPrecondition)
}

// IsCompile returns true if the error is classified as a compile
// failure.
func IsCompile(err error) bool {
	return hasClass(err, ClassCompile)
}

// IsArtifact returns true if the error is classified as a missing
// firmware artifact.
func IsArtifact(err error) bool {
	return hasClass(err, ClassArtifact)
}

// IsUpload returns true if the error is classified as an upload
// failure.
func IsUpload(err error) bool {
	return hasClass(err, ClassUpload)
}

// IsInterrupted returns true if the error is classified as an
// interruption.
func IsInterrupted(err error) bool {
	return hasClass(err, ClassInterrupted)
}

func hasClass(err error, class FailureClass) bool {
	var e *UpdateError
	if errors.As(err, &e) {
		return e.Class == class
	}
	return false
}

package postcard

import (
	"errors"
	"fmt"

	"github.com/lattiq/postcard/internal/core"
	"github.com/lattiq/postcard/internal/resolve"
)

// Predefined sentinel errors for common cases.
var (
	// ErrNotFound is matched by every missing-template error.
	ErrNotFound = core.ErrNotFound

	// ErrNoTransport indicates Send was called on a render-only instance.
	ErrNoTransport = errors.New("no transport configured")

	// ErrInvalidConfiguration indicates invalid configuration.
	ErrInvalidConfiguration = errors.New("invalid configuration")

	// ErrInvalidTemplateName indicates an empty template name or one that
	// escapes the views root.
	ErrInvalidTemplateName = resolve.ErrInvalidName
)

type (
	NotFoundError   = core.NotFoundError
	ValidationError = core.ValidationError
	ProviderError   = core.ProviderError
)

// Error constructor functions
var (
	NewValidationError          = core.NewValidationError
	NewValidationErrorWithValue = core.NewValidationErrorWithValue
	NewProviderError            = core.NewProviderError
)

// TemplateError represents an error in template processing.
type TemplateError struct {
	// Template is the path of the template that caused the error.
	Template string

	// Operation is the operation that failed (e.g., "read", "render").
	Operation string

	// Message is the error message.
	Message string

	// Cause is the underlying error.
	Cause error
}

// Error implements the error interface.
func (e *TemplateError) Error() string {
	return fmt.Sprintf("template error in %s during %s: %s", e.Template, e.Operation, e.Message)
}

// Unwrap returns the underlying error.
func (e *TemplateError) Unwrap() error {
	return e.Cause
}

// NewTemplateError creates a new template error.
func NewTemplateError(template, operation string, cause error) *TemplateError {
	return &TemplateError{
		Template:  template,
		Operation: operation,
		Message:   cause.Error(),
		Cause:     cause,
	}
}

// Post-processing stages.
const (
	StageInline     = "inline"
	StageHTMLToText = "html_to_text"
)

// PostProcessError reports a failure while inlining CSS or deriving text.
type PostProcessError struct {
	Stage string
	Cause error
}

// Error implements the error interface.
func (e *PostProcessError) Error() string {
	return fmt.Sprintf("post-process %s: %v", e.Stage, e.Cause)
}

// Unwrap returns the underlying error.
func (e *PostProcessError) Unwrap() error {
	return e.Cause
}

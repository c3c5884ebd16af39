package definition

import (
	"errors"
	"fmt"
)

// Sentinel errors for the distinct definition failure kinds. Callers match
// with errors.Is; parse failures additionally carry the offending file via
// *ParseError.
var (
	// ErrNotFound marks a missing workflow directory, index file, steps
	// directory, or step file
	ErrNotFound = errors.New("workflow definition not found")

	// Include resolution failures
	ErrCircularInclude = errors.New("circular include reference")
	ErrIncludeNotFound = errors.New("included file not found")
	ErrMaxIncludeDepth = errors.New("maximum include depth exceeded")

	// Index parsing failures
	ErrNoSteps       = errors.New("no steps found in workflow index")
	ErrDuplicateStep = errors.New("duplicate step name in workflow index")

	// Step file parsing failures
	ErrMissingGuidance     = errors.New("orchestrator guidance section not found or empty")
	ErrMissingInstructions = errors.New("client instructions section not found or empty")
)

// ParseError marks a workflow definition that could not be parsed. It wraps
// one of the sentinel errors above and names the file where parsing failed.
type ParseError struct {
	File string
	Err  error
}

// Error implements the error interface
func (e *ParseError) Error() string {
	if e.File != "" {
		return fmt.Sprintf("definition parse error in %s: %v", e.File, e.Err)
	}
	return fmt.Sprintf("definition parse error: %v", e.Err)
}

// Unwrap returns the wrapped sentinel
func (e *ParseError) Unwrap() error {
	return e.Err
}

func newParseError(file string, err error) *ParseError {
	return &ParseError{File: file, Err: err}
}

// IsDefinitionError reports whether err originated in this package
func IsDefinitionError(err error) bool {
	var pe *ParseError
	return errors.As(err, &pe) || errors.Is(err, ErrNotFound)
}

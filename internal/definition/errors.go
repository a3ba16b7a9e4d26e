package definition

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrParse is matched by errors.Is for every *ParseError.
	ErrParse = errors.New("definition parse error")
	// ErrValidation is matched by errors.Is for every *ValidationError.
	ErrValidation = errors.New("definition validation error")
)

// ParseError reports a file that is not a usable YAML mapping.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parsing %s: %v", e.Path, e.Err)
}

func (e *ParseError) Unwrap() error { return e.Err }

func (e *ParseError) Is(target error) bool { return target == ErrParse }

// ValidationError lists the structural problems found in a definition.
type ValidationError struct {
	Path    string
	Reasons []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid definition %s: %s", e.Path, strings.Join(e.Reasons, "; "))
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

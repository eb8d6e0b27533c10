// Package errs holds the error values shared across the conversion pipeline.
package errs

import "errors"

var (
	// ErrUnresolvableInput is returned when an input argument is neither
	// stdin, a URL, nor an existing local path.
	ErrUnresolvableInput = errors.New("cannot determine input type")

	// ErrTimeout is returned when a page fails to load within the timeout.
	ErrTimeout = errors.New("page load timed out")

	// ErrSelectorNotFound is returned when an explicit extraction selector
	// matches nothing.
	ErrSelectorNotFound = errors.New("selector not found in page")

	ErrInvalidSelector = errors.New("invalid CSS selector")
)

var (
	// ErrFileIO marks failures reading input files or writing output.
	ErrFileIO = errors.New("file I/O failed")

	// ErrConversion marks failures turning extracted HTML into Markdown.
	ErrConversion = errors.New("conversion failed")
)

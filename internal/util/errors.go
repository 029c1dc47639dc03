// Package util provides shared helpers: error handling and process exit
// codes.
package util

import (
	"errors"
	"fmt"
	"os"

	"github.com/securebox/securebox/internal/domain"
	"github.com/securebox/securebox/internal/store"
)

// Exit codes.
const (
	ExitOK           = 0
	ExitError        = 1
	ExitInvalidInput = 2
	ExitNotFound     = 3
	ExitLocked       = 4
	ExitIntegrityErr = 5
)

// ExitWithCode exits the program with the specified code and message.
func ExitWithCode(code int, format string, args ...interface{}) {
	if format != "" {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
	os.Exit(code)
}

// HandleError maps an error to an exit code and terminates. A nil error
// is a no-op.
func HandleError(err error, context string) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, domain.ErrNotFound):
		ExitWithCode(ExitNotFound, "Error: %s - %v", context, err)
	case errors.Is(err, domain.ErrUnavailable):
		ExitWithCode(ExitLocked, "Error: %s - %v\nRun 'securebox login' first.", context, err)
	case errors.Is(err, store.ErrCorrupted):
		ExitWithCode(ExitIntegrityErr, "Error: %s - %v", context, err)
	case context != "":
		ExitWithCode(ExitError, "Error: %s - %v", context, err)
	default:
		ExitWithCode(ExitError, "Error: %v", err)
	}
}

// WrapError wraps an error with additional context.
func WrapError(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

// Package clipboard copies secrets to the system clipboard with automatic
// clearing.
package clipboard

import (
	"fmt"
	"time"

	"github.com/atotto/clipboard"
)

// CopyWithTimeout copies text to the clipboard and clears it after
// timeout, unless something else was copied in the meantime.
func CopyWithTimeout(text string, timeout time.Duration) error {
	if err := clipboard.WriteAll(text); err != nil {
		return fmt.Errorf("failed to copy to clipboard: %w", err)
	}

	go func() {
		time.Sleep(timeout)
		current, err := clipboard.ReadAll()
		if err == nil && current == text {
			clipboard.WriteAll("")
		}
	}()

	return nil
}

// IsAvailable reports whether a clipboard is reachable.
func IsAvailable() bool {
	_, err := clipboard.ReadAll()
	return err == nil
}

// Clear empties the clipboard.
func Clear() error {
	return clipboard.WriteAll("")
}

// Package clipboard copies revealed secrets to the system clipboard and
// clears them again after a timeout.
package clipboard

import (
	"context"
	"fmt"
	"time"

	"github.com/atotto/clipboard"
)

// Clipboard wraps a clipboard backend.
type Clipboard struct {
	read  func() (string, error)
	write func(string) error
}

// New returns a Clipboard backed by the system clipboard.
func New() *Clipboard {
	return &Clipboard{read: clipboard.ReadAll, write: clipboard.WriteAll}
}

// IsAvailable returns true if clipboard functionality is available
func (c *Clipboard) IsAvailable() bool {
	_, err := c.read()
	return err == nil
}

// CopyWithTimeout copies text and clears it after timeout, unless the user
// has copied something else meanwhile. The returned channel is closed once the
// clipboard has been cleared or ctx is done; ctx ending also clears it.
func (c *Clipboard) CopyWithTimeout(ctx context.Context, text string, timeout time.Duration) (<-chan struct{}, error) {
	if err := c.write(text); err != nil {
		return nil, fmt.Errorf("failed to copy to clipboard: %w", err)
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		timer := time.NewTimer(timeout)
		defer timer.Stop()

		select {
		case <-timer.C:
		case <-ctx.Done():
		}

		// Check if clipboard still contains our text before clearing
		if current, err := c.read(); err == nil && current == text {
			_ = c.write("")
		}
	}()
	return done, nil
}

// Clear clears the clipboard
func (c *Clipboard) Clear() error {
	return c.write("")
}

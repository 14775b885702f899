package clipboard

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBoard struct {
	mu   sync.Mutex
	text string
	fail bool
}

func (f *fakeBoard) clipboard() *Clipboard {
	return &Clipboard{
		read: func() (string, error) {
			f.mu.Lock()
			defer f.mu.Unlock()
			return f.text, nil
		},
		write: func(s string) error {
			f.mu.Lock()
			defer f.mu.Unlock()
			if f.fail {
				return errors.New("no display")
			}
			f.text = s
			return nil
		},
	}
}

func (f *fakeBoard) get() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.text
}

func TestCopyWithTimeout_Clears(t *testing.T) {
	board := &fakeBoard{}
	cb := board.clipboard()

	done, err := cb.CopyWithTimeout(context.Background(), "hunter2", 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, "hunter2", board.get())

	<-done
	assert.Empty(t, board.get())
}

func TestCopyWithTimeout_KeepsNewerContent(t *testing.T) {
	board := &fakeBoard{}
	cb := board.clipboard()

	ctx, cancel := context.WithCancel(context.Background())
	done, err := cb.CopyWithTimeout(ctx, "hunter2", time.Hour)
	require.NoError(t, err)

	require.NoError(t, cb.write("something else"))
	cancel()
	<-done
	assert.Equal(t, "something else", board.get())
}

func TestCopyWithTimeout_WriteFailure(t *testing.T) {
	board := &fakeBoard{fail: true}
	_, err := board.clipboard().CopyWithTimeout(context.Background(), "x", time.Second)
	assert.Error(t, err)
	assert.False(t, (&Clipboard{read: func() (string, error) { return "", errors.New("x") }}).IsAvailable())
}

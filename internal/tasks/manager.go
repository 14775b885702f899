// Package tasks runs vault imports in the background so the caller can keep
// working, and keeps the latest progress and the terminal result around.
package tasks

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/vault-cli/credvault/internal/importer"
	"github.com/vault-cli/credvault/internal/logger"
)

// ErrImportInProgress is returned by StartImport while a run is active.
var ErrImportInProgress = errors.New("an import is already in progress")

// Starter launches an import run. *importer.Pipeline implements it.
type Starter interface {
	Start(ctx context.Context, vendor importer.Vendor, raw, ownerID string) *importer.Run
}

// Manager owns at most one import run at a time.
type Manager struct {
	starter Starter
	log     *logger.Logger

	mu        sync.Mutex
	running   bool
	dismissed bool
	latest    importer.Progress
	hasLatest bool
	result    *importer.Result
	err       error
	done      chan struct{}
}

// NewManager creates a manager starting runs with starter.
func NewManager(starter Starter, l *logger.Logger) *Manager {
	if l == nil {
		l = logger.Nop()
	}
	return &Manager{starter: starter, log: l.Component("tasks")}
}

// StartImport begins an import and returns immediately. The run is detached
// from ctx's cancellation so it always reaches a terminal result.
func (m *Manager) StartImport(ctx context.Context, vendor importer.Vendor, raw, ownerID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.running {
		return ErrImportInProgress
	}

	m.running = true
	m.dismissed = false
	m.latest, m.hasLatest = importer.Progress{}, false
	m.result, m.err = nil, nil
	done := make(chan struct{})
	m.done = done

	go m.execute(context.WithoutCancel(ctx), vendor, raw, ownerID, done)
	return nil
}

func (m *Manager) execute(ctx context.Context, vendor importer.Vendor, raw, ownerID string, done chan struct{}) {
	var (
		res *importer.Result
		err error
	)
	defer func() {
		if v := recover(); v != nil {
			res, err = nil, fmt.Errorf("import task panicked: %v", v)
		}
		m.finish(res, err, done)
	}()

	run := m.starter.Start(ctx, vendor, raw, ownerID)
	for p := range run.Progress() {
		m.mu.Lock()
		m.latest, m.hasLatest = p, true
		m.mu.Unlock()
	}
	res, err = run.Wait(context.Background())
}

func (m *Manager) finish(res *importer.Result, err error, done chan struct{}) {
	if res == nil {
		res = importer.FailedResult(importer.UnexpectedFailure)
	}
	if err != nil {
		m.log.Error().Err(err).Msg("import ended with an error")
	} else {
		m.log.Info().Bool("success", res.Success).Int("errors", res.Summary.Errors).Msg("import ended")
	}

	m.mu.Lock()
	m.running = false
	m.result, m.err = res, err
	m.mu.Unlock()
	close(done)
}

// IsImporting reports whether a run is active.
func (m *Manager) IsImporting() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.running
}

// Latest returns the most recent progress snapshot of the current or last run.
func (m *Manager) Latest() (importer.Progress, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.latest, m.hasLatest
}

// Result returns the terminal result of the last run, or nil while running.
func (m *Manager) Result() *importer.Result {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.result.Clone()
}

// Err returns the fatal error of the last run, if any.
func (m *Manager) Err() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.err
}

// Visible reports whether there is something to show: a run that has not
// been dismissed, or an unacknowledged result.
func (m *Manager) Visible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return !m.dismissed && (m.running || m.result != nil)
}

// Wait blocks until the current run ends and returns its result. With no run
// started it returns immediately.
func (m *Manager) Wait(ctx context.Context) (*importer.Result, error) {
	m.mu.Lock()
	done := m.done
	m.mu.Unlock()
	if done == nil {
		return nil, nil
	}

	select {
	case <-done:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	return m.result.Clone(), m.err
}

// Dismiss hides the task. While a run is active it asks confirm first and
// the run keeps going in the background; it is never cancelled. Dismissing a
// finished run clears its result.
func (m *Manager) Dismiss(confirm func() bool) bool {
	m.mu.Lock()
	running := m.running
	m.mu.Unlock()

	if running && (confirm == nil || !confirm()) {
		return false
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.dismissed = true
	if !m.running {
		m.result, m.err = nil, nil
		m.latest, m.hasLatest = importer.Progress{}, false
	}
	return true
}

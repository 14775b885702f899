// Package util maps vault errors to process exit codes and curated messages.
package util

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/vault-cli/credvault/internal/backup"
	"github.com/vault-cli/credvault/internal/importer"
	"github.com/vault-cli/credvault/internal/session"
	"github.com/vault-cli/credvault/internal/store"
	"github.com/vault-cli/credvault/internal/sudo"
	"github.com/vault-cli/credvault/internal/tasks"
	"github.com/vault-cli/credvault/internal/vault"
)

// Exit codes
const (
	ExitOK           = 0
	ExitError        = 1
	ExitInvalidInput = 2
	ExitVaultLocked  = 3
	ExitIntegrityErr = 4
	ExitAuthFailed   = 5
	ExitUnavailable  = 6
	ExitCancelled    = 130
)

var (
	// ErrCancelled is returned when the user aborts a prompt.
	ErrCancelled = errors.New("cancelled")
	// ErrInvalidInput marks bad flags, arguments or answers. Its message is shown as is.
	ErrInvalidInput = errors.New("invalid input")
)

// Classify returns the exit code and user-facing message for err.
func Classify(err error) (int, string) {
	switch {
	case err == nil:
		return ExitOK, ""
	case errors.Is(err, ErrCancelled):
		return ExitCancelled, "Cancelled."
	case errors.Is(err, store.ErrVaultLocked):
		return ExitVaultLocked, "The vault is in use by another process."
	case errors.Is(err, session.ErrSessionLocked):
		return ExitVaultLocked, "The vault is locked. Unlock it and try again."
	case errors.Is(err, vault.ErrIntegrity), errors.Is(err, store.ErrVaultCorrupted):
		return ExitIntegrityErr, "Vault integrity check failed: the data is corrupted or was tampered with."
	case errors.Is(err, sudo.ErrAttemptsExhausted):
		return ExitAuthFailed, "Too many failed attempts."
	case errors.Is(err, vault.ErrInvalidPIN):
		return ExitInvalidInput, "A PIN is exactly 4 digits."
	case errors.Is(err, vault.ErrAuthFailed), errors.Is(err, backup.ErrWrongPassphrase):
		return ExitAuthFailed, "Verification failed."
	case errors.Is(err, store.ErrUnavailable):
		return ExitUnavailable, "The vault storage is unavailable."
	case errors.Is(err, store.ErrVaultNotFound), errors.Is(err, vault.ErrNotInitialized):
		return ExitError, "No vault found. Run 'credvault init' first."
	case errors.Is(err, store.ErrVaultExists), errors.Is(err, vault.ErrAlreadyInitialized):
		return ExitError, "A vault already exists."
	case errors.Is(err, tasks.ErrImportInProgress):
		return ExitError, "An import is already running."
	case errors.Is(err, importer.ErrNoRecords):
		return ExitInvalidInput, "The import file contains no records."
	case errors.Is(err, store.ErrNotFound):
		return ExitInvalidInput, "Not found."
	case errors.Is(err, store.ErrInvalidRecord), errors.Is(err, ErrInvalidInput):
		return ExitInvalidInput, err.Error()
	}
	return ExitError, err.Error()
}

// HandleError prints err and exits with the matching code. It returns
// without exiting when err is nil.
func HandleError(err error, context string) {
	if err == nil {
		return
	}
	code := Report(os.Stderr, err, context)
	os.Exit(code)
}

// Report writes the curated message for err to w and returns its exit code.
func Report(w io.Writer, err error, context string) int {
	code, msg := Classify(err)
	if code == ExitOK {
		return code
	}
	if context != "" {
		fmt.Fprintf(w, "Error: %s - %s\n", context, msg)
	} else {
		fmt.Fprintf(w, "Error: %s\n", msg)
	}
	if code == ExitIntegrityErr {
		fmt.Fprintln(w, "Restore from a backup with 'credvault import --format self'.")
	}
	return code
}

// WrapError wraps an error with additional context
func WrapError(err error, context string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", context, err)
}

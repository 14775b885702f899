package cli

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// MaxOutputSize is the maximum allowed size for output to prevent memory exhaustion
const MaxOutputSize = 10 * 1024 * 1024 // 10MB

var (
	okMark   = color.GreenString("✓")
	warnMark = color.YellowString("!")
	failMark = color.RedString("✗")
)

// writeString writes a string to the writer with error checking and size limits
func writeString(w io.Writer, s string) error {
	if len(s) > MaxOutputSize {
		return fmt.Errorf("output size %d exceeds maximum allowed size %d",
			len(s), MaxOutputSize)
	}

	n, err := fmt.Fprint(w, s)
	if err != nil {
		return fmt.Errorf("failed to write output (wrote %d bytes): %w", n, err)
	}

	if f, ok := w.(interface{ Flush() error }); ok {
		if flushErr := f.Flush(); flushErr != nil {
			return fmt.Errorf("failed to flush output: %w", flushErr)
		}
	}
	return nil
}

// writeOutput formats and writes output with error checking and size limits
func writeOutput(w io.Writer, format string, args ...any) error {
	return writeString(w, fmt.Sprintf(format, args...))
}

func success(w io.Writer, format string, args ...any) error {
	return writeOutput(w, okMark+" "+format+"\n", args...)
}

func warn(w io.Writer, format string, args ...any) error {
	return writeOutput(w, warnMark+" "+format+"\n", args...)
}

func failure(w io.Writer, format string, args ...any) error {
	return writeOutput(w, failMark+" "+format+"\n", args...)
}

// field writes one "label: value" line, skipping empty values.
func field(w io.Writer, label, value string) error {
	if value == "" {
		return nil
	}
	return writeOutput(w, "%-10s %s\n", label+":", value)
}

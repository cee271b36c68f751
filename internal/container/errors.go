// File: internal/container/errors.go
package container

import "fmt"

// CommandError indicates a command ran inside the environment and exited
// non-zero.
type CommandError struct {
	Command  string
	ExitCode int
	Stderr   string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("command exited with status %d: %s", e.ExitCode, e.Stderr)
}

// CommandTimeoutError indicates the per-call hard timeout expired before the
// command finished.
type CommandTimeoutError struct {
	Command string
	Timeout string
}

func (e *CommandTimeoutError) Error() string {
	return fmt.Sprintf("command timed out after %s", e.Timeout)
}

// FileTransferError indicates a file could not be moved into or out of the
// environment.
type FileTransferError struct {
	Path string
	Err  error
}

func (e *FileTransferError) Error() string {
	return fmt.Sprintf("file transfer failed for %q: %v", e.Path, e.Err)
}

func (e *FileTransferError) Unwrap() error { return e.Err }

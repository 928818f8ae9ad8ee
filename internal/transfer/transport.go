package transfer

import (
	"context"
	"fmt"
	"strings"
)

// Transport is the narrow capability the orchestrator needs from the
// external file mover. Tests substitute a fake; production wires Rclone.
type Transport interface {
	// Copy moves one local file to the remote path, overwriting it.
	Copy(ctx context.Context, localPath, remotePath string) error

	// Delete removes a single remote file.
	Delete(ctx context.Context, remotePath string) error

	// Purge removes a remote directory and everything under it.
	Purge(ctx context.Context, remoteDir string) error
}

// Error wraps a failed transfer invocation with the subprocess exit code
// and the tail of its stderr.
type Error struct {
	Args     []string
	ExitCode int
	Stderr   string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("rclone %s: exit %d", strings.Join(e.Args, " "), e.ExitCode)
	if e.Stderr != "" {
		msg += ": " + e.Stderr
	}
	return msg
}

func (e *Error) Unwrap() error {
	return e.Err
}

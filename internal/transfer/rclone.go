package transfer

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"strings"

	"go.uber.org/zap"
)

// Rclone invokes the rclone binary as a subprocess. The remote itself
// (credentials, service type) is whatever rclone config defines; this type
// only shells out with the right verbs.
type Rclone struct {
	binary string
	log    *zap.SugaredLogger
}

func NewRclone(binary string, log *zap.SugaredLogger) *Rclone {
	if binary == "" {
		binary = "rclone"
	}
	return &Rclone{binary: binary, log: log}
}

func (r *Rclone) Copy(ctx context.Context, localPath, remotePath string) error {
	return r.run(ctx, "copyto", localPath, remotePath)
}

func (r *Rclone) Delete(ctx context.Context, remotePath string) error {
	return r.run(ctx, "deletefile", remotePath)
}

func (r *Rclone) Purge(ctx context.Context, remoteDir string) error {
	return r.run(ctx, "purge", remoteDir)
}

func (r *Rclone) run(ctx context.Context, args ...string) error {
	r.log.Debugw("invoking rclone", "binary", r.binary, "args", args)

	cmd := exec.CommandContext(ctx, r.binary, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		exitCode := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			exitCode = exitErr.ExitCode()
		}
		return &Error{
			Args:     args,
			ExitCode: exitCode,
			Stderr:   stderrTail(stderr.String()),
			Err:      err,
		}
	}

	return nil
}

// stderrTail keeps the last few lines of rclone's stderr so the error stays
// loggable on one line.
func stderrTail(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	if len(lines) > 3 {
		lines = lines[len(lines)-3:]
	}
	return strings.Join(lines, "; ")
}

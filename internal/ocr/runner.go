package ocr

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"
)

// Runner runs an external tool. Tests replace it with a fake.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs real binaries. A positive Timeout bounds each call.
type ExecRunner struct {
	Timeout time.Duration
	Logger  *slog.Logger
}

func (r ExecRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	logger := r.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}
	start := time.Now()

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdout, cmd.Stderr = &stdout, &stderr
	err := cmd.Run()

	attrs := []any{"cmd", name, "args", strings.Join(args, " "), "elapsed_ms", time.Since(start).Milliseconds()}
	if err != nil {
		logger.Error("ocr.exec.failed", append(attrs, "error", err, "stderr", truncate(stderr.String(), 8<<10))...)
		return stdout.Bytes(), stderr.Bytes(), err
	}
	logger.Debug("ocr.exec.ok", append(attrs, "stdout_bytes", stdout.Len())...)
	return stdout.Bytes(), stderr.Bytes(), nil
}

// LookupTool reports whether bin can be found on PATH. Without pdftoppm
// the vision fallback has nothing to send.
func LookupTool(bin string) error {
	if _, err := exec.LookPath(bin); err != nil {
		return fmt.Errorf("%s not found: %w", bin, err)
	}
	return nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "...(truncated)"
}

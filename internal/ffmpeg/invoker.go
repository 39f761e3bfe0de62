package ffmpeg

import (
	"context"
	"os/exec"
	"strings"

	"teslabox/internal/services"
)

// Invoker runs one ffmpeg command line.
type Invoker interface {
	Run(ctx context.Context, args []string) error
}

var commandContext = exec.CommandContext

// ExecInvoker runs the ffmpeg binary as a subprocess.
type ExecInvoker struct {
	Binary string
}

// NewExecInvoker returns an invoker for binary, defaulting to "ffmpeg" on PATH.
func NewExecInvoker(binary string) *ExecInvoker {
	if strings.TrimSpace(binary) == "" {
		binary = "ffmpeg"
	}
	return &ExecInvoker{Binary: binary}
}

// Run executes ffmpeg and reports failures as ErrExternalTool carrying its output.
func (e *ExecInvoker) Run(ctx context.Context, args []string) error {
	cmd := commandContext(ctx, e.Binary, args...) //nolint:gosec
	output, err := cmd.CombinedOutput()
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return services.Wrap(services.ErrExternalTool, "ffmpeg", "run", tail(strings.TrimSpace(string(output)), 512), err)
}

func tail(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return "..." + s[len(s)-limit:]
}

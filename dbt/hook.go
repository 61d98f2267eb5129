package dbt

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/dataopskit/dbt-operations-framework/pkg/logger"
)

// ExecError is returned when the dbt subprocess exits non-zero. It carries
// the captured output text so callers can classify the failure from the
// message alone.
type ExecError struct {
	Args     []string
	ExitCode int
	Output   string
}

// Error implements the error interface. The captured output is part of the
// message; error classification matches against it.
func (e *ExecError) Error() string {
	return fmt.Sprintf("dbt %s exited with code %d: %s",
		strings.Join(e.Args, " "), e.ExitCode, strings.TrimSpace(e.Output))
}

// Hook invokes the dbt CLI with a snapshot of a Config. Build a fresh Hook
// per invocation attempt; a Hook must not outlive a config change.
type Hook struct {
	cfg  Config
	lggr logger.Logger
}

// NewHook returns a Hook bound to the given config snapshot.
func NewHook(cfg Config, lggr logger.Logger) *Hook {
	return &Hook{cfg: cfg, lggr: lggr.Named("dbt")}
}

// Run invokes the dbt binary with the given subcommand, blocking until the
// subprocess exits. Output is captured, and streamed into the logger line by
// line when Verbose is set. A non-zero exit returns an *ExecError.
func (h *Hook) Run(ctx context.Context, sub ...string) error {
	args, err := h.cfg.Args(sub...)
	if err != nil {
		return err
	}

	bin := h.cfg.Bin
	if bin == "" {
		bin = DefaultBin
	}

	cmd := exec.CommandContext(ctx, bin, args...)
	cmd.Dir = h.cfg.Dir
	cmd.Env = append(os.Environ(), h.cfg.envList()...)

	var buf bytes.Buffer
	var out io.Writer = &buf
	var lw *lineWriter
	if h.cfg.Verbose {
		lw = newLineWriter(h.lggr)
		out = io.MultiWriter(&buf, lw)
	}
	cmd.Stdout = out
	cmd.Stderr = out

	h.lggr.Infow("Invoking dbt", "bin", bin, "args", args, "dir", h.cfg.Dir)
	start := time.Now()
	runErr := cmd.Run()
	if lw != nil {
		lw.Flush()
	}

	if runErr != nil {
		var exitErr *exec.ExitError
		if !errors.As(runErr, &exitErr) {
			return fmt.Errorf("invoking %s: %w", bin, runErr)
		}

		return &ExecError{
			Args:     args,
			ExitCode: exitErr.ExitCode(),
			Output:   buf.String(),
		}
	}

	h.lggr.Infow("dbt finished", "args", args, "duration", time.Since(start))

	return nil
}

// lineWriter forwards complete output lines to the logger as they arrive.
// Safe for the concurrent writes exec.Cmd performs for stdout and stderr.
type lineWriter struct {
	lggr logger.Logger
	mu   sync.Mutex
	rem  []byte
}

func newLineWriter(lggr logger.Logger) *lineWriter {
	return &lineWriter{lggr: lggr}
}

func (w *lineWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.rem = append(w.rem, p...)
	for {
		idx := bytes.IndexByte(w.rem, '\n')
		if idx < 0 {
			break
		}
		w.lggr.Info(string(w.rem[:idx]))
		w.rem = w.rem[idx+1:]
	}

	return len(p), nil
}

// Flush logs any trailing partial line.
func (w *lineWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if len(w.rem) > 0 {
		w.lggr.Info(string(w.rem))
		w.rem = nil
	}
}

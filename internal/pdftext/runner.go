package pdftext

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"time"
)

// Runner executes the converter binary. Tests substitute a stub.
type Runner interface {
	Run(ctx context.Context, name string, args ...string) (stdout, stderr []byte, err error)
}

// maxStdout bounds the text accepted from pdftotext. A W-2 is a few KB of
// text; anything near this size is not the document we expect.
const maxStdout = 8 << 20

var errOutputTooLarge = errors.New("converter output exceeds limit")

type execRunner struct {
	logger *slog.Logger
}

func (r execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, []byte, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, name, args...)
	out := &cappedBuffer{max: maxStdout}
	var errb bytes.Buffer
	cmd.Stdout = out
	cmd.Stderr = &errb

	err := cmd.Run()
	if out.overflow {
		err = errOutputTooLarge
	}
	r.logger.Debug("pdftext.exec",
		"cmd", name,
		"duration_ms", time.Since(start).Milliseconds(),
		"stdout_bytes", out.Len(),
		"exit", describeExit(err),
	)
	return out.Bytes(), errb.Bytes(), err
}

// describeExit names pdftotext's documented exit codes.
func describeExit(err error) string {
	var ee *exec.ExitError
	if !errors.As(err, &ee) {
		if err == nil {
			return "ok"
		}
		return err.Error()
	}
	switch ee.ExitCode() {
	case 1:
		return "error opening PDF file"
	case 2:
		return "error opening output file"
	case 3:
		return "error related to PDF permissions"
	default:
		return fmt.Sprintf("exit status %d", ee.ExitCode())
	}
}

type cappedBuffer struct {
	bytes.Buffer
	max      int
	overflow bool
}

// Write keeps consuming input past the cap so the child never blocks on a
// full pipe; the excess is discarded.
func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.max - b.Len(); room < len(p) {
		b.overflow = true
		if room > 0 {
			b.Buffer.Write(p[:room])
		}
		return len(p), nil
	}
	return b.Buffer.Write(p)
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "...(truncated)"
}

package runtime

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"
)

// Result is the outcome of one external command.
type Result struct {
	// Code is the exit status. Cancellation and timeout produce the
	// conventional 143 (SIGTERM) and 124 synthetic codes.
	Code int

	// Output is the combined stdout/stderr tail (the last tailLines
	// lines), enough to classify and debug a failing tool without
	// buffering a full multi-megabyte compile log.
	Output string

	// TimedOut is set when the per-call timeout expired.
	TimedOut bool

	// Cancelled is set when the surrounding context was cancelled.
	Cancelled bool
}

const (
	codeTimeout    = 124
	codeTerminated = 143

	tailLines = 200
)

// LineSink receives each output line as it is produced, for verbose
// live streaming. It may be nil.
type LineSink func(line string)

// run executes the command with its own process group, bounded by ctx
// and timeout. On cancellation or timeout the entire group is
// terminated. A non-nil error means the command could not be run at
// all (binary missing, permission); tool failures are reported through
// Result.Code.
func run(ctx context.Context, timeout time.Duration, sink LineSink, name string, args ...string) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{Code: codeTerminated, Cancelled: true}, nil
	}

	runCtx := ctx
	var cancel context.CancelFunc
	if timeout > 0 {
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	tail := newTailWriter(tailLines, sink)

	cmd := exec.Command(name, args...)
	cmd.Stdout = tail
	cmd.Stderr = tail
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}

	if err := cmd.Start(); err != nil {
		return Result{}, err
	}

	// Watchdog: on cancellation or timeout, signal the whole process
	// group so descendant build tooling terminates too.
	done := make(chan struct{})
	go func() {
		select {
		case <-runCtx.Done():
			_ = syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
		case <-done:
		}
	}()

	waitErr := cmd.Wait()
	close(done)
	tail.flush()

	res := Result{Output: tail.String()}
	switch {
	case ctx.Err() != nil:
		res.Code = codeTerminated
		res.Cancelled = true
	case runCtx.Err() != nil:
		res.Code = codeTimeout
		res.TimedOut = true
	case waitErr == nil:
		res.Code = 0
	default:
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.Code = exitErr.ExitCode()
		} else {
			return Result{}, waitErr
		}
	}
	return res, nil
}

// tailWriter keeps the last n lines written to it and forwards complete
// lines to an optional sink.
type tailWriter struct {
	mu    sync.Mutex
	limit int
	lines []string
	buf   strings.Builder
	sink  LineSink
}

func newTailWriter(limit int, sink LineSink) *tailWriter {
	return &tailWriter{limit: limit, sink: sink}
}

func (w *tailWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	for _, b := range p {
		if b == '\n' {
			w.pushLine(w.buf.String())
			w.buf.Reset()
			continue
		}
		w.buf.WriteByte(b)
	}
	return len(p), nil
}

func (w *tailWriter) pushLine(line string) {
	if w.sink != nil {
		w.sink(line)
	}
	w.lines = append(w.lines, line)
	if len(w.lines) > w.limit {
		w.lines = w.lines[len(w.lines)-w.limit:]
	}
}

// flush pushes any trailing partial line.
func (w *tailWriter) flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.buf.Len() > 0 {
		w.pushLine(w.buf.String())
		w.buf.Reset()
	}
}

func (w *tailWriter) String() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return strings.Join(w.lines, "\n")
}

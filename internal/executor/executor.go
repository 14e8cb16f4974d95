// Package executor runs the external coding-agent CLI to completion
// under a single hard deadline. It is the leaf of the bridge stack: it
// knows nothing about sessions or parsing, only argv, stdin, and
// collected output.
package executor

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"os/exec"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/agentrelay/agentrelay/internal/errors"
	"github.com/agentrelay/agentrelay/internal/logging"
)

// LineObserver receives each non-empty stdout line as it is read.
// Observers must not block for long; a panicking observer is logged and
// never aborts the run.
type LineObserver func(line string)

// Request describes one run of the external tool.
type Request struct {
	// Argv is the command and its arguments. Must be non-empty.
	Argv []string
	// Stdin is piped to the process when non-empty.
	Stdin string
	// Timeout is the hard deadline for the entire run.
	Timeout time.Duration
	// Observer, when set, receives stdout line-by-line as it arrives.
	Observer LineObserver
}

// Result carries whatever the run produced. On timeout, Stdout holds
// the partial output collected before the process was killed and
// TimedOut is set; the accompanying error wraps errors.ErrTimeout.
type Result struct {
	Stdout   []byte
	Stderr   []byte
	ExitCode int
	TimedOut bool
}

// Executor spawns subprocesses. The zero value is not usable; call New.
type Executor struct {
	logger *logging.Logger
}

// New creates an Executor. A nil logger is replaced with a no-op logger.
func New(logger *logging.Logger) *Executor {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Executor{logger: logger}
}

// Run executes the request and returns collected output. The returned
// error classifies the failure (tool not found, non-zero exit, timeout);
// a partial Result is returned alongside timeout and exit errors.
//
// Standard error is drained concurrently with the stdout reader so
// neither pipe can fill and deadlock the child.
func (e *Executor) Run(ctx context.Context, req Request) (*Result, error) {
	if len(req.Argv) == 0 {
		return nil, fmt.Errorf("executor: empty argv")
	}

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, req.Argv[0], req.Argv[1:]...)
	if req.Stdin != "" {
		cmd.Stdin = bytes.NewBufferString(req.Stdin)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("executor: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("executor: stderr pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		if errors.Is(err, exec.ErrNotFound) {
			return nil, fmt.Errorf("executor: %w: %s", errors.ErrToolNotFound, req.Argv[0])
		}
		return nil, fmt.Errorf("executor: start: %w", err)
	}

	var outBuf, errBuf bytes.Buffer
	var g errgroup.Group

	g.Go(func() error {
		_, copyErr := io.Copy(&errBuf, stderr)
		return copyErr
	})
	g.Go(func() error {
		if req.Observer == nil {
			_, copyErr := io.Copy(&outBuf, stdout)
			return copyErr
		}
		return e.observeLines(stdout, &outBuf, req.Observer)
	})

	readErr := g.Wait()
	waitErr := cmd.Wait()

	res := &Result{
		Stdout: outBuf.Bytes(),
		Stderr: errBuf.Bytes(),
	}

	// Deadline expiry kills the process; surface whatever was collected
	// as a partial result rather than discarding it.
	if ctx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		return res, fmt.Errorf("executor: %w after %s", errors.ErrTimeout, req.Timeout)
	}

	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			return res, errors.NewToolError(res.ExitCode, errBuf.String())
		}
		return res, fmt.Errorf("executor: wait: %w", waitErr)
	}
	if readErr != nil {
		e.logger.Warn("executor: output read error after clean exit", "error", readErr)
	}

	return res, nil
}

// observeLines consumes stdout line-by-line, forwarding each non-empty
// line to the observer while also accumulating the full output.
func (e *Executor) observeLines(r io.Reader, buf *bytes.Buffer, obs LineObserver) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		buf.WriteString(line)
		buf.WriteByte('\n')
		if line == "" {
			continue
		}
		e.notify(obs, line)
	}
	return scanner.Err()
}

// notify invokes the observer, converting a panic into a log entry.
// Observer failure never aborts the run.
func (e *Executor) notify(obs LineObserver, line string) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Warn("executor: line observer panicked", "panic", r)
		}
	}()
	obs(line)
}

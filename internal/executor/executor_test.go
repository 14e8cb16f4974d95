package executor

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/agentrelay/agentrelay/internal/errors"
)

func newTestExecutor() *Executor {
	return New(nil)
}

func TestRunCollectsStdout(t *testing.T) {
	e := newTestExecutor()

	res, err := e.Run(context.Background(), Request{
		Argv:    []string{"sh", "-c", "echo hello; echo world"},
		Timeout: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := string(res.Stdout); got != "hello\nworld\n" {
		t.Errorf("Stdout = %q", got)
	}
	if res.TimedOut {
		t.Errorf("TimedOut should be false")
	}
}

func TestRunPipesStdin(t *testing.T) {
	e := newTestExecutor()

	res, err := e.Run(context.Background(), Request{
		Argv:    []string{"cat"},
		Stdin:   "payload text",
		Timeout: 10 * time.Second,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := string(res.Stdout); got != "payload text" {
		t.Errorf("Stdout = %q", got)
	}
}

func TestRunToolNotFound(t *testing.T) {
	e := newTestExecutor()

	_, err := e.Run(context.Background(), Request{
		Argv:    []string{"definitely-not-a-real-binary-4f2a"},
		Timeout: time.Second,
	})
	if !errors.Is(err, errors.ErrToolNotFound) {
		t.Errorf("err = %v, want ErrToolNotFound", err)
	}
}

func TestRunNonZeroExit(t *testing.T) {
	e := newTestExecutor()

	res, err := e.Run(context.Background(), Request{
		Argv:    []string{"sh", "-c", "echo oops >&2; exit 3"},
		Timeout: 10 * time.Second,
	})
	if !errors.Is(err, errors.ErrToolFailed) {
		t.Fatalf("err = %v, want ErrToolFailed", err)
	}

	var toolErr *errors.ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("err is not a ToolError: %v", err)
	}
	if toolErr.ExitCode != 3 {
		t.Errorf("ExitCode = %d, want 3", toolErr.ExitCode)
	}
	if !strings.Contains(toolErr.Stderr, "oops") {
		t.Errorf("Stderr = %q, want to contain oops", toolErr.Stderr)
	}
	if res == nil {
		t.Fatalf("partial result should accompany exit errors")
	}
}

func TestRunTimeoutPreservesPartialOutput(t *testing.T) {
	e := newTestExecutor()

	res, err := e.Run(context.Background(), Request{
		Argv:    []string{"sh", "-c", "echo partial; sleep 30"},
		Timeout: 300 * time.Millisecond,
	})
	if !errors.Is(err, errors.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if res == nil || !res.TimedOut {
		t.Fatalf("result should carry the timed-out marker, got %+v", res)
	}
	if got := strings.TrimSpace(string(res.Stdout)); got != "partial" {
		t.Errorf("partial output = %q, want %q", got, "partial")
	}
}

func TestRunTimeoutWithNoOutput(t *testing.T) {
	e := newTestExecutor()

	res, err := e.Run(context.Background(), Request{
		Argv:    []string{"sleep", "30"},
		Timeout: 200 * time.Millisecond,
	})
	if !errors.Is(err, errors.ErrTimeout) {
		t.Fatalf("err = %v, want ErrTimeout", err)
	}
	if len(res.Stdout) != 0 {
		t.Errorf("Stdout = %q, want empty", res.Stdout)
	}
	if !res.TimedOut {
		t.Errorf("TimedOut should be set")
	}
}

func TestObserverReceivesLines(t *testing.T) {
	e := newTestExecutor()

	var mu sync.Mutex
	var lines []string

	res, err := e.Run(context.Background(), Request{
		Argv:    []string{"sh", "-c", "echo one; echo; echo two"},
		Timeout: 10 * time.Second,
		Observer: func(line string) {
			mu.Lock()
			lines = append(lines, line)
			mu.Unlock()
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	// The empty line is skipped; non-empty lines arrive in order.
	if len(lines) != 2 || lines[0] != "one" || lines[1] != "two" {
		t.Errorf("lines = %v, want [one two]", lines)
	}
	// Full output is still collected alongside observation.
	if got := string(res.Stdout); got != "one\n\ntwo\n" {
		t.Errorf("Stdout = %q", got)
	}
}

func TestPanickingObserverDoesNotAbortRun(t *testing.T) {
	e := newTestExecutor()

	res, err := e.Run(context.Background(), Request{
		Argv:    []string{"sh", "-c", "echo a; echo b"},
		Timeout: 10 * time.Second,
		Observer: func(line string) {
			panic("observer bug")
		},
	})
	if err != nil {
		t.Fatalf("Run should survive a panicking observer: %v", err)
	}
	if got := string(res.Stdout); got != "a\nb\n" {
		t.Errorf("Stdout = %q", got)
	}
}

func TestStderrDrainedConcurrently(t *testing.T) {
	e := newTestExecutor()

	// Write well over a pipe buffer to stderr; a run that does not
	// drain stderr concurrently would deadlock and hit the timeout.
	res, err := e.Run(context.Background(), Request{
		Argv:    []string{"sh", "-c", "i=0; while [ $i -lt 5000 ]; do echo 'stderr line of reasonable length for pipe pressure' >&2; i=$((i+1)); done; echo done"},
		Timeout: 30 * time.Second,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got := strings.TrimSpace(string(res.Stdout)); got != "done" {
		t.Errorf("Stdout = %q", got)
	}
	if len(res.Stderr) == 0 {
		t.Errorf("Stderr should have been captured")
	}
}

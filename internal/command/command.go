// Package command spawns external processes and classifies their outcome.
package command

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
)

// Sentinel errors for typed error checking.
var (
	ErrTimeout = errors.New("process exceeded its time limit")
	ErrSpawn   = errors.New("process could not be started")
	ErrExit    = errors.New("process exited with a non-zero status")
)

// Spec describes a single process invocation.
type Spec struct {
	Path    string        // binary to invoke
	Args    []string      // arguments, not shell-interpreted
	Dir     string        // working directory
	Stdin   string        // payload written to stdin, stream closed after
	Timeout time.Duration // wall-clock limit for the process; 0 means none
}

// Outcome carries the captured streams of one process invocation.
// It is transient: callers copy what they need and drop it.
type Outcome struct {
	Stdout string
	Stderr string
}

// RunError wraps a classified process failure together with whatever
// output was captured before the failure.
type RunError struct {
	Err     error    // one of ErrTimeout, ErrSpawn, ErrExit (wrapped)
	Outcome *Outcome // nil for spawn failures
}

func (e *RunError) Error() string { return e.Err.Error() }

func (e *RunError) Unwrap() error { return e.Err }

// Run spawns the process described by spec, feeds it stdin, and collects
// stdout/stderr into fresh buffers. Classification looks only at the exit
// status and the timeout state, never at stream content.
func Run(ctx context.Context, spec Spec) (*Outcome, error) {
	if spec.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, spec.Path, spec.Args...) // #nosec G204 -- Path/Args built by language runners, not raw user input
	cmd.Dir = spec.Dir
	if spec.Stdin != "" {
		cmd.Stdin = strings.NewReader(spec.Stdin)
	}

	// The guest may fork children that inherit the output pipes. The
	// process runs in its own group so the timeout kill takes the whole
	// tree, and WaitDelay caps the pipe drain so an orphaned fd holder
	// can never block Wait past the deadline.
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		err := syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
		if errors.Is(err, syscall.ESRCH) {
			return os.ErrProcessDone
		}
		return err
	}
	cmd.WaitDelay = time.Second

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	out := &Outcome{Stdout: stdout.String(), Stderr: stderr.String()}

	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			log.Warn().
				Str("path", spec.Path).
				Dur("timeout", spec.Timeout).
				Msg("process killed after exceeding its time limit")
			// Raw output is replaced by the timeout marker so partial
			// output of a killed process never reaches a caller.
			killed := &Outcome{
				Stderr: fmt.Sprintf("execution terminated: exceeded %d seconds", int(spec.Timeout.Seconds())),
			}
			return killed, &RunError{
				Err:     fmt.Errorf("%w after %s", ErrTimeout, spec.Timeout),
				Outcome: killed,
			}
		}

		// The process itself exited cleanly; a backgrounded child still
		// held the output pipes when the drain window closed.
		if errors.Is(err, exec.ErrWaitDelay) {
			return out, nil
		}

		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return out, &RunError{
				Err:     fmt.Errorf("%w: exit status %d", ErrExit, exitErr.ExitCode()),
				Outcome: out,
			}
		}

		return nil, &RunError{Err: fmt.Errorf("%w: %v", ErrSpawn, err)}
	}

	log.Debug().
		Str("path", spec.Path).
		Dur("duration", duration).
		Msg("process completed")

	return out, nil
}

// Package hooks runs the optional before and after callbacks around a
// contract validation.
package hooks

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ShayCichocki/consumer-contracts/internal/exec"
)

// Phase names when a hook runs.
type Phase string

const (
	PhaseBefore Phase = "before"
	PhaseAfter  Phase = "after"
)

// Hook is a lifecycle callback.
type Hook interface {
	Run(ctx context.Context) error
}

// Func adapts a function to Hook.
type Func func(ctx context.Context) error

// Run implements Hook.
func (f Func) Run(ctx context.Context) error { return f(ctx) }

// HookError is a hook failure. Its message is the hook's own, verbatim.
type HookError struct {
	Phase Phase
	Err   error
}

func (e *HookError) Error() string { return e.Err.Error() }

func (e *HookError) Unwrap() error { return e.Err }

// Run executes h for phase. A nil hook succeeds. Panics are recovered and
// reported as a HookError.
func Run(ctx context.Context, phase Phase, h Hook) (err error) {
	if h == nil {
		return nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = &HookError{Phase: phase, Err: fmt.Errorf("%s hook panicked: %v", phase, r)}
		}
	}()
	if herr := h.Run(ctx); herr != nil {
		return &HookError{Phase: phase, Err: herr}
	}
	return nil
}

// Callback adapts a completion-callback hook. Only the first call to done
// counts; later calls are ignored. If ctx ends first, its error is returned.
func Callback(fn func(done func(error))) Hook {
	return Func(func(ctx context.Context) error {
		result := make(chan error, 1)
		var once sync.Once
		done := func(err error) {
			once.Do(func() { result <- err })
		}
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done(fmt.Errorf("hook panicked: %v", r))
				}
			}()
			fn(done)
		}()
		select {
		case err := <-result:
			return err
		case <-ctx.Done():
			return ctx.Err()
		}
	})
}

// CommandSpec describes a shell-command hook.
type CommandSpec struct {
	Command string        `yaml:"command"`
	Dir     string        `yaml:"dir,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty"`
}

// Command returns a hook running spec through runner with "sh -c". A
// non-zero exit fails the hook with the command's trimmed output.
func Command(runner exec.CommandRunner, spec CommandSpec) Hook {
	return Func(func(ctx context.Context) error {
		if spec.Timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, spec.Timeout)
			defer cancel()
		}
		out, err := runner.RunShell(ctx, spec.Dir, spec.Command)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil && spec.Timeout > 0 {
			return fmt.Errorf("hook command %q timed out after %s", spec.Command, spec.Timeout)
		}
		if msg := strings.TrimSpace(string(out)); msg != "" {
			return fmt.Errorf("hook command %q failed: %s", spec.Command, msg)
		}
		return fmt.Errorf("hook command %q failed: %w", spec.Command, err)
	})
}

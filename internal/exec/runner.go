// Package exec runs external commands for command hooks.
package exec

import (
	"context"
	"os/exec"
)

// CommandRunner runs external commands. Hooks depend on this interface so
// tests can substitute a fake.
type CommandRunner interface {
	// Run executes name with args and returns combined stdout/stderr.
	// The working directory is workDir when non-empty.
	Run(ctx context.Context, workDir string, name string, args ...string) ([]byte, error)

	// RunShell executes command through "sh -c".
	RunShell(ctx context.Context, workDir string, command string) ([]byte, error)
}

// ShellRunner implements CommandRunner with os/exec. Commands inherit the
// process environment.
type ShellRunner struct{}

// NewRunner creates a ShellRunner.
func NewRunner() *ShellRunner { return &ShellRunner{} }

// Run implements CommandRunner.
func (r *ShellRunner) Run(ctx context.Context, workDir string, name string, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, name, args...)
	if workDir != "" {
		cmd.Dir = workDir
	}
	return cmd.CombinedOutput()
}

// RunShell implements CommandRunner.
func (r *ShellRunner) RunShell(ctx context.Context, workDir string, command string) ([]byte, error) {
	return r.Run(ctx, workDir, "sh", "-c", command)
}

var _ CommandRunner = (*ShellRunner)(nil)

package commands

import (
	"context"
	"io"
	"os/exec"
	"strings"

	"github.com/go-errors/errors"
	"github.com/jesseduffield/kill"
	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"

	"github.com/tuti-cli/tuti/pkg/config"
)

// Runner is the seam through which every runtime subprocess goes. Injecting
// it keeps each external mutation an explicit, traceable call that tests can
// substitute with a fake.
type Runner interface {
	// Run executes the argv and discards output, returning an OperationError
	// on a non-zero exit.
	Run(ctx context.Context, args []string) error
	// Output executes the argv and returns combined stdout/stderr.
	Output(ctx context.Context, args []string) (string, error)
	// Capture executes the argv keeping stdout and stderr separate, along
	// with the exit code. A non-zero exit is reported in the result, not as
	// an error; the error covers spawn failures only.
	Capture(ctx context.Context, args []string) (ExecResult, error)
	// Stream executes the argv with stdout and stderr attached to out. It
	// blocks until the subprocess exits; for followed logs that means until
	// the process is terminated externally.
	Stream(args []string, out io.Writer) error
}

// ExecResult carries what a captured subprocess produced.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
}

// Success reports whether the subprocess exited zero.
func (r ExecResult) Success() bool { return r.ExitCode == 0 }

// OSCommand holds all the os commands we run as subprocesses.
type OSCommand struct {
	Log    *logrus.Entry
	Config *config.AppConfig

	command func(string, ...string) *exec.Cmd

	// the currently streaming subprocess, so a signal handler can take the
	// open-ended logs pipeline down from outside
	streamMutex deadlock.Mutex
	streaming   *exec.Cmd
}

var _ Runner = &OSCommand{}

// NewOSCommand os command runner
func NewOSCommand(log *logrus.Entry, appConfig *config.AppConfig) *OSCommand {
	return &OSCommand{
		Log:     log,
		Config:  appConfig,
		command: exec.Command,
	}
}

// SetCommand sets the command function used to construct subprocesses. Used
// in tests to intercept what would be spawned.
func (c *OSCommand) SetCommand(cmd func(string, ...string) *exec.Cmd) {
	c.command = cmd
}

// Run implements Runner.
func (c *OSCommand) Run(ctx context.Context, args []string) error {
	_, err := c.Output(ctx, args)
	return err
}

// Output implements Runner.
func (c *OSCommand) Output(ctx context.Context, args []string) (string, error) {
	c.Log.WithField("args", strings.Join(args, " ")).Debug("run")

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), &OperationError{Args: args, Stderr: strings.TrimSpace(string(out)), Cause: err}
	}
	return string(out), nil
}

// Capture implements Runner.
func (c *OSCommand) Capture(ctx context.Context, args []string) (ExecResult, error) {
	c.Log.WithField("args", strings.Join(args, " ")).Debug("capture")

	cmd := exec.CommandContext(ctx, args[0], args[1:]...)

	var stdout, stderr strings.Builder
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	result := ExecResult{Stdout: stdout.String(), Stderr: stderr.String()}

	var exitErr *exec.ExitError
	switch {
	case err == nil:
		result.ExitCode = 0
	case errors.As(err, &exitErr):
		result.ExitCode = exitErr.ExitCode()
	default:
		return result, errors.Wrap(err, 0)
	}

	return result, nil
}

// Stream implements Runner.
func (c *OSCommand) Stream(args []string, out io.Writer) error {
	c.Log.WithField("args", strings.Join(args, " ")).Debug("stream")

	cmd := c.command(args[0], args[1:]...)
	cmd.Stdout = out
	cmd.Stderr = out

	// Put the subprocess in its own process group so an external signal can
	// take down the whole compose log pipeline at once.
	c.PrepareForChildren(cmd)

	c.streamMutex.Lock()
	c.streaming = cmd
	c.streamMutex.Unlock()

	err := cmd.Run()

	c.streamMutex.Lock()
	c.streaming = nil
	c.streamMutex.Unlock()

	if err != nil {
		return &OperationError{Args: args, Cause: err}
	}
	return nil
}

// KillStreaming terminates the currently streaming subprocess, if any. This
// is the cancellation path for followed logs, which otherwise block forever.
func (c *OSCommand) KillStreaming() error {
	c.streamMutex.Lock()
	defer c.streamMutex.Unlock()

	if c.streaming == nil {
		return nil
	}
	return c.Kill(c.streaming)
}

// Kill kills a process. If the process has Setpgid set, this will kill the
// process group to which the process belongs.
func (c *OSCommand) Kill(cmd *exec.Cmd) error {
	return kill.Kill(cmd)
}

// PrepareForChildren sets the process group flag on the command.
func (c *OSCommand) PrepareForChildren(cmd *exec.Cmd) {
	kill.PrepareForChildren(cmd)
}

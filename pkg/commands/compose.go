package commands

import (
	"context"
	"io"

	"github.com/mgutz/str"
	"github.com/sasha-s/go-deadlock"
	"github.com/sirupsen/logrus"

	"github.com/tuti-cli/tuti/pkg/config"
)

// Stack is anything a compose invocation can be scoped to: a user project or
// the shared infrastructure. Every invocation pins the descriptor path, the
// namespace and (when present) the env file, so repeated commands target the
// same logical stack regardless of working directory.
type Stack interface {
	ComposeFile() string
	Namespace() string
	EnvFile() (string, bool)
}

// Compose drives a stack's containers through the compose cli.
type Compose struct {
	Log    *logrus.Entry
	Config *config.AppConfig
	Runner Runner

	// guards the one-time docker-compose fallback probe
	composeMutex    deadlock.Mutex
	composeResolved bool
}

// NewCompose creates a Compose orchestrator running subprocesses through the
// given runner.
func NewCompose(log *logrus.Entry, appConfig *config.AppConfig, runner Runner) *Compose {
	return &Compose{
		Log:    log,
		Config: appConfig,
		Runner: runner,
	}
}

// composeCommand resolves the compose command tokens, probing once whether
// `docker compose` works and falling back to the standalone `docker-compose`
// binary for users still on it.
func (c *Compose) composeCommand(ctx context.Context) []string {
	c.composeMutex.Lock()
	defer c.composeMutex.Unlock()

	templates := &c.Config.UserConfig.CommandTemplates
	if !c.composeResolved {
		c.composeResolved = true
		if templates.DockerCompose == "docker compose" {
			probe := append(str.ToArgv(templates.DockerCompose), "version")
			if err := c.Runner.Run(ctx, probe); err != nil {
				c.Log.Debug("docker compose plugin not available, using docker-compose")
				templates.DockerCompose = "docker-compose"
			}
		}
	}

	return str.ToArgv(templates.DockerCompose)
}

// args builds the pinned argument vector for a stack, then appends the
// operation tokens.
func (c *Compose) args(ctx context.Context, stack Stack, operation ...string) []string {
	result := append(c.composeCommand(ctx), "-f", stack.ComposeFile(), "-p", stack.Namespace())
	if envFile, ok := stack.EnvFile(); ok {
		result = append(result, "--env-file", envFile)
	}
	return append(result, operation...)
}

// Up brings the stack up detached. The runtime makes this idempotent; no
// extra guard is added here.
func (c *Compose) Up(ctx context.Context, stack Stack) error {
	return c.Runner.Run(ctx, c.args(ctx, stack, "up", "-d"))
}

// Down tears the stack down, keeping named volumes.
func (c *Compose) Down(ctx context.Context, stack Stack) error {
	return c.Runner.Run(ctx, c.args(ctx, stack, "down"))
}

// Destroy tears the stack down including named volumes.
func (c *Compose) Destroy(ctx context.Context, stack Stack) error {
	return c.Runner.Run(ctx, c.args(ctx, stack, "down", "-v"))
}

// Restart restarts the whole stack, or a single service when one is named.
func (c *Compose) Restart(ctx context.Context, stack Stack, service string) error {
	operation := []string{"restart"}
	if service != "" {
		operation = append(operation, service)
	}
	return c.Runner.Run(ctx, c.args(ctx, stack, operation...))
}

// Status reports the stack's services in the order the runtime lists them.
// Garbled status lines are dropped, never fatal.
func (c *Compose) Status(ctx context.Context, stack Stack) ([]ServiceStatus, error) {
	output, err := c.Runner.Output(ctx, c.args(ctx, stack, "ps", "--format", "json"))
	if err != nil {
		return nil, err
	}
	return parseComposeStatus(output), nil
}

// Exec runs a command inside a named service's container. When interactive
// is false the TTY is disabled so output can be captured.
func (c *Compose) Exec(ctx context.Context, stack Stack, service, command string, interactive bool) (ExecResult, error) {
	operation := []string{"exec"}
	if !interactive {
		operation = append(operation, "-T")
	}
	operation = append(operation, service, "sh", "-c", command)
	return c.Runner.Capture(ctx, c.args(ctx, stack, operation...))
}

// Logs streams the stack's logs to out. With follow set this blocks until
// the subprocess is terminated from outside; there is no internal timeout.
func (c *Compose) Logs(ctx context.Context, stack Stack, service string, follow bool, out io.Writer) error {
	operation := []string{"logs"}
	if follow {
		operation = append(operation, "--follow")
	}
	if service != "" {
		operation = append(operation, service)
	}
	return c.Runner.Stream(c.args(ctx, stack, operation...), out)
}

// Build builds the stack's images, or one service's image.
func (c *Compose) Build(ctx context.Context, stack Stack, service string) error {
	operation := []string{"build"}
	if service != "" {
		operation = append(operation, service)
	}
	return c.Runner.Run(ctx, c.args(ctx, stack, operation...))
}

// Pull pulls the stack's images.
func (c *Compose) Pull(ctx context.Context, stack Stack) error {
	return c.Runner.Run(ctx, c.args(ctx, stack, "pull"))
}

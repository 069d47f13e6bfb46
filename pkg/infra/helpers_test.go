package infra

import (
	"context"
	"io"
	"strings"
	"testing"

	"github.com/tuti-cli/tuti/pkg/commands"
	"github.com/tuti-cli/tuti/pkg/config"
)

// fakeRunner records subprocess invocations and can be scripted to fail for
// argv prefixes (e.g. "mkcert" to simulate the tool being absent).
type fakeRunner struct {
	calls        [][]string
	outputs      map[string]string
	failPrefixes []string
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{outputs: map[string]string{}}
}

func (r *fakeRunner) failFor(args []string) error {
	joined := strings.Join(args, " ")
	for _, prefix := range r.failPrefixes {
		if strings.HasPrefix(joined, prefix) {
			return &commands.OperationError{Args: args, Stderr: "scripted failure"}
		}
	}
	return nil
}

func (r *fakeRunner) Run(ctx context.Context, args []string) error {
	r.calls = append(r.calls, args)
	return r.failFor(args)
}

func (r *fakeRunner) Output(ctx context.Context, args []string) (string, error) {
	r.calls = append(r.calls, args)
	if err := r.failFor(args); err != nil {
		return "", err
	}
	return r.outputs[strings.Join(args, " ")], nil
}

func (r *fakeRunner) Capture(ctx context.Context, args []string) (commands.ExecResult, error) {
	r.calls = append(r.calls, args)
	if err := r.failFor(args); err != nil {
		return commands.ExecResult{}, err
	}
	return commands.ExecResult{}, nil
}

func (r *fakeRunner) Stream(args []string, out io.Writer) error {
	r.calls = append(r.calls, args)
	return r.failFor(args)
}

func (r *fakeRunner) callsMatching(prefix string) [][]string {
	matched := [][]string{}
	for _, call := range r.calls {
		if strings.HasPrefix(strings.Join(call, " "), prefix) {
			matched = append(matched, call)
		}
	}
	return matched
}

// fakeRuntime is an in-memory ContainerRuntime: a set of networks and a
// running-container count per namespace.
type fakeRuntime struct {
	pingErr     error
	networks    map[string]bool
	createCalls int
	running     map[string]int
}

func newFakeRuntime() *fakeRuntime {
	return &fakeRuntime{
		networks: map[string]bool{},
		running:  map[string]int{},
	}
}

func (f *fakeRuntime) Ping(ctx context.Context) error { return f.pingErr }

func (f *fakeRuntime) NetworkExists(ctx context.Context, name string) (bool, error) {
	return f.networks[name], nil
}

func (f *fakeRuntime) CreateNetwork(ctx context.Context, name string) error {
	f.createCalls++
	f.networks[name] = true
	return nil
}

func (f *fakeRuntime) RunningContainers(ctx context.Context, namespace string) (int, error) {
	return f.running[namespace], nil
}

type testHarness struct {
	Manager *Manager
	Runner  *fakeRunner
	Runtime *fakeRuntime
	Config  *config.AppConfig
}

func newTestManager(t *testing.T) *testHarness {
	t.Helper()

	appConfig := &config.AppConfig{
		Name:       "tuti",
		Version:    "test",
		ConfigDir:  t.TempDir(),
		DataDir:    t.TempDir(),
		UserConfig: config.GetDefaultUserConfig(),
	}

	logger := appConfig.NewLogger()
	runner := newFakeRunner()
	runtime := newFakeRuntime()
	compose := commands.NewCompose(logger, appConfig, runner)

	return &testHarness{
		Manager: NewManager(logger, appConfig, compose, runtime, runner),
		Runner:  runner,
		Runtime: runtime,
		Config:  appConfig,
	}
}

// markProxyRunning simulates the proxy namespace having running containers.
func (h *testHarness) markProxyRunning(count int) {
	h.Runtime.running[h.Config.UserConfig.Proxy.Namespace] = count
}

package commands

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/tuti-cli/tuti/pkg/config"
)

// fakeRunner records every invocation and serves scripted outputs, letting
// tests assert exactly which runtime calls were made.
type fakeRunner struct {
	calls        [][]string
	outputs      map[string]string
	failPrefixes []string
	captured     ExecResult
}

func newFakeRunner() *fakeRunner {
	return &fakeRunner{outputs: map[string]string{}}
}

func (r *fakeRunner) key(args []string) string { return strings.Join(args, " ") }

func (r *fakeRunner) failFor(args []string) error {
	joined := r.key(args)
	for _, prefix := range r.failPrefixes {
		if strings.HasPrefix(joined, prefix) {
			return &OperationError{Args: args, Stderr: "scripted failure"}
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
	return r.outputs[r.key(args)], nil
}

func (r *fakeRunner) Capture(ctx context.Context, args []string) (ExecResult, error) {
	r.calls = append(r.calls, args)
	if err := r.failFor(args); err != nil {
		return ExecResult{}, err
	}
	return r.captured, nil
}

func (r *fakeRunner) Stream(args []string, out io.Writer) error {
	r.calls = append(r.calls, args)
	if output, ok := r.outputs[r.key(args)]; ok {
		_, _ = io.WriteString(out, output)
	}
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

func testAppConfig(t *testing.T) *config.AppConfig {
	t.Helper()
	return &config.AppConfig{
		Name:       "tuti",
		Version:    "test",
		ConfigDir:  t.TempDir(),
		DataDir:    t.TempDir(),
		UserConfig: config.GetDefaultUserConfig(),
	}
}

// testProject scaffolds a project directory the way the stack templates
// would: tuti.yml plus the .tuti compose descriptor and env file.
func testProject(t *testing.T, name string) *Project {
	t.Helper()

	dir := t.TempDir()
	writeProjectFile(t, dir, "tuti.yml", "name: "+name+"\ntype: laravel\nversion: \"11\"\n")
	writeProjectFile(t, dir, filepath.Join(".tuti", "docker-compose.yml"), "services: {}\n")
	writeProjectFile(t, dir, filepath.Join(".tuti", ".env"), "APP_ENV=local\n")

	project, err := LoadProject(dir)
	require.NoError(t, err)
	return project
}

func writeProjectFile(t *testing.T, dir, name, content string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

// Package infra manages the one shared piece of infrastructure every
// project relies on: the Traefik reverse proxy and the bridge network that
// make stacks reachable under friendly local hostnames.
package infra

import (
	"context"
	"os"
	"path/filepath"

	"github.com/go-errors/errors"
	"github.com/sirupsen/logrus"

	"github.com/tuti-cli/tuti/pkg/commands"
	"github.com/tuti-cli/tuti/pkg/config"
)

// ComponentHealth is the coarse health of one infrastructure component.
type ComponentHealth string

const (
	HealthHealthy      ComponentHealth = "healthy"
	HealthStopped      ComponentHealth = "stopped"
	HealthNotInstalled ComponentHealth = "not_installed"
	HealthMissing      ComponentHealth = "missing"
	HealthUnknown      ComponentHealth = "unknown"
)

// ComponentStatus reports one component of the shared infrastructure.
type ComponentStatus struct {
	Installed bool
	Running   bool
	Health    ComponentHealth
}

// Status maps component name ("proxy", "network") to its observed status.
type Status map[string]ComponentStatus

// Manager installs and drives the shared reverse proxy. Its state machine is
// NotInstalled → Installed&Stopped → Installed&Running, with the shared
// network as an orthogonal present/absent flag.
type Manager struct {
	Log     *logrus.Entry
	Config  *config.AppConfig
	Compose *commands.Compose
	Runtime commands.ContainerRuntime
	Runner  commands.Runner
}

// NewManager creates an infrastructure manager.
func NewManager(log *logrus.Entry, appConfig *config.AppConfig, compose *commands.Compose, runtime commands.ContainerRuntime, runner commands.Runner) *Manager {
	return &Manager{
		Log:     log,
		Config:  appConfig,
		Compose: compose,
		Runtime: runtime,
		Runner:  runner,
	}
}

// proxyStack scopes compose invocations to the infrastructure's fixed
// directory and namespace, kept distinct from every user project namespace.
type proxyStack struct {
	root      string
	namespace string
}

func (s proxyStack) ComposeFile() string { return filepath.Join(s.root, "docker-compose.yml") }
func (s proxyStack) Namespace() string   { return s.namespace }

func (s proxyStack) EnvFile() (string, bool) {
	path := filepath.Join(s.root, ".env")
	_, err := os.Stat(path)
	return path, err == nil
}

func (m *Manager) stack() proxyStack {
	return proxyStack{
		root:      m.Config.InfraDir(),
		namespace: m.Config.UserConfig.Proxy.Namespace,
	}
}

// IsInstalled reports whether the infrastructure's compose descriptor exists
// at its fixed location.
func (m *Manager) IsInstalled() bool {
	_, err := os.Stat(m.stack().ComposeFile())
	return err == nil
}

// IsRunning reports whether at least one of the infrastructure's own
// containers is running. Never true when not installed.
func (m *Manager) IsRunning(ctx context.Context) (bool, error) {
	if !m.IsInstalled() {
		return false, nil
	}

	running, err := m.Runtime.RunningContainers(ctx, m.stack().Namespace())
	if err != nil {
		return false, err
	}
	return running > 0, nil
}

// Start brings the proxy up. Installation is never implicit: starting an
// uninstalled infrastructure is an ErrNotInstalled, not an install.
func (m *Manager) Start(ctx context.Context) error {
	if !m.IsInstalled() {
		return errors.Wrap(commands.ErrNotInstalled, 0)
	}

	if err := m.EnsureNetwork(ctx, ""); err != nil {
		return err
	}

	return m.Compose.Up(ctx, m.stack())
}

// Stop tears the proxy down; a no-op when not installed.
func (m *Manager) Stop(ctx context.Context) error {
	if !m.IsInstalled() {
		return nil
	}
	return m.Compose.Down(ctx, m.stack())
}

// Restart stops then starts the proxy.
func (m *Manager) Restart(ctx context.Context) error {
	if err := m.Stop(ctx); err != nil {
		return err
	}
	return m.Start(ctx)
}

// EnsureNetwork makes sure the shared bridge network exists, creating it
// only when absent. An empty name means the configured default.
func (m *Manager) EnsureNetwork(ctx context.Context, name string) error {
	if name == "" {
		name = m.Config.UserConfig.Network.Name
	}

	exists, err := m.Runtime.NetworkExists(ctx, name)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	m.Log.WithField("network", name).Info("creating shared network")
	return m.Runtime.CreateNetwork(ctx, name)
}

// EnsureReady is the composite used before project operations: daemon
// reachable, installed, running, network present. Each step is skipped when
// already satisfied.
func (m *Manager) EnsureReady(ctx context.Context) error {
	if err := m.Runtime.Ping(ctx); err != nil {
		return err
	}

	if !m.IsInstalled() {
		if err := m.Install(ctx); err != nil {
			return err
		}
	}

	running, err := m.IsRunning(ctx)
	if err != nil {
		return err
	}

	if !running {
		return m.Start(ctx)
	}

	// Start would have ensured the network; when already running we still
	// need to check it.
	return m.EnsureNetwork(ctx, "")
}

// GetStatus reports per-component health: the proxy is not_installed /
// stopped / healthy, the network healthy or missing.
func (m *Manager) GetStatus(ctx context.Context) (Status, error) {
	installed := m.IsInstalled()

	proxy := ComponentStatus{Installed: installed, Health: HealthNotInstalled}
	if installed {
		running, err := m.IsRunning(ctx)
		if err != nil {
			proxy.Health = HealthUnknown
		} else if running {
			proxy.Running = true
			proxy.Health = HealthHealthy
		} else {
			proxy.Health = HealthStopped
		}
	}

	network := ComponentStatus{Health: HealthMissing}
	exists, err := m.Runtime.NetworkExists(ctx, m.Config.UserConfig.Network.Name)
	if err != nil {
		network.Health = HealthUnknown
	} else if exists {
		network = ComponentStatus{Installed: true, Running: true, Health: HealthHealthy}
	}

	return Status{"proxy": proxy, "network": network}, nil
}

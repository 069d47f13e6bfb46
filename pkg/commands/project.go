package commands

import (
	"os"
	"path/filepath"
	"time"

	"github.com/go-errors/errors"
	"github.com/jesseduffield/yaml"
	"github.com/samber/lo"
	"github.com/spkg/bom"
)

// ProjectState is the last observed lifecycle state of a project's stack.
// It is a cache of observed truth, never authoritative: SyncState can
// re-derive it from the runtime at any time.
type ProjectState string

const (
	StateUninitialized ProjectState = "uninitialized"
	StateStopped       ProjectState = "stopped"
	StateRunning       ProjectState = "running"
	StateUnknown       ProjectState = "unknown"
)

// recognized stack identifiers, matching the scaffolding templates shipped
// with the cli
var recognizedStackTypes = []string{"laravel", "wordpress", "symfony", "static"}

// ProjectConfig is the immutable declared configuration of a project, read
// from its tuti.yml.
type ProjectConfig struct {
	Name         string        `yaml:"name"`
	Type         string        `yaml:"type"`
	Version      string        `yaml:"version,omitempty"`
	Environments yaml.MapSlice `yaml:"environments,omitempty"`

	// Raw preserves the original document byte-for-byte so rewriting the
	// file never loses fields this version does not understand.
	Raw []byte `yaml:"-"`
}

// EnvironmentNames returns the environment names in declaration order.
func (c *ProjectConfig) EnvironmentNames() []string {
	return lo.FilterMap(c.Environments, func(item yaml.MapItem, _ int) (string, bool) {
		name, ok := item.Key.(string)
		return name, ok
	})
}

// Project is a managed project: its location on disk, its declared config
// and the last observed state of its container stack.
type Project struct {
	Path        string
	Config      ProjectConfig
	State       ProjectState
	LastUpdated time.Time
}

// LoadProject reads and validates a project's tuti.yml from the given
// directory.
func LoadProject(path string) (*Project, error) {
	content, err := os.ReadFile(filepath.Join(path, "tuti.yml"))
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}

	cfg := ProjectConfig{}
	if err := yaml.Unmarshal(bom.Clean(content), &cfg); err != nil {
		return nil, errors.Wrap(err, 0)
	}
	cfg.Raw = content

	if cfg.Name == "" {
		return nil, errors.Errorf("project at %s has no name", path)
	}
	if !lo.Contains(recognizedStackTypes, cfg.Type) {
		return nil, errors.Errorf("unrecognized stack type %q for project %s", cfg.Type, cfg.Name)
	}

	return &Project{
		Path:   path,
		Config: cfg,
		State:  StateUninitialized,
	}, nil
}

// Namespace is the stable compose project identifier. Scoping invocations
// by it rather than the working directory means repeated commands always hit
// the same logical stack.
func (p *Project) Namespace() string {
	return "tuti-" + p.Config.Name
}

// ComposeFile is the path of the compose descriptor the scaffolding system
// wrote for this project.
func (p *Project) ComposeFile() string {
	return filepath.Join(p.Path, ".tuti", "docker-compose.yml")
}

// EnvFile returns the project env file path and whether it exists.
func (p *Project) EnvFile() (string, bool) {
	path := filepath.Join(p.Path, ".tuti", ".env")
	_, err := os.Stat(path)
	return path, err == nil
}

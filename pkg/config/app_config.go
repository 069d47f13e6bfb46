package config

import (
	"io"
	"os"
	"path/filepath"

	"github.com/OpenPeeDeeP/xdg"
	"github.com/go-errors/errors"
	"github.com/imdario/mergo"
	"github.com/jesseduffield/yaml"
	"github.com/sirupsen/logrus"
	"github.com/spkg/bom"
)

// AppConfig contains the base configuration fields required for tuti.
type AppConfig struct {
	Name       string
	Version    string
	Debug      bool
	ConfigDir  string
	DataDir    string
	UserConfig *UserConfig
}

// UserConfig holds the user-editable knobs, read from config.yml in the
// config dir and merged over the defaults.
type UserConfig struct {
	CommandTemplates CommandTemplates `yaml:"commandTemplates,omitempty"`
	Network          NetworkConfig    `yaml:"network,omitempty"`
	Proxy            ProxyConfig      `yaml:"proxy,omitempty"`
	Timeouts         TimeoutConfig    `yaml:"timeouts,omitempty"`
}

// CommandTemplates determines what commands actually get called when we run
// certain actions.
type CommandTemplates struct {
	DockerCompose string `yaml:"dockerCompose,omitempty"`
}

// NetworkConfig configures the shared bridge network all projects join.
type NetworkConfig struct {
	Name string `yaml:"name,omitempty"`
}

// ProxyConfig configures the shared reverse proxy installation.
type ProxyConfig struct {
	Namespace string `yaml:"namespace,omitempty"`
	Domain    string `yaml:"domain,omitempty"`
	HTTPPort  int    `yaml:"httpPort,omitempty"`
	HTTPSPort int    `yaml:"httpsPort,omitempty"`
}

// TimeoutConfig holds the bounds on blocking runtime calls. Lifecycle
// operations (up/down/restart) get a generous bound; port probing a
// sub-second one.
type TimeoutConfig struct {
	LifecycleSeconds int `yaml:"lifecycleSeconds,omitempty"`
	PortProbeMillis  int `yaml:"portProbeMillis,omitempty"`
}

// GetDefaultUserConfig returns the default config
func GetDefaultUserConfig() *UserConfig {
	return &UserConfig{
		CommandTemplates: CommandTemplates{
			DockerCompose: "docker compose",
		},
		Network: NetworkConfig{
			Name: "tuti",
		},
		Proxy: ProxyConfig{
			Namespace: "tuti-proxy",
			Domain:    "tuti.test",
			HTTPPort:  80,
			HTTPSPort: 443,
		},
		Timeouts: TimeoutConfig{
			LifecycleSeconds: 600,
			PortProbeMillis:  500,
		},
	}
}

// NewAppConfig makes a new app config
func NewAppConfig(name, version string, debug bool) (*AppConfig, error) {
	configDir, err := findOrCreateConfigDir(name)
	if err != nil {
		return nil, err
	}

	dataDir, err := findOrCreateDataDir(name)
	if err != nil {
		return nil, err
	}

	userConfig, err := loadUserConfigWithDefaults(configDir)
	if err != nil {
		return nil, err
	}

	return &AppConfig{
		Name:       name,
		Version:    version,
		Debug:      debug,
		ConfigDir:  configDir,
		DataDir:    dataDir,
		UserConfig: userConfig,
	}, nil
}

func findOrCreateConfigDir(projectName string) (string, error) {
	xdgEntry := xdg.New("tuti-cli", projectName)
	folder := xdgEntry.ConfigHome()
	return folder, os.MkdirAll(folder, 0o755)
}

func findOrCreateDataDir(projectName string) (string, error) {
	xdgEntry := xdg.New("tuti-cli", projectName)
	folder := xdgEntry.DataHome()
	return folder, os.MkdirAll(folder, 0o755)
}

func loadUserConfigWithDefaults(configDir string) (*UserConfig, error) {
	return loadUserConfig(configDir, GetDefaultUserConfig())
}

func loadUserConfig(configDir string, base *UserConfig) (*UserConfig, error) {
	fileName := filepath.Join(configDir, "config.yml")

	if _, err := os.Stat(fileName); err != nil {
		if os.IsNotExist(err) {
			return base, nil
		}
		return nil, errors.Wrap(err, 0)
	}

	content, err := os.ReadFile(fileName)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}

	// The user might have saved the file through an editor that prepends a
	// byte order mark, which the yaml parser chokes on.
	userConfig := &UserConfig{}
	if err := yaml.Unmarshal(bom.Clean(content), userConfig); err != nil {
		return nil, errors.Wrap(err, 0)
	}

	if err := mergo.Merge(userConfig, base); err != nil {
		return nil, errors.Wrap(err, 0)
	}

	return userConfig, nil
}

// WriteToUserConfig allows tests and the cli to persist a modified config.
func (c *AppConfig) WriteToUserConfig(updateConfig func(*UserConfig) error) error {
	if err := updateConfig(c.UserConfig); err != nil {
		return err
	}

	out, err := yaml.Marshal(c.UserConfig)
	if err != nil {
		return errors.Wrap(err, 0)
	}

	return os.WriteFile(filepath.Join(c.ConfigDir, "config.yml"), out, 0o644)
}

// InfraDir is the fixed root owned by the infrastructure manager: compose
// file, certs/, secrets/, dynamic/ and .env all live underneath it.
func (c *AppConfig) InfraDir() string {
	return filepath.Join(c.DataDir, "proxy")
}

// NewLogger returns a logger for the given config. Unless debug is set, log
// lines go nowhere rather than polluting command output.
func (c *AppConfig) NewLogger() *logrus.Entry {
	log := logrus.New()
	log.SetOutput(io.Discard)

	if c.Debug {
		logPath := filepath.Join(c.ConfigDir, "development.log")
		file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			log.SetOutput(file)
			log.SetLevel(logrus.DebugLevel)
		}
	}

	log.SetFormatter(&logrus.JSONFormatter{})

	return log.WithFields(logrus.Fields{
		"app":     c.Name,
		"version": c.Version,
	})
}

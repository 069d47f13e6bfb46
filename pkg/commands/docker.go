package commands

import (
	"context"
	"fmt"
	"io"
	"os"

	cliconfig "github.com/docker/cli/cli/config"
	ddocker "github.com/docker/cli/cli/context/docker"
	ctxstore "github.com/docker/cli/cli/context/store"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/go-errors/errors"
	"github.com/sirupsen/logrus"
)

const composeProjectLabel = "com.docker.compose.project"

// ContainerRuntime is the runtime-access collaborator shared by the
// orchestrator and the infrastructure manager. The daemon and the shared
// network are ambient external state; routing every mutation through this
// one seam keeps them substitutable in tests.
type ContainerRuntime interface {
	// Ping verifies the daemon is reachable, returning ErrRuntimeUnavailable
	// when it is not.
	Ping(ctx context.Context) error
	// NetworkExists reports whether the named network exists.
	NetworkExists(ctx context.Context, name string) (bool, error)
	// CreateNetwork creates the named bridge network.
	CreateNetwork(ctx context.Context, name string) error
	// RunningContainers returns how many containers of the given compose
	// namespace are currently in the running state.
	RunningContainers(ctx context.Context, namespace string) (int, error)
}

// DockerClient wraps the docker SDK client behind ContainerRuntime.
type DockerClient struct {
	Log    *logrus.Entry
	Client *client.Client
}

var _ ContainerRuntime = &DockerClient{}

var _ io.Closer = &DockerClient{}

// NewDockerClient creates a DockerClient connected to the host resolved from
// the environment and the current docker context.
func NewDockerClient(log *logrus.Entry) (*DockerClient, error) {
	dockerHost, err := determineDockerHost()
	if err != nil {
		log.WithError(err).Warn("could not determine docker host, falling back to default")
		dockerHost = defaultDockerHost
	}

	cli, err := client.NewClientWithOpts(
		client.WithTLSClientConfigFromEnv(),
		client.WithAPIVersionNegotiation(),
		client.WithHost(dockerHost),
	)
	if err != nil {
		return nil, errors.Wrap(err, 0)
	}

	return &DockerClient{Log: log, Client: cli}, nil
}

// Close releases the SDK client's idle connections.
func (d *DockerClient) Close() error {
	return d.Client.Close()
}

// Ping implements ContainerRuntime.
func (d *DockerClient) Ping(ctx context.Context) error {
	if _, err := d.Client.Ping(ctx); err != nil {
		d.Log.WithError(err).Error("docker daemon unreachable")
		return errors.Wrap(ErrRuntimeUnavailable, 0)
	}
	return nil
}

// NetworkExists implements ContainerRuntime.
func (d *DockerClient) NetworkExists(ctx context.Context, name string) (bool, error) {
	_, err := d.Client.NetworkInspect(ctx, name, network.InspectOptions{})
	if err != nil {
		if client.IsErrNotFound(err) {
			return false, nil
		}
		return false, errors.Wrap(err, 0)
	}
	return true, nil
}

// CreateNetwork implements ContainerRuntime.
func (d *DockerClient) CreateNetwork(ctx context.Context, name string) error {
	_, err := d.Client.NetworkCreate(ctx, name, network.CreateOptions{Driver: "bridge"})
	if err != nil {
		return errors.Wrap(err, 0)
	}
	return nil
}

// RunningContainers implements ContainerRuntime. Compose stamps every
// container it creates with the project label, so counting running members
// of a namespace is a label filter away.
func (d *DockerClient) RunningContainers(ctx context.Context, namespace string) (int, error) {
	containers, err := d.Client.ContainerList(ctx, container.ListOptions{
		All: true,
		Filters: filters.NewArgs(
			filters.Arg("label", composeProjectLabel+"="+namespace),
		),
	})
	if err != nil {
		return 0, errors.Wrap(err, 0)
	}

	running := 0
	for _, ctr := range containers {
		if ctr.State == "running" {
			running++
		}
	}
	return running, nil
}

// determineDockerHost tries to the determine the docker host that we should
// connect to in the following order of decreasing precedence:
//   - value of "DOCKER_HOST" environment variable
//   - host retrieved from the current context (specified via DOCKER_CONTEXT)
//   - "default docker host" for the host operating system, otherwise
func determineDockerHost() (string, error) {
	if os.Getenv("DOCKER_HOST") != "" {
		return os.Getenv("DOCKER_HOST"), nil
	}

	currentContext := os.Getenv("DOCKER_CONTEXT")
	if currentContext == "" {
		cf, err := cliconfig.Load(cliconfig.Dir())
		if err != nil {
			return "", err
		}
		currentContext = cf.CurrentContext
	}

	// On some systems (windows) `default` is stored in the docker config as
	// the currentContext.
	if currentContext == "" || currentContext == "default" {
		return defaultDockerHost, nil
	}

	storeConfig := ctxstore.NewConfig(
		func() interface{} { return &ddocker.EndpointMeta{} },
		ctxstore.EndpointTypeGetter(ddocker.DockerEndpoint, func() interface{} { return &ddocker.EndpointMeta{} }),
	)

	st := ctxstore.New(cliconfig.ContextStoreDir(), storeConfig)
	md, err := st.GetMetadata(currentContext)
	if err != nil {
		return "", err
	}
	dockerEP, ok := md.Endpoints[ddocker.DockerEndpoint]
	if !ok {
		return "", fmt.Errorf("context %q has no docker endpoint", currentContext)
	}
	dockerEPMeta, ok := dockerEP.(ddocker.EndpointMeta)
	if !ok {
		return "", fmt.Errorf("expected docker.EndpointMeta, got %T", dockerEP)
	}

	if dockerEPMeta.Host != "" {
		return dockerEPMeta.Host, nil
	}

	// A context can be created with an empty host (`docker context create
	// foo --docker "host="`); mimic the docker cli and use the default.
	return defaultDockerHost, nil
}

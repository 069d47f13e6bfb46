package commands

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDockerClientCloseReleasesConnections(t *testing.T) {
	// pin the host so client construction never consults the docker context
	// store on the machine running the tests
	t.Setenv("DOCKER_HOST", "unix:///var/run/docker.sock")

	appConfig := testAppConfig(t)
	dockerClient, err := NewDockerClient(appConfig.NewLogger())
	require.NoError(t, err)
	require.NoError(t, dockerClient.Close())
}

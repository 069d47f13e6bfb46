package infra

import (
	"context"
	"crypto/x509"
	"encoding/pem"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInstallLaysDownDirectoryTree(t *testing.T) {
	h := newTestManager(t)
	require.NoError(t, h.Manager.Install(context.Background()))

	root := h.Config.InfraDir()
	for _, path := range []string{
		"docker-compose.yml",
		".env",
		filepath.Join("dynamic", "tls.yml"),
		filepath.Join("secrets", "usersfile"),
		filepath.Join("secrets", "dashboard-password"),
	} {
		_, err := os.Stat(filepath.Join(root, path))
		assert.NoError(t, err, path)
	}

	for _, dir := range []string{"certs", "secrets", "dynamic"} {
		info, err := os.Stat(filepath.Join(root, dir))
		require.NoError(t, err)
		assert.True(t, info.IsDir())
	}
}

func TestInstallIsIdempotent(t *testing.T) {
	h := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, h.Manager.Install(ctx))
	first := snapshotTree(t, h.Config.InfraDir())

	require.NoError(t, h.Manager.Install(ctx))
	second := snapshotTree(t, h.Config.InfraDir())

	assert.Equal(t, first, second)
}

func TestInstallEnvFileFromExample(t *testing.T) {
	h := newTestManager(t)
	require.NoError(t, h.Manager.Install(context.Background()))

	content, err := os.ReadFile(filepath.Join(h.Config.InfraDir(), ".env"))
	require.NoError(t, err)
	assert.Contains(t, string(content), "TUTI_NETWORK=tuti")
	assert.Contains(t, string(content), "TUTI_DOMAIN=tuti.test")
}

func TestInstallPrefersLocalCATool(t *testing.T) {
	h := newTestManager(t)
	require.NoError(t, h.Manager.Install(context.Background()))

	// the fake runner accepts every command, so the mkcert path is taken
	assert.NotEmpty(t, h.Runner.callsMatching("mkcert -version"))
	certCalls := h.Runner.callsMatching("mkcert -cert-file")
	require.Len(t, certCalls, 1)
	assert.Contains(t, certCalls[0], "*.tuti.test")
}

func TestInstallFallsBackToSelfSignedCert(t *testing.T) {
	h := newTestManager(t)
	h.Runner.failPrefixes = []string{"mkcert"}

	require.NoError(t, h.Manager.Install(context.Background()))

	certPEM, err := os.ReadFile(filepath.Join(h.Config.InfraDir(), "certs", "tuti.pem"))
	require.NoError(t, err)

	block, _ := pem.Decode(certPEM)
	require.NotNil(t, block)
	cert, err := x509.ParseCertificate(block.Bytes)
	require.NoError(t, err)
	assert.Contains(t, cert.DNSNames, "tuti.test")
	assert.Contains(t, cert.DNSNames, "*.tuti.test")

	keyInfo, err := os.Stat(filepath.Join(h.Config.InfraDir(), "certs", "tuti-key.pem"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), keyInfo.Mode().Perm())
}

func TestInstallCredentialsProduceHashedEntry(t *testing.T) {
	h := newTestManager(t)

	// the fake htpasswd yields no usable output, so the entry is hashed
	// in-process; either way the usersfile must hold a real hash
	require.NoError(t, h.Manager.Install(context.Background()))

	entry, err := os.ReadFile(filepath.Join(h.Config.InfraDir(), "secrets", "usersfile"))
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(entry), "admin:"))
	assert.NotContains(t, string(entry), "!placeholder")
}

func TestInstallCredentialsDegradeWithoutHtpasswd(t *testing.T) {
	h := newTestManager(t)
	h.Runner.failPrefixes = []string{"htpasswd"}

	require.NoError(t, h.Manager.Install(context.Background()))

	root := h.Config.InfraDir()
	entry, err := os.ReadFile(filepath.Join(root, "secrets", "usersfile"))
	require.NoError(t, err)
	// bcrypt hash, not the placeholder
	assert.True(t, strings.HasPrefix(string(entry), "admin:$2"))

	password, err := os.ReadFile(filepath.Join(root, "secrets", "dashboard-password"))
	require.NoError(t, err)
	assert.Len(t, strings.TrimSpace(string(password)), 32)

	info, err := os.Stat(filepath.Join(root, "secrets", "usersfile"))
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func snapshotTree(t *testing.T, root string) map[string]string {
	t.Helper()

	snapshot := map[string]string{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return readErr
		}
		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		snapshot[rel] = string(content)
		return nil
	})
	require.NoError(t, err)
	return snapshot
}

package infra

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"embed"
	"encoding/hex"
	"encoding/pem"
	"io/fs"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-errors/errors"
	"golang.org/x/crypto/bcrypt"

	"github.com/tuti-cli/tuti/pkg/utils"
)

//go:embed all:templates
var templatesFS embed.FS

const dashboardUser = "admin"

// certStrategy is the certificate-provisioning variant, chosen once at
// install time by probing tool availability and never re-evaluated.
type certStrategy int

const (
	certLocalCA certStrategy = iota
	certSelfSigned
)

func (s certStrategy) String() string {
	if s == certLocalCA {
		return "mkcert"
	}
	return "self-signed"
}

// Install provisions the shared infrastructure directory tree. A no-op when
// already installed; each step skips work it finds already done, so a failed
// install can simply be re-run.
func (m *Manager) Install(ctx context.Context) error {
	if m.IsInstalled() {
		m.Log.Debug("infrastructure already installed")
		return nil
	}

	root := m.Config.InfraDir()
	for _, dir := range []string{root, filepath.Join(root, "certs"), filepath.Join(root, "secrets"), filepath.Join(root, "dynamic")} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return errors.Wrap(err, 0)
		}
	}

	if err := m.copyTemplates(root); err != nil {
		return err
	}

	if err := m.writeEnvFile(root); err != nil {
		return err
	}

	if err := m.provisionCertificate(ctx, root); err != nil {
		return err
	}

	return m.provisionCredentials(ctx, root)
}

// copyTemplates lays the embedded template tree down under root, leaving any
// file that already exists untouched.
func (m *Manager) copyTemplates(root string) error {
	return fs.WalkDir(templatesFS, "templates", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}

		rel := strings.TrimPrefix(path, "templates/")
		if d.IsDir() || rel == "env.example" {
			return nil
		}

		target := filepath.Join(root, filepath.FromSlash(rel))
		if _, statErr := os.Stat(target); statErr == nil {
			return nil
		}

		content, err := templatesFS.ReadFile(path)
		if err != nil {
			return errors.Wrap(err, 0)
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return errors.Wrap(err, 0)
		}
		return os.WriteFile(target, content, 0o644)
	})
}

// writeEnvFile creates .env only when absent, from the packaged example.
func (m *Manager) writeEnvFile(root string) error {
	target := filepath.Join(root, ".env")
	if _, err := os.Stat(target); err == nil {
		return nil
	}

	content, err := templatesFS.ReadFile("templates/env.example")
	if err != nil {
		// Synthesize minimal defaults rather than failing the install over a
		// missing example.
		proxy := m.Config.UserConfig.Proxy
		content = []byte(utils.ApplyTemplate(
			"TUTI_NETWORK={{.Network}}\nTUTI_DOMAIN={{.Domain}}\nTUTI_HTTP_PORT={{.HTTPPort}}\nTUTI_HTTPS_PORT={{.HTTPSPort}}\n",
			struct {
				Network   string
				Domain    string
				HTTPPort  int
				HTTPSPort int
			}{m.Config.UserConfig.Network.Name, proxy.Domain, proxy.HTTPPort, proxy.HTTPSPort},
		))
	}

	return os.WriteFile(target, content, 0o644)
}

// provisionCertificate creates the TLS certificate for *.<domain>. mkcert is
// preferred when present since its CA is trusted by the host's browsers;
// otherwise we synthesize a self-signed certificate.
func (m *Manager) provisionCertificate(ctx context.Context, root string) error {
	certFile := filepath.Join(root, "certs", "tuti.pem")
	keyFile := filepath.Join(root, "certs", "tuti-key.pem")

	if fileExists(certFile) && fileExists(keyFile) {
		return nil
	}

	domain := m.Config.UserConfig.Proxy.Domain
	strategy := m.selectCertStrategy(ctx)
	m.Log.WithField("strategy", strategy.String()).Info("provisioning tls certificate")

	if strategy == certLocalCA {
		if err := m.Runner.Run(ctx, []string{"mkcert", "-install"}); err != nil {
			m.Log.WithError(err).Warn("mkcert -install failed, certificate may not be trusted")
		}
		return m.Runner.Run(ctx, []string{
			"mkcert",
			"-cert-file", certFile,
			"-key-file", keyFile,
			"*." + domain, domain, "localhost",
		})
	}

	m.Log.Warn("mkcert not found, falling back to a self-signed certificate; browsers will warn")
	return writeSelfSignedCert(certFile, keyFile, domain)
}

func (m *Manager) selectCertStrategy(ctx context.Context) certStrategy {
	if err := m.Runner.Run(ctx, []string{"mkcert", "-version"}); err == nil {
		return certLocalCA
	}
	return certSelfSigned
}

func writeSelfSignedCert(certFile, keyFile, domain string) error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return errors.Wrap(err, 0)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return errors.Wrap(err, 0)
	}

	template := x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{Organization: []string{"tuti local development"}},
		NotBefore:    time.Now(),
		NotAfter:     time.Now().AddDate(0, 0, 825),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		DNSNames:     []string{domain, "*." + domain, "localhost"},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return errors.Wrap(err, 0)
	}

	certOut := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	if err := os.WriteFile(certFile, certOut, 0o644); err != nil {
		return errors.Wrap(err, 0)
	}

	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return errors.Wrap(err, 0)
	}
	keyOut := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})
	return os.WriteFile(keyFile, keyOut, 0o600)
}

// provisionCredentials creates the dashboard basicauth entry with a random
// password. htpasswd is used when present; failing that the hash is computed
// in-process, and as a last resort a placeholder entry is written. None of
// the degraded paths fail the install.
func (m *Manager) provisionCredentials(ctx context.Context, root string) error {
	usersFile := filepath.Join(root, "secrets", "usersfile")
	if fileExists(usersFile) {
		return nil
	}

	password, err := randomPassword()
	if err != nil {
		return errors.Wrap(err, 0)
	}

	entry := ""
	if output, htErr := m.Runner.Output(ctx, []string{"htpasswd", "-nbB", dashboardUser, password}); htErr == nil {
		lines := utils.SplitLines(output)
		if len(lines) > 0 && strings.HasPrefix(lines[0], dashboardUser+":") {
			entry = lines[0]
		}
	}

	if entry == "" {
		if hash, bcErr := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost); bcErr == nil {
			m.Log.Warn("htpasswd not found, hashed dashboard password in-process")
			entry = dashboardUser + ":" + string(hash)
		} else {
			m.Log.Warn("could not hash dashboard password, wrote placeholder entry; see the stored password file")
			entry = dashboardUser + ":!placeholder"
		}
	}

	if err := os.WriteFile(usersFile, []byte(entry+"\n"), 0o600); err != nil {
		return errors.Wrap(err, 0)
	}

	// Kept in plaintext so the user can actually log in to the dashboard.
	passwordFile := filepath.Join(root, "secrets", "dashboard-password")
	return os.WriteFile(passwordFile, []byte(password+"\n"), 0o600)
}

func randomPassword() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

package tlscert

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"graphql-admin/internal/logging"
)

func TestLoad_SelfSignedGeneratesOnceAndReuses(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "certs")

	src, err := Load(Config{Mode: ModeSelfSigned, SelfSignedDir: dir}, logging.Discard())
	require.NoError(t, err)
	assert.Contains(t, src.Description(), "self-signed")

	cfg := src.TLSConfig()
	require.Len(t, cfg.Certificates, 1)
	assert.Equal(t, uint16(MinTLSVersion), cfg.MinVersion)

	first, err := os.ReadFile(filepath.Join(dir, "server.crt"))
	require.NoError(t, err)

	_, err = Load(Config{Mode: ModeSelfSigned, SelfSignedDir: dir}, logging.Discard())
	require.NoError(t, err)
	second, err := os.ReadFile(filepath.Join(dir, "server.crt"))
	require.NoError(t, err)
	assert.True(t, bytes.Equal(first, second))

	// A host the stored certificate does not cover forces regeneration.
	_, err = Load(Config{Mode: ModeSelfSigned, SelfSignedDir: dir, Hosts: []string{"admin.local"}}, logging.Discard())
	require.NoError(t, err)
	third, err := os.ReadFile(filepath.Join(dir, "server.crt"))
	require.NoError(t, err)
	assert.False(t, bytes.Equal(first, third))
}

func TestLoad_FileMode(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(Config{Mode: ModeSelfSigned, SelfSignedDir: dir}, logging.Discard())
	require.NoError(t, err)

	src, err := Load(Config{
		Mode:     ModeFile,
		CertFile: filepath.Join(dir, "server.crt"),
		KeyFile:  filepath.Join(dir, "server.key"),
	}, logging.Discard())
	require.NoError(t, err)

	cfg := src.TLSConfig()
	require.NotNil(t, cfg.GetCertificate)
	cert, err := cfg.GetCertificate(nil)
	require.NoError(t, err)
	assert.NotEmpty(t, cert.Certificate)
}

func TestLoad_FileModeRejectsLooseKeyPermissions(t *testing.T) {
	dir := t.TempDir()
	_, err := Load(Config{Mode: ModeSelfSigned, SelfSignedDir: dir}, logging.Discard())
	require.NoError(t, err)

	keyPath := filepath.Join(dir, "server.key")
	require.NoError(t, os.Chmod(keyPath, 0o644))

	_, err = Load(Config{Mode: ModeFile, CertFile: filepath.Join(dir, "server.crt"), KeyFile: keyPath}, logging.Discard())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "insecure permissions")
}

func TestLoad_Errors(t *testing.T) {
	_, err := Load(Config{Mode: "acme"}, logging.Discard())
	assert.ErrorContains(t, err, "unsupported TLS mode")

	_, err = Load(Config{Mode: ModeFile, CertFile: "/nonexistent/cert.pem", KeyFile: "/nonexistent/key.pem"}, logging.Discard())
	assert.Error(t, err)

	_, err = Load(Config{Mode: ModeSelfSigned}, logging.Discard())
	assert.ErrorContains(t, err, "tls_self_signed_dir")
}

// Package tlscert supplies the certificate for the HTTPS listener, either from files on
// disk or from a generated self-signed pair for local development.
package tlscert

import (
	"crypto/tls"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"graphql-admin/internal/logging"
)

// Mode selects where the certificate comes from.
type Mode string

const (
	ModeFile       Mode = "file"
	ModeSelfSigned Mode = "selfsigned"
)

// MinTLSVersion is the minimum version the listener negotiates.
const MinTLSVersion = tls.VersionTLS12

// Config describes the certificate source.
type Config struct {
	Mode     Mode
	CertFile string
	KeyFile  string
	// SelfSignedDir receives server.crt and server.key in self-signed mode.
	SelfSignedDir string
	// Hosts defaults to localhost, 127.0.0.1 and ::1.
	Hosts []string
}

// Source hands certificates to the HTTP server.
type Source struct {
	description string
	config      *tls.Config
}

// Load prepares a Source for cfg.Mode.
func Load(cfg Config, logger *logging.Logger) (*Source, error) {
	switch cfg.Mode {
	case ModeFile:
		return loadFiles(cfg, logger)
	case ModeSelfSigned:
		return loadSelfSigned(cfg, logger)
	default:
		return nil, fmt.Errorf("unsupported TLS mode %q (valid modes: file, selfsigned)", cfg.Mode)
	}
}

// TLSConfig returns the server-side configuration.
func (s *Source) TLSConfig() *tls.Config {
	return s.config.Clone()
}

// Description names the certificate origin for logs.
func (s *Source) Description() string {
	return s.description
}

// reloadingPair re-reads the key pair when the certificate file's mtime moves,
// so rotated certificates are picked up without a restart.
type reloadingPair struct {
	certFile string
	keyFile  string
	logger   *logging.Logger

	mu      sync.Mutex
	modTime time.Time
	cert    *tls.Certificate
}

func (p *reloadingPair) get(*tls.ClientHelloInfo) (*tls.Certificate, error) {
	info, err := os.Stat(p.certFile)
	if err != nil {
		return nil, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cert != nil && info.ModTime().Equal(p.modTime) {
		return p.cert, nil
	}
	cert, err := tls.LoadX509KeyPair(p.certFile, p.keyFile)
	if err != nil {
		p.logger.Error("failed to reload certificate",
			slog.String("cert_file", p.certFile),
			slog.String("error", err.Error()))
		if p.cert != nil {
			return p.cert, nil
		}
		return nil, err
	}
	if p.cert != nil {
		p.logger.Info("certificate reloaded", slog.String("cert_file", p.certFile))
	}
	p.cert = &cert
	p.modTime = info.ModTime()
	return p.cert, nil
}

func loadFiles(cfg Config, logger *logging.Logger) (*Source, error) {
	if cfg.CertFile == "" || cfg.KeyFile == "" {
		return nil, fmt.Errorf("tls_cert_file and tls_key_file are required in file mode")
	}
	if err := checkRegularFile(cfg.CertFile); err != nil {
		return nil, fmt.Errorf("certificate file: %w", err)
	}
	if err := checkRegularFile(cfg.KeyFile); err != nil {
		return nil, fmt.Errorf("key file: %w", err)
	}
	if err := checkKeyPermissions(cfg.KeyFile); err != nil {
		return nil, err
	}

	pair := &reloadingPair{certFile: cfg.CertFile, keyFile: cfg.KeyFile, logger: logger}
	if _, err := pair.get(nil); err != nil {
		return nil, fmt.Errorf("failed to load certificate: %w", err)
	}

	return &Source{
		description: fmt.Sprintf("file (cert=%s)", cfg.CertFile),
		config: &tls.Config{
			MinVersion:     MinTLSVersion,
			GetCertificate: pair.get,
		},
	}, nil
}

func checkRegularFile(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return fmt.Errorf("%s is a directory", path)
	}
	if info.Size() == 0 {
		return fmt.Errorf("%s is empty", path)
	}
	return nil
}

func checkKeyPermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if mode := info.Mode().Perm(); mode&0o077 != 0 {
		return fmt.Errorf("key file %s has insecure permissions %o (use 0600 or 0400)", path, mode)
	}
	return nil
}

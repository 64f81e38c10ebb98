package tlscert

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"graphql-admin/internal/logging"
)

const selfSignedLifetime = 90 * 24 * time.Hour

var defaultHosts = []string{"localhost", "127.0.0.1", "::1"}

func loadSelfSigned(cfg Config, logger *logging.Logger) (*Source, error) {
	if cfg.SelfSignedDir == "" {
		return nil, fmt.Errorf("tls_self_signed_dir is required in selfsigned mode")
	}
	hosts := cfg.Hosts
	if len(hosts) == 0 {
		hosts = defaultHosts
	}
	if err := os.MkdirAll(cfg.SelfSignedDir, 0o700); err != nil {
		return nil, fmt.Errorf("create certificate directory: %w", err)
	}

	certPath := filepath.Join(cfg.SelfSignedDir, "server.crt")
	keyPath := filepath.Join(cfg.SelfSignedDir, "server.key")

	cert := reusablePair(certPath, keyPath, hosts)
	if cert == nil {
		logger.Warn("generating self-signed certificate; do not use in production",
			slog.String("cert_path", certPath),
			slog.Any("hosts", hosts))
		if err := writeSelfSigned(certPath, keyPath, hosts); err != nil {
			return nil, fmt.Errorf("generate self-signed certificate: %w", err)
		}
		pair, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			return nil, fmt.Errorf("load self-signed certificate: %w", err)
		}
		cert = &pair
	} else {
		logger.Info("using existing self-signed certificate", slog.String("cert_path", certPath))
	}

	return &Source{
		description: fmt.Sprintf("self-signed (cert=%s)", certPath),
		config: &tls.Config{
			MinVersion:   MinTLSVersion,
			Certificates: []tls.Certificate{*cert},
		},
	}, nil
}

// reusablePair returns the stored pair when it is still valid for every host, or nil
// when a new one has to be generated.
// Missing, unreadable or mismatched files all count as not reusable.
func reusablePair(certPath, keyPath string, hosts []string) *tls.Certificate {
	pair, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err != nil {
		return nil
	}
	leaf := pair.Leaf
	if leaf == nil {
		if leaf, err = x509.ParseCertificate(pair.Certificate[0]); err != nil {
			return nil
		}
	}

	now := time.Now()
	if now.Before(leaf.NotBefore) || now.After(leaf.NotAfter.Add(-24*time.Hour)) {
		return nil
	}
	for _, host := range hosts {
		if leaf.VerifyHostname(host) != nil {
			return nil
		}
	}
	return &pair
}

func writeSelfSigned(certPath, keyPath string, hosts []string) error {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return err
	}
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return err
	}

	now := time.Now()
	template := x509.Certificate{
		SerialNumber:          serial,
		Subject:               pkix.Name{Organization: []string{"graphql-admin (self-signed)"}, CommonName: hosts[0]},
		NotBefore:             now.Add(-5 * time.Minute),
		NotAfter:              now.Add(selfSignedLifetime),
		KeyUsage:              x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
	}
	for _, host := range hosts {
		if ip := net.ParseIP(host); ip != nil {
			template.IPAddresses = append(template.IPAddresses, ip)
		} else {
			template.DNSNames = append(template.DNSNames, host)
		}
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return err
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		return err
	}

	if err := os.WriteFile(certPath, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o644); err != nil {
		return err
	}
	return os.WriteFile(keyPath, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600)
}

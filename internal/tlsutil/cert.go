// Package tlsutil provides the certificate for serving mocks over HTTPS.
package tlsutil

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/prasenjit/antbee/internal/config"
)

const (
	certFileName = "server.crt"
	keyFileName  = "server.key"

	certValidity = 365 * 24 * time.Hour
	renewBefore  = 7 * 24 * time.Hour
)

// ErrNoCertificate is returned when nothing can be loaded and generation is off
var ErrNoCertificate = errors.New("no TLS certificate found and auto-generation is disabled")

// Manager loads the configured certificate or keeps a self-signed one in
// its store directory
type Manager struct {
	certFile     string
	keyFile      string
	storePath    string
	autoGenerate bool
	logger       *slog.Logger
	now          func() time.Time
}

// NewManager creates a certificate manager. storePath is used when the
// config names no store directory.
func NewManager(cfg config.TLSConfig, storePath string, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.StorePath != "" {
		storePath = cfg.StorePath
	}
	return &Manager{
		certFile:     cfg.CertFile,
		keyFile:      cfg.KeyFile,
		storePath:    storePath,
		autoGenerate: cfg.AutoGenerate,
		logger:       logger.With("component", "tls"),
		now:          time.Now,
	}
}

// ServerConfig returns a TLS config serving the managed certificate
func (m *Manager) ServerConfig() (*tls.Config, error) {
	cert, err := m.Certificate()
	if err != nil {
		return nil, err
	}
	return &tls.Config{
		Certificates: []tls.Certificate{*cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// Certificate returns the configured key pair. Without one it loads the
// stored self-signed certificate, generating a new one when it is missing
// or close to expiry.
func (m *Manager) Certificate() (*tls.Certificate, error) {
	if m.certFile != "" && m.keyFile != "" {
		cert, err := tls.LoadX509KeyPair(m.certFile, m.keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load certificate from %s and %s: %w", m.certFile, m.keyFile, err)
		}
		return &cert, nil
	}

	certPath, keyPath := m.Paths()
	cert, err := tls.LoadX509KeyPair(certPath, keyPath)
	if err == nil && !m.expiring(&cert) {
		return &cert, nil
	}

	if !m.autoGenerate {
		if err == nil {
			return &cert, nil
		}
		return nil, ErrNoCertificate
	}

	if err == nil {
		m.logger.Info("stored certificate is about to expire, generating a new one", "path", certPath)
	}
	return m.generate()
}

// expiring reports whether the leaf expires within renewBefore
func (m *Manager) expiring(cert *tls.Certificate) bool {
	leaf := cert.Leaf
	if leaf == nil {
		if len(cert.Certificate) == 0 {
			return true
		}
		parsed, err := x509.ParseCertificate(cert.Certificate[0])
		if err != nil {
			return true
		}
		leaf = parsed
	}
	return m.now().Add(renewBefore).After(leaf.NotAfter)
}

// generate creates a self-signed certificate and saves it to the store
func (m *Manager) generate() (*tls.Certificate, error) {
	if err := os.MkdirAll(m.storePath, 0700); err != nil {
		return nil, fmt.Errorf("failed to create certificate store directory: %w", err)
	}

	privateKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("failed to generate private key: %w", err)
	}

	serialNumber, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, fmt.Errorf("failed to generate serial number: %w", err)
	}

	notBefore := m.now()
	template := x509.Certificate{
		SerialNumber: serialNumber,
		Subject: pkix.Name{
			Organization: []string{"AntBee"},
			CommonName:   "AntBee Mock Server",
		},
		NotBefore:             notBefore,
		NotAfter:              notBefore.Add(certValidity),
		KeyUsage:              x509.KeyUsageKeyEncipherment | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              []string{"localhost"},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1"), net.ParseIP("::1")},
	}

	if localIPs, err := localIPs(); err == nil {
		template.IPAddresses = append(template.IPAddresses, localIPs...)
	}

	certDER, err := x509.CreateCertificate(rand.Reader, &template, &template, &privateKey.PublicKey, privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to create certificate: %w", err)
	}
	keyDER, err := x509.MarshalECPrivateKey(privateKey)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal private key: %w", err)
	}

	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: certDER})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER})

	certPath, keyPath := m.Paths()
	if err := os.WriteFile(certPath, certPEM, 0644); err != nil {
		return nil, fmt.Errorf("failed to save certificate: %w", err)
	}
	if err := os.WriteFile(keyPath, keyPEM, 0600); err != nil {
		return nil, fmt.Errorf("failed to save private key: %w", err)
	}

	cert, err := tls.X509KeyPair(certPEM, keyPEM)
	if err != nil {
		return nil, fmt.Errorf("failed to parse generated certificate: %w", err)
	}

	m.logger.Info("generated self-signed certificate", "path", certPath, "expires", template.NotAfter)
	return &cert, nil
}

// localIPs returns all non-loopback local IP addresses
func localIPs() ([]net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}

	var ips []net.IP
	for _, addr := range addrs {
		if ipnet, ok := addr.(*net.IPNet); ok && !ipnet.IP.IsLoopback() {
			ips = append(ips, ipnet.IP)
		}
	}
	return ips, nil
}

// Paths returns the certificate and key files in use
func (m *Manager) Paths() (certPath, keyPath string) {
	if m.certFile != "" && m.keyFile != "" {
		return m.certFile, m.keyFile
	}
	return filepath.Join(m.storePath, certFileName), filepath.Join(m.storePath, keyFileName)
}

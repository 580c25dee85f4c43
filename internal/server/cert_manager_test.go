package server

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"atsexpert/internal/config"
	"atsexpert/internal/errors"

	"github.com/fsnotify/fsnotify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeSelfSigned writes a PEM certificate and key valid for lifetime
func writeSelfSigned(t *testing.T, dir string, serial int64, lifetime time.Duration) (string, string) {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(serial),
		Subject:               pkix.Name{CommonName: "atsexpert.test"},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(lifetime),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageCertSign,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		IsCA:                  true,
		DNSNames:              []string{"localhost"},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)
	keyDER, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)

	certFile := filepath.Join(dir, "server.crt")
	keyFile := filepath.Join(dir, "server.key")
	require.NoError(t, os.WriteFile(certFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0o600))
	require.NoError(t, os.WriteFile(keyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0o600))
	return certFile, keyFile
}

func serialOf(t *testing.T, cert *tls.Certificate) int64 {
	t.Helper()
	leaf, err := x509.ParseCertificate(cert.Certificate[0])
	require.NoError(t, err)
	return leaf.SerialNumber.Int64()
}

func TestCertificateManagerLoadAndReload(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeSelfSigned(t, dir, 1, 30*24*time.Hour)

	cm, err := NewCertificateManager(config.TLSConfig{
		Mode:     "server",
		CertFile: certFile,
		KeyFile:  keyFile,
	}, nil, errors.Discard())
	require.NoError(t, err)

	cert, err := cm.GetCertificate(&tls.ClientHelloInfo{ServerName: "localhost"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), serialOf(t, cert))

	left, err := cm.CheckExpiry()
	require.NoError(t, err)
	assert.True(t, left > 29*24*time.Hour)

	writeSelfSigned(t, dir, 2, 60*24*time.Hour)
	require.NoError(t, cm.Reload())

	cert, err = cm.GetCertificate(&tls.ClientHelloInfo{})
	require.NoError(t, err)
	assert.Equal(t, int64(2), serialOf(t, cert))

	status := cm.Status()
	assert.Equal(t, int64(1), status.ReloadCount)
	assert.Equal(t, int64(0), status.ReloadFailureCount)
	assert.Nil(t, cm.CACertPool())
}

func TestCertificateManagerKeepsCertOnBadReload(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeSelfSigned(t, dir, 7, 24*time.Hour)

	cm, err := NewCertificateManager(config.TLSConfig{
		Mode:     "server",
		CertFile: certFile,
		KeyFile:  keyFile,
	}, nil, errors.Discard())
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(certFile, []byte("not a certificate"), 0o600))
	assert.Error(t, cm.Reload())

	cert, err := cm.GetCertificate(&tls.ClientHelloInfo{})
	require.NoError(t, err)
	assert.Equal(t, int64(7), serialOf(t, cert))

	status := cm.Status()
	assert.Equal(t, int64(1), status.ReloadFailureCount)
	assert.NotEmpty(t, status.LastReloadError)
}

func TestCertificateManagerMutualLoadsCA(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeSelfSigned(t, dir, 3, 24*time.Hour)

	cm, err := NewCertificateManager(config.TLSConfig{
		Mode:     "mutual",
		CertFile: certFile,
		KeyFile:  keyFile,
		CAFile:   certFile,
	}, nil, errors.Discard())
	require.NoError(t, err)
	assert.NotNil(t, cm.CACertPool())

	s := &Server{TLSConfig: config.TLSConfig{Mode: "mutual", MinVersion: "1.3"}}
	tlsConfig := s.buildTLSConfig(cm)
	assert.Equal(t, uint16(tls.VersionTLS13), tlsConfig.MinVersion)
	assert.Equal(t, tls.RequireAndVerifyClientCert, tlsConfig.ClientAuth)

	perClient, err := tlsConfig.GetConfigForClient(&tls.ClientHelloInfo{})
	require.NoError(t, err)
	assert.Same(t, cm.CACertPool(), perClient.ClientCAs)
}

func TestCertificateManagerMissingFiles(t *testing.T) {
	_, err := NewCertificateManager(config.TLSConfig{
		Mode:     "server",
		CertFile: "/nonexistent/server.crt",
		KeyFile:  "/nonexistent/server.key",
	}, nil, errors.Discard())
	assert.Error(t, err)
}

func TestCertWatcherRelevantEvents(t *testing.T) {
	cw := NewCertWatcher([]string{"/etc/certs/server.crt", "", "/etc/certs/server.key"}, 0, func() {}, errors.Discard())

	assert.Equal(t, []string{"/etc/certs/server.crt", "/etc/certs/server.key"}, cw.Files())
	assert.True(t, cw.isRelevant(fsnotify.Event{Name: "/etc/certs/server.crt", Op: fsnotify.Write}))
	assert.True(t, cw.isRelevant(fsnotify.Event{Name: "/etc/certs/server.key", Op: fsnotify.Create}))
	assert.False(t, cw.isRelevant(fsnotify.Event{Name: "/etc/certs/server.crt", Op: fsnotify.Chmod}))
	assert.False(t, cw.isRelevant(fsnotify.Event{Name: "/etc/certs/other.pem", Op: fsnotify.Write}))
}

func TestCertWatcherTriggersReload(t *testing.T) {
	dir := t.TempDir()
	certFile, keyFile := writeSelfSigned(t, dir, 10, 24*time.Hour)

	cm, err := NewCertificateManager(config.TLSConfig{
		Mode:       "server",
		CertFile:   certFile,
		KeyFile:    keyFile,
		AutoReload: config.AutoReloadConfig{Enabled: true, DebounceDelay: 50 * time.Millisecond},
	}, nil, errors.Discard())
	require.NoError(t, err)
	require.NoError(t, cm.Start())
	defer cm.Stop()

	// Make sure the new files get a distinct modification time
	time.Sleep(20 * time.Millisecond)
	writeSelfSigned(t, dir, 11, 24*time.Hour)

	assert.Eventually(t, func() bool {
		cert, err := cm.GetCertificate(&tls.ClientHelloInfo{})
		return err == nil && serialOf(t, cert) == 11
	}, 5*time.Second, 25*time.Millisecond)
}

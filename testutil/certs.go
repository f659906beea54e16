package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"testing"
	"time"
)

// WriteTestCACert writes a self-signed CA certificate to path for TLS tests.
func WriteTestCACert(tb testing.TB, path string) {
	tb.Helper()

	_, der := selfSigned(tb, &x509.Certificate{
		SerialNumber:          big.NewInt(1),
		Subject:               pkix.Name{CommonName: "test-ca"},
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageCRLSign,
		BasicConstraintsValid: true,
		IsCA:                  true,
	})
	writePEM(tb, path, "CERTIFICATE", der)
}

// WriteTestCertAndKey writes a self-signed leaf certificate and its RSA key.
func WriteTestCertAndKey(tb testing.TB, certPath, keyPath string) {
	tb.Helper()

	key, der := selfSigned(tb, &x509.Certificate{
		SerialNumber: big.NewInt(2),
		Subject:      pkix.Name{CommonName: "test-cert"},
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
	})
	writePEM(tb, certPath, "CERTIFICATE", der)
	writePEM(tb, keyPath, "RSA PRIVATE KEY", x509.MarshalPKCS1PrivateKey(key))
}

func selfSigned(tb testing.TB, template *x509.Certificate) (*rsa.PrivateKey, []byte) {
	tb.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		tb.Fatalf("failed to generate key: %v", err)
	}

	template.NotBefore = time.Now().Add(-time.Hour)
	template.NotAfter = time.Now().Add(time.Hour)

	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	if err != nil {
		tb.Fatalf("failed to create certificate: %v", err)
	}
	return key, der
}

func writePEM(tb testing.TB, path, blockType string, der []byte) {
	tb.Helper()

	data := pem.EncodeToMemory(&pem.Block{Type: blockType, Bytes: der})
	if err := os.WriteFile(path, data, 0o600); err != nil {
		tb.Fatalf("failed to write %s: %v", path, err)
	}
}

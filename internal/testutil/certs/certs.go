// Package certs generates throwaway client identities for mTLS tests.
package certs

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"software.sslmate.com/src/go-pkcs12"
)

// Identity is a self-signed client certificate and its key.
type Identity struct {
	Cert *x509.Certificate
	Key  *ecdsa.PrivateKey
}

// NewIdentity creates a self-signed client certificate for commonName.
func NewIdentity(t testing.TB, commonName string) *Identity {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	serial, err := rand.Int(rand.Reader, big.NewInt(1<<62))
	require.NoError(t, err)

	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: commonName},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(24 * time.Hour),
		KeyUsage:     x509.KeyUsageDigitalSignature,
		ExtKeyUsage:  []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return &Identity{Cert: cert, Key: key}
}

// P12Base64 encodes the identity as a base64 PKCS#12 bundle.
func (id *Identity) P12Base64(t testing.TB, passphrase string) string {
	t.Helper()

	pfx, err := pkcs12.Modern.Encode(id.Key, id.Cert, nil, passphrase)
	require.NoError(t, err)
	return base64.StdEncoding.EncodeToString(pfx)
}

// PEMBase64 encodes certificate and key as one base64 PEM bundle.
func (id *Identity) PEMBase64(t testing.TB) string {
	t.Helper()

	keyDER, err := x509.MarshalPKCS8PrivateKey(id.Key)
	require.NoError(t, err)

	bundle := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: id.Cert.Raw})
	bundle = append(bundle, pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: keyDER})...)
	return base64.StdEncoding.EncodeToString(bundle)
}

// TLS returns the identity as a tls.Certificate.
func (id *Identity) TLS() tls.Certificate {
	return tls.Certificate{
		Certificate: [][]byte{id.Cert.Raw},
		PrivateKey:  id.Key,
		Leaf:        id.Cert,
	}
}

// CertPEMBase64 encodes only the certificate, for use as a trusted root.
func CertPEMBase64(cert *x509.Certificate) string {
	return base64.StdEncoding.EncodeToString(pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: cert.Raw}))
}

package pix

import (
	"bytes"
	"crypto/tls"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"

	"software.sslmate.com/src/go-pkcs12"
)

var errEmptyBundle = errors.New("certificate bundle is empty")

// LoadBundle decodes the base64 client certificate bundle into a TLS identity.
// PKCS#12 (.p12/.pfx) is the format providers hand out; a PEM file holding
// both the certificate and the private key is accepted too.
func LoadBundle(certBase64, passphrase string) (tls.Certificate, error) {
	raw, err := decodeBase64(certBase64)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("decode certificate bundle: %w", err)
	}
	if len(raw) == 0 {
		return tls.Certificate{}, errEmptyBundle
	}

	if bytes.Contains(raw, []byte("-----BEGIN")) {
		cert, err := tls.X509KeyPair(raw, raw)
		if err != nil {
			return tls.Certificate{}, fmt.Errorf("parse PEM bundle: %w", err)
		}
		return cert, nil
	}

	key, leaf, chain, err := pkcs12.DecodeChain(raw, passphrase)
	if err != nil {
		return tls.Certificate{}, fmt.Errorf("parse PKCS#12 bundle: %w", err)
	}

	cert := tls.Certificate{
		Certificate: [][]byte{leaf.Raw},
		PrivateKey:  key,
		Leaf:        leaf,
	}
	for _, c := range chain {
		cert.Certificate = append(cert.Certificate, c.Raw)
	}
	return cert, nil
}

// LoadRootCAs returns the system pool extended with the PEM certificates in
// caBase64. An empty value returns nil, meaning the system roots.
func LoadRootCAs(caBase64 string) (*x509.CertPool, error) {
	if strings.TrimSpace(caBase64) == "" {
		return nil, nil
	}
	raw, err := decodeBase64(caBase64)
	if err != nil {
		return nil, fmt.Errorf("decode CA bundle: %w", err)
	}

	pool, err := x509.SystemCertPool()
	if err != nil || pool == nil {
		pool = x509.NewCertPool()
	}
	if !pool.AppendCertsFromPEM(raw) {
		return nil, errors.New("CA bundle contains no PEM certificates")
	}
	return pool, nil
}

func decodeBase64(s string) ([]byte, error) {
	s = strings.Join(strings.Fields(s), "")
	if raw, err := base64.StdEncoding.DecodeString(s); err == nil {
		return raw, nil
	}
	return base64.RawStdEncoding.DecodeString(strings.TrimRight(s, "="))
}

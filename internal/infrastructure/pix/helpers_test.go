package pix

import (
	"bytes"
	"crypto/tls"
	"io"
)

func tlsRequireClientCert() *tls.Config {
	return &tls.Config{ClientAuth: tls.RequireAnyClientCert}
}

func bytesReader(b []byte) io.Reader {
	return bytes.NewReader(b)
}

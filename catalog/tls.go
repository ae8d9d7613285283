package catalog

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
)

// clientConfig builds the mutual TLS configuration for etcd. It returns
// nil when TLS is disabled.
func (t *TLSConfig) clientConfig() (*tls.Config, error) {
	if t == nil || !t.Enabled {
		return nil, nil
	}

	missing := map[string]string{"cert": t.CertFile, "key": t.KeyFile, "CA": t.CAFile}
	for _, name := range []string{"cert", "key", "CA"} {
		if missing[name] == "" {
			return nil, fmt.Errorf("TLS %s file is required when TLS is enabled", name)
		}
	}

	cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load client certificate: %w", err)
	}

	caData, err := os.ReadFile(t.CAFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read CA certificate: %w", err)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caData) {
		return nil, fmt.Errorf("failed to parse CA certificate %s", t.CAFile)
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

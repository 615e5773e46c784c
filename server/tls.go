// File: server/tls.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package server

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"os"

	"github.com/momentics/hioload-net/api"
)

var errChainTooDeep = errors.New("server: peer chain exceeds verify depth")

// tlsConfig builds the server-side TLS context for one certificate entry.
func (c Certificate) tlsConfig() (*tls.Config, error) {
	pair, err := tls.LoadX509KeyPair(c.ChainFile, c.KeyFile)
	if err != nil {
		return nil, configError("load certificate", c.Name, err)
	}
	cfg := &tls.Config{
		Certificates: []tls.Certificate{pair},
		MinVersion:   tls.VersionTLS12,
	}
	if len(c.Ciphers) > 0 {
		if cfg.CipherSuites, err = cipherSuites(c.Ciphers); err != nil {
			return nil, configError("ciphers", c.Name, err)
		}
	}
	switch c.VerifyMode {
	case "optional":
		cfg.ClientAuth = tls.VerifyClientCertIfGiven
	case "require":
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	if c.CAFile != "" {
		pem, err := os.ReadFile(c.CAFile)
		if err != nil {
			return nil, configError("read ca", c.Name, err)
		}
		cfg.ClientCAs = x509.NewCertPool()
		if !cfg.ClientCAs.AppendCertsFromPEM(pem) {
			return nil, configError("parse ca", c.Name, api.ErrInvalidArgument)
		}
	}
	if depth := c.VerifyDepth; depth > 0 {
		cfg.VerifyConnection = func(cs tls.ConnectionState) error {
			for _, chain := range cs.VerifiedChains {
				if len(chain) > depth+1 {
					return errChainTooDeep
				}
			}
			return nil
		}
	}
	return cfg, nil
}

// cipherSuites maps IANA suite names onto ids. Only TLS 1.2 suites are
// configurable; TLS 1.3 suites are fixed by crypto/tls.
func cipherSuites(names []string) ([]uint16, error) {
	known := make(map[string]uint16)
	for _, s := range tls.CipherSuites() {
		known[s.Name] = s.ID
	}
	ids := make([]uint16, 0, len(names))
	for _, n := range names {
		id, ok := known[n]
		if !ok {
			return nil, fmt.Errorf("%w: unknown cipher %q", api.ErrInvalidArgument, n)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func configError(what, name string, err error) error {
	return api.NewError(api.ErrCodeConfig, what).WithContext("certificate", name).Wrap(err)
}

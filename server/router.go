// File: server/router.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
//
// Server-wide configuration: virtual hosts, certificates and connection limits.

package server

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/momentics/hioload-net/api"
)

const (
	DefaultBacklog   = 128
	DefaultTimeout   = 30 * time.Second
	DefaultLinger    = time.Second
	DefaultKeepAlive = 100
)

// Router enumerates the hosts a server listens for. It is read-only once
// handed to Configure.
type Router struct {
	Name           string        `yaml:"name"`
	Backlog        int           `yaml:"backlog"`
	MaxConnections int           `yaml:"max_connections"`
	PayloadLimit   int           `yaml:"payload_limit"`
	KeepAlive      int           `yaml:"keep_alive"`
	Timeout        time.Duration `yaml:"timeout"`
	Linger         time.Duration `yaml:"linger"`
	Hosts          []RemoteHost  `yaml:"hosts"`
	Certificates   []Certificate `yaml:"certificates"`
}

// RemoteHost is one virtual host binding.
type RemoteHost struct {
	Name        string `yaml:"name"`
	Hostname    string `yaml:"hostname"`
	Port        int    `yaml:"port"`
	TLS         bool   `yaml:"tls"`
	Certificate string `yaml:"certificate"`
}

// Certificate is TLS material for hosts that terminate TLS.
type Certificate struct {
	Name        string   `yaml:"name"`
	ChainFile   string   `yaml:"chain"`
	KeyFile     string   `yaml:"key"`
	CAFile      string   `yaml:"ca"`
	Ciphers     []string `yaml:"ciphers"`
	VerifyDepth int      `yaml:"verify_depth"`
	VerifyMode  string   `yaml:"verify_mode"` // none, optional, require
}

// LoadRouter reads a YAML router definition.
func LoadRouter(path string) (*Router, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, api.NewError(api.ErrCodeConfig, "read router").WithContext("path", path).Wrap(err)
	}
	var r Router
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, api.NewError(api.ErrCodeConfig, "parse router").WithContext("path", path).Wrap(err)
	}
	if err := r.Validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

// Validate checks internal consistency.
func (r *Router) Validate() error {
	fail := func(format string, args ...any) error {
		return api.NewError(api.ErrCodeConfig, fmt.Sprintf(format, args...)).Wrap(api.ErrInvalidArgument)
	}
	if len(r.Hosts) == 0 {
		return fail("router %q has no hosts", r.Name)
	}
	if r.Backlog < 0 || r.MaxConnections < 0 || r.PayloadLimit < 0 || r.KeepAlive < 0 || r.Timeout < 0 || r.Linger < 0 {
		return fail("router %q has negative limits", r.Name)
	}
	certs := make(map[string]bool, len(r.Certificates))
	for _, c := range r.Certificates {
		if c.Name == "" || c.ChainFile == "" || c.KeyFile == "" {
			return fail("certificate %q needs name, chain and key", c.Name)
		}
		if certs[c.Name] {
			return fail("duplicate certificate %q", c.Name)
		}
		switch c.VerifyMode {
		case "", "none", "optional", "require":
		default:
			return fail("certificate %q: verify mode %q", c.Name, c.VerifyMode)
		}
		certs[c.Name] = true
	}
	names := make(map[string]bool, len(r.Hosts))
	for _, h := range r.Hosts {
		if h.Name == "" || names[h.Name] {
			return fail("host name %q empty or duplicate", h.Name)
		}
		names[h.Name] = true
		if h.Port < 0 || h.Port > 65535 {
			return fail("host %q: port %d", h.Name, h.Port)
		}
		if h.TLS && !certs[h.Certificate] {
			return fail("host %q: unknown certificate %q", h.Name, h.Certificate)
		}
	}
	return nil
}

// withDefaults returns a copy with zero limits replaced by defaults.
func (r *Router) withDefaults() *Router {
	c := *r
	c.Hosts = append([]RemoteHost(nil), r.Hosts...)
	if c.Backlog == 0 {
		c.Backlog = DefaultBacklog
	}
	if c.Timeout == 0 {
		c.Timeout = DefaultTimeout
	}
	if c.Linger == 0 {
		c.Linger = DefaultLinger
	}
	if c.KeepAlive == 0 {
		c.KeepAlive = DefaultKeepAlive
	}
	for i := range c.Hosts {
		if c.Hosts[i].Hostname == "" {
			c.Hosts[i].Hostname = "0.0.0.0"
		}
	}
	return &c
}

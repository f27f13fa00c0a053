// Package config turns a YAML file plus environment variables into the
// single BindDescriptor the daemon and its self-check client accept,
// resolving the "two subtly divergent servicer variants" design
// question in favor of one shared input. Constants mirror
// reccd/variables/rpc.py.
package config

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	_1KB = 1024
	_1MB = _1KB * 1024
	_1GB = _1MB * 1024

	// MaxSendMessageLength and MaxReceiveMessageLength are the gRPC
	// message-size ceilings, ported from MAX_SEND_MESSAGE_LENGTH /
	// MAX_RECEIVE_MESSAGE_LENGTH.
	MaxSendMessageLength    = _1GB
	MaxReceiveMessageLength = _1GB

	// DNSPrefix, UnixPrefix and UnixAbstractPrefix mirror
	// DNS_URI_PREFIX / UNIX_URI_PREFIX / UNIX_ABSTRACT_URI_PREFIX.
	DNSPrefix          = "dns:"
	UnixPrefix         = "unix:"
	UnixAbstractPrefix = "unix-abstract:"

	// DefaultServerAddress mirrors DEFAULT_SERVER_BIND + DEFAULT_SERVER_PORT.
	DefaultServerAddress = "[::]:7600"

	// DefaultHeartbeatDelay and DefaultHeartbeatTimeout mirror
	// DEFAULT_HEARTBEAT_DELAY / DEFAULT_HEARTBEAT_TIMEOUT.
	DefaultHeartbeatDelay   = 0 * time.Second
	DefaultHeartbeatTimeout = 5 * time.Second
)

// BindDescriptor is the single bind input the daemon boot sequence
// (internal/bootstrap.Run) resolves and daemonclient.New accepts: a
// network address, an optional TLS configuration, and the module name to
// load. Credential paths are resolved into *tls.Config
// here, at config-load time, rather than carried as raw paths into the
// daemon package.
type BindDescriptor struct {
	Address    string
	TLS        *tls.Config
	ModuleName string
}

// file is the on-disk YAML shape. Every field may be overridden by an
// RECCD_-prefixed environment variable of the same uppercased name.
type file struct {
	Address    string `yaml:"address"`
	ModuleName string `yaml:"module_name"`
	TLS        *struct {
		Cert string `yaml:"cert"`
		Key  string `yaml:"key"`
		CA   string `yaml:"ca"`
	} `yaml:"tls"`
}

// Load reads path (if it exists) and overlays RECCD_ADDRESS,
// RECCD_MODULE_NAME, RECCD_TLS_CERT, RECCD_TLS_KEY, RECCD_TLS_CA, then
// resolves the result into a BindDescriptor.
func Load(path string) (*BindDescriptor, error) {
	var f file

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case err == nil:
			if err := yaml.Unmarshal(data, &f); err != nil {
				return nil, fmt.Errorf("config: parse %s: %w", path, err)
			}
		case os.IsNotExist(err):
			// absent config file is fine; env vars and defaults carry it.
		default:
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
	}

	applyEnvOverrides(&f)

	if f.Address == "" {
		f.Address = DefaultServerAddress
	}

	desc := &BindDescriptor{Address: f.Address, ModuleName: f.ModuleName}

	if f.TLS != nil && f.TLS.Cert != "" && f.TLS.Key != "" {
		tlsConfig, err := loadTLS(f.TLS.Cert, f.TLS.Key, f.TLS.CA)
		if err != nil {
			return nil, err
		}
		desc.TLS = tlsConfig
	}

	return desc, nil
}

func applyEnvOverrides(f *file) {
	if v := os.Getenv("RECCD_ADDRESS"); v != "" {
		f.Address = v
	}
	if v := os.Getenv("RECCD_MODULE_NAME"); v != "" {
		f.ModuleName = v
	}
	cert, key, ca := os.Getenv("RECCD_TLS_CERT"), os.Getenv("RECCD_TLS_KEY"), os.Getenv("RECCD_TLS_CA")
	if cert != "" || key != "" || ca != "" {
		if f.TLS == nil {
			f.TLS = &struct {
				Cert string `yaml:"cert"`
				Key  string `yaml:"key"`
				CA   string `yaml:"ca"`
			}{}
		}
		if cert != "" {
			f.TLS.Cert = cert
		}
		if key != "" {
			f.TLS.Key = key
		}
		if ca != "" {
			f.TLS.CA = ca
		}
	}
}

func loadTLS(certFile, keyFile, caFile string) (*tls.Config, error) {
	cert, err := tls.LoadX509KeyPair(certFile, keyFile)
	if err != nil {
		return nil, fmt.Errorf("config: load keypair: %w", err)
	}
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}}

	if caFile != "" {
		pem, err := os.ReadFile(caFile)
		if err != nil {
			return nil, fmt.Errorf("config: read CA %s: %w", caFile, err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("config: no certificates found in %s", caFile)
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}

	return cfg, nil
}

// ParseAddress strips a dns:/unix:/unix-abstract: scheme prefix and
// returns the (network, target) pair net.Listen/grpc.DialContext expect,
// porting daemon_servicer.py's DNS_URI_PREFIX stripping and
// is_uds_family check. A bare address with no prefix is treated as tcp.
func ParseAddress(address string) (network, target string) {
	switch {
	case strings.HasPrefix(address, UnixAbstractPrefix):
		return "unix", "@" + strings.TrimPrefix(address, UnixAbstractPrefix)
	case strings.HasPrefix(address, UnixPrefix):
		return "unix", strings.TrimPrefix(address, UnixPrefix)
	case strings.HasPrefix(address, DNSPrefix):
		return "tcp", strings.TrimPrefix(address, DNSPrefix)
	default:
		return "tcp", address
	}
}

// IsUDS reports whether address names a Unix domain socket family.
func IsUDS(address string) bool {
	network, _ := ParseAddress(address)
	return network == "unix"
}

package tls

import (
	"crypto/tls"
	"errors"
	"fmt"

	"mercator-hq/eventgate/pkg/config"
)

// ServerConfig returns the crypto/tls configuration for the listener along
// with the Reloader serving its certificate. Both are nil when TLS is
// disabled.
func ServerConfig(cfg *config.TLSConfig) (*tls.Config, *Reloader, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil, nil
	}
	if cfg.CertFile == "" || cfg.KeyFile == "" {
		return nil, nil, errors.New("cert_file and key_file are required when TLS is enabled")
	}

	version, err := ParseVersion(cfg.MinVersion)
	if err != nil {
		return nil, nil, err
	}

	reloader, err := NewReloader(cfg.CertFile, cfg.KeyFile)
	if err != nil {
		return nil, nil, err
	}

	// #nosec G402 - MinVersion is 1.2 or higher
	return &tls.Config{
		MinVersion:     version,
		GetCertificate: reloader.GetCertificate,
		NextProtos:     []string{"h2", "http/1.1"},
	}, reloader, nil
}

// ParseVersion maps "1.2" and "1.3" to their crypto/tls constants. An empty
// string selects TLS 1.2.
func ParseVersion(v string) (uint16, error) {
	switch v {
	case "", "1.2":
		return tls.VersionTLS12, nil
	case "1.3":
		return tls.VersionTLS13, nil
	default:
		return 0, fmt.Errorf("unsupported TLS min_version %q (use 1.2 or 1.3)", v)
	}
}

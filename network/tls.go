package network

import (
	"crypto/tls"
	"fmt"
	"os"

	"github.com/lhmouse/poseidon/config"
)

// tlsContexts holds the driver's default server and client TLS
// configurations (spec §4.5 "TLS contexts"), rebuilt whenever the
// configuration store reloads. Grounded on the tls.Config wiring in
// searchktools-fast-server's core/http2/server.go, generalized from a
// single HTTP/2 listener's config to a driver-wide default pair plus
// per-socket ALPN routing.
type tlsContexts struct {
	server *tls.Config
	client *tls.Config
}

func newTLSContexts() *tlsContexts {
	return &tlsContexts{
		client: &tls.Config{MinVersion: tls.VersionTLS12},
	}
}

func (t *tlsContexts) reload(store *config.Store) error {
	certPath := store.String("", "network", "default_certificate")
	keyPath := store.String("", "network", "default_private_key")

	if certPath != "" && keyPath != "" {
		cert, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			return fmt.Errorf("network: load default certificate: %w", err)
		}
		t.server = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	caDir := store.String("", "network", "trusted_ca_path")
	if caDir != "" {
		if _, err := os.Stat(caDir); err != nil {
			return fmt.Errorf("network: trusted_ca_path: %w", err)
		}
		// A directory of trust anchors is loaded lazily by callers that
		// need it (e.g. an HTTPS client dialing out); the driver itself
		// only validates the path exists at reload time.
	} else {
		t.client.InsecureSkipVerify = true
	}

	return nil
}

// ALPNSelector lets a socket choose a protocol from the client's
// offered list during a server-side handshake (spec §4.5 "ALPN glue").
type ALPNSelector func(offered []string) (selected string, ok bool)

// ServerConfigFor clones the driver's default server TLS config and
// installs sel as its ALPN negotiation callback.
func (t *tlsContexts) ServerConfigFor(sel ALPNSelector) *tls.Config {
	if t.server == nil {
		return nil
	}
	cfg := t.server.Clone()
	if sel != nil {
		cfg.GetConfigForClient = func(hello *tls.ClientHelloInfo) (*tls.Config, error) {
			inner := cfg.Clone()
			inner.GetConfigForClient = nil
			if selected, ok := sel(hello.SupportedProtos); ok {
				inner.NextProtos = []string{selected}
			}
			return inner, nil
		}
	}
	return cfg
}

// ClientConfigWithProtocols clones the driver's default client TLS
// config with offered set as the client's ALPN protocol list.
func (t *tlsContexts) ClientConfigWithProtocols(offered []string) *tls.Config {
	cfg := t.client.Clone()
	cfg.NextProtos = offered
	return cfg
}

package app

import (
	"fmt"
	"os"

	"tezrelay/pkg/config"
)

// validateConfig performs quick, fail-fast validation of the effective
// configuration before starting long-running services. Keep checks light
// and focused so callers can surface user-friendly errors.
func validateConfig(eff config.EffectiveConfigResult) error {
	if eff.DataDir == "" {
		return fmt.Errorf("data directory is empty: set -data flag, TEZRELAY_DATA_DIR env, or server.data_dir in config")
	}

	// The relay host names every local tez address and every outbound
	// bundle, so it must be known before anything is persisted.
	if eff.Config.Server.RelayHost == "" {
		return fmt.Errorf("relay host is empty: set TEZRELAY_RELAY_HOST env or server.relay_host in config")
	}

	cert := eff.Config.Server.TLS.CertFile
	key := eff.Config.Server.TLS.KeyFile
	if (cert != "" && key == "") || (cert == "" && key != "") {
		return fmt.Errorf("incomplete TLS configuration: both server.tls.cert_file and server.tls.key_file must be set")
	}
	if cert != "" {
		if _, err := os.Stat(cert); err != nil {
			return fmt.Errorf("tls cert file not accessible: %w", err)
		}
		if _, err := os.Stat(key); err != nil {
			return fmt.Errorf("tls key file not accessible: %w", err)
		}
	}

	if eff.Config.Federation.Enabled {
		switch eff.Config.Federation.ModeOrDefault() {
		case "allowlist", "open":
		default:
			return fmt.Errorf("invalid federation.mode %q: must be \"allowlist\" or \"open\"", eff.Config.Federation.Mode)
		}
	}

	return nil
}

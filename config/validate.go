package config

import (
	"fmt"
	"net/url"
	"strings"
)

// Validate checks runtime config for obvious operator mistakes.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	switch cfg.Network {
	case Mainnet, Testnet, Regtest:
	default:
		return fmt.Errorf("network must be %q, %q or %q", Mainnet, Testnet, Regtest)
	}

	if cfg.Storage.Engine == "" {
		cfg.Storage.Engine = EngineBadger
	}
	switch cfg.Storage.Engine {
	case EngineBadger, EngineLevelDB, EngineMemory:
	default:
		return fmt.Errorf("db.engine must be %s, %s or %s", EngineBadger, EngineLevelDB, EngineMemory)
	}

	if cfg.Ledger.RPCURL != "" {
		u, err := url.Parse(cfg.Ledger.RPCURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("ledger.rpc must be an http(s) URL")
		}
	}
	if cfg.Ledger.Timeout < 0 {
		return fmt.Errorf("ledger.timeout must not be negative")
	}
	if cfg.Ledger.StartHeight < 0 {
		return fmt.Errorf("ledger.startheight must not be negative")
	}
	if cfg.Ledger.Confirmations < 0 {
		return fmt.Errorf("ledger.confirmations must not be negative")
	}

	seen := make(map[string]struct{}, len(cfg.Color.Definitions))
	for i, p := range cfg.Color.Definitions {
		p = strings.TrimSpace(p)
		if p == "" {
			return fmt.Errorf("color.defs[%d] is empty", i)
		}
		if _, ok := seen[p]; ok {
			return fmt.Errorf("color.defs has duplicate path %q", p)
		}
		seen[p] = struct{}{}
		cfg.Color.Definitions[i] = p
	}

	if cfg.Server.Enabled && (cfg.Server.Port < 0 || cfg.Server.Port > 65535) {
		return fmt.Errorf("server.port must be between 0 and 65535")
	}

	switch cfg.Log.Level {
	case "", "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error")
	}
	return nil
}

package config

import "time"

// DefaultMainnet returns the default configuration for mainnet.
func DefaultMainnet() *Config {
	return &Config{
		Network: Mainnet,
		DataDir: DefaultDataDir(),
		Storage: StorageConfig{
			Engine: EngineBadger,
		},
		Ledger: LedgerConfig{
			RPCURL:        "http://127.0.0.1:" + defaultRPCPort(Mainnet),
			Timeout:       30 * time.Second,
			PollInterval:  10 * time.Second,
			Confirmations: 6,
		},
		Color: ColorConfig{
			DustLimit: DefaultDustLimit,
		},
		Server: ServerConfig{
			Enabled: true,
			Addr:    "127.0.0.1",
			Port:    defaultServerPort(Mainnet),
		},
		Log: LogConfig{
			Level: "info",
			JSON:  false,
		},
	}
}

// DefaultTestnet returns the default configuration for testnet.
func DefaultTestnet() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Testnet
	cfg.Ledger.RPCURL = "http://127.0.0.1:" + defaultRPCPort(Testnet)
	cfg.Ledger.Confirmations = 3
	cfg.Server.Port = defaultServerPort(Testnet)
	return cfg
}

// DefaultRegtest returns the default configuration for a local regtest node.
func DefaultRegtest() *Config {
	cfg := DefaultMainnet()
	cfg.Network = Regtest
	cfg.Ledger.RPCURL = "http://127.0.0.1:" + defaultRPCPort(Regtest)
	cfg.Ledger.PollInterval = time.Second
	cfg.Ledger.Confirmations = 1
	cfg.Server.Port = defaultServerPort(Regtest)
	return cfg
}

// Default returns the default configuration for the given network.
func Default(network NetworkType) *Config {
	switch network {
	case Testnet:
		return DefaultTestnet()
	case Regtest:
		return DefaultRegtest()
	default:
		return DefaultMainnet()
	}
}

func defaultRPCPort(network NetworkType) string {
	switch network {
	case Testnet:
		return "18332"
	case Regtest:
		return "18443"
	default:
		return "8332"
	}
}

func defaultServerPort(network NetworkType) int {
	switch network {
	case Testnet:
		return 19390
	case Regtest:
		return 29390
	default:
		return 9390
	}
}

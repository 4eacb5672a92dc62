// Package config handles application configuration.
//
// Configuration is split into two categories:
//   - Protocol rules: fixed constants that every verifier must agree on
//   - Tracker settings: runtime configuration, can vary per deployment
package config

import (
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// NetworkType identifies the base ledger network.
type NetworkType string

const (
	Mainnet NetworkType = "mainnet"
	Testnet NetworkType = "testnet"
	Regtest NetworkType = "regtest"
)

// Storage engines.
const (
	EngineBadger  = "badger"
	EngineLevelDB = "leveldb"
	EngineMemory  = "memory"
)

// =============================================================================
// Tracker Configuration (runtime, per-deployment settings)
// =============================================================================

// Config holds runtime configuration for a color tracker.
type Config struct {
	// Core
	Network NetworkType `conf:"network"`
	DataDir string      `conf:"datadir"`

	// Storage backend
	Storage StorageConfig

	// Base ledger access
	Ledger LedgerConfig

	// Color tracking
	Color ColorConfig

	// JSON-RPC server
	Server ServerConfig

	// Logging
	Log LogConfig
}

// StorageConfig selects the key-value backend.
type StorageConfig struct {
	Engine string `conf:"db.engine"` // badger, leveldb or memory
}

// LedgerConfig holds base ledger node RPC settings.
type LedgerConfig struct {
	RPCURL        string        `conf:"ledger.rpc"`
	RPCUser       string        `conf:"ledger.rpcuser"`
	RPCPassword   string        `conf:"ledger.rpcpassword"`
	Timeout       time.Duration `conf:"ledger.timeout"`
	StartHeight   int64         `conf:"ledger.startheight"` // First block to scan
	PollInterval  time.Duration `conf:"ledger.poll"`
	Confirmations int           `conf:"ledger.confirmations"` // Depth before a tx counts as confirmed
}

// ColorConfig holds color tracking settings.
type ColorConfig struct {
	Definitions []string `conf:"color.defs"` // Paths to color definition files
	DustLimit   uint64   `conf:"color.dust"` // Minimum value of a colored output
}

// ServerConfig holds the tracker's JSON-RPC server settings.
type ServerConfig struct {
	Enabled     bool     `conf:"server.enabled"`
	Addr        string   `conf:"server.addr"`
	Port        int      `conf:"server.port"`
	AllowedIPs  []string `conf:"server.allowed"` // IPs or CIDRs; empty allows all
	CORSOrigins []string `conf:"server.cors"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `conf:"log.level"`
	File  string `conf:"log.file"`
	JSON  bool   `conf:"log.json"`
}

// =============================================================================
// Directory helpers
// =============================================================================

// DefaultDataDir returns the platform-specific default data directory.
//
//	Linux:   ~/.smartcolors
//	macOS:   ~/Library/Application Support/Smartcolors
//	Windows: %APPDATA%\Smartcolors
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".smartcolors"
	}
	switch runtime.GOOS {
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", "Smartcolors")
	case "windows":
		appData := os.Getenv("APPDATA")
		if appData != "" {
			return filepath.Join(appData, "Smartcolors")
		}
		return filepath.Join(home, "AppData", "Roaming", "Smartcolors")
	default:
		return filepath.Join(home, ".smartcolors")
	}
}

// NetworkDataDir returns the network-specific data directory.
func (c *Config) NetworkDataDir() string {
	return filepath.Join(c.DataDir, string(c.Network))
}

// IndexDir returns the directory of the database holding the ledger index
// and the color database.
func (c *Config) IndexDir() string {
	return filepath.Join(c.NetworkDataDir(), "index")
}

// LogsDir returns the logs directory.
func (c *Config) LogsDir() string {
	return filepath.Join(c.DataDir, "logs")
}

// ConfigFile returns the config file path.
func (c *Config) ConfigFile() string {
	return filepath.Join(c.DataDir, "smartcolors.conf")
}

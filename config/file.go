package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFile loads node configuration from a .conf file.
// Format: key = value (one per line, # for comments)
func LoadFile(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return make(map[string]string), nil
		}
		return nil, err
	}
	defer file.Close()

	values := make(map[string]string)
	scanner := bufio.NewScanner(file)
	lineNum := 0

	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())

		// Skip empty lines and comments
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse key = value
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("line %d: invalid format (expected key = value)", lineNum)
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Remove quotes if present
		if len(value) >= 2 {
			if (value[0] == '"' && value[len(value)-1] == '"') ||
				(value[0] == '\'' && value[len(value)-1] == '\'') {
				value = value[1 : len(value)-1]
			}
		}

		values[key] = value
	}

	return values, scanner.Err()
}

// ApplyFileConfig applies file configuration to a Config struct.
func ApplyFileConfig(cfg *Config, values map[string]string) error {
	for key, value := range values {
		if err := setConfigValue(cfg, key, value); err != nil {
			return fmt.Errorf("config key %q: %w", key, err)
		}
	}
	return nil
}

// setConfigValue sets a config value by key.
// Only operational settings, NOT protocol rules.
func setConfigValue(cfg *Config, key, value string) error {
	switch key {
	// Core
	case "network":
		cfg.Network = NetworkType(value)
	case "datadir":
		cfg.DataDir = value

	// Storage
	case "db.engine":
		cfg.Storage.Engine = strings.ToLower(value)

	// Ledger
	case "ledger.rpc":
		cfg.Ledger.RPCURL = value
	case "ledger.rpcuser":
		cfg.Ledger.RPCUser = value
	case "ledger.rpcpassword":
		cfg.Ledger.RPCPassword = value
	case "ledger.timeout":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		cfg.Ledger.Timeout = d
	case "ledger.poll":
		d, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		cfg.Ledger.PollInterval = d
	case "ledger.startheight":
		n, err := strconv.ParseInt(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Ledger.StartHeight = n
	case "ledger.confirmations":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Ledger.Confirmations = n

	// Color tracking
	case "color.defs":
		cfg.Color.Definitions = parseStringList(value)
	case "color.dust":
		n, err := strconv.ParseUint(value, 10, 64)
		if err != nil {
			return err
		}
		cfg.Color.DustLimit = n

	// JSON-RPC server
	case "server.enabled":
		cfg.Server.Enabled = parseBool(value)
	case "server.addr":
		cfg.Server.Addr = value
	case "server.port":
		n, err := strconv.Atoi(value)
		if err != nil {
			return err
		}
		cfg.Server.Port = n
	case "server.allowed":
		cfg.Server.AllowedIPs = parseStringList(value)
	case "server.cors":
		cfg.Server.CORSOrigins = parseStringList(value)

	// Logging
	case "log.level":
		cfg.Log.Level = value
	case "log.file":
		cfg.Log.File = value
	case "log.json":
		cfg.Log.JSON = parseBool(value)

	default:
		// Unknown keys are ignored
	}
	return nil
}

// parseBool parses a boolean value.
func parseBool(s string) bool {
	s = strings.ToLower(s)
	return s == "true" || s == "1" || s == "yes" || s == "on"
}

// parseStringList parses a comma-separated list.
func parseStringList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			result = append(result, p)
		}
	}
	return result
}

// WriteDefaultConfig writes a default configuration file.
func WriteDefaultConfig(path string, network NetworkType) error {
	content := `# Smartcolors Tracker Configuration
#
# This file contains OPERATIONAL settings only.
# Protocol rules (quantity bounds, mask width) are fixed and cannot be
# changed here.

# Network: mainnet, testnet or regtest
network = ` + string(network) + `

# Data directory (default: ~/.smartcolors)
# datadir = ~/.smartcolors

# ============================================================================
# Storage
# ============================================================================

# Backend: badger, leveldb or memory
db.engine = badger

# ============================================================================
# Base Ledger
# ============================================================================

ledger.rpc = http://127.0.0.1:` + defaultRPCPort(network) + `
# ledger.rpcuser =
# ledger.rpcpassword =
ledger.timeout = 30s
ledger.poll = 10s
# ledger.startheight = 0
# ledger.confirmations = 6

# ============================================================================
# Colors
# ============================================================================

# Color definition files to track (comma-separated)
# color.defs = gold.colordef,silver.colordef

# Minimum value of a colored output
color.dust = 546

# ============================================================================
# JSON-RPC Server
# ============================================================================

server.enabled = true
server.addr = 127.0.0.1
# server.port =
# server.allowed = 127.0.0.1,10.0.0.0/8
# server.cors =

# ============================================================================
# Logging
# ============================================================================

log.level = info
# log.file =
log.json = false
`
	return os.WriteFile(path, []byte(content), 0644)
}

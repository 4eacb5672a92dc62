package config

import (
	"flag"
	"fmt"
	"os"
	"strings"
)

// Flags holds parsed command-line flags.
type Flags struct {
	// Commands
	Help    bool
	Version bool

	// Core
	Network string
	DataDir string
	Config  string

	// Storage
	Engine string

	// Ledger
	RPC           string
	RPCUser       string
	RPCPassword   string
	StartHeight   int64
	Confirmations int

	// Colors
	Defs string

	// JSON-RPC server
	Server        bool
	ServerAddr    string
	ServerPort    int
	ServerAllowed string
	ServerCORS    string

	// Logging
	LogLevel string
	LogFile  string
	LogJSON  bool

	// Remaining args
	Args []string

	// Explicitly-set flags (zero is a meaningful override).
	SetStartHeight   bool
	SetConfirmations bool
	SetServer        bool
	SetLogJSON       bool
}

// ParseFlags parses command-line flags from args (without the program name).
func ParseFlags(args []string) (*Flags, error) {
	f := &Flags{}
	fs := flag.NewFlagSet("smartcolorsd", flag.ContinueOnError)

	// Commands
	fs.BoolVar(&f.Help, "help", false, "Show help message")
	fs.BoolVar(&f.Help, "h", false, "Show help message (shorthand)")
	fs.BoolVar(&f.Version, "version", false, "Show version information")
	fs.BoolVar(&f.Version, "v", false, "Show version (shorthand)")

	// Core
	fs.StringVar(&f.Network, "network", "", "Network type (mainnet, testnet or regtest)")
	fs.StringVar(&f.DataDir, "datadir", "", "Data directory path")
	fs.StringVar(&f.Config, "config", "", "Config file path")
	fs.StringVar(&f.Config, "c", "", "Config file path (shorthand)")

	// Storage
	fs.StringVar(&f.Engine, "db", "", "Storage engine (badger, leveldb or memory)")

	// Ledger
	fs.StringVar(&f.RPC, "rpc", "", "Base ledger node RPC URL")
	fs.StringVar(&f.RPCUser, "rpcuser", "", "Base ledger node RPC user")
	fs.StringVar(&f.RPCPassword, "rpcpassword", "", "Base ledger node RPC password")
	fs.Int64Var(&f.StartHeight, "startheight", 0, "First block to scan")
	fs.IntVar(&f.Confirmations, "confirmations", 0, "Confirmations before a block is indexed")

	// Colors
	fs.StringVar(&f.Defs, "defs", "", "Comma-separated color definition files to track")

	// JSON-RPC server
	fs.BoolVar(&f.Server, "server", true, "Enable the JSON-RPC server")
	fs.StringVar(&f.ServerAddr, "server-addr", "", "JSON-RPC listen address")
	fs.IntVar(&f.ServerPort, "server-port", 0, "JSON-RPC listen port")
	fs.StringVar(&f.ServerAllowed, "server-allowed", "", "Allowed IPs for JSON-RPC (comma-separated)")
	fs.StringVar(&f.ServerCORS, "server-cors", "", "Allowed CORS origins for JSON-RPC (comma-separated)")

	// Logging
	fs.StringVar(&f.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&f.LogFile, "log-file", "", "Log file path")
	fs.BoolVar(&f.LogJSON, "log-json", false, "Output logs as JSON")

	fs.Usage = PrintUsage
	fs.SetOutput(os.Stderr)

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	f.SetStartHeight = isFlagSet(fs, "startheight")
	f.SetConfirmations = isFlagSet(fs, "confirmations")
	f.SetServer = isFlagSet(fs, "server")
	f.SetLogJSON = isFlagSet(fs, "log-json")
	f.Args = fs.Args()

	// A positional argument stops the parser; anything flag-like after it
	// was silently ignored.
	for _, arg := range f.Args {
		if strings.HasPrefix(arg, "-") {
			return nil, fmt.Errorf("flag %q was not parsed (positional argument stopped parsing)", arg)
		}
	}
	return f, nil
}

// ApplyFlags applies command-line flags to a Config struct.
func ApplyFlags(cfg *Config, f *Flags) {
	// Core
	if f.Network != "" {
		cfg.Network = NetworkType(strings.ToLower(f.Network))
	}
	if f.DataDir != "" {
		cfg.DataDir = f.DataDir
	}

	// Storage
	if f.Engine != "" {
		cfg.Storage.Engine = strings.ToLower(f.Engine)
	}

	// Ledger
	if f.RPC != "" {
		cfg.Ledger.RPCURL = f.RPC
	}
	if f.RPCUser != "" {
		cfg.Ledger.RPCUser = f.RPCUser
	}
	if f.RPCPassword != "" {
		cfg.Ledger.RPCPassword = f.RPCPassword
	}
	if f.SetStartHeight {
		cfg.Ledger.StartHeight = f.StartHeight
	}
	if f.SetConfirmations {
		cfg.Ledger.Confirmations = f.Confirmations
	}

	// Colors
	if f.Defs != "" {
		cfg.Color.Definitions = parseStringList(f.Defs)
	}

	// JSON-RPC server
	if f.SetServer {
		cfg.Server.Enabled = f.Server
	}
	if f.ServerAddr != "" {
		cfg.Server.Addr = f.ServerAddr
	}
	if f.ServerPort != 0 {
		cfg.Server.Port = f.ServerPort
	}
	if f.ServerAllowed != "" {
		cfg.Server.AllowedIPs = parseStringList(f.ServerAllowed)
	}
	if f.ServerCORS != "" {
		cfg.Server.CORSOrigins = parseStringList(f.ServerCORS)
	}

	// Logging
	if f.LogLevel != "" {
		cfg.Log.Level = f.LogLevel
	}
	if f.LogFile != "" {
		cfg.Log.File = f.LogFile
	}
	if f.SetLogJSON {
		cfg.Log.JSON = f.LogJSON
	}
}

// isFlagSet checks if a flag was explicitly set.
func isFlagSet(fs *flag.FlagSet, name string) bool {
	found := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// PrintUsage writes the daemon help text to stderr.
func PrintUsage() {
	usage := `Smartcolors tracker - follows a base ledger node and serves color proofs

Usage:
  smartcolorsd [options]
  smartcolorsd --help

Commands:
  --help, -h        Show this help message
  --version, -v     Show version information

Core Options:
  --network         Network type: mainnet (default), testnet or regtest
  --datadir         Data directory (default: ~/.smartcolors)
  --config, -c      Config file path (default: <datadir>/smartcolors.conf)
  --db              Storage engine: badger (default), leveldb or memory

Ledger Options:
  --rpc             Node RPC URL (mainnet: http://127.0.0.1:8332)
  --rpcuser         Node RPC user
  --rpcpassword     Node RPC password
  --startheight     First block to scan (default: 0)
  --confirmations   Confirmations before a block is indexed

Color Options:
  --defs            Comma-separated color definition files to track

Server Options:
  --server          Enable the JSON-RPC server (default: true)
  --server-addr     Listen address (default: 127.0.0.1)
  --server-port     Listen port (mainnet: 9390, testnet: 19390, regtest: 29390)
  --server-allowed  Allowed IPs for JSON-RPC (comma-separated)
  --server-cors     Allowed CORS origins for JSON-RPC (comma-separated)

Logging Options:
  --log-level       Log level: debug, info, warn, error (default: info)
  --log-file        Log file path (default: <datadir>/logs/tracker.log)
  --log-json        Output logs as JSON

Note:
  Protocol rules (quantity bounds, mask width) are fixed and cannot be
  changed at runtime. Data directories are created automatically on first
  start.
`
	fmt.Fprint(os.Stderr, usage)
}

// Load builds the configuration from args with the following precedence:
// 1. Default values
// 2. Auto-create data dirs + default config (idempotent)
// 3. Config file
// 4. Command-line flags
func Load(args []string) (*Config, *Flags, error) {
	flags, err := ParseFlags(args)
	if err != nil {
		return nil, nil, err
	}
	if flags.Help || flags.Version {
		return nil, flags, nil
	}

	// Network first: it selects the defaults.
	network := Mainnet
	if flags.Network != "" {
		network = NetworkType(strings.ToLower(flags.Network))
	}
	cfg := Default(network)
	if flags.DataDir != "" {
		cfg.DataDir = flags.DataDir
	}

	if err := EnsureDataDirs(cfg); err != nil {
		return nil, nil, fmt.Errorf("ensuring data dirs: %w", err)
	}

	configPath := flags.Config
	if configPath == "" {
		configPath = cfg.ConfigFile()
	}
	fileValues, err := LoadFile(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("loading config file: %w", err)
	}
	if err := ApplyFileConfig(cfg, fileValues); err != nil {
		return nil, nil, fmt.Errorf("applying config file: %w", err)
	}

	// Flags take precedence.
	ApplyFlags(cfg, flags)
	if err := Validate(cfg); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, flags, nil
}

// EnsureDataDirs creates the data directory structure and a default config
// file if they don't already exist. Safe to call on every startup.
func EnsureDataDirs(cfg *Config) error {
	dirs := []string{
		cfg.DataDir,
		cfg.NetworkDataDir(),
		cfg.LogsDir(),
	}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("creating directory %s: %w", dir, err)
		}
	}

	configPath := cfg.ConfigFile()
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := WriteDefaultConfig(configPath, cfg.Network); err != nil {
			return fmt.Errorf("writing config file: %w", err)
		}
	}
	return nil
}

// Smartcolors color tracker daemon.
//
// Usage:
//
//	smartcolorsd [--network=regtest --defs=gold.issuance] Run tracker
//	smartcolorsd --help                                 Show help
package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Klingon-tech/smartcolors/config"
	"github.com/Klingon-tech/smartcolors/internal/tracker"
)

func main() {
	cfg, flags, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	if flags.Version {
		fmt.Println("smartcolorsd version 0.1.0")
		return
	}
	if flags.Help {
		config.PrintUsage()
		return
	}

	t, err := tracker.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if err := t.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		t.Stop()
		os.Exit(1)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	t.Stop()
}

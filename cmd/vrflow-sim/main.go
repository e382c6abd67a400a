// Copyright (C) 2026 Ben Grimm. Licensed under AGPL-3.0 (https://www.gnu.org/licenses/agpl-3.0.txt)

// Command vrflow-sim drives the flow-table core outside of a real
// dataplane: a "server" subcommand runs the control API over an
// in-memory router with fake collaborators, and an "inject" subcommand
// sends a synthetic packet through a fresh router of the same kind for
// local experimentation.
package main

import (
	"flag"
	"log"

	"github.com/ashoksr/vrflow/internal/flowconfig"
	"github.com/ashoksr/vrflow/internal/logging"
)

func main() {
	configPath := flag.String("config", "", "Path to YAML tunables file")
	addr := flag.String("addr", ":8070", "Control API listen address")
	flag.Parse()

	args := flag.Args()
	subcmd := ""
	if len(args) > 0 {
		subcmd = args[0]
	}

	switch subcmd {
	case "inject":
		if len(args) < 5 {
			log.Fatal("Usage: vrflow-sim inject <src-ip> <dst-ip> <src-port> <dst-port>")
		}
		if err := runInject(*configPath, args[1], args[2], args[3], args[4]); err != nil {
			log.Fatalf("inject failed: %v", err)
		}
	case "server", "":
		runServer(*configPath, *addr)
	default:
		log.Fatalf("Unknown command: %s", subcmd)
	}
}

func loadConfig(path string) flowconfig.Config {
	if path == "" {
		return flowconfig.Default()
	}
	cfg, err := flowconfig.Load(path)
	if err != nil {
		log.Fatalf("failed to load config from %s: %v", path, err)
	}
	return cfg
}

func newLogger() *logging.Logger {
	return logging.Default()
}

package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/matheus3301/wabridge/internal/config"
	"github.com/matheus3301/wabridge/internal/daemon"
	"github.com/matheus3301/wabridge/internal/session"
	"go.uber.org/fx"
)

func main() {
	configFlag := flag.String("config", "", "path to config file (default ~/.wabridge/config.toml)")
	sessionFlag := flag.String("session", "", "session name (overrides config)")
	flag.Parse()

	configPath := *configFlag
	if configPath == "" {
		configPath = session.ConfigPath()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "error: load config %s: %v\n", configPath, err)
			os.Exit(1)
		}
		cfg = config.Default()
	}
	if *sessionFlag != "" {
		cfg.Session = *sessionFlag
	}
	if cfg.Session == "" {
		cfg.Session = session.DefaultSessionName
	}

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "error: invalid config: %v\n", err)
		os.Exit(1)
	}
	if err := session.ValidateName(cfg.Session); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}

	app := fx.New(
		daemon.Module(daemon.Params{SessionName: cfg.Session, Config: cfg}),
	)

	app.Run()
}

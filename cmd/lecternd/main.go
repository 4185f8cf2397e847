// Command lecternd runs the lectern daemon in the foreground. It is the
// deployment entrypoint for service managers; interactive use goes through
// the lectern CLI, which launches the same run path.
package main

import (
	"context"
	"flag"
	"log"

	"lectern/internal/config"
	"lectern/internal/daemonrun"
)

func main() {
	configPath := flag.String("config", "", "config file path (default ~/.config/lectern/config.toml)")
	flag.Parse()

	cfg, _, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	if err := daemonrun.Run(context.Background(), cfg, daemonrun.Options{
		LogLevel: cfg.Logging.Level,
	}); err != nil {
		log.Fatalf("lecternd: %v", err)
	}
}

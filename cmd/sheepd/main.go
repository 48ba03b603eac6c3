// Command sheepd runs a single multi-disk placement node: it loads a JSON
// config, boots the disk registry and work-queue pools, and serves until
// signaled to stop.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/p1nky/sheepdog/internal/node"
	"github.com/p1nky/sheepdog/internal/telemetry"
)

func main() {
	configPath := flag.String("config", "/etc/sheepdog/sheepd.json", "path to node config JSON")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		panic(err)
	}

	logger := telemetry.NewLogger(telemetry.Config{Development: cfg.Development}, "sheepd")
	defer logger.Sync()

	n := node.New(cfg, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	logger.Info("sheepd starting", zap.Int("disks", len(n.Info())))
	n.Start(ctx) // blocks until ctx is done or n.Stop is called
	logger.Info("sheepd stopped")
}

func loadConfig(path string) (node.Config, error) {
	var cfg node.Config
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	if err := json.NewDecoder(f).Decode(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

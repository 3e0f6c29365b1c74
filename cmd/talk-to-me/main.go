package main

import (
	"os"

	"github.com/Beusted/talk-to-me/internal/config"
	"github.com/Beusted/talk-to-me/internal/logging"
	"github.com/Beusted/talk-to-me/internal/version"
	"github.com/Beusted/talk-to-me/internal/worker"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Init("info")
		logging.Fail(logging.CategoryApp, "failed to load configuration: %v", err)
		os.Exit(1)
	}

	logging.Init(cfg.LogLevel)
	defer logging.Shutdown()

	logging.Info(logging.CategoryApp, "starting talk-to-me worker version=%s", version.Version)

	w := worker.NewWorker(cfg)
	if err := w.Start(); err != nil {
		logging.Fail(logging.CategoryApp, "worker failed: %v", err)
		os.Exit(1)
	}

	logging.Info(logging.CategoryApp, "worker shutdown complete")
}

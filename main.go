package main

import (
	"log"
	"os"
	"path/filepath"

	"brokerCtl/cmd"
	"brokerCtl/internal/config"
	"brokerCtl/internal/storage"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		log.Fatal("Failed to create data directory:", err)
	}

	store, err := storage.NewStore(filepath.Join(cfg.DataDir, "history.db"))
	if err != nil {
		log.Fatal("Failed to initialize storage:", err)
	}

	err = cmd.Execute(store, cfg)
	store.Close()
	if err != nil {
		log.Fatal(err)
	}
}

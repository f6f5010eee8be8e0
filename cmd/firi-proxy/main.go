package main

import (
	"context"
	"log"

	"github.com/joho/godotenv"

	"github.com/firi-app/firi/internal/proxy"
)

var version = "0.1.0"

func main() {
	_ = godotenv.Load()

	cfg, err := proxy.LoadConfig(version)
	if err != nil {
		log.Fatalf("configuration error: %v", err)
	}

	logger := proxy.NewLogger(cfg.LogFile)
	defer logger.Sync()

	srv, err := proxy.New(context.Background(), cfg, logger)
	if err != nil {
		log.Fatalf("startup failed: %v", err)
	}
	if err := srv.Run(); err != nil {
		log.Fatal(err)
	}
}

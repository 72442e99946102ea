package main

import (
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/config"
	"github.com/paulohenriqueporto11-ship-it/spokely-backend/internal/server"
)

func main() {
	c, err := loadConfig()
	if err != nil {
		log.Fatalf("Load config failed: %v", err)
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGTERM, os.Interrupt)

	s, err := server.Init(c)
	if err != nil {
		log.Fatalf("Init server failed: %v", err)
	}

	go s.Start()

	<-shutdown
	s.Shutdown()
}

func loadConfig() (server.Config, error) {
	if err := config.LoadDotEnv(); err != nil {
		return server.Config{}, fmt.Errorf("load .env: %w", err)
	}

	c := server.DefaultConfig()

	// CONFIG_PATH is optional, environment variables alone are enough.
	if err := config.Load(os.Getenv("CONFIG_PATH"), &c); err != nil {
		return c, fmt.Errorf("load config: %w", err)
	}

	// PORT is set by most hosting platforms and wins over HTTP_PORT.
	if p := os.Getenv("PORT"); p != "" {
		port, err := strconv.ParseInt(p, 10, 32)
		if err != nil {
			return c, fmt.Errorf("parse PORT: %w", err)
		}
		c.HTTP.Port = int32(port)
	}

	return c, nil
}

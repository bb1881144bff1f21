package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/textmoor/textmoor/pkg/boltstore"
	"github.com/textmoor/textmoor/pkg/redistore"
	"github.com/textmoor/textmoor/pkg/server"
	"github.com/textmoor/textmoor/pkg/world"
)

// envDefault returns the environment variable value if set, otherwise the fallback.
func envDefault(envVar, fallback string) string {
	if v := os.Getenv(envVar); v != "" {
		return v
	}
	return fallback
}

func main() {
	confFile := flag.String("conf", envDefault("TEXTMOOR_CONF", ""), "Path to config file (env: TEXTMOOR_CONF)")
	port := flag.Int("port", 0, "TCP port to listen on, overrides config (env: TEXTMOOR_PORT)")
	flag.Parse()

	cfg, err := server.LoadConfig(*confFile)
	if err != nil {
		log.Fatalf("Error loading config: %v", err)
	}
	if *port == 0 {
		if envPort := os.Getenv("TEXTMOOR_PORT"); envPort != "" {
			if p, err := strconv.Atoi(envPort); err == nil {
				*port = p
			}
		}
	}
	if *port != 0 {
		cfg.Port = *port
	}

	store, err := openStore(cfg)
	if err != nil {
		log.Fatalf("Error opening store: %v", err)
	}
	defer store.Close()

	seedCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := world.Seed(seedCtx, store); err != nil {
		cancel()
		log.Fatalf("Error seeding world: %v", err)
	}
	cancel()

	game := server.NewGame(store, cfg)
	game.SetMetrics(server.NewMetrics())

	srv := server.NewServer(game, cfg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigCh
		log.Printf("Shutting down...")
		srv.Stop()
	}()

	log.Printf("Starting %s on port %d (web on %d, backend %s)...",
		cfg.WorldName, cfg.Port, cfg.WebPort, cfg.StoreBackend)
	if err := srv.Start(); err != nil {
		log.Fatalf("Server error: %v", err)
	}
}

// openStore opens the configured backend: bbolt for a single-node world,
// redis when the world lives in a shared datastore.
func openStore(cfg server.Config) (world.Store, error) {
	switch cfg.StoreBackend {
	case "redis":
		s := redistore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB, cfg.RedisPoolSize)
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.Ping(ctx); err != nil {
			return nil, err
		}
		log.Printf("Connected to redis at %s", cfg.RedisAddr)
		return s, nil
	default:
		s, err := boltstore.Open(cfg.BoltPath)
		if err != nil {
			return nil, err
		}
		log.Printf("Opened bolt database %s", cfg.BoltPath)
		return s, nil
	}
}

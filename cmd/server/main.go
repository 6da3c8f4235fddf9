package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/joho/godotenv"
	"github.com/npezzotti/go-relay/internal/api"
	"github.com/npezzotti/go-relay/internal/config"
	"github.com/npezzotti/go-relay/internal/server"
	"github.com/npezzotti/go-relay/internal/stats"
)

type stringSliceFlag []string

func (s *stringSliceFlag) String() string {
	return strings.Join(*s, ",")
}

func (s *stringSliceFlag) Set(value string) error {
	*s = append(*s, strings.Split(value, ",")...)
	return nil
}

var (
	addr           string
	likeDelivery   string
	allowedOrigins stringSliceFlag
)

func main() {
	logger := log.New(os.Stderr, "[relay] ", log.LstdFlags)

	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logger.Println("load .env:", err)
	}
	env := config.FromEnv()

	flag.StringVar(&addr, "addr", ":"+env.Port, "server address")
	flag.StringVar(&likeDelivery, "like-delivery", env.LikeDelivery, "like delivery mode: broadcast or owner")
	flag.Var(&allowedOrigins, "allowed-origins", "comma-separated list of allowed origins for CORS and websocket upgrades")
	flag.Parse()

	if len(allowedOrigins) == 0 {
		allowedOrigins = env.AllowedOrigins
	}

	cfg, err := config.NewConfig(addr, allowedOrigins, likeDelivery)
	if err != nil {
		logger.Fatal("config:", err)
	}

	r := chi.NewRouter()

	statsUpdater := stats.NewStatsUpdater(r)

	relay := server.NewRelay(server.NewRouter(cfg.LikeDelivery))
	relayServer := server.NewRelayServer(logger, relay, statsUpdater)

	srv := api.NewRelayApp(r, logger, relayServer, cfg)

	statsUpdater.Run()
	defer statsUpdater.Stop()

	go relayServer.Run()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigs:
		logger.Printf("received signal: %s\n", sig)
	case err := <-errCh:
		logger.Println("server:", err)
	}

	shutDownCtx, cancel := context.WithTimeout(
		context.Background(),
		10*time.Second,
	)
	defer cancel()

	if err := srv.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("HTTP server shutdown:", err)
	}

	logger.Println("shutting down relay server...")
	if err := relayServer.Shutdown(shutDownCtx); err != nil {
		logger.Fatalln("relay server shutdown:", err)
	}

	logger.Println("shutdown complete")
}

// Package main provides the lobby server binary: the WebSocket session
// coordinator for the card game.
package main

import (
	"context"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/deckmatch/lobbyd/internal/config"
	"github.com/deckmatch/lobbyd/internal/frontend/ws"
	"github.com/deckmatch/lobbyd/internal/game"
	"github.com/deckmatch/lobbyd/internal/lobby"
	"github.com/deckmatch/lobbyd/internal/observability"
	"github.com/deckmatch/lobbyd/internal/server"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	coordinator := lobby.NewCoordinator(cfg.Lobby,
		func(version, name string) lobby.GameRoom { return game.New(version, name) },
		logger,
	)
	acceptor := ws.NewAcceptor(cfg.WebSocket, cfg.Lobby.SendBuffer, coordinator, logger)

	lifecycle := server.NewLifecycle(logger)
	lifecycle.Add("coordinator", coordinator)
	lifecycle.Add("websocket", &server.FuncService{
		StartFn: acceptor.ListenAndServe,
		StopFn:  acceptor.Stop,
	})

	logger.Info("lobby server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("addr", cfg.WebSocket.Addr()),
		zap.Duration("idle_timeout", cfg.Lobby.IdleTimeout),
	)

	if err := lifecycle.Run(ctx); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}

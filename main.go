package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/wfunc/tictactoe/auth"
	"github.com/wfunc/tictactoe/config"
	"github.com/wfunc/tictactoe/logger"
	"github.com/wfunc/tictactoe/monitor"
	"github.com/wfunc/tictactoe/persistence"
	"github.com/wfunc/tictactoe/server"
	"github.com/wfunc/tictactoe/services"
)

func main() {
	cfg, err := config.LoadConfig(".")
	if err != nil {
		panic("failed to load configuration: " + err.Error())
	}

	logger.Init(cfg.Log.Level, cfg.Log.Development)
	defer logger.Sync()

	db, err := persistence.Open(cfg.Database)
	if err != nil {
		logger.Log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()
	if cfg.Database.Enabled {
		logger.Log.Infof("Database connection successful (%s).", cfg.Database.Driver)
	}

	mon := monitor.NewMonitor("tictactoe")

	matches := services.NewMatchService(db, mon, services.DefaultQueueSize)
	ctx, cancel := context.WithCancel(context.Background())
	recorderDone := make(chan struct{})
	go func() {
		matches.Run(ctx)
		close(recorderDone)
	}()

	if cfg.Auth.Secret == "" {
		logger.Log.Warn("auth.secret is not set; using a random key, sessions end on restart.")
	}
	authService := auth.NewService(
		auth.NewUserStore(),
		auth.NewTokens(cfg.Auth.Secret, cfg.Auth.SessionTTL),
		cfg.Auth.CookieName,
		cfg.Auth.SessionTTL,
	)
	gameServer := server.NewGameServer(cfg, authService, matches, matches, mon)

	errCh := make(chan error, 1)
	go func() {
		errCh <- gameServer.Start()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		logger.Log.Infof("Received %s, shutting down.", s)
	case err := <-errCh:
		if err != nil {
			logger.Log.Errorf("Server stopped: %v", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := gameServer.Shutdown(shutdownCtx); err != nil {
		logger.Log.Warnf("Shutdown: %v", err)
	}

	cancel()
	<-recorderDone
	logger.Log.Info("Server stopped.")
}

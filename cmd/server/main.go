package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"rtcsignal/internal/auth"
	"rtcsignal/internal/config"
	"rtcsignal/internal/control"
	"rtcsignal/internal/roomsvc"
	"rtcsignal/internal/transport"
	"rtcsignal/internal/turn"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: parseLevel(cfg.Log.Level),
	})))

	slog.Info("starting signaling server")

	turnSvc := turn.NewService(turn.Config{
		Host: cfg.Turn.Host,
		Port: cfg.Turn.Port,
		Pass: cfg.Turn.Pass,
	})

	rooms := roomsvc.NewService(turnSvc)
	tr := transport.NewServer(rooms, cfg.RPC.ReconnectTimeout, cfg.RPC.IdleTimeout, cfg.RPC.PingInterval)

	ops := auth.NewOperatorService(cfg.Control.JWTSecret, 0)
	callbacks := control.NewCallbackDispatcher(cfg.Control.Timeout)
	rl := control.NewRateLimiter(600, time.Minute)
	controlHandler := control.NewHandler(rooms, tr, callbacks)

	clientServer := &http.Server{
		Addr:    cfg.ClientAddr(),
		Handler: tr.Router(),
	}

	controlServer := &http.Server{
		Addr:    cfg.Server.Control.BindAddr,
		Handler: control.Router(controlHandler, ops, rl),
	}

	go func() {
		slog.Info("client websocket listener starting", "addr", cfg.ClientAddr())
		if err := clientServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("client listener failed", "error", err)
			os.Exit(1)
		}
	}()

	go func() {
		slog.Info("control api listener starting", "addr", cfg.Server.Control.BindAddr)
		if err := controlServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("control listener failed", "error", err)
			os.Exit(1)
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	slog.Info("shutting down")

	shutdownTimeout := cfg.Shutdown.Timeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := clientServer.Shutdown(ctx); err != nil {
		slog.Error("client listener shutdown error", "error", err)
	}
	if err := controlServer.Shutdown(ctx); err != nil {
		slog.Error("control listener shutdown error", "error", err)
	}

	slog.Info("server stopped")
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

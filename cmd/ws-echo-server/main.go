// File: cmd/ws-echo-server/main.go
// Package main
//
// Standalone WebSocket echo server, grounded on the teacher's
// examples/echo/main.go native-WebSocket shape, rebuilt atop the ws
// package. Optionally loads api.Options from a YAML config file with
// hot-reload, demonstrating control.ConfigStore end to end.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/momentics/netreactor/api"
	"github.com/momentics/netreactor/control"
	"github.com/momentics/netreactor/core"
	"github.com/momentics/netreactor/ws"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9001", "WebSocket listen address")
	configPath := flag.String("config", "", "optional YAML config file to load (hot-reloaded)")
	flag.Parse()

	logger := control.NewLogger(slog.LevelInfo)

	opts := api.Default()
	if *configPath != "" {
		cs, err := control.LoadConfigStore(*configPath)
		if err != nil {
			logger.ErrorCtx(context.Background(), "failed to load config", err)
			os.Exit(1)
		}
		defer cs.Close()
		opts = cs.Options()
		cs.OnReload(func(old, next api.Options) {
			logger.Info("config reloaded", "worker_count", next.WorkerCount)
		})
	}

	svc := core.NewService(opts.WorkerCount, api.ServiceSink{
		OnError: func(err error) { logger.ErrorCtx(context.Background(), "service error", err) },
	})
	if !svc.Start(opts.Polling) {
		logger.Error("failed to start service")
		os.Exit(1)
	}
	defer svc.Stop()

	srv := ws.NewServer(svc, api.ServerSink{
		OnStarted: func() { logger.Info("ws server started", "addr", *addr) },
		OnError:   func(err error) { logger.ErrorCtx(context.Background(), "server error", err) },
	}, func(s *ws.Session) api.WSSink {
		return api.WSSink{
			OnWSConnected: func(headers map[string][]string) { logger.Info("client connected") },
			OnWSReceived: func(payload []byte, isText bool) {
				if isText {
					s.SendText(string(payload))
				} else {
					s.SendBinary(payload)
				}
			},
			OnWSClose: func(code int, reason string) { logger.Info("client closed", "code", code) },
		}
	}, opts, 5*time.Second)

	if err := srv.Start(*addr); err != nil {
		logger.ErrorCtx(context.Background(), "failed to start listener", err)
		os.Exit(1)
	}
	defer srv.Stop()

	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()
	go func() {
		for range ticker.C {
			srv.MulticastText("heartbeat")
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")
}

// File: cmd/echo-server/main.go
// Package main
//
// Standalone TCP echo server, grounded on the teacher's
// examples/echo/main.go (flag-configured listen address, signal-driven
// graceful shutdown, a per-connection counter exposed as a debug probe)
// rebuilt atop the tcp and control packages instead of facade/transport.
package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/momentics/netreactor/api"
	"github.com/momentics/netreactor/control"
	"github.com/momentics/netreactor/core"
	"github.com/momentics/netreactor/tcp"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9000", "TCP listen address")
	metricsAddr := flag.String("metrics-addr", "127.0.0.1:9100", "Prometheus metrics listen address")
	flag.Parse()

	logger := control.NewLogger(slog.LevelInfo)
	reg := prometheus.NewRegistry()
	metrics := control.NewMetricsRegistry(reg, "echo_server")

	var connCount atomic.Int64

	svc := core.NewService(0, api.ServiceSink{
		OnError: func(err error) { logger.ErrorCtx(context.Background(), "service error", err) },
	})
	if !svc.Start(false) {
		logger.Error("failed to start service")
		os.Exit(1)
	}
	defer svc.Stop()

	srv := tcp.NewServer(svc, api.ServerSink{
		OnStarted: func() { logger.Info("server started", "addr", *addr) },
		OnConnected: func(id api.SessionID) {
			connCount.Add(1)
			metrics.Sessions.Set(float64(connCount.Load()))
		},
		OnDisconnected: func(id api.SessionID) {
			connCount.Add(-1)
			metrics.Sessions.Set(float64(connCount.Load()))
		},
		OnError: func(err error) {
			metrics.IncError()
			logger.ErrorCtx(context.Background(), "server error", err)
		},
	}, func(s *tcp.Session) api.SessionSink {
		return api.SessionSink{
			OnReceived: func(buf []byte) { s.Send(buf) },
			OnError: func(err error) {
				metrics.IncError()
				logger.ErrorCtx(context.Background(), "session error", err)
			},
		}
	}, api.Default())

	if err := srv.Start(*addr); err != nil {
		logger.ErrorCtx(context.Background(), "failed to start listener", err)
		os.Exit(1)
	}
	defer srv.Stop()

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
		http.ListenAndServe(*metricsAddr, mux)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	logger.Info("shutdown signal received")
}

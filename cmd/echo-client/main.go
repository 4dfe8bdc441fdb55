// File: cmd/echo-client/main.go
// Package main
//
// Standalone TCP echo client, grounded on the teacher's
// examples/highlevel/client/main.go connect-send-receive shape, rebuilt
// atop tcp.Client and demonstrating tcp.Client.ReconnectAsync.
package main

import (
	"bufio"
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
	"github.com/momentics/netreactor/tcp"
)

func main() {
	addr := flag.String("addr", "127.0.0.1:9000", "server address to connect to")
	flag.Parse()

	logger := control.NewLogger(slog.LevelInfo)

	svc := core.NewService(0, api.ServiceSink{})
	if !svc.Start(false) {
		logger.Error("failed to start service")
		os.Exit(1)
	}
	defer svc.Stop()

	var client *tcp.Client
	client = tcp.NewClient(*addr, svc, api.SessionSink{
		OnConnected: func() { logger.Info("connected", "addr", *addr) },
		OnReceived: func(buf []byte) {
			os.Stdout.Write(buf)
			os.Stdout.WriteString("\n")
		},
		OnDisconnected: func() {
			logger.Warn("disconnected, reconnecting", "addr", *addr)
			client.ReconnectAsync(time.Second)
		},
		OnError: func(err error) { logger.ErrorCtx(context.Background(), "session error", err) },
	}, api.Default())

	if err := client.ConnectSync(context.Background()); err != nil {
		logger.ErrorCtx(context.Background(), "connect failed", err)
		os.Exit(1)
	}
	defer client.Disconnect()

	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			client.Send(scanner.Bytes())
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
}

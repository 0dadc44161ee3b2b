package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/spf13/pflag"
	"go.uber.org/automaxprocs/maxprocs"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-chatroom-go/application"
	"github.com/lk2023060901/danmu-chatroom-go/internal/server"
	"github.com/lk2023060901/danmu-chatroom-go/pkg/log"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	app := application.New("chatserver", application.WithDefaults(server.RegisterDefaults))
	if err := app.Run(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if app.VersionRequested() {
		return 0
	}
	defer func() { _ = log.Sync() }()

	undo, err := maxprocs.Set(maxprocs.Logger(log.S().Infof))
	if err != nil {
		log.L().Warn("set GOMAXPROCS failed", zap.Error(err))
	}
	defer undo()

	cfg, err := server.LoadConfig(app.Config())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	switch pos := app.Args(); {
	case len(pos) == 2:
		cfg.Server.Addr = net.JoinHostPort(pos[0], pos[1])
	case len(pos) == 0 && cfg.Server.Addr != "":
	default:
		app.Usage("<ip> <port>")
		return 1
	}

	srv, err := server.New(cfg, server.WithLoggers(app.Logger))
	if err != nil {
		log.L().Error("create chat server failed", zap.Error(err))
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := srv.Serve(ctx); err != nil {
		log.L().Error("chat server exited", zap.Error(err))
		return 1
	}
	return 0
}

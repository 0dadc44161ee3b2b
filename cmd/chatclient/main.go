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

	"github.com/lk2023060901/danmu-chatroom-go/application"
	"github.com/lk2023060901/danmu-chatroom-go/internal/client"
	"github.com/lk2023060901/danmu-chatroom-go/internal/network/codec"
	"github.com/lk2023060901/danmu-chatroom-go/internal/network/connector"
	"github.com/lk2023060901/danmu-chatroom-go/internal/network/framer"
	"github.com/lk2023060901/danmu-chatroom-go/pkg/log"
	zviper "github.com/lk2023060901/danmu-chatroom-go/pkg/util/viper"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	app := application.New("chatclient", application.WithDefaults(func(c *zviper.Config) {
		// 日志默认不写终端，避免与聊天内容混在一起。
		c.SetDefault("log.stdout", false)
	}))
	framing := app.Flags().String("framing", framer.KindLengthPrefixed, "wire framing, raw or length-prefixed")
	attempts := app.Flags().Uint("dial-attempts", 3, "number of connection attempts")
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

	pos := app.Args()
	if len(pos) != 2 {
		app.Usage("<ip> <port>")
		return 1
	}

	f, err := framer.New(*framing, 0)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	c, err := codec.New(codec.Options{Framer: f})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	dialer, err := connector.NewTCPConnector(connector.Config{Codec: c, Attempts: *attempts})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sess, err := dialer.Dial(ctx, net.JoinHostPort(pos[0], pos[1]))
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	defer sess.Close()

	if err := client.New(sess, os.Stdin, os.Stdout).Run(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}

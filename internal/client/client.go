package client

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/cockroachdb/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/lk2023060901/danmu-chatroom-go/internal/network/codec"
	"github.com/lk2023060901/danmu-chatroom-go/internal/network/session"
	"github.com/lk2023060901/danmu-chatroom-go/pkg/log"
)

// State 是客户端根据服务端消息推断出的所处阶段。
type State int32

const (
	StateLogin State = iota
	StateSelecting
	StateInRoom
	StateDone
)

// 行内命令。
const (
	cmdQuit   = "/quit"
	cmdLeave  = "/leave"
	cmdCreate = "/create "
)

// errSessionEnded 表示服务端关闭了连接或发来了 QUIT。
var errSessionEnded = errors.New("client: session ended")

// Translate 把一行输入转换为协议消息，返回 false 表示这一行不需要发送。
//
// 规则：
//   - 登录阶段的第一行是用户名；
//   - /quit、/leave、/create name;w1,w2 在任何阶段都是命令；
//   - 选择阶段的普通行是要加入的聊天室名；
//   - 聊天室内的普通行是聊天内容。
func Translate(state State, line string) (codec.Message, bool) {
	if state == StateLogin {
		return codec.NewMessage(codec.Login, line), true
	}
	switch {
	case line == cmdQuit:
		return codec.NewMessage(codec.Quit, ""), true
	case line == cmdLeave:
		return codec.NewMessage(codec.Menu, ""), true
	case strings.HasPrefix(line, cmdCreate):
		return codec.NewMessage(codec.Create, strings.TrimSpace(strings.TrimPrefix(line, cmdCreate))), true
	case line == "":
		return codec.Message{}, false
	case state == StateInRoom:
		return codec.NewMessage(codec.Post, line), true
	default:
		return codec.NewMessage(codec.Join, line), true
	}
}

// Client 是一个逐行交互的终端客户端。
type Client struct {
	sess  session.Session
	in    io.Reader
	out   io.Writer
	state atomic.Int32
}

// New 创建客户端，in 为用户输入，out 为服务端消息的输出。
func New(sess session.Session, in io.Reader, out io.Writer) *Client {
	return &Client{sess: sess, in: in, out: out}
}

// State 返回当前阶段。
func (c *Client) State() State {
	return State(c.state.Load())
}

// Observe 根据服务端消息的类型推进阶段。
func (c *Client) Observe(msg codec.Message) {
	switch msg.Type {
	case codec.Join:
		c.state.Store(int32(StateInRoom))
	case codec.Menu:
		c.state.Store(int32(StateSelecting))
	case codec.Quit:
		c.state.Store(int32(StateDone))
	}
}

// Run 同时转发用户输入与服务端消息，直到服务端断开、用户退出或 ctx 结束。
func (c *Client) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	lines := make(chan string)

	go c.scan(ctx, lines)
	g.Go(func() error {
		return c.readLoop()
	})
	g.Go(func() error {
		return c.writeLoop(ctx, lines)
	})
	stop := context.AfterFunc(ctx, func() { _ = c.sess.Close() })
	defer stop()

	err := g.Wait()
	if errors.Is(err, errSessionEnded) || errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func (c *Client) readLoop() error {
	for {
		msg, err := c.sess.Recv()
		if err != nil {
			log.L().Debug("receive stopped", zap.Error(err))
			return errSessionEnded
		}
		c.Observe(msg)
		fmt.Fprintln(c.out, msg.Body)
		if msg.Type == codec.Quit {
			return errSessionEnded
		}
	}
}

func (c *Client) writeLoop(ctx context.Context, lines <-chan string) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				return c.sess.Send(codec.NewMessage(codec.Quit, ""))
			}
			msg, send := Translate(c.State(), line)
			if !send {
				continue
			}
			if err := c.sess.Send(msg); err != nil {
				return err
			}
			if msg.Type == codec.Login {
				c.state.CompareAndSwap(int32(StateLogin), int32(StateSelecting))
			}
		}
	}
}

// scan 逐行读取输入，输入结束时关闭 lines。
// 阻塞在 Read 上的协程会在进程退出时一并结束。
func (c *Client) scan(ctx context.Context, lines chan<- string) {
	defer close(lines)
	sc := bufio.NewScanner(c.in)
	for sc.Scan() {
		select {
		case lines <- strings.TrimRight(sc.Text(), "\r"):
		case <-ctx.Done():
			return
		}
	}
}

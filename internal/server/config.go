package server

import (
	"time"

	"github.com/lk2023060901/danmu-chatroom-go/internal/chat"
	"github.com/lk2023060901/danmu-chatroom-go/internal/network/acceptor"
	"github.com/lk2023060901/danmu-chatroom-go/internal/network/framer"
	"github.com/lk2023060901/danmu-chatroom-go/internal/network/reactor"
	"github.com/lk2023060901/danmu-chatroom-go/internal/network/session"
	"github.com/lk2023060901/danmu-chatroom-go/pkg/util/merr"
	zviper "github.com/lk2023060901/danmu-chatroom-go/pkg/util/viper"
)

// Config 是聊天服务器的完整配置。
type Config struct {
	Server  ListenConfig  `mapstructure:"server"`
	Network NetworkConfig `mapstructure:"network"`
	Chat    chat.Config   `mapstructure:"chat"`
	Metrics AdminConfig   `mapstructure:"metrics"`
}

// ListenConfig 描述聊天端口。
type ListenConfig struct {
	Addr string `mapstructure:"addr"`
}

// NetworkConfig 描述分帧方式与连接的收发参数。
type NetworkConfig struct {
	Framing          string        `mapstructure:"framing"`
	MaxFrameSize     uint32        `mapstructure:"max_frame_size"`
	SendQueueSize    int           `mapstructure:"send_queue_size"`
	WriteTimeout     time.Duration `mapstructure:"write_timeout"`
	LoginTimeout     time.Duration `mapstructure:"login_timeout"`
	HandshakeWorkers int           `mapstructure:"handshake_workers"`
	ReadBufferSize   int           `mapstructure:"read_buffer_size"`
	EventQueueSize   int           `mapstructure:"event_queue_size"`
}

// AdminConfig 描述管理 HTTP 端口，Addr 为空时不启动。
type AdminConfig struct {
	Addr  string `mapstructure:"addr"`
	Pprof bool   `mapstructure:"pprof"`
}

// DefaultConfig 返回全部默认值。
func DefaultConfig() Config {
	return Config{
		Network: NetworkConfig{
			Framing:          framer.KindLengthPrefixed,
			MaxFrameSize:     framer.DefaultMaxFrameSize,
			SendQueueSize:    session.DefaultSendQueueSize,
			WriteTimeout:     5 * time.Second,
			HandshakeWorkers: acceptor.DefaultHandshakeWorkers,
			ReadBufferSize:   session.DefaultReadBufferSize,
			EventQueueSize:   reactor.DefaultEventQueueSize,
		},
		Chat: chat.Config{
			DefaultRoom:    chat.DefaultRoom,
			MaxUsernameLen: chat.DefaultMaxUsernameLen,
			Mask:           chat.DefaultMask,
		},
	}
}

// RegisterDefaults 把默认值登记到 viper，使对应的 CHAT_* 环境变量生效。
func RegisterDefaults(v *zviper.Config) {
	def := DefaultConfig()
	v.SetDefault("server.addr", def.Server.Addr)
	v.SetDefault("network.framing", def.Network.Framing)
	v.SetDefault("network.max_frame_size", def.Network.MaxFrameSize)
	v.SetDefault("network.send_queue_size", def.Network.SendQueueSize)
	v.SetDefault("network.write_timeout", def.Network.WriteTimeout)
	v.SetDefault("network.login_timeout", def.Network.LoginTimeout)
	v.SetDefault("network.handshake_workers", def.Network.HandshakeWorkers)
	v.SetDefault("network.read_buffer_size", def.Network.ReadBufferSize)
	v.SetDefault("network.event_queue_size", def.Network.EventQueueSize)
	v.SetDefault("chat.default_room", def.Chat.DefaultRoom)
	v.SetDefault("chat.max_username_len", def.Chat.MaxUsernameLen)
	v.SetDefault("chat.mask", def.Chat.Mask)
	v.SetDefault("metrics.addr", def.Metrics.Addr)
	v.SetDefault("metrics.pprof", def.Metrics.Pprof)
}

// LoadConfig 从 viper 解析配置并校验。
func LoadConfig(v *zviper.Config) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, merr.WrapErrParameterInvalidMsg("decode config: %s", err.Error())
	}
	return cfg, cfg.Validate()
}

// Validate 检查配置中无法回退到默认值的字段。
func (c Config) Validate() error {
	switch c.Network.Framing {
	case "", framer.KindLengthPrefixed, framer.KindRaw:
	default:
		return merr.WrapErrParameterInvalid(framer.KindLengthPrefixed+"|"+framer.KindRaw, c.Network.Framing, "network.framing")
	}
	if c.Network.LoginTimeout < 0 || c.Network.WriteTimeout < 0 {
		return merr.WrapErrParameterInvalidMsg("network timeouts must not be negative")
	}
	if c.Chat.MaxUsernameLen < 0 {
		return merr.WrapErrParameterInvalidRange(0, 1<<10, c.Chat.MaxUsernameLen, "chat.max_username_len")
	}
	return nil
}

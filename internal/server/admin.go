package server

import (
	"context"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"runtime"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/lk2023060901/danmu-chatroom-go/internal/network/serializer"
	"github.com/lk2023060901/danmu-chatroom-go/pkg/log"
)

// adminRequestTimeout 为调试接口等待 reactor 的最长时间。
const adminRequestTimeout = 3 * time.Second

// Stats 是 /debug/stats 的响应。
type Stats struct {
	RSSBytes      uint64  `json:"rssBytes"`
	CPUPercent    float64 `json:"cpuPercent"`
	Goroutines    int     `json:"goroutines"`
	Connections   int     `json:"connections"`
	OnlineUsers   int     `json:"onlineUsers"`
	PendingLogins int     `json:"pendingLogins"`
	UptimeSeconds float64 `json:"uptimeSeconds"`
}

type adminServer struct {
	log.Binder

	owner   *Server
	ln      net.Listener
	srv     *http.Server
	codec   serializer.Serializer
	proc    *process.Process
	started time.Time
}

func newAdminServer(cfg AdminConfig, owner *Server) (*adminServer, error) {
	ln, err := net.Listen("tcp", cfg.Addr)
	if err != nil {
		return nil, errors.Wrapf(err, "admin: listen on %s", cfg.Addr)
	}
	proc, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		_ = ln.Close()
		return nil, errors.Wrap(err, "admin: inspect process")
	}

	a := &adminServer{
		owner:   owner,
		ln:      ln,
		codec:   serializer.JSONSerializer{},
		proc:    proc,
		started: time.Now(),
	}
	a.BindComponent("admin")

	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /healthz", a.healthz)
	mux.HandleFunc("GET /debug/rooms", a.rooms)
	mux.HandleFunc("GET /debug/stats", a.stats)
	if cfg.Pprof {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}

	a.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return a, nil
}

func (a *adminServer) healthz(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (a *adminServer) rooms(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), adminRequestTimeout)
	defer cancel()

	views, err := a.owner.Snapshot(ctx)
	if err != nil {
		a.fail(w, err)
		return
	}
	a.writeJSON(w, views)
}

func (a *adminServer) stats(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), adminRequestTimeout)
	defer cancel()

	online, err := a.owner.OnlineUsers(ctx)
	if err != nil {
		a.fail(w, err)
		return
	}
	st := Stats{
		Goroutines:    runtime.NumGoroutine(),
		Connections:   a.owner.reactor.Sessions().Count(),
		OnlineUsers:   online,
		PendingLogins: a.owner.acceptor.Pending(),
		UptimeSeconds: time.Since(a.started).Seconds(),
	}
	if mem, err := a.proc.MemoryInfoWithContext(ctx); err == nil {
		st.RSSBytes = mem.RSS
	}
	if cpu, err := a.proc.CPUPercentWithContext(ctx); err == nil {
		st.CPUPercent = cpu
	}
	a.writeJSON(w, st)
}

func (a *adminServer) writeJSON(w http.ResponseWriter, v any) {
	data, err := a.codec.Marshal(v)
	if err != nil {
		a.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

func (a *adminServer) fail(w http.ResponseWriter, err error) {
	a.Logger().Warn("admin request failed", zap.Error(err))
	http.Error(w, err.Error(), http.StatusServiceUnavailable)
}

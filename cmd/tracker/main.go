/*
 * This file is part of Chihaya.
 *
 * Chihaya is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * Chihaya is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with Chihaya.  If not, see <http://www.gnu.org/licenses/>.
 */

package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"runtime"
	"runtime/pprof"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/valyala/fasthttp"

	"tracker/admin"
	"tracker/announce"
	"tracker/bootstrap"
	"tracker/config"
	"tracker/failure"
	"tracker/log"
	"tracker/metrics"
	"tracker/security"
	"tracker/util"
)

var responsePool = util.NewBufferPool(500)

var (
	configPath string
	profile    bool
	help       bool
)

// provided at compile-time
var (
	BuildDate    = "0000-00-00T00:00:00+0000"
	BuildVersion = "development"
)

func init() {
	flag.StringVar(&configPath, "c", "config.json", "Path to the configuration file")
	flag.BoolVar(&profile, "P", false, "Generate profiling data for pprof into tracker.cpu")
	flag.BoolVar(&help, "h", false, "Shows this help dialog")
}

func main() {
	fmt.Printf("tracker, ver=%s date=%s runtime=%s\n\n", BuildVersion, BuildDate, runtime.Version())

	flag.Parse()

	if help {
		fmt.Printf("Usage of %s:\n", os.Args[0])
		flag.PrintDefaults()
		return
	}

	runtime.GOMAXPROCS(runtime.NumCPU())

	if profile {
		log.Info.Printf("Running with profiling enabled, found %d CPUs", runtime.NumCPU())
		f, err := os.Create("tracker.cpu")
		if err != nil {
			log.Fatal.Fatalf("Failed to create profile file: %s\n", err)
		}
		if err := pprof.StartCPUProfile(f); err != nil {
			log.Fatal.Fatalf("Can not start profiling session: %s\n", err)
		}
		defer pprof.StopCPUProfile()
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatal.Fatalf("Failed to load config: %s\n", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	state, err := bootstrap.Start(ctx, "tracker.wal", cfg.Sync.DataEndpoint, cfg.Sync.APIKey)
	cancel()
	if err != nil {
		log.Fatal.Fatalf("Failed to bootstrap: %s\n", err)
	}

	ipBans := security.NewIPBlacklist()
	for _, ip := range cfg.Security.BannedIPs {
		if parsed := net.ParseIP(ip); parsed != nil {
			ipBans.Ban(parsed)
		}
	}
	clientBans := security.NewClientBlacklist()
	for _, substr := range cfg.Security.BannedClients {
		clientBans.Ban(substr)
	}
	limiter := security.NewRateLimiter(uint32(cfg.Performance.MaxRequestsPerMinute))

	collector := metrics.New(metrics.Gauges{
		Swarms:   state.Registry.SwarmCount,
		Torrents: state.Torrents.Len,
		Users:    state.Users.Len,
	})
	prometheus.MustRegister(collector)

	orchestrator := announce.New(state.Torrents, state.Users, state.Registry, ipBans, clientBans, limiter,
		announce.Config{
			AnnounceInterval:    30 * time.Minute,
			MinAnnounceInterval: cfg.Performance.MinAnnounceInterval,
			MaxIPsPerUser:       cfg.AntiCheat.MaxIPsPerUser,
			MaxRatio:            cfg.AntiCheat.MaxRatio,
			MaxUploadSpeed:      cfg.AntiCheat.MaxUploadSpeed,
			MaxDownloadSpeed:    cfg.AntiCheat.MaxDownloadSpeed,
			MinSeederUpload:     cfg.AntiCheat.MinSeederUpload,
		}, collector)

	adminHandlers := &admin.Handlers{
		State:     state,
		IPBans:    ipBans,
		ClientBan: clientBans,
		APIKey:    cfg.Sync.APIKey,
	}

	reaperCtx, stopReaper := context.WithCancel(context.Background())
	go util.ContextTick(reaperCtx, cfg.Performance.CleanupInterval, func() {
		if n := state.Reap(cfg.Performance.PeerTimeout); n > 0 {
			log.Info.Printf("reaper: evicted %d stale peers", n)
		}
	})

	server := &fasthttp.Server{
		Handler: buildRouter(orchestrator, adminHandlers),
	}

	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		<-c

		log.Info.Println("Caught interrupt, shutting down...")
		stopReaper()
		_ = server.Shutdown()
		_ = state.Log.Close()
		<-c
		os.Exit(0)
	}()

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	log.Info.Printf("Ready and accepting new connections on %s", addr)
	if err := server.ListenAndServe(addr); err != nil {
		log.Fatal.Fatalf("Server stopped: %s\n", err)
	}
}

func buildRouter(o *announce.Orchestrator, h *admin.Handlers) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		switch string(ctx.Path()) {
		case "/announce":
			handleAnnounce(o, ctx)
		case "/torrent/add":
			h.TorrentAdd(ctx)
		case "/torrent/remove":
			h.TorrentRemove(ctx)
		case "/user/add":
			h.UserAdd(ctx)
		case "/user/remove":
			h.UserRemove(ctx)
		case "/reload":
			h.Reload(ctx)
		case "/ip/ban":
			h.IPBan(ctx)
		case "/ip/unban":
			h.IPUnban(ctx)
		case "/ip/list":
			h.IPList(ctx)
		case "/client/ban":
			h.ClientBan(ctx)
		case "/client/unban":
			h.ClientUnban(ctx)
		case "/client/list":
			h.ClientList(ctx)
		case "/metrics":
			handleMetrics(ctx)
		case "/health":
			handleHealth(ctx)
		default:
			admin.Fallback(ctx)
		}
	}
}

func handleAnnounce(o *announce.Orchestrator, ctx *fasthttp.RequestCtx) {
	req := announce.Request{
		RawQuery:            string(ctx.QueryArgs().QueryString()),
		UserAgent:           string(ctx.UserAgent()),
		HasWantDigestHeader: len(ctx.Request.Header.Peek("Want-Digest")) > 0,
		SocketIP:            ctx.RemoteIP(),
		Now:                 time.Now(),
	}

	buf := responsePool.Take()
	defer responsePool.Give(buf)

	err := o.Announce(req, buf)

	ctx.SetContentType("text/plain")
	if err != nil && err.Kind == failure.BrowserAccess {
		_, _ = ctx.WriteString("Nothing to see here")
		return
	}
	_, _ = ctx.Write(buf.Bytes())
}

func handleMetrics(ctx *fasthttp.RequestCtx) {
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		return
	}

	ctx.SetContentType(string(expfmt.FmtText))
	enc := expfmt.NewEncoder(ctx, expfmt.FmtText)
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			log.Warning.Printf("metrics: encode failed: %s", err)
			return
		}
	}
}

func handleHealth(ctx *fasthttp.RequestCtx) {
	ctx.SetContentType("application/json")
	fmt.Fprintf(ctx, `{"now":%d,"uptime":%d}`, time.Now().UnixMilli(), time.Since(startTime).Milliseconds())
}

var startTime = time.Now()

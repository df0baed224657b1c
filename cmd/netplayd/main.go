// Command netplayd is a minimal demo host: it drives a Session against a
// stub core purely to exercise the transport and synchronization engine,
// the way a real frontend would drive it against an actual emulator.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maxpoletaev/netplay/internal/netlog"
	"github.com/maxpoletaev/netplay/internal/netmetrics"
	"github.com/maxpoletaev/netplay/netplay"

	"github.com/prometheus/client_golang/prometheus"
)

const framesPerSecond = 60

func main() {
	var (
		configPath = flag.String("config", "", "path to netplayd.toml")
		server     = flag.Bool("server", false, "run as the netplay host")
		connect    = flag.String("connect", "", "server address to dial (client mode)")
		listen     = flag.String("listen", "", "address to listen on (server mode, overrides config)")
		nick       = flag.String("nick", "", "local nickname")
	)
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *server {
		cfg.Net.Server = true
	}
	if *listen != "" {
		cfg.Net.ListenAddr = *listen
	}
	if *connect != "" {
		cfg.Net.ServerAddr = *connect
	}
	if *nick != "" {
		cfg.Net.Nick = *nick
	}

	log := netlog.New(netlog.Config{
		Path:    cfg.Log.Path,
		Level:   cfg.Log.Level,
		Console: cfg.Log.Console,
	})
	defer log.Sync()

	metrics := netmetrics.New(prometheus.NewRegistry())

	sess, err := netplay.New(netplay.Options{
		Server:      cfg.Net.Server,
		Nick:        cfg.Net.Nick,
		Password:    cfg.Net.Password,
		DelayFrames: cfg.Net.DelayFrames,
		CheckFrames: cfg.Net.CheckFrames,
		Core:        &nullCore{},
		Logger:      log,
		Metrics:     metrics,
	})
	if err != nil {
		log.Errorf("netplayd: %v", err)
		os.Exit(1)
	}

	if cfg.Net.Server {
		if err := sess.Listen(cfg.Net.ListenAddr); err != nil {
			log.Errorf("netplayd: listen: %v", err)
			os.Exit(1)
		}
		log.Infof("netplayd: listening on %s", cfg.Net.ListenAddr)
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := sess.DialWithRetry(ctx, cfg.Net.ServerAddr, 10); err != nil {
			log.Errorf("netplayd: %v", err)
			os.Exit(1)
		}
		log.Infof("netplayd: connected to %s", cfg.Net.ServerAddr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runLoop(ctx, sess, log)

	if err := sess.Disconnect(); err != nil {
		log.Warnf("netplayd: disconnect: %v", err)
	}
}

func runLoop(ctx context.Context, sess *netplay.Session, log netplay.Logger) {
	ticker := time.NewTicker(time.Second / framesPerSecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := sess.PreFrame(netplay.Input{}); err != nil {
				log.Errorf("netplayd: pre_frame: %v", err)
				return
			}
			if err := sess.PostFrame(); err != nil {
				log.Errorf("netplayd: post_frame: %v", err)
				return
			}
		}
	}
}

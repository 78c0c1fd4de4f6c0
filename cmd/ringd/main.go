// Command ringd runs the discovery broker: a long-lived process that
// rendezvous ring producers and consumers by service key until it
// receives SIGINT or SIGTERM.
package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/localipc/shmring/discovery"
	"github.com/localipc/shmring/internal/config"
	"github.com/localipc/shmring/internal/obslog"
)

func main() {
	socketPath := flag.String("socket", "", "broker socket path (default from config)")
	flag.Parse()

	cfg := config.Load()
	log := obslog.New(cfg.LogLevel)
	defer log.Sync()

	path := *socketPath
	if path == "" {
		path = cfg.BrokerSocket
	}

	broker, err := discovery.NewBroker(path, log)
	if err != nil {
		log.Sugar().Fatalw("failed to start broker", "socket", path, "error", err)
	}
	defer broker.Close()

	log.Sugar().Infow("broker listening", "socket", path)

	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			log.Sugar().Warnw("metrics server exited", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Sugar().Infow("received signal, shutting down", "signal", sig)
		cancel()
	}()

	if err := broker.Serve(ctx); err != nil {
		log.Sugar().Errorw("broker stopped", "error", err)
		os.Exit(1)
	}
}

// The proxy is the pub/sub fabric: servers publish into its XSUB side,
// clients and peer servers subscribe on its XPUB side. One instance per
// deployment.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/gustavo250103/proj-sistm-distribuidos/internal/config"
	"github.com/gustavo250103/proj-sistm-distribuidos/internal/logging"
	"github.com/gustavo250103/proj-sistm-distribuidos/internal/metrics"
	"github.com/gustavo250103/proj-sistm-distribuidos/internal/proxy"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.ProxyFromEnv()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Debug)
	if err != nil {
		return err
	}
	defer log.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() { <-sigc; cancel() }()

	met := metrics.New("proxy")
	go func() {
		if err := met.Serve(ctx, cfg.MetricsAddr, log); err != nil {
			log.Warn("metrics endpoint failed", zap.Error(err))
		}
	}()

	return proxy.New(cfg, log).Run(ctx)
}

// The reference service assigns server ranks, tracks heartbeats and
// answers clock probes. One instance per deployment; its server map lives
// in ref_servers.json under the persist directory.
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
	"github.com/gustavo250103/proj-sistm-distribuidos/internal/ref"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.RefFromEnv()
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

	met := metrics.New("ref")
	go func() {
		if err := met.Serve(ctx, cfg.MetricsAddr, log); err != nil {
			log.Warn("metrics endpoint failed", zap.Error(err))
		}
	}()

	svc, err := ref.New(cfg, log, met)
	if err != nil {
		return err
	}
	return svc.Run(ctx)
}

// The application server handles client commands, persists the write
// logs, replicates to its peers through the proxy and participates in
// coordinator election. Run as many instances as desired, each with a
// unique SERVER_NAME and its own PERSIST_DIR.
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
	"github.com/gustavo250103/proj-sistm-distribuidos/internal/server"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.ServerFromEnv()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Debug)
	if err != nil {
		return err
	}
	defer log.Sync()
	log = log.With(zap.String("server", cfg.Name))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() { <-sigc; cancel() }()

	met := metrics.New("server")
	go func() {
		if err := met.Serve(ctx, cfg.MetricsAddr, log); err != nil {
			log.Warn("metrics endpoint failed", zap.Error(err))
		}
	}()

	svc, err := server.New(cfg, log, met)
	if err != nil {
		return err
	}
	defer svc.Close()

	return svc.Run(ctx)
}

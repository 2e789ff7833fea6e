// The bot drives synthetic traffic through the real client wire contract:
// it logs in, subscribes to its channel and its own username, then
// publishes on a fixed cadence with the occasional direct message to
// itself. Useful for smoke-testing a deployment end to end.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gustavo250103/proj-sistm-distribuidos/internal/client"
	"github.com/gustavo250103/proj-sistm-distribuidos/internal/config"
	"github.com/gustavo250103/proj-sistm-distribuidos/internal/logging"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.BotFromEnv()
	if err != nil {
		return err
	}
	log, err := logging.New(cfg.Debug)
	if err != nil {
		return err
	}
	defer log.Sync()
	log = log.With(zap.String("bot", cfg.Name))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigc := make(chan os.Signal, 1)
	signal.Notify(sigc, os.Interrupt, syscall.SIGTERM)
	go func() { <-sigc; cancel() }()

	cli := client.New(ctx, cfg.Broker, cfg.Name, log)
	defer cli.Close()

	channels, err := cli.Login()
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}
	log.Info("logged in", zap.Strings("channels", channels))

	sub, err := client.Subscribe(ctx, cfg.ProxyXPub, cfg.Channel, cfg.Name)
	if err != nil {
		return err
	}
	defer sub.Close()

	// Print whatever comes back on the subscribed topics.
	go func() {
		for {
			topic, rec, err := sub.Recv()
			if err != nil {
				if ctx.Err() == nil {
					log.Warn("subscription lost", zap.Error(err))
				}
				return
			}
			log.Info("received",
				zap.String("topic", topic),
				zap.String("type", rec.Type),
				zap.String("origin", rec.Origin),
				zap.String("message", rec.Message))
		}
	}()

	ticker := time.NewTicker(cfg.Interval())
	defer ticker.Stop()

	n := 0
	for {
		select {
		case <-ctx.Done():
			log.Info("bot shutting down")
			return nil
		case <-ticker.C:
			n++
			body := fmt.Sprintf("mensagem automática %d (%s)", n, uuid.NewString()[:8])
			if err := cli.Publish(cfg.Channel, body); err != nil {
				log.Warn("publish failed", zap.Error(err))
				continue
			}
			// Every fifth round, exercise the direct-message path too.
			if n%5 == 0 {
				if err := cli.Message(cfg.Name, "dm de teste"); err != nil {
					log.Warn("direct message failed", zap.Error(err))
				}
			}
		}
	}
}

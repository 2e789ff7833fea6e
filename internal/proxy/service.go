// Package proxy implements the topic pub/sub switch of the federation.
//
// Servers connect PUB sockets to the XSUB side and publish two-part frames
// [topic, payload]; clients and peer servers connect SUB sockets to the
// XPUB side. Publications flow downstream to every subscriber whose
// subscription prefix matches the topic; subscribe/unsubscribe control
// frames flow upstream so publishers could implement last-value caching
// (none do today).
//
// Two topics are reserved for the servers themselves: "replica" carries
// write replication between peers and "servers" carries coordinator
// announcements. The application servers refuse to create user channels
// with either name.
package proxy

import (
	"context"
	"fmt"

	"github.com/go-zeromq/zmq4"
	"go.uber.org/zap"

	"github.com/gustavo250103/proj-sistm-distribuidos/internal/config"
)

// Service is the XSUB/XPUB forwarder.
type Service struct {
	cfg config.Proxy
	log *zap.Logger
}

// New builds the proxy service.
func New(cfg config.Proxy, log *zap.Logger) *Service {
	return &Service{cfg: cfg, log: log}
}

// Run binds both sides and forwards until the context is cancelled or a
// socket fails.
func (s *Service) Run(ctx context.Context) error {
	xsub := zmq4.NewXSub(ctx)
	defer xsub.Close()
	xpub := zmq4.NewXPub(ctx)
	defer xpub.Close()

	if err := xsub.Listen(s.cfg.XSub); err != nil {
		return fmt.Errorf("XSUB bind %s: %w", s.cfg.XSub, err)
	}
	if err := xpub.Listen(s.cfg.XPub); err != nil {
		return fmt.Errorf("XPUB bind %s: %w", s.cfg.XPub, err)
	}
	s.log.Info("proxy up",
		zap.String("xsub", s.cfg.XSub),
		zap.String("xpub", s.cfg.XPub))

	errc := make(chan error, 2)

	// Publications: publishers -> subscribers.
	go func() {
		for {
			msg, err := xsub.Recv()
			if err != nil {
				errc <- fmt.Errorf("publication pump recv: %w", err)
				return
			}
			if err := xpub.Send(msg); err != nil {
				errc <- fmt.Errorf("publication pump send: %w", err)
				return
			}
		}
	}()

	// Subscriptions: subscriber control frames -> publishers.
	go func() {
		for {
			msg, err := xpub.Recv()
			if err != nil {
				errc <- fmt.Errorf("subscription pump recv: %w", err)
				return
			}
			if err := xsub.Send(msg); err != nil {
				errc <- fmt.Errorf("subscription pump send: %w", err)
				return
			}
		}
	}()

	select {
	case <-ctx.Done():
		s.log.Info("proxy shutting down")
		return nil
	case err := <-errc:
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
}

// Package broker implements the request/reply router between clients and
// application servers.
//
// The broker is intentionally dumb: a ROUTER socket faces the clients, a
// DEALER socket faces the servers, and two pump goroutines copy whole
// multipart messages between them. The ROUTER prepends each inbound
// message with the client's connection identity; that envelope travels to
// a server and back untouched, which is what routes the reply to the right
// client. The DEALER side load-balances requests round-robin over whatever
// servers are currently attached.
//
// The broker never looks inside payloads, never retries and never times
// out. If no server is attached, requests queue at the DEALER up to the
// transport's high-water mark. A server crashing mid-request silently
// drops that request; recovering is the client's problem.
package broker

import (
	"context"
	"fmt"

	"github.com/go-zeromq/zmq4"
	"go.uber.org/zap"

	"github.com/gustavo250103/proj-sistm-distribuidos/internal/config"
)

// Service is the identity-preserving request router.
type Service struct {
	cfg config.Broker
	log *zap.Logger
}

// New builds the broker service.
func New(cfg config.Broker, log *zap.Logger) *Service {
	return &Service{cfg: cfg, log: log}
}

// Run binds both endpoints and pumps traffic until the context is
// cancelled or a socket fails.
func (s *Service) Run(ctx context.Context) error {
	router := zmq4.NewRouter(ctx)
	defer router.Close()
	dealer := zmq4.NewDealer(ctx)
	defer dealer.Close()

	if err := router.Listen(s.cfg.Front); err != nil {
		return fmt.Errorf("ROUTER bind %s: %w", s.cfg.Front, err)
	}
	if err := dealer.Listen(s.cfg.Back); err != nil {
		return fmt.Errorf("DEALER bind %s: %w", s.cfg.Back, err)
	}
	s.log.Info("broker up",
		zap.String("front", s.cfg.Front),
		zap.String("back", s.cfg.Back))

	errc := make(chan error, 2)
	go pump("front->back", router, dealer, errc)
	go pump("back->front", dealer, router, errc)

	select {
	case <-ctx.Done():
		s.log.Info("broker shutting down")
		return nil
	case err := <-errc:
		if ctx.Err() != nil {
			return nil
		}
		return err
	}
}

// pump copies messages from src to dst until one side fails. Identity
// frames are part of the message and are forwarded verbatim.
func pump(direction string, src, dst zmq4.Socket, errc chan<- error) {
	for {
		msg, err := src.Recv()
		if err != nil {
			errc <- fmt.Errorf("%s recv: %w", direction, err)
			return
		}
		if err := dst.Send(msg); err != nil {
			errc <- fmt.Errorf("%s send: %w", direction, err)
			return
		}
	}
}

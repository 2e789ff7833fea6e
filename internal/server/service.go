// Package server implements the stateful application server of the chat
// federation.
//
// Each instance connects four sockets: a REP dialed into the broker's
// DEALER side (client commands arrive here, load-balanced across peers), a
// PUB dialed into the proxy's XSUB side (channel broadcasts, direct
// messages, replica frames and election announcements all leave here), a
// SUB dialed into the proxy's XPUB side (the replica listener ingests peer
// writes and coordinator announcements), and a REQ to the reference
// service (rank, server list, heartbeats and clock probes).
//
// Concurrency model: two units of execution share state. The main loop
// owns the REP socket, the PUB socket and the reference REQ socket; the
// replica listener owns only its SUB socket. Both bump the Lamport clock
// and both append to the journals, which carry their own locks. Cached
// election state is guarded by the service mutex.
package server

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
	"go.uber.org/zap"

	"github.com/gustavo250103/proj-sistm-distribuidos/internal/config"
	"github.com/gustavo250103/proj-sistm-distribuidos/internal/lamport"
	"github.com/gustavo250103/proj-sistm-distribuidos/internal/metrics"
	"github.com/gustavo250103/proj-sistm-distribuidos/internal/store"
	"github.com/gustavo250103/proj-sistm-distribuidos/internal/wire"
)

// Persistence file names inside the persist directory.
const (
	PublicationsFile = "publications.jsonl"
	MessagesFile     = "messages.jsonl"
	RegistryFile     = "registry.json"
)

// publisher abstracts the PUB socket so handlers can be exercised without
// a proxy behind them.
type publisher interface {
	publish(topic string, payload []byte) error
}

type zmqPublisher struct {
	sock zmq4.Socket
}

func (p *zmqPublisher) publish(topic string, payload []byte) error {
	return p.sock.Send(zmq4.NewMsgFrom([]byte(topic), payload))
}

// Service is one application server instance.
type Service struct {
	cfg config.Server
	log *zap.Logger
	met *metrics.Metrics

	clock      *lamport.Clock
	reg        *store.Registry
	pubJournal *store.Journal
	msgJournal *store.Journal

	pub publisher  // set by Run, replaced by tests
	ref *refClient // driven only by the main loop

	mu          sync.Mutex
	rank        int
	servers     map[string]wire.ServerInfo
	coordinator string // last adopted coordinator; empty until first election
	msgCount    int    // OK-acknowledged publish/message requests
	lastSync    int    // msgCount value of the last sync, so each multiple fires once
	lastBeat    time.Time
}

// New loads persistent state and builds the service. Sockets are not
// touched until Run.
func New(cfg config.Server, log *zap.Logger, met *metrics.Metrics) (*Service, error) {
	if err := os.MkdirAll(cfg.PersistDir, 0o755); err != nil {
		return nil, fmt.Errorf("create persist dir: %w", err)
	}

	reg, err := store.OpenRegistry(filepath.Join(cfg.PersistDir, RegistryFile))
	if err != nil {
		return nil, err
	}
	pubJournal, err := store.OpenJournal(filepath.Join(cfg.PersistDir, PublicationsFile))
	if err != nil {
		return nil, err
	}
	msgJournal, err := store.OpenJournal(filepath.Join(cfg.PersistDir, MessagesFile))
	if err != nil {
		pubJournal.Close()
		return nil, err
	}

	return &Service{
		cfg:        cfg,
		log:        log,
		met:        met,
		clock:      &lamport.Clock{},
		reg:        reg,
		pubJournal: pubJournal,
		msgJournal: msgJournal,
	}, nil
}

// Close releases the journals.
func (s *Service) Close() error {
	err := s.pubJournal.Close()
	if err2 := s.msgJournal.Close(); err == nil {
		err = err2
	}
	return err
}

// Run connects the sockets, registers with the reference service, starts
// the replica listener and serves requests until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	pubSock := zmq4.NewPub(ctx, zmq4.WithDialerRetry(time.Second), zmq4.WithAutomaticReconnect(true))
	defer pubSock.Close()
	if err := pubSock.Dial(s.cfg.ProxyXSub); err != nil {
		return fmt.Errorf("PUB dial %s: %w", s.cfg.ProxyXSub, err)
	}
	s.pub = &zmqPublisher{sock: pubSock}

	rep := zmq4.NewRep(ctx, zmq4.WithDialerRetry(time.Second), zmq4.WithAutomaticReconnect(true))
	defer rep.Close()
	if err := rep.Dial(s.cfg.Broker); err != nil {
		return fmt.Errorf("REP dial %s: %w", s.cfg.Broker, err)
	}

	s.ref = newRefClient(ctx, s.cfg.RefAddr, s.clock, s.log)
	defer s.ref.reset()

	if err := s.registerWithRef(ctx); err != nil {
		return err
	}

	go s.replicaListener(ctx)

	s.log.Info("server up",
		zap.String("name", s.cfg.Name),
		zap.Int("rank", s.rank),
		zap.String("broker", s.cfg.Broker))

	// The REP socket needs strict recv/send alternation, so a pump
	// goroutine hands each request to this loop and waits for the reply to
	// go out before receiving again. The loop keeps sole ownership of the
	// reference REQ socket and still heartbeats while idle.
	reqc := make(chan zmq4.Msg)
	handled := make(chan struct{})
	recvErr := make(chan error, 1)
	go func() {
		for {
			msg, err := rep.Recv()
			if err != nil {
				recvErr <- err
				return
			}
			select {
			case reqc <- msg:
			case <-ctx.Done():
				return
			}
			select {
			case <-handled:
			case <-ctx.Done():
				return
			}
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("server shutting down")
			return nil
		case err := <-recvErr:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("REP recv: %w", err)
		case msg := <-reqc:
			s.serveOne(rep, msg)
			handled <- struct{}{}
			s.afterRequest()
		case <-ticker.C:
			s.maybeHeartbeat()
		}
	}
}

// serveOne decodes, dispatches and replies to a single request. Frames
// that do not decode are dropped without a reply; the client's timeout is
// the recovery path.
func (s *Service) serveOne(rep zmq4.Socket, msg zmq4.Msg) {
	req, err := wire.DecodeFrame(msg.Bytes())
	if err != nil {
		s.log.Debug("dropping undecodable request", zap.Error(err))
		return
	}

	reply := s.Handle(req)
	raw, err := wire.EncodeFrame(reply)
	if err != nil {
		s.log.Error("encode reply failed", zap.String("service", req.Service), zap.Error(err))
		return
	}
	if err := rep.Send(zmq4.NewMsg(raw)); err != nil {
		s.log.Error("REP send failed", zap.String("service", req.Service), zap.Error(err))
	}
}

// afterRequest runs the periodic duties owed after each handled request:
// the clock-sync/re-election cycle every SyncEvery acknowledged writes,
// and the heartbeat.
func (s *Service) afterRequest() {
	s.mu.Lock()
	count := s.msgCount
	due := count > 0 && s.cfg.SyncEvery > 0 && count%s.cfg.SyncEvery == 0 && count != s.lastSync
	if due {
		s.lastSync = count
	}
	s.mu.Unlock()

	if due {
		s.syncWithRef()
	}
	s.maybeHeartbeat()
}

// maybeHeartbeat sends a heartbeat when the interval elapsed. The attempt
// timestamp advances even on failure so an unreachable registry is retried
// once per interval instead of on every request.
func (s *Service) maybeHeartbeat() {
	s.mu.Lock()
	due := time.Since(s.lastBeat) >= s.cfg.HeartbeatInterval()
	if due {
		s.lastBeat = time.Now()
	}
	s.mu.Unlock()
	if !due {
		return
	}

	if _, err := s.ref.request("heartbeat", wire.Data{User: s.cfg.Name}); err != nil {
		s.log.Warn("heartbeat failed", zap.Error(err))
		return
	}
	s.met.Heartbeats.Inc()
}

// registerWithRef obtains this server's rank and the current server map.
// The reference service is required for startup; attempts repeat until it
// answers or the context is cancelled. No coordinator is adopted here;
// announcements only ever follow a re-election.
func (s *Service) registerWithRef(ctx context.Context) error {
	for {
		reply, err := s.ref.request("rank", wire.Data{User: s.cfg.Name})
		if err == nil {
			s.mu.Lock()
			s.rank = reply.Data.Rank
			s.mu.Unlock()
			break
		}
		s.log.Warn("rank registration failed, retrying", zap.Error(err))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}

	reply, err := s.ref.request("list", wire.Data{})
	if err != nil {
		s.log.Warn("server list unavailable at startup", zap.Error(err))
		return nil
	}

	s.mu.Lock()
	s.servers = reply.Data.List
	s.mu.Unlock()

	if name, ok := lowestRank(reply.Data.List); ok {
		s.log.Info("current coordinator view", zap.String("coordinator", name))
	}
	return nil
}

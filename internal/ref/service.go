package ref

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-zeromq/zmq4"
	"go.uber.org/zap"

	"github.com/gustavo250103/proj-sistm-distribuidos/internal/config"
	"github.com/gustavo250103/proj-sistm-distribuidos/internal/lamport"
	"github.com/gustavo250103/proj-sistm-distribuidos/internal/metrics"
	"github.com/gustavo250103/proj-sistm-distribuidos/internal/wire"
)

// Service is the reference service's REP responder.
type Service struct {
	cfg   config.Ref
	log   *zap.Logger
	met   *metrics.Metrics
	clock *lamport.Clock
	store *Store
}

// New opens the persisted server map and builds the service.
func New(cfg config.Ref, log *zap.Logger, met *metrics.Metrics) (*Service, error) {
	if err := os.MkdirAll(cfg.PersistDir, 0o755); err != nil {
		return nil, fmt.Errorf("create persist dir: %w", err)
	}

	store, torn, err := OpenStore(filepath.Join(cfg.PersistDir, ServersFile))
	if err != nil {
		return nil, err
	}
	if torn {
		log.Warn("server map was unreadable, starting empty; servers will re-register")
	}

	return &Service{
		cfg:   cfg,
		log:   log,
		met:   met,
		clock: &lamport.Clock{},
		store: store,
	}, nil
}

// Run binds the REP socket and serves until the context is cancelled.
func (s *Service) Run(ctx context.Context) error {
	rep := zmq4.NewRep(ctx)
	defer rep.Close()

	if err := rep.Listen(s.cfg.Bind); err != nil {
		return fmt.Errorf("REP bind %s: %w", s.cfg.Bind, err)
	}
	s.log.Info("reference service up", zap.String("bind", s.cfg.Bind))

	for {
		msg, err := rep.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("REP recv: %w", err)
		}

		req, err := wire.DecodeFrame(msg.Bytes())
		if err != nil {
			// The REP state machine owes a reply either way; answer with a
			// generic error so the socket stays usable.
			s.log.Warn("dropping undecodable request", zap.Error(err))
			reply, _ := wire.EncodeFrame(s.errorReply("", wire.MsgUnknownService))
			if err := rep.Send(zmq4.NewMsg(reply)); err != nil {
				return fmt.Errorf("REP send: %w", err)
			}
			continue
		}

		raw, err := wire.EncodeFrame(s.Handle(req))
		if err != nil {
			return fmt.Errorf("encode reply: %w", err)
		}
		if err := rep.Send(zmq4.NewMsg(raw)); err != nil {
			return fmt.Errorf("REP send: %w", err)
		}
	}
}

// Handle dispatches one request and produces its reply. Exported for tests;
// it touches no sockets.
func (s *Service) Handle(req wire.Frame) wire.Frame {
	s.clock.Observe(req.Data.Clock)

	var reply wire.Frame
	switch req.Service {
	case "rank":
		reply = s.handleRank(req)
	case "list":
		reply = s.handleList(req)
	case "heartbeat":
		reply = s.handleHeartbeat(req)
	case "clock":
		reply = s.handleClock(req)
	default:
		reply = s.errorReply(req.Service, wire.MsgUnknownService)
	}

	status := reply.Data.Status
	if status == "" {
		status = wire.StatusOK
	}
	s.met.Requests.WithLabelValues(req.Service, status).Inc()
	s.met.LogicalClock.Set(float64(s.clock.Now()))
	return reply
}

func (s *Service) handleRank(req wire.Frame) wire.Frame {
	name := req.Data.User
	rank, err := s.store.Rank(name)
	if err != nil {
		// Rank assignment survives a failed persist; the next mutation
		// rewrites the full map anyway.
		s.log.Error("persist failed after rank assignment", zap.String("server", name), zap.Error(err))
	}
	if name != "" {
		s.log.Info("rank served", zap.String("server", name), zap.Int("rank", rank))
	}
	return wire.Frame{Service: "rank", Data: wire.Data{
		Rank:      rank,
		Timestamp: wire.Timestamp(),
		Clock:     s.clock.Next(),
	}}
}

func (s *Service) handleList(req wire.Frame) wire.Frame {
	return wire.Frame{Service: "list", Data: wire.Data{
		List:      s.store.Snapshot(),
		Timestamp: wire.Timestamp(),
		Clock:     s.clock.Next(),
	}}
}

func (s *Service) handleHeartbeat(req wire.Frame) wire.Frame {
	known, err := s.store.Heartbeat(req.Data.User)
	if err != nil {
		s.log.Error("persist failed after heartbeat", zap.String("server", req.Data.User), zap.Error(err))
	}
	if !known && req.Data.User != "" {
		s.log.Debug("heartbeat from unregistered server ignored", zap.String("server", req.Data.User))
	}
	return wire.Frame{Service: "heartbeat", Data: wire.Data{
		Timestamp: wire.Timestamp(),
		Clock:     s.clock.Next(),
	}}
}

func (s *Service) handleClock(req wire.Frame) wire.Frame {
	now := wire.Timestamp()
	return wire.Frame{Service: "clock", Data: wire.Data{
		Time:      now,
		Timestamp: now,
		Clock:     s.clock.Next(),
	}}
}

func (s *Service) errorReply(service, msg string) wire.Frame {
	return wire.Frame{Service: service, Data: wire.Data{
		Status:    wire.StatusError,
		Message:   msg,
		Timestamp: wire.Timestamp(),
		Clock:     s.clock.Next(),
	}}
}

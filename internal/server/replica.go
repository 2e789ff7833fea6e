package server

import (
	"context"
	"time"

	"github.com/go-zeromq/zmq4"
	"go.uber.org/zap"

	"github.com/gustavo250103/proj-sistm-distribuidos/internal/wire"
)

// replicaListener ingests peer traffic from the proxy: write replication
// on the replica topic and coordinator announcements on the servers topic.
// It runs concurrently with the request loop and owns its SUB socket
// exclusively.
func (s *Service) replicaListener(ctx context.Context) {
	sub := zmq4.NewSub(ctx, zmq4.WithDialerRetry(time.Second), zmq4.WithAutomaticReconnect(true))
	defer sub.Close()

	if err := sub.Dial(s.cfg.ProxyXPub); err != nil {
		s.log.Error("SUB dial failed, replication disabled", zap.String("xpub", s.cfg.ProxyXPub), zap.Error(err))
		return
	}
	if err := sub.SetOption(zmq4.OptionSubscribe, wire.TopicReplica); err != nil {
		s.log.Error("subscribe replica failed", zap.Error(err))
		return
	}
	if err := sub.SetOption(zmq4.OptionSubscribe, wire.TopicServers); err != nil {
		s.log.Error("subscribe servers failed", zap.Error(err))
		return
	}

	s.log.Info("replica listener up", zap.String("xpub", s.cfg.ProxyXPub))

	for {
		msg, err := sub.Recv()
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			s.log.Error("replica recv failed", zap.Error(err))
			return
		}
		if len(msg.Frames) < 2 {
			continue
		}

		topic := string(msg.Frames[0])
		payload := msg.Frames[1]

		switch topic {
		case wire.TopicReplica:
			rec, err := wire.DecodeRecord(payload)
			if err != nil {
				continue
			}
			s.applyReplica(rec)
		case wire.TopicServers:
			ann, err := wire.DecodeAnnouncement(payload)
			if err != nil {
				continue
			}
			s.applyAnnouncement(ann)
		}
	}
}

// applyReplica ingests one record from a peer. The self-origin check runs
// before any side effect: this server's own frames come back through the
// proxy and must not be double-logged or re-replicated. Peer records are
// appended as log data only; they never touch the channel/user registry.
func (s *Service) applyReplica(rec wire.Record) {
	if rec.Origin == s.cfg.Name {
		s.met.ReplicasSkipped.Inc()
		return
	}

	s.clock.Observe(rec.Clock)

	switch rec.Type {
	case wire.RecordPublish:
		if err := s.pubJournal.Append(rec); err != nil {
			s.log.Error("replica append failed", zap.String("origin", rec.Origin), zap.Error(err))
			return
		}
	case wire.RecordMessage:
		if err := s.msgJournal.Append(rec); err != nil {
			s.log.Error("replica append failed", zap.String("origin", rec.Origin), zap.Error(err))
			return
		}
	default:
		return
	}

	s.met.ReplicasApplied.Inc()
	s.log.Debug("replicated record",
		zap.String("origin", rec.Origin),
		zap.String("type", rec.Type),
		zap.Uint64("clock", rec.Clock))
}

// applyAnnouncement adopts a coordinator announced by a peer. Adoption is
// advisory; the next re-election recomputes from the registry either way.
func (s *Service) applyAnnouncement(ann wire.Announcement) {
	s.clock.Observe(ann.Clock)
	if ann.Coordinator == "" {
		return
	}

	s.mu.Lock()
	changed := ann.Coordinator != s.coordinator
	if changed {
		s.coordinator = ann.Coordinator
	}
	s.mu.Unlock()

	if changed {
		s.met.Elections.Inc()
		s.log.Info("coordinator adopted from announcement", zap.String("coordinator", ann.Coordinator))
	}
}

package server

import (
	"errors"

	"go.uber.org/zap"

	"github.com/gustavo250103/proj-sistm-distribuidos/internal/store"
	"github.com/gustavo250103/proj-sistm-distribuidos/internal/wire"
)

// Handle dispatches one client request and returns its reply. Both command
// spellings of each operation are accepted; the reply mirrors the spelling
// the client used. The inbound clock is observed before dispatch and every
// reply is stamped with a fresh clock value.
func (s *Service) Handle(req wire.Frame) wire.Frame {
	s.clock.Observe(req.Data.Clock)

	var reply wire.Frame
	switch req.Service {
	case "login", "register_user":
		reply = s.handleRegisterUser(req)
	case "users":
		reply = s.handleUsers(req)
	case "channel":
		reply = s.handleChannel(req)
	case "channels", "list_channels":
		reply = s.handleChannels(req)
	case "publish":
		reply = s.handlePublish(req)
	case "message":
		reply = s.handleMessage(req)
	case "clock":
		reply = s.handleClock(req)
	case "election":
		reply = s.handleElection(req)
	default:
		reply = s.errorReply(req, wire.MsgUnknownService)
	}

	status := reply.Data.Status
	if status == "" {
		status = wire.StatusOK
	}
	s.met.Requests.WithLabelValues(req.Service, status).Inc()
	s.met.LogicalClock.Set(float64(s.clock.Now()))
	return reply
}

func (s *Service) handleRegisterUser(req wire.Frame) wire.Frame {
	user := req.Data.User
	if user == "" {
		return s.errorReply(req, wire.MsgMissingUser)
	}
	if err := s.reg.AddUser(user); err != nil {
		// In-memory state is already updated; a failed rewrite only risks
		// losing this registration on restart.
		s.log.Error("persist user failed", zap.String("user", user), zap.Error(err))
	}
	return s.reply(req, wire.Data{Status: wire.StatusOK, Users: s.reg.Users()})
}

func (s *Service) handleUsers(req wire.Frame) wire.Frame {
	return s.reply(req, wire.Data{Status: wire.StatusOK, Users: s.reg.Users()})
}

func (s *Service) handleChannel(req wire.Frame) wire.Frame {
	switch err := s.reg.AddChannel(req.Data.Channel); {
	case errors.Is(err, store.ErrChannelExists):
		return s.errorReply(req, wire.MsgChannelExists)
	case errors.Is(err, store.ErrReservedName):
		return s.errorReply(req, wire.MsgReservedName)
	case errors.Is(err, store.ErrEmptyName):
		return s.errorReply(req, wire.MsgMissingChannel)
	case err != nil:
		s.log.Error("persist channel failed", zap.String("channel", req.Data.Channel), zap.Error(err))
	}
	return s.reply(req, wire.Data{Status: wire.StatusOK, Channels: s.reg.Channels()})
}

func (s *Service) handleChannels(req wire.Frame) wire.Frame {
	// The channel list goes out under the channels key. One legacy build
	// returned it under users; that was a bug, not a contract.
	return s.reply(req, wire.Data{Status: wire.StatusOK, Channels: s.reg.Channels()})
}

// handlePublish broadcasts to a channel. Emit order is fixed: channel
// frame, local journal append, replica frame, then the OK reply. The
// broadcast payload and the reply are distinct causal events and carry
// distinct clock values.
func (s *Service) handlePublish(req wire.Frame) wire.Frame {
	data := req.Data
	ts := data.Timestamp
	if ts == "" {
		ts = wire.Timestamp()
	}

	if !s.reg.HasChannel(data.Channel) {
		return s.errorReplyAt(req, wire.MsgUnknownChannel, ts)
	}

	rec := wire.Record{
		Type:      wire.RecordPublish,
		Origin:    s.cfg.Name,
		Channel:   data.Channel,
		User:      data.User,
		Message:   data.Message,
		Timestamp: ts,
		Clock:     s.clock.Next(),
	}
	s.emit(data.Channel, rec, s.pubJournal)
	s.met.Published.WithLabelValues(wire.RecordPublish).Inc()
	s.noteHandled()

	return s.replyAt(req, wire.Data{Status: wire.StatusOK}, ts)
}

// handleMessage delivers a direct message on the destination user's topic.
// Destination validation only kicks in once at least one user is known.
func (s *Service) handleMessage(req wire.Frame) wire.Frame {
	data := req.Data
	ts := data.Timestamp
	if ts == "" {
		ts = wire.Timestamp()
	}

	if s.reg.UserCount() > 0 && !s.reg.HasUser(data.Dst) {
		return s.errorReplyAt(req, wire.MsgUnknownUser, ts)
	}

	rec := wire.Record{
		Type:      wire.RecordMessage,
		Origin:    s.cfg.Name,
		Src:       data.Src,
		Dst:       data.Dst,
		Message:   data.Message,
		Timestamp: ts,
		Clock:     s.clock.Next(),
	}
	s.emit(data.Dst, rec, s.msgJournal)
	s.met.Published.WithLabelValues(wire.RecordMessage).Inc()
	s.noteHandled()

	return s.replyAt(req, wire.Data{Status: wire.StatusOK}, ts)
}

func (s *Service) handleClock(req wire.Frame) wire.Frame {
	now := wire.Timestamp()
	return s.replyAt(req, wire.Data{Time: now}, now)
}

func (s *Service) handleElection(req wire.Frame) wire.Frame {
	return s.reply(req, wire.Data{Election: wire.StatusOK})
}

// emit performs the publish side effects for one record: subscriber frame,
// journal line, replica frame. Failures are logged and the request is
// still acknowledged; durability is explicitly not promised here.
func (s *Service) emit(topic string, rec wire.Record, journal *store.Journal) {
	raw, err := wire.EncodeRecord(rec)
	if err != nil {
		s.log.Error("encode record failed", zap.Error(err))
		return
	}

	if err := s.pub.publish(topic, raw); err != nil {
		s.log.Error("publish to topic failed", zap.String("topic", topic), zap.Error(err))
	}
	if err := journal.Append(rec); err != nil {
		s.log.Error("journal append failed", zap.String("topic", topic), zap.Error(err))
	}
	if err := s.pub.publish(wire.TopicReplica, raw); err != nil {
		s.log.Error("replica publish failed", zap.Error(err))
	}
}

// noteHandled counts an acknowledged publish/message toward the periodic
// sync cycle.
func (s *Service) noteHandled() {
	s.mu.Lock()
	s.msgCount++
	s.mu.Unlock()
}

func (s *Service) reply(req wire.Frame, data wire.Data) wire.Frame {
	return s.replyAt(req, data, wire.Timestamp())
}

func (s *Service) replyAt(req wire.Frame, data wire.Data, ts string) wire.Frame {
	data.ID = req.Data.ID
	data.Timestamp = ts
	data.Clock = s.clock.Next()
	return wire.Frame{Service: req.Service, Data: data}
}

func (s *Service) errorReply(req wire.Frame, msg string) wire.Frame {
	return s.errorReplyAt(req, msg, wire.Timestamp())
}

func (s *Service) errorReplyAt(req wire.Frame, msg, ts string) wire.Frame {
	return s.replyAt(req, wire.Data{Status: wire.StatusError, Message: msg}, ts)
}

package client

import (
	"context"
	"fmt"
	"time"

	"github.com/go-zeromq/zmq4"

	"github.com/gustavo250103/proj-sistm-distribuidos/internal/wire"
)

// Subscriber receives channel broadcasts and direct messages from the
// proxy. Subscribing to a channel name yields that channel's broadcasts;
// subscribing to one's own username yields direct messages. Matching is
// by prefix, a property of the transport.
type Subscriber struct {
	sock zmq4.Socket
}

// Subscribe connects to the proxy XPUB endpoint and subscribes to the
// given topics.
func Subscribe(ctx context.Context, addr string, topics ...string) (*Subscriber, error) {
	sock := zmq4.NewSub(ctx, zmq4.WithDialerRetry(time.Second), zmq4.WithAutomaticReconnect(true))
	if err := sock.Dial(addr); err != nil {
		sock.Close()
		return nil, fmt.Errorf("dial proxy %s: %w", addr, err)
	}
	for _, topic := range topics {
		if err := sock.SetOption(zmq4.OptionSubscribe, topic); err != nil {
			sock.Close()
			return nil, fmt.Errorf("subscribe %q: %w", topic, err)
		}
	}
	return &Subscriber{sock: sock}, nil
}

// Recv blocks for the next record. It returns the topic the record
// arrived on together with the decoded record.
func (s *Subscriber) Recv() (string, wire.Record, error) {
	for {
		msg, err := s.sock.Recv()
		if err != nil {
			return "", wire.Record{}, err
		}
		if len(msg.Frames) < 2 {
			continue
		}
		rec, err := wire.DecodeRecord(msg.Frames[1])
		if err != nil {
			continue
		}
		return string(msg.Frames[0]), rec, nil
	}
}

// Close releases the subscription socket.
func (s *Subscriber) Close() error {
	return s.sock.Close()
}

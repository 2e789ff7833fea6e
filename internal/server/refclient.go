package server

import (
	"context"
	"fmt"
	"time"

	"github.com/go-zeromq/zmq4"
	"go.uber.org/zap"

	"github.com/gustavo250103/proj-sistm-distribuidos/internal/lamport"
	"github.com/gustavo250103/proj-sistm-distribuidos/internal/wire"
)

// refRequestTimeout bounds every reference-service exchange. A hung
// registry must degrade the coordinator view, not wedge the request loop.
const refRequestTimeout = 5 * time.Second

// refClient wraps the REQ socket to the reference service. REQ sockets are
// strict request/reply state machines: after any failure the socket state
// is unknown, so the client tears it down and redials on the next call.
//
// Not safe for concurrent use; the main request loop is its only caller.
type refClient struct {
	ctx   context.Context
	addr  string
	clock *lamport.Clock
	log   *zap.Logger
	sock  zmq4.Socket
}

func newRefClient(ctx context.Context, addr string, clock *lamport.Clock, log *zap.Logger) *refClient {
	return &refClient{ctx: ctx, addr: addr, clock: clock, log: log}
}

// request performs one exchange. The outbound frame is stamped with a
// fresh timestamp and clock; the reply's clock is observed before the
// frame is handed back.
func (c *refClient) request(service string, data wire.Data) (wire.Frame, error) {
	if c.sock == nil {
		sock := zmq4.NewReq(c.ctx, zmq4.WithTimeout(refRequestTimeout))
		if err := sock.Dial(c.addr); err != nil {
			sock.Close()
			return wire.Frame{}, fmt.Errorf("REQ dial %s: %w", c.addr, err)
		}
		c.sock = sock
	}

	if data.Timestamp == "" {
		data.Timestamp = wire.Timestamp()
	}
	data.Clock = c.clock.Next()

	raw, err := wire.EncodeFrame(wire.Frame{Service: service, Data: data})
	if err != nil {
		return wire.Frame{}, err
	}

	if err := c.sock.Send(zmq4.NewMsg(raw)); err != nil {
		c.reset()
		return wire.Frame{}, fmt.Errorf("ref %s send: %w", service, err)
	}
	msg, err := c.sock.Recv()
	if err != nil {
		c.reset()
		return wire.Frame{}, fmt.Errorf("ref %s recv: %w", service, err)
	}

	reply, err := wire.DecodeFrame(msg.Bytes())
	if err != nil {
		return wire.Frame{}, fmt.Errorf("ref %s decode: %w", service, err)
	}
	c.clock.Observe(reply.Data.Clock)
	return reply, nil
}

// reset discards the socket so the next request starts clean.
func (c *refClient) reset() {
	if c.sock != nil {
		c.sock.Close()
		c.sock = nil
	}
}

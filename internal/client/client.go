// Package client implements the client side of the wire contract: framed
// request/reply through the broker and topic subscriptions through the
// proxy.
//
// The request path deliberately avoids a bare REQ socket. A REQ that loses
// its reply (server crash mid-request, broker restart) deadlocks forever.
// Instead a DEALER socket mimics the REQ framing (empty delimiter
// plus payload), every request carries a correlation ID, and a receive
// timeout tears the socket down for a clean redial. Replies with a stale
// correlation ID (answers to requests that already timed out) are
// discarded rather than mistaken for the current reply.
//
// The login handshake is register_user followed by list_channels; after
// that the caller subscribes to whatever channels and usernames it wants
// to hear from.
package client

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-zeromq/zmq4"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/gustavo250103/proj-sistm-distribuidos/internal/lamport"
	"github.com/gustavo250103/proj-sistm-distribuidos/internal/wire"
)

// ErrServerError is returned when a reply carries status "erro". The
// server's message is preserved alongside.
var ErrServerError = errors.New("server returned erro")

// DefaultTimeout bounds one request/reply exchange.
const DefaultTimeout = 5 * time.Second

// Client is a synchronous chat client. Safe for concurrent use; requests
// are serialized over the single DEALER socket.
type Client struct {
	ctx     context.Context
	addr    string
	user    string
	timeout time.Duration
	log     *zap.Logger
	clock   *lamport.Clock

	mu   sync.Mutex
	sock zmq4.Socket
}

// New builds a client for the broker front endpoint. The context governs
// the lifetime of every socket the client creates.
func New(ctx context.Context, addr, user string, log *zap.Logger) *Client {
	return &Client{
		ctx:     ctx,
		addr:    addr,
		user:    user,
		timeout: DefaultTimeout,
		log:     log,
		clock:   &lamport.Clock{},
	}
}

// Login performs the handshake: registers the username and fetches the
// channel list.
func (c *Client) Login() ([]string, error) {
	if _, err := c.Request("register_user", wire.Data{User: c.user}); err != nil {
		return nil, err
	}
	reply, err := c.Request("list_channels", wire.Data{})
	if err != nil {
		return nil, err
	}
	return reply.Data.Channels, nil
}

// Publish broadcasts a message to a channel.
func (c *Client) Publish(channel, message string) error {
	_, err := c.Request("publish", wire.Data{User: c.user, Channel: channel, Message: message})
	return err
}

// Message sends a direct message to another user.
func (c *Client) Message(dst, message string) error {
	_, err := c.Request("message", wire.Data{Src: c.user, Dst: dst, Message: message})
	return err
}

// Request performs one request/reply exchange. Error replies surface as
// ErrServerError; transport failures reset the socket so the next call
// starts clean.
func (c *Client) Request(service string, data wire.Data) (wire.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sock == nil {
		sock := zmq4.NewDealer(c.ctx, zmq4.WithTimeout(c.timeout))
		if err := sock.Dial(c.addr); err != nil {
			sock.Close()
			return wire.Frame{}, fmt.Errorf("dial broker %s: %w", c.addr, err)
		}
		c.sock = sock
	}

	id := uuid.NewString()
	data.ID = id
	if data.Timestamp == "" {
		data.Timestamp = wire.Timestamp()
	}
	data.Clock = c.clock.Next()

	raw, err := wire.EncodeFrame(wire.Frame{Service: service, Data: data})
	if err != nil {
		return wire.Frame{}, err
	}

	// REQ-compatible framing: empty delimiter, then the payload.
	if err := c.sock.Send(zmq4.NewMsgFrom(nil, raw)); err != nil {
		c.resetLocked()
		return wire.Frame{}, fmt.Errorf("%s send: %w", service, err)
	}

	for {
		msg, err := c.sock.Recv()
		if err != nil {
			c.resetLocked()
			return wire.Frame{}, fmt.Errorf("%s recv: %w", service, err)
		}

		if len(msg.Frames) == 0 {
			continue
		}
		payload := msg.Frames[len(msg.Frames)-1]
		reply, err := wire.DecodeFrame(payload)
		if err != nil {
			c.log.Debug("dropping undecodable reply", zap.Error(err))
			continue
		}
		c.clock.Observe(reply.Data.Clock)

		if reply.Data.ID != "" && reply.Data.ID != id {
			// Late answer to a request that already timed out.
			c.log.Debug("dropping stale reply", zap.String("id", reply.Data.ID))
			continue
		}

		if reply.Data.Status == wire.StatusError {
			return reply, fmt.Errorf("%s: %w: %s", service, ErrServerError, reply.Data.Message)
		}
		return reply, nil
	}
}

// Close releases the request socket.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resetLocked()
	return nil
}

func (c *Client) resetLocked() {
	if c.sock != nil {
		c.sock.Close()
		c.sock = nil
	}
}

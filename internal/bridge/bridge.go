// Package bridge is the WebSocket client to a WhatsApp bridge process. The
// bridge speaks the actual WhatsApp protocol; this client just exchanges
// protocol envelopes over WS: inbound message events, a ready envelope
// carrying the connection's own identity, and request/response pairs for
// metadata lookups and outbound actions.
package bridge

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"golang.org/x/time/rate"

	"github.com/nextlevelbuilder/sylph/internal/bus"
	"github.com/nextlevelbuilder/sylph/internal/wa"
	"github.com/nextlevelbuilder/sylph/pkg/protocol"
)

const (
	handshakeTimeout = 10 * time.Second
	rpcTimeout       = 10 * time.Second
	maxBackoff       = 30 * time.Second
)

// Client is one bridge connection. It implements the dispatch Transport
// surface and publishes inbound events to the bus tagged with its name.
type Client struct {
	name string
	url  string
	bus  *bus.MessageBus

	// limiter bounds outbound sends so a misbehaving plugin cannot get
	// the account rate-banned.
	limiter *rate.Limiter

	mu        sync.Mutex
	conn      *websocket.Conn
	connected bool
	pending   map[string]chan protocol.Envelope

	self      wa.Identity
	readyOnce sync.Once
	ready     chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
}

// New creates a client for one bridge endpoint. sendPerMinute bounds
// outbound writes; zero means a sane default.
func New(name, url string, msgBus *bus.MessageBus, sendPerMinute int) (*Client, error) {
	if url == "" {
		return nil, fmt.Errorf("bridge %s: url is required", name)
	}
	if sendPerMinute <= 0 {
		sendPerMinute = 20
	}
	return &Client{
		name:    name,
		url:     url,
		bus:     msgBus,
		limiter: rate.NewLimiter(rate.Limit(float64(sendPerMinute)/60.0), sendPerMinute),
		pending: make(map[string]chan protocol.Envelope),
		ready:   make(chan struct{}),
	}, nil
}

// Name returns the connection name used to tag bus events.
func (c *Client) Name() string { return c.name }

// Start connects and begins the listen loop. The initial dial failing is
// not fatal; the loop keeps retrying with backoff.
func (c *Client) Start(ctx context.Context) error {
	slog.Info("starting bridge connection", "name", c.name, "url", c.url)
	c.ctx, c.cancel = context.WithCancel(ctx)

	if err := c.connect(); err != nil {
		slog.Warn("initial bridge connection failed, will retry", "name", c.name, "error", err)
	}
	go c.listenLoop()
	return nil
}

// Stop closes the connection and stops the listen loop.
func (c *Client) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connected = false
}

// Connected reports whether the WebSocket is currently up.
func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// Self returns the connection's own identity. Valid once WaitReady returns.
func (c *Client) Self() wa.Identity {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.self
}

// WaitReady blocks until the bridge has announced the connection identity
// or ctx is done.
func (c *Client) WaitReady(ctx context.Context) error {
	select {
	case <-c.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Client) connect() error {
	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = handshakeTimeout

	conn, _, err := dialer.Dial(c.url, nil)
	if err != nil {
		return fmt.Errorf("dial bridge %s: %w", c.url, err)
	}

	c.mu.Lock()
	c.conn = conn
	c.connected = true
	c.mu.Unlock()

	slog.Info("bridge connected", "name", c.name, "url", c.url)
	return nil
}

func (c *Client) listenLoop() {
	backoff := time.Second

	for {
		select {
		case <-c.ctx.Done():
			return
		default:
		}

		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()

		if conn == nil {
			slog.Info("attempting bridge reconnect", "name", c.name, "backoff", backoff)
			select {
			case <-c.ctx.Done():
				return
			case <-time.After(backoff):
			}
			if err := c.connect(); err != nil {
				slog.Warn("bridge reconnect failed", "name", c.name, "error", err)
				backoff = min(backoff*2, maxBackoff)
				continue
			}
			backoff = time.Second
			continue
		}

		_, message, err := conn.ReadMessage()
		if err != nil {
			slog.Warn("bridge read error, will reconnect", "name", c.name, "error", err)
			c.mu.Lock()
			if c.conn != nil {
				_ = c.conn.Close()
				c.conn = nil
			}
			c.connected = false
			c.mu.Unlock()
			continue
		}

		var env protocol.Envelope
		if err := json.Unmarshal(message, &env); err != nil {
			slog.Warn("invalid bridge envelope", "name", c.name, "error", err)
			continue
		}
		c.handleEnvelope(env)
	}
}

func (c *Client) handleEnvelope(env protocol.Envelope) {
	switch env.Type {
	case protocol.TypeReady:
		c.mu.Lock()
		c.self = wa.Identity{JID: env.JID, LID: env.LID}
		c.mu.Unlock()
		c.readyOnce.Do(func() { close(c.ready) })
		slog.Info("bridge ready", "name", c.name, "jid", env.JID)

	case protocol.TypeMessage:
		if env.Event == nil {
			return
		}
		c.bus.PublishInbound(bus.InboundEvent{Conn: c.name, Event: env.Event})

	default:
		// Anything carrying a correlation ID resolves a pending request.
		if env.ID == "" {
			return
		}
		c.mu.Lock()
		ch, ok := c.pending[env.ID]
		if ok {
			delete(c.pending, env.ID)
		}
		c.mu.Unlock()
		if ok {
			ch <- env
		}
	}
}

// write marshals and sends one envelope under the rate limiter.
func (c *Client) write(ctx context.Context, env protocol.Envelope) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal bridge envelope: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn == nil {
		return fmt.Errorf("bridge %s not connected", c.name)
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		return fmt.Errorf("bridge write: %w", err)
	}
	return nil
}

// call performs a correlated request/response round trip.
func (c *Client) call(ctx context.Context, env protocol.Envelope) (protocol.Envelope, error) {
	env.ID = uuid.NewString()
	ch := make(chan protocol.Envelope, 1)
	c.mu.Lock()
	c.pending[env.ID] = ch
	c.mu.Unlock()

	cleanup := func() {
		c.mu.Lock()
		delete(c.pending, env.ID)
		c.mu.Unlock()
	}

	if err := c.write(ctx, env); err != nil {
		cleanup()
		return protocol.Envelope{}, err
	}

	timer := time.NewTimer(rpcTimeout)
	defer timer.Stop()
	select {
	case res := <-ch:
		if res.Error != "" {
			return protocol.Envelope{}, fmt.Errorf("bridge %s: %s", env.Type, res.Error)
		}
		return res, nil
	case <-timer.C:
		cleanup()
		return protocol.Envelope{}, fmt.Errorf("bridge %s: %s timed out", c.name, env.Type)
	case <-ctx.Done():
		cleanup()
		return protocol.Envelope{}, ctx.Err()
	}
}

// GroupMetadata fetches the roster snapshot for a group chat.
func (c *Client) GroupMetadata(ctx context.Context, chat string) (*wa.GroupMetadata, error) {
	res, err := c.call(ctx, protocol.Envelope{Type: protocol.TypeGroupMetadata, Chat: chat})
	if err != nil {
		return nil, err
	}
	return res.Metadata, nil
}

// SendText sends a text message, optionally quoting another.
func (c *Client) SendText(ctx context.Context, chat, text string, quoted *wa.MessageKey) error {
	return c.write(ctx, protocol.Envelope{Type: protocol.TypeSendText, Chat: chat, Text: text, Quoted: quoted})
}

// React attaches an emoji reaction to a message.
func (c *Client) React(ctx context.Context, chat string, key wa.MessageKey, emoji string) error {
	return c.write(ctx, protocol.Envelope{Type: protocol.TypeReact, Chat: chat, MsgKey: &key, Emoji: emoji})
}

// RemoveParticipant kicks a participant from a group.
func (c *Client) RemoveParticipant(ctx context.Context, chat, participant string) error {
	_, err := c.call(ctx, protocol.Envelope{Type: protocol.TypeRemoveParticipant, Chat: chat, Participant: participant})
	return err
}

// ReadMessages sends read receipts for the given message keys.
func (c *Client) ReadMessages(ctx context.Context, keys []wa.MessageKey) error {
	return c.write(ctx, protocol.Envelope{Type: protocol.TypeRead, Keys: keys})
}

// DeleteMessage removes a message for everyone in the chat.
func (c *Client) DeleteMessage(ctx context.Context, chat string, key wa.MessageKey) error {
	return c.write(ctx, protocol.Envelope{Type: protocol.TypeDelete, Chat: chat, MsgKey: &key})
}

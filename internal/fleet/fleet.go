// Package fleet runs the set of bridge connections and routes inbound
// events to each connection's dispatcher. Each connection processes its
// messages serially; concurrency only exists between connections, and
// shared groups are arbitrated by the dispatcher's de-duplication.
package fleet

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/nextlevelbuilder/sylph/internal/bridge"
	"github.com/nextlevelbuilder/sylph/internal/bus"
	"github.com/nextlevelbuilder/sylph/internal/dispatch"
	"github.com/nextlevelbuilder/sylph/internal/wa"
)

const connQueueSize = 64

// Conn pairs one bridge client with its dispatcher.
type Conn struct {
	Client     *bridge.Client
	Dispatcher *dispatch.Dispatcher

	queue chan *wa.MessageEvent
}

// Manager owns the connection set.
type Manager struct {
	mu    sync.RWMutex
	conns map[string]*Conn
	order []string

	msgBus *bus.MessageBus
}

// NewManager creates an empty fleet over the given bus.
func NewManager(msgBus *bus.MessageBus) *Manager {
	return &Manager{
		conns:  make(map[string]*Conn),
		msgBus: msgBus,
	}
}

// Add registers a connection. The first added connection is the primary
// one whose identity becomes the fleet's global identity.
func (m *Manager) Add(c *Conn) {
	m.mu.Lock()
	defer m.mu.Unlock()
	name := c.Client.Name()
	c.queue = make(chan *wa.MessageEvent, connQueueSize)
	m.conns[name] = c
	m.order = append(m.order, name)
}

// Live returns the identities of the currently connected members. The
// dispatchers use it to elect a single responder in shared groups.
func (m *Manager) Live() []wa.Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []wa.Identity
	for _, name := range m.order {
		c := m.conns[name]
		if c.Client.Connected() {
			out = append(out, c.Client.Self())
		}
	}
	return out
}

// Primary returns the first registered connection, or nil.
func (m *Manager) Primary() *Conn {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.order) == 0 {
		return nil
	}
	return m.conns[m.order[0]]
}

// Run starts every connection, waits for their identities, wires the
// global identity and peer set into the dispatchers, then routes events
// until ctx is cancelled.
func (m *Manager) Run(ctx context.Context) error {
	m.mu.RLock()
	conns := make([]*Conn, 0, len(m.order))
	for _, name := range m.order {
		conns = append(conns, m.conns[name])
	}
	m.mu.RUnlock()

	for _, c := range conns {
		if err := c.Client.Start(ctx); err != nil {
			return err
		}
	}
	defer func() {
		for _, c := range conns {
			c.Client.Stop()
		}
	}()

	for _, c := range conns {
		if err := c.Client.WaitReady(ctx); err != nil {
			return err
		}
	}

	primary := m.Primary()
	for _, c := range conns {
		c.Dispatcher.Self = c.Client.Self()
		if primary != nil {
			c.Dispatcher.Global = primary.Client.Self()
		}
		c.Dispatcher.Peers = m.Live
	}
	slog.Info("fleet ready", "connections", len(conns))

	g, ctx := errgroup.WithContext(ctx)

	// Router: fan inbound events out to the owning connection's queue.
	g.Go(func() error {
		for {
			ev, ok := m.msgBus.ConsumeInbound(ctx)
			if !ok {
				return ctx.Err()
			}
			m.mu.RLock()
			c := m.conns[ev.Conn]
			m.mu.RUnlock()
			if c == nil {
				slog.Warn("fleet: event for unknown connection", "conn", ev.Conn)
				continue
			}
			select {
			case c.queue <- ev.Event:
			default:
				slog.Warn("fleet: connection queue full, dropping event", "conn", ev.Conn)
			}
		}
	})

	// One worker per connection keeps its dispatch strictly serial.
	for _, c := range conns {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return ctx.Err()
				case ev := <-c.queue:
					c.Dispatcher.Handle(ctx, ev)
				}
			}
		})
	}

	return g.Wait()
}

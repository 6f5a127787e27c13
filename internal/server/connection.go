package server

import (
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/pankaj/linechat/internal/protocol"
	"github.com/pankaj/linechat/internal/ratelimit"
)

const outboxSize = 256

// Connection is one accepted socket, owned by its own handler goroutine
// pair (read loop + write loop). It implements registry.Peer so the
// registry never needs to know about net.Conn directly.
type Connection struct {
	id          string
	addr        string
	conn        net.Conn
	connectedAt time.Time
	log         *logrus.Entry

	outbox chan string
	done   chan struct{}
	closed atomic.Bool

	mu   sync.RWMutex
	name string

	sent     atomic.Uint64
	received atomic.Uint64

	framer  *protocol.Framer
	limiter *ratelimit.Limiter
}

func newConnection(conn net.Conn, log *logrus.Logger, limiter *ratelimit.Limiter) *Connection {
	id := uuid.NewString()
	c := &Connection{
		id:          id,
		addr:        conn.RemoteAddr().String(),
		conn:        conn,
		connectedAt: time.Now(),
		outbox:      make(chan string, outboxSize),
		done:        make(chan struct{}),
		framer:      protocol.NewFramer(conn),
		limiter:     limiter,
	}
	c.log = log.WithFields(logrus.Fields{"conn_id": id, "remote_addr": c.addr})
	return c
}

func (c *Connection) ID() string             { return c.id }
func (c *Connection) Addr() string           { return c.addr }
func (c *Connection) ConnectedAt() time.Time { return c.connectedAt }
func (c *Connection) Sent() uint64           { return c.sent.Load() }
func (c *Connection) Received() uint64       { return c.received.Load() }

func (c *Connection) Name() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.name
}

func (c *Connection) setName(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name = name
	c.log = c.log.WithField("name", name)
}

// Send enqueues line for delivery. It never blocks: if the connection's
// outbox is full (a stuck peer), the line is dropped and logged, matching
// the best-effort fan-out semantics required by the notification
// broadcaster.
func (c *Connection) Send(line string) {
	select {
	case c.outbox <- line:
	default:
		c.log.Warn("dropping outbound frame: outbox full")
	}
}

// writeLoop drains the outbox and writes each line to the socket,
// terminated by '\n'. It returns when the connection is closed or a write
// fails; a write failure is treated as the peer being gone, not a server
// error.
func (c *Connection) writeLoop() {
	for {
		select {
		case line, ok := <-c.outbox:
			if !ok {
				return
			}
			if _, err := fmt.Fprintf(c.conn, "%s\n", line); err != nil {
				c.log.WithError(err).Info("write failed; treating peer as gone")
				return
			}
			c.sent.Add(1)
		case <-c.done:
			return
		}
	}
}

// close closes the underlying socket exactly once.
func (c *Connection) close() {
	if c.closed.CompareAndSwap(false, true) {
		close(c.done)
		c.conn.Close()
	}
}

// Package server implements the TCP chat server: the listener, the
// per-connection state machine, and command dispatch.
package server

import (
	"context"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/pankaj/linechat/internal/audit"
	"github.com/pankaj/linechat/internal/config"
	"github.com/pankaj/linechat/internal/protocol"
	"github.com/pankaj/linechat/internal/ratelimit"
	"github.com/pankaj/linechat/internal/registry"
	"github.com/pankaj/linechat/internal/stats"
)

// Server ties together the registry, audit log, and listener.
type Server struct {
	cfg      config.Config
	logger   *logrus.Logger
	registry *registry.Registry
	audit    *audit.Log

	listener net.Listener
	ctx      context.Context
	cancel   context.CancelFunc
	wg       sync.WaitGroup
}

// New creates a Server from cfg. A nil logger falls back to a default
// logrus.Logger writing to stderr at Info level.
func New(cfg config.Config, logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Server{
		cfg:      cfg,
		logger:   logger,
		registry: registry.New(),
		audit:    audit.New(audit.DefaultCapacity),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Listen binds addr and starts the accept loop.
func (s *Server) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	s.listener = ln
	s.wg.Add(1)
	go s.serve()
	return nil
}

// Addr returns the listener's bound address, useful in tests with ":0".
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// Stats returns the current statistics surface snapshot.
func (s *Server) Stats() stats.Snapshot {
	return s.registry.BuildStats()
}

// AuditExportJSON returns the audit log as a JSON array.
func (s *Server) AuditExportJSON() ([]byte, error) {
	return s.audit.ExportJSON()
}

// Shutdown stops accepting connections, closes every open socket to
// unblock readers, and waits for every handler to finish its Terminating
// sequence.
func (s *Server) Shutdown() {
	s.cancel()
	if s.listener != nil {
		s.listener.Close()
	}
	s.wg.Wait()
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.ctx.Done():
				return
			default:
				s.logger.WithError(err).Warn("accept error")
				continue
			}
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.handleConnection(conn)
		}()
	}
}

// handleConnection runs the full per-connection state machine: Greeting,
// Registering, Serving, Terminating. Any panic raised while serving this
// connection is recovered here and only terminates this connection.
func (s *Server) handleConnection(conn net.Conn) {
	limiter := ratelimit.New(s.rateLimitCount(), s.rateLimitWindow())
	c := newConnection(conn, s.logger, limiter)

	defer func() {
		if r := recover(); r != nil {
			c.log.WithField("panic", r).Error("recovered from panic in connection handler")
		}
	}()

	s.registry.Connect(c)
	go c.writeLoop()
	defer s.terminate(c)

	// Unblock this connection's reader promptly if the server shuts down
	// while it is idle waiting on a read.
	go func() {
		select {
		case <-s.ctx.Done():
			c.close()
		case <-c.done:
		}
	}()

	if !s.greet(c) {
		return
	}
	s.serveLoop(c)
}

// greet runs the Greeting and Registering states. It returns false if the
// connection must terminate (timeout, validation failure, or read error).
func (s *Server) greet(c *Connection) bool {
	c.Send("welcome")
	c.Send("Please send your name:")

	if d := s.cfg.ReadTimeoutDuration(); d > 0 {
		c.conn.SetReadDeadline(time.Now().Add(d))
	}
	line, err := c.framer.ReadFrame(s.maxMessageSize())
	c.conn.SetReadDeadline(time.Time{})
	if err != nil {
		c.log.WithError(err).Info("registration read failed or timed out")
		return false
	}

	name := strings.TrimRight(line, " \t")
	result := s.registry.Register(c, name, s.maxNameLength())
	switch result {
	case registry.RegisterOK:
		c.setName(name)
		c.Send("Name registered: " + name)
		c.Send("Available commands: LIST_USERS, LIST_GROUPS, CREATE_GROUP:<name>, JOIN_GROUP:<name>, " +
			"INVITE_TO_GROUP:<name>:<user>, LEAVE_GROUP:<name>, GROUP:<name>:<message>, CONNECT:<name>, DISCONNECT_CHAT")
		s.registry.BroadcastToOthers(c.ID(), "USER_CONNECTED:"+name)
		return true
	case registry.RegisterEmpty:
		c.Send("ERROR: Name validation failed - name cannot be empty")
	case registry.RegisterTooLong:
		c.Send("ERROR: Name validation failed - name exceeds maximum length of " + strconv.Itoa(s.maxNameLength()))
	case registry.RegisterBadChars:
		c.Send("ERROR: Name validation failed - name must not contain CR or LF")
	case registry.RegisterDuplicate:
		c.Send("ERROR: Name validation failed - name already in use")
	}
	return false
}

// serveLoop implements the Serving state: read, rate-limit, dispatch,
// repeat until EOF, a socket error, or shutdown.
func (s *Server) serveLoop(c *Connection) {
	for {
		line, err := c.framer.ReadFrame(s.maxMessageSize())
		if err != nil {
			if err == protocol.ErrFrameTooLarge {
				c.Send("ERROR: Message too large - maximum size is " + strconv.Itoa(s.maxMessageSize()) + " bytes")
				continue
			}
			return
		}
		c.received.Add(1)

		if !c.limiter.Allow(time.Now()) {
			c.Send("ERROR: Rate limit exceeded - please slow down")
			continue
		}

		s.dispatch(c, line)
	}
}

func (s *Server) maxMessageSize() int {
	if s.cfg.Limits.MaxMessageSize <= 0 {
		return 4096
	}
	return s.cfg.Limits.MaxMessageSize
}

func (s *Server) maxNameLength() int {
	if s.cfg.Limits.MaxNameLength <= 0 {
		return 50
	}
	return s.cfg.Limits.MaxNameLength
}

func (s *Server) rateLimitCount() int {
	if s.cfg.Limits.RateLimitMessagesPerSecond <= 0 {
		return 10
	}
	return s.cfg.Limits.RateLimitMessagesPerSecond
}

func (s *Server) rateLimitWindow() time.Duration {
	if d := s.cfg.RateLimitWindowDuration(); d > 0 {
		return d
	}
	return time.Second
}

// terminate implements the Terminating state, in strict order: notify the
// pair partner, leave every group, remove the name, remove from the
// connected set, then close the socket.
func (s *Server) terminate(c *Connection) {
	s.registry.DisconnectPair(c)
	s.registry.LeaveAllGroups(c)
	s.registry.RemoveName(c)
	s.registry.RemoveConnected(c)
	c.close()
}

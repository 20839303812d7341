package net

import (
	"net"
	"time"

	"go.uber.org/zap"
)

// Gate hands freshly accepted sessions to the engine. Both acceptors
// (TCP and WebSocket) offer into the same gate; the engine consumes.
type Gate struct {
	newConns chan *Session
	log      *zap.Logger
}

func NewGate(size int, log *zap.Logger) *Gate {
	return &Gate{
		newConns: make(chan *Session, size),
		log:      log,
	}
}

// Offer enqueues a session for the engine. When the engine cannot keep
// up the connection is refused rather than queued unbounded.
func (g *Gate) Offer(s *Session) bool {
	select {
	case g.newConns <- s:
		return true
	default:
		g.log.Warn("connection queue full, refusing session",
			zap.String("remote", s.RemoteAddr()))
		s.Close()
		return false
	}
}

// Sessions is the channel of newly connected sessions.
func (g *Gate) Sessions() <-chan *Session {
	return g.newConns
}

// Server accepts raw TCP connections and turns them into line sessions.
type Server struct {
	listener net.Listener
	gate     *Gate

	outSize       int
	idleTimeout   time.Duration
	defaultLocale string

	log     *zap.Logger
	closeCh chan struct{}
}

func NewServer(bindAddr string, gate *Gate, outSize int, idleTimeout time.Duration, defaultLocale string, log *zap.Logger) (*Server, error) {
	ln, err := net.Listen("tcp", bindAddr)
	if err != nil {
		return nil, err
	}
	return &Server{
		listener:      ln,
		gate:          gate,
		outSize:       outSize,
		idleTimeout:   idleTimeout,
		defaultLocale: defaultLocale,
		log:           log,
		closeCh:       make(chan struct{}),
	}, nil
}

// AcceptLoop runs in its own goroutine until Shutdown closes the
// listener. Each accepted connection becomes a session offered to the
// gate; the engine drives its lifecycle from there.
func (s *Server) AcceptLoop() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closeCh:
				return // shutting down
			default:
			}
			s.log.Error("accept failed", zap.Error(err))
			continue
		}

		sess := NewSession(NewTCPConn(conn), "tcp", s.outSize, s.idleTimeout, s.defaultLocale, s.log)
		sess.Start()
		s.log.Info("client connected",
			zap.String("session", sess.ID[:8]),
			zap.String("remote", sess.RemoteAddr()))
		s.gate.Offer(sess)
	}
}

// Shutdown stops accepting new connections.
func (s *Server) Shutdown() {
	close(s.closeCh)
	s.listener.Close()
}

// Addr returns the listener's address (useful with port 0 in tests).
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

package net

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/duskmud/server/internal/model"
)

// Conn is the transport under a session: a plain TCP socket or a
// WebSocket adapter. One call, one line.
type Conn interface {
	ReadLine() (string, error)
	WriteLine(line string) error
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	RemoteAddr() net.Addr
	Close() error
}

type tcpConn struct {
	c  net.Conn
	lr *LineReader
}

// NewTCPConn wraps a raw TCP connection in the line-conn contract.
func NewTCPConn(c net.Conn) Conn {
	return &tcpConn{c: c, lr: NewLineReader(c)}
}

func (t *tcpConn) ReadLine() (string, error)          { return t.lr.ReadLine() }
func (t *tcpConn) WriteLine(line string) error        { return WriteLine(t.c, line) }
func (t *tcpConn) SetReadDeadline(d time.Time) error  { return t.c.SetReadDeadline(d) }
func (t *tcpConn) SetWriteDeadline(d time.Time) error { return t.c.SetWriteDeadline(d) }
func (t *tcpConn) RemoteAddr() net.Addr               { return t.c.RemoteAddr() }
func (t *tcpConn) Close() error                       { return t.c.Close() }

// State is the coarse session lifecycle; the fine-grained login flow is
// driven by the engine on top of it.
type State int32

const (
	StateAuth State = iota // pre-login: greeting, menu, credentials
	StatePlaying
	StateClosing
)

// DefaultLinesPerSec caps client input; a client exceeding it is
// disconnected as misbehaving.
const DefaultLinesPerSec = 20

// Session represents one client connection. The engine's per-session
// goroutine calls ReadLine and processes commands strictly in arrival
// order; a dedicated writer goroutine drains OutQueue so broadcasts from
// other sessions never block on a slow socket.
type Session struct {
	ID        string
	Transport string // tcp or websocket

	conn Conn

	OutQueue chan string // writer goroutine reads from here

	state atomic.Int32

	mu     sync.Mutex // protects player, locale, flags
	player *model.Player
	locale string
	plain  bool   // render envelopes as text instead of JSON
	follow string // session id this session follows, "" if none

	lastInput atomic.Int64 // unix nanos of the last completed read

	idleTimeout time.Duration

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	// Per-second input limiter (reader goroutine only, no lock needed)
	linesPerSec int
	lineCount   int
	lineResetAt int64

	log *zap.Logger
}

func NewSession(conn Conn, transport string, outSize int, idleTimeout time.Duration, defaultLocale string, log *zap.Logger) *Session {
	id := uuid.NewString()
	s := &Session{
		ID:          id,
		Transport:   transport,
		conn:        conn,
		OutQueue:    make(chan string, outSize),
		locale:      defaultLocale,
		idleTimeout: idleTimeout,
		closeCh:     make(chan struct{}),
		linesPerSec: DefaultLinesPerSec,
		log: log.With(
			zap.String("session", id[:8]),
			zap.String("transport", transport),
		),
	}
	s.state.Store(int32(StateAuth))
	s.Touch()
	return s
}

// Start launches the writer goroutine. The caller owns the read side.
func (s *Session) Start() {
	go s.writeLoop()
}

func (s *Session) State() State      { return State(s.state.Load()) }
func (s *Session) SetState(st State) { s.state.Store(int32(st)) }

func (s *Session) RemoteAddr() string {
	return s.conn.RemoteAddr().String()
}

func (s *Session) Log() *zap.Logger { return s.log }

// ReadLine blocks for the next client line. It refreshes the idle
// deadline before each read and enforces the input rate cap. Called only
// from the session's dispatch goroutine.
func (s *Session) ReadLine() (string, error) {
	if s.closed.Load() {
		return "", net.ErrClosed
	}
	if s.idleTimeout > 0 {
		s.conn.SetReadDeadline(time.Now().Add(s.idleTimeout))
	}
	line, err := s.conn.ReadLine()
	if err != nil {
		return "", err
	}
	s.Touch()

	if s.linesPerSec > 0 {
		now := time.Now().Unix()
		if now != s.lineResetAt {
			s.lineCount = 0
			s.lineResetAt = now
		}
		s.lineCount++
		if s.lineCount > s.linesPerSec {
			s.log.Warn("input rate exceeded, disconnecting", zap.Int("lines", s.lineCount))
			s.Close()
			return "", net.ErrClosed
		}
	}
	return line, nil
}

// Touch records input activity for the idle sweep.
func (s *Session) Touch() {
	s.lastInput.Store(time.Now().UnixNano())
}

// IdleSince reports when the session last sent a line.
func (s *Session) IdleSince() time.Time {
	return time.Unix(0, s.lastInput.Load())
}

// --- player attachment ---

// Player returns a copy of the attached player, or nil pre-login.
func (s *Session) Player() *model.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player == nil {
		return nil
	}
	return s.player.Clone()
}

// SetPlayer attaches the authenticated player and adopts their locale.
func (s *Session) SetPlayer(p *model.Player) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.player = p
	if p != nil && p.PreferredLocale != "" {
		s.locale = p.PreferredLocale
	}
}

// UpdatePlayer mutates the attached player under the session lock and
// returns a copy of the result, or nil when no player is attached.
func (s *Session) UpdatePlayer(fn func(*model.Player)) *model.Player {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player == nil {
		return nil
	}
	fn(s.player)
	return s.player.Clone()
}

func (s *Session) PlayerID() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player == nil {
		return 0
	}
	return s.player.ID
}

func (s *Session) Username() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.player == nil {
		return ""
	}
	return s.player.Username
}

func (s *Session) IsAdmin() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.player != nil && s.player.IsAdmin
}

// --- per-session flags ---

func (s *Session) LocaleCode() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.locale
}

func (s *Session) SetLocaleCode(code string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.locale = code
}

func (s *Session) PlainText() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.plain
}

func (s *Session) SetPlainText(v bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.plain = v
}

func (s *Session) FollowTarget() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.follow
}

func (s *Session) SetFollowTarget(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.follow = sessionID
}

// --- sending ---

// Send enqueues one message, rendered per the session's mode. A full
// queue means the client cannot keep up; the session is disconnected
// rather than blocking the sender.
func (s *Session) Send(m Msg) {
	if s.closed.Load() {
		return
	}
	var line string
	if s.PlainText() {
		line = m.Render()
	} else {
		var err error
		line, err = m.EncodeJSON()
		if err != nil {
			s.log.Error("encode message", zap.String("type", m.Type()), zap.Error(err))
			return
		}
	}
	s.enqueue(line)
}

// SendText enqueues a raw text line (pre-auth prompts, menus).
func (s *Session) SendText(text string) {
	if s.closed.Load() {
		return
	}
	s.enqueue(text)
}

func (s *Session) SendSuccess(action, message string, data map[string]any) {
	s.Send(Success(action, message, data))
}

func (s *Session) SendError(code, message string) {
	s.Send(ErrorEnvelope(code, message))
}

func (s *Session) enqueue(line string) {
	select {
	case s.OutQueue <- line:
	case <-s.closeCh:
	default:
		s.log.Warn("output queue full, disconnecting slow client")
		s.Close()
	}
}

// --- lifecycle ---

// Close tears the session down once: marks it closing and closes the
// socket, which unblocks the reader.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.SetState(StateClosing)
		close(s.closeCh)
		s.conn.Close()
	})
}

// CloseGracefully gives the writer up to grace to flush queued output,
// then closes. Used for quit, kick, and server shutdown.
func (s *Session) CloseGracefully(grace time.Duration) {
	deadline := time.Now().Add(grace)
	for len(s.OutQueue) > 0 && time.Now().Before(deadline) && !s.closed.Load() {
		time.Sleep(5 * time.Millisecond)
	}
	s.Close()
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// Done is closed when the session is torn down.
func (s *Session) Done() <-chan struct{} {
	return s.closeCh
}

// writeLoop drains OutQueue to the socket. It survives until the session
// closes, then flushes whatever is already queued.
func (s *Session) writeLoop() {
	defer s.Close()
	for {
		select {
		case line := <-s.OutQueue:
			if !s.writeOne(line) {
				return
			}
		case <-s.closeCh:
			for {
				select {
				case line := <-s.OutQueue:
					if !s.writeOne(line) {
						return
					}
				default:
					return
				}
			}
		}
	}
}

func (s *Session) writeOne(line string) bool {
	s.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	if err := s.conn.WriteLine(line); err != nil {
		if !s.closed.Load() {
			s.log.Debug("write error", zap.Error(err))
		}
		return false
	}
	return true
}

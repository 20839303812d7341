package net

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// wsConn adapts a WebSocket to the line-conn contract: one text frame in
// each direction is one line.
type wsConn struct {
	ws *websocket.Conn
}

func (w *wsConn) ReadLine() (string, error) {
	for {
		typ, data, err := w.ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return "", io.EOF
			}
			return "", err
		}
		if typ != websocket.TextMessage {
			continue // binary and control frames carry no commands
		}
		line := string(data)
		// tolerate clients that keep the \n habit over frames
		for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
			line = line[:len(line)-1]
		}
		return line, nil
	}
}

func (w *wsConn) WriteLine(line string) error {
	return w.ws.WriteMessage(websocket.TextMessage, []byte(line))
}

func (w *wsConn) SetReadDeadline(t time.Time) error  { return w.ws.SetReadDeadline(t) }
func (w *wsConn) SetWriteDeadline(t time.Time) error { return w.ws.SetWriteDeadline(t) }
func (w *wsConn) RemoteAddr() net.Addr               { return w.ws.RemoteAddr() }
func (w *wsConn) Close() error                       { return w.ws.Close() }

// WSServer serves the WebSocket transport on its own port, path /ws.
// Sessions behave exactly like TCP ones past the upgrade.
type WSServer struct {
	srv      *http.Server
	gate     *Gate
	upgrader websocket.Upgrader

	outSize       int
	idleTimeout   time.Duration
	defaultLocale string

	log *zap.Logger
}

func NewWSServer(bindAddr string, gate *Gate, outSize int, idleTimeout time.Duration, defaultLocale string, log *zap.Logger) *WSServer {
	w := &WSServer{
		gate: gate,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  MaxLineLen,
			WriteBufferSize: MaxLineLen,
			// auth happens in-band after connect, same as TCP
			CheckOrigin: func(*http.Request) bool { return true },
		},
		outSize:       outSize,
		idleTimeout:   idleTimeout,
		defaultLocale: defaultLocale,
		log:           log,
	}
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", w.handleUpgrade)
	w.srv = &http.Server{
		Addr:              bindAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return w
}

func (w *WSServer) handleUpgrade(rw http.ResponseWriter, req *http.Request) {
	ws, err := w.upgrader.Upgrade(rw, req, nil)
	if err != nil {
		w.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	sess := NewSession(&wsConn{ws: ws}, "websocket", w.outSize, w.idleTimeout, w.defaultLocale, w.log)
	sess.Start()
	w.log.Info("client connected",
		zap.String("session", sess.ID[:8]),
		zap.String("remote", sess.RemoteAddr()))
	w.gate.Offer(sess)
}

// ListenAndServe blocks until Shutdown; a clean close returns nil.
func (w *WSServer) ListenAndServe() error {
	err := w.srv.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (w *WSServer) Shutdown(ctx context.Context) error {
	return w.srv.Shutdown(ctx)
}

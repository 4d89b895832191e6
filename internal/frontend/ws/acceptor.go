// Package ws provides the WebSocket frontend for the lobby server: an
// HTTP acceptor that upgrades connections and per-connection read/write
// pumps feeding the session coordinator.
package ws

import (
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/deckmatch/lobbyd/internal/config"
	"github.com/deckmatch/lobbyd/internal/lobby"
)

// Handler receives connection lifecycle and frame events. Calls may come
// from any pump goroutine; implementations serialize internally.
type Handler interface {
	// HandleOpen reports a newly accepted connection.
	HandleOpen(conn lobby.Conn)
	// HandleFrame reports one inbound text frame.
	HandleFrame(id lobby.ConnID, data []byte)
	// HandleClose reports that the connection is gone.
	HandleClose(id lobby.ConnID)
}

// Acceptor listens for WebSocket upgrade requests on an HTTP port and
// dispatches each accepted connection to a Handler.
type Acceptor struct {
	cfg        config.WebSocketConfig
	sendBuffer int
	handler    Handler
	logger     *zap.Logger

	upgrader websocket.Upgrader
	srv      *http.Server
	listener net.Listener
	wg       sync.WaitGroup
	quit     chan struct{}
	mu       sync.Mutex
	running  bool
	conns    map[lobby.ConnID]*Conn
}

// NewAcceptor creates a WebSocket acceptor with the given configuration.
//
// Precondition: handler and logger must be non-nil; sendBuffer must be >= 1.
// Postcondition: Returns an Acceptor ready to be started with ListenAndServe.
func NewAcceptor(cfg config.WebSocketConfig, sendBuffer int, handler Handler, logger *zap.Logger) *Acceptor {
	return &Acceptor{
		cfg:        cfg,
		sendBuffer: sendBuffer,
		handler:    handler,
		logger:     logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		quit:  make(chan struct{}),
		conns: make(map[lobby.ConnID]*Conn),
	}
}

// ListenAndServe starts the HTTP listener and accepts connections until
// Stop is called. This method blocks until the acceptor is stopped.
//
// Precondition: The acceptor must not already be running.
// Postcondition: The listener is closed when this method returns.
func (a *Acceptor) ListenAndServe() error {
	start := time.Now()

	listener, err := net.Listen("tcp", a.cfg.Addr())
	if err != nil {
		return fmt.Errorf("listening on %s: %w", a.cfg.Addr(), err)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/", a.serveWS)
	srv := &http.Server{Handler: mux}

	a.mu.Lock()
	a.listener = listener
	a.srv = srv
	a.running = true
	a.mu.Unlock()

	a.logger.Info("websocket acceptor listening",
		zap.String("addr", listener.Addr().String()),
		zap.Duration("startup", time.Since(start)),
	)

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		select {
		case <-a.quit:
			return nil
		default:
			return fmt.Errorf("serving websocket: %w", err)
		}
	}
	return nil
}

// serveWS upgrades one HTTP request and runs the connection until it dies.
func (a *Acceptor) serveWS(w http.ResponseWriter, r *http.Request) {
	sock, err := a.upgrader.Upgrade(w, r, nil)
	if err != nil {
		a.logger.Error("upgrading websocket",
			zap.String("remote_addr", r.RemoteAddr),
			zap.Error(err),
		)
		return
	}

	conn := newConn(sock, a.cfg, a.sendBuffer, a.logger)

	a.mu.Lock()
	a.conns[conn.ID()] = conn
	a.mu.Unlock()

	a.logger.Info("client connected",
		zap.String("remote_addr", r.RemoteAddr),
		zap.String("conn_id", string(conn.ID())),
	)
	start := time.Now()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		conn.writePump()
	}()

	a.handler.HandleOpen(conn)

	// The read pump runs on the request goroutine and returns when the
	// connection dies, however that happens.
	conn.readPump(a.handler)

	a.mu.Lock()
	delete(a.conns, conn.ID())
	a.mu.Unlock()

	a.handler.HandleClose(conn.ID())

	a.logger.Info("client disconnected",
		zap.String("conn_id", string(conn.ID())),
		zap.Duration("duration", time.Since(start)),
	)
}

// Stop gracefully stops the acceptor, closing the listener and all live
// connections and waiting for the pumps to finish.
//
// Postcondition: All connections are closed and goroutines have exited.
func (a *Acceptor) Stop() {
	a.mu.Lock()
	if !a.running {
		a.mu.Unlock()
		return
	}
	a.running = false
	close(a.quit)
	srv := a.srv
	conns := make([]*Conn, 0, len(a.conns))
	for _, conn := range a.conns {
		conns = append(conns, conn)
	}
	a.mu.Unlock()

	if srv != nil {
		_ = srv.Close()
	}
	for _, conn := range conns {
		_ = conn.Close()
	}
	a.wg.Wait()

	a.logger.Info("websocket acceptor stopped")
}

// Addr returns the actual listening address, or empty string if not yet
// listening.
func (a *Acceptor) Addr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.listener != nil {
		return a.listener.Addr().String()
	}
	return ""
}

// IsRunning returns whether the acceptor is currently accepting connections.
func (a *Acceptor) IsRunning() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.running
}

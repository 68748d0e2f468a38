// Package ws handles WebSocket connection management, including upgrading
// HTTP connections, authenticating them against the session registry,
// maintaining active connections, and dispatching incoming frames to the
// gateway.
package ws

import (
	"context"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/gobwas/ws"
	"github.com/gobwas/ws/wsutil"
	"github.com/google/uuid"

	"github.com/shadow/chat-server/internal/metrics"
	"github.com/shadow/chat-server/internal/ratelimit"
)

// Authenticator resolves a bearer session token to a user id. A resolution
// failure rejects the connection before the upgrade completes.
type Authenticator interface {
	Resolve(token string) (string, error)
}

// Callbacks are invoked by the server as connections come, speak, and go.
// OnMessage is called from a worker goroutine with a complete text frame;
// frames from a single connection are delivered one at a time, in order.
// OnDisconnect runs unconditionally when a connection is removed, whatever
// the cause.
type Callbacks struct {
	OnConnect    func(conn *Connection)
	OnMessage    func(conn *Connection, data []byte)
	OnDisconnect func(conn *Connection)
}

// ServerConfig holds tunable parameters for the WebSocket server.
type ServerConfig struct {
	WorkerPoolSize int           // max concurrent read-worker goroutines
	MaxConnections int           // hard cap on total connections
	ReadTimeout    time.Duration // timeout for WebSocket read operations
	WriteTimeout   time.Duration // timeout for WebSocket write operations
}

// DefaultServerConfig returns a ServerConfig with sensible production defaults.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		WorkerPoolSize: 256,
		MaxConnections: 100000,
		ReadTimeout:    10 * time.Second,
		WriteTimeout:   10 * time.Second,
	}
}

// Server is the WebSocket server built on gobwas/ws and Linux epoll. It
// upgrades HTTP connections to WebSocket after validating the session token,
// registers them with an epoll instance for I/O readiness notifications, and
// dispatches ready connections to a bounded worker pool for frame reading.
type Server struct {
	config     ServerConfig
	epoll      *Epoll
	conns      *ConnectionManager
	auth       Authenticator
	callbacks  Callbacks
	workerPool chan struct{} // semaphore limiting concurrent read workers
	done       chan struct{}
	limiter    *ratelimit.Limiter // optional; nil disables connection throttling
}

// SetRateLimiter enables per-IP connection throttling on the upgrade path.
// Must be called before Start.
func (s *Server) SetRateLimiter(l *ratelimit.Limiter) {
	s.limiter = l
}

// NewServer creates a Server with the given configuration, authenticator,
// and callbacks.
func NewServer(config ServerConfig, auth Authenticator, callbacks Callbacks) *Server {
	return &Server{
		config:     config,
		conns:      NewConnectionManager(),
		auth:       auth,
		callbacks:  callbacks,
		workerPool: make(chan struct{}, config.WorkerPoolSize),
		done:       make(chan struct{}),
	}
}

// Start initializes the epoll instance, registers the /ws upgrade handler on
// the given mux, and begins the epoll event loop and heartbeat monitor in
// background goroutines. The caller owns the HTTP listener.
func (s *Server) Start(mux *http.ServeMux) error {
	var err error
	s.epoll, err = NewEpoll()
	if err != nil {
		return fmt.Errorf("ws: failed to create epoll: %w", err)
	}

	mux.HandleFunc("/ws", s.handleUpgrade)

	go s.startEventLoop()
	StartHeartbeat(s, DefaultHeartbeatConfig())

	log.Printf("ws: server started (workers=%d, max_conns=%d)",
		s.config.WorkerPoolSize, s.config.MaxConnections)
	return nil
}

// bearerToken extracts the session token from the Authorization header or,
// for browser WebSocket clients that cannot set headers, the token query
// parameter.
func bearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return r.URL.Query().Get("token")
}

// handleUpgrade authenticates the handshake and upgrades the HTTP request to
// a WebSocket connection. An absent or invalid token rejects the request
// with 401 before the socket ever opens; no event is processed for an
// unauthenticated client.
func (s *Server) handleUpgrade(w http.ResponseWriter, r *http.Request) {
	// Enforce maximum connection limit.
	if s.conns.Count() >= s.config.MaxConnections {
		http.Error(w, "too many connections", http.StatusServiceUnavailable)
		return
	}

	if s.limiter != nil {
		ip, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			ip = r.RemoteAddr
		}
		if allowed, _ := s.limiter.Allow(r.Context(), ip, ratelimit.RuleConnect); !allowed {
			http.Error(w, "too many connection attempts", http.StatusTooManyRequests)
			return
		}
	}

	token := bearerToken(r)
	if token == "" {
		http.Error(w, "authentication required", http.StatusUnauthorized)
		return
	}
	userID, err := s.auth.Resolve(token)
	if err != nil {
		http.Error(w, "invalid or expired session", http.StatusUnauthorized)
		return
	}

	conn, _, _, err := ws.UpgradeHTTP(r, w)
	if err != nil {
		log.Printf("ws: upgrade failed for user %s: %v", userID, err)
		return
	}

	fd := socketFD(conn)
	c := &Connection{
		ID:        uuid.New().String(),
		UserID:    userID,
		Conn:      conn,
		Fd:        fd,
		CreatedAt: time.Now(),
		LastPing:  time.Now(),
	}

	s.conns.Add(c)
	if err := s.epoll.Add(conn); err != nil {
		log.Printf("ws: epoll add failed conn=%s: %v", c.ID, err)
		s.conns.Remove(c.ID)
		return
	}

	metrics.ConnectionsTotal.Set(float64(s.conns.Count()))

	if s.callbacks.OnConnect != nil {
		s.callbacks.OnConnect(c)
	}

	log.Printf("ws: new connection conn=%s user=%s fd=%d (total=%d)",
		c.ID, userID, fd, s.conns.Count())
}

// startEventLoop runs the epoll wait loop. For each batch of ready
// connections, it dispatches each to a worker goroutine (bounded by the
// worker pool semaphore) that reads and processes the WebSocket frame.
func (s *Server) startEventLoop() {
	for {
		select {
		case <-s.done:
			return
		default:
		}

		conns, err := s.epoll.Wait()
		if err != nil {
			select {
			case <-s.done:
				return
			default:
				// EINTR is expected during signal handling.
				if isEINTR(err) {
					continue
				}
				log.Printf("ws: epoll wait error: %v", err)
				continue
			}
		}

		for _, conn := range conns {
			conn := conn // capture for goroutine

			// Acquire a worker slot (blocks if pool is full).
			s.workerPool <- struct{}{}

			go func() {
				defer func() { <-s.workerPool }()
				s.handleConn(conn)
			}()
		}
	}
}

// handleConn reads a single WebSocket frame from a ready connection using
// wsutil.NextReader so that control frames (ping, pong) are handled without
// blocking on a data frame that may never arrive. The per-connection
// processing flag guarantees that frames from one connection are consumed
// and handed to OnMessage one at a time, in arrival order. If the read fails
// (connection closed, protocol error, etc.) the connection is removed from
// epoll and the connection manager.
func (s *Server) handleConn(netConn net.Conn) {
	c := s.conns.GetByConn(netConn)
	if c == nil {
		return
	}

	// Guard against duplicate dispatch from level-triggered epoll.
	if !atomic.CompareAndSwapInt32(&c.processing, 0, 1) {
		return
	}
	defer atomic.StoreInt32(&c.processing, 0)

	if s.config.ReadTimeout > 0 {
		_ = netConn.SetReadDeadline(time.Now().Add(s.config.ReadTimeout))
	}

	header, reader, err := wsutil.NextReader(netConn, ws.StateServerSide)
	if err != nil {
		// A read timeout means no data was available (stale epoll dispatch).
		// Don't kill the connection — the heartbeat handles dead connections.
		if netErr, ok := err.(net.Error); ok && netErr.Timeout() {
			return
		}
		s.RemoveConnection(c)
		return
	}

	// Clear read deadline after successful frame read.
	_ = netConn.SetReadDeadline(time.Time{})

	// Any frame proves the connection is alive.
	c.LastPing = time.Now()

	// Handle control frames without removing the connection.
	if header.OpCode.IsControl() {
		if header.OpCode == ws.OpClose {
			s.RemoveConnection(c)
		}
		// Pong/ping: connection is alive, nothing else to do.
		return
	}

	// Read data frame payload.
	data := make([]byte, header.Length)
	if header.Length > 0 {
		_, err = io.ReadFull(reader, data)
		if err != nil {
			s.RemoveConnection(c)
			return
		}
	}

	if len(data) == 0 {
		return
	}

	if s.callbacks.OnMessage != nil {
		s.callbacks.OnMessage(c, data)
	}
}

// RemoveConnection removes a connection from both epoll and the connection
// manager, closes the underlying network connection, and runs the
// disconnect callback. The callback runs unconditionally for any removal
// cause: clean close, read error, or heartbeat eviction.
func (s *Server) RemoveConnection(c *Connection) {
	_ = s.epoll.Remove(c.Conn)

	// Only proceed if the connection was actually in the manager. This
	// prevents double cleanup when multiple goroutines race to remove the
	// same connection (e.g., read error + heartbeat timeout).
	if !s.conns.Remove(c.ID) {
		return
	}

	metrics.ConnectionsTotal.Set(float64(s.conns.Count()))

	if s.callbacks.OnDisconnect != nil {
		s.callbacks.OnDisconnect(c)
	}

	log.Printf("ws: connection closed conn=%s user=%s (total=%d)",
		c.ID, c.UserID, s.conns.Count())
}

// Send writes a WebSocket text frame to the connection identified by connID.
// It is goroutine-safe thanks to the per-connection write mutex.
func (s *Server) Send(connID string, data []byte) error {
	c := s.conns.Get(connID)
	if c == nil {
		return fmt.Errorf("ws: connection %s not found", connID)
	}
	return s.write(c, data)
}

// Broadcast sends a frame to every active connection. Errors on individual
// connections are ignored; failed connections are cleaned up when their next
// read fails or the heartbeat evicts them.
func (s *Server) Broadcast(data []byte) {
	for _, c := range s.conns.All() {
		_ = s.write(c, data)
	}
}

// BroadcastExcept sends a frame to every active connection except the one
// identified by exceptConnID.
func (s *Server) BroadcastExcept(exceptConnID string, data []byte) {
	for _, c := range s.conns.All() {
		if c.ID == exceptConnID {
			continue
		}
		_ = s.write(c, data)
	}
}

// write applies the configured write deadline around a single frame write so
// one slow consumer can only stall its own write, never the fan-out loop for
// other connections.
func (s *Server) write(c *Connection, data []byte) error {
	if s.config.WriteTimeout > 0 {
		_ = c.Conn.SetWriteDeadline(time.Now().Add(s.config.WriteTimeout))
	}

	err := c.WriteMessage(data)

	// Clear write deadline so it doesn't affect future writes (e.g.,
	// heartbeat pings).
	_ = c.Conn.SetWriteDeadline(time.Time{})

	return err
}

// Connections returns the ConnectionManager for external access to
// connection state (e.g., by the heartbeat monitor).
func (s *Server) Connections() *ConnectionManager {
	return s.conns
}

// Shutdown performs a graceful shutdown: it signals the event loop and
// heartbeat to exit, closes all active connections (running their disconnect
// callbacks), and cleans up the epoll instance.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Println("ws: shutting down server...")

	close(s.done)

	for _, c := range s.conns.All() {
		s.RemoveConnection(c)
	}

	if s.epoll != nil {
		_ = s.epoll.Close()
	}

	log.Printf("ws: server stopped, all connections closed")
	return nil
}

// isEINTR checks if the error is a syscall interrupted error (EINTR),
// which is expected during signal handling and should be retried.
func isEINTR(err error) bool {
	if err == nil {
		return false
	}
	return err.Error() == "interrupted system call" ||
		err.Error() == "errno 4"
}

package realtime

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"slices"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/vesaa/raspterm/internal/metrics"
)

// Hub upgrades authenticated requests into connections and tracks them
// until they detach.
type Hub struct {
	router   *Router
	upgrader websocket.Upgrader
	origins  []string

	mu    sync.Mutex
	conns map[string]*Conn
	wg    sync.WaitGroup
}

// NewHub creates a Hub. allowedOrigins lists cross-origin clients permitted to
// connect; same-origin and origin-less requests are always accepted.
func NewHub(router *Router, allowedOrigins ...string) *Hub {
	h := &Hub{
		router:  router,
		origins: allowedOrigins,
		conns:   make(map[string]*Conn),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 32 * 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil {
		return false
	}
	if u.Host == r.Host {
		return true
	}
	return slices.Contains(h.origins, origin)
}

// ServeHTTP attaches one client. Authentication must already have happened;
// the hub admits every request it is handed. It returns when the client
// detaches.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[ws] upgrade failed: %v", err)
		return
	}

	c := newConn(uuid.NewString(), ws)
	h.attach(c)
	defer h.detach(c)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go c.writePump()
	c.readPump(func(raw []byte) {
		h.router.Dispatch(ctx, c, raw)
	})
}

func (h *Hub) attach(c *Conn) {
	h.mu.Lock()
	h.conns[c.id] = c
	n := len(h.conns)
	h.mu.Unlock()
	h.wg.Add(1)

	metrics.WSConnections.Inc()
	log.Printf("[ws] client connected: %s (%d connected)", c.id, n)
}

func (h *Hub) detach(c *Conn) {
	defer h.wg.Done()

	c.Close()
	h.router.Detach(c.id)

	h.mu.Lock()
	delete(h.conns, c.id)
	n := len(h.conns)
	h.mu.Unlock()

	metrics.WSConnections.Dec()
	log.Printf("[ws] client disconnected: %s (%d connected)", c.id, n)
}

// Count returns the number of attached connections.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Shutdown closes every connection and waits for their cleanup to finish or
// ctx to expire.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	conns := make([]*Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	for _, c := range conns {
		c.Close()
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Package p2p provides the websocket transport between nodes. Every peer
// connection gets one goroutine reading messages in order, and writes to a
// connection are serialized.
package p2p

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/ardanlabs/mycoin/foundation/blockchain/peer"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Path is the route nodes accept peer connections on.
const Path = "/v1/node/p2p"

// HostHeader carries the private host of a dialing node so the accepting
// node can mark it as connected.
const HostHeader = "X-Node-Host"

// Set of timeouts used by the transport.
const (
	writeWait        = 10 * time.Second
	handshakeTimeout = 5 * time.Second
)

// DefaultMaxMessageSize is the largest message read from a peer when the
// config doesn't set one. It must hold the entire chain.
const DefaultMaxMessageSize = 64 << 20

// ErrShutdown is returned when a connection is requested after shutdown.
var ErrShutdown = errors.New("transport is shut down")

// Handler receives the traffic of the peer connections.
type Handler interface {
	OnPeerConnected(peerID string, send func(msg []byte) error)
	OnPeerMessage(peerID string, raw []byte)
	OnPeerDisconnected(peerID string)
}

// Tracker records which configured peers are connected.
type Tracker interface {
	PeerConnected(peer peer.Peer, connectionID string)
	PeerDisconnected(connectionID string)
}

// Config represents the values required to construct the transport.
type Config struct {
	Host           string
	Handler        Handler
	Tracker        Tracker
	MaxMessageSize int64
	EvHandler      func(v string, args ...any)
}

// Transport manages the websocket connections to the peers.
type Transport struct {
	host      string
	handler   Handler
	tracker   Tracker
	evHandler func(v string, args ...any)
	maxSize   int64
	upgrader  websocket.Upgrader
	dialer    websocket.Dialer

	wg    sync.WaitGroup
	mu    sync.Mutex
	conns map[string]*conn
	shut  bool
}

// New constructs a transport for the node listening on the specified host.
func New(cfg Config) *Transport {
	ev := func(v string, args ...any) {
		if cfg.EvHandler != nil {
			cfg.EvHandler(v, args...)
		}
	}

	maxSize := cfg.MaxMessageSize
	if maxSize <= 0 {
		maxSize = DefaultMaxMessageSize
	}

	return &Transport{
		host:      cfg.Host,
		maxSize:   maxSize,
		handler:   cfg.Handler,
		tracker:   cfg.Tracker,
		evHandler: ev,
		upgrader: websocket.Upgrader{
			HandshakeTimeout: handshakeTimeout,
		},
		dialer: websocket.Dialer{
			HandshakeTimeout: handshakeTimeout,
		},
		conns: make(map[string]*conn),
	}
}

// Accept upgrades an incoming request to a peer connection. The connection
// is served on its own goroutine once the upgrade succeeds.
func (t *Transport) Accept(w http.ResponseWriter, r *http.Request) error {
	ws, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return fmt.Errorf("upgrading connection: %w", err)
	}

	host := r.Header.Get(HostHeader)

	t.evHandler("p2p: Accept: remote[%s]: host[%s]", r.RemoteAddr, host)

	return t.serve(ws, host)
}

// Dial opens a connection to the peer at the specified host. The connection
// is served on its own goroutine once the handshake succeeds.
func (t *Transport) Dial(ctx context.Context, host string) error {
	header := http.Header{}
	if t.host != "" {
		header.Set(HostHeader, t.host)
	}

	url := fmt.Sprintf("ws://%s%s", host, Path)

	ws, resp, err := t.dialer.DialContext(ctx, url, header)
	if err != nil {
		return fmt.Errorf("dialing %s: %w", url, err)
	}
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}

	t.evHandler("p2p: Dial: host[%s]: connected", host)

	return t.serve(ws, host)
}

// Shutdown closes every connection and waits for the reading goroutines to
// complete.
func (t *Transport) Shutdown() {
	t.mu.Lock()
	t.shut = true
	for _, c := range t.conns {
		c.ws.Close()
	}
	t.mu.Unlock()

	t.wg.Wait()
}

// Connections returns the number of open connections.
func (t *Transport) Connections() int {
	t.mu.Lock()
	defer t.mu.Unlock()

	return len(t.conns)
}

// =============================================================================

// serve registers the connection and starts its read loop.
func (t *Transport) serve(ws *websocket.Conn, host string) error {
	c := conn{
		id: uuid.NewString(),
		ws: ws,
	}

	t.mu.Lock()
	if t.shut {
		t.mu.Unlock()
		ws.Close()
		return ErrShutdown
	}
	t.conns[c.id] = &c
	t.wg.Add(1)
	t.mu.Unlock()

	// Deadlines left on the underlying connection by the http server must
	// not end the read loop.
	ws.SetReadDeadline(time.Time{})

	// A peer sending a larger message is disconnected.
	ws.SetReadLimit(t.maxSize)

	go func() {
		defer t.wg.Done()
		t.run(&c, host)
	}()

	return nil
}

// run reads the messages of one connection until it closes.
func (t *Transport) run(c *conn, host string) {
	t.evHandler("p2p: run: conn[%s]: G started", c.id)
	defer t.evHandler("p2p: run: conn[%s]: G completed", c.id)

	if host != "" && t.tracker != nil {
		t.tracker.PeerConnected(peer.New(host), c.id)
	}

	t.handler.OnPeerConnected(c.id, c.send)

	for {
		_, msg, err := c.ws.ReadMessage()
		if err != nil {
			t.evHandler("p2p: run: conn[%s]: closed: %s", c.id, err)
			break
		}

		t.handler.OnPeerMessage(c.id, msg)
	}

	t.handler.OnPeerDisconnected(c.id)

	if t.tracker != nil {
		t.tracker.PeerDisconnected(c.id)
	}

	t.mu.Lock()
	delete(t.conns, c.id)
	t.mu.Unlock()

	c.ws.Close()
}

// =============================================================================

// conn is one websocket connection to a peer.
type conn struct {
	id string
	ws *websocket.Conn
	mu sync.Mutex
}

// send writes one message to the peer. Only one writer is allowed at a time.
func (c *conn) send(msg []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.ws.SetWriteDeadline(time.Now().Add(writeWait))
	return c.ws.WriteMessage(websocket.TextMessage, msg)
}

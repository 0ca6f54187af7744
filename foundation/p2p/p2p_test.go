package p2p_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ardanlabs/mycoin/foundation/blockchain/peer"
	"github.com/ardanlabs/mycoin/foundation/p2p"
	"github.com/stretchr/testify/require"
)

// recorder captures the traffic delivered by the transport.
type recorder struct {
	mu        sync.Mutex
	sends     map[string]func([]byte) error
	messages  []string
	connected map[string]string
	closed    []string
	greeting  string
}

func newRecorder(greeting string) *recorder {
	return &recorder{
		sends:     make(map[string]func([]byte) error),
		connected: make(map[string]string),
		greeting:  greeting,
	}
}

func (r *recorder) OnPeerConnected(peerID string, send func(msg []byte) error) {
	r.mu.Lock()
	r.sends[peerID] = send
	r.mu.Unlock()

	if r.greeting != "" {
		send([]byte(r.greeting))
	}
}

func (r *recorder) OnPeerMessage(peerID string, raw []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.messages = append(r.messages, string(raw))
}

func (r *recorder) OnPeerDisconnected(peerID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = append(r.closed, peerID)
}

func (r *recorder) PeerConnected(p peer.Peer, connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.connected[connectionID] = p.Host
}

func (r *recorder) PeerDisconnected(connectionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.connected, connectionID)
}

func (r *recorder) snapshot() ([]string, map[string]string, int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	msgs := append([]string(nil), r.messages...)
	conns := make(map[string]string, len(r.connected))
	for k, v := range r.connected {
		conns[k] = v
	}
	return msgs, conns, len(r.closed)
}

func TestTransport(t *testing.T) {
	const wait = 5 * time.Second
	const tick = 10 * time.Millisecond

	server := newRecorder("hello from server")
	srvTransport := p2p.New(p2p.Config{Handler: server, Tracker: server})

	mux := http.NewServeMux()
	mux.HandleFunc(p2p.Path, func(w http.ResponseWriter, r *http.Request) {
		if err := srvTransport.Accept(w, r); err != nil {
			t.Logf("accept: %s", err)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	host := strings.TrimPrefix(srv.URL, "http://")

	client := newRecorder("hello from client")
	cltTransport := p2p.New(p2p.Config{Host: "localhost:9180", Handler: client, Tracker: client})

	require.NoError(t, cltTransport.Dial(context.Background(), host))

	// Both sides greet each other on connect.
	require.Eventually(t, func() bool {
		msgs, _, _ := client.snapshot()
		return len(msgs) == 1
	}, wait, tick)
	require.Eventually(t, func() bool {
		msgs, _, _ := server.snapshot()
		return len(msgs) == 1
	}, wait, tick)

	msgs, conns, _ := client.snapshot()
	require.Equal(t, []string{"hello from server"}, msgs)
	require.Len(t, conns, 1)
	for _, h := range conns {
		require.Equal(t, host, h)
	}

	// The server learns the dialer's host from the handshake header.
	msgs, conns, _ = server.snapshot()
	require.Equal(t, []string{"hello from client"}, msgs)
	for _, h := range conns {
		require.Equal(t, "localhost:9180", h)
	}

	// Messages sent over one connection arrive in order.
	server.mu.Lock()
	var send func([]byte) error
	for _, s := range server.sends {
		send = s
	}
	server.mu.Unlock()

	for _, m := range []string{"1", "2", "3"} {
		require.NoError(t, send([]byte(m)))
	}
	require.Eventually(t, func() bool {
		msgs, _, _ := client.snapshot()
		return len(msgs) == 4
	}, wait, tick)
	msgs, _, _ = client.snapshot()
	require.Equal(t, []string{"hello from server", "1", "2", "3"}, msgs)

	// Closing one side disconnects both.
	cltTransport.Shutdown()
	require.Equal(t, 0, cltTransport.Connections())

	require.Eventually(t, func() bool {
		_, conns, closed := server.snapshot()
		return len(conns) == 0 && closed == 1
	}, wait, tick)

	require.ErrorIs(t, cltTransport.Dial(context.Background(), host), p2p.ErrShutdown)
	srvTransport.Shutdown()
}

func TestReadLimit(t *testing.T) {
	const wait = 5 * time.Second
	const tick = 10 * time.Millisecond

	server := newRecorder("")
	srvTransport := p2p.New(p2p.Config{Handler: server, Tracker: server, MaxMessageSize: 16})
	defer srvTransport.Shutdown()

	mux := http.NewServeMux()
	mux.HandleFunc(p2p.Path, func(w http.ResponseWriter, r *http.Request) {
		if err := srvTransport.Accept(w, r); err != nil {
			t.Logf("accept: %s", err)
		}
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	client := newRecorder("")
	cltTransport := p2p.New(p2p.Config{Handler: client})
	defer cltTransport.Shutdown()

	require.NoError(t, cltTransport.Dial(context.Background(), strings.TrimPrefix(srv.URL, "http://")))
	require.Eventually(t, func() bool {
		client.mu.Lock()
		defer client.mu.Unlock()
		return srvTransport.Connections() == 1 && len(client.sends) == 1
	}, wait, tick)

	client.mu.Lock()
	var send func([]byte) error
	for _, s := range client.sends {
		send = s
	}
	client.mu.Unlock()

	// A message within the limit is delivered.
	require.NoError(t, send([]byte("small")))
	require.Eventually(t, func() bool {
		msgs, _, _ := server.snapshot()
		return len(msgs) == 1
	}, wait, tick)

	// A message over the limit drops the connection without delivery.
	require.NoError(t, send([]byte(strings.Repeat("x", 64))))
	require.Eventually(t, func() bool {
		_, _, closed := server.snapshot()
		return closed == 1 && srvTransport.Connections() == 0
	}, wait, tick)

	msgs, _, _ := server.snapshot()
	require.Equal(t, []string{"small"}, msgs)
}

package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/sitemap-frontier/internal/broadcast"
	"github.com/JakeFAU/sitemap-frontier/internal/storage/memory"
)

type seqIDs struct{ n atomic.Int64 }

func (s *seqIDs) NewID() (string, error) {
	return fmt.Sprintf("conn-%d", s.n.Add(1)), nil
}

type recordingRegistrar struct {
	mu           sync.Mutex
	registered   []string
	unregistered []string
}

func (r *recordingRegistrar) Register(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registered = append(r.registered, id)
	return nil
}

func (r *recordingRegistrar) Unregister(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unregistered = append(r.unregistered, id)
	return nil
}

func (r *recordingRegistrar) snapshot() ([]string, []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.registered...), append([]string(nil), r.unregistered...)
}

func dialHub(t *testing.T, hub *Hub, reg Registrar) (*websocket.Conn, func()) {
	t.Helper()
	srv := httptest.NewServer(hub.Handler(reg))
	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, func() {
		_ = conn.Close()
		srv.Close()
	}
}

func TestHubRegistersAndDelivers(t *testing.T) {
	t.Parallel()

	hub := NewHub(&seqIDs{}, nil, nil)
	reg := &recordingRegistrar{}
	conn, cleanup := dialHub(t, hub, reg)
	defer cleanup()

	require.Eventually(t, func() bool {
		registered, _ := reg.snapshot()
		return len(registered) == 1
	}, 2*time.Second, 10*time.Millisecond)
	registered, _ := reg.snapshot()
	id := registered[0]
	require.Equal(t, 1, hub.Len())

	payload := []byte(`{"type":"sitemap_update","website_domain":"site.com","data":{},"timestamp":1}`)
	require.NoError(t, hub.Post(context.Background(), id, payload))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, got, err := conn.ReadMessage()
	require.NoError(t, err)
	require.JSONEq(t, string(payload), string(got))
}

func TestHubEchoesStatus(t *testing.T) {
	t.Parallel()

	at := time.Unix(1700000000, 0)
	hub := NewHub(&seqIDs{}, fixedClock{at}, nil)
	conn, cleanup := dialHub(t, hub, &recordingRegistrar{})
	defer cleanup()

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"hello"}`)))
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, got, err := conn.ReadMessage()
	require.NoError(t, err)

	var msg StatusMessage
	require.NoError(t, json.Unmarshal(got, &msg))
	require.Equal(t, "status", msg.Type)
	require.Equal(t, "Message received", msg.Message)
	require.Equal(t, int64(1700000000), msg.Timestamp)
	require.Equal(t, "conn-1", msg.ConnectionID)
}

func TestHubUnregistersOnClose(t *testing.T) {
	t.Parallel()

	hub := NewHub(&seqIDs{}, nil, nil)
	reg := &recordingRegistrar{}
	conn, cleanup := dialHub(t, hub, reg)
	defer cleanup()

	require.Eventually(t, func() bool { return hub.Len() == 1 }, 2*time.Second, 10*time.Millisecond)
	require.NoError(t, conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye")))
	_ = conn.Close()

	require.Eventually(t, func() bool {
		_, unregistered := reg.snapshot()
		return len(unregistered) == 1
	}, 2*time.Second, 10*time.Millisecond)
	require.Equal(t, 0, hub.Len())

	err := hub.Post(context.Background(), "conn-1", []byte("{}"))
	require.ErrorIs(t, err, broadcast.ErrNotHeld)
}

func TestHubPostUnknownConnection(t *testing.T) {
	t.Parallel()

	hub := NewHub(&seqIDs{}, nil, nil)
	err := hub.Post(context.Background(), "missing", []byte("{}"))
	require.ErrorIs(t, err, broadcast.ErrNotHeld)
	require.NotErrorIs(t, err, broadcast.ErrGone)
}

func TestHubPostClosingConnectionIsGone(t *testing.T) {
	t.Parallel()

	hub := NewHub(&seqIDs{}, nil, nil)
	c := &client{id: "conn-1", send: make(chan []byte, sendBuffer), done: make(chan struct{})}
	hub.mu.Lock()
	hub.clients[c.id] = c
	hub.mu.Unlock()
	c.close()

	for range 100 {
		err := hub.Post(context.Background(), c.id, []byte("{}"))
		require.ErrorIs(t, err, broadcast.ErrGone)
	}
	require.Empty(t, c.send)
}

func TestGatewayKeepsConnectionHeldByAnotherProcess(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg := memory.NewConnectionRegistry()
	serveHub := NewHub(&seqIDs{}, nil, nil)
	serveGW := broadcast.NewGateway(reg, serveHub, broadcast.Config{}, nil, nil)
	workGW := broadcast.NewGateway(reg, NewHub(&seqIDs{}, nil, nil), broadcast.Config{}, nil, nil)

	conn, cleanup := dialHub(t, serveHub, serveGW)
	defer cleanup()
	require.Eventually(t, func() bool {
		conns, err := reg.List(ctx)
		return err == nil && len(conns) == 1
	}, 2*time.Second, 10*time.Millisecond)

	res, err := workGW.Broadcast(ctx, broadcast.Event{Domain: "site.com"})
	require.NoError(t, err)
	require.Equal(t, broadcast.Result{}, res)
	conns, err := reg.List(ctx)
	require.NoError(t, err)
	require.Len(t, conns, 1)

	res, err = serveGW.Broadcast(ctx, broadcast.Event{Domain: "site.com"})
	require.NoError(t, err)
	require.Equal(t, 1, res.Delivered)
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, got, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Contains(t, string(got), `"website_domain":"site.com"`)
}

type fixedClock struct{ t time.Time }

func (c fixedClock) Now() time.Time { return c.t }

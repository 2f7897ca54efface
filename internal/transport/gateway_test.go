package transport

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/caelmor/world/internal/config"
	"github.com/caelmor/world/internal/core"
	"github.com/caelmor/world/internal/diag"
	"github.com/caelmor/world/internal/ingress"
	"github.com/caelmor/world/internal/pool"
	"github.com/caelmor/world/internal/replication"
)

type fixedTick core.Tick

func (f fixedTick) CurrentTick() core.Tick { return core.Tick(f) }

type gatewayFixture struct {
	sessions *core.SessionTable
	inbound  *ingress.Ingress
	outbound *replication.OutboundQueue
	buffers  *pool.BufferPool
	server   *httptest.Server
}

func newGatewayFixture(t *testing.T) *gatewayFixture {
	t.Helper()
	counters := &diag.PipelineCounters{}
	f := &gatewayFixture{
		sessions: core.NewSessionTable(),
		buffers:  pool.NewBufferPool(256),
	}
	f.inbound = ingress.New(f.sessions, 16, 1<<16, counters, nil)
	f.outbound = replication.NewOutboundQueue(8, 1<<20, counters, nil)
	f.sessions.OnDetach(f.inbound.RemoveSession)
	f.sessions.OnDetach(f.outbound.RemoveSession)

	gw := NewGateway(f.sessions, f.inbound, f.outbound, f.buffers, fixedTick(5),
		config.Default().Transport, nil)
	f.server = httptest.NewServer(http.HandlerFunc(gw.HandleWS))
	t.Cleanup(f.server.Close)
	return f
}

func (f *gatewayFixture) dial(t *testing.T, player string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(f.server.URL, "http") + "?player=" + player
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestGatewayRejectsMissingPlayer(t *testing.T) {
	f := newGatewayFixture(t)

	resp, err := http.Get(f.server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGatewayAttachesSessionAndFeedsIngress(t *testing.T) {
	f := newGatewayFixture(t)
	conn := f.dial(t, "p1")

	require.Eventually(t, func() bool {
		return len(f.sessions.SnapshotSessionsDeterministic()) == 1
	}, time.Second, 5*time.Millisecond)
	session := f.sessions.SnapshotSessionsDeterministic()[0]

	require.NoError(t, conn.WriteMessage(websocket.TextMessage,
		[]byte(`{"type":"movement","data":{"dx":1}}`)))

	require.Eventually(t, func() bool {
		return f.inbound.QueuedCommands(session) == 1
	}, time.Second, 5*time.Millisecond)
}

func TestGatewayDeliversOutboundSnapshots(t *testing.T) {
	f := newGatewayFixture(t)
	conn := f.dial(t, "p1")

	require.Eventually(t, func() bool {
		return len(f.sessions.SnapshotSessionsDeterministic()) == 1
	}, time.Second, 5*time.Millisecond)
	session := f.sessions.SnapshotSessionsDeterministic()[0]

	payload := []byte{9, 9, 9, 9}
	f.outbound.Enqueue(session, &replication.SerializedSnapshot{
		Session: session,
		Tick:    5,
		Lease:   f.buffers.RentCopy(payload),
	})

	conn.SetReadDeadline(time.Now().Add(time.Second))
	kind, data, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, websocket.BinaryMessage, kind)
	assert.Equal(t, payload, data)
}

func TestGatewayDetachesOnClose(t *testing.T) {
	f := newGatewayFixture(t)
	conn := f.dial(t, "p1")

	require.Eventually(t, func() bool {
		return len(f.sessions.SnapshotSessionsDeterministic()) == 1
	}, time.Second, 5*time.Millisecond)

	conn.Close()
	require.Eventually(t, func() bool {
		return len(f.sessions.SnapshotSessionsDeterministic()) == 0
	}, time.Second, 5*time.Millisecond)
}

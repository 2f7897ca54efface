// Package transport is the websocket gateway at the edge of the core: its
// read side feeds the authoritative command ingress, its write side consumes
// the bounded outbound snapshot queue. Session onboarding beyond the upgrade
// itself lives elsewhere.
package transport

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/caelmor/world/internal/breaker"
	"github.com/caelmor/world/internal/config"
	"github.com/caelmor/world/internal/core"
	"github.com/caelmor/world/internal/ids"
	"github.com/caelmor/world/internal/ingress"
	"github.com/caelmor/world/internal/pool"
	"github.com/caelmor/world/internal/replication"
)

// inboundFrame is the client command envelope.
type inboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// TickView answers the current authoritative tick for stamping submissions.
type TickView interface {
	CurrentTick() core.Tick
}

// Gateway upgrades client connections and bridges them to the core queues.
type Gateway struct {
	upgrader websocket.Upgrader
	sessions *core.SessionTable
	ingress  *ingress.Ingress
	outbound *replication.OutboundQueue
	buffers  *pool.BufferPool
	ticks    TickView
	cfg      config.TransportConfig
	logger   *zap.Logger
}

// NewGateway wires the gateway. Origin policy: with an allowlist configured
// only listed origins connect; otherwise all origins are admitted (dev).
func NewGateway(
	sessions *core.SessionTable,
	in *ingress.Ingress,
	outbound *replication.OutboundQueue,
	buffers *pool.BufferPool,
	ticks TickView,
	cfg config.TransportConfig,
	logger *zap.Logger,
) *Gateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	allowed := make(map[string]bool, len(cfg.AllowedOrigins))
	for _, origin := range cfg.AllowedOrigins {
		allowed[origin] = true
	}
	return &Gateway{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowed) == 0 {
					return true
				}
				return allowed[r.Header.Get("Origin")]
			},
		},
		sessions: sessions,
		ingress:  in,
		outbound: outbound,
		buffers:  buffers,
		ticks:    ticks,
		cfg:      cfg,
		logger:   logger.Named("gateway"),
	}
}

// HandleWS is the websocket entry point. The player id is read from the
// `player` query parameter; no handshake or authentication step runs first.
func (g *Gateway) HandleWS(w http.ResponseWriter, r *http.Request) {
	player := ids.PlayerId(r.URL.Query().Get("player"))
	if !player.Valid() {
		http.Error(w, "missing player", http.StatusBadRequest)
		return
	}
	ws, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		g.logger.Warn("upgrade failed", zap.Error(err))
		return
	}

	session := g.sessions.Attach(player)
	g.sessions.SetSnapshotEligible(session, true)
	g.logger.Info("session attached",
		zap.String("session", string(session)),
		zap.String("player", string(player)))

	conn := &clientConn{
		gateway: g,
		session: session,
		ws:      ws,
		breaker: breaker.New(breaker.Config{
			MaxFails: g.cfg.BreakerMaxFails,
			OpenFor:  time.Duration(g.cfg.BreakerOpenMs) * time.Millisecond,
		}),
		done: make(chan struct{}),
	}
	go conn.writePump()
	conn.readPump()
}

type clientConn struct {
	gateway *Gateway
	session ids.SessionId
	ws      *websocket.Conn
	breaker *breaker.Breaker
	done    chan struct{}
}

func (c *clientConn) close() {
	select {
	case <-c.done:
		return
	default:
		close(c.done)
	}
	c.ws.Close()
	c.gateway.sessions.Detach(c.session)
	c.gateway.logger.Info("session detached", zap.String("session", string(c.session)))
}

// readPump feeds inbound frames into the command ingress. Backpressure
// rejections are dropped silently here; the ingress already counted them.
func (c *clientConn) readPump() {
	defer c.close()
	if c.gateway.cfg.ReadLimitBytes > 0 {
		c.ws.SetReadLimit(c.gateway.cfg.ReadLimitBytes)
	}

	for {
		_, raw, err := c.ws.ReadMessage()
		if err != nil {
			return
		}
		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			c.gateway.logger.Debug("malformed frame",
				zap.String("session", string(c.session)), zap.Error(err))
			continue
		}
		lease := c.gateway.buffers.RentCopy(frame.Data)
		_, err = c.gateway.ingress.TryEnqueue(
			c.session, lease, ingress.CommandType(frame.Type), c.gateway.ticks.CurrentTick())
		if err != nil {
			c.gateway.logger.Debug("command rejected",
				zap.String("session", string(c.session)), zap.Error(err))
		}
	}
}

// writePump consumes the outbound snapshot queue for this session. The
// breaker fails sends fast while the peer is misbehaving; either way the
// lease is released here, after the send attempt.
func (c *clientConn) writePump() {
	poll := time.NewTicker(10 * time.Millisecond)
	ping := time.NewTicker(time.Duration(c.gateway.cfg.PingIntervalSec) * time.Second)
	defer poll.Stop()
	defer ping.Stop()
	defer c.close()

	writeTimeout := time.Duration(c.gateway.cfg.WriteTimeoutMs) * time.Millisecond

	for {
		select {
		case <-c.done:
			return
		case <-ping.C:
			c.ws.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := c.ws.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-poll.C:
			for {
				snap := c.gateway.outbound.Dequeue(c.session)
				if snap == nil {
					break
				}
				c.trySend(snap)
			}
		}
	}
}

// trySend attempts one snapshot send and releases the lease regardless of
// outcome.
func (c *clientConn) trySend(snap *replication.SerializedSnapshot) bool {
	defer snap.Release()

	if c.breaker.Allow() != nil {
		return false
	}
	c.ws.SetWriteDeadline(time.Now().Add(time.Duration(c.gateway.cfg.WriteTimeoutMs) * time.Millisecond))
	err := c.ws.WriteMessage(websocket.BinaryMessage, snap.Bytes())
	c.breaker.Record(err == nil)
	return err == nil
}

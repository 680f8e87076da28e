// Package signal accepts inbound WebSocket peers on the relay host and
// routes their frames like any other chat connection.
package signal

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
	"github.com/sourcegraph/conc"

	"github.com/dkeye/Relay/internal/app/orch"
	"github.com/dkeye/Relay/internal/config"
	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

type SignalWSController struct {
	Orch *orch.Orchestrator
	conn config.ConnConfig
}

func NewSignalWSController(o *orch.Orchestrator, conn config.ConnConfig) *SignalWSController {
	return &SignalWSController{
		Orch: o,
		conn: conn,
	}
}

// WsPeerConn is the server side of one accepted peer. It is the core.Sender
// the peers table delivers through.
type WsPeerConn struct {
	conn *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func (c *WsPeerConn) Send(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return domain.ErrNotConnected
	}
	select {
	case c.send <- f:
	default:
		return domain.ErrBackpressure
	}
	return nil
}

func (c *WsPeerConn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.conn.Close()
	c.mu.Unlock()
}

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleSignal upgrades the request and serves the peer until it goes away
// or ctx is canceled.
func (ctl *SignalWSController) HandleSignal(ctx context.Context, c *gin.Context) {
	token := domain.MemberRef(c.GetString("client_token"))
	log.Info().Str("module", "signal").Str("token", string(token)).Msg("new WS connection")

	ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Msg("ws upgrade")
		return
	}

	queue := ctl.conn.SendQueue
	if queue <= 0 {
		queue = 64
	}
	conn := &WsPeerConn{
		conn: ws,
		send: make(chan core.Frame, queue),
	}
	if ctl.conn.ReadLimit > 0 {
		ws.SetReadLimit(ctl.conn.ReadLimit)
	}
	if ctl.conn.Greeting != "" {
		_ = conn.Send(core.Frame(ctl.conn.Greeting))
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	// a second tab with the same cookie gets its own identity
	ref := ctl.Orch.AttachUnique(token, conn, cancel)
	log.Info().Str("module", "signal").Str("member", string(ref)).Msg("peer attached")
	stop := context.AfterFunc(ctx, func() {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "")
		_ = ws.WriteControl(websocket.CloseMessage, msg, time.Now().Add(ctl.conn.WriteWait))
		_ = ws.Close()
	})
	defer stop()

	var wg conc.WaitGroup
	wg.Go(func() { ctl.writePump(ctx, conn) })
	wg.Go(func() { ctl.readPump(ctx, ref, conn, cancel) })
	wg.Wait()
	log.Info().Str("module", "signal").Str("member", string(ref)).Msg("WS connection finished")
}

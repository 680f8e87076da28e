package signal

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/core"
	"github.com/dkeye/Relay/internal/domain"
)

func (ctl *SignalWSController) writePump(ctx context.Context, c *WsPeerConn) {
	var tick <-chan time.Time
	if ctl.conn.PingPeriod > 0 {
		ticker := time.NewTicker(ctl.conn.PingPeriod)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.conn.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				_ = c.conn.Close()
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				_ = c.conn.Close()
				return
			}
		case <-tick:
			_ = c.conn.SetWriteDeadline(time.Now().Add(ctl.conn.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump ping error")
				_ = c.conn.Close()
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, ref domain.MemberRef, c *WsPeerConn, cancel context.CancelFunc) {
	defer func() {
		log.Info().Str("module", "signal").Str("member", string(ref)).Msg("readPump closing")
		ctl.Orch.Detach(ref)
		cancel()
		c.Close()
	}()

	if ctl.conn.PongWait > 0 {
		_ = c.conn.SetReadDeadline(time.Now().Add(ctl.conn.PongWait))
		c.conn.SetPongHandler(func(string) error {
			return c.conn.SetReadDeadline(time.Now().Add(ctl.conn.PongWait))
		})
	}

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Error().Err(err).Str("module", "signal").Str("member", string(ref)).Msg("readPump read error")
			}
			return
		}
		if ctl.conn.PongWait > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(ctl.conn.PongWait))
		}
		if kind != websocket.TextMessage {
			continue
		}
		ctl.handleSignal(ref, c, data)
	}
}

func (ctl *SignalWSController) handleSignal(ref domain.MemberRef, c *WsPeerConn, data []byte) {
	out := ctl.Orch.OnFrame(ref, core.Frame(data))
	if out.Reply == nil {
		return
	}
	if err := c.Send(out.Reply); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("member", string(ref)).Msg("reply dropped")
	}
}

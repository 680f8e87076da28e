package ws

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/Relay/internal/core"
)

func (c *Connection) configure(conn *websocket.Conn) {
	if c.opts.ReadLimit > 0 {
		conn.SetReadLimit(c.opts.ReadLimit)
	}
	if c.opts.PongWait > 0 {
		_ = conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		})
	}
}

func (c *Connection) writePump(ctx context.Context) {
	var tick <-chan time.Time
	if c.opts.PingPeriod > 0 {
		ticker := time.NewTicker(c.opts.PingPeriod)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			return
		case data := <-c.send:
			if err := c.write(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump write error")
				c.fail(err)
				return
			}
		case <-tick:
			if err := c.write(websocket.PingMessage, nil); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump ping error")
				c.fail(err)
				return
			}
		}
	}
}

func (c *Connection) write(kind int, data []byte) error {
	if err := c.conn.SetWriteDeadline(time.Now().Add(c.opts.WriteWait)); err != nil {
		return err
	}
	return c.conn.WriteMessage(kind, data)
}

func (c *Connection) readPump(ctx context.Context) {
	c.mu.Lock()
	handler := c.handler
	c.mu.Unlock()

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if ctx.Err() == nil {
				c.fail(closeCause(err))
			} else {
				_ = c.conn.Close()
			}
			return
		}
		if c.opts.PongWait > 0 {
			_ = c.conn.SetReadDeadline(time.Now().Add(c.opts.PongWait))
		}
		if kind != websocket.TextMessage {
			log.Debug().Str("module", "ws").Int("kind", kind).Msg("ignoring non-text frame")
			continue
		}
		// after Disconnect nothing more reaches the handler
		if c.State() != StateOpen {
			continue
		}
		if handler != nil {
			handler(core.Frame(data))
		}
	}
}

// closeCause maps a read error to what Err reports: nil for an orderly
// close by the peer.
func closeCause(err error) error {
	var ce *websocket.CloseError
	if errors.As(err, &ce) && (ce.Code == websocket.CloseNormalClosure || ce.Code == websocket.CloseGoingAway) {
		return nil
	}
	return err
}

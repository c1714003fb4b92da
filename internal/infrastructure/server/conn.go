// ABOUTME: Per-connection reader and writer goroutines
// ABOUTME: Readers feed frames to the main loop, writers drain the fan-out queue
package server

import (
	"errors"
	"io"
	"net"
	"time"

	"github.com/harper/radiod/internal/application/fanout"
	"github.com/harper/radiod/internal/infrastructure/wire"
)

type conn struct {
	id     string
	nc     net.Conn
	sub    *fanout.Subscriber
	server *Server
}

// readLoop turns each frame into one queued command. EOF (the peer's
// zero-length read) and transport errors close the connection.
func (c *conn) readLoop() {
	defer c.server.wg.Done()

	for {
		body, err := wire.ReadFrame(c.nc)
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = errors.New("peer closed")
			}
			c.server.post(event{kind: evClose, id: c.id, err: err})
			return
		}

		ev := event{kind: evCommand, id: c.id, item: decode(c.id, body)}
		if !c.server.post(ev) {
			return
		}
	}
}

// writeLoop sends queued notifications oldest-first. The first send error
// closes the connection; nothing is retried.
func (c *conn) writeLoop() {
	defer c.server.wg.Done()

	for {
		select {
		case <-c.sub.Done():
			return
		case <-c.server.done:
			return
		case <-c.sub.Ready():
		}

		for {
			n, ok := c.sub.Next()
			if !ok {
				break
			}

			c.nc.SetWriteDeadline(time.Now().Add(c.server.cfg.WriteTimeout))
			if err := wire.WriteMessage(c.nc, wire.FromNotification(n)); err != nil {
				c.server.post(event{kind: evClose, id: c.id, err: err})
				return
			}
		}
	}
}

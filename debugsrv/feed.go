package debugsrv

import (
	"encoding/json"
	"io"
	"time"

	"golang.org/x/net/websocket"

	"github.com/lguibr/actorkernel/klog"
)

// handleFeed implements /feed: a broadcast-only socket pushing a
// statusView every broadcastPeriod until the client disconnects,
// grounded on server.go's readLoop pattern but inverted — the teacher's
// sockets read client frames and dispatch them to an actor; a debug
// feed has nothing for a client to say, so this loop only writes, and
// treats any client read returning io.EOF as the disconnect signal the
// teacher's readLoop already uses.
func (s *Server) handleFeed(ws *websocket.Conn) {
	s.openConnection(ws)
	defer s.closeConnection(ws)

	disconnected := make(chan struct{})
	go func() {
		defer close(disconnected)
		buf := make([]byte, 64)
		for {
			if _, err := ws.Read(buf); err != nil {
				if err != io.EOF {
					klog.Warnf("debugsrv: feed read error on %s: %v", ws.RemoteAddr(), err)
				}
				return
			}
		}
	}()

	ticker := time.NewTicker(s.broadcastPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-disconnected:
			return
		case <-ticker.C:
			payload, err := json.Marshal(s.statusSnapshot())
			if err != nil {
				klog.Errorf("debugsrv: marshal feed snapshot: %v", err)
				continue
			}
			if _, err := ws.Write(payload); err != nil {
				return
			}
		}
	}
}

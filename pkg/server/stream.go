package server

import (
	"net/http"
	"time"

	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"

	"github.com/voluzi/procview/pkg/api"
	"github.com/voluzi/procview/pkg/sysinfo"
)

const (
	writeWait      = 10 * time.Second
	maxMessageSize = 512
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 16 << 10,
}

// stream upgrades to a WebSocket and pushes snapshots as they are published.
func (s *Server) stream(w http.ResponseWriter, r *http.Request) {
	since, hasSince, err := parseSeq(r, "since")
	if err != nil {
		http.Error(w, "invalid since: "+err.Error(), http.StatusBadRequest)
		return
	}

	sub, err := s.publisher.Subscribe()
	if err != nil {
		http.Error(w, "server is shutting down", http.StatusServiceUnavailable)
		return
	}
	defer sub.Close()

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade already replied to the client.
		log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	logger := log.WithFields(log.Fields{
		"subscriber": sub.ID(),
		"remote":     r.RemoteAddr,
	})
	logger.Debug("stream opened")

	// The reader only exists to notice the client going away and to process
	// control frames.
	gone := make(chan struct{})
	conn.SetReadLimit(maxMessageSize)
	go func() {
		defer close(gone)
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()

	var lastSeq uint64
	if hasSince {
		res := s.store.History(since)
		if res.Gap {
			if err := writeMessage(conn, api.StreamMessage{Type: api.MessageGap, Missed: res.Missed}); err != nil {
				logger.WithError(err).Debug("stream write failed")
				return
			}
		}
		for _, snap := range res.Snapshots {
			if err := writeSnapshot(conn, snap); err != nil {
				logger.WithError(err).Debug("stream write failed")
				return
			}
			lastSeq = snap.Seq
		}
	}

	ping := time.NewTicker(s.cfg.StreamIdleTimeout / 2)
	defer ping.Stop()
	idle := time.NewTimer(s.cfg.StreamIdleTimeout)
	defer idle.Stop()

	for {
		select {
		case <-gone:
			logger.Debug("stream closed by client")
			return

		case <-ping.C:
			// An open stream counts as activity.
			s.sampler.Touch()
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				logger.WithError(err).Debug("stream ping failed")
				return
			}

		case <-idle.C:
			logger.Info("closing idle stream")
			closeStream(conn, websocket.CloseGoingAway, "idle timeout")
			return

		case snap, ok := <-sub.C():
			if !ok {
				if s.closing.Load() {
					closeStream(conn, websocket.CloseNormalClosure, "server shutting down")
				} else {
					closeStream(conn, websocket.CloseTryAgainLater, "subscriber stopped consuming")
				}
				return
			}
			if snap.Seq <= lastSeq {
				continue
			}
			if dropped := sub.TakeDropped(); dropped > 0 {
				if err := writeMessage(conn, api.StreamMessage{Type: api.MessageLagging, Dropped: dropped}); err != nil {
					logger.WithError(err).Debug("stream write failed")
					return
				}
			}
			if err := writeSnapshot(conn, snap); err != nil {
				logger.WithError(err).Debug("stream write failed")
				return
			}
			lastSeq = snap.Seq

			if !idle.Stop() {
				select {
				case <-idle.C:
				default:
				}
			}
			idle.Reset(s.cfg.StreamIdleTimeout)
		}
	}
}

func writeSnapshot(conn *websocket.Conn, snap *sysinfo.Snapshot) error {
	return writeMessage(conn, api.StreamMessage{Type: api.MessageSnapshot, Snapshot: snap})
}

func writeMessage(conn *websocket.Conn, msg api.StreamMessage) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, b)
}

func closeStream(conn *websocket.Conn, code int, reason string) {
	msg := websocket.FormatCloseMessage(code, reason)
	if err := conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait)); err != nil {
		log.WithError(err).Debug("failed to send close frame")
	}
}

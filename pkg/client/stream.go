package client

import (
	"context"
	"strconv"
	"strings"

	"emperror.dev/errors"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"

	"github.com/voluzi/procview/pkg/api"
)

// ErrStreamEnded is returned by Stream.Next when the server closed the stream
// normally, which it does on shutdown.
const ErrStreamEnded = errors.Sentinel("stream ended")

// Stream is an open /api/stream connection.
type Stream struct {
	conn *websocket.Conn
}

// Stream opens a WebSocket stream. When since is non-nil, retained snapshots
// after it are replayed first.
func (c *Client) Stream(ctx context.Context, since *uint64) (*Stream, error) {
	u := "ws" + strings.TrimPrefix(c.url, "http") + "/api/stream"
	if since != nil {
		u += "?since=" + strconv.FormatUint(*since, 10)
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, errors.WrapIff(err, "dialing %s", u)
	}
	return &Stream{conn: conn}, nil
}

// Next blocks until the next message arrives.
func (s *Stream) Next() (api.StreamMessage, error) {
	var msg api.StreamMessage
	_, b, err := s.conn.ReadMessage()
	if err != nil {
		if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
			return msg, ErrStreamEnded
		}
		return msg, err
	}
	if err := json.Unmarshal(b, &msg); err != nil {
		return msg, errors.WrapIf(err, "decoding stream message")
	}
	return msg, nil
}

func (s *Stream) Close() error {
	return s.conn.Close()
}

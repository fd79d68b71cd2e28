package events

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
)

const writeTimeout = 5 * time.Second

// ServeStream upgrades the request to a websocket and streams studentID's
// events until the client goes away or the subscriber is dropped.
func ServeStream(w http.ResponseWriter, r *http.Request, hub *Hub, studentID string, originPatterns []string) {
	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: originPatterns})
	if err != nil {
		slog.Warn("websocket accept failed", "student_id", studentID, "error", err)
		return
	}
	defer conn.CloseNow()

	events, cancel := hub.Subscribe(studentID)
	defer cancel()

	// The stream is one-way; CloseRead handles control frames and cancels
	// ctx when the peer disconnects.
	ctx := conn.CloseRead(r.Context())

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				conn.Close(websocket.StatusTryAgainLater, "subscriber too slow")
				return
			}
			if err := write(ctx, conn, e); err != nil {
				if !errors.Is(err, context.Canceled) {
					slog.Debug("websocket write failed", "student_id", studentID, "error", err)
				}
				return
			}
		}
	}
}

func write(ctx context.Context, conn *websocket.Conn, e Event) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, conn, e)
}

package web

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"golang.org/x/net/websocket"

	"github.com/local/inkcost/internal/progress"
)

const wsWriteTimeout = 5 * time.Second

// progressStream pushes a job's progress events over a websocket until the
// job finishes or the client goes away. The last known event is replayed
// first so late subscribers catch up.
func (w *Web) progressStream() websocket.Server {
	return websocket.Server{Handler: func(ws *websocket.Conn) {
		defer ws.Close()
		jobID := ws.Request().PathValue("job")

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			// any read result means the client closed or misbehaved
			var discard string
			_ = websocket.Message.Receive(ws, &discard)
			cancel()
		}()

		events, unsubscribe := w.deps.Broker.Subscribe(ctx, jobID)
		defer unsubscribe()

		// progress only grows; anything at or below what was sent is a replay
		sent := -1
		if ev, ok := w.deps.Broker.Last(ctx, jobID); ok {
			if !send(ws, ev) || ev.Done {
				return
			}
			sent = ev.Progress
		}
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				if !ev.Done && ev.Progress <= sent {
					continue
				}
				if !send(ws, ev) || ev.Done {
					return
				}
				sent = ev.Progress
			}
		}
	}}
}

func send(ws *websocket.Conn, ev progress.Event) bool {
	_ = ws.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
	if err := websocket.JSON.Send(ws, ev); err != nil {
		log.Debug().Err(err).Str("job_id", ev.JobID).Msg("progress websocket closed")
		return false
	}
	return true
}

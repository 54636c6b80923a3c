package gateway

import (
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// handleSSE announces the synchronous endpoint and then keeps the stream
// open with comment heartbeats. No tool results travel on this stream.
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	rc := http.NewResponseController(w)
	// Long-lived stream: lift the server write timeout for this response.
	_ = rc.SetWriteDeadline(time.Time{})

	w.WriteHeader(http.StatusOK)
	if _, err := fmt.Fprint(w, "event: endpoint\ndata: /mcp\n\n"); err != nil {
		return
	}
	if err := rc.Flush(); err != nil {
		s.logger.Warn("sse: streaming unsupported", zap.Error(err))
		return
	}

	ticker := time.NewTicker(s.opts.Heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

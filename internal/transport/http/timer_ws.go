package http

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"quiz-attempt-service/internal/domain"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

type timerEvent struct {
	Type             string        `json:"type"`
	Status           domain.Status `json:"status"`
	RemainingSeconds int           `json:"remaining_seconds"`
}

// serveTimer streams the live countdown for one in-progress attempt over
// a websocket: one tick per second, then a final event when the attempt
// turns terminal (reads go through the service, so an expired attempt is
// finalized as timed_out right here).
func (h *Handler) serveTimer(w http.ResponseWriter, r *http.Request) {
	attemptID := r.PathValue("id")

	detail, err := h.service.Get(r.Context(), attemptID)
	if err != nil {
		writeError(w, err)
		return
	}
	if caller := callerID(r); caller != "" && caller != detail.Attempt.StudentID {
		writeError(w, domain.ErrForbidden)
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	// Drain the client side so we notice a closed peer.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		event := timerEvent{
			Type:             "tick",
			Status:           detail.Attempt.Status,
			RemainingSeconds: detail.RemainingSeconds,
		}
		if detail.Attempt.Status.Terminal() {
			event.Type = "finalized"
			event.RemainingSeconds = 0
		}

		conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
		if err := conn.WriteJSON(event); err != nil {
			return
		}
		if event.Type == "finalized" {
			return
		}

		select {
		case <-r.Context().Done():
			return
		case <-ticker.C:
		}

		detail, err = h.service.Get(r.Context(), attemptID)
		if err != nil {
			return
		}
	}
}

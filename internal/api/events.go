package api

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/erazemk/sledljivost/internal/events"
)

// pingInterval is how often an idle SSE stream receives a keep-alive comment.
var pingInterval = 30 * time.Second

// EventsHandler streams ledger notifications as Server-Sent Events.
type EventsHandler struct {
	Hub       *events.Hub
	DB        *sqlx.DB
	JWTSecret string
}

// Stream handles GET /api/events?token=<jwt>.
// EventSource cannot set headers, so the token is passed as a query parameter.
func (h *EventsHandler) Stream(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		jsonError(w, http.StatusUnauthorized, "missing token query parameter")
		return
	}
	claims, status, msg := authenticate(r.Context(), h.JWTSecret, h.DB, token)
	if claims == nil {
		jsonError(w, status, msg)
		return
	}

	rc := http.NewResponseController(w)
	// The server's write timeout would otherwise end the stream.
	_ = rc.SetWriteDeadline(time.Time{})

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	clientID := uuid.NewString()
	client := h.Hub.Register(clientID)
	defer h.Hub.Unregister(clientID)

	hello, _ := json.Marshal(map[string]string{
		"client_id": clientID,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
	writeSSE(w, "connected", hello)
	if err := rc.Flush(); err != nil {
		return
	}

	logger(r).Info().Str("client_id", clientID).Str("account", claims.Account.String()).Msg("event stream started")

	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-client.Events:
			if !ok {
				return
			}
			writeSSE(w, string(msg.Event), msg.Data)
		case <-ticker.C:
			fmt.Fprint(w, ": ping\n\n")
		case <-r.Context().Done():
			return
		}
		if err := rc.Flush(); err != nil {
			return
		}
	}
}

func writeSSE(w io.Writer, event string, data []byte) {
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data)
}

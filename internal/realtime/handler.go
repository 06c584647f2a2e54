package realtime

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/fernhill/hearth/internal/auth"
)

// HandleWebSocket returns an HTTP handler that upgrades connections to
// WebSocket and runs them as Hub clients scoped to the caller's current
// household. resolveHome maps a user id to their household id (0 = none).
func HandleWebSocket(hub *Hub, resolveHome func(userID int64) (int64, error), logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := auth.UserID(r.Context())
		if userID == 0 {
			http.Error(w, "unauthenticated", http.StatusUnauthorized)
			return
		}

		householdID, err := resolveHome(userID)
		if err != nil {
			logger.Error("websocket: resolve household", "user_id", userID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}

		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			InsecureSkipVerify: true, // Clients connect from app webviews on arbitrary origins
		})
		if err != nil {
			logger.Error("websocket: accept", "error", err)
			return
		}

		client := NewClient(hub, conn, householdID)
		client.Run(r.Context())
	}
}

package websocket

import (
	"log/slog"
	"net/http"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/storefront/internal/auth"
)

// HandleEvents upgrades an admin request to a websocket that receives hub
// events as JSON text frames. It must run behind RequireAdmin.
// originPatterns lists hosts allowed to connect cross-origin.
func HandleEvents(hub *Hub, originPatterns []string, logger *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := ws.Accept(w, r, &ws.AcceptOptions{
			OriginPatterns: originPatterns,
		})
		if err != nil {
			logger.Warn("websocket accept", "error", err)
			return
		}
		defer conn.CloseNow()

		var admin string
		if p, ok := auth.FromContext(r.Context()); ok {
			admin = p.PublicID
		}
		NewClient(hub, conn, admin).Run(r.Context())
	}
}

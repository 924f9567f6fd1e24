// internal/handlers/ws/ws_handler.go
package ws

import (
	"net/http"

	"github.com/rgavrysh/renovator-app-sub001/internal/middleware"
	"github.com/rgavrysh/renovator-app-sub001/internal/pkg/response"
	authUsecase "github.com/rgavrysh/renovator-app-sub001/internal/service/auth"
	wsHub "github.com/rgavrysh/renovator-app-sub001/internal/ws"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Origin is already constrained by the CORS middleware on the API; the
	// websocket endpoint accepts the same clients.
	CheckOrigin: func(r *http.Request) bool { return true },
}

type WSHandler struct {
	hub         *wsHub.Hub
	authService *authUsecase.AuthService
	logger      *zap.Logger
}

func NewWSHandler(hub *wsHub.Hub, authService *authUsecase.AuthService, logger *zap.Logger) *WSHandler {
	return &WSHandler{
		hub:         hub,
		authService: authService,
		logger:      logger,
	}
}

// HandleConnection authenticates the bearer token and promotes the request
// to a websocket carrying session lifecycle events.
func (h *WSHandler) HandleConnection(c *gin.Context) {
	token := middleware.ExtractBearer(c)
	if token == "" {
		// Browsers cannot set headers on websocket dials; allow the token
		// as a query param here.
		token = c.Query("token")
	}
	if token == "" {
		response.Unauthorized(c, "missing authorization token")
		return
	}

	user, _, err := h.authService.IdentityFromToken(c.Request.Context(), token)
	if err != nil {
		response.Unauthorized(c, "invalid or expired token")
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", zap.Error(err))
		return
	}

	client := wsHub.NewClient(h.hub, conn, user.ID, h.logger)
	client.Start()
}

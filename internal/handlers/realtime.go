package handlers

import (
	"strings"

	"github.com/gin-gonic/gin"

	iauth "github.com/clinidesk/clinidesk/internal/auth"
	"github.com/clinidesk/clinidesk/internal/realtime"
	"github.com/clinidesk/clinidesk/pkg/errors"
	"github.com/clinidesk/clinidesk/pkg/response"
)

// RealtimeHandler upgrades HTTP connections into authenticated WebSocket streams.
type RealtimeHandler struct {
	hub *realtime.Hub
}

func NewRealtimeHandler(hub *realtime.Hub) *RealtimeHandler {
	return &RealtimeHandler{hub: hub}
}

// Stream hands the request to the hub. The credential travels as a query
// parameter because browser WebSocket clients cannot set headers, but a
// Bearer header works too for non-browser clients. The hub performs the
// actual verification during its handshake so an invalid credential is
// answered on the socket rather than with a plain HTTP status.
// GET /api/realtime?token=...
func (h *RealtimeHandler) Stream(c *gin.Context) {
	if h.hub == nil {
		response.Error(c, errors.ErrNotFound)
		return
	}

	token := strings.TrimSpace(c.Query("token"))
	if token == "" {
		token = strings.TrimSpace(c.Query("access_token"))
	}
	if token == "" {
		authz := c.GetHeader("Authorization")
		if strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			token = strings.TrimSpace(authz[7:])
		}
	}

	h.hub.Serve(token, c.Writer, c.Request)
}

// JWTVerifier adapts the JWT service to the hub's credential interface.
type JWTVerifier struct {
	jwt *iauth.JWTService
}

func NewJWTVerifier(jwt *iauth.JWTService) *JWTVerifier {
	return &JWTVerifier{jwt: jwt}
}

// VerifyCredential validates an access token and extracts the identity pair
// the hub keys its rooms on.
func (v *JWTVerifier) VerifyCredential(token string) (string, string, error) {
	claims, err := v.jwt.ValidateAccessToken(token)
	if err != nil {
		return "", "", err
	}
	return claims.UserID, claims.Role, nil
}

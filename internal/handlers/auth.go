package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	iauth "github.com/clinidesk/clinidesk/internal/auth"
	"github.com/clinidesk/clinidesk/internal/middleware"
	"github.com/clinidesk/clinidesk/internal/services"
	"github.com/clinidesk/clinidesk/pkg/crypto"
	"github.com/clinidesk/clinidesk/pkg/errors"
	"github.com/clinidesk/clinidesk/pkg/metrics"
	"github.com/clinidesk/clinidesk/pkg/response"
)

// AuthHandler manages the login flow and identity introspection.
type AuthHandler struct {
	db        *gorm.DB
	jwt       *iauth.JWTService
	directory *services.DirectoryService
}

func NewAuthHandler(db *gorm.DB, jwt *iauth.JWTService, directory *services.DirectoryService) *AuthHandler {
	return &AuthHandler{db: db, jwt: jwt, directory: directory}
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
}

// POST /api/auth/login
func (h *AuthHandler) Login(c *gin.Context) {
	var req loginRequest
	if !bindAndValidate(c, &req) {
		return
	}

	user, err := h.directory.FindByEmail(c.Request.Context(), req.Email)
	if err != nil || !user.IsActive || !crypto.CheckPassword(user.Password, req.Password) {
		// Normalise all credential failures to 401
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		response.Error(c, errors.ErrInvalidCredentials)
		return
	}

	token, err := h.jwt.GenerateAccessToken(iauth.AccessTokenInput{UserID: user.ID, Role: user.Role})
	if err != nil {
		metrics.AuthAttempts.WithLabelValues("failure").Inc()
		response.Error(c, errors.ErrInternalServer)
		return
	}

	// Best effort; a failed stamp is not worth failing the login.
	h.db.WithContext(c.Request.Context()).Model(user).Update("last_login_at", time.Now().UTC())

	metrics.AuthAttempts.WithLabelValues("success").Inc()

	response.Success(c, http.StatusOK, gin.H{
		"tokens": tokenResponse{AccessToken: token},
		"user": gin.H{
			"id":         user.ID,
			"email":      user.Email,
			"first_name": user.FirstName,
			"last_name":  user.LastName,
			"role":       user.Role,
		},
	})
}

// GET /api/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	userID := strings.TrimSpace(c.GetString(middleware.CtxUserIDKey))
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	user, err := h.directory.Lookup(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	response.Success(c, http.StatusOK, gin.H{
		"id":            user.ID,
		"email":         user.Email,
		"first_name":    user.FirstName,
		"last_name":     user.LastName,
		"role":          user.Role,
		"specialty":     user.Specialty,
		"last_login_at": user.LastLoginAt,
	})
}

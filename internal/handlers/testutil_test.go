package handlers

import (
	"bytes"
	"encoding/json"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	iauth "github.com/clinidesk/clinidesk/internal/auth"
	"github.com/clinidesk/clinidesk/internal/database/testutil"
	"github.com/clinidesk/clinidesk/internal/middleware"
	"github.com/clinidesk/clinidesk/internal/models"
	"github.com/clinidesk/clinidesk/internal/notifications"
	"github.com/clinidesk/clinidesk/internal/realtime"
	"github.com/clinidesk/clinidesk/internal/services"
	"github.com/clinidesk/clinidesk/pkg/crypto"
)

type testEnv struct {
	db        *gorm.DB
	jwt       *iauth.JWTService
	hub       *realtime.Hub
	directory *services.DirectoryService
	notifier  *notifications.Service
	booking   *services.AppointmentService
	router    *gin.Engine
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())

	jwt, err := iauth.NewJWTService(iauth.JWTConfig{Secret: "handler-test-secret", Issuer: "clinidesk-test"})
	require.NoError(t, err)

	directory, err := services.NewDirectoryService(db)
	require.NoError(t, err)

	hub := realtime.NewHub(NewJWTVerifier(jwt))

	store, err := notifications.NewStore(db, directory)
	require.NoError(t, err)
	notifier, err := notifications.NewService(store, directory, hub)
	require.NoError(t, err)

	booking, err := services.NewAppointmentService(db, directory, notifier)
	require.NoError(t, err)

	env := &testEnv{
		db:        db,
		jwt:       jwt,
		hub:       hub,
		directory: directory,
		notifier:  notifier,
		booking:   booking,
	}
	env.router = env.buildRouter(t)
	return env
}

func (env *testEnv) buildRouter(t *testing.T) *gin.Engine {
	t.Helper()

	r := gin.New()

	authHandler := NewAuthHandler(env.db, env.jwt, env.directory)
	notificationHandler, err := NewNotificationHandler(env.notifier, env.hub)
	require.NoError(t, err)
	appointmentHandler, err := NewAppointmentHandler(env.booking)
	require.NoError(t, err)
	realtimeHandler := NewRealtimeHandler(env.hub)

	r.POST("/api/auth/login", authHandler.Login)
	r.GET("/api/realtime", realtimeHandler.Stream)

	api := r.Group("/api", middleware.Auth(env.jwt))
	api.GET("/auth/me", authHandler.Me)

	api.GET("/notifications", notificationHandler.List)
	api.GET("/notifications/unread-count", notificationHandler.UnreadCount)
	api.PATCH("/notifications/:id/read", notificationHandler.MarkRead)
	api.POST("/notifications/mark-all-read", notificationHandler.MarkAllRead)

	admin := api.Group("", middleware.RequireRole(models.RoleAdmin))
	admin.POST("/notifications", notificationHandler.Create)
	admin.POST("/notifications/broadcast", notificationHandler.Broadcast)
	admin.PATCH("/notifications/:id", notificationHandler.Update)
	admin.DELETE("/notifications/:id", notificationHandler.Delete)
	admin.GET("/notifications/stats", notificationHandler.Stats)

	api.POST("/appointments", appointmentHandler.Book)
	api.POST("/appointments/:id/cancel", appointmentHandler.Cancel)
	api.GET("/appointments", appointmentHandler.List)

	return r
}

func (env *testEnv) createUser(t *testing.T, email, password, role string) *models.User {
	t.Helper()

	hash, err := crypto.HashPassword(password)
	require.NoError(t, err)

	user := &models.User{
		Email:     email,
		Password:  hash,
		FirstName: "Test",
		LastName:  "User",
		Role:      role,
		IsActive:  true,
	}
	require.NoError(t, env.db.Create(user).Error)
	return user
}

func (env *testEnv) tokenFor(t *testing.T, user *models.User) string {
	t.Helper()

	token, err := env.jwt.GenerateAccessToken(iauth.AccessTokenInput{UserID: user.ID, Role: user.Role})
	require.NoError(t, err)
	return token
}

func (env *testEnv) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	w := httptest.NewRecorder()
	env.router.ServeHTTP(w, req)
	return w
}

// envelope mirrors the response wrapper for assertions.
type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Meta *struct {
		Page       int   `json:"page"`
		PerPage    int   `json:"per_page"`
		Total      int64 `json:"total"`
		TotalPages int   `json:"total_pages"`
	} `json:"meta"`
}

func decodeEnvelope(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()

	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func decodeData[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()

	env := decodeEnvelope(t, w)
	var out T
	require.NoError(t, json.Unmarshal(env.Data, &out))
	return out
}

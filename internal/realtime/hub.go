package realtime

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/clinidesk/clinidesk/pkg/logger"
	"github.com/clinidesk/clinidesk/pkg/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20 // 1 MiB

	defaultBufferSize = 64
)

// Message represents a JSON envelope delivered to connected clients.
type Message struct {
	Event          string    `json:"event"`
	Type           string    `json:"type,omitempty"`
	Action         string    `json:"action,omitempty"`
	Room           string    `json:"room,omitempty"`
	NotificationID string    `json:"notification_id,omitempty"`
	Data           any       `json:"data,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

type controlMessage struct {
	Action         string `json:"action"`
	Room           string `json:"room,omitempty"`
	NotificationID string `json:"notificationId,omitempty"`
}

var errAuthDisabled = errors.New("realtime: no credential verifier configured")

// TokenVerifier checks the handshake credential and resolves it to an identity.
type TokenVerifier interface {
	VerifyCredential(token string) (identity, role string, err error)
}

// IdentityRoom names the per-identity room every connection joins on handshake.
func IdentityRoom(identity string) string {
	return "identity:" + identity
}

// RoleRoom names the pluralised per-role broadcast room.
func RoleRoom(role string) string {
	return "role:" + role + "s"
}

// Hub is the connection registry and fan-out gateway. It maps authenticated
// identities to their live connections and pushes envelopes to named rooms.
type Hub struct {
	mu         sync.RWMutex
	rooms      map[string]map[*connection]struct{}
	identities map[string]map[*connection]struct{}

	verifier TokenVerifier
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewHub constructs a hub. The verifier guards the socket handshake; passing
// nil rejects every connection attempt.
func NewHub(verifier TokenVerifier) *Hub {
	return &Hub{
		rooms:      make(map[string]map[*connection]struct{}),
		identities: make(map[string]map[*connection]struct{}),
		verifier:   verifier,
		log:        logger.WithModule("realtime"),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				// Allow same-origin requests and explicit localhost development.
				origin := r.Header.Get("Origin")
				if origin == "" {
					return true
				}
				originHost := hostWithoutPort(origin)
				requestHost := hostWithoutPort(r.Host)
				return originHost == requestHost || isLoopback(originHost)
			},
		},
	}
}

// Serve upgrades the HTTP connection to a WebSocket, verifies the credential,
// and registers the client. Failed verification emits auth_error and closes
// the socket; an unauthenticated connection is never registered.
func (h *Hub) Serve(token string, w http.ResponseWriter, r *http.Request) {
	socket, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Warn("upgrade failed", zap.Error(err))
		return
	}

	identity, role, err := h.verify(token)
	if err != nil {
		h.log.Debug("handshake rejected", zap.Error(err))
		_ = socket.SetWriteDeadline(time.Now().Add(writeWait))
		_ = socket.WriteJSON(Message{Event: EventAuthError, Timestamp: time.Now().UTC()})
		_ = socket.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "unauthorized"))
		_ = socket.Close()
		return
	}

	client := newConnection(h, socket, identity, role)
	h.register(client)

	client.enqueue(Message{
		Event:     EventConnected,
		Data:      map[string]any{"identity": identity, "role": role},
		Timestamp: time.Now().UTC(),
	})

	go client.writeLoop()
	client.readLoop()
}

func (h *Hub) verify(token string) (string, string, error) {
	if h.verifier == nil {
		return "", "", errAuthDisabled
	}
	return h.verifier.VerifyCredential(strings.TrimSpace(token))
}

// PushToIdentity emits a newNotification envelope to every live connection of
// the identity. Zero registered connections is not an error.
func (h *Hub) PushToIdentity(identity string, payload any) {
	if identity == "" {
		return
	}
	h.emit(IdentityRoom(identity), Message{
		Event: EventNewNotification,
		Type:  TypeNotification,
		Data:  payload,
	})
}

// PushToRole emits a broadcast envelope to the pluralised role room.
func (h *Hub) PushToRole(role string, payload any) {
	if role == "" {
		return
	}
	h.emit(RoleRoom(role), Message{
		Event: EventNewNotification,
		Type:  TypeBroadcast,
		Data:  payload,
	})
}

// PushDomainEvent emits a domain-specific live update to the identity room.
// It is deliberately independent of PushToIdentity: emitting one never
// implies the other fired.
func (h *Hub) PushDomainEvent(identity string, kind DomainKind, action string, payload any) {
	event := kind.EventName()
	if event == "" || identity == "" {
		h.log.Warn("dropping domain event", zap.String("kind", string(kind)), zap.String("identity", identity))
		return
	}
	h.emit(IdentityRoom(identity), Message{
		Event:  event,
		Type:   string(kind),
		Action: action,
		Data:   payload,
	})
}

// PushMarkedRead relays a read-state change to every connection of the
// identity so multi-tab clients stay in sync.
func (h *Hub) PushMarkedRead(identity, notificationID string) {
	h.emit(IdentityRoom(identity), Message{
		Event:          EventMarkedRead,
		NotificationID: notificationID,
	})
}

// PushAllMarkedRead relays a bulk read-state change to the identity room.
func (h *Hub) PushAllMarkedRead(identity string, updatedCount int64) {
	h.emit(IdentityRoom(identity), Message{
		Event: EventAllMarkedRead,
		Data:  map[string]any{"updated_count": updatedCount},
	})
}

// IsOnline reports whether at least one connection is registered for the identity.
func (h *Hub) IsOnline(identity string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.identities[identity]) > 0
}

// CountOnline returns the number of distinct online identities.
func (h *Hub) CountOnline() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.identities)
}

// OnlineByRole returns the identities currently online for the supplied role.
func (h *Hub) OnlineByRole(role string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	var online []string
	for identity, conns := range h.identities {
		for conn := range conns {
			if conn.role == role {
				online = append(online, identity)
			}
			break
		}
	}
	return online
}

// emit pushes a message to a snapshot of the room membership. A connection
// registering mid-push may or may not receive the message; it never receives
// it twice and never breaks the loop. Backpressured clients are dropped.
func (h *Hub) emit(room string, message Message) {
	if message.Timestamp.IsZero() {
		message.Timestamp = time.Now().UTC()
	}

	h.mu.RLock()
	members := h.rooms[room]
	targets := make([]*connection, 0, len(members))
	for client := range members {
		targets = append(targets, client)
	}
	h.mu.RUnlock()

	var dropped []*connection
	for _, client := range targets {
		if client.enqueue(message) {
			metrics.PushDeliveries.WithLabelValues(message.Event, "delivered").Inc()
			continue
		}
		metrics.PushDeliveries.WithLabelValues(message.Event, "dropped").Inc()
		dropped = append(dropped, client)
	}

	for _, client := range dropped {
		h.log.Warn("dropping backpressured client", zap.String("identity", client.identity))
		client.close()
	}
}

func (h *Hub) register(client *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.identities[client.identity] == nil {
		h.identities[client.identity] = make(map[*connection]struct{})
	}
	h.identities[client.identity][client] = struct{}{}

	h.joinLocked(client, IdentityRoom(client.identity))
	h.joinLocked(client, RoleRoom(client.role))

	metrics.ConnectedClients.Inc()
}

func (h *Hub) unregister(client *connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for room := range client.rooms {
		h.leaveLocked(client, room)
	}

	if conns := h.identities[client.identity]; conns != nil {
		if _, ok := conns[client]; ok {
			delete(conns, client)
			metrics.ConnectedClients.Dec()
		}
		if len(conns) == 0 {
			delete(h.identities, client.identity)
		}
	}
}

func (h *Hub) join(client *connection, room string) {
	room = normalizeRoom(room)
	if room == "" {
		return
	}

	h.mu.Lock()
	h.joinLocked(client, room)
	h.mu.Unlock()

	client.enqueue(Message{Event: EventJoinedRoom, Room: room, Timestamp: time.Now().UTC()})
}

func (h *Hub) joinLocked(client *connection, room string) {
	if h.rooms[room] == nil {
		h.rooms[room] = make(map[*connection]struct{})
	}
	h.rooms[room][client] = struct{}{}
	client.rooms[room] = struct{}{}
}

func (h *Hub) leaveLocked(client *connection, room string) {
	members := h.rooms[room]
	if members == nil {
		return
	}
	delete(members, client)
	if len(members) == 0 {
		delete(h.rooms, room)
	}
	delete(client.rooms, room)
}

type connection struct {
	hub      *Hub
	socket   *websocket.Conn
	identity string
	role     string
	rooms    map[string]struct{}
	send     chan Message
	done     chan struct{}
	once     sync.Once
}

func newConnection(hub *Hub, socket *websocket.Conn, identity, role string) *connection {
	return &connection{
		hub:      hub,
		socket:   socket,
		identity: identity,
		role:     role,
		rooms:    make(map[string]struct{}),
		send:     make(chan Message, defaultBufferSize),
		done:     make(chan struct{}),
	}
}

// enqueue offers a message to the connection's buffer without blocking.
func (c *connection) enqueue(message Message) bool {
	select {
	case <-c.done:
		return false
	default:
	}

	select {
	case c.send <- message:
		return true
	default:
		return false
	}
}

func (c *connection) readLoop() {
	defer c.close()

	c.socket.SetReadLimit(maxMessageSize)
	_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
	c.socket.SetPongHandler(func(string) error {
		_ = c.socket.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, payload, err := c.socket.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				c.hub.log.Debug("unexpected close", zap.String("identity", c.identity), zap.Error(err))
			}
			break
		}

		if len(payload) == 0 {
			continue
		}

		var ctrl controlMessage
		if err := json.Unmarshal(payload, &ctrl); err != nil {
			c.hub.log.Debug("invalid control payload", zap.String("identity", c.identity), zap.Error(err))
			continue
		}

		c.handleControl(ctrl)
	}
}

func (c *connection) handleControl(ctrl controlMessage) {
	switch strings.TrimSpace(ctrl.Action) {
	case actionPing:
		c.enqueue(Message{Event: EventPong, Timestamp: time.Now().UTC()})
	case actionJoinRoom:
		c.hub.join(c, ctrl.Room)
	case actionMarkRead:
		// Client-to-client consistency signal only; the store mutation happens
		// through the notification service, never here.
		id := strings.TrimSpace(ctrl.NotificationID)
		if id == "" {
			return
		}
		c.hub.PushMarkedRead(c.identity, id)
	default:
		c.hub.log.Debug("unsupported control action",
			zap.String("action", ctrl.Action), zap.String("identity", c.identity))
	}
}

func (c *connection) writeLoop() {
	defer c.close()

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case message := <-c.send:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteJSON(message); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.socket.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			_ = c.socket.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.socket.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

func (c *connection) close() {
	c.once.Do(func() {
		c.hub.unregister(c)
		close(c.done)
		_ = c.socket.Close()
	})
}

func hostWithoutPort(host string) string {
	host = strings.TrimSpace(host)
	if host == "" {
		return ""
	}

	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		parsed, err := http.NewRequest(http.MethodGet, host, nil)
		if err == nil {
			return hostWithoutPort(parsed.URL.Host)
		}
	}

	if h, _, err := net.SplitHostPort(host); err == nil {
		return h
	}
	return host
}

func isLoopback(host string) bool {
	ip := net.ParseIP(host)
	if ip != nil {
		return ip.IsLoopback()
	}
	return strings.EqualFold(host, "localhost")
}

func normalizeRoom(room string) string {
	return strings.ToLower(strings.TrimSpace(room))
}

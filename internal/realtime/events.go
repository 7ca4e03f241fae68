package realtime

// Outbound event names pushed to connected clients.
const (
	EventConnected       = "connected"
	EventAuthError       = "auth_error"
	EventNewNotification = "newNotification"
	EventPong            = "pong"
	EventJoinedRoom      = "joinedRoom"
	EventMarkedRead      = "notificationMarkedRead"
	EventAllMarkedRead   = "allNotificationsMarkedRead"
)

// Envelope types carried in the `type` field of pushed messages.
const (
	TypeNotification = "notification"
	TypeBroadcast    = "broadcast"
)

// DomainKind selects the event name for a domain-specific live update. Domain
// events are independent of the generic notification event: a caller may emit
// one, the other, or both.
type DomainKind string

const (
	DomainAppointment  DomainKind = "appointment"
	DomainDocument     DomainKind = "document"
	DomainPrescription DomainKind = "prescription"
	DomainAnalysis     DomainKind = "analysis"
)

// EventName returns the client-facing event for the domain kind.
func (k DomainKind) EventName() string {
	switch k {
	case DomainAppointment:
		return "appointmentUpdate"
	case DomainDocument:
		return "documentUpdate"
	case DomainPrescription:
		return "prescriptionUpdate"
	case DomainAnalysis:
		return "analysisUpdate"
	default:
		return ""
	}
}

// Inbound control actions accepted from clients.
const (
	actionPing     = "ping"
	actionJoinRoom = "joinRoom"
	actionMarkRead = "markNotificationRead"
)

package notifications

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/clinidesk/clinidesk/internal/database/testutil"
	"github.com/clinidesk/clinidesk/internal/models"
	"github.com/clinidesk/clinidesk/internal/realtime"
	apperrors "github.com/clinidesk/clinidesk/pkg/errors"
)

type pushCall struct {
	method   string
	identity string
	role     string
	id       string
	count    int64
	payload  any
}

// capturingPusher records fan-out calls; panicky simulates a hub failure.
type capturingPusher struct {
	mu      sync.Mutex
	calls   []pushCall
	panicky bool
}

func (p *capturingPusher) PushToIdentity(identity string, payload any) {
	if p.panicky {
		panic("hub down")
	}
	p.append(pushCall{method: "identity", identity: identity, payload: payload})
}

func (p *capturingPusher) PushToRole(role string, payload any) {
	p.append(pushCall{method: "role", role: role, payload: payload})
}

func (p *capturingPusher) PushDomainEvent(identity string, kind realtime.DomainKind, action string, payload any) {
	p.append(pushCall{method: "domain", identity: identity, payload: payload})
}

func (p *capturingPusher) PushMarkedRead(identity, notificationID string) {
	p.append(pushCall{method: "markedRead", identity: identity, id: notificationID})
}

func (p *capturingPusher) PushAllMarkedRead(identity string, updatedCount int64) {
	p.append(pushCall{method: "allMarkedRead", identity: identity, count: updatedCount})
}

func (p *capturingPusher) append(call pushCall) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, call)
}

func (p *capturingPusher) all() []pushCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]pushCall(nil), p.calls...)
}

func newTestService(t *testing.T) (*Service, *fakeDirectory, *capturingPusher) {
	t.Helper()

	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	directory := newFakeDirectory()
	store, err := NewStore(db, directory)
	require.NoError(t, err)

	pusher := &capturingPusher{}
	service, err := NewService(store, directory, pusher)
	require.NoError(t, err)
	return service, directory, pusher
}

func TestCreateWritesThenPushes(t *testing.T) {
	service, directory, pusher := newTestService(t)
	directory.add(models.RolePatient, "pat-1")

	record, err := service.Create(context.Background(), CreateInput{
		RecipientRole: models.RolePatient,
		RecipientID:   "pat-1",
		Title:         "Lab results available",
		Message:       "Results are ready",
		Kind:          models.KindLabResult,
	})
	require.NoError(t, err)

	calls := pusher.all()
	require.Len(t, calls, 1)
	require.Equal(t, "identity", calls[0].method)
	require.Equal(t, "pat-1", calls[0].identity)
	pushed, ok := calls[0].payload.(*models.Notification)
	require.True(t, ok)
	require.Equal(t, record.ID, pushed.ID)
}

func TestCreateSurvivesPushFailure(t *testing.T) {
	service, directory, pusher := newTestService(t)
	directory.add(models.RolePatient, "pat-1")
	pusher.panicky = true

	record, err := service.Create(context.Background(), CreateInput{
		RecipientRole: models.RolePatient,
		RecipientID:   "pat-1",
		Title:         "t",
		Message:       "m",
	})
	require.NoError(t, err)

	// The record is durable even though the push blew up.
	loaded, err := service.Get(context.Background(), record.ID)
	require.NoError(t, err)
	require.Equal(t, record.ID, loaded.ID)
}

func TestCreateFailedWriteNeverPushes(t *testing.T) {
	service, _, pusher := newTestService(t)

	_, err := service.Create(context.Background(), CreateInput{
		RecipientRole: models.RolePatient,
		RecipientID:   "ghost",
		Title:         "t",
		Message:       "m",
	})
	require.True(t, apperrors.IsValidation(err))
	require.Empty(t, pusher.all())
}

func TestBroadcastToRolePushesOneSummary(t *testing.T) {
	service, directory, pusher := newTestService(t)
	directory.add(models.RoleDoctor, "doc-1", "doc-2", "doc-3")

	created, err := service.BroadcastToRole(context.Background(), models.RoleDoctor,
		"Policy update", "New on-call rota", "")
	require.NoError(t, err)
	require.Equal(t, 3, created)

	calls := pusher.all()
	require.Len(t, calls, 1)
	require.Equal(t, "role", calls[0].method)
	require.Equal(t, models.RoleDoctor, calls[0].role)
	summary, ok := calls[0].payload.(BroadcastSummary)
	require.True(t, ok)
	require.Equal(t, 3, summary.Delivered)
	require.Equal(t, models.KindGeneral, summary.Kind)

	for _, id := range []string{"doc-1", "doc-2", "doc-3"} {
		count, err := service.CountUnread(context.Background(), id)
		require.NoError(t, err)
		require.EqualValues(t, 1, count)
	}
}

func TestBroadcastToEmptyRolePushesNothing(t *testing.T) {
	service, _, pusher := newTestService(t)

	created, err := service.BroadcastToRole(context.Background(), models.RoleDoctor, "t", "m", "")
	require.NoError(t, err)
	require.Zero(t, created)
	require.Empty(t, pusher.all())
}

func TestBroadcastRejectsUnknownRole(t *testing.T) {
	service, _, _ := newTestService(t)

	_, err := service.BroadcastToRole(context.Background(), "janitor", "t", "m", "")
	require.True(t, apperrors.IsValidation(err))
}

func TestMarkReadRelaysToIdentity(t *testing.T) {
	service, directory, pusher := newTestService(t)
	directory.add(models.RolePatient, "pat-1")

	record, err := service.Create(context.Background(), CreateInput{
		RecipientRole: models.RolePatient, RecipientID: "pat-1", Title: "t", Message: "m",
	})
	require.NoError(t, err)

	marked, err := service.MarkRead(context.Background(), record.ID)
	require.NoError(t, err)
	require.True(t, marked.IsRead)

	calls := pusher.all()
	require.Len(t, calls, 2) // create push + marked-read relay
	require.Equal(t, "markedRead", calls[1].method)
	require.Equal(t, "pat-1", calls[1].identity)
	require.Equal(t, record.ID, calls[1].id)
}

func TestMarkAllReadRelaysCount(t *testing.T) {
	service, directory, pusher := newTestService(t)
	directory.add(models.RolePatient, "pat-1")

	for i := 0; i < 4; i++ {
		_, err := service.Create(context.Background(), CreateInput{
			RecipientRole: models.RolePatient, RecipientID: "pat-1", Title: "t", Message: "m",
		})
		require.NoError(t, err)
	}

	updated, err := service.MarkAllRead(context.Background(), models.RolePatient, "pat-1")
	require.NoError(t, err)
	require.EqualValues(t, 4, updated)

	calls := pusher.all()
	last := calls[len(calls)-1]
	require.Equal(t, "allMarkedRead", last.method)
	require.Equal(t, "pat-1", last.identity)
	require.EqualValues(t, 4, last.count)
}

func TestNotificationWorksWithoutHub(t *testing.T) {
	db := testutil.MustOpenTestDB(t, testutil.WithAutoMigrate())
	directory := newFakeDirectory()
	directory.add(models.RolePatient, "pat-1")
	store, err := NewStore(db, directory)
	require.NoError(t, err)

	service, err := NewService(store, directory, nil)
	require.NoError(t, err)

	record, err := service.Create(context.Background(), CreateInput{
		RecipientRole: models.RolePatient, RecipientID: "pat-1", Title: "t", Message: "m",
	})
	require.NoError(t, err)

	_, err = service.MarkRead(context.Background(), record.ID)
	require.NoError(t, err)
	_, err = service.MarkAllRead(context.Background(), models.RolePatient, "pat-1")
	require.NoError(t, err)
	service.EmitDomainEvent("pat-1", realtime.DomainAppointment, "created", nil)
}

func TestDomainWrappersUseExpectedKinds(t *testing.T) {
	service, directory, _ := newTestService(t)
	directory.add(models.RolePatient, "pat-1")

	record, err := service.NotifyPrescriptionIssued(context.Background(), "pat-1", "Dr. Moreau")
	require.NoError(t, err)
	require.Equal(t, models.KindPrescription, record.Kind)

	record, err = service.NotifyLabResultReady(context.Background(), "pat-1", "blood panel")
	require.NoError(t, err)
	require.Equal(t, models.KindLabResult, record.Kind)

	record, err = service.NotifyDocumentUploaded(context.Background(), models.RolePatient, "pat-1", "referral.pdf")
	require.NoError(t, err)
	require.Equal(t, models.KindGeneral, record.Kind)
}

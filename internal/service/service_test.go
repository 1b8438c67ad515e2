package service

import (
	"context"
	"io"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"turnero/internal/config"
	"turnero/internal/database"
	"turnero/internal/domain"
	"turnero/internal/events"
	"turnero/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// Monday 2030-03-04 08:00 UTC.
var testNow = time.Date(2030, 3, 4, 8, 0, 0, 0, time.UTC)

var (
	monday  = time.Date(2030, 3, 4, 0, 0, 0, 0, time.UTC)
	tuesday = time.Date(2030, 3, 5, 0, 0, 0, 0, time.UTC)
)

type fixture struct {
	db       *database.DB
	business *models.Business
	ana      *models.Resource
	haircut  *models.Service
	color    *models.Service
	queue    *fakeQueue
	bus      *events.EventBus
	logger   *zerolog.Logger
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "turnero.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	cal := NewCalendarService(db, &logger)

	b := &models.Business{
		Name:       "Barber",
		Slug:       "barber",
		OpensAt:    models.NewClock(9, 0),
		ClosesAt:   models.NewClock(18, 0),
		ClosedDays: []time.Weekday{time.Sunday},
		OwnerID:    "owner-1",
	}
	require.NoError(t, cal.CreateBusiness(ctx, b))

	ana := &models.Resource{BusinessID: b.ID, Name: "Ana", DaysOff: []time.Weekday{time.Monday}, Active: true}
	require.NoError(t, cal.CreateResource(ctx, ana))

	haircut := &models.Service{BusinessID: b.ID, Name: "Haircut", PriceCents: 1500, DurationMinutes: 30, Active: true}
	require.NoError(t, cal.CreateService(ctx, haircut))
	color := &models.Service{BusinessID: b.ID, Name: "Color", PriceCents: 4000, DurationMinutes: 45, Active: true}
	require.NoError(t, cal.CreateService(ctx, color))

	return &fixture{
		db:       db,
		business: b,
		ana:      ana,
		haircut:  haircut,
		color:    color,
		queue:    &fakeQueue{},
		bus:      events.NewEventBus(),
		logger:   &logger,
	}
}

func (f *fixture) bookingService(agenda domain.ClientAgenda) *BookingService {
	if agenda == nil {
		agenda = f.db
	}
	s := NewBookingService(f.db, agenda, nil, f.bus, f.queue, config.BookingConfig{HorizonDays: 30}, f.logger)
	s.now = func() time.Time { return testNow }
	return s
}

func (f *fixture) availabilityService() *AvailabilityService {
	s := NewAvailabilityService(f.db, f.db, f.logger)
	s.now = func() time.Time { return testNow }
	return s
}

func (f *fixture) request(start models.Clock) BookingRequest {
	return BookingRequest{
		BusinessID: f.business.ID,
		ResourceID: f.ana.ID,
		Date:       tuesday,
		Start:      start,
		ServiceID:  f.haircut.ID,
		Client:     ClientIdentity{ID: "client-1", Name: "Luis", Contact: "telegram:42"},
	}
}

type queuedTask struct {
	Type          string
	AppointmentID string
	Payload       interface{}
}

type fakeQueue struct {
	mu    sync.Mutex
	err   error
	tasks []queuedTask
}

func (q *fakeQueue) EnqueueTask(ctx context.Context, taskType, appointmentID string, payload interface{}) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	q.tasks = append(q.tasks, queuedTask{Type: taskType, AppointmentID: appointmentID, Payload: payload})
	return nil
}

func (q *fakeQueue) ofType(taskType string) []queuedTask {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []queuedTask
	for _, t := range q.tasks {
		if t.Type == taskType {
			out = append(out, t)
		}
	}
	return out
}

type mockAgenda struct {
	mock.Mock
}

func (m *mockAgenda) SaveCopies(ctx context.Context, appts []*models.Appointment) error {
	return m.Called(ctx, appts).Error(0)
}

func (m *mockAgenda) DeleteCopy(ctx context.Context, clientID, appointmentID string) error {
	return m.Called(ctx, clientID, appointmentID).Error(0)
}

func (m *mockAgenda) ListCopies(ctx context.Context, clientID string) ([]*models.Appointment, error) {
	args := m.Called(ctx, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Appointment), args.Error(1)
}

type mockLimiter struct {
	mock.Mock
}

func (m *mockLimiter) CheckRateLimit(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	args := m.Called(ctx, key, limit, window)
	return args.Bool(0), args.Error(1)
}

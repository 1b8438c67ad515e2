package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"turnero/internal/config"
	"turnero/internal/domain"
	"turnero/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TURNERO_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("TURNERO_TEST_POSTGRES_DSN not set")
	}

	logger := zerolog.Nop()
	ctx := context.Background()
	s, err := Open(ctx, dsn, config.PostgresConfig{MaxConnections: 20}, &logger)
	require.NoError(t, err)

	_, err = s.pool.Exec(ctx, `TRUNCATE appointments, client_appointments, sync_queue, services, resources, businesses RESTART IDENTITY`)
	require.NoError(t, err)

	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *Store) (*models.Business, *models.Resource, *models.Service) {
	t.Helper()
	ctx := context.Background()

	b := &models.Business{
		Name: "Barber", Slug: "barber", Timezone: "UTC",
		OpensAt: models.NewClock(9, 0), ClosesAt: models.NewClock(18, 0),
		ClosedDays: []time.Weekday{time.Sunday},
		SlotMode:   models.SlotModeFixed, SlotMinutes: 30,
	}
	require.NoError(t, s.CreateBusiness(ctx, b))

	r := &models.Resource{BusinessID: b.ID, Name: "Ana", Active: true,
		HalfDay: &models.HalfDayException{Weekday: time.Saturday, Half: models.HalfMorning}}
	require.NoError(t, s.CreateResource(ctx, r))

	svc := &models.Service{BusinessID: b.ID, Name: "Haircut", DurationMinutes: 30, ResourceIDs: []int64{r.ID}, Active: true}
	require.NoError(t, s.CreateService(ctx, svc))
	return b, r, svc
}

func appointmentAt(b *models.Business, r *models.Resource, date time.Time, start models.Clock, minutes int) *models.Appointment {
	return &models.Appointment{
		ID: uuid.NewString(), BusinessID: b.ID, ResourceID: r.ID, ResourceName: r.Name,
		DurationMinutes: minutes, Date: date, Start: start, End: start.Add(minutes),
		ClientID: "client-1", ClientName: "Luis", Status: models.StatusPending,
	}
}

func TestRulesRoundTrip(t *testing.T) {
	s := setupStore(t)
	b, r, svc := seed(t, s)
	ctx := context.Background()

	got, err := s.GetBusinessBySlug(ctx, "barber")
	require.NoError(t, err)
	assert.Equal(t, b.ID, got.ID)
	assert.Equal(t, []time.Weekday{time.Sunday}, got.ClosedDays)

	res, err := s.GetResource(ctx, r.ID)
	require.NoError(t, err)
	require.NotNil(t, res.HalfDay)
	assert.Equal(t, models.HalfMorning, res.HalfDay.Half)

	gotSvc, err := s.GetService(ctx, svc.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{r.ID}, gotSvc.ResourceIDs)

	err = s.CreateBusiness(ctx, &models.Business{Name: "Other", Slug: "barber", OpensAt: 540, ClosesAt: 600})
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = s.GetBusiness(ctx, 9999)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestCommitAppointmentsConcurrent(t *testing.T) {
	s := setupStore(t)
	b, r, _ := seed(t, s)
	date := time.Date(2030, 3, 4, 0, 0, 0, 0, time.UTC)

	var wg sync.WaitGroup
	var mu sync.Mutex
	successes, taken := 0, 0
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.CommitAppointments(context.Background(),
				[]*models.Appointment{appointmentAt(b, r, date, models.NewClock(10, 0), 30)})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				successes++
			case errors.Is(err, domain.ErrSlotTaken):
				taken++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, successes)
	assert.Equal(t, 9, taken)
}

func TestCommitAppointmentsGroupIsAtomic(t *testing.T) {
	s := setupStore(t)
	b, r, _ := seed(t, s)
	ctx := context.Background()
	date := time.Date(2030, 3, 4, 0, 0, 0, 0, time.UTC)

	require.NoError(t, s.CommitAppointments(ctx, []*models.Appointment{appointmentAt(b, r, date, models.NewClock(11, 0), 30)}))

	group := []*models.Appointment{
		appointmentAt(b, r, date, models.NewClock(10, 30), 30),
		appointmentAt(b, r, date, models.NewClock(11, 0), 30),
	}
	err := s.CommitAppointments(ctx, group)
	assert.True(t, errors.Is(err, domain.ErrSlotTaken))

	day, err := s.ListDayAppointments(ctx, r.ID, date)
	require.NoError(t, err)
	assert.Len(t, day, 1)
}

func TestVersionedStatusUpdate(t *testing.T) {
	s := setupStore(t)
	b, r, _ := seed(t, s)
	ctx := context.Background()
	date := time.Date(2030, 3, 4, 0, 0, 0, 0, time.UTC)

	a := appointmentAt(b, r, date, models.NewClock(12, 0), 30)
	require.NoError(t, s.CommitAppointments(ctx, []*models.Appointment{a}))

	require.NoError(t, s.UpdateAppointmentStatusWithVersion(ctx, a.ID, a.Version, models.StatusConfirmed))
	err := s.UpdateAppointmentStatusWithVersion(ctx, a.ID, a.Version, models.StatusConfirmed)
	assert.True(t, errors.Is(err, domain.ErrConcurrentModification))
}

func TestSyncQueueRetry(t *testing.T) {
	s := setupStore(t)
	ctx := context.Background()

	id, err := s.CreateSyncTask(ctx, &models.SyncTask{TaskType: models.TaskSheetsUpsert, AppointmentID: "a-1"})
	require.NoError(t, err)

	next := time.Now().Add(time.Hour)
	require.NoError(t, s.UpdateSyncTaskStatus(ctx, id, models.TaskStatusPending, "boom", &next))

	task, err := s.GetSyncTask(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 1, task.RetryCount)

	pending, err := s.GetPendingSyncTasks(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

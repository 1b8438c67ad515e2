package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"turnero/internal/domain"
	"turnero/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "turnero.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func seedBusiness(t *testing.T, db *DB) (*models.Business, *models.Resource, *models.Service) {
	t.Helper()
	ctx := context.Background()

	b := &models.Business{
		Name:        "Barber",
		Slug:        "barber",
		Timezone:    "UTC",
		OpensAt:     models.NewClock(9, 0),
		ClosesAt:    models.NewClock(18, 0),
		ClosedDays:  []time.Weekday{time.Sunday},
		SlotMode:    models.SlotModeFixed,
		SlotMinutes: 30,
		OwnerID:     "owner-1",
	}
	require.NoError(t, db.CreateBusiness(ctx, b))

	r := &models.Resource{
		BusinessID: b.ID,
		Name:       "Ana",
		DaysOff:    []time.Weekday{time.Monday},
		HalfDay:    &models.HalfDayException{Weekday: time.Tuesday, Half: models.HalfMorning},
		Active:     true,
	}
	require.NoError(t, db.CreateResource(ctx, r))

	s := &models.Service{BusinessID: b.ID, Name: "Haircut", PriceCents: 1500, DurationMinutes: 30, Active: true}
	require.NoError(t, db.CreateService(ctx, s))
	return b, r, s
}

func TestNewDB_DirectoryCreation(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "test.db")
	logger := zerolog.Nop()

	db, err := NewDB(dbPath, &logger)
	require.NoError(t, err)
	defer db.Close()

	assert.FileExists(t, dbPath)
	assert.Equal(t, dbPath, db.Path())
	assert.NoError(t, db.PingContext(context.Background()))
}

func TestBusinessCRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	b, _, _ := seedBusiness(t, db)

	got, err := db.GetBusiness(ctx, b.ID)
	require.NoError(t, err)
	assert.Equal(t, "barber", got.Slug)
	assert.Equal(t, models.NewClock(9, 0), got.OpensAt)
	assert.Equal(t, []time.Weekday{time.Sunday}, got.ClosedDays)

	got.Name = "Barber & Co"
	got.ClosedDays = []time.Weekday{time.Sunday, time.Saturday}
	require.NoError(t, db.UpdateBusiness(ctx, got))

	bySlug, err := db.GetBusinessBySlug(ctx, "barber")
	require.NoError(t, err)
	assert.Equal(t, "Barber & Co", bySlug.Name)
	assert.Len(t, bySlug.ClosedDays, 2)

	dup := &models.Business{Name: "Other", Slug: "barber", OpensAt: 1, ClosesAt: 2}
	err = db.CreateBusiness(ctx, dup)
	assert.True(t, errors.Is(err, domain.ErrValidation))

	_, err = db.GetBusiness(ctx, 999)
	assert.True(t, errors.Is(err, domain.ErrNotFound))

	err = db.UpdateBusiness(ctx, &models.Business{ID: 999, Slug: "nope"})
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestResourceCRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	b, r, _ := seedBusiness(t, db)

	got, err := db.GetResource(ctx, r.ID)
	require.NoError(t, err)
	assert.Equal(t, "Ana", got.Name)
	assert.Equal(t, []time.Weekday{time.Monday}, got.DaysOff)
	require.NotNil(t, got.HalfDay)
	assert.Equal(t, time.Tuesday, got.HalfDay.Weekday)
	assert.Equal(t, models.HalfMorning, got.HalfDay.Half)
	assert.False(t, got.HasOwnHours())

	got.Name = "Ana María"
	got.HalfDay = nil
	got.OpensAt, got.ClosesAt = models.NewClock(10, 0), models.NewClock(16, 0)
	require.NoError(t, db.UpdateResource(ctx, got))

	list, err := db.ListResources(ctx, b.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Ana María", list[0].Name)
	assert.Nil(t, list[0].HalfDay)
	assert.True(t, list[0].HasOwnHours())

	_, err = db.GetResource(ctx, 404)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestServiceCRUD(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	b, r, s := seedBusiness(t, db)

	other := &models.Resource{BusinessID: b.ID, Name: "Luis", Active: true}
	require.NoError(t, db.CreateResource(ctx, other))

	s.ResourceIDs = []int64{other.ID}
	s.DurationMinutes = 45
	require.NoError(t, db.UpdateService(ctx, s))

	got, err := db.GetService(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, 45, got.DurationMinutes)
	assert.Equal(t, []int64{other.ID}, got.ResourceIDs)
	assert.False(t, got.AllowedFor(r.ID))

	list, err := db.ListServices(ctx, b.ID)
	require.NoError(t, err)
	assert.Len(t, list, 1)

	bad := &models.Service{BusinessID: b.ID, Name: "Broken", DurationMinutes: 0}
	assert.Error(t, db.CreateService(ctx, bad))
}

func TestDB_ErrorPaths(t *testing.T) {
	logger := zerolog.Nop()
	db, err := NewDB(filepath.Join(t.TempDir(), "closed.db"), &logger)
	require.NoError(t, err)
	db.Close()

	ctx := context.Background()

	t.Run("CommitAppointments", func(t *testing.T) {
		err := db.CommitAppointments(ctx, []*models.Appointment{{ID: "x"}})
		assert.Error(t, err)
	})

	t.Run("ListDayAppointments", func(t *testing.T) {
		_, err := db.ListDayAppointments(ctx, 1, time.Now())
		assert.Error(t, err)
	})

	t.Run("CreateSyncTask", func(t *testing.T) {
		_, err := db.CreateSyncTask(ctx, &models.SyncTask{})
		assert.Error(t, err)
	})

	t.Run("GetBusiness", func(t *testing.T) {
		_, err := db.GetBusiness(ctx, 1)
		assert.Error(t, err)
		assert.False(t, errors.Is(err, domain.ErrNotFound))
	})
}

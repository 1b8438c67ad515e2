package database

import (
	"context"
	"testing"

	"turnero/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClientAgenda(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	b, r, _ := seedBusiness(t, db)

	late := newAppt(b, r, "15:00", 30)
	early := newAppt(b, r, "09:00", 30)
	block := newAppt(b, r, "12:00", 30)
	block.Blocked = true
	block.ClientID = ""

	require.NoError(t, db.SaveCopies(ctx, []*models.Appointment{late, early, block}))

	copies, err := db.ListCopies(ctx, "client-1")
	require.NoError(t, err)
	require.Len(t, copies, 2)
	assert.Equal(t, early.ID, copies[0].ID)
	assert.Equal(t, "15:00", copies[1].Start.String())

	early.Status = models.StatusConfirmed
	require.NoError(t, db.SaveCopies(ctx, []*models.Appointment{early}))
	copies, err = db.ListCopies(ctx, "client-1")
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, copies[0].Status)

	require.NoError(t, db.DeleteCopy(ctx, "client-1", early.ID))
	copies, err = db.ListCopies(ctx, "client-1")
	require.NoError(t, err)
	require.Len(t, copies, 1)
	assert.Equal(t, late.ID, copies[0].ID)

	none, err := db.ListCopies(ctx, "someone-else")
	require.NoError(t, err)
	assert.Empty(t, none)
}

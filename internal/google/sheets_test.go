package google

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"turnero/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

func setupMockServer(t *testing.T) (*http.ServeMux, *SheetsMirror) {
	t.Helper()
	mux := http.NewServeMux()
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	srv, err := sheets.NewService(context.Background(), option.WithEndpoint(server.URL), option.WithoutAuthentication())
	require.NoError(t, err)
	return mux, newSheetsMirror(srv, "agenda_tid")
}

func testAppointment() *models.Appointment {
	return &models.Appointment{
		ID:           "a-1",
		ResourceName: "Ana",
		ServiceName:  "Haircut",
		Date:         time.Date(2030, 3, 5, 0, 0, 0, 0, time.UTC),
		Start:        models.NewClock(10, 0),
		End:          models.NewClock(10, 30),
		ClientName:   "Luis",
		Status:       models.StatusPending,
		UpdatedAt:    time.Date(2030, 3, 4, 8, 0, 0, 0, time.UTC),
	}
}

func TestAppointmentRow(t *testing.T) {
	row := appointmentRow(testAppointment())
	require.Len(t, row, len(agendaHeader))
	assert.Equal(t, "a-1", row[0])
	assert.Equal(t, "2030-03-05", row[2])
	assert.Equal(t, "10:00", row[3])
	assert.Equal(t, "Haircut", row[6])
	assert.Equal(t, "Luis", row[7])
	assert.Equal(t, "2030-03-04 08:00:00", row[11])

	block := testAppointment()
	block.Blocked = true
	row = appointmentRow(block)
	assert.Equal(t, "blocked", row[6])
	assert.Equal(t, "", row[7])
}

func TestRowOfRange(t *testing.T) {
	row, ok := rowOfRange("Agenda!A10:L10")
	assert.True(t, ok)
	assert.Equal(t, 10, row)

	row, ok = rowOfRange("A7")
	assert.True(t, ok)
	assert.Equal(t, 7, row)

	_, ok = rowOfRange("Agenda!A:A")
	assert.False(t, ok)
}

func TestWarmUpCache(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/agenda_tid/values/Agenda!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{
			Values: [][]interface{}{{"ID"}, {"a-1"}, {}, {"a-3"}},
		})
	})

	require.NoError(t, s.WarmUpCache(context.Background()))
	row, ok := s.getCachedRow("a-3")
	assert.True(t, ok)
	assert.Equal(t, 4, row)
	_, ok = s.getCachedRow("ID")
	assert.False(t, ok, "header row is not an appointment")
}

func TestUpsertAppendsAndCachesRow(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/agenda_tid/values/Agenda!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}}})
	})
	var appended sheets.ValueRange
	mux.HandleFunc("/v4/spreadsheets/agenda_tid/values/Agenda!A:A:append", func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(body, &appended)
		_ = json.NewEncoder(w).Encode(sheets.AppendValuesResponse{
			Updates: &sheets.UpdateValuesResponse{UpdatedRange: "Agenda!A2:L2"},
		})
	})

	require.NoError(t, s.UpsertAppointment(context.Background(), testAppointment()))
	require.Len(t, appended.Values, 1)
	assert.Equal(t, "a-1", appended.Values[0][0])

	row, ok := s.getCachedRow("a-1")
	assert.True(t, ok)
	assert.Equal(t, 2, row)
}

func TestUpsertUpdatesExistingRow(t *testing.T) {
	mux, s := setupMockServer(t)
	s.setCachedRow("a-1", 5)
	called := false
	mux.HandleFunc("/v4/spreadsheets/agenda_tid/values/Agenda!A5:L5", func(w http.ResponseWriter, r *http.Request) {
		called = true
		assert.Equal(t, http.MethodPut, r.Method)
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})

	appt := testAppointment()
	appt.Status = models.StatusConfirmed
	require.NoError(t, s.UpsertAppointment(context.Background(), appt))
	assert.True(t, called)

	assert.Error(t, s.UpsertAppointment(context.Background(), nil))
}

func TestDeleteAppointment(t *testing.T) {
	mux, s := setupMockServer(t)
	s.setCachedRow("a-1", 3)
	mux.HandleFunc("/v4/spreadsheets/agenda_tid/values/Agenda!A3:L3:clear", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ClearValuesResponse{})
	})
	mux.HandleFunc("/v4/spreadsheets/agenda_tid/values/Agenda!A:A", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}}})
	})

	ctx := context.Background()
	require.NoError(t, s.DeleteAppointment(ctx, "a-1"))
	_, ok := s.getCachedRow("a-1")
	assert.False(t, ok)

	assert.NoError(t, s.DeleteAppointment(ctx, "a-1"), "missing rows are already deleted")
}

func TestMirrorServerError(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/agenda_tid/values/Agenda!A:A", func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota", http.StatusTooManyRequests)
	})
	assert.Error(t, s.DeleteAppointment(context.Background(), "a-9"))
}

func TestTestConnectionAndHeader(t *testing.T) {
	mux, s := setupMockServer(t)
	mux.HandleFunc("/v4/spreadsheets/agenda_tid/values/Agenda!A1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.ValueRange{Values: [][]interface{}{{"ID"}}})
	})
	mux.HandleFunc("/v4/spreadsheets/agenda_tid/values/Agenda!A1:L1", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(sheets.UpdateValuesResponse{})
	})

	ctx := context.Background()
	assert.NoError(t, s.TestConnection(ctx))
	assert.NoError(t, s.EnsureHeader(ctx))
}

func TestServiceAccountEmail(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creds.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"client_email":"mirror@project.iam.gserviceaccount.com"}`), 0o600))

	email, err := ServiceAccountEmail(path)
	require.NoError(t, err)
	assert.Equal(t, "mirror@project.iam.gserviceaccount.com", email)

	_, err = ServiceAccountEmail(filepath.Join(t.TempDir(), "missing.json"))
	assert.Error(t, err)
}

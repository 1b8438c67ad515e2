package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"turnero/internal/models"

	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"
)

const (
	agendaSheet   = "Agenda"
	agendaColumns = "A%d:L%d"
	timestamp     = "2006-01-02 15:04:05"
)

var errRowNotFound = errors.New("agenda row not found")

var agendaHeader = []interface{}{
	"ID", "Group", "Date", "Start", "End", "Resource", "Service",
	"Client", "Contact", "Status", "Blocked", "Updated At",
}

// SheetsMirror keeps a spreadsheet copy of the business agenda, one row per
// appointment keyed by appointment id in column A.
type SheetsMirror struct {
	service       *sheets.Service
	spreadsheetID string
	rowCache      map[string]int
	cacheMu       sync.RWMutex
}

func NewSheetsMirror(ctx context.Context, credentialsFile, spreadsheetID string) (*SheetsMirror, error) {
	credentialsJSON, err := os.ReadFile(credentialsFile)
	if err != nil {
		return nil, fmt.Errorf("unable to read credentials file: %w", err)
	}

	config, err := google.JWTConfigFromJSON(credentialsJSON, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("unable to parse credentials: %w", err)
	}

	srv, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("unable to create Sheets service: %w", err)
	}
	return newSheetsMirror(srv, spreadsheetID), nil
}

func newSheetsMirror(srv *sheets.Service, spreadsheetID string) *SheetsMirror {
	return &SheetsMirror{
		service:       srv,
		spreadsheetID: spreadsheetID,
		rowCache:      make(map[string]int),
	}
}

// ServiceAccountEmail returns the client_email of a service account key file,
// the address the spreadsheet must be shared with.
func ServiceAccountEmail(credentialsFile string) (string, error) {
	file, err := os.ReadFile(credentialsFile)
	if err != nil {
		return "", err
	}

	var creds struct {
		ClientEmail string `json:"client_email"`
	}
	if err := json.Unmarshal(file, &creds); err != nil {
		return "", err
	}
	return creds.ClientEmail, nil
}

// TestConnection reads the header row of the agenda sheet.
func (s *SheetsMirror) TestConnection(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, agendaSheet+"!A1").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("connection test failed: %w", err)
	}
	return nil
}

// EnsureHeader writes the column titles to row 1.
func (s *SheetsMirror) EnsureHeader(ctx context.Context) error {
	_, err := s.service.Spreadsheets.Values.Update(s.spreadsheetID, agendaSheet+"!"+fmt.Sprintf(agendaColumns, 1, 1),
		&sheets.ValueRange{Values: [][]interface{}{agendaHeader}}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

// WarmUpCache indexes the rows of column A.
func (s *SheetsMirror) WarmUpCache(ctx context.Context) error {
	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, agendaSheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return err
	}

	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache = make(map[string]int)
	for i, row := range resp.Values {
		if id := cellID(row); id != "" && i > 0 {
			s.rowCache[id] = i + 1
		}
	}
	return nil
}

// UpsertAppointment rewrites the row of appt or appends a new one.
func (s *SheetsMirror) UpsertAppointment(ctx context.Context, appt *models.Appointment) error {
	if appt == nil || appt.ID == "" {
		return fmt.Errorf("appointment is required")
	}

	rowIdx, err := s.findRow(ctx, appt.ID)
	if errors.Is(err, errRowNotFound) {
		return s.appendRow(ctx, appt)
	}
	if err != nil {
		return err
	}

	rangeData := agendaSheet + "!" + fmt.Sprintf(agendaColumns, rowIdx, rowIdx)
	_, err = s.service.Spreadsheets.Values.Update(s.spreadsheetID, rangeData,
		&sheets.ValueRange{Values: [][]interface{}{appointmentRow(appt)}}).
		ValueInputOption("RAW").
		Context(ctx).
		Do()
	return err
}

// DeleteAppointment clears the row of appointmentID. A missing row is not an
// error, so repeated deletes converge.
func (s *SheetsMirror) DeleteAppointment(ctx context.Context, appointmentID string) error {
	rowIdx, err := s.findRow(ctx, appointmentID)
	if errors.Is(err, errRowNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	rangeData := agendaSheet + "!" + fmt.Sprintf(agendaColumns, rowIdx, rowIdx)
	_, err = s.service.Spreadsheets.Values.Clear(s.spreadsheetID, rangeData, &sheets.ClearValuesRequest{}).
		Context(ctx).
		Do()
	if err == nil {
		s.deleteCachedRow(appointmentID)
	}
	return err
}

func (s *SheetsMirror) appendRow(ctx context.Context, appt *models.Appointment) error {
	resp, err := s.service.Spreadsheets.Values.Append(s.spreadsheetID, agendaSheet+"!A:A",
		&sheets.ValueRange{Values: [][]interface{}{appointmentRow(appt)}}).
		ValueInputOption("RAW").
		InsertDataOption("INSERT_ROWS").
		Context(ctx).
		Do()
	if err != nil {
		return err
	}
	if resp.Updates != nil {
		if row, ok := rowOfRange(resp.Updates.UpdatedRange); ok {
			s.setCachedRow(appt.ID, row)
		}
	}
	return nil
}

// findRow locates the 1-based row of id in column A, using the cache first.
func (s *SheetsMirror) findRow(ctx context.Context, id string) (int, error) {
	if id == "" {
		return 0, fmt.Errorf("appointment id is required")
	}
	if row, ok := s.getCachedRow(id); ok {
		return row, nil
	}

	resp, err := s.service.Spreadsheets.Values.Get(s.spreadsheetID, agendaSheet+"!A:A").Context(ctx).Do()
	if err != nil {
		return 0, err
	}
	for i, row := range resp.Values {
		if cellID(row) == id {
			s.setCachedRow(id, i+1)
			return i + 1, nil
		}
	}
	return 0, errRowNotFound
}

func (s *SheetsMirror) getCachedRow(id string) (int, bool) {
	s.cacheMu.RLock()
	defer s.cacheMu.RUnlock()
	row, ok := s.rowCache[id]
	return row, ok
}

func (s *SheetsMirror) setCachedRow(id string, row int) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.rowCache[id] = row
}

func (s *SheetsMirror) deleteCachedRow(id string) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	delete(s.rowCache, id)
}

func appointmentRow(a *models.Appointment) []interface{} {
	client, service := a.ClientName, a.ServiceName
	if a.Blocked {
		client, service = "", "blocked"
	}
	updated := a.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	return []interface{}{
		a.ID,
		a.GroupID,
		a.DateString(),
		a.Start.String(),
		a.End.String(),
		a.ResourceName,
		service,
		client,
		a.ClientContact,
		a.Status,
		a.Blocked,
		updated.Format(timestamp),
	}
}

func cellID(row []interface{}) string {
	if len(row) == 0 {
		return ""
	}
	if v, ok := row[0].(string); ok {
		return v
	}
	return ""
}

// rowOfRange extracts the first row number of an A1 range like "Agenda!A10:L10".
func rowOfRange(a1 string) (int, bool) {
	if i := strings.LastIndex(a1, "!"); i >= 0 {
		a1 = a1[i+1:]
	}
	if i := strings.Index(a1, ":"); i >= 0 {
		a1 = a1[:i]
	}
	digits := strings.TrimLeft(a1, "ABCDEFGHIJKLMNOPQRSTUVWXYZ")
	row, err := strconv.Atoi(digits)
	if err != nil || row <= 0 {
		return 0, false
	}
	return row, true
}

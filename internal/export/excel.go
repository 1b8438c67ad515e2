package export

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"turnero/internal/domain"
	"turnero/internal/models"

	"github.com/rs/zerolog"
	"github.com/xuri/excelize/v2"
)

const (
	maxRangeDays = 93
	contentType  = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	agendaSheet = "Agenda"
	listSheet   = "Appointments"
)

// Result describes a stored export.
type Result struct {
	FileName     string `json:"file_name"`
	Location     string `json:"location"`
	Appointments int    `json:"appointments"`
}

// Exporter writes the owner agenda of a date range to an .xlsx workbook.
type Exporter struct {
	repo   domain.Repository
	store  domain.FileStorage
	logger *zerolog.Logger
}

func NewExporter(repo domain.Repository, store domain.FileStorage, logger *zerolog.Logger) *Exporter {
	return &Exporter{repo: repo, store: store, logger: logger}
}

func (e *Exporter) Export(ctx context.Context, businessID int64, from, to time.Time) (*Result, error) {
	from, to = models.Day(from), models.Day(to)
	if to.Before(from) {
		return nil, domain.Invalid("to", "must not be before from")
	}
	if to.Sub(from) > maxRangeDays*24*time.Hour {
		return nil, domain.Invalid("to", fmt.Sprintf("range is limited to %d days", maxRangeDays))
	}

	b, err := e.repo.GetBusiness(ctx, businessID)
	if err != nil {
		return nil, err
	}
	resources, err := e.repo.ListResources(ctx, businessID)
	if err != nil {
		return nil, err
	}
	appts, err := e.repo.ListAppointmentsRange(ctx, businessID, from, to)
	if err != nil {
		return nil, err
	}

	f, err := Build(b, resources, appts, from, to)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("error writing workbook: %w", err)
	}

	fileName := fmt.Sprintf("agenda_%s_%s_to_%s.xlsx", b.Slug, from.Format(models.DateLayout), to.Format(models.DateLayout))
	location, err := e.store.Upload(ctx, b.Slug+"/"+fileName, buf.Bytes(), contentType)
	if err != nil {
		return nil, err
	}

	e.logger.Info().
		Int64("business_id", b.ID).
		Str("file", fileName).
		Int("appointments", len(appts)).
		Msg("Agenda exported")
	return &Result{FileName: fileName, Location: location, Appointments: len(appts)}, nil
}

// Build lays out a grid of resources by date plus a flat appointment list.
func Build(b *models.Business, resources []*models.Resource, appts []*models.Appointment, from, to time.Time) (*excelize.File, error) {
	f := excelize.NewFile()

	index, err := f.NewSheet(agendaSheet)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("error creating sheet: %w", err)
	}
	f.SetActiveSheet(index)

	if err := writeGrid(f, b, resources, appts, from, to); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeList(f, appts); err != nil {
		f.Close()
		return nil, err
	}

	_ = f.DeleteSheet("Sheet1")
	return f, nil
}

func writeGrid(f *excelize.File, b *models.Business, resources []*models.Resource, appts []*models.Appointment, from, to time.Time) error {
	_ = f.SetCellValue(agendaSheet, "A1", fmt.Sprintf("%s: %s - %s", b.Name, from.Format("02.01.2006"), to.Format("02.01.2006")))
	title, _ := f.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 14},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	_ = f.SetCellStyle(agendaSheet, "A1", "A1", title)

	header, _ := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#DDEBF7"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	columns := make(map[string]int)
	col := 2
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		cell, _ := excelize.CoordinatesToCellName(col, 2)
		_ = f.SetCellValue(agendaSheet, cell, d.Format("02.01"))
		_ = f.SetCellStyle(agendaSheet, cell, cell, header)
		columns[d.Format(models.DateLayout)] = col
		col++
	}
	lastCol, _ := excelize.ColumnNumberToName(col - 1)
	_ = f.MergeCell(agendaSheet, "A1", lastCol+"1")

	byCell := make(map[string][]*models.Appointment)
	for _, a := range appts {
		key := fmt.Sprintf("%d/%s", a.ResourceID, a.DateString())
		byCell[key] = append(byCell[key], a)
	}

	nameStyle, _ := f.NewStyle(&excelize.Style{
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E2EFDA"}, Pattern: 1},
		Font: &excelize.Font{Bold: true},
	})
	styles := map[string]int{}
	for name, color := range map[string]string{"pending": "#FFEB9C", "confirmed": "#C6EFCE", "blocked": "#D9D9D9"} {
		id, err := f.NewStyle(&excelize.Style{
			Fill:      excelize.Fill{Type: "pattern", Color: []string{color}, Pattern: 1},
			Alignment: &excelize.Alignment{Vertical: "top", WrapText: true},
		})
		if err != nil {
			return fmt.Errorf("error creating style: %w", err)
		}
		styles[name] = id
	}

	for i, r := range resources {
		row := i + 3
		nameCell, _ := excelize.CoordinatesToCellName(1, row)
		_ = f.SetCellValue(agendaSheet, nameCell, r.Name)
		_ = f.SetCellStyle(agendaSheet, nameCell, nameCell, nameStyle)

		for date, c := range columns {
			entries := byCell[fmt.Sprintf("%d/%s", r.ID, date)]
			if len(entries) == 0 {
				continue
			}
			sort.Slice(entries, func(i, j int) bool { return entries[i].Start < entries[j].Start })

			cell, _ := excelize.CoordinatesToCellName(c, row)
			_ = f.SetCellValue(agendaSheet, cell, cellText(entries))
			_ = f.SetCellStyle(agendaSheet, cell, cell, styles[cellState(entries)])
		}
	}

	_ = f.SetColWidth(agendaSheet, "A", "A", 25)
	if col > 2 {
		_ = f.SetColWidth(agendaSheet, "B", lastCol, 28)
	}
	return nil
}

func writeList(f *excelize.File, appts []*models.Appointment) error {
	if _, err := f.NewSheet(listSheet); err != nil {
		return fmt.Errorf("error creating sheet: %w", err)
	}
	header := []interface{}{"ID", "Date", "Start", "End", "Resource", "Service", "Client", "Contact", "Status", "Blocked", "Comment"}
	if err := f.SetSheetRow(listSheet, "A1", &header); err != nil {
		return fmt.Errorf("error writing header: %w", err)
	}
	for i, a := range appts {
		row := []interface{}{
			a.ID, a.DateString(), a.Start.String(), a.End.String(), a.ResourceName,
			a.ServiceName, a.ClientName, a.ClientContact, a.Status, a.Blocked, a.Comment,
		}
		cell, _ := excelize.CoordinatesToCellName(1, i+2)
		if err := f.SetSheetRow(listSheet, cell, &row); err != nil {
			return fmt.Errorf("error writing row %d: %w", i+2, err)
		}
	}
	return nil
}

func cellText(entries []*models.Appointment) string {
	var sb strings.Builder
	for _, a := range entries {
		if a.Blocked {
			fmt.Fprintf(&sb, "%s-%s blocked", a.Start, a.End)
		} else {
			fmt.Fprintf(&sb, "%s-%s %s (%s) [%s]", a.Start, a.End, a.ClientName, a.ServiceName, a.Status)
		}
		if a.Comment != "" {
			fmt.Fprintf(&sb, " - %s", a.Comment)
		}
		sb.WriteString("\n")
	}
	return strings.TrimSuffix(sb.String(), "\n")
}

// cellState picks the fill: any pending entry wins, then confirmed bookings.
func cellState(entries []*models.Appointment) string {
	state := "blocked"
	for _, a := range entries {
		switch {
		case a.Blocked:
		case a.Status == models.StatusPending:
			return "pending"
		default:
			state = "confirmed"
		}
	}
	return state
}

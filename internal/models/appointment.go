package models

import "time"

// Appointment is a committed reservation (or an owner block when Blocked is set).
// The same ID identifies the business record and the client's agenda copy.
type Appointment struct {
	ID              string    `json:"id"`
	GroupID         string    `json:"group_id,omitempty"`
	BusinessID      int64     `json:"business_id"`
	ResourceID      int64     `json:"resource_id"`
	ResourceName    string    `json:"resource_name"`
	ServiceID       int64     `json:"service_id,omitempty"`
	ServiceName     string    `json:"service_name"`
	DurationMinutes int       `json:"duration_minutes"`
	Date            time.Time `json:"date"`
	Start           Clock     `json:"start"`
	End             Clock     `json:"end"`
	ClientID        string    `json:"client_id,omitempty"`
	ClientName      string    `json:"client_name,omitempty"`
	ClientContact   string    `json:"client_contact,omitempty"`
	Status          string    `json:"status"` // pending, confirmed, cancelled
	Blocked         bool      `json:"blocked"`
	Comment         string    `json:"comment,omitempty"`
	Version         int64     `json:"version"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (a *Appointment) DateString() string {
	return a.Date.Format(DateLayout)
}

func (a *Appointment) IsActive() bool {
	return a.Status != StatusCancelled
}

// StartsAt returns the absolute start instant in the location of Date.
func (a *Appointment) StartsAt() time.Time {
	return a.Start.On(a.Date)
}

// Slot is a candidate [Start, End) interval derived from calendar rules.
type Slot struct {
	Start Clock `json:"start"`
	End   Clock `json:"end"`
	Past  bool  `json:"past"`
}

func (s Slot) Minutes() int {
	return int(s.End - s.Start)
}

type SlotState string

const (
	SlotFree     SlotState = "free"
	SlotOccupied SlotState = "occupied"
	SlotBlocked  SlotState = "blocked"
	SlotPast     SlotState = "past"
	SlotNoFit    SlotState = "no_fit"
)

// SlotStatus is a slot overlaid with existing appointments.
type SlotStatus struct {
	Slot
	State       SlotState    `json:"state"`
	Appointment *Appointment `json:"appointment,omitempty"`
}

func (s SlotStatus) Selectable() bool {
	return s.State == SlotFree
}

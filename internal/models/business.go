package models

import "time"

// Business is the tenant root.
type Business struct {
	ID          int64          `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Slug        string         `json:"slug" yaml:"slug"`
	Timezone    string         `json:"timezone" yaml:"timezone"`
	OpensAt     Clock          `json:"opens_at" yaml:"opens_at"`
	ClosesAt    Clock          `json:"closes_at" yaml:"closes_at"`
	ClosedDays  []time.Weekday `json:"closed_days" yaml:"closed_days"`
	SlotMode    string         `json:"slot_mode" yaml:"slot_mode"`
	SlotMinutes int            `json:"slot_minutes" yaml:"slot_minutes"`
	DailyQuota  int            `json:"daily_quota" yaml:"daily_quota"`
	OwnerID     string         `json:"owner_id" yaml:"owner_id"`
	CreatedAt   time.Time      `json:"created_at" yaml:"-"`
	UpdatedAt   time.Time      `json:"updated_at" yaml:"-"`
}

// Location returns the business time zone, UTC when unset or unknown.
func (b *Business) Location() *time.Location {
	if b == nil || b.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(b.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (b *Business) IsClosedOn(day time.Weekday) bool {
	return containsWeekday(b.ClosedDays, day)
}

// HalfDayException trims a resource's window to one half on a weekday.
// Half names the part of the day the resource is away.
type HalfDayException struct {
	Weekday time.Weekday `json:"weekday" yaml:"weekday"`
	Half    string       `json:"half" yaml:"half"`
}

// Resource is a staff member that can be booked independently.
type Resource struct {
	ID         int64             `json:"id" yaml:"id"`
	BusinessID int64             `json:"business_id" yaml:"business_id"`
	Name       string            `json:"name" yaml:"name"`
	OpensAt    Clock             `json:"opens_at" yaml:"opens_at"`
	ClosesAt   Clock             `json:"closes_at" yaml:"closes_at"`
	DaysOff    []time.Weekday    `json:"days_off" yaml:"days_off"`
	HalfDay    *HalfDayException `json:"half_day,omitempty" yaml:"half_day"`
	Active     bool              `json:"active" yaml:"active"`
	CreatedAt  time.Time         `json:"created_at" yaml:"-"`
	UpdatedAt  time.Time         `json:"updated_at" yaml:"-"`
}

// HasOwnHours reports whether the resource overrides the business hours.
func (r *Resource) HasOwnHours() bool {
	return r.OpensAt != 0 || r.ClosesAt != 0
}

func (r *Resource) IsOffOn(day time.Weekday) bool {
	return containsWeekday(r.DaysOff, day)
}

// Service is something a business sells, optionally restricted to some resources.
type Service struct {
	ID              int64     `json:"id" yaml:"id"`
	BusinessID      int64     `json:"business_id" yaml:"business_id"`
	Name            string    `json:"name" yaml:"name"`
	PriceCents      int64     `json:"price_cents" yaml:"price_cents"`
	DurationMinutes int       `json:"duration_minutes" yaml:"duration_minutes"`
	ResourceIDs     []int64   `json:"resource_ids" yaml:"resource_ids"`
	Active          bool      `json:"active" yaml:"active"`
	CreatedAt       time.Time `json:"created_at" yaml:"-"`
	UpdatedAt       time.Time `json:"updated_at" yaml:"-"`
}

// AllowedFor reports whether the resource may perform the service.
func (s *Service) AllowedFor(resourceID int64) bool {
	if len(s.ResourceIDs) == 0 {
		return true
	}
	for _, id := range s.ResourceIDs {
		if id == resourceID {
			return true
		}
	}
	return false
}

func containsWeekday(days []time.Weekday, day time.Weekday) bool {
	for _, d := range days {
		if d == day {
			return true
		}
	}
	return false
}

package models

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

const (
	HalfMorning   = "morning"
	HalfAfternoon = "afternoon"
)

const (
	SlotModeFixed = "fixed"
	SlotModeQuota = "quota"
)

const (
	RoleClient = "client"
	RoleOwner  = "owner"
)

const (
	// DefaultSlotMinutes is the base granularity when a business does not set one.
	DefaultSlotMinutes = 30

	// DefaultHorizonDays is how far ahead clients may book.
	DefaultHorizonDays = 60

	// WorkerQueueSize is the in-memory task queue size used without Redis.
	WorkerQueueSize = 1000

	// BookingAttemptsPerWindow limits booking attempts per client.
	BookingAttemptsPerWindow = 20

	// BookingAttemptsWindow is the rate-limit window in seconds.
	BookingAttemptsWindow = 60
)

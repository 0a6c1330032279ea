package model

import "time"

// User is a host who owns schedules and event types. Timezone is an IANA
// name such as "America/New_York" and governs how the weekly schedule is
// projected onto concrete dates.
type User struct {
	ID        string
	Name      string
	Email     string
	Timezone  string
	CreatedAt time.Time
}

// CalendarConnection links a host to one external calendar for busy lookups.
type CalendarConnection struct {
	ID         string
	UserID     string
	Provider   string // "google" or "caldav"
	CalendarID string
	// Settings carries provider-specific JSON: oauth token material for
	// Google, endpoint and credentials for CalDAV.
	Settings  []byte
	CreatedAt time.Time
}

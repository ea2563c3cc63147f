// Package domain contains core domain types for the timem service.
package domain

import (
	"time"
)

// User is a registered chat participant. ID is the external chat identity.
type User struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	TimezoneOffset int       `json:"timezone_offset"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// Offset bounds accepted for TimezoneOffset, in hours.
const (
	MinTimezoneOffset = -12
	MaxTimezoneOffset = 14
)

// ValidOffset reports whether hours is a usable fixed UTC offset.
func ValidOffset(hours int) bool {
	return hours >= MinTimezoneOffset && hours <= MaxTimezoneOffset
}

// LocalTime converts an absolute instant to the user's wall clock.
// The result carries time.UTC as its location and must be compared only
// with other naive wall-clock values such as Task.Deadline.
func (u *User) LocalTime(now time.Time) time.Time {
	return now.UTC().Add(time.Duration(u.TimezoneOffset) * time.Hour)
}

// ProfileUpdate carries optional user profile changes.
type ProfileUpdate struct {
	Name           *string
	TimezoneOffset *int
}

// Empty reports whether the update changes nothing.
func (p ProfileUpdate) Empty() bool {
	return (p.Name == nil || *p.Name == "") && p.TimezoneOffset == nil
}

// Copyright 2024-2026 Aiku AI

// Package world holds read-only snapshots of the game world that the relay
// consumes: the in-game calendar, the moon phase and climate samples.
package world

import (
	"fmt"
	"math"
)

// Calendar is a snapshot of the host's in-game calendar.
type Calendar struct {
	HourOfDay    float64   `json:"hour_of_day"`
	DayOfYear    int       `json:"day_of_year"`
	DaysPerMonth int       `json:"days_per_month"`
	Year         int       `json:"year"`
	Moon         MoonPhase `json:"moon"`
	// SpeedOfTime is the number of in-game seconds that pass per real second.
	SpeedOfTime float64 `json:"speed_of_time"`
}

var monthAbbrevs = [...]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

// Day returns the 1-based day of the current month.
func (c Calendar) Day() int {
	if c.DaysPerMonth <= 0 {
		return c.DayOfYear + 1
	}
	return c.DayOfYear%c.DaysPerMonth + 1
}

// Month returns the 1-based month number.
func (c Calendar) Month() int {
	if c.DaysPerMonth <= 0 {
		return 1
	}
	return c.DayOfYear/c.DaysPerMonth + 1
}

// DisplayYear returns the year as shown to players. The host counts from
// zero, players count from one.
func (c Calendar) DisplayYear() int {
	return c.Year + 1
}

// Hour returns the whole hour of the day.
func (c Calendar) Hour() int {
	return int(math.Floor(c.HourOfDay))
}

// Minute returns the whole minute within the current hour.
func (c Calendar) Minute() int {
	_, frac := math.Modf(c.HourOfDay)
	return int(math.Floor(60 * frac))
}

// Clock renders the time of day as HH:MM.
func (c Calendar) Clock() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// MonthAbbrev returns the three-letter name of the month.
func (c Calendar) MonthAbbrev() string {
	return MonthAbbrev(c.Month())
}

// MonthAbbrev returns the three-letter name for a 1-based month number.
// Calendars with more than twelve months fall back to "M<n>".
func MonthAbbrev(month int) string {
	if month >= 1 && month <= len(monthAbbrevs) {
		return monthAbbrevs[month-1]
	}
	return fmt.Sprintf("M%d", month)
}

package models

import (
	"encoding/json"
	"time"
)

// Frequency is the recurrence step unit.
type Frequency string

const (
	FreqYearly   Frequency = "yearly"
	FreqMonthly  Frequency = "monthly"
	FreqWeekly   Frequency = "weekly"
	FreqDaily    Frequency = "daily"
	FreqHourly   Frequency = "hourly"
	FreqMinutely Frequency = "minutely"
	FreqSecondly Frequency = "secondly"
)

// Known reports whether the frequency is one of the supported units.
func (f Frequency) Known() bool {
	switch f {
	case FreqYearly, FreqMonthly, FreqWeekly, FreqDaily, FreqHourly, FreqMinutely, FreqSecondly:
		return true
	}
	return false
}

// NotificationRecurrence describes how a notification repeats. Exactly one of
// Count/Until is set at creation time. All timestamps are naive: time zone
// designators are stripped on create so occurrence arithmetic stays
// zone-agnostic.
type NotificationRecurrence struct {
	ID              int64          `json:"id" db:"id"`
	Frequency       Frequency      `json:"frequency" db:"frequency"`
	StartedAt       time.Time      `json:"started_at" db:"started_at"`
	Interval        int            `json:"interval" db:"interval"`
	Count           *int           `json:"count,omitempty" db:"count"`
	Until           *time.Time     `json:"until,omitempty" db:"until"`
	WeekDays        []time.Weekday `json:"week_days,omitempty" db:"week_days"`
	AdditionalDates []time.Time    `json:"additional_dates,omitempty" db:"additional_dates"`
	ExcludeDates    []time.Time    `json:"exclude_dates,omitempty" db:"exclude_dates"`
}

// MarshalJSON hides Until when Count is also populated. Count wins in display
// logic even though creation enforces mutual exclusivity.
func (r NotificationRecurrence) MarshalJSON() ([]byte, error) {
	type alias NotificationRecurrence
	a := alias(r)
	if a.Count != nil && a.Until != nil {
		a.Until = nil
	}
	return json.Marshal(a)
}

// Package wib normalizes instants to the reference timezone (WIB, UTC+7).
// All admissibility decisions in the app go through this package so that
// business rules stay reproducible regardless of where the server or the
// submitting device lives. Display conversion to the submitter's zone is
// provided separately and must never feed back into admissibility logic.
package wib

import "time"

// Offset is the reference offset in hours east of UTC.
const Offset = 7

// Zone describes one of the three Indonesian display zones.
type Zone struct {
	Name   string
	Offset int
}

// HourAt returns the WIB hour of day (0-23) for the given instant.
func HourAt(t time.Time) int {
	return (t.UTC().Hour() + Offset) % 24
}

// DateAt returns the WIB calendar date for the given instant, formatted
// as YYYY-MM-DD. The UTC date is advanced by one day when the offset
// carries past midnight.
func DateAt(t time.Time) string {
	u := t.UTC()
	if u.Hour()+Offset >= 24 {
		u = u.AddDate(0, 0, 1)
	}
	return u.Format("2006-01-02")
}

// StartOfDay returns the UTC instant at which the WIB calendar day of t
// begins. This is the single "today" boundary used by the daily quota.
func StartOfDay(t time.Time) time.Time {
	u := t.UTC()
	if u.Hour()+Offset >= 24 {
		u = u.AddDate(0, 0, 1)
	}
	midnight := time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
	return midnight.Add(-Offset * time.Hour)
}

// ZoneForLongitude maps a longitude to the display zone of the submitter.
// Bands are coarse on purpose: error messages only need the right zone
// name, not a geodetically exact boundary.
func ZoneForLongitude(lng float64) Zone {
	switch {
	case lng >= 130:
		return Zone{Name: "WIT", Offset: 9}
	case lng >= 115:
		return Zone{Name: "WITA", Offset: 8}
	default:
		return Zone{Name: "WIB", Offset: 7}
	}
}

// LocalHour converts an instant to the submitter's display hour.
func (z Zone) LocalHour(t time.Time) int {
	return (t.UTC().Hour() + z.Offset) % 24
}

// ShiftHour converts a WIB hour of day into this zone's hour of day.
func (z Zone) ShiftHour(wibHour int) int {
	return ((wibHour+z.Offset-Offset)%24 + 24) % 24
}

package presence

import (
	"fmt"
	"time"

	"kospresensi/internal/wib"
)

// Session is the morning or evening submission window, in WIB.
type Session string

const (
	SessionPagi Session = "pagi"
	SessionSore Session = "sore"
	SessionNone Session = ""
)

// Session hour bounds in WIB. Pagi is [06:00,12:00), sore is [18:00,23:00).
const (
	pagiStart = 6
	pagiEnd   = 12
	soreStart = 18
	soreEnd   = 23
)

// SessionForHour classifies a WIB hour of day.
func SessionForHour(hour int) Session {
	switch {
	case hour >= pagiStart && hour < pagiEnd:
		return SessionPagi
	case hour >= soreStart && hour < soreEnd:
		return SessionSore
	default:
		return SessionNone
	}
}

// SessionAt classifies an instant.
func SessionAt(t time.Time) Session {
	return SessionForHour(wib.HourAt(t))
}

// AdmissibleSession decides whether a swafoto at the given instant is
// allowed for the registration, and which session it belongs to. Rules,
// all in WIB:
//
//   - on the start date only sore counts (no morning proof before leaving);
//   - on the end date only pagi counts (no evening proof on the day back);
//   - strictly inside the window both sessions count;
//   - outside the window, or outside any session, nothing counts.
func AdmissibleSession(reg Registration, at time.Time) (Session, bool) {
	date := wib.DateAt(at)
	sess := SessionAt(at)

	start := reg.StartDateString()
	end := reg.EndDateString()

	if date == start && sess == SessionSore {
		return SessionSore, true
	}
	if date == end && sess == SessionPagi {
		return SessionPagi, true
	}
	if date > start && date < end && sess != SessionNone {
		return sess, true
	}
	return SessionNone, false
}

// WindowMessage phrases the allowed windows in the submitter's display
// zone. Admissibility is decided in WIB; the zone only changes how the
// rejection reads. A converted sore end that wraps past midnight is shown
// +24 so the range stays ordered.
func WindowMessage(zone wib.Zone) string {
	morning := fmt.Sprintf("%d:00-%d:00", zone.ShiftHour(pagiStart), zone.ShiftHour(pagiEnd))

	eveStart := zone.ShiftHour(soreStart)
	eveEnd := zone.ShiftHour(soreEnd)
	if eveEnd < eveStart {
		eveEnd += 24
	}
	evening := fmt.Sprintf("%d:00-%d:00", eveStart, eveEnd)

	return fmt.Sprintf("Swafoto hanya diperbolehkan pada waktu yang ditentukan (%s atau %s %s).", morning, evening, zone.Name)
}

// InSession reports whether an instant's WIB hour falls in the session.
func InSession(t time.Time, sess Session) bool {
	return SessionAt(t) == sess && sess != SessionNone
}

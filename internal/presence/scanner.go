package presence

import (
	"context"

	"github.com/sirupsen/logrus"

	"kospresensi/internal/apperr"
	"kospresensi/internal/wib"
)

// PersonRef identifies one resident in the missing-swafoto report.
type PersonRef struct {
	NPM  string `json:"npm"`
	Nama string `json:"nama"`
}

// MissingReport lists residents who owe a swafoto for the current session.
type MissingReport struct {
	Tanggal            string      `json:"tanggal"`
	Sesi               Session     `json:"sesi"`
	JumlahBelumSwafoto int         `json:"jumlahBelumSwafoto"`
	DaftarOrang        []PersonRef `json:"DaftarOrang"`
}

// ScanMissing inverts the admissibility rules: for the session open right
// now, find every actively traveling resident with no matching swafoto
// today. Start-day residents owe nothing in the pagi session and end-day
// residents owe nothing in the sore session, mirroring the submission
// rules.
func (s *Service) ScanMissing(ctx context.Context) (MissingReport, error) {
	missingScansTotal.Inc()

	now := s.now()
	session := SessionAt(now)
	if session == SessionNone {
		return MissingReport{}, apperr.New(apperr.ErrWindowClosed,
			"Tidak ada sesi swafoto saat ini. Sesi pagi WIB: 06:00-12:00, Sesi sore WIB: 18:00-23:00")
	}

	today := wib.DateAt(now)
	travelers, err := s.repo.ListActiveTravelers(ctx, today)
	if err != nil {
		return MissingReport{}, err
	}

	missing := make([]PersonRef, 0)
	for _, t := range travelers {
		if t.Registration.StartDateString() == today && session == SessionPagi {
			continue
		}
		if t.Registration.EndDateString() == today && session == SessionSore {
			continue
		}

		verifications, err := s.repo.ListVerificationsSince(ctx, t.NPM, wib.StartOfDay(now))
		if err != nil {
			return MissingReport{}, err
		}

		taken := false
		for _, v := range verifications {
			if InSession(v.CreatedAt, session) {
				taken = true
				break
			}
		}
		if !taken {
			missing = append(missing, PersonRef{NPM: t.NPM, Nama: t.Nama})
		}
	}

	logrus.WithFields(logrus.Fields{
		"tanggal": today,
		"sesi":    session,
		"missing": len(missing),
	}).Info("missing-swafoto scan complete")

	return MissingReport{
		Tanggal:            today,
		Sesi:               session,
		JumlahBelumSwafoto: len(missing),
		DaftarOrang:        missing,
	}, nil
}

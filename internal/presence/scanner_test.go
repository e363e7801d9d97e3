package presence

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kospresensi/internal/apperr"
)

func travelerRows(mock sqlmock.Sqlmock, add func(*sqlmock.Rows)) {
	rows := sqlmock.NewRows([]string{"nama", "id", "npm", "alamat", "kecamatan",
		"kelurahan", "kota", "lat", "lng", "nomor_handphone", "nomor_kamar",
		"rentang_waktu", "status", "start_date", "end_date", "swafoto_count",
		"waktu_keberangkatan", "waktu_kepulangan", "created_at"})
	add(rows)
	mock.ExpectQuery("FROM registrations g").
		WithArgs(string(StatusAccepted), sqlmock.AnyArg()).
		WillReturnRows(rows)
}

func addTraveler(rows *sqlmock.Rows, nama, id, npm string, start, end time.Time) {
	rows.AddRow(nama, id, npm, "Jl. Asia Afrika No. 12, Bandung", "Sumur Bandung",
		"Braga", "Kota Bandung", -6.92, 107.61, "081234567890", "A-12", 3,
		string(StatusAccepted), start, end, 0, nil, nil, time.Now().UTC())
}

func expectVerificationsSince(mock sqlmock.Sqlmock, npm string, createdAt ...time.Time) {
	rows := sqlmock.NewRows([]string{"id", "npm", "foto_url", "lat", "lng",
		"verified", "kecamatan", "kelurahan", "kota", "kecamatan_swafoto",
		"kelurahan_swafoto", "kota_swafoto", "status", "keterangan", "created_at"})
	for _, at := range createdAt {
		rows.AddRow("v", npm, "/uploads/a.jpg", -6.92, 107.61, false,
			"Sumur Bandung", "Braga", "Kota Bandung", DetectedPending,
			DetectedPending, DetectedPending, string(StatusReapply), "", at)
	}
	mock.ExpectQuery("SELECT (.+) FROM verifications").
		WithArgs(npm, sqlmock.AnyArg()).
		WillReturnRows(rows)
}

func TestScanMissingOutsideSessions(t *testing.T) {
	f := newFixture(t, okGeocoder(), wibTime(2024, 1, 11, 14))

	_, err := f.svc.ScanMissing(context.Background())
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrWindowClosed))
}

func TestScanMissingMorning(t *testing.T) {
	// 08:00 WIB on Jan 11: pagi session.
	f := newFixture(t, okGeocoder(), wibTime(2024, 1, 11, 8))

	travelerRows(f.mock, func(rows *sqlmock.Rows) {
		// Started today: owes nothing in the pagi session.
		addTraveler(rows, "Andi Pratama", "reg-a", "2110512001",
			dateOnly(2024, 1, 11), dateOnly(2024, 1, 13))
		// Mid-trip, already submitted this morning.
		addTraveler(rows, "Budi Santoso", "reg-b", "2110512002",
			dateOnly(2024, 1, 10), dateOnly(2024, 1, 12))
		// Mid-trip, only an evening submission yesterday does not count.
		addTraveler(rows, "Citra Ayu", "reg-c", "2110512003",
			dateOnly(2024, 1, 10), dateOnly(2024, 1, 12))
	})
	expectVerificationsSince(f.mock, "2110512002", wibTime(2024, 1, 11, 7))
	expectVerificationsSince(f.mock, "2110512003")

	report, err := f.svc.ScanMissing(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "2024-01-11", report.Tanggal)
	assert.Equal(t, SessionPagi, report.Sesi)
	assert.Equal(t, 1, report.JumlahBelumSwafoto)
	require.Len(t, report.DaftarOrang, 1)
	assert.Equal(t, "2110512003", report.DaftarOrang[0].NPM)
	assert.Equal(t, "Citra Ayu", report.DaftarOrang[0].Nama)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestScanMissingEveningSkipsEndDay(t *testing.T) {
	// 19:00 WIB on Jan 12: sore session, the trip ends today.
	f := newFixture(t, okGeocoder(), wibTime(2024, 1, 12, 19))

	travelerRows(f.mock, func(rows *sqlmock.Rows) {
		addTraveler(rows, "Budi Santoso", "reg-b", "2110512002",
			dateOnly(2024, 1, 10), dateOnly(2024, 1, 12))
	})

	report, err := f.svc.ScanMissing(context.Background())
	require.NoError(t, err)
	assert.Equal(t, SessionSore, report.Sesi)
	assert.Zero(t, report.JumlahBelumSwafoto)
	assert.Empty(t, report.DaftarOrang)
}

func TestScanMissingCountsSessionNotDay(t *testing.T) {
	// A pagi submission does not cover the sore session.
	f := newFixture(t, okGeocoder(), wibTime(2024, 1, 11, 19))

	travelerRows(f.mock, func(rows *sqlmock.Rows) {
		addTraveler(rows, "Budi Santoso", "reg-b", "2110512002",
			dateOnly(2024, 1, 10), dateOnly(2024, 1, 12))
	})
	expectVerificationsSince(f.mock, "2110512002", wibTime(2024, 1, 11, 7))

	report, err := f.svc.ScanMissing(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.JumlahBelumSwafoto)
}

package presence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository persists residents, registrations, and verifications in
// Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const registrationCols = `id, npm, alamat, kecamatan, kelurahan, kota, lat, lng,
	nomor_handphone, nomor_kamar, rentang_waktu, status, start_date, end_date,
	swafoto_count, waktu_keberangkatan, waktu_kepulangan, created_at`

func scanRegistration(row interface{ Scan(...any) error }) (Registration, error) {
	var reg Registration
	var status string
	err := row.Scan(&reg.ID, &reg.NPM, &reg.Tujuan.Alamat, &reg.Tujuan.Kecamatan,
		&reg.Tujuan.Kelurahan, &reg.Tujuan.Kota, &reg.Tujuan.Lat, &reg.Tujuan.Lng,
		&reg.NomorHandphone, &reg.NomorKamar, &reg.RentangWaktu, &status,
		&reg.StartDate, &reg.EndDate, &reg.SwafotoCount,
		&reg.WaktuKeberangkatan, &reg.WaktuKepulangan, &reg.CreatedAt)
	if err != nil {
		return Registration{}, err
	}
	reg.Status, err = ParseStatus(status)
	return reg, err
}

// GetResident loads a resident with all registrations, newest last.
// Returns nil when the NPM is unknown.
func (r *Repository) GetResident(ctx context.Context, npm string) (*Resident, error) {
	var res Resident
	err := r.db.QueryRowContext(ctx,
		`SELECT npm, nama FROM residents WHERE npm = $1`, npm,
	).Scan(&res.NPM, &res.Nama)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT `+registrationCols+` FROM registrations WHERE npm = $1 ORDER BY created_at`, npm)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		reg, err := scanRegistration(rows)
		if err != nil {
			return nil, err
		}
		res.Registrations = append(res.Registrations, reg)
	}
	return &res, rows.Err()
}

// ListResidents returns every resident with their registrations.
func (r *Repository) ListResidents(ctx context.Context) ([]Resident, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT npm, nama FROM residents ORDER BY npm`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var residents []Resident
	for rows.Next() {
		var res Resident
		if err := rows.Scan(&res.NPM, &res.Nama); err != nil {
			return nil, err
		}
		residents = append(residents, res)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	regRows, err := r.db.QueryContext(ctx,
		`SELECT `+registrationCols+` FROM registrations ORDER BY npm, created_at`)
	if err != nil {
		return nil, err
	}
	defer regRows.Close()

	byNPM := make(map[string]int, len(residents))
	for i, res := range residents {
		byNPM[res.NPM] = i
	}
	for regRows.Next() {
		reg, err := scanRegistration(regRows)
		if err != nil {
			return nil, err
		}
		if i, ok := byNPM[reg.NPM]; ok {
			residents[i].Registrations = append(residents[i].Registrations, reg)
		}
	}
	return residents, regRows.Err()
}

// CreateRegistration upserts the resident row and appends a registration.
func (r *Repository) CreateRegistration(ctx context.Context, nama string, reg Registration) (Registration, error) {
	if reg.ID == "" {
		reg.ID = uuid.NewString()
	}
	if reg.CreatedAt.IsZero() {
		reg.CreatedAt = time.Now().UTC()
	}
	if reg.Status == "" {
		reg.Status = StatusPending
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Registration{}, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO residents (npm, nama)
		VALUES ($1, $2)
		ON CONFLICT (npm) DO NOTHING
	`, reg.NPM, nama); err != nil {
		return Registration{}, err
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO registrations (`+registrationCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
	`, reg.ID, reg.NPM, reg.Tujuan.Alamat, reg.Tujuan.Kecamatan, reg.Tujuan.Kelurahan,
		reg.Tujuan.Kota, reg.Tujuan.Lat, reg.Tujuan.Lng, reg.NomorHandphone,
		reg.NomorKamar, reg.RentangWaktu, string(reg.Status), reg.StartDate,
		reg.EndDate, reg.SwafotoCount, reg.WaktuKeberangkatan, reg.WaktuKepulangan,
		reg.CreatedAt); err != nil {
		return Registration{}, err
	}

	return reg, tx.Commit()
}

// UpdateRegistrationStatus moves a registration to the given status,
// optionally stamping departure/return times.
func (r *Repository) UpdateRegistrationStatus(ctx context.Context, id string, status Status, departedAt, returnedAt *time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE registrations
		SET status = $2,
		    waktu_keberangkatan = COALESCE($3, waktu_keberangkatan),
		    waktu_kepulangan = COALESCE($4, waktu_kepulangan)
		WHERE id = $1
	`, id, string(status), departedAt, returnedAt)
	return err
}

// DeleteRegistration removes one registration and, when it was the
// resident's last, the resident row too. Reports whether the resident was
// removed.
func (r *Repository) DeleteRegistration(ctx context.Context, id, npm string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM registrations WHERE id = $1`, id); err != nil {
		return false, err
	}

	var remaining int
	if err := tx.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM registrations WHERE npm = $1`, npm,
	).Scan(&remaining); err != nil {
		return false, err
	}

	residentDeleted := false
	if remaining == 0 {
		if _, err := tx.ExecContext(ctx, `DELETE FROM residents WHERE npm = $1`, npm); err != nil {
			return false, err
		}
		residentDeleted = true
	}
	return residentDeleted, tx.Commit()
}

const verificationCols = `id, npm, foto_url, lat, lng, verified, kecamatan, kelurahan,
	kota, kecamatan_swafoto, kelurahan_swafoto, kota_swafoto, status, keterangan, created_at`

func scanVerification(row interface{ Scan(...any) error }) (Verification, error) {
	var v Verification
	var status string
	err := row.Scan(&v.ID, &v.NPM, &v.FotoURL, &v.Lat, &v.Lng, &v.Verified,
		&v.Kecamatan, &v.Kelurahan, &v.Kota, &v.KecamatanSwafoto,
		&v.KelurahanSwafoto, &v.KotaSwafoto, &status, &v.Keterangan, &v.CreatedAt)
	if err != nil {
		return Verification{}, err
	}
	v.Status, err = ParseStatus(status)
	return v, err
}

// ErrPeriodCapReached is returned when the conditional counter increment
// finds the period cap already consumed.
var ErrPeriodCapReached = errors.New("registration period cap reached")

// InsertVerificationCounted writes the verification and increments the
// registration's swafoto counter as one transaction. The increment is
// conditional on the period cap so two racing submissions cannot push the
// counter past it.
func (r *Repository) InsertVerificationCounted(ctx context.Context, v Verification, registrationID string, periodCap int) (Verification, error) {
	if v.ID == "" {
		v.ID = uuid.NewString()
	}
	if v.CreatedAt.IsZero() {
		v.CreatedAt = time.Now().UTC()
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return Verification{}, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, `
		UPDATE registrations
		SET swafoto_count = swafoto_count + 1
		WHERE id = $1 AND swafoto_count < $2
	`, registrationID, periodCap)
	if err != nil {
		return Verification{}, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return Verification{}, err
	}
	if affected == 0 {
		return Verification{}, ErrPeriodCapReached
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO verifications (`+verificationCols+`)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
	`, v.ID, v.NPM, v.FotoURL, v.Lat, v.Lng, v.Verified, v.Kecamatan, v.Kelurahan,
		v.Kota, v.KecamatanSwafoto, v.KelurahanSwafoto, v.KotaSwafoto,
		string(v.Status), v.Keterangan, v.CreatedAt); err != nil {
		return Verification{}, err
	}

	return v, tx.Commit()
}

// CountVerificationsSince counts a resident's verifications in the given
// status created at or after the boundary instant.
func (r *Repository) CountVerificationsSince(ctx context.Context, npm string, since time.Time, status Status) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM verifications
		WHERE npm = $1 AND created_at >= $2 AND status = $3
	`, npm, since, string(status)).Scan(&n)
	return n, err
}

// ListVerificationsSince returns a resident's verifications created at or
// after the boundary instant, any status.
func (r *Repository) ListVerificationsSince(ctx context.Context, npm string, since time.Time) ([]Verification, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT `+verificationCols+` FROM verifications
		WHERE npm = $1 AND created_at >= $2
		ORDER BY created_at
	`, npm, since)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Verification
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// ListVerifications returns every verification, newest first.
func (r *Repository) ListVerifications(ctx context.Context) ([]Verification, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+verificationCols+` FROM verifications ORDER BY created_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Verification
	for rows.Next() {
		v, err := scanVerification(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// UpdateDetectedAreas fills in the areas resolved from the submission's
// coordinates. The only mutation a verification ever sees.
func (r *Repository) UpdateDetectedAreas(ctx context.Context, id, kelurahan, kecamatan, kota string) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE verifications
		SET kelurahan_swafoto = $2, kecamatan_swafoto = $3, kota_swafoto = $4
		WHERE id = $1
	`, id, kelurahan, kecamatan, kota)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return fmt.Errorf("verification %s not found", id)
	}
	return nil
}

// ActiveTraveler pairs a resident with their accepted registration whose
// window contains the reference date.
type ActiveTraveler struct {
	NPM          string
	Nama         string
	Registration Registration
}

// ListActiveTravelers returns residents whose accepted registration
// covers the given WIB calendar date (YYYY-MM-DD).
func (r *Repository) ListActiveTravelers(ctx context.Context, date string) ([]ActiveTraveler, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT u.nama, g.id, g.npm, g.alamat, g.kecamatan, g.kelurahan, g.kota,
		       g.lat, g.lng, g.nomor_handphone, g.nomor_kamar, g.rentang_waktu,
		       g.status, g.start_date, g.end_date, g.swafoto_count,
		       g.waktu_keberangkatan, g.waktu_kepulangan, g.created_at
		FROM registrations g
		JOIN residents u ON u.npm = g.npm
		WHERE g.status = $1 AND g.start_date <= $2::date AND g.end_date >= $2::date
		ORDER BY g.npm
	`, string(StatusAccepted), date)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []ActiveTraveler
	for rows.Next() {
		var t ActiveTraveler
		var status string
		reg := &t.Registration
		err := rows.Scan(&t.Nama, &reg.ID, &reg.NPM, &reg.Tujuan.Alamat,
			&reg.Tujuan.Kecamatan, &reg.Tujuan.Kelurahan, &reg.Tujuan.Kota,
			&reg.Tujuan.Lat, &reg.Tujuan.Lng, &reg.NomorHandphone, &reg.NomorKamar,
			&reg.RentangWaktu, &status, &reg.StartDate, &reg.EndDate,
			&reg.SwafotoCount, &reg.WaktuKeberangkatan, &reg.WaktuKepulangan,
			&reg.CreatedAt)
		if err != nil {
			return nil, err
		}
		if reg.Status, err = ParseStatus(status); err != nil {
			return nil, err
		}
		t.NPM = reg.NPM
		out = append(out, t)
	}
	return out, rows.Err()
}

// Package presence implements the kos check-in/check-out domain:
// travel registrations with their lifecycle, swafoto submissions with
// session-window and quota rules, and the missing-submission report.
package presence

import (
	"fmt"
	"time"
)

// Status is the closed set of registration/verification states. The wire
// values keep the Indonesian strings the frontend and stored data use.
type Status string

const (
	StatusPending   Status = "Pengajuan Pendaftaran"
	StatusAccepted  Status = "Diterima"
	StatusRejected  Status = "Ditolak"
	StatusCompleted Status = "Selesai"
	StatusReapply   Status = "Mengajukan Kembali"
)

// ParseStatus maps a stored string onto the closed status set.
func ParseStatus(s string) (Status, error) {
	switch Status(s) {
	case StatusPending, StatusAccepted, StatusRejected, StatusCompleted, StatusReapply:
		return Status(s), nil
	}
	return "", fmt.Errorf("unknown status %q", s)
}

// Open reports whether the status blocks creation of a new registration.
func (s Status) Open() bool {
	return s == StatusPending || s == StatusAccepted
}

// Destination is where the resident travels to. Kelurahan and Kota are
// derived from the coordinates by reverse geocoding at registration time.
type Destination struct {
	Alamat    string  `json:"alamat"`
	Kecamatan string  `json:"kecamatan"`
	Kelurahan string  `json:"kelurahan"`
	Kota      string  `json:"kota"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
}

// Registration is one travel request belonging to a resident.
type Registration struct {
	ID                 string      `json:"id"`
	NPM                string      `json:"npm"`
	Tujuan             Destination `json:"tujuan"`
	NomorHandphone     string      `json:"nomorHandphone"`
	NomorKamar         string      `json:"nomorKamar"`
	RentangWaktu       int         `json:"rentangWaktu"`
	Status             Status      `json:"status"`
	StartDate          time.Time   `json:"startDate"`
	EndDate            time.Time   `json:"endDate"`
	SwafotoCount       int         `json:"swafotoCount"`
	WaktuKeberangkatan *time.Time  `json:"waktuKeberangkatan,omitempty"`
	WaktuKepulangan    *time.Time  `json:"waktuKepulangan,omitempty"`
	CreatedAt          time.Time   `json:"createdAt"`
}

const dateLayout = "2006-01-02"

// StartDateString and EndDateString give the WIB-comparable calendar
// dates of the travel window. Start/end are stored date-only.
func (r Registration) StartDateString() string { return r.StartDate.UTC().Format(dateLayout) }
func (r Registration) EndDateString() string   { return r.EndDate.UTC().Format(dateLayout) }

// PeriodCap is the maximum number of swafoto for the whole travel window.
func (r Registration) PeriodCap() int { return 2 * r.RentangWaktu }

// Resident is a person with a stable NPM who registers travel plans.
type Resident struct {
	NPM           string         `json:"npm"`
	Nama          string         `json:"nama"`
	Registrations []Registration `json:"registrations"`
}

// FindByStatus returns the first registration in the given status, or nil.
func (u *Resident) FindByStatus(status Status) *Registration {
	for i := range u.Registrations {
		if u.Registrations[i].Status == status {
			return &u.Registrations[i]
		}
	}
	return nil
}

// HasOpenRegistration reports whether any registration blocks a new one.
func (u *Resident) HasOpenRegistration() bool {
	for _, r := range u.Registrations {
		if r.Status.Open() {
			return true
		}
	}
	return false
}

// DetectedPending is the placeholder stored until the worker resolves the
// submission's administrative areas.
const DetectedPending = "Loading..."

// Verification is one accepted swafoto: a timestamped, geolocated proof
// of presence. Destination fields are copied from the registration at
// submission time so the record stays intact if the registration moves on.
type Verification struct {
	ID         string  `json:"id"`
	NPM        string  `json:"npm"`
	FotoURL    string  `json:"fotoUrl"`
	Lat        float64 `json:"lat"`
	Lng        float64 `json:"lng"`
	Verified   bool    `json:"verified"`
	Kecamatan  string  `json:"kecamatan"`
	Kelurahan  string  `json:"kelurahan"`
	Kota       string  `json:"kota"`
	Keterangan string  `json:"keterangan"`
	Status     Status  `json:"status"`

	KecamatanSwafoto string `json:"kecamatanSwafoto"`
	KelurahanSwafoto string `json:"kelurahanSwafoto"`
	KotaSwafoto      string `json:"kotaSwafoto"`

	CreatedAt time.Time `json:"createdAt"`
}

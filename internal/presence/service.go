package presence

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"kospresensi/internal/apperr"
	"kospresensi/internal/geocode"
	"kospresensi/internal/photostore"
	"kospresensi/internal/queue"
	"kospresensi/internal/wib"
)

// Geocoder is the reverse-geocoding collaborator contract.
type Geocoder interface {
	Lookup(ctx context.Context, lat, lng float64) (geocode.Address, error)
}

// Service coordinates the registration lifecycle and swafoto submissions.
// Every operation touching one resident's state runs under that
// resident's lock, so a quota check and the increment it guards cannot
// interleave with a concurrent submission.
type Service struct {
	repo   *Repository
	geo    Geocoder
	photos photostore.Store
	jobs   queue.Queue

	mu    sync.Mutex
	locks map[string]*sync.Mutex

	now func() time.Time
}

// NewService creates a service backed by a repository.
func NewService(repo *Repository, geo Geocoder, photos photostore.Store, jobs queue.Queue) *Service {
	return &Service{
		repo:   repo,
		geo:    geo,
		photos: photos,
		jobs:   jobs,
		locks:  make(map[string]*sync.Mutex),
		now:    time.Now,
	}
}

// lockFor returns the serialization point for one resident.
func (s *Service) lockFor(npm string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.locks[npm]
	if !ok {
		l = &sync.Mutex{}
		s.locks[npm] = l
	}
	return l
}

// RegisterRequest carries a validated registration payload. Kelurahan and
// kota are not part of it: they are derived from the coordinates.
type RegisterRequest struct {
	NPM            string
	Nama           string
	Alamat         string
	Kecamatan      string
	Lat            float64
	Lng            float64
	NomorHandphone string
	NomorKamar     string
	StartDate      time.Time
	EndDate        time.Time
	RentangWaktu   int
}

// Register creates a travel registration in PendingApproval. Fails when
// the resident already has an open registration or when the coordinates
// cannot be resolved to a kelurahan and kota.
func (s *Service) Register(ctx context.Context, req RegisterRequest) error {
	if req.RentangWaktu < 1 {
		return apperr.New(apperr.ErrValidation, "rentangWaktu must be at least 1")
	}

	addr, err := s.geo.Lookup(ctx, req.Lat, req.Lng)
	if err != nil || addr.Kelurahan == geocode.FailedKelurahan || addr.Kota == geocode.FailedKota {
		logrus.WithError(err).WithField("npm", req.NPM).Warn("location verification failed")
		return apperr.New(apperr.ErrUpstream, "Failed to verify location data")
	}

	lock := s.lockFor(req.NPM)
	lock.Lock()
	defer lock.Unlock()

	resident, err := s.repo.GetResident(ctx, req.NPM)
	if err != nil {
		return err
	}
	if resident != nil && resident.HasOpenRegistration() {
		return apperr.New(apperr.ErrStateConflict, "Anda sudah memiliki pendaftaran aktif.")
	}

	reg := Registration{
		NPM: req.NPM,
		Tujuan: Destination{
			Alamat:    req.Alamat,
			Kecamatan: req.Kecamatan,
			Kelurahan: addr.Kelurahan,
			Kota:      addr.Kota,
			Lat:       req.Lat,
			Lng:       req.Lng,
		},
		NomorHandphone: req.NomorHandphone,
		NomorKamar:     req.NomorKamar,
		RentangWaktu:   req.RentangWaktu,
		Status:         StatusPending,
		StartDate:      req.StartDate,
		EndDate:        req.EndDate,
		CreatedAt:      s.now().UTC(),
	}
	if _, err := s.repo.CreateRegistration(ctx, req.Nama, reg); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{"npm": req.NPM, "kota": addr.Kota}).Info("registration created")
	return nil
}

// PendingStatus returns the status of a PendingApproval registration, or
// empty when the resident is unknown or has nothing pending.
func (s *Service) PendingStatus(ctx context.Context, npm string) (string, error) {
	resident, err := s.repo.GetResident(ctx, npm)
	if err != nil {
		return "", err
	}
	if resident == nil {
		return "", nil
	}
	if reg := resident.FindByStatus(StatusPending); reg != nil {
		return string(reg.Status), nil
	}
	return "", nil
}

// findForTransition loads the resident and the registration currently in
// the expected status, mapping the misses onto the error taxonomy.
func (s *Service) findForTransition(ctx context.Context, npm string, expected Status) (*Registration, error) {
	resident, err := s.repo.GetResident(ctx, npm)
	if err != nil {
		return nil, err
	}
	if resident == nil {
		return nil, apperr.New(apperr.ErrNotFound, "User not found")
	}
	reg := resident.FindByStatus(expected)
	if reg == nil {
		return nil, apperr.New(apperr.ErrStateConflict, "No active registration found")
	}
	return reg, nil
}

// Approve moves a pending registration to Accepted and stamps departure.
func (s *Service) Approve(ctx context.Context, npm string) error {
	lock := s.lockFor(npm)
	lock.Lock()
	defer lock.Unlock()

	reg, err := s.findForTransition(ctx, npm, StatusPending)
	if err != nil {
		return err
	}
	departed := s.now().UTC()
	if err := s.repo.UpdateRegistrationStatus(ctx, reg.ID, StatusAccepted, &departed, nil); err != nil {
		return err
	}
	logrus.WithField("npm", npm).Info("registration approved")
	return nil
}

// Reject removes a pending registration entirely; the resident record
// goes with it when nothing else remains.
func (s *Service) Reject(ctx context.Context, npm string) (residentDeleted bool, err error) {
	lock := s.lockFor(npm)
	lock.Lock()
	defer lock.Unlock()

	reg, err := s.findForTransition(ctx, npm, StatusPending)
	if err != nil {
		return false, err
	}
	deleted, err := s.repo.DeleteRegistration(ctx, reg.ID, npm)
	if err != nil {
		return false, err
	}
	logrus.WithFields(logrus.Fields{"npm": npm, "residentDeleted": deleted}).Info("registration rejected")
	return deleted, nil
}

// Complete moves an accepted registration to Completed and stamps return.
func (s *Service) Complete(ctx context.Context, npm string) error {
	lock := s.lockFor(npm)
	lock.Lock()
	defer lock.Unlock()

	reg, err := s.findForTransition(ctx, npm, StatusAccepted)
	if err != nil {
		return err
	}
	returned := s.now().UTC()
	if err := s.repo.UpdateRegistrationStatus(ctx, reg.ID, StatusCompleted, nil, &returned); err != nil {
		return err
	}
	logrus.WithField("npm", npm).Info("registration completed")
	return nil
}

// RejectReapply closes a disputed re-submission.
func (s *Service) RejectReapply(ctx context.Context, npm string) error {
	lock := s.lockFor(npm)
	lock.Lock()
	defer lock.Unlock()

	reg, err := s.findForTransition(ctx, npm, StatusReapply)
	if err != nil {
		return err
	}
	if err := s.repo.UpdateRegistrationStatus(ctx, reg.ID, StatusRejected, nil, nil); err != nil {
		return err
	}
	logrus.WithField("npm", npm).Info("reapply rejected")
	return nil
}

// Daily cap: accepted swafoto per resident per WIB calendar day.
const dailyCap = 2

// SubmitRequest carries one swafoto submission.
type SubmitRequest struct {
	NPM        string
	Lat        float64
	Lng        float64
	Keterangan string
	Photo      []byte
	PhotoName  string
}

// Submit records a swafoto if the current instant is admissible and no
// quota is exhausted. The verification row and the counter increment
// commit together; the geocode lookup for detected areas happens later in
// the worker and can never fail the submission.
func (s *Service) Submit(ctx context.Context, req SubmitRequest) (Verification, error) {
	v, err := s.submit(ctx, req)
	submissionsTotal.WithLabelValues(outcomeFor(err)).Inc()
	return v, err
}

func (s *Service) submit(ctx context.Context, req SubmitRequest) (Verification, error) {
	lock := s.lockFor(req.NPM)
	lock.Lock()
	defer lock.Unlock()

	resident, err := s.repo.GetResident(ctx, req.NPM)
	if err != nil {
		return Verification{}, err
	}
	if resident == nil {
		return Verification{}, apperr.New(apperr.ErrNotFound, "User not found")
	}
	active := resident.FindByStatus(StatusAccepted)
	if active == nil {
		return Verification{}, apperr.New(apperr.ErrStateConflict, "User status does not allow swafoto submission")
	}

	now := s.now()
	if _, ok := AdmissibleSession(*active, now); !ok {
		zone := wib.ZoneForLongitude(req.Lng)
		logrus.WithFields(logrus.Fields{
			"npm":       req.NPM,
			"zone":      zone.Name,
			"localHour": zone.LocalHour(now),
		}).Warn("swafoto outside allowed window")
		return Verification{}, apperr.New(apperr.ErrWindowClosed, WindowMessage(zone))
	}

	takenToday, err := s.repo.CountVerificationsSince(ctx, req.NPM, wib.StartOfDay(now), StatusAccepted)
	if err != nil {
		return Verification{}, err
	}
	if takenToday >= dailyCap {
		return Verification{}, apperr.New(apperr.ErrQuotaExceeded, "Swafoto has already been taken twice today")
	}
	if active.SwafotoCount >= active.PeriodCap() {
		return Verification{}, apperr.New(apperr.ErrQuotaExceeded, "Swafoto has reached the limit for the time range")
	}

	fotoURL, err := s.photos.Save(req.Photo, req.PhotoName)
	if err != nil {
		return Verification{}, apperr.Wrap(apperr.ErrInternal, "photo store failed", err)
	}

	v := Verification{
		NPM:        req.NPM,
		FotoURL:    fotoURL,
		Lat:        req.Lat,
		Lng:        req.Lng,
		Kecamatan:  active.Tujuan.Kecamatan,
		Kelurahan:  active.Tujuan.Kelurahan,
		Kota:       active.Tujuan.Kota,
		Keterangan: req.Keterangan,
		Status:     StatusReapply,

		KecamatanSwafoto: DetectedPending,
		KelurahanSwafoto: DetectedPending,
		KotaSwafoto:      DetectedPending,

		CreatedAt: now.UTC(),
	}

	v, err = s.repo.InsertVerificationCounted(ctx, v, active.ID, active.PeriodCap())
	if errors.Is(err, ErrPeriodCapReached) {
		return Verification{}, apperr.New(apperr.ErrQuotaExceeded, "Swafoto has reached the limit for the time range")
	}
	if err != nil {
		return Verification{}, err
	}

	// Best effort: detected areas stay "Loading..." until the worker
	// resolves them.
	job := queue.GeocodeJob{VerificationID: v.ID, NPM: v.NPM, Lat: v.Lat, Lng: v.Lng}
	if err := s.jobs.Publish(ctx, job); err != nil {
		logrus.WithError(err).WithField("verification", v.ID).Warn("geocode job publish failed")
	}

	logrus.WithFields(logrus.Fields{"npm": req.NPM, "verification": v.ID}).Info("swafoto accepted")
	return v, nil
}

func outcomeFor(err error) string {
	switch {
	case err == nil:
		return outcomeAccepted
	case errors.Is(err, apperr.ErrWindowClosed):
		return outcomeWindow
	case errors.Is(err, apperr.ErrQuotaExceeded):
		return outcomeQuota
	case errors.Is(err, apperr.ErrStateConflict):
		return outcomeConflict
	default:
		return outcomeError
	}
}

// FillDetectedAreas writes worker-resolved areas onto a verification.
func (s *Service) FillDetectedAreas(ctx context.Context, verificationID string, addr geocode.Address) error {
	return s.repo.UpdateDetectedAreas(ctx, verificationID, addr.Kelurahan, addr.Kecamatan, addr.Kota)
}

// Progress is the resident-facing summary of the active registration.
type Progress struct {
	RentangWaktu      int         `json:"rentangWaktu"`
	SwafotoCount      int         `json:"swafotoCount"`
	SwafotoTakenToday int         `json:"swafotoTakenToday"`
	Status            Status      `json:"status"`
	Tujuan            Destination `json:"tujuan"`
	StartDate         time.Time   `json:"startDate"`
	EndDate           time.Time   `json:"endDate"`
}

// ActiveProgress reports quota usage for the resident's accepted
// registration.
func (s *Service) ActiveProgress(ctx context.Context, npm string) (Progress, error) {
	resident, err := s.repo.GetResident(ctx, npm)
	if err != nil {
		return Progress{}, err
	}
	if resident == nil {
		return Progress{}, apperr.New(apperr.ErrNotFound, "User not found")
	}
	active := resident.FindByStatus(StatusAccepted)
	if active == nil {
		return Progress{}, apperr.New(apperr.ErrNotFound, "No active registration found")
	}

	takenToday, err := s.repo.CountVerificationsSince(ctx, npm, wib.StartOfDay(s.now()), StatusAccepted)
	if err != nil {
		return Progress{}, err
	}

	return Progress{
		RentangWaktu:      active.RentangWaktu,
		SwafotoCount:      active.SwafotoCount,
		SwafotoTakenToday: takenToday,
		Status:            active.Status,
		Tujuan:            active.Tujuan,
		StartDate:         active.StartDate,
		EndDate:           active.EndDate,
	}, nil
}

// DayStatus reports which sessions are already covered today.
type DayStatus struct {
	Pagi bool `json:"pagi"`
	Sore bool `json:"sore"`
}

// SessionsTakenToday classifies today's verifications by WIB hour.
func (s *Service) SessionsTakenToday(ctx context.Context, npm string) (DayStatus, error) {
	now := s.now()
	today, err := s.repo.ListVerificationsSince(ctx, npm, wib.StartOfDay(now))
	if err != nil {
		return DayStatus{}, err
	}

	var status DayStatus
	for _, v := range today {
		switch SessionAt(v.CreatedAt) {
		case SessionPagi:
			status.Pagi = true
		case SessionSore:
			status.Sore = true
		}
	}
	return status, nil
}

// ListResidents exposes the resident roster.
func (s *Service) ListResidents(ctx context.Context) ([]Resident, error) {
	return s.repo.ListResidents(ctx)
}

// ListVerifications exposes the full verification log.
func (s *Service) ListVerifications(ctx context.Context) ([]Verification, error) {
	return s.repo.ListVerifications(ctx)
}

package presence

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	submissionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "kospresensi_swafoto_submissions_total",
		Help: "Swafoto submission attempts by outcome.",
	}, []string{"outcome"})

	missingScansTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "kospresensi_missing_scans_total",
		Help: "Missing-swafoto scans executed.",
	})
)

const (
	outcomeAccepted = "accepted"
	outcomeWindow   = "window_closed"
	outcomeQuota    = "quota_exceeded"
	outcomeConflict = "state_conflict"
	outcomeError    = "error"
)

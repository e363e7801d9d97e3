package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"kospresensi/internal/config"
	"kospresensi/internal/geocode"
	"kospresensi/internal/presence"
	"kospresensi/internal/queue"
	"kospresensi/internal/store"
)

// Worker consumes geocode jobs and fills the detected areas on swafoto
// records the API left at "Loading...".
func main() {
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logrus.Info("shutdown signal received")
		cancel()
	}()

	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		logrus.Fatalf("db connect failed: %v", err)
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	}

	geo := geocode.New(cfg.OpenCageURL, cfg.OpenCageKey, cfg.GoogleGeoURL, cfg.GoogleGeoKey, cfg.GeocodeTimeout, cfg.GeocodeStatic)
	svc := presence.NewService(presence.NewRepository(db.Client), geo, nil, q)

	jobs, err := q.Consume(ctx)
	if err != nil {
		logrus.Fatalf("queue consume init failed: %v", err)
	}

	logrus.Info("worker started, waiting for geocode jobs...")
	for job := range jobs {
		log := logrus.WithFields(logrus.Fields{"verification": job.VerificationID, "npm": job.NPM})

		addr, err := geo.Lookup(ctx, job.Lat, job.Lng)
		if err != nil {
			// The failure sentinels still get written so the record never
			// stays at "Loading..." forever.
			log.WithError(err).Warn("geocode lookup failed")
		}

		if err := svc.FillDetectedAreas(ctx, job.VerificationID, addr); err != nil {
			log.WithError(err).Warn("detected area update failed")
			continue
		}
		log.WithField("kota", addr.Kota).Info("detected areas filled")
	}

	logrus.Info("worker stopped")
}

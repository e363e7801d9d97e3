package main

import (
	"context"
	"io"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"kospresensi/internal/apperr"
	"kospresensi/internal/auth"
	"kospresensi/internal/config"
	"kospresensi/internal/geocode"
	"kospresensi/internal/httpmiddleware"
	"kospresensi/internal/photostore"
	"kospresensi/internal/presence"
	"kospresensi/internal/queue"
	"kospresensi/internal/store"
)

func main() {
	cfg := config.Load()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}

	if err := runHTTP(cfg); err != nil {
		logrus.Fatalf("http server failed: %v", err)
	}
}

func runHTTP(cfg config.App) error {
	db, err := store.NewDB(cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, cfg.QueueKey)
	}

	var photos photostore.Store
	if cfg.CloudinaryCloudName != "" && cfg.CloudinaryAPIKey != "" && cfg.CloudinaryAPISecret != "" {
		photos = photostore.NewCloudinary(cfg.CloudinaryCloudName, cfg.CloudinaryAPIKey, cfg.CloudinaryAPISecret, cfg.CloudinaryFolder)
		logrus.WithField("cloud", cfg.CloudinaryCloudName).Info("cloudinary photo storage configured")
	} else {
		disk, err := photostore.NewDisk(cfg.UploadDir)
		if err != nil {
			return err
		}
		photos = disk
	}

	geo := geocode.New(cfg.OpenCageURL, cfg.OpenCageKey, cfg.GoogleGeoURL, cfg.GoogleGeoKey, cfg.GeocodeTimeout, cfg.GeocodeStatic)

	svc := presence.NewService(presence.NewRepository(db.Client), geo, photos, q)
	admins := auth.NewAdminStore(db.Client)

	if err := admins.EnsureAdmin(context.Background(), cfg.AdminUsername, cfg.AdminPassword); err != nil {
		logrus.WithError(err).Warn("admin bootstrap skipped")
	}

	registerLimit := httpmiddleware.NewFixedWindow(cfg.RegisterLimitPerWindow, cfg.RateLimitWindow,
		"Terlalu banyak pendaftaran, coba lagi nanti.")
	uploadLimit := httpmiddleware.NewFixedWindow(cfg.UploadLimitPerWindow, cfg.RateLimitWindow,
		"Terlalu banyak unggahan swafoto, coba lagi nanti.")
	loginLimit := httpmiddleware.NewFixedWindow(cfg.LoginLimitPerWindow, cfg.RateLimitWindow,
		"Terlalu banyak percobaan login, coba lagi nanti.")

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	users := r.Group("/users")

	users.POST("/register", registerLimit.GinMiddleware(), func(c *gin.Context) {
		var body registerPayload
		if err := c.ShouldBindJSON(&body); err != nil {
			writeErr(c, apperr.New(apperr.ErrValidation, "Invalid request body"))
			return
		}
		req, err := body.toRequest()
		if err != nil {
			writeErr(c, err)
			return
		}
		if err := svc.Register(c.Request.Context(), req); err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"success": true, "message": "Pendaftaran berhasil diajukan."})
	})

	users.GET("/verify/user/:npm", func(c *gin.Context) {
		status, err := svc.PendingStatus(c.Request.Context(), c.Param("npm"))
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "status": status})
	})

	users.GET("/list", func(c *gin.Context) {
		residents, err := svc.ListResidents(c.Request.Context())
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "users": residents})
	})

	adminUsers := users.Group("", auth.AdminAuth(cfg.JWTSigningKey, cfg.JWTIssuer))

	adminUsers.POST("/approve/:npm", func(c *gin.Context) {
		if err := svc.Approve(c.Request.Context(), c.Param("npm")); err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Pendaftaran disetujui."})
	})

	adminUsers.DELETE("/reject/:npm", func(c *gin.Context) {
		residentDeleted, err := svc.Reject(c.Request.Context(), c.Param("npm"))
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{
			"success":     true,
			"message":     "Pendaftaran ditolak.",
			"userDeleted": residentDeleted,
		})
	})

	adminUsers.POST("/complete/:npm", func(c *gin.Context) {
		if err := svc.Complete(c.Request.Context(), c.Param("npm")); err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Perjalanan selesai."})
	})

	adminUsers.POST("/reject-reapply/:npm", func(c *gin.Context) {
		if err := svc.RejectReapply(c.Request.Context(), c.Param("npm")); err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "message": "Pengajuan kembali ditolak."})
	})

	verify := r.Group("/verify")

	verify.POST("/upload/:npm", uploadLimit.GinMiddleware(), func(c *gin.Context) {
		npm := c.Param("npm")
		if !npmRe.MatchString(npm) {
			writeErr(c, apperr.New(apperr.ErrValidation, "NPM must be 10 digits"))
			return
		}

		lat, lng, err := parseCoordForm(c)
		if err != nil {
			writeErr(c, err)
			return
		}

		file, header, ferr := c.Request.FormFile("swafoto")
		if ferr != nil {
			writeErr(c, apperr.New(apperr.ErrValidation, "swafoto file is required"))
			return
		}
		defer file.Close()

		if header.Size > cfg.MaxUploadSize {
			writeErr(c, apperr.New(apperr.ErrValidation, "File too large"))
			return
		}
		if !photostore.AllowedType(header.Header.Get("Content-Type")) {
			writeErr(c, apperr.New(apperr.ErrValidation, "Only image files are allowed"))
			return
		}

		data, ferr := io.ReadAll(io.LimitReader(file, cfg.MaxUploadSize+1))
		if ferr != nil {
			writeErr(c, apperr.Wrap(apperr.ErrInternal, "read upload failed", ferr))
			return
		}
		if int64(len(data)) > cfg.MaxUploadSize {
			writeErr(c, apperr.New(apperr.ErrValidation, "File too large"))
			return
		}

		v, err := svc.Submit(c.Request.Context(), presence.SubmitRequest{
			NPM:        npm,
			Lat:        lat,
			Lng:        lng,
			Keterangan: c.PostForm("keterangan"),
			Photo:      data,
			PhotoName:  header.Filename,
		})
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, gin.H{"success": true, "verification": v})
	})

	verify.GET("/list", func(c *gin.Context) {
		list, err := svc.ListVerifications(c.Request.Context())
		if err != nil {
			writeErr(c, err)
			return
		}
		out := make([]verificationView, 0, len(list))
		for _, v := range list {
			out = append(out, verificationView{Verification: v, LokasiSesuai: v.LocationMatches()})
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "verifications": out})
	})

	verify.GET("/user/:npm", func(c *gin.Context) {
		progress, err := svc.ActiveProgress(c.Request.Context(), c.Param("npm"))
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "progress": progress})
	})

	verify.GET("/swafoto-status/:npm", func(c *gin.Context) {
		status, err := svc.SessionsTakenToday(c.Request.Context(), c.Param("npm"))
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"success": true, "pagi": status.Pagi, "sore": status.Sore})
	})

	verify.GET("/missing-swafoto", func(c *gin.Context) {
		report, err := svc.ScanMissing(c.Request.Context())
		if err != nil {
			writeErr(c, err)
			return
		}
		c.JSON(http.StatusOK, report)
	})

	r.POST("/admin/login", loginLimit.GinMiddleware(), func(c *gin.Context) {
		var body struct {
			Username string `json:"username" binding:"required"`
			Password string `json:"password" binding:"required"`
		}
		if err := c.ShouldBindJSON(&body); err != nil {
			writeErr(c, apperr.New(apperr.ErrValidation, "username and password are required"))
			return
		}
		adminID, err := admins.Authenticate(c.Request.Context(), body.Username, body.Password)
		if err != nil {
			writeErr(c, err)
			return
		}
		token, exp, err := auth.Issue(adminID, cfg.JWTIssuer, cfg.JWTSigningKey, cfg.TokenTTL)
		if err != nil {
			writeErr(c, apperr.Wrap(apperr.ErrInternal, "token issue failed", err))
			return
		}
		c.SetCookie("token", token, int(time.Until(exp).Seconds()), "/", "", cfg.Env == "production", true)
		c.JSON(http.StatusOK, gin.H{"success": true, "token": token, "expiresAt": exp.Unix()})
	})

	r.Static("/uploads", cfg.UploadDir)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logrus.Infof("starting server on :%s", cfg.HTTPPort)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logrus.Fatalf("server error: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.Warnf("server forced shutdown: %v", err)
	}

	logrus.Info("server exited")
	return nil
}

var (
	npmRe   = regexp.MustCompile(`^[0-9]{10}$`)
	phoneRe = regexp.MustCompile(`^[0-9+]{8,15}$`)
	dateRe  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
)

// verificationView decorates a verification with the advisory
// location-match flag for the admin listing.
type verificationView struct {
	presence.Verification
	LokasiSesuai bool `json:"lokasiSesuai"`
}

// registerPayload mirrors the frontend registration form.
type registerPayload struct {
	NPM                  string    `json:"npm"`
	Nama                 string    `json:"nama"`
	Alamat               string    `json:"alamat"`
	Kecamatan            string    `json:"kecamatan"`
	Koordinat            []float64 `json:"koordinat"`
	NomorHandphone       string    `json:"nomorHandphone"`
	NomorKamar           string    `json:"nomorKamar"`
	TanggalKeberangkatan string    `json:"tanggalKeberangkatan"`
	TanggalKepulangan    string    `json:"tanggalKepulangan"`
	RentangWaktu         int       `json:"rentangWaktu"`
}

func (p registerPayload) toRequest() (presence.RegisterRequest, error) {
	switch {
	case !npmRe.MatchString(p.NPM):
		return presence.RegisterRequest{}, apperr.New(apperr.ErrValidation, "NPM must be 10 digits")
	case len(p.Nama) < 3 || len(p.Nama) > 100:
		return presence.RegisterRequest{}, apperr.New(apperr.ErrValidation, "nama must be 3-100 characters")
	case len(p.Alamat) < 10 || len(p.Alamat) > 200:
		return presence.RegisterRequest{}, apperr.New(apperr.ErrValidation, "alamat must be 10-200 characters")
	case len(p.Kecamatan) < 3 || len(p.Kecamatan) > 100:
		return presence.RegisterRequest{}, apperr.New(apperr.ErrValidation, "kecamatan must be 3-100 characters")
	case len(p.Koordinat) != 2:
		return presence.RegisterRequest{}, apperr.New(apperr.ErrValidation, "koordinat must be [lat, lng]")
	case !phoneRe.MatchString(p.NomorHandphone):
		return presence.RegisterRequest{}, apperr.New(apperr.ErrValidation, "nomorHandphone must be 8-15 digits")
	case len(p.NomorKamar) < 1 || len(p.NomorKamar) > 10:
		return presence.RegisterRequest{}, apperr.New(apperr.ErrValidation, "nomorKamar must be 1-10 characters")
	case !dateRe.MatchString(p.TanggalKeberangkatan) || !dateRe.MatchString(p.TanggalKepulangan):
		return presence.RegisterRequest{}, apperr.New(apperr.ErrValidation, "dates must be YYYY-MM-DD")
	case p.RentangWaktu < 1:
		return presence.RegisterRequest{}, apperr.New(apperr.ErrValidation, "rentangWaktu must be at least 1")
	}

	start, err := time.Parse("2006-01-02", p.TanggalKeberangkatan)
	if err != nil {
		return presence.RegisterRequest{}, apperr.New(apperr.ErrValidation, "invalid tanggalKeberangkatan")
	}
	end, err := time.Parse("2006-01-02", p.TanggalKepulangan)
	if err != nil {
		return presence.RegisterRequest{}, apperr.New(apperr.ErrValidation, "invalid tanggalKepulangan")
	}
	if end.Before(start) {
		return presence.RegisterRequest{}, apperr.New(apperr.ErrValidation, "tanggalKepulangan must not be before tanggalKeberangkatan")
	}

	return presence.RegisterRequest{
		NPM:            p.NPM,
		Nama:           p.Nama,
		Alamat:         p.Alamat,
		Kecamatan:      p.Kecamatan,
		Lat:            p.Koordinat[0],
		Lng:            p.Koordinat[1],
		NomorHandphone: p.NomorHandphone,
		NomorKamar:     p.NomorKamar,
		StartDate:      start,
		EndDate:        end,
		RentangWaktu:   p.RentangWaktu,
	}, nil
}

func parseCoordForm(c *gin.Context) (lat, lng float64, err error) {
	var coord struct {
		Lat float64 `form:"latitude" binding:"required"`
		Lng float64 `form:"longitude" binding:"required"`
	}
	if berr := c.ShouldBind(&coord); berr != nil {
		return 0, 0, apperr.New(apperr.ErrValidation, "latitude and longitude are required")
	}
	if coord.Lat < -90 || coord.Lat > 90 || coord.Lng < -180 || coord.Lng > 180 {
		return 0, 0, apperr.New(apperr.ErrValidation, "coordinates out of range")
	}
	return coord.Lat, coord.Lng, nil
}

// writeErr maps an error onto the taxonomy and writes the JSON body.
func writeErr(c *gin.Context, err error) {
	e := apperr.From(err)
	if e.HTTPStatus >= http.StatusInternalServerError {
		logrus.WithError(err).Error("request failed")
	}
	c.JSON(e.HTTPStatus, gin.H{"success": false, "code": e.Code, "message": e.Message})
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

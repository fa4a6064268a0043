package main

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"pharmtrack/internal/backend"
	"pharmtrack/internal/config"
	"pharmtrack/internal/handlers"
	"pharmtrack/internal/logging"
	"pharmtrack/internal/medicine"
	"pharmtrack/internal/middleware"
	"pharmtrack/internal/notify"
	"pharmtrack/internal/reminder"
	"pharmtrack/internal/storage"
)

func main() {
	cfg, err := config.Load(os.Args[1:], os.Getenv)
	if err != nil {
		logrus.Fatalf("Invalid configuration: %v", err)
	}
	log := logging.New(logging.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, App: "pharmtrack"})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize storage based on type
	store, closeStore, err := openStorage(cfg.Storage, log)
	if err != nil {
		log.Fatalf("Failed to initialize %s storage: %v", cfg.Storage.Type, err)
	}
	defer closeStore()

	entries := reminder.NewStore(store, log, nil)
	entries.Load()

	delivery := notify.FromConfig(cfg.Notify, log)
	opts := reminder.Options{
		Delivery:     delivery,
		VoiceKeyword: cfg.Reminder.VoiceKeyword,
	}
	if opts.Location, err = cfg.Location(); err != nil {
		log.Fatalf("Invalid timezone: %v", err)
	}

	var (
		symptoms handlers.SymptomLogger
		accounts handlers.Accounts
	)
	if cfg.Backend.URL != "" {
		bc, err := backend.New(cfg.Backend, log)
		if err != nil {
			log.Fatalf("Failed to initialize backend client: %v", err)
		}
		if cfg.Backend.Email != "" {
			if _, err := bc.Login(ctx, cfg.Backend.Email, cfg.Backend.Password); err != nil {
				log.WithError(err).Warn("backend login failed, dose logs will be sent anonymously")
			}
		}
		opts.DoseLogger = bc
		symptoms = bc
		accounts = bc
	}

	tracker := reminder.NewTracker(entries, opts, log)
	if logging.ParseLevel(cfg.Log.Level) == logrus.DebugLevel {
		defer entries.Subscribe(func(list []*medicine.Entry) {
			log.WithField("count", len(list)).Debug("medicine list changed")
		})()
	}
	waitLoop := startLoop(ctx, tracker, cfg.Reminder.Interval)

	r := mux.NewRouter()
	r.Use(chimw.RequestID, chimw.RealIP, chimw.Recoverer)
	r.HandleFunc("/health", handlers.HealthHandler).Methods("GET")

	routes := handlers.New(tracker, symptoms, log).WithAccounts(accounts)
	routes.RegisterAccounts(r.PathPrefix("/api/auth").Subrouter())

	api := r.PathPrefix("/api").Subrouter()
	api.Use(middleware.Auth(cfg.Auth.JWTSecret, log))
	routes.Register(api)

	// Static file server for frontend at "/"
	staticFs := http.FileServer(http.Dir(cfg.StaticDir))
	r.PathPrefix("/").Handler(http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		ext := filepath.Ext(req.URL.Path)
		if ext != "" {
			if ctype := mime.TypeByExtension(ext); ctype != "" {
				w.Header().Set("Content-Type", ctype)
			}
		}
		staticFs.ServeHTTP(w, req)
	}))

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           otelhttp.NewHandler(r, "pharmtrack"),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		var err error
		fields := logrus.Fields{"addr": cfg.Addr, "static": cfg.StaticDir, "storage": cfg.Storage.Type}
		if cfg.TLSCert != "" {
			log.WithFields(fields).Info("Starting pharmtrack with HTTPS")
			err = srv.ListenAndServeTLS(cfg.TLSCert, cfg.TLSKey)
		} else {
			log.WithFields(fields).Info("Starting pharmtrack with HTTP")
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Could not start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Warn("server shutdown")
	}
	// The store is closed by the deferred closeStore, so the loop and the
	// dose logs must be done with it first.
	waitLoop()
	delivery.Silence()
	tracker.Wait()
}

// startLoop runs the reminder loop until ctx is done. The returned func
// blocks until the loop has returned.
func startLoop(ctx context.Context, tracker *reminder.Tracker, interval time.Duration) func() {
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		tracker.Run(ctx, interval)
	}()
	return wg.Wait
}

// openStorage returns the configured backend and a func releasing it.
func openStorage(cfg config.StorageConfig, log logrus.FieldLogger) (storage.Storage, func(), error) {
	noop := func() {}
	switch cfg.Type {
	case "memory":
		log.Info("Using memory storage")
		return storage.NewMemoryStorage(), noop, nil
	case "file":
		log.WithFields(logrus.Fields{"entries": cfg.EntriesFile, "events": cfg.DoseEventsFile}).Info("Using file storage")
		return storage.NewFileStorage(cfg.EntriesFile, cfg.DoseEventsFile), noop, nil
	case "sqlite":
		log.WithField("path", cfg.SQLitePath).Info("Using SQLite storage")
		s, err := storage.NewSQLiteStorage(cfg.SQLitePath)
		if err != nil {
			return nil, nil, err
		}
		return s, closer(s, log), nil
	case "postgres":
		log.Info("Using Postgres storage")
		s, err := storage.NewPostgresStorage(cfg.PostgresDSN)
		if err != nil {
			return nil, nil, err
		}
		return s, closer(s, log), nil
	case "mongo":
		log.WithFields(logrus.Fields{"connection": cfg.MongoURI, "database": cfg.MongoDatabase}).Info("Using MongoDB storage")
		s, err := storage.NewMongoStorage(cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.Close(ctx); err != nil {
				log.WithError(err).Warn("failed to close MongoDB storage")
			}
		}, nil
	}
	return nil, nil, errors.New("invalid storage type: " + cfg.Type)
}

func closer(c io.Closer, log logrus.FieldLogger) func() {
	return func() {
		if err := c.Close(); err != nil {
			log.WithError(err).Warn("failed to close storage")
		}
	}
}

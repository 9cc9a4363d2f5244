package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"time"

	"scada-maintenance/internal/audit"
	"scada-maintenance/internal/auth"
	"scada-maintenance/internal/config"
	"scada-maintenance/internal/events"
	maintapp "scada-maintenance/internal/maintenance/application"
	maintenance "scada-maintenance/internal/maintenance/domain"
	maintrepo "scada-maintenance/internal/maintenance/infrastructure/postgres"
	mainthttp "scada-maintenance/internal/maintenance/interfaces/http"
	maintnotify "scada-maintenance/internal/maintenance/notify"
	"scada-maintenance/internal/maintenance/runtime"
	masterdatarepo "scada-maintenance/internal/masterdata/infrastructure/postgres"
	"scada-maintenance/internal/observability/metrics"
	"scada-maintenance/internal/scheduler"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := log.New(os.Stdout, "", log.LstdFlags)

	db, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		logger.Fatalf("db open error: %v", err)
	}
	defer db.Close()

	if err := db.Ping(); err != nil {
		logger.Fatalf("db ping error: %v", err)
	}

	metrics.Init()
	auditRepo := audit.NewRepository(db)

	pointRepo := masterdatarepo.NewPointRepository(db)
	sourceRepo := masterdatarepo.NewSourceRepository(db)
	roleRepo := masterdatarepo.NewRoleRepository(db)
	eventRepo := maintrepo.NewEventRepository(db)
	instanceRepo := events.NewRepository(db)

	broker := mainthttp.NewSSEBroker()
	notifiers := []maintapp.Notifier{broker}
	if cfg.Notify.WebhookURL != "" {
		webhook, err := maintnotify.NewWebhookNotifier(cfg.Notify.WebhookURL, cfg.Notify.Timeout)
		if err != nil {
			logger.Fatalf("webhook notifier error: %v", err)
		}
		notifiers = append(notifiers, webhook)
	}
	notifier := maintnotify.NewMultiNotifier(notifiers...)

	// Timer-driven transitions reach subscribers through the sink's change
	// listener; definition CRUD goes through the service's own notifier.
	suppression := events.NewSuppressionList()
	sink := events.NewSink(instanceRepo, suppression, func(event maintenance.MaintenanceEvent, active bool, at time.Time) {
		action := maintapp.ActionDeactivated
		if active {
			action = maintapp.ActionActivated
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		notification := maintapp.Notification{Action: action, Event: event, XID: event.XID, Name: event.Name, At: at}
		if err := notifier.Notify(ctx, notification); err != nil {
			logger.Printf("maintenance: notify %s for %s: %v", action, event.XID, err)
		}
	}, logger)

	sched := scheduler.NewTimerScheduler(scheduler.SystemClock{})
	manager := runtime.NewManager(sched, sink, logger)
	defer manager.StopAll()

	service, err := maintapp.NewService(
		eventRepo,
		pointRepo,
		sourceRepo,
		roleRepo,
		manager,
		instanceRepo,
		logger,
		maintapp.WithNotifier(notifier),
		maintapp.WithAuditLogger(auditRepo),
	)
	if err != nil {
		logger.Fatalf("maintenance service error: %v", err)
	}

	if err := manager.StartAll(context.Background(), eventRepo); err != nil {
		logger.Fatalf("maintenance runtime start error: %v", err)
	}

	handler, err := mainthttp.NewHandler(service, pointRepo, sourceRepo)
	if err != nil {
		logger.Fatalf("maintenance handler error: %v", err)
	}

	policy := auth.NewDefaultPolicy([]string{"/healthz", "/metrics"}, nil)
	authMiddleware := auth.NewMiddleware([]byte(cfg.JWTSecret), policy)

	mux := http.NewServeMux()
	mux.Handle("/api/v1/maintenance-events/stream", mainthttp.NewStreamHandler(broker))
	mux.Handle("/api/v1/maintenance-events", handler)
	mux.Handle("/api/v1/maintenance-events/", handler)
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	server := &http.Server{Addr: cfg.HTTPAddr, Handler: loggingMiddleware(authMiddleware.Wrap(mux), logger)}
	logger.Printf("http listening on %s", cfg.HTTPAddr)
	logger.Fatal(server.ListenAndServe())
}

func loggingMiddleware(next http.Handler, logger *log.Logger) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		resp := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(resp, r)
		logger.Printf("http %s %s %d %s", r.Method, r.URL.Path, resp.status, time.Since(start))
	})
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(status int) {
	w.status = status
	w.ResponseWriter.WriteHeader(status)
}

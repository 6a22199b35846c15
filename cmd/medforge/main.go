package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Strob0t/MedForge/internal/adapter/agentcatalog"
	adaptercompliance "github.com/Strob0t/MedForge/internal/adapter/compliance"
	"github.com/Strob0t/MedForge/internal/adapter/delegate"
	cfhttp "github.com/Strob0t/MedForge/internal/adapter/http"
	cfmcp "github.com/Strob0t/MedForge/internal/adapter/mcp"
	cfnats "github.com/Strob0t/MedForge/internal/adapter/nats"
	"github.com/Strob0t/MedForge/internal/adapter/natskv"
	cfotel "github.com/Strob0t/MedForge/internal/adapter/otel"
	"github.com/Strob0t/MedForge/internal/adapter/postgres"
	"github.com/Strob0t/MedForge/internal/adapter/ristretto"
	"github.com/Strob0t/MedForge/internal/adapter/tiered"
	"github.com/Strob0t/MedForge/internal/adapter/ws"
	"github.com/Strob0t/MedForge/internal/config"
	"github.com/Strob0t/MedForge/internal/domain/complexity"
	"github.com/Strob0t/MedForge/internal/logger"
	"github.com/Strob0t/MedForge/internal/middleware"
	"github.com/Strob0t/MedForge/internal/port/cache"
	compliancePort "github.com/Strob0t/MedForge/internal/port/compliance"
	"github.com/Strob0t/MedForge/internal/port/messagequeue"
	"github.com/Strob0t/MedForge/internal/resilience"
	"github.com/Strob0t/MedForge/internal/secrets"
	"github.com/Strob0t/MedForge/internal/service"
)

func main() {
	if len(os.Args) > 1 {
		var err error
		switch os.Args[1] {
		case "serve":
			err = run()
		case "migrate":
			err = runMigrate(os.Args[2:])
		case "hash-key":
			err = runHashKey(os.Args[2:])
		case "help", "--help", "-h":
			printUsage()
			return
		default:
			printUsage()
			err = fmt.Errorf("unknown command: %s", os.Args[1])
		}
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			os.Exit(1)
		}
		return
	}

	if err := run(); err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	log, closeLog := logger.New(cfg.Logging)
	defer closeLog.Close()
	slog.SetDefault(log)

	slog.Info("config loaded",
		"port", cfg.Server.Port,
		"log_level", cfg.Logging.Level,
		"delegate", cfg.Delegate.URL,
		"max_agents", cfg.Complexity.MaxAgents,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// --- Telemetry ---

	shutdownOTel, err := cfotel.Init(ctx, cfg.OTel)
	if err != nil {
		return fmt.Errorf("otel: %w", err)
	}
	metrics, err := cfotel.NewMetrics()
	if err != nil {
		return fmt.Errorf("otel metrics: %w", err)
	}

	vault, err := secrets.NewVault(secrets.EnvLoader(secretDelegateKey, secretEnrichmentKey))
	if err != nil {
		return fmt.Errorf("secrets: %w", err)
	}

	// --- Infrastructure ---

	var (
		pool       *pgxpool.Pool
		auditStore *postgres.AuditStore
		auditor    compliancePort.AuditLogger = adaptercompliance.LogAuditor{}
	)
	if cfg.Postgres.DSN != "" {
		pool, err = postgres.NewPool(ctx, cfg.Postgres)
		if err != nil {
			return fmt.Errorf("postgres: %w", err)
		}
		defer pool.Close()
		slog.Info("postgres connected")

		if err := postgres.RunMigrations(ctx, cfg.Postgres.DSN); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		slog.Info("migrations applied")

		auditStore = postgres.NewAuditStore(pool)
		auditor = adaptercompliance.MultiAuditor{adaptercompliance.LogAuditor{}, auditStore}
	} else {
		slog.Warn("postgres not configured, audit decisions are only logged")
	}

	l1, err := ristretto.NewMB(cfg.Cache.L1MaxSizeMB)
	if err != nil {
		return fmt.Errorf("l1 cache: %w", err)
	}
	defer l1.Close()
	var results cache.Cache = l1

	var queue *cfnats.Queue
	if cfg.NATS.URL != "" {
		queue, err = cfnats.Connect(ctx, cfg.NATS.URL)
		if err != nil {
			return fmt.Errorf("nats: %w", err)
		}
		defer func() { _ = queue.Close() }()

		kv, err := queue.KeyValue(ctx, cfg.Cache.L2Bucket, cfg.Cache.L2TTL)
		if err != nil {
			return fmt.Errorf("nats kv: %w", err)
		}
		results = tiered.New(l1, natskv.New(kv), cfg.Cache.L2TTL)
		slog.Info("nats connected", "kv_bucket", cfg.Cache.L2Bucket)
	} else {
		slog.Warn("nats not configured, events disabled and results cached in process only")
	}

	// --- Services ---

	providers := buildProviders(cfg, results, vault)
	enricher := service.NewEnrichmentService(providers, cfg.Enrichment.Timeout, cfg.Enrichment.MaxArticles)
	enricher.SetMetrics(metrics)

	gate := service.NewSafetyGate(nil, providers.DrugSafety, cfg.Safety.ConfidenceThreshold)
	gate.SetMetrics(metrics)

	orch := delegate.NewClient(cfg.Delegate.URL, cfg.Delegate.APIKey, cfg.Delegate.SubmitTimeout, cfg.Delegate.StatusTimeout)
	orch.SetBreaker(resilience.NewNamedBreaker("delegate", cfg.Breaker.MaxFailures, cfg.Breaker.Timeout))
	orch.SetKeySource(vault.Source(secretDelegateKey, cfg.Delegate.APIKey))

	w := cfg.Complexity.Weights
	analyzer := complexity.NewAnalyzer(cfg.Complexity.MaxAgents, complexity.Weights{
		Symptoms:    w.Symptoms,
		Urgency:     w.Urgency,
		History:     w.History,
		DataVolume:  w.DataVolume,
		Specialties: w.Specialties,
		RareDisease: w.RareDisease,
	})

	hub := ws.NewHub(cfg.Server.CORSOrigin)
	consultations := service.NewConsultationService(
		analyzer,
		enricher,
		agentcatalog.NewSelector(),
		orch,
		gate,
		adaptercompliance.NewPolicyChecker(cfg.Auth.Enabled),
		auditor,
		&cfg.Consultation,
	)
	consultations.SetBroadcaster(hub)
	consultations.SetResultCache(results)
	consultations.SetMetrics(metrics)

	notifiers, err := buildNotifiers(cfg.Notify)
	if err != nil {
		return fmt.Errorf("notifiers: %w", err)
	}
	consultations.SetNotifications(service.NewNotificationService(notifiers, cfg.Consultation.PollURLPrefix))
	slog.Info("review alerts configured", "channels", len(notifiers))
	if queue != nil {
		consultations.SetQueue(queue)

		cancelReview, err := queue.Subscribe(ctx, messagequeue.SubjectConsultationReviewRequired, reviewRequiredHandler)
		if err != nil {
			return fmt.Errorf("review subscriber: %w", err)
		}
		defer cancelReview()
	}

	// --- HTTP ---

	handlers := &cfhttp.Handlers{
		Consultations: consultations,
		Analyzer:      analyzer,
	}
	if auditStore != nil {
		handlers.Audit = auditStore
	}

	limiter := middleware.NewRateLimiterFromConfig(cfg.Rate)
	go limiter.Run(ctx, cfg.Rate.CleanupInterval, cfg.Rate.MaxIdleTime)

	r := chi.NewRouter()

	// Middleware
	r.Use(cfotel.HTTPMiddleware(cfg.OTel.ServiceName))
	r.Use(cfhttp.SecurityHeaders)
	r.Use(cfhttp.CORS(cfg.Server.CORSOrigin))
	r.Use(middleware.RequestID)
	r.Use(cfhttp.Logger)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)

	// Health endpoint with service status
	r.Get("/health", healthHandler(pool, queue, consultations, hub))

	r.Group(func(r chi.Router) {
		r.Use(middleware.Auth(middleware.NewKeyVerifier(cfg.Auth.APIKeyHashes), cfg.Auth.Enabled))
		r.Use(limiter.Handler)

		// WebSocket endpoint
		r.Get("/ws", hub.HandleWS)

		// API routes; the wait endpoint holds requests up to 45s.
		r.Group(func(r chi.Router) {
			r.Use(chimw.Timeout(60 * time.Second))
			r.Use(middleware.Idempotency(results, cfg.Consultation.ResultsTTL))
			cfhttp.MountRoutes(r, handlers)
		})
	})

	var mcpSrv *cfmcp.Server
	if cfg.MCP.Enabled {
		mcpSrv = cfmcp.NewServer(cfmcp.ServerConfig{
			Addr:    cfg.MCP.Addr,
			Name:    "medforge",
			Version: cfhttp.Version,
			APIKey:  cfg.MCP.APIKey,
		}, cfmcp.ServerDeps{
			Consultations: consultations,
			Analyzer:      analyzer,
		})
		if err := mcpSrv.Start(); err != nil {
			return fmt.Errorf("mcp server: %w", err)
		}
		slog.Info("mcp server started", "addr", cfg.MCP.Addr)
	}

	addr := ":" + cfg.Server.Port

	srv := &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      75 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// Secret rotation
	hup := make(chan os.Signal, 1)
	signal.Notify(hup, syscall.SIGHUP)
	defer signal.Stop(hup)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case <-hup:
				if err := vault.Reload(); err != nil {
					slog.Error("secret reload failed", "error", err)
					continue
				}
				slog.Info("secrets reloaded", "keys", vault.Keys())
			}
		}
	}()

	serveErr := make(chan error, 1)
	go func() {
		slog.Info("starting server", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-serveErr:
		slog.Error("server failed", "error", err)
	}
	slog.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var errs []error
	if err := srv.Shutdown(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("http shutdown: %w", err))
	}
	if mcpSrv != nil {
		if err := mcpSrv.Stop(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("mcp shutdown: %w", err))
		}
	}
	hub.Close()
	if queue != nil {
		if err := queue.Drain(); err != nil {
			errs = append(errs, fmt.Errorf("nats drain: %w", err))
		}
	}
	if err := shutdownOTel(shutdownCtx); err != nil {
		errs = append(errs, fmt.Errorf("otel shutdown: %w", err))
	}
	return errors.Join(errs...)
}

// reviewRequiredHandler surfaces consultations that need a clinician before release.
func reviewRequiredHandler(ctx context.Context, subject string, data []byte) error {
	var p messagequeue.ConsultationFinishedPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return fmt.Errorf("decode %s: %w", subject, err)
	}
	slog.WarnContext(ctx, "consultation requires human review",
		"consultation_id", p.ConsultationID,
		"task_id", p.TaskID,
		"status", p.Status,
		"safe", p.Safe,
		"safety_score", p.SafetyScore,
		"primary_diagnosis", p.PrimaryDiagnosis,
	)
	return nil
}

// healthHandler returns an http.HandlerFunc that reports service health.
// Postgres and NATS are "disabled" when not configured.
func healthHandler(pool *pgxpool.Pool, queue *cfnats.Queue, consultations *service.ConsultationService, hub *ws.Hub) http.HandlerFunc {
	type healthStatus struct {
		Status        string `json:"status"`
		Postgres      string `json:"postgres"`
		NATS          string `json:"nats"`
		Active        int    `json:"active_consultations"`
		WSConnections int    `json:"ws_connections"`
	}

	return func(w http.ResponseWriter, r *http.Request) {
		status := healthStatus{
			Status:        "ok",
			Postgres:      "disabled",
			NATS:          "disabled",
			Active:        consultations.ActiveCount(),
			WSConnections: hub.ConnectionCount(),
		}
		code := http.StatusOK
		if pool != nil {
			ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
			defer cancel()
			status.Postgres = "ok"
			if err := pool.Ping(ctx); err != nil {
				status.Postgres = "unreachable"
				status.Status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}
		if queue != nil {
			status.NATS = "ok"
			if !queue.IsConnected() {
				status.NATS = "disconnected"
				status.Status = "degraded"
				code = http.StatusServiceUnavailable
			}
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(code)
		_ = json.NewEncoder(w).Encode(status)
	}
}

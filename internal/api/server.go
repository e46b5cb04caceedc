package api

import (
	"log/slog"
	"net/http"

	"github.com/calltrail/calltrail/internal/api/middleware"
	"github.com/calltrail/calltrail/internal/audit"
	"github.com/calltrail/calltrail/internal/config"
	"github.com/calltrail/calltrail/internal/database"
	"github.com/calltrail/calltrail/internal/outbound"
	"github.com/calltrail/calltrail/internal/storage"
	"github.com/calltrail/calltrail/internal/webhook"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// Server holds HTTP handler dependencies and the chi router.
type Server struct {
	router *chi.Mux
	cfg    *config.Config

	db         *database.DB
	orgs       database.OrgRepository
	calls      database.CallLogRepository
	events     database.CallEventRepository
	recordings database.RecordingRepository
	outEvents  database.OutboundEventRepository
	attempts   database.DeliveryAttemptRepository
	holds      database.LegalHoldRepository
	transcripts database.TranscriptRepository

	processor  *webhook.Processor
	dispatcher *outbound.Dispatcher
	store      storage.Backend
	auditSink  audit.Sink

	operatorSecret []byte
	apiLimiter     *middleware.IPRateLimiter
	webhookLimiter *middleware.IPRateLimiter
}

// ServerDeps carries everything the HTTP layer needs.
type ServerDeps struct {
	DB          *database.DB
	Orgs        database.OrgRepository
	Calls       database.CallLogRepository
	Events      database.CallEventRepository
	Recordings  database.RecordingRepository
	OutEvents   database.OutboundEventRepository
	Attempts    database.DeliveryAttemptRepository
	Holds       database.LegalHoldRepository
	Transcripts database.TranscriptRepository

	Processor  *webhook.Processor
	Dispatcher *outbound.Dispatcher
	Store      storage.Backend
	AuditSink  audit.Sink

	OperatorSecret []byte
}

// NewServer creates the HTTP handler with all routes mounted.
func NewServer(cfg *config.Config, deps ServerDeps) *Server {
	s := &Server{
		router:         chi.NewRouter(),
		cfg:            cfg,
		db:             deps.DB,
		orgs:           deps.Orgs,
		calls:          deps.Calls,
		events:         deps.Events,
		recordings:     deps.Recordings,
		outEvents:      deps.OutEvents,
		attempts:       deps.Attempts,
		holds:          deps.Holds,
		transcripts:    deps.Transcripts,
		processor:      deps.Processor,
		dispatcher:     deps.Dispatcher,
		store:          deps.Store,
		auditSink:      deps.AuditSink,
		operatorSecret: deps.OperatorSecret,
		apiLimiter:     middleware.NewIPRateLimiter(middleware.DefaultRateLimitConfig()),
		webhookLimiter: middleware.NewIPRateLimiter(middleware.WebhookRateLimitConfig()),
	}

	s.routes()
	return s
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Close stops background goroutines owned by the server.
func (s *Server) Close() {
	s.apiLimiter.Stop()
	s.webhookLimiter.Stop()
}

// routes configures all middleware and mounts all route groups.
func (s *Server) routes() {
	r := s.router

	// Global middleware stack.
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.StructuredLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(middleware.ParseCORSOrigins(s.cfg.CORSOrigins)))

	// Provider webhook ingress. Authenticated by payload signature, not
	// bearer token.
	r.Route("/webhooks", func(r chi.Router) {
		r.Use(middleware.RateLimit(s.webhookLimiter))
		r.Post("/telephony", s.handleTelephonyWebhook)
	})

	// Operator API under /api/v1.
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RateLimit(s.apiLimiter))
			r.Use(middleware.RequireOperator(s.operatorSecret))

			r.Route("/calls", func(r chi.Router) {
				r.Get("/", s.handleListCalls)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetCall)
					r.Get("/timeline", s.handleCallTimeline)
					r.Get("/recordings", s.handleListCallRecordings)
					r.Get("/transcripts", s.handleListCallTranscripts)
					r.Post("/transcripts", s.handleCreateTranscript)
				})
			})

			r.Route("/recordings", func(r chi.Router) {
				r.Get("/{id}", s.handleGetRecording)
				r.Get("/{id}/download", s.handleDownloadRecording)
			})

			r.Post("/synthesis/plan", s.handlePlanSynthesis)

			r.Route("/outbound", func(r chi.Router) {
				r.Get("/", s.handleListOutbound)
				r.Post("/", s.handleSendOutbound)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetOutbound)
					r.Post("/retry", s.handleRetryOutbound)
				})
			})

			r.Route("/holds", func(r chi.Router) {
				r.Get("/", s.handleListHolds)
				r.Post("/", s.handleCreateHold)
				r.Post("/{id}/release", s.handleReleaseHold)
			})

			r.Route("/orgs", func(r chi.Router) {
				r.Get("/", s.handleListOrgs)
				r.Post("/", s.handleCreateOrg)
			})

			r.Get("/system/status", s.handleSystemStatus)
		})
	})

	slog.Info("api routes mounted")
}

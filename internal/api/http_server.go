package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"estateadmin/internal/config"
	"estateadmin/internal/database"
	"estateadmin/internal/domain"
	"estateadmin/internal/export"
	"estateadmin/internal/service"

	"github.com/rs/zerolog"
)

// Server exposes the admin API over HTTP.
type Server struct {
	cfg      config.APIConfig
	schedCfg config.SchedulerConfig

	db            *database.DB
	scheduler     *service.Scheduler
	properties    *service.PropertyService
	users         *service.UserService
	notifications *service.NotificationService
	dashboard     *service.DashboardService
	exporter      *export.ExcelExporter
	badges        domain.BadgeRepository

	logger *zerolog.Logger
	server *http.Server
	auth   *HTTPAuth
}

// Deps carries everything the server needs; all services are required, badges
// and exporter may be nil (rate limiting and exports degrade gracefully).
type Deps struct {
	Config          config.APIConfig
	SchedulerConfig config.SchedulerConfig
	DB              *database.DB
	Scheduler       *service.Scheduler
	Properties      *service.PropertyService
	Users           *service.UserService
	Notifications   *service.NotificationService
	Dashboard       *service.DashboardService
	Exporter        *export.ExcelExporter
	Badges          domain.BadgeRepository
	Logger          *zerolog.Logger
}

func NewServer(deps Deps) *Server {
	s := &Server{
		cfg:           deps.Config,
		schedCfg:      deps.SchedulerConfig,
		db:            deps.DB,
		scheduler:     deps.Scheduler,
		properties:    deps.Properties,
		users:         deps.Users,
		notifications: deps.Notifications,
		dashboard:     deps.Dashboard,
		exporter:      deps.Exporter,
		badges:        deps.Badges,
		logger:        deps.Logger,
	}
	s.auth = NewHTTPAuth(deps.Config)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)

	mux.HandleFunc("GET /api/v1/availability", s.handleAvailability)

	mux.HandleFunc("POST /api/v1/reservations", s.handleCreateReservation)
	mux.HandleFunc("GET /api/v1/reservations", s.handleListReservations)
	mux.HandleFunc("GET /api/v1/reservations/my", s.handleMyReservations)
	mux.HandleFunc("GET /api/v1/reservations/{id}", s.handleGetReservation)
	mux.HandleFunc("POST /api/v1/reservations/{id}/accept", s.handleAccept)
	mux.HandleFunc("GET /api/v1/reservations/{id}/advisory", s.handleAdvisory)
	mux.HandleFunc("POST /api/v1/reservations/{id}/refuse", s.handleRefuse)
	mux.HandleFunc("POST /api/v1/reservations/{id}/cancel", s.handleCancel)

	mux.HandleFunc("GET /api/v1/properties", s.handleListProperties)
	mux.HandleFunc("POST /api/v1/properties", s.handleCreateProperty)
	mux.HandleFunc("GET /api/v1/properties/{id}", s.handleGetProperty)
	mux.HandleFunc("PUT /api/v1/properties/{id}", s.handleUpdateProperty)

	mux.HandleFunc("GET /api/v1/notifications", s.handleListNotifications)
	mux.HandleFunc("POST /api/v1/notifications/{id}/read", s.handleMarkNotificationRead)
	mux.HandleFunc("POST /api/v1/notifications/read-all", s.handleMarkAllNotificationsRead)
	mux.HandleFunc("DELETE /api/v1/notifications/{id}", s.handleDeleteNotification)

	mux.HandleFunc("GET /api/v1/dashboard", s.handleDashboard)

	mux.HandleFunc("GET /api/v1/users", s.handleListUsers)
	mux.HandleFunc("POST /api/v1/users", s.handleRegisterUser)
	mux.HandleFunc("PUT /api/v1/users/{id}/role", s.handleSetUserRole)

	mux.HandleFunc("GET /api/v1/exports/reservations.xlsx", s.handleExportReservations)
	mux.HandleFunc("GET /api/v1/exports/properties.xlsx", s.handleExportProperties)

	handler := loggingMiddleware(deps.Logger)(metricsMiddleware(s.auth.Wrap(mux)))

	s.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", deps.Config.HTTP.Port),
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
	}

	return s
}

// Handler returns the full middleware-wrapped handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func (s *Server) Start() error {
	s.logger.Info().Str("addr", s.server.Addr).Msg("http api listening")
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.db.PingContext(r.Context()); err != nil {
		writeError(w, http.StatusServiceUnavailable, "database unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

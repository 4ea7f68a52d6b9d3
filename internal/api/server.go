package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"

	"github.com/avolkov/carpoolbot/internal/metrics"
	"github.com/avolkov/carpoolbot/internal/models"
	"github.com/avolkov/carpoolbot/internal/service"
)

// Server exposes a small read-only HTTP surface: trip and car listings for
// dashboards, a health endpoint and Prometheus metrics. All mutation goes
// through the bot.
type Server struct {
	svc    *service.Service
	logger *logrus.Logger
	mux    *http.ServeMux
}

// NewServer creates a Server, registers all routes, and returns it.
func NewServer(svc *service.Service, logger *logrus.Logger) *Server {
	s := &Server{svc: svc, logger: logger, mux: http.NewServeMux()}
	s.routes()
	return s
}

// Handler returns the http.Handler that can be passed to http.Server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /api/trips/{chat_id}", s.handleGetTrip)
	s.mux.HandleFunc("GET /api/cars/{chat_id}", s.handleGetCars)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", metrics.Handler())
}

// ---------------------------------------------------------------------------
// JSON helpers
// ---------------------------------------------------------------------------

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			s.logger.WithError(err).Error("failed to encode JSON response")
		}
	}
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}

// requireChatID extracts the {chat_id} path value.  It writes an error
// response and returns 0 when the value is invalid.
func (s *Server) requireChatID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("chat_id"), 10, 64)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "chat_id must be an integer")
		return 0, false
	}
	return id, true
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Server) handleGetTrip(w http.ResponseWriter, r *http.Request) {
	chatID, ok := s.requireChatID(w, r)
	if !ok {
		return
	}

	trip, err := s.svc.ActiveTrip(r.Context(), chatID)
	if err != nil {
		s.logger.WithError(err).Error("failed to load trip")
		s.respondError(w, http.StatusInternalServerError, "failed to load trip")
		return
	}
	if trip == nil {
		s.respondError(w, http.StatusNotFound, "no active trip for this chat")
		return
	}

	s.respondJSON(w, http.StatusOK, trip)
}

func (s *Server) handleGetCars(w http.ResponseWriter, r *http.Request) {
	chatID, ok := s.requireChatID(w, r)
	if !ok {
		return
	}

	statuses, err := s.svc.ListCars(r.Context(), chatID)
	if err != nil {
		if errors.Is(err, models.ErrTripNotFound) {
			s.respondError(w, http.StatusNotFound, "no active trip for this chat")
			return
		}
		s.logger.WithError(err).Error("failed to load cars")
		s.respondError(w, http.StatusInternalServerError, "failed to load cars")
		return
	}

	s.respondJSON(w, http.StatusOK, statuses)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

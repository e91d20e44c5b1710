package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/neexbeast/campusnav/internal/cache"
	"github.com/neexbeast/campusnav/internal/campus"
	"github.com/neexbeast/campusnav/internal/filter"
	"github.com/neexbeast/campusnav/internal/geo"
	"github.com/neexbeast/campusnav/internal/notice"
	"github.com/neexbeast/campusnav/internal/route"
	"github.com/neexbeast/campusnav/internal/session"
)

const maxBodyBytes = 1 << 20

// Handlers holds the dependencies for all HTTP handlers.
type Handlers struct {
	sessions SessionManager
	pois     POIWriter
	log      *slog.Logger
}

// NewHandlers constructs Handlers with all required dependencies.
func NewHandlers(sessions SessionManager, pois POIWriter, log *slog.Logger) *Handlers {
	return &Handlers{
		sessions: sessions,
		pois:     pois,
		log:      log,
	}
}

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// decodeBody reads a JSON request body into dst, answering 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// session resolves the {id} URL parameter, answering 404 when it is unknown.
func (h *Handlers) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	id := chi.URLParam(r, "id")
	s, err := h.sessions.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return nil, false
	}
	return s, true
}

// sessionError maps a session operation failure onto a response.
func (h *Handlers) sessionError(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, session.ErrDetached):
		writeError(w, http.StatusGone, "session ended")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeError(w, http.StatusGatewayTimeout, "session busy")
	default:
		h.log.Error("session operation failed", "session", id, "err", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
	}
}

type createSessionRequest struct {
	ID              string `json:"id,omitempty"`
	LocationGranted bool   `json:"location_granted"`
}

// CreateSession handles POST /api/v1/sessions.
// A known id resumes that session's persisted camera and destination.
func (h *Handlers) CreateSession(w http.ResponseWriter, r *http.Request) {
	var req createSessionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	s, err := h.sessions.Create(r.Context(), session.CreateOptions{ID: req.ID, LocationGranted: req.LocationGranted})
	if err != nil {
		if errors.Is(err, session.ErrInvalidID) {
			writeError(w, http.StatusBadRequest, "invalid session id")
			return
		}
		h.log.Error("create session failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"id": s.ID()})
}

// GetSession handles GET /api/v1/sessions/{id}.
func (h *Handlers) GetSession(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	st, err := s.Status(r.Context())
	if err != nil {
		h.sessionError(w, s.ID(), err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// EndSession handles DELETE /api/v1/sessions/{id}.
func (h *Handlers) EndSession(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.sessions.End(r.Context(), id); err != nil {
		writeError(w, http.StatusNotFound, "session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// PushPosition handles POST /api/v1/sessions/{id}/position.
func (h *Handlers) PushPosition(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var pos geo.Coordinate
	if !decodeBody(w, r, &pos) {
		return
	}

	switch err := s.PushPosition(pos); {
	case errors.Is(err, campus.ErrPermissionDenied):
		writeError(w, http.StatusForbidden, "location permission denied")
	case errors.Is(err, campus.ErrInvalidCoordinate):
		writeError(w, http.StatusBadRequest, "invalid coordinate")
	case err != nil:
		h.sessionError(w, s.ID(), err)
	default:
		w.WriteHeader(http.StatusAccepted)
	}
}

// ListPOIs handles GET /api/v1/sessions/{id}/pois/{kind}?q=&region=&category=&reload=.
func (h *Handlers) ListPOIs(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	kind, err := campus.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	params := r.URL.Query()
	region, err := filter.ParseRegion(params.Get("region"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	reload := false
	if v := params.Get("reload"); v != "" {
		if reload, err = strconv.ParseBool(v); err != nil {
			writeError(w, http.StatusBadRequest, "reload must be a boolean")
			return
		}
	}

	snap, err := s.List(r.Context(), kind, session.ListQuery{
		Query:    params.Get("q"),
		Region:   region,
		Category: params.Get("category"),
		Reload:   reload,
	})
	if err != nil {
		h.sessionError(w, s.ID(), err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// SetDestination handles PUT /api/v1/sessions/{id}/destination.
// Routing runs in the background; poll the session for its route state.
func (h *Handlers) SetDestination(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var dest geo.Coordinate
	if !decodeBody(w, r, &dest) {
		return
	}

	if err := s.SetDestination(r.Context(), dest); err != nil {
		if errors.Is(err, route.ErrInvalidDestination) {
			writeError(w, http.StatusBadRequest, "invalid destination")
			return
		}
		h.sessionError(w, s.ID(), err)
		return
	}
	w.WriteHeader(http.StatusAccepted)
}

// ClearDestination handles DELETE /api/v1/sessions/{id}/destination.
func (h *Handlers) ClearDestination(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.ClearDestination(r.Context()); err != nil {
		h.sessionError(w, s.ID(), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetMap handles GET /api/v1/sessions/{id}/map.
func (h *Handlers) GetMap(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	fc, err := s.Map(r.Context())
	if err != nil {
		h.sessionError(w, s.ID(), err)
		return
	}
	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(fc)
}

// SetCamera handles PUT /api/v1/sessions/{id}/camera.
func (h *Handlers) SetCamera(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var cam cache.Camera
	if !decodeBody(w, r, &cam) {
		return
	}

	if err := s.SetCamera(r.Context(), cam); err != nil {
		if errors.Is(err, campus.ErrInvalidCoordinate) {
			writeError(w, http.StatusBadRequest, "invalid coordinate")
			return
		}
		h.sessionError(w, s.ID(), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HideMarkers handles POST /api/v1/sessions/{id}/markers/hide.
func (h *Handlers) HideMarkers(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.HideMarkers(r.Context()); err != nil {
		h.sessionError(w, s.ID(), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RevealMarkers handles POST /api/v1/sessions/{id}/markers/reveal.
func (h *Handlers) RevealMarkers(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	if err := s.RevealMarkers(r.Context()); err != nil {
		h.sessionError(w, s.ID(), err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetNotices handles GET /api/v1/sessions/{id}/notices.
// Each notice is returned once.
func (h *Handlers) GetNotices(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	notices := s.Notices()
	if notices == nil {
		notices = []notice.Notice{}
	}
	writeJSON(w, http.StatusOK, map[string][]notice.Notice{"notices": notices})
}

type poiRequest struct {
	campus.Attributes
	Building *campus.BuildingInfo `json:"building,omitempty"`
	Room     *campus.RoomInfo     `json:"room,omitempty"`
	Facility *campus.FacilityInfo `json:"facility,omitempty"`
}

// UpsertPOI handles PUT /api/v1/pois/{kind}/{poiID}.
// Sessions pick the change up on their next list reload.
func (h *Handlers) UpsertPOI(w http.ResponseWriter, r *http.Request) {
	kind, err := campus.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req poiRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.ID = chi.URLParam(r, "poiID")

	var p *campus.POI
	switch kind {
	case campus.KindBuilding:
		p = campus.NewBuilding(req.Attributes, derefOr(req.Building))
	case campus.KindRoom:
		p = campus.NewRoom(req.Attributes, derefOr(req.Room))
	default:
		p = campus.NewFacility(req.Attributes, derefOr(req.Facility))
	}

	if err := h.pois.UpsertPOI(r.Context(), p); err != nil {
		h.log.Error("upsert poi failed", "kind", kind, "id", req.ID, "err", err)
		writeError(w, http.StatusInternalServerError, "failed to store poi")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func derefOr[T any](v *T) T {
	var zero T
	if v == nil {
		return zero
	}
	return *v
}

// HealthCheck handles GET /api/v1/health.
// Pings DB and Redis; returns 200 if both ok, 503 otherwise.
type dbPinger interface {
	Ping(ctx context.Context) error
}

type redisPinger interface {
	Ping(ctx context.Context) error
}

// HealthHandlerFunc returns an http.HandlerFunc that checks db and redis connectivity.
func HealthHandlerFunc(db dbPinger, redis redisPinger, log *slog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()

		status := http.StatusOK
		dbStatus := "ok"
		redisStatus := "ok"

		if err := db.Ping(ctx); err != nil {
			log.Error("health check: db ping failed", "err", err)
			dbStatus = "error"
			status = http.StatusServiceUnavailable
		}

		if err := redis.Ping(ctx); err != nil {
			log.Error("health check: redis ping failed", "err", err)
			redisStatus = "error"
			status = http.StatusServiceUnavailable
		}

		overall := "ok"
		if status != http.StatusOK {
			overall = "degraded"
		}
		writeJSON(w, status, map[string]string{
			"status": overall,
			"db":     dbStatus,
			"redis":  redisStatus,
		})
	}
}

// Package api exposes the engine over HTTP and provides a client for it.
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/fleetops/hardpoint/internal/engine"
	"github.com/fleetops/hardpoint/internal/loadout"
	"github.com/fleetops/hardpoint/internal/logging"
	"github.com/fleetops/hardpoint/internal/position"
	"github.com/fleetops/hardpoint/pkg/core"
)

// RequestIDHeader carries the correlation id of a request.
const RequestIDHeader = "X-Request-ID"

type Server struct {
	engine *engine.Engine
	logger *slog.Logger
}

// New constructs the HTTP router wired to the engine.
func New(eng *engine.Engine, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{engine: eng, logger: logger}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(middleware.Recoverer)
	r.Use(corsMiddleware)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/missions", func(r chi.Router) {
		r.Post("/", s.handleCreateMission)
		r.Route("/{missionID}", func(r chi.Router) {
			r.Get("/", s.handleGetMission)
			r.Get("/loadout", s.handleLoadout)
			r.Get("/flight-data", s.handleGetFlightData)
			r.Put("/flight-data", s.handlePutFlightData)
			r.Route("/positions/{position}", func(r chi.Router) {
				r.Get("/", s.handleGetPosition)
				r.Put("/", s.handleAssign)
				r.Post("/fire", s.handleFire)
				r.Post("/correction", s.handleCorrect)
			})
		})
	})

	r.Get("/launchers", s.handleLaunchers)
	r.Route("/launchers/{partNumber}", func(r chi.Router) {
		r.Get("/status", s.handleLauncherStatus)
		r.Get("/history", s.handleLauncherHistory)
		r.Get("/movements", s.handleMovements)
	})
	r.Post("/installations", s.handleInstallation)

	return r
}

func (s *Server) handleCreateMission(w http.ResponseWriter, r *http.Request) {
	var in engine.MissionInput
	if !decode(w, r, &in) {
		return
	}
	m, err := s.engine.CreateMission(r.Context(), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/missions/%d", m.ID))
	writeJSON(w, http.StatusCreated, MissionView(m))
}

func (s *Server) handleGetMission(w http.ResponseWriter, r *http.Request) {
	id, ok := missionParam(w, r)
	if !ok {
		return
	}
	m, err := s.engine.GetMission(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MissionView(m))
}

func (s *Server) handleLoadout(w http.ResponseWriter, r *http.Request) {
	id, ok := missionParam(w, r)
	if !ok {
		return
	}
	out, err := s.engine.ResolveLoadout(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	views := make([]Position, 0, len(out))
	for _, pl := range out {
		views = append(views, PositionView(pl))
	}
	writeJSON(w, http.StatusOK, views)
}

func (s *Server) handleGetPosition(w http.ResponseWriter, r *http.Request) {
	id, pos, ok := positionParams(w, r)
	if !ok {
		return
	}
	pl, err := s.engine.Loadouts().GetPosition(r.Context(), id, pos)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, PositionView(pl))
}

func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	id, pos, ok := positionParams(w, r)
	if !ok {
		return
	}
	var body AssignBody
	if !decode(w, r, &body) {
		return
	}
	res, err := s.engine.AssignPosition(r.Context(), id, pos, loadout.AssignRequest{
		LauncherPN: strings.TrimSpace(body.LauncherPN),
		MissilePN:  strings.TrimSpace(body.MissilePN),
		Overwrite:  body.Overwrite,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TransitionView(res))
}

func (s *Server) handleFire(w http.ResponseWriter, r *http.Request) {
	id, pos, ok := positionParams(w, r)
	if !ok {
		return
	}
	res, err := s.engine.FirePosition(r.Context(), id, pos)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TransitionView(res))
}

func (s *Server) handleCorrect(w http.ResponseWriter, r *http.Request) {
	id, pos, ok := positionParams(w, r)
	if !ok {
		return
	}
	var body CorrectionBody
	if !decode(w, r, &body) {
		return
	}
	res, err := s.engine.CorrectPosition(r.Context(), id, pos, body.Status, body.Reason)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, TransitionView(res))
}

func (s *Server) handleGetFlightData(w http.ResponseWriter, r *http.Request) {
	id, ok := missionParam(w, r)
	if !ok {
		return
	}
	fd, err := s.engine.GetFlightData(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flightDataView(fd))
}

func (s *Server) handlePutFlightData(w http.ResponseWriter, r *http.Request) {
	id, ok := missionParam(w, r)
	if !ok {
		return
	}
	var body FlightData
	if !decode(w, r, &body) {
		return
	}
	fd, err := s.engine.RecordFlightData(r.Context(), body.toCore(id))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, flightDataView(fd))
}

func (s *Server) handleLaunchers(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("view") == "status" {
		fleet, err := s.engine.FleetStatus(r.Context())
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		views := make([]LauncherStatus, 0, len(fleet))
		for _, st := range fleet {
			views = append(views, StatusView(st))
		}
		writeJSON(w, http.StatusOK, views)
		return
	}
	launchers, err := s.engine.Launchers(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	out := make([]map[string]any, 0, len(launchers))
	for _, l := range launchers {
		out = append(out, map[string]any{
			"partNumber": l.PartNumber, "name": l.Nomenclature,
			"manufacturerCode": l.ManufacturerCode, "ratedLifeHours": l.RatedLifeHours,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) handleLauncherStatus(w http.ResponseWriter, r *http.Request) {
	pn, ok := partNumberParam(w, r)
	if !ok {
		return
	}
	st, err := s.engine.LauncherStatus(r.Context(), pn)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, StatusView(st))
}

func (s *Server) handleLauncherHistory(w http.ResponseWriter, r *http.Request) {
	pn, ok := partNumberParam(w, r)
	if !ok {
		return
	}
	history, err := s.engine.LauncherHistory(r.Context(), pn)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, historyView(history))
}

func (s *Server) handleMovements(w http.ResponseWriter, r *http.Request) {
	pn, ok := partNumberParam(w, r)
	if !ok {
		return
	}
	moves, err := s.engine.MovementHistory(r.Context(), pn)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, movementView(moves))
}

func (s *Server) handleInstallation(w http.ResponseWriter, r *http.Request) {
	var body Installation
	if !decode(w, r, &body) {
		return
	}
	win, err := body.Window()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := s.engine.RecordInstallation(r.Context(), win); err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, movementView([]core.InstallationWindow{win})[0])
}

// Window converts a register entry. Register codes may be legacy
// mnemonics, so the position goes through the code mapper, whose
// data-integrity errors are returned as they are.
func (in Installation) Window() (core.InstallationWindow, error) {
	const op = "api.Installation"
	pos, err := position.ToCanonical(in.PositionCode)
	if err != nil {
		return core.InstallationWindow{}, err
	}
	installed, err := time.Parse(core.DateLayout, in.InstalledAt)
	if err != nil {
		return core.InstallationWindow{}, core.Validation(op, fmt.Errorf("invalid installation date %q", in.InstalledAt))
	}
	w := core.InstallationWindow{
		Kind:         in.Kind,
		Aircraft:     strings.TrimSpace(in.Aircraft),
		Position:     pos,
		PositionCode: strings.TrimSpace(in.PositionCode),
		PartNumber:   strings.TrimSpace(in.PartNumber),
		InstalledAt:  installed,
	}
	if in.RemovedAt != "" {
		removed, err := time.Parse(core.DateLayout, in.RemovedAt)
		if err != nil {
			return core.InstallationWindow{}, core.Validation(op, fmt.Errorf("invalid removal date %q", in.RemovedAt))
		}
		w.RemovedAt = &removed
	}
	return w, nil
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(err error) int {
	switch core.KindOf(err) {
	case core.KindValidation:
		return http.StatusBadRequest
	case core.KindNotFound:
		return http.StatusNotFound
	case core.KindConflict:
		return http.StatusConflict
	case core.KindDataIntegrity:
		return http.StatusUnprocessableEntity
	case core.KindStore:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := StatusFor(err)
	body := ErrorBody{Error: err.Error()}
	var e *core.Error
	if errors.As(err, &e) {
		body.Kind = e.Kind.String()
		body.MissionID = e.MissionID
		body.Position = e.Position
	}
	if status >= http.StatusInternalServerError {
		s.logger.ErrorContext(r.Context(), "request failed", "method", r.Method, "path", r.URL.Path, "error", err)
	}
	writeJSON(w, status, body)
}

func writeJSONError(w http.ResponseWriter, status int, msg string) {
	if msg == "" {
		msg = http.StatusText(status)
	}
	writeJSON(w, status, ErrorBody{Error: msg, Kind: core.KindValidation.String()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSONError(w, http.StatusBadRequest, "bad request: "+err.Error())
		return false
	}
	return true
}

func missionParam(w http.ResponseWriter, r *http.Request) (uint, bool) {
	raw := chi.URLParam(r, "missionID")
	id, err := strconv.ParseUint(raw, 10, 32)
	if err != nil || id == 0 {
		writeJSONError(w, http.StatusBadRequest, fmt.Sprintf("invalid mission id %q", raw))
		return 0, false
	}
	return uint(id), true
}

func positionParams(w http.ResponseWriter, r *http.Request) (uint, core.PositionID, bool) {
	id, ok := missionParam(w, r)
	if !ok {
		return 0, "", false
	}
	pos, err := position.Parse(chi.URLParam(r, "position"))
	if err != nil {
		writeJSONError(w, http.StatusBadRequest, err.Error())
		return 0, "", false
	}
	return id, pos, true
}

func partNumberParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	pn, err := url.PathUnescape(chi.URLParam(r, "partNumber"))
	if err != nil || strings.TrimSpace(pn) == "" {
		writeJSONError(w, http.StatusBadRequest, "invalid part number")
		return "", false
	}
	return pn, true
}

// requestID tags each request with a correlation id, reusing the caller's when present.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set(RequestIDHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithRequestID(r.Context(), id)))
	})
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS, PUT")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, "+RequestIDHeader)
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

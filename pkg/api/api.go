// Package api exposes the propagation engine over HTTP.
package api

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/opd-ai/go-deadreckon/pkg/config"
	"github.com/opd-ai/go-deadreckon/pkg/engine"
	"github.com/opd-ai/go-deadreckon/pkg/health"
	"github.com/opd-ai/go-deadreckon/pkg/logging"
	"github.com/opd-ai/go-deadreckon/pkg/physics"
	"github.com/opd-ai/go-deadreckon/pkg/ratelimit"
	"github.com/opd-ai/go-deadreckon/pkg/validation"
)

// CorrelationHeader carries the request correlation ID in and out.
const CorrelationHeader = "X-Correlation-ID"

// Options configures the optional parts of a Server. Nil fields disable the
// corresponding routes or middleware.
type Options struct {
	Logger   *logging.Logger
	Limiter  *ratelimit.Limiter
	Health   *health.HealthChecker
	Gatherer prometheus.Gatherer
	Models   *config.ModelConfig
}

// Server routes HTTP requests to an engine
type Server struct {
	engine *engine.Engine
	opts   Options
	router *mux.Router
}

// NewServer creates a server for eng.
func NewServer(eng *engine.Engine, opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = logging.NewLogger()
	}
	if opts.Models == nil {
		opts.Models = config.DefaultConfig()
	}

	s := &Server{engine: eng, opts: opts, router: mux.NewRouter()}
	s.routes()
	return s
}

// Handler returns the root HTTP handler
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() {
	s.router.Use(s.correlationMiddleware)

	if s.opts.Health != nil {
		s.router.HandleFunc("/health", s.opts.Health.LivenessHandler).Methods(http.MethodGet)
		s.router.HandleFunc("/ready", s.opts.Health.ReadinessHandler).Methods(http.MethodGet)
	}
	if s.opts.Gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{})).Methods(http.MethodGet)
	}

	api := s.router.NewRoute().Subrouter()
	if s.opts.Limiter != nil {
		api.Use(s.opts.Limiter.Middleware)
	}
	api.HandleFunc("/bodies", s.listBodies).Methods(http.MethodGet)
	api.HandleFunc("/bodies", s.createBody).Methods(http.MethodPost)
	api.HandleFunc("/bodies/{id:[0-9]+}", s.getBody).Methods(http.MethodGet)
	api.HandleFunc("/bodies/{id:[0-9]+}", s.deleteBody).Methods(http.MethodDelete)
	api.HandleFunc("/bodies/{id:[0-9]+}/command", s.setCommand).Methods(http.MethodPost)
	api.HandleFunc("/propagate", s.propagate).Methods(http.MethodPost)
}

func (s *Server) correlationMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := logging.WithCorrelationID(r.Context(), r.Header.Get(CorrelationHeader))
		w.Header().Set(CorrelationHeader, logging.GetCorrelationID(ctx))

		start := time.Now()
		next.ServeHTTP(w, r.WithContext(ctx))
		s.opts.Logger.Debug(ctx, "request served",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start).String(),
		)
	})
}

// StateJSON is the wire form of a state. Finite values are numbers;
// NaN and infinities are strings in the canonical scalar format since JSON
// cannot carry them.
type StateJSON map[string]interface{}

// EncodeState converts a state to its wire form.
func EncodeState(s physics.StateVector) StateJSON {
	out := make(StateJSON, len(physics.StateFieldNames))
	for i, v := range s.Fields() {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			out[physics.StateFieldNames[i]] = physics.FormatScalar(v)
		} else {
			out[physics.StateFieldNames[i]] = v
		}
	}
	return out
}

// BodyResponse describes a body
type BodyResponse struct {
	ID      uint64               `json:"id"`
	Name    string               `json:"name"`
	Class   string               `json:"class"`
	Command engine.CommandType   `json:"command"`
	Params  engine.CommandParams `json:"params"`
	State   StateJSON            `json:"state"`
	Text    string               `json:"text"`
}

func newBodyResponse(b engine.Body) BodyResponse {
	resp := BodyResponse{
		ID:    b.ID,
		Name:  b.Name,
		Class: b.Class,
		State: EncodeState(b.State),
		Text:  b.State.String(),
	}
	if b.Command != nil {
		resp.Command = b.Command.Type()
		resp.Params = engine.Params(b.Command)
	}
	return resp
}

// CreateBodyRequest is the body of POST /bodies
type CreateBodyRequest struct {
	Name  string              `json:"name"`
	Class string              `json:"class"`
	State physics.StateVector `json:"state"`
}

// CommandRequest is the body of POST /bodies/{id}/command
type CommandRequest struct {
	Command string `json:"command"`
	engine.CommandParams
}

// PropagateRequest is the body of POST /propagate. It applies a single
// command to State without touching the engine.
type PropagateRequest struct {
	Class   string               `json:"class"`
	State   physics.StateVector  `json:"state"`
	Command string               `json:"command"`
	Params  engine.CommandParams `json:"params"`
	Dt      float64              `json:"dt"`
}

// PropagateResponse is the result of POST /propagate
type PropagateResponse struct {
	State StateJSON `json:"state"`
	Text  string    `json:"text"`
}

func (s *Server) listBodies(w http.ResponseWriter, r *http.Request) {
	bodies := s.engine.Bodies()
	resp := make([]BodyResponse, 0, len(bodies))
	for _, b := range bodies {
		resp = append(resp, newBodyResponse(b))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) createBody(w http.ResponseWriter, r *http.Request) {
	var req CreateBodyRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	name, err := validation.ValidateBodyName(req.Name)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := validation.ValidateClassName(req.Class); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	req.Name = name

	id, err := s.engine.AddBody(req.Name, req.Class, req.State)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.opts.Logger.Info(r.Context(), "body added", "body_id", id, "body", req.Name, "class", req.Class)

	body, err := s.engine.Body(id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, newBodyResponse(body))
}

func (s *Server) getBody(w http.ResponseWriter, r *http.Request) {
	id, ok := bodyID(w, r)
	if !ok {
		return
	}
	body, err := s.engine.Body(id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	if r.URL.Query().Get("format") == "text" {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(body.State.String() + "\n"))
		return
	}
	writeJSON(w, http.StatusOK, newBodyResponse(body))
}

func (s *Server) deleteBody(w http.ResponseWriter, r *http.Request) {
	id, ok := bodyID(w, r)
	if !ok {
		return
	}
	if err := s.engine.RemoveBody(id); err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	s.opts.Logger.Info(r.Context(), "body removed", "body_id", id)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) setCommand(w http.ResponseWriter, r *http.Request) {
	id, ok := bodyID(w, r)
	if !ok {
		return
	}

	var req CommandRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	cmd, err := engine.ParseCommand(req.Command, req.CommandParams)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	if err := s.engine.SetCommand(id, cmd); err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	body, err := s.engine.Body(id)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, newBodyResponse(body))
}

func (s *Server) propagate(w http.ResponseWriter, r *http.Request) {
	var req PropagateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	model, err := s.opts.Models.Model(req.Class)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	cmd, err := engine.ParseCommand(req.Command, req.Params)
	if err != nil {
		s.writeEngineError(w, r, err)
		return
	}

	next := cmd.Apply(req.State, req.Dt, model)
	writeJSON(w, http.StatusOK, PropagateResponse{State: EncodeState(next), Text: next.String()})
}

// decodeJSON reads a request body of at most validation.MaxRequestSize bytes
// into v, answering 400 or 413 itself on failure.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	body := http.MaxBytesReader(w, r.Body, validation.MaxRequestSize)
	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, err.Error())
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return false
	}
	return true
}

func bodyID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	id, err := strconv.ParseUint(mux.Vars(r)["id"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid body id")
		return 0, false
	}
	return id, true
}

func (s *Server) writeEngineError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, engine.ErrBodyNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, engine.ErrUnknownClass), errors.Is(err, engine.ErrUnknownCommand):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.opts.Logger.Error(r.Context(), "request failed", err, "path", r.URL.Path)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/hamed0406/endpointmonitor/internal/domain"
	apimw "github.com/hamed0406/endpointmonitor/internal/httpapi/middleware"
	"github.com/hamed0406/endpointmonitor/internal/monitor"
	"github.com/hamed0406/endpointmonitor/internal/probe"
	"github.com/hamed0406/endpointmonitor/internal/scheduler"
)

const maxBodyBytes = 1 << 20

// Engine is the endpoint lifecycle the API exposes. *monitor.Service implements it.
type Engine interface {
	ListEndpoints(ctx context.Context) ([]domain.EndpointView, error)
	CreateEndpoint(ctx context.Context, in domain.EndpointInput) (domain.EndpointView, error)
	GetEndpoint(ctx context.Context, id string) (domain.EndpointView, error)
	UpdateEndpoint(ctx context.Context, id string, in domain.EndpointInput) (domain.EndpointView, error)
	DeleteEndpoint(ctx context.Context, id string) (monitor.DeleteResult, error)
	CheckEndpoint(ctx context.Context, id string) (monitor.Outcome, error)
	DiagnoseDNS(ctx context.Context, id string) (probe.DNSStatus, error)
}

// Refresher runs a check over every endpoint. *scheduler.Scheduler implements it.
type Refresher interface {
	RefreshAll(ctx context.Context) (scheduler.RefreshReport, error)
}

type Server struct {
	Logger    *zap.Logger
	Engine    Engine
	Refresher Refresher
}

func NewServer(l *zap.Logger, e Engine, rf Refresher) *Server {
	if l == nil {
		l = zap.NewNop()
	}
	return &Server{Logger: l, Engine: e, Refresher: rf}
}

// Router builds the HTTP handler. An empty allowedOrigins allows any origin;
// rpm <= 0 disables rate limiting.
func (s *Server) Router(allowedOrigins []string, rpm, burst int) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(requestLogger(s.Logger))
	r.Use(chimw.Recoverer)
	if len(allowedOrigins) == 0 {
		r.Use(cors.AllowAll().Handler)
	} else {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: allowedOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
			MaxAge:         300,
		}))
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	r.Route("/api/endpoints", func(r chi.Router) {
		r.Use(apimw.RateLimit(rpm, burst))

		r.Get("/", s.handleList)
		r.Post("/", s.handleCreate)
		r.Post("/refresh", s.handleRefreshAll)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", s.handleGet)
			r.Put("/", s.handleUpdate)
			r.Delete("/", s.handleDelete)
			r.Post("/check", s.handleCheck)
			r.Get("/dns", s.handleDNS)
		})
	})

	return r
}

type envelope = apimw.Envelope

// endpointPayload accepts headers and body either as JSON text or as inline JSON.
type endpointPayload struct {
	Name    string          `json:"name"`
	URL     string          `json:"url"`
	Method  string          `json:"method"`
	Headers json.RawMessage `json:"headers"`
	Body    json.RawMessage `json:"body"`
}

func (p endpointPayload) input() domain.EndpointInput {
	return domain.EndpointInput{
		Name:    p.Name,
		URL:     p.URL,
		Method:  p.Method,
		Headers: jsonText(p.Headers),
		Body:    jsonText(p.Body),
	}
}

// jsonText turns `"{\"a\":1}"` into `{"a":1}` and leaves `{"a":1}` as is.
func jsonText(raw json.RawMessage) string {
	t := strings.TrimSpace(string(raw))
	if t == "" || t == "null" {
		return ""
	}
	if strings.HasPrefix(t, `"`) {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return t
}

type checkResponse struct {
	domain.CheckResult
	Abandoned bool `json:"abandoned,omitempty"`
}

type inProgressResponse struct {
	ID         string `json:"id"`
	InProgress bool   `json:"inProgress"`
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	views, err := s.Engine.ListEndpoints(r.Context())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: views})
}

func (s *Server) handleCreate(w http.ResponseWriter, r *http.Request) {
	p, ok := s.decode(w, r)
	if !ok {
		return
	}
	v, err := s.Engine.CreateEndpoint(r.Context(), p.input())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Data: v})
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	v, err := s.Engine.GetEndpoint(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: v})
}

func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	p, ok := s.decode(w, r)
	if !ok {
		return
	}
	v, err := s.Engine.UpdateEndpoint(r.Context(), chi.URLParam(r, "id"), p.input())
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: v})
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	res, err := s.Engine.DeleteEndpoint(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: res})
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	out, err := s.Engine.CheckEndpoint(r.Context(), id)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if out.Skipped {
		writeJSON(w, http.StatusAccepted, envelope{Success: true, Data: inProgressResponse{ID: id, InProgress: true}})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: checkResponse{CheckResult: out.Result, Abandoned: out.Abandoned}})
}

func (s *Server) handleRefreshAll(w http.ResponseWriter, r *http.Request) {
	rep, err := s.Refresher.RefreshAll(r.Context())
	if err != nil {
		s.writeErr(w, r, &domain.PersistenceError{Op: "list", Err: err})
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: rep})
}

func (s *Server) handleDNS(w http.ResponseWriter, r *http.Request) {
	st, err := s.Engine.DiagnoseDNS(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	s.Logger.Info("dns_check",
		zap.String("domain", st.Domain),
		zap.String("class", st.Class),
		zap.Bool("has_a_or_aaaa", st.HasAOrAAAA),
		zap.Strings("nameservers", st.Nameservers),
		zap.String("cname", st.CNAME),
		zap.String("resolver_error", st.ResolverError),
	)
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: st})
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request) (endpointPayload, bool) {
	var p endpointPayload
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(&p); err != nil {
		writeJSON(w, http.StatusBadRequest, envelope{Error: "bad payload"})
		return p, false
	}
	return p, true
}

func (s *Server) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	var ce *domain.ConfigError
	switch {
	case errors.As(err, &ce):
		writeJSON(w, http.StatusBadRequest, envelope{Error: ce.Error()})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, envelope{Error: "endpoint not found"})
	case domain.IsPersistenceError(err):
		s.Logger.Error("store_unavailable",
			zap.String("path", r.URL.Path),
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeJSON(w, http.StatusServiceUnavailable, envelope{Error: "store unavailable"})
	default:
		s.Logger.Error("request_failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", chimw.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeJSON(w, http.StatusInternalServerError, envelope{Error: "internal error"})
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) { apimw.WriteJSON(w, code, v) }

func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r)
			log.Debug("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Int("bytes", ww.BytesWritten()),
				zap.Duration("took", time.Since(start)),
				zap.String("request_id", chimw.GetReqID(r.Context())),
			)
		})
	}
}

package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/docdex"
	logpkg "github.com/kailas-cloud/docdex/internal/logger"
	healthuc "github.com/kailas-cloud/docdex/internal/usecase/health"
)

// Pagination bounds used when the server is built without WithPagination.
const (
	defaultPageSize = 10
	maxPageSize     = 100
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server is the read-only HTTP gateway over a document registry.
type Server struct {
	registry      *docdex.Registry
	health        *healthuc.Service
	logger        *zap.Logger
	defaultLimit  int
	maxLimit      int
	errorHandlers []errorHandler
}

// NewServer creates an HTTP gateway server.
func NewServer(registry *docdex.Registry, health *healthuc.Service, logger *zap.Logger) *Server {
	s := &Server{
		registry:     registry,
		health:       health,
		logger:       logger,
		defaultLimit: defaultPageSize,
		maxLimit:     maxPageSize,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(docdex.ErrNotFound, http.StatusNotFound, CodeDocumentNotFound),
		sentinelHandler(docdex.ErrUnknownKind, http.StatusNotFound, CodeUnknownKind),
		sentinelHandler(docdex.ErrInvalidQuery, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(docdex.ErrIndexNotReady, http.StatusServiceUnavailable, CodeIndexNotReady),
		sentinelHandler(docdex.ErrNoClient, http.StatusServiceUnavailable, CodeUnavailable),
	}
	return s
}

// WithPagination overrides the default and maximum search page sizes.
func (s *Server) WithPagination(defaultLimit, maxLimit int) *Server {
	if defaultLimit > 0 {
		s.defaultLimit = defaultLimit
	}
	if maxLimit > 0 {
		s.maxLimit = maxLimit
	}
	return s
}

// Routes mounts the gateway endpoints on r.
func (s *Server) Routes(r chi.Router) {
	r.Get("/healthz", s.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())
	r.Route("/{index}/{type}", func(r chi.Router) {
		r.Post("/_search", s.SearchDocuments)
		r.Get("/_count", s.CountDocuments)
		r.Get("/{id}", s.GetDocument)
	})
}

// GetDocument handles GET /{index}/{type}/{id}.
func (s *Server) GetDocument(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.kindFor(w, r)
	if !ok {
		return
	}

	doc, err := kind.Lookup(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, documentToResponse(doc))
}

// SearchDocuments handles POST /{index}/{type}/_search.
func (s *Server) SearchDocuments(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.kindFor(w, r)
	if !ok {
		return
	}

	var req SearchRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
			return
		}
	}

	sr, err := s.searchRequestFromDTO(req)
	if err != nil {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
		return
	}

	res, err := kind.Search(r.Context(), sr)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	resp := SearchResponse{Total: res.Total, Hits: make([]DocumentResponse, 0, len(res.Hits))}
	for _, h := range res.Hits {
		item := documentToResponse(h.Document)
		if h.Record.Score != 0 {
			score := h.Record.Score
			item.Score = &score
		}
		resp.Hits = append(resp.Hits, item)
	}
	writeJSON(w, http.StatusOK, resp)
}

// CountDocuments handles GET /{index}/{type}/_count. Every query parameter
// is an exact match condition on the field of the same name.
func (s *Server) CountDocuments(w http.ResponseWriter, r *http.Request) {
	kind, ok := s.kindFor(w, r)
	if !ok {
		return
	}

	q := queryFromParams(r)
	n, err := kind.Count(r.Context(), q)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, CountResponse{Count: n})
}

// HealthCheck handles GET /healthz.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, HealthResponse{Status: string(report.Status), Checks: checks})
}

// kindFor picks the kind serving the request address. Documents of sibling
// kinds are still materialized as their own kind by the discriminator.
func (s *Server) kindFor(w http.ResponseWriter, r *http.Request) (*docdex.Kind, bool) {
	index, docType := chi.URLParam(r, "index"), chi.URLParam(r, "type")

	if name := r.URL.Query().Get("kind"); name != "" {
		k, err := s.registry.Lookup(index + "." + docType + "." + name)
		if err != nil {
			writeError(w, http.StatusNotFound, CodeUnknownKind, "unknown kind "+strconv.Quote(name))
			return nil, false
		}
		return k, true
	}

	kinds := s.registry.Kinds(index, docType)
	if len(kinds) == 0 {
		writeError(w, http.StatusNotFound, CodeUnknownKind, "no kind registered for "+index+"/"+docType)
		return nil, false
	}
	return kinds[0], true
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContextOr(r.Context(), s.logger)
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{Code: code, Message: message})
}

// safeDomainMessage returns the sentinel text for known errors so engine
// details never reach the client.
func safeDomainMessage(err error) string {
	for _, sentinel := range []error{
		docdex.ErrNotFound,
		docdex.ErrUnknownKind,
		docdex.ErrIndexNotReady,
		docdex.ErrNoClient,
	} {
		if errors.Is(err, sentinel) {
			return sentinel.Error()
		}
	}
	// Validation failures carry the offending field, which is safe to show.
	if errors.Is(err, docdex.ErrInvalidQuery) {
		return err.Error()
	}
	return "internal error"
}

func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

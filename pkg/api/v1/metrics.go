// Package v1 provides version 1 API handlers.
package v1

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/tosin2013/metrics-gateway/internal/integrations"
	"github.com/tosin2013/metrics-gateway/pkg/gateway"
	"github.com/tosin2013/metrics-gateway/pkg/models"
)

// Error codes returned in MetricsErrorResponse.Code
const (
	ErrCodeInvalidWindow          = "INVALID_WINDOW"
	ErrCodeBackendUnavailable     = "BACKEND_UNAVAILABLE"
	ErrCodeBackendResponseInvalid = "BACKEND_RESPONSE_INVALID"
	ErrCodeNodeIdentityUnresolved = "NODE_IDENTITY_UNRESOLVED"
	ErrCodeInternal               = "INTERNAL_ERROR"
)

// MetricsGateway is the set of operations served by MetricsHandler
type MetricsGateway interface {
	PodsCPU(ctx context.Context, windowSeconds int) ([]models.PodMetric, error)
	PodsMemory(ctx context.Context) ([]models.PodMetric, error)
	PodsHits(ctx context.Context, windowSeconds int) ([]models.PodMetric, error)
	NodesCPU(ctx context.Context, windowSeconds int) ([]models.NodeMetric, error)
	NodesMemory(ctx context.Context) ([]models.NodeMetric, error)
}

// MetricsHandler handles pod and node metrics API requests
type MetricsHandler struct {
	gateway       MetricsGateway
	catalog       *gateway.Catalog
	defaultWindow int
	log           *logrus.Logger
}

// NewMetricsHandler creates a new metrics API handler.
// defaultWindowSeconds is used when a windowed request has no window parameter.
func NewMetricsHandler(gw MetricsGateway, catalog *gateway.Catalog, defaultWindowSeconds int, log *logrus.Logger) *MetricsHandler {
	return &MetricsHandler{
		gateway:       gw,
		catalog:       catalog,
		defaultWindow: defaultWindowSeconds,
		log:           log,
	}
}

// MetricsResponse represents the API response for a metrics request
type MetricsResponse struct {
	Status        string            `json:"status"`
	Kind          models.MetricKind `json:"kind"`
	WindowSeconds int               `json:"window_seconds,omitempty"`
	Timestamp     time.Time         `json:"timestamp"`
	Count         int               `json:"count"`
	Metrics       interface{}       `json:"metrics"`
}

// QueryInfo describes one catalog entry; Query is Template rendered for the response window
type QueryInfo struct {
	Kind       models.MetricKind `json:"kind"`
	Template   string            `json:"template"`
	Query      string            `json:"query"`
	Windowed   bool              `json:"windowed"`
	NodeScoped bool              `json:"node_scoped"`
}

// QueriesResponse represents the API response for the query catalog
type QueriesResponse struct {
	Status        string      `json:"status"`
	WindowSeconds int         `json:"window_seconds"`
	Queries       []QueryInfo `json:"queries"`
}

// MetricsErrorResponse represents an error response for metrics endpoints
type MetricsErrorResponse struct {
	Status  string `json:"status"`
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
	Code    string `json:"code,omitempty"`
}

// RegisterRoutes registers metrics API routes
func (h *MetricsHandler) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/api/v1/metrics/pods/cpu", h.PodsCPU).Methods("GET")
	router.HandleFunc("/api/v1/metrics/pods/memory", h.PodsMemory).Methods("GET")
	router.HandleFunc("/api/v1/metrics/pods/hits", h.PodsHits).Methods("GET")
	router.HandleFunc("/api/v1/metrics/nodes/cpu", h.NodesCPU).Methods("GET")
	router.HandleFunc("/api/v1/metrics/nodes/memory", h.NodesMemory).Methods("GET")
	router.HandleFunc("/api/v1/metrics/queries", h.Queries).Methods("GET")

	h.log.Info("Metrics API routes registered: /api/v1/metrics/pods/{cpu,memory,hits}, /api/v1/metrics/nodes/{cpu,memory}, /api/v1/metrics/queries")
}

// PodsCPU handles GET /api/v1/metrics/pods/cpu
// @Summary Get pod CPU usage
// @Description Returns CPU usage per pod in percent of one core, averaged over the window
// @Tags metrics
// @Produce json
// @Param window query int false "Window in seconds (default: MEASUREMENT_WINDOW)"
// @Success 200 {object} MetricsResponse
// @Failure 400 {object} MetricsErrorResponse
// @Failure 502 {object} MetricsErrorResponse
// @Router /api/v1/metrics/pods/cpu [get]
func (h *MetricsHandler) PodsCPU(w http.ResponseWriter, r *http.Request) {
	window, ok := h.windowParam(w, r)
	if !ok {
		return
	}
	metrics, err := h.gateway.PodsCPU(r.Context(), window)
	h.respondMetrics(w, models.MetricKindPodCPU, window, metrics, len(metrics), err)
}

// PodsMemory handles GET /api/v1/metrics/pods/memory
// @Summary Get pod memory usage
// @Description Returns working set memory per pod in MiB
// @Tags metrics
// @Produce json
// @Success 200 {object} MetricsResponse
// @Failure 502 {object} MetricsErrorResponse
// @Router /api/v1/metrics/pods/memory [get]
func (h *MetricsHandler) PodsMemory(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.gateway.PodsMemory(r.Context())
	h.respondMetrics(w, models.MetricKindPodMemory, 0, metrics, len(metrics), err)
}

// PodsHits handles GET /api/v1/metrics/pods/hits
// @Summary Get pod request rate
// @Description Returns HTTP requests per second per pod over the window
// @Tags metrics
// @Produce json
// @Param window query int false "Window in seconds (default: MEASUREMENT_WINDOW)"
// @Success 200 {object} MetricsResponse
// @Failure 400 {object} MetricsErrorResponse
// @Failure 502 {object} MetricsErrorResponse
// @Router /api/v1/metrics/pods/hits [get]
func (h *MetricsHandler) PodsHits(w http.ResponseWriter, r *http.Request) {
	window, ok := h.windowParam(w, r)
	if !ok {
		return
	}
	metrics, err := h.gateway.PodsHits(r.Context(), window)
	h.respondMetrics(w, models.MetricKindPodHits, window, metrics, len(metrics), err)
}

// NodesCPU handles GET /api/v1/metrics/nodes/cpu
// @Summary Get node CPU usage
// @Description Returns non-idle CPU per node in percent over the window
// @Tags metrics
// @Produce json
// @Param window query int false "Window in seconds (default: MEASUREMENT_WINDOW)"
// @Success 200 {object} MetricsResponse
// @Failure 400 {object} MetricsErrorResponse
// @Failure 424 {object} MetricsErrorResponse
// @Failure 502 {object} MetricsErrorResponse
// @Router /api/v1/metrics/nodes/cpu [get]
func (h *MetricsHandler) NodesCPU(w http.ResponseWriter, r *http.Request) {
	window, ok := h.windowParam(w, r)
	if !ok {
		return
	}
	metrics, err := h.gateway.NodesCPU(r.Context(), window)
	h.respondMetrics(w, models.MetricKindNodeCPU, window, metrics, len(metrics), err)
}

// NodesMemory handles GET /api/v1/metrics/nodes/memory
// @Summary Get node memory utilization
// @Description Returns used memory per node in percent of total
// @Tags metrics
// @Produce json
// @Success 200 {object} MetricsResponse
// @Failure 424 {object} MetricsErrorResponse
// @Failure 502 {object} MetricsErrorResponse
// @Router /api/v1/metrics/nodes/memory [get]
func (h *MetricsHandler) NodesMemory(w http.ResponseWriter, r *http.Request) {
	metrics, err := h.gateway.NodesMemory(r.Context())
	h.respondMetrics(w, models.MetricKindNodeMemory, 0, metrics, len(metrics), err)
}

// Queries handles GET /api/v1/metrics/queries
func (h *MetricsHandler) Queries(w http.ResponseWriter, r *http.Request) {
	window, ok := h.windowParam(w, r)
	if !ok {
		return
	}

	catalog := h.catalog
	if catalog == nil {
		catalog = gateway.DefaultCatalog()
	}

	templates := catalog.Templates()
	queries := make([]QueryInfo, 0, len(templates))
	for _, t := range templates {
		queries = append(queries, QueryInfo{
			Kind:       t.Kind,
			Template:   t.Pattern,
			Query:      t.Render(window),
			Windowed:   t.Windowed(),
			NodeScoped: t.Kind.IsNodeScoped(),
		})
	}

	h.respondJSON(w, http.StatusOK, QueriesResponse{Status: "success", WindowSeconds: window, Queries: queries})
}

// windowParam reads ?window=<seconds>, falling back to the configured default.
// It writes a 400 and returns false when the value is not a positive integer.
func (h *MetricsHandler) windowParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("window")
	if raw == "" {
		return h.defaultWindow, true
	}

	window, err := strconv.Atoi(raw)
	if err != nil || window <= 0 {
		h.log.WithField("window", raw).Debug("Rejected invalid window parameter")
		h.respondError(w, http.StatusBadRequest, "window must be a positive integer number of seconds", raw, ErrCodeInvalidWindow)
		return 0, false
	}
	return window, true
}

func (h *MetricsHandler) respondMetrics(w http.ResponseWriter, kind models.MetricKind, window int, metrics interface{}, count int, err error) {
	if err != nil {
		status, code := errorStatus(err)
		h.log.WithError(err).WithFields(logrus.Fields{
			"kind":   kind,
			"window": window,
			"code":   code,
		}).Error("Metrics request failed")
		h.respondError(w, status, http.StatusText(status), err.Error(), code)
		return
	}

	h.log.WithFields(logrus.Fields{
		"kind":   kind,
		"window": window,
		"count":  count,
	}).Info("Metrics request completed")

	h.respondJSON(w, http.StatusOK, MetricsResponse{
		Status:        "success",
		Kind:          kind,
		WindowSeconds: window,
		Timestamp:     time.Now().UTC(),
		Count:         count,
		Metrics:       metrics,
	})
}

// errorStatus maps a gateway failure to an HTTP status and error code
func errorStatus(err error) (int, string) {
	var (
		execErr  *integrations.ExecutionError
		parseErr *integrations.ParseError
		idErr    *integrations.IdentityError
	)

	switch {
	case errors.Is(err, gateway.ErrInvalidWindow):
		return http.StatusBadRequest, ErrCodeInvalidWindow
	case errors.As(err, &execErr):
		return http.StatusBadGateway, ErrCodeBackendUnavailable
	case errors.As(err, &parseErr):
		return http.StatusInternalServerError, ErrCodeBackendResponseInvalid
	case errors.As(err, &idErr):
		return http.StatusFailedDependency, ErrCodeNodeIdentityUnresolved
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}

func (h *MetricsHandler) respondJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		h.log.WithError(err).Error("Failed to encode JSON response")
	}
}

// respondError writes an error response
func (h *MetricsHandler) respondError(w http.ResponseWriter, statusCode int, message, details, code string) {
	response := MetricsErrorResponse{
		Status:  "error",
		Error:   message,
		Details: details,
		Code:    code,
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(response); err != nil {
		h.log.WithError(err).Error("Failed to encode error response")
	}
}

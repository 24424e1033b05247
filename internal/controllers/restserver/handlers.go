package restserver

import (
	"context"
	"errors"
	"html"
	"net/http"
	"strings"
	"time"

	"github.com/chrissnell/climate-api/internal/constants"
	"github.com/chrissnell/climate-api/pkg/responseformat"
	"github.com/gorilla/mux"
)

// Routes advertised by the index page, in listing order
var availableRoutes = []string{
	constants.APIPrefix + "/precipitation",
	constants.APIPrefix + "/stations",
	constants.APIPrefix + "/tobs",
	constants.APIPrefix + "/<start>",
	constants.APIPrefix + "/<start>/<end>",
}

const healthCheckTimeout = 2 * time.Second

// Handlers contains all HTTP handlers for the REST server
type Handlers struct {
	controller *Controller
	formatter  *responseformat.Formatter
}

// NewHandlers creates a new handlers instance
func NewHandlers(ctrl *Controller) *Handlers {
	return &Handlers{
		controller: ctrl,
		formatter:  responseformat.NewFormatter(),
	}
}

// ServeIndex lists the available API routes
func (h *Handlers) ServeIndex(w http.ResponseWriter, req *http.Request) {
	var b strings.Builder
	b.WriteString("Available Routes:<br/>")
	for i, route := range availableRoutes {
		if i > 0 {
			b.WriteString("<br/>")
		}
		b.WriteString(html.EscapeString(route))
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if _, err := w.Write([]byte(b.String())); err != nil {
		h.controller.logger.Errorf("error writing index page: %v", err)
	}
}

// GetHealth reports whether the store is reachable
func (h *Handlers) GetHealth(w http.ResponseWriter, req *http.Request) {
	ctx, cancel := context.WithTimeout(req.Context(), healthCheckTimeout)
	defer cancel()

	if err := h.controller.Store.Ping(ctx); err != nil {
		h.controller.logger.Warnf("health check failed: %v", err)
		h.write(w, req, http.StatusServiceUnavailable, HealthResponse{Status: "unavailable"})
		return
	}
	h.write(w, req, http.StatusOK, HealthResponse{Status: "ok"})
}

// GetPrecipitation returns one {date, precipitation} object per measurement date
func (h *Handlers) GetPrecipitation(w http.ResponseWriter, req *http.Request) {
	rows, err := h.controller.Store.PrecipitationByDate(req.Context())
	if err != nil {
		h.serverError(w, req, err)
		return
	}
	h.write(w, req, http.StatusOK, transformPrecipitation(rows))
}

// GetStations returns the list of station names
func (h *Handlers) GetStations(w http.ResponseWriter, req *http.Request) {
	names, err := h.controller.Store.StationNames(req.Context())
	if err != nil {
		h.serverError(w, req, err)
		return
	}
	if names == nil {
		names = []string{}
	}
	h.write(w, req, http.StatusOK, names)
}

// GetTemperatureObservations returns [date, tobs] pairs for the trailing window
// ending at the reference date, newest first
func (h *Handlers) GetTemperatureObservations(w http.ResponseWriter, req *http.Request) {
	ref, ok, err := h.controller.referenceDate(req.Context())
	if err != nil {
		h.serverError(w, req, err)
		return
	}
	if !ok {
		h.write(w, req, http.StatusOK, [][]any{})
		return
	}

	rows, err := h.controller.Store.TemperatureObservations(req.Context(), ref, h.controller.climateConfig.WindowDays)
	if err != nil {
		h.serverError(w, req, err)
		return
	}
	h.write(w, req, http.StatusOK, transformObservations(rows))
}

// GetTemperatureSummaryFrom returns [[date, min, max, avg]] across every
// measurement on or after {start}, or [] when none match
func (h *Handlers) GetTemperatureSummaryFrom(w http.ResponseWriter, req *http.Request) {
	start := mux.Vars(req)["start"]

	rows, err := h.controller.Store.TemperatureSummaryFrom(req.Context(), start)
	if err != nil {
		h.serverError(w, req, err)
		return
	}
	h.write(w, req, http.StatusOK, transformSummaries(rows))
}

// GetTemperatureSummaryBetween returns [min, max, avg] across every
// measurement within [{start}, {end}]
func (h *Handlers) GetTemperatureSummaryBetween(w http.ResponseWriter, req *http.Request) {
	vars := mux.Vars(req)

	summary, err := h.controller.Store.TemperatureSummaryBetween(req.Context(), vars["start"], vars["end"])
	if err != nil {
		h.serverError(w, req, err)
		return
	}
	h.write(w, req, http.StatusOK, transformSummary(summary))
}

func (h *Handlers) write(w http.ResponseWriter, req *http.Request, status int, data any) {
	err := h.formatter.WriteStatus(w, req, status, data)
	if err == nil {
		return
	}
	if errors.Is(err, responseformat.ErrWriteFailed) {
		// Headers are already out; only the log can record it
		h.controller.logger.Warnw("response write failed",
			"path", req.URL.Path,
			"request_id", req.Header.Get(requestIDHeader),
			"error", err,
		)
		return
	}
	h.serverError(w, req, err)
}

func (h *Handlers) serverError(w http.ResponseWriter, req *http.Request, err error) {
	h.controller.logger.Errorw("request failed",
		"path", req.URL.Path,
		"request_id", req.Header.Get(requestIDHeader),
		"error", err,
	)
	http.Error(w, "internal server error", http.StatusInternalServerError)
}

// Package incidents provides HTTP handlers and business logic for incident
// tracking: reporting, assignment, status transitions and CSV export.
package incidents

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/opsdesk/opsdesk/internal/domain"
	"github.com/opsdesk/opsdesk/internal/pkg/ctxlog"
	"github.com/opsdesk/opsdesk/internal/pkg/httputil"
)

// datetimeLayouts are the accepted formats for dateTime and closedOn fields,
// tried in order.
var datetimeLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
}

// Handler handles HTTP requests for the incidents module.
type Handler struct {
	service   *Service
	validator *validator.Validate
	maxUpload int64
}

// NewHandler creates a new incidents handler. maxUpload caps the in-memory
// portion of multipart parsing in bytes.
func NewHandler(service *Service, maxUpload int64) *Handler {
	return &Handler{
		service:   service,
		validator: validator.New(),
		maxUpload: maxUpload,
	}
}

// RegisterRoutes registers all HTTP routes for the incidents module.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/incidents", func(r chi.Router) {
		r.Get("/", h.ListIncidents)
		r.Post("/", h.CreateIncident)
		r.Get("/export", h.ExportIncidents)
		r.Get("/{id}", h.GetIncident)
		r.Patch("/{id}", h.UpdateIncident)
		r.Delete("/{id}", h.DeleteIncident)
		r.Get("/{id}/attachment", h.DownloadAttachment)
	})
}

// errorMappings maps service errors to HTTP responses.
var errorMappings = []httputil.ErrorMapping{
	{Error: ErrIncidentNotFound, Status: http.StatusNotFound},
	{Error: ErrAttachmentNotFound, Status: http.StatusNotFound},
	{Error: ErrInvalidStatus, Status: http.StatusBadRequest},
}

// CreateIncidentRequest represents the multipart form fields for reporting
// an incident. The attachment file is handled separately.
type CreateIncidentRequest struct {
	ReportedBy  string `validate:"required,min=1,max=255"`
	AssignedTo  string `validate:"required,min=1,max=255"`
	DateTime    string `validate:"required"`
	Description string `validate:"required"`
}

// UpdateIncidentRequest represents the request body for updating an
// incident. Absent fields leave the record untouched.
type UpdateIncidentRequest struct {
	Status   *string `json:"status"`
	ClosedOn *string `json:"closedOn"`
}

// CreateIncident handles POST /incidents request.
func (h *Handler) CreateIncident(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(h.maxUpload); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	req := CreateIncidentRequest{
		ReportedBy:  r.FormValue("reportedBy"),
		AssignedTo:  r.FormValue("assignedTo"),
		DateTime:    r.FormValue("dateTime"),
		Description: r.FormValue("description"),
	}

	if err := h.validator.Struct(req); err != nil {
		httputil.ValidationError(w, err)
		return
	}

	dateTime, err := parseDatetime(req.DateTime)
	if err != nil {
		httputil.Error(w, http.StatusBadRequest, "dateTime must be an ISO 8601 timestamp")
		return
	}

	input := CreateIncidentInput{
		ReportedBy:  req.ReportedBy,
		AssignedTo:  req.AssignedTo,
		DateTime:    dateTime,
		Description: req.Description,
	}

	file, header, err := r.FormFile("attachment")
	switch {
	case err == nil:
		defer file.Close()
		input.AttachmentName = header.Filename
		input.AttachmentData = file
	case errors.Is(err, http.ErrMissingFile):
		// No attachment supplied.
	default:
		httputil.Error(w, http.StatusBadRequest, "invalid attachment")
		return
	}

	incident, err := h.service.Create(r.Context(), input)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusCreated, incident)
}

// GetIncident handles GET /incidents/{id} request.
func (h *Handler) GetIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	incident, err := h.service.Get(r.Context(), id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// ListIncidents handles GET /incidents request.
func (h *Handler) ListIncidents(w http.ResponseWriter, r *http.Request) {
	incidents, err := h.service.List(r.Context())
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, incidents)
}

// UpdateIncident handles PATCH /incidents/{id} request.
func (h *Handler) UpdateIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	var req UpdateIncidentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.Error(w, http.StatusBadRequest, "invalid json")
		return
	}

	var update StatusUpdate

	if req.Status != nil {
		status, err := domain.ParseStatus(*req.Status)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, err.Error())
			return
		}
		update.Status = &status
	}

	if req.ClosedOn != nil {
		closedOn, err := parseDatetime(*req.ClosedOn)
		if err != nil {
			httputil.Error(w, http.StatusBadRequest, "closedOn must be an ISO 8601 timestamp")
			return
		}
		update.ClosedOn = &closedOn
	}

	incident, err := h.service.Update(r.Context(), id, update)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	httputil.Success(w, http.StatusOK, incident)
}

// DeleteIncident handles DELETE /incidents/{id} request.
func (h *Handler) DeleteIncident(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ExportIncidents handles GET /incidents/export request.
// The CSV is buffered so a storage failure still yields a JSON error
// response instead of a truncated download.
func (h *Handler) ExportIncidents(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := h.service.ExportCSV(r.Context(), &buf); err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}

	filename := ExportFilename(time.Now())
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename="+filename)
	w.WriteHeader(http.StatusOK)

	if _, err := w.Write(buf.Bytes()); err != nil {
		ctxlog.FromContext(r.Context()).Error("failed to write csv export", "error", err)
	}
}

// DownloadAttachment handles GET /incidents/{id}/attachment request.
func (h *Handler) DownloadAttachment(w http.ResponseWriter, r *http.Request) {
	id, ok := h.parseID(w, r)
	if !ok {
		return
	}

	rc, name, err := h.service.OpenAttachment(r.Context(), id)
	if err != nil {
		httputil.HandleError(r.Context(), w, err, errorMappings)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Disposition", "attachment; filename="+name)

	if _, err := io.Copy(w, rc); err != nil {
		ctxlog.FromContext(r.Context()).Error("failed to stream attachment", "error", err)
	}
}

// parseID extracts and validates the {id} route parameter. On failure it
// writes a 400 response and returns false.
func (h *Handler) parseID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		httputil.Error(w, http.StatusBadRequest, "invalid incident id")
		return 0, false
	}
	return id, true
}

// parseDatetime parses a timestamp in any of the accepted layouts.
func parseDatetime(value string) (time.Time, error) {
	var lastErr error
	for _, layout := range datetimeLayouts {
		t, err := time.Parse(layout, value)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}

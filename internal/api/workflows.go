package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/strathearn/conductor/internal/documents"
	"github.com/strathearn/conductor/internal/workflow"
	"github.com/strathearn/conductor/pkg/handlers"
	"github.com/strathearn/conductor/pkg/routes"
)

// workflowHandler exposes pipeline control for registered documents:
// starting, retrying, cancelling, and observing executions.
type workflowHandler struct {
	docs      documents.System
	scheduler *workflow.Scheduler
	logger    *slog.Logger
}

func newWorkflowHandler(
	docs documents.System,
	scheduler *workflow.Scheduler,
	logger *slog.Logger,
) *workflowHandler {
	return &workflowHandler{
		docs:      docs,
		scheduler: scheduler,
		logger:    logger.With("handler", "workflows"),
	}
}

func (h *workflowHandler) routes() routes.Group {
	return routes.Group{
		Prefix: "/documents",
		Routes: []routes.Route{
			{Method: "POST", Pattern: "/{id}/process", Handler: h.process},
			{Method: "POST", Pattern: "/{id}/retry", Handler: h.retry},
			{Method: "POST", Pattern: "/{id}/cancel", Handler: h.cancel},
			{Method: "GET", Pattern: "/{id}/status", Handler: h.status},
		},
	}
}

// acceptedResponse acknowledges an accepted workflow submission. Execution
// continues after the response; clients poll the status endpoint.
type acceptedResponse struct {
	DocumentID uuid.UUID              `json:"document_id"`
	State      workflow.DocumentState `json:"state"`
}

// retryRequest optionally pins the state a retry is expected to re-enter at.
type retryRequest struct {
	ExpectedState workflow.DocumentState `json:"expected_state"`
}

// statusResponse combines the persisted document with whether an execution
// is currently live.
type statusResponse struct {
	Document *documents.Document `json:"document"`
	Running  bool                `json:"running"`
}

func (h *workflowHandler) process(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.findDocument(w, r)
	if !ok {
		return
	}

	inst, err := h.scheduler.Submit(r.Context(), doc.StartRequest())
	if err != nil {
		handlers.RespondError(w, h.logger, schedulerHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusAccepted, acceptedResponse{
		DocumentID: inst.DocumentID,
		State:      doc.State,
	})
}

func (h *workflowHandler) retry(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.findDocument(w, r)
	if !ok {
		return
	}

	var req retryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	inst, err := h.scheduler.Resume(r.Context(), doc.StartRequest(), req.ExpectedState)
	if err != nil {
		handlers.RespondError(w, h.logger, schedulerHTTPStatus(err), err)
		return
	}

	handlers.RespondJSON(w, http.StatusAccepted, acceptedResponse{
		DocumentID: inst.DocumentID,
		State:      doc.State,
	})
}

func (h *workflowHandler) cancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return
	}

	if !h.scheduler.Cancel(id) {
		handlers.RespondError(
			w, h.logger,
			http.StatusConflict,
			errors.New("no running workflow for document"),
		)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *workflowHandler) status(w http.ResponseWriter, r *http.Request) {
	doc, ok := h.findDocument(w, r)
	if !ok {
		return
	}

	handlers.RespondJSON(w, http.StatusOK, statusResponse{
		Document: doc,
		Running:  h.scheduler.Running(doc.ID),
	})
}

func (h *workflowHandler) findDocument(w http.ResponseWriter, r *http.Request) (*documents.Document, bool) {
	id, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		handlers.RespondError(w, h.logger, http.StatusBadRequest, err)
		return nil, false
	}

	doc, err := h.docs.Find(r.Context(), id)
	if err != nil {
		handlers.RespondError(w, h.logger, documents.MapHTTPStatus(err), err)
		return nil, false
	}

	return doc, true
}

// schedulerHTTPStatus maps scheduler rejections to HTTP status codes.
func schedulerHTTPStatus(err error) int {
	switch {
	case errors.Is(err, workflow.ErrAlreadyRunning),
		errors.Is(err, workflow.ErrResumeMismatch),
		errors.Is(err, workflow.ErrNotResumable):
		return http.StatusConflict
	case errors.Is(err, workflow.ErrShuttingDown):
		return http.StatusServiceUnavailable
	case errors.Is(err, workflow.ErrTenantNotFound):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

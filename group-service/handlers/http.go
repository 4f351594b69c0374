package handlers

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/draftea/group-coordinator/group-service/application"
	"github.com/draftea/group-coordinator/group-service/domain"
	"github.com/draftea/group-coordinator/shared/events"
	"github.com/draftea/group-coordinator/shared/models"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
)

// GroupResponse is returned by the group endpoints on success
type GroupResponse struct {
	GroupID string    `json:"groupId"`
	RunID   models.ID `json:"runId"`
}

// GroupHandlers exposes the saga over HTTP
type GroupHandlers struct {
	createGroup *application.CreateGroup
	deleteGroup *application.DeleteGroup
	journal     events.EventStore
	validate    *validator.Validate
	logger      *slog.Logger
}

// NewGroupHandlers creates new group handlers. journal may be nil, the saga
// events endpoint is then not registered.
func NewGroupHandlers(
	createGroup *application.CreateGroup,
	deleteGroup *application.DeleteGroup,
	journal events.EventStore,
	logger *slog.Logger,
) *GroupHandlers {
	return &GroupHandlers{
		createGroup: createGroup,
		deleteGroup: deleteGroup,
		journal:     journal,
		validate:    validator.New(validator.WithRequiredStructEnabled()),
		logger:      logger.With("module", "http_handlers"),
	}
}

// CreateGroup handles POST /client/v1/group
func (h *GroupHandlers) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var cmd application.GroupCommand
	if err := json.NewDecoder(r.Body).Decode(&cmd); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.validate.Struct(&cmd); err != nil {
		http.Error(w, "groupId is required", http.StatusBadRequest)
		return
	}

	result, err := h.createGroup.Execute(r.Context(), &cmd)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.writeResult(w, r, result, http.StatusCreated)
}

// DeleteGroup handles DELETE /client/v1/group/{groupId}
func (h *GroupHandlers) DeleteGroup(w http.ResponseWriter, r *http.Request) {
	cmd := application.GroupCommand{GroupID: chi.URLParam(r, "groupId")}
	if err := h.validate.Struct(&cmd); err != nil {
		http.Error(w, "groupId is required", http.StatusBadRequest)
		return
	}

	result, err := h.deleteGroup.Execute(r.Context(), &cmd)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	h.writeResult(w, r, result, http.StatusOK)
}

// SagaEvents handles GET /client/v1/sagas/{runId}/events
func (h *GroupHandlers) SagaEvents(w http.ResponseWriter, r *http.Request) {
	runID, err := models.NewID(chi.URLParam(r, "runId"))
	if err != nil {
		http.Error(w, "invalid run id", http.StatusBadRequest)
		return
	}

	evts, err := h.journal.Load(r.Context(), runID)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "Failed to load saga journal", "run_id", runID, "error", err)
		http.Error(w, "failed to load saga events", http.StatusInternalServerError)
		return
	}

	if len(evts) == 0 {
		http.Error(w, "saga run not found", http.StatusNotFound)
		return
	}

	writeJSON(w, http.StatusOK, evts)
}

func (h *GroupHandlers) writeResult(w http.ResponseWriter, r *http.Request, result *domain.SagaResult, successStatus int) {
	switch result.Verdict {
	case domain.VerdictOK:
		writeJSON(w, successStatus, GroupResponse{GroupID: result.GroupID.String(), RunID: result.RunID})
	case domain.VerdictAlreadyExists:
		http.Error(w, result.Err().Error(), http.StatusBadRequest)
	default:
		h.logger.WarnContext(r.Context(), "Group saga failed",
			"run_id", result.RunID, "group_id", result.GroupID, "operation", result.Operation,
			"failed_node", result.FailedNode, "reason", result.Reason)
		http.Error(w, result.Err().Error(), http.StatusBadGateway)
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// RegisterRoutes registers group routes
func (h *GroupHandlers) RegisterRoutes(r chi.Router) {
	r.Route("/client/v1", func(r chi.Router) {
		r.Post("/group", h.CreateGroup)
		r.Delete("/group/{groupId}", h.DeleteGroup)
		if h.journal != nil {
			r.Get("/sagas/{runId}/events", h.SagaEvents)
		}
	})
}

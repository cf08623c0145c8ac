package api

import (
	"context"
	"net/http"

	"github.com/okian/aqsync/internal/domain/model"
	"github.com/okian/aqsync/internal/domain/reconcile"
	"github.com/okian/aqsync/pkg/logger"
)

// SyncDependencies covers the upsert endpoints.
type SyncDependencies interface {
	SyncAll(ctx context.Context, project, eventID string, batch model.Batch) (string, error)
	SyncFolder(ctx context.Context, project string, folder model.Folder, path model.Path) (string, error)
	SyncTask(ctx context.Context, project string, task model.Task, path model.Path) (string, error)
}

// SyncHandler handles the /projects/{name}/sync/* requests. Each answers a
// JSON string: the entity id (or project name) on success, the failure text
// for a rejected record, empty when nothing was saved.
type SyncHandler struct {
	deps   SyncDependencies
	logger logger.Logger
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(deps SyncDependencies) *SyncHandler {
	return &SyncHandler{deps: deps, logger: logger.Get().Named("api")}
}

type syncAllRequest struct {
	EventID string      `json:"eventId"`
	Items   model.Batch `json:"items"`
}

type syncFolderRequest struct {
	Folder model.Folder `json:"folder"`
	Path   model.Path   `json:"path"`
}

type syncTaskRequest struct {
	Task model.Task `json:"task"`
	Path model.Path `json:"path"`
}

// HandleSyncAll handles POST /projects/{name}/sync/all requests.
func (h *SyncHandler) HandleSyncAll(w http.ResponseWriter, r *http.Request) {
	const op = "api.sync_all"
	var req syncAllRequest
	if err := decode(w, r, op, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	name, err := h.deps.SyncAll(r.Context(), r.PathValue("name"), req.EventID, req.Items)
	h.reply(w, r, op, name, err)
}

// HandleSyncFolder handles POST /projects/{name}/sync/folder requests.
func (h *SyncHandler) HandleSyncFolder(w http.ResponseWriter, r *http.Request) {
	const op = "api.sync_folder"
	var req syncFolderRequest
	if err := decode(w, r, op, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	id, err := h.deps.SyncFolder(r.Context(), r.PathValue("name"), req.Folder, req.Path)
	h.reply(w, r, op, id, err)
}

// HandleSyncTask handles POST /projects/{name}/sync/task requests.
func (h *SyncHandler) HandleSyncTask(w http.ResponseWriter, r *http.Request) {
	const op = "api.sync_task"
	var req syncTaskRequest
	if err := decode(w, r, op, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	id, err := h.deps.SyncTask(r.Context(), r.PathValue("name"), req.Task, req.Path)
	h.reply(w, r, op, id, err)
}

func (h *SyncHandler) reply(w http.ResponseWriter, r *http.Request, op, id string, err error) {
	if err != nil {
		if status, _ := classify(err); status == http.StatusServiceUnavailable {
			writeFailure(w, r, op, err)
			return
		}
		h.logger.Warn(r.Context(), "sync request not applied",
			logger.String("op", op),
			logger.String("project", r.PathValue("name")),
			logger.Error(err))
	}
	writeJSON(w, http.StatusOK, reconcile.Reply(id, err))
}

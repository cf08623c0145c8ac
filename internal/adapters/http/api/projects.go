package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/okian/aqsync/internal/domain/model"
)

// ProjectDependencies covers pairing and project level operations.
type ProjectDependencies interface {
	Pairings(ctx context.Context) ([]model.Pairing, error)
	Pair(ctx context.Context, user, aquariumProjectKey, name, code string) (string, error)
	Unpair(ctx context.Context, project string) error
	CreateProject(ctx context.Context, user, project, aquariumProjectName string) (string, error)
	TriggerSync(ctx context.Context, project, user string) (string, error)
	Attributes(ctx context.Context, project string) (map[string]any, error)
	UpdateProjectAttrib(ctx context.Context, project string, attrib map[string]any) error
	Bootstrap(ctx context.Context, project, aquariumProjectName string) (string, error)
}

// ProjectsHandler handles /projects requests.
type ProjectsHandler struct {
	deps ProjectDependencies
}

// NewProjectsHandler creates a new projects handler.
func NewProjectsHandler(deps ProjectDependencies) *ProjectsHandler {
	return &ProjectsHandler{deps: deps}
}

type pairRequest struct {
	AquariumProjectKey string `json:"aquariumProjectKey"`
	AyonProjectName    string `json:"ayonProjectName"`
	AyonProjectCode    string `json:"ayonProjectCode"`
}

type createRequest struct {
	AyonProjectName     string `json:"ayonProjectName"`
	AquariumProjectName string `json:"aquariumProjectName"`
}

type attribRequest struct {
	Attrib map[string]any `json:"attrib"`
}

type bootstrapRequest struct {
	AquariumProjectName string `json:"aquariumProjectName"`
}

type bootstrapResponse struct {
	AquariumProjectKey string `json:"aquariumProjectKey"`
}

// HandlePairings handles GET /projects/pair requests.
func (h *ProjectsHandler) HandlePairings(w http.ResponseWriter, r *http.Request) {
	const op = "api.pairings"
	pairings, err := h.deps.Pairings(r.Context())
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, pairings)
}

// HandlePair handles POST /projects/pair requests.
func (h *ProjectsHandler) HandlePair(w http.ResponseWriter, r *http.Request) {
	const op = "api.pair"
	var req pairRequest
	if err := decode(w, r, op, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	id, err := h.deps.Pair(r.Context(), userOf(r),
		strings.TrimSpace(req.AquariumProjectKey),
		strings.TrimSpace(req.AyonProjectName),
		strings.TrimSpace(req.AyonProjectCode))
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusCreated, eventResponse{EventID: id})
}

// HandleCreate handles POST /projects requests: an Aquarium project is
// created from the AYON project by the processor.
func (h *ProjectsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_project"
	var req createRequest
	if err := decode(w, r, op, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	id, err := h.deps.CreateProject(r.Context(), userOf(r), strings.TrimSpace(req.AyonProjectName), strings.TrimSpace(req.AquariumProjectName))
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusAccepted, eventResponse{EventID: id})
}

// HandleUnpair handles DELETE /projects/{name}/pair requests.
func (h *ProjectsHandler) HandleUnpair(w http.ResponseWriter, r *http.Request) {
	const op = "api.unpair"
	if err := h.deps.Unpair(r.Context(), r.PathValue("name")); err != nil {
		writeFailure(w, r, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleTriggerSync handles POST /projects/{name}/sync requests.
func (h *ProjectsHandler) HandleTriggerSync(w http.ResponseWriter, r *http.Request) {
	const op = "api.trigger_sync"
	id, err := h.deps.TriggerSync(r.Context(), r.PathValue("name"), userOf(r))
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusAccepted, eventResponse{EventID: id})
}

// HandleAttributes handles GET /projects/{name}/anatomy/attributes requests.
func (h *ProjectsHandler) HandleAttributes(w http.ResponseWriter, r *http.Request) {
	const op = "api.attributes"
	attrib, err := h.deps.Attributes(r.Context(), r.PathValue("name"))
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, attrib)
}

// HandleUpdateAttrib handles PATCH /projects/{name} requests. Only attrib
// is accepted.
func (h *ProjectsHandler) HandleUpdateAttrib(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_project"
	var req attribRequest
	if err := decode(w, r, op, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	if req.Attrib == nil {
		writeError(w, http.StatusBadRequest, "bad_request", NewKind(op, ErrBadRequest))
		return
	}
	if err := h.deps.UpdateProjectAttrib(r.Context(), r.PathValue("name"), req.Attrib); err != nil {
		writeFailure(w, r, op, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleBootstrap handles POST /projects/{name}/bootstrap requests. It runs
// the creation synchronously and is what the processor calls.
func (h *ProjectsHandler) HandleBootstrap(w http.ResponseWriter, r *http.Request) {
	const op = "api.bootstrap"
	var req bootstrapRequest
	if err := decode(w, r, op, &req); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", err)
		return
	}
	key, err := h.deps.Bootstrap(r.Context(), r.PathValue("name"), req.AquariumProjectName)
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}
	writeJSON(w, http.StatusOK, bootstrapResponse{AquariumProjectKey: key})
}

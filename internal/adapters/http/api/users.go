package api

import (
	"context"
	"net/http"

	"github.com/okian/aqsync/internal/domain/model"
)

// UserDependencies lists AYON users.
type UserDependencies interface {
	Users(ctx context.Context) ([]model.User, error)
}

// UsersHandler handles GET /users.
type UsersHandler struct {
	deps UserDependencies
}

// NewUsersHandler creates a new users handler.
func NewUsersHandler(deps UserDependencies) *UsersHandler {
	return &UsersHandler{deps: deps}
}

// HandleUsers handles GET /users requests.
func (h *UsersHandler) HandleUsers(w http.ResponseWriter, r *http.Request) {
	const op = "api.users"
	users, err := h.deps.Users(r.Context())
	if err != nil {
		writeFailure(w, r, op, err)
		return
	}
	if users == nil {
		users = []model.User{}
	}
	writeJSON(w, http.StatusOK, users)
}

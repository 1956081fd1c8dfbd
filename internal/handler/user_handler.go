package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"atlas-auth/internal/model"
	"atlas-auth/internal/service"
)

type UserHandler struct {
	users     *service.UserService
	userRoles *service.UserRoleService
}

func NewUserHandler(users *service.UserService, userRoles *service.UserRoleService) *UserHandler {
	return &UserHandler{users: users, userRoles: userRoles}
}

func (h *UserHandler) List(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := pageParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	users, total, err := h.users.List(r.Context(), skip, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, users, pageMeta(r, skip, limit, total))
}

func (h *UserHandler) Get(w http.ResponseWriter, r *http.Request) {
	user, err := h.users.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, user, nil)
}

func (h *UserHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload model.CreateUserRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.Create(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, user, nil)
}

func (h *UserHandler) Update(w http.ResponseWriter, r *http.Request) {
	var payload model.UpdateUserRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	user, err := h.users.Update(r.Context(), chi.URLParam(r, "id"), payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, user, nil)
}

func (h *UserHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.users.Delete(r.Context(), actorID(r), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}

	writeMessage(w, http.StatusOK, "User deleted successfully")
}

func (h *UserHandler) ListRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.userRoles.List(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, roles, nil)
}

func (h *UserHandler) AssignRoles(w http.ResponseWriter, r *http.Request) {
	var payload model.AssignRoleRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	assigned, err := h.userRoles.Assign(r.Context(), actorID(r), chi.URLParam(r, "id"), payload.IDs()...)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, assigned, nil)
}

func (h *UserHandler) RevokeRole(w http.ResponseWriter, r *http.Request) {
	err := h.userRoles.Revoke(r.Context(), actorID(r), chi.URLParam(r, "id"), chi.URLParam(r, "roleID"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeMessage(w, http.StatusOK, "Role revoked successfully")
}

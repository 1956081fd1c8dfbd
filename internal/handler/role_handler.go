package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"atlas-auth/internal/model"
	"atlas-auth/internal/service"
)

type RoleHandler struct {
	service *service.RoleService
}

func NewRoleHandler(service *service.RoleService) *RoleHandler {
	return &RoleHandler{service: service}
}

func (h *RoleHandler) List(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := pageParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	filter := model.RoleFilter{ApplicationID: r.URL.Query().Get("app_id"), Skip: skip, Limit: limit}
	roles, total, err := h.service.List(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, roles, pageMeta(r, skip, limit, total))
}

func (h *RoleHandler) Get(w http.ResponseWriter, r *http.Request) {
	role, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, role, nil)
}

func (h *RoleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload model.CreateRoleRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	role, err := h.service.Create(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, role, nil)
}

func (h *RoleHandler) Update(w http.ResponseWriter, r *http.Request) {
	var payload model.UpdateRoleRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	role, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, role, nil)
}

// UpdatePermissions replaces the permission document; the body is the
// document itself.
func (h *RoleHandler) UpdatePermissions(w http.ResponseWriter, r *http.Request) {
	var payload json.RawMessage
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	role, err := h.service.UpdatePermissions(r.Context(), chi.URLParam(r, "id"), payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, role, nil)
}

func (h *RoleHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}

	writeMessage(w, http.StatusOK, "Role deleted successfully")
}

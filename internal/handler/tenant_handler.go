package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"atlas-auth/internal/model"
	"atlas-auth/internal/service"
)

type TenantHandler struct {
	service *service.TenantService
}

func NewTenantHandler(service *service.TenantService) *TenantHandler {
	return &TenantHandler{service: service}
}

func (h *TenantHandler) List(w http.ResponseWriter, r *http.Request) {
	tenants, err := h.service.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, tenants, nil)
}

func (h *TenantHandler) Get(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.Get(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, t, nil)
}

func (h *TenantHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload model.CreateTenantRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	t, err := h.service.Create(r.Context(), actorID(r), payload.Name)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, t, nil)
}

func (h *TenantHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), actorID(r), chi.URLParam(r, "name")); err != nil {
		writeError(w, err)
		return
	}

	writeMessage(w, http.StatusOK, "Tenant deleted successfully")
}

package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"atlas-auth/internal/model"
	"atlas-auth/internal/service"
)

type ApplicationHandler struct {
	service *service.ApplicationService
}

func NewApplicationHandler(service *service.ApplicationService) *ApplicationHandler {
	return &ApplicationHandler{service: service}
}

func (h *ApplicationHandler) List(w http.ResponseWriter, r *http.Request) {
	skip, limit, err := pageParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	apps, total, err := h.service.List(r.Context(), skip, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, apps, pageMeta(r, skip, limit, total))
}

func (h *ApplicationHandler) Get(w http.ResponseWriter, r *http.Request) {
	app, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, app, nil)
}

func (h *ApplicationHandler) Details(w http.ResponseWriter, r *http.Request) {
	details, err := h.service.Details(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, details, nil)
}

func (h *ApplicationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var payload model.CreateApplicationRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	app, err := h.service.Create(r.Context(), payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, app, nil)
}

func (h *ApplicationHandler) Update(w http.ResponseWriter, r *http.Request) {
	var payload model.UpdateApplicationRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	app, err := h.service.Update(r.Context(), chi.URLParam(r, "id"), payload)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, app, nil)
}

func (h *ApplicationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, err)
		return
	}

	writeMessage(w, http.StatusOK, "Application deleted successfully")
}

package handler

import (
	"net/http"
	"strings"

	"atlas-auth/internal/middleware"
	"atlas-auth/internal/model"
	"atlas-auth/internal/service"
	"atlas-auth/pkg/apierror"
)

type AuthHandler struct {
	service *service.AuthService
}

func NewAuthHandler(service *service.AuthService) *AuthHandler {
	return &AuthHandler{service: service}
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var payload model.LoginRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	tokens, err := h.service.LoginWithPassword(r.Context(), payload.Username, payload.Password, middleware.ClientFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, tokens, nil)
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var payload model.RefreshRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	payload.RefreshToken = strings.TrimSpace(payload.RefreshToken)
	if payload.RefreshToken == "" {
		writeError(w, apierror.BadRequest("refresh_token is required", "refresh_token"))
		return
	}

	tokens, err := h.service.Refresh(r.Context(), payload.RefreshToken, middleware.ClientFromRequest(r))
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, tokens, nil)
}

// Logout always succeeds for a well-formed request.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	var payload model.LogoutRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	if err := h.service.Logout(r.Context(), payload.RefreshToken); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "Successfully logged out")
}

func (h *AuthHandler) RequestVerification(w http.ResponseWriter, r *http.Request) {
	var payload model.EmailRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	if err := h.service.RequestEmailVerification(r.Context(), payload.Email); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "If the email exists and is not verified, a verification link has been sent")
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	var payload model.VerifyEmailRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	ok, err := h.service.VerifyEmail(r.Context(), payload.Token)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, apierror.InvalidToken("Invalid or expired verification token"))
		return
	}
	writeMessage(w, http.StatusOK, "Email verified successfully")
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	var payload model.EmailRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	if err := h.service.ForgotPassword(r.Context(), payload.Email); err != nil {
		writeError(w, err)
		return
	}
	writeMessage(w, http.StatusOK, "If the email exists, a password reset link has been sent")
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var payload model.ResetPasswordRequest
	if err := decodeJSON(w, r, &payload); err != nil {
		writeError(w, err)
		return
	}

	ok, err := h.service.ResetPassword(r.Context(), payload.Token, payload.NewPassword)
	if err != nil {
		writeError(w, err)
		return
	}
	if !ok {
		writeError(w, apierror.InvalidToken("Invalid or expired reset token"))
		return
	}
	writeMessage(w, http.StatusOK, "Password has been reset")
}

func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, apierror.New("UNAUTHORIZED", "authentication required", "", http.StatusUnauthorized))
		return
	}

	info, err := h.service.Me(r.Context(), claims.UserID)
	if err != nil {
		writeError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, info, nil)
}

package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/erpcore/erp/internal/apperror"
	"github.com/erpcore/erp/internal/httputil"
	"github.com/erpcore/erp/internal/middleware"
	"github.com/erpcore/erp/internal/models"
	"github.com/erpcore/erp/internal/service"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// MinRefreshTokenLength rejects obviously truncated tokens before any
// signature work is done.
const MinRefreshTokenLength = 30

type AuthHandlers struct {
	authService         *service.AuthService
	refreshTokenService *service.RefreshTokenService
	resetCodeService    *service.ResetCodeService
	logger              *logrus.Logger
}

func NewAuthHandlers(
	authService *service.AuthService,
	refreshTokenService *service.RefreshTokenService,
	resetCodeService *service.ResetCodeService,
	logger *logrus.Logger,
) *AuthHandlers {
	return &AuthHandlers{
		authService:         authService,
		refreshTokenService: refreshTokenService,
		resetCodeService:    resetCodeService,
		logger:              logger,
	}
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshTokenRequest struct {
	Token string `json:"token"`
}

type ResetPasswordRequest struct {
	UserID      string `json:"user_id"`
	Code        string `json:"code"`
	NewPassword string `json:"new_password"`
}

func (h *AuthHandlers) LoginByEmail(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, apperror.InvalidInput("Invalid request body"))
		return
	}

	email := models.NormalizeEmail(req.Email)
	if err := service.ValidateEmail(email); err != nil {
		h.respondWithError(w, err)
		return
	}
	if req.Password == "" {
		h.respondWithError(w, apperror.InvalidInput("password is required"))
		return
	}

	pair, err := h.authService.Login(r.Context(), email, req.Password)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, pair)
}

func (h *AuthHandlers) RefreshToken(w http.ResponseWriter, r *http.Request) {
	var req RefreshTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, apperror.InvalidInput("Invalid request body"))
		return
	}

	token := strings.TrimSpace(req.Token)
	if len(token) < MinRefreshTokenLength {
		h.respondWithError(w, apperror.InvalidInput("token is too short"))
		return
	}

	pair, err := h.refreshTokenService.Refresh(r.Context(), token)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, pair)
}

func (h *AuthHandlers) Logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		h.respondWithError(w, apperror.Unauthorized("Invalid token"))
		return
	}

	if err := h.authService.Logout(r.Context(), claims.UserID); err != nil {
		h.respondWithError(w, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, httputil.MessageResponse{
		Message: "Logged out successfully",
	})
}

// ForgetPassword answers the same way whether or not the address is known.
func (h *AuthHandlers) ForgetPassword(w http.ResponseWriter, r *http.Request) {
	email := models.NormalizeEmail(r.URL.Query().Get("email"))
	if err := service.ValidateEmail(email); err != nil {
		h.respondWithError(w, err)
		return
	}

	if err := h.resetCodeService.RequestReset(r.Context(), email); err != nil {
		h.respondWithError(w, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, httputil.MessageResponse{
		Message: "Please check you email.",
	})
}

func (h *AuthHandlers) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req ResetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.respondWithError(w, apperror.InvalidInput("Invalid request body"))
		return
	}

	userID, err := uuid.Parse(req.UserID)
	if err != nil {
		h.respondWithError(w, apperror.InvalidInput("user_id is not valid"))
		return
	}
	code := strings.TrimSpace(req.Code)
	if code == "" {
		h.respondWithError(w, apperror.InvalidInput("code is required"))
		return
	}

	if err := h.resetCodeService.Reset(r.Context(), userID, code, req.NewPassword); err != nil {
		h.respondWithError(w, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, httputil.MessageResponse{
		Message: "Password has been reset",
	})
}

func (h *AuthHandlers) respondWithError(w http.ResponseWriter, err error) {
	httputil.RespondWithError(w, h.logger, err)
}

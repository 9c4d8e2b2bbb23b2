package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/erpcore/erp/internal/apperror"
	"github.com/erpcore/erp/internal/httputil"
	"github.com/erpcore/erp/internal/middleware"
	"github.com/erpcore/erp/internal/service"
	"github.com/sirupsen/logrus"
)

type UserHandlers struct {
	userService *service.UserService
	logger      *logrus.Logger
}

func NewUserHandlers(userService *service.UserService, logger *logrus.Logger) *UserHandlers {
	return &UserHandlers{
		userService: userService,
		logger:      logger,
	}
}

type RegisterRequest struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

type RegisterResponse struct {
	Username string `json:"username"`
}

type ProfileResponse struct {
	UserUUID string `json:"user_uuid"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Role     string `json:"role"`
	Status   int    `json:"status"`
}

func (h *UserHandlers) RegisterByEmail(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.RespondWithError(w, h.logger, apperror.InvalidInput("Invalid request body"))
		return
	}

	user, err := h.userService.Register(r.Context(), req.Email, req.Username, req.Password)
	if err != nil {
		httputil.RespondWithError(w, h.logger, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, RegisterResponse{Username: user.Username})
}

func (h *UserHandlers) Profile(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		httputil.RespondWithError(w, h.logger, apperror.Unauthorized("Invalid token"))
		return
	}

	user, err := h.userService.Profile(r.Context(), claims.UserID)
	if err != nil {
		httputil.RespondWithError(w, h.logger, err)
		return
	}

	httputil.RespondWithJSON(w, http.StatusOK, ProfileResponse{
		UserUUID: user.UserUUID.String(),
		Email:    user.Email,
		Username: user.Username,
		Role:     user.Role,
		Status:   int(user.Status),
	})
}

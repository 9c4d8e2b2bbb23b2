package handlers

import (
	"net/http"

	"github.com/erpcore/erp/internal/metrics"
	"github.com/erpcore/erp/internal/middleware"
	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

type RouterDeps struct {
	Auth           *AuthHandlers
	Users          *UserHandlers
	Server         *ServerHandlers
	AuthMiddleware *middleware.AuthMiddleware
	Metrics        *metrics.Metrics
	Logger         *logrus.Logger
}

func NewRouter(d RouterDeps) *mux.Router {
	router := mux.NewRouter()

	router.Use(middleware.CORSMiddleware)
	router.Use(middleware.LoggingMiddleware(d.Logger))
	router.Use(middleware.MetricsMiddleware(d.Metrics))

	router.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	}).Methods("GET", "OPTIONS")
	router.Handle("/metrics", d.Metrics.Handler()).Methods("GET")

	api := router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/login_by_email", d.Auth.LoginByEmail).Methods("POST", "OPTIONS")
	api.HandleFunc("/refresh_token", d.Auth.RefreshToken).Methods("POST", "OPTIONS")
	api.HandleFunc("/forget_password", d.Auth.ForgetPassword).Methods("GET", "OPTIONS")
	api.HandleFunc("/reset_password", d.Auth.ResetPassword).Methods("PUT", "OPTIONS")
	api.HandleFunc("/user/register_by_email", d.Users.RegisterByEmail).Methods("POST", "OPTIONS")
	api.HandleFunc("/server/health_check", d.Server.HealthCheck).Methods("GET", "OPTIONS")
	api.HandleFunc("/server/state", d.Server.State).Methods("GET", "OPTIONS")

	protected := api.NewRoute().Subrouter()
	protected.Use(d.AuthMiddleware.RequireAuth)
	protected.HandleFunc("/logout", d.Auth.Logout).Methods("POST", "OPTIONS")
	protected.HandleFunc("/user/profile", d.Users.Profile).Methods("GET", "OPTIONS")

	return router
}

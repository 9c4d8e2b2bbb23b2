package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/erpcore/erp/internal/httputil"
	"github.com/sirupsen/logrus"
)

const pingTimeout = 2 * time.Second

type Pinger interface {
	Ping(ctx context.Context) error
}

type ServerHandlers struct {
	db     Pinger
	redis  Pinger
	logger *logrus.Logger
}

func NewServerHandlers(db, redis Pinger, logger *logrus.Logger) *ServerHandlers {
	return &ServerHandlers{
		db:     db,
		redis:  redis,
		logger: logger,
	}
}

type StateResponse struct {
	DB    bool `json:"db"`
	Redis bool `json:"redis"`
}

func (h *ServerHandlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	httputil.RespondWithJSON(w, http.StatusOK, httputil.MessageResponse{Message: "Ok"})
}

// State reports backend reachability. It always answers 200; the booleans
// carry the result.
func (h *ServerHandlers) State(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()

	httputil.RespondWithJSON(w, http.StatusOK, StateResponse{
		DB:    h.ping(ctx, "db", h.db),
		Redis: h.ping(ctx, "redis", h.redis),
	})
}

func (h *ServerHandlers) ping(ctx context.Context, name string, p Pinger) bool {
	if err := p.Ping(ctx); err != nil {
		h.logger.WithError(err).WithField("backend", name).Warn("Backend ping failed")
		return false
	}
	return true
}
